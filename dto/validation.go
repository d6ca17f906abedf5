package dto

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/playletworks/drama-api/storage"
)

// artifactref validates that a string field carries a well-formed artifact
// reference; existence is checked later by the stage that reads it.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("artifactref", func(fl validator.FieldLevel) bool {
			return storage.ValidRef(fl.Field().String())
		})
	}
}
