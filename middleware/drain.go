package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/playletworks/drama-api/common/graceful"
)

// TrackRequests counts in-flight requests so shutdown can drain them.
func TrackRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		done := graceful.BeginRequest()
		defer done()
		c.Next()
	}
}
