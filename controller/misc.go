package controller

import (
	"github.com/gin-gonic/gin"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/common/helper"
)

func (s *Server) GetStatus(c *gin.Context) {
	helper.RespondSuccess(c, gin.H{
		"version":         common.Version,
		"start_time":      common.StartTime,
		"storage_backend": config.StorageBackend,
	})
}
