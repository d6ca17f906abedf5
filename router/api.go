// Package router wires the HTTP routes to the controller.
package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playletworks/drama-api/controller"
	"github.com/playletworks/drama-api/middleware"
)

// SetRouter installs the full route table on the gin engine.
func SetRouter(r *gin.Engine, server *controller.Server) {
	r.Use(middleware.RequestId())
	r.Use(middleware.PanicRecover())
	r.Use(middleware.CORS())
	r.Use(middleware.CountRequests())
	r.Use(middleware.TrackRequests())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))

	api.GET("/status", server.GetStatus)
	api.POST("/tenant/register", server.Register)
	api.POST("/tenant/login", server.Login)

	auth := api.Group("")
	auth.Use(middleware.TenantAuth())

	self := auth.Group("/tenant/self")
	{
		self.GET("", server.GetSelf)
		self.DELETE("", server.DeleteSelf)
		self.GET("/quota", server.GetQuota)
		self.POST("/api-key", server.RotateAPIKey)
	}

	prod := auth.Group("/production")
	{
		prod.POST("", server.CreateProduction)
		prod.GET("", server.ListProductions)
		prod.GET("/:id", server.GetProduction)
		prod.DELETE("/:id", server.DeleteProduction)

		prod.POST("/:id/advance", server.AdvanceProduction)
		prod.POST("/:id/pause", server.PauseProduction)
		prod.POST("/:id/resume", server.ResumeProduction)
		prod.POST("/:id/cancel", server.CancelProduction)
		prod.GET("/:id/progress", server.GetProgress)
		prod.GET("/:id/artifact", server.GetArtifact)

		prod.POST("/:id/export/estimate", server.ExportEstimate)
		prod.POST("/:id/export/confirm", server.ExportConfirm)

		prod.POST("/:id/invitations", server.InviteCollaborator)
		prod.GET("/:id/invitations", server.ListInvitations)
		prod.GET("/:id/collaborators", server.ListCollaborators)
		prod.PUT("/:id/collaborators/:tenantId", server.UpdateCollaborator)
		prod.DELETE("/:id/collaborators/:tenantId", server.RemoveCollaborator)
	}

	auth.POST("/invitations/:id/accept", server.AcceptInvitation)
	auth.POST("/invitations/:id/reject", server.RejectInvitation)
}
