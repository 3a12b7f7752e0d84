package api

import (
	"github.com/gin-gonic/gin"

	"github.com/nimbusdrive/file-service/internal/api/handlers"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}

// RegisterRoutes wires the HTTP surface. Everything except the health check
// requires an authenticated owner.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, requireAuth gin.HandlerFunc) {
	r.Use(corsMiddleware())

	api := r.Group("/api")
	api.GET("/health", h.HealthCheck)

	authed := api.Group("")
	authed.Use(requireAuth)
	{
		authed.POST("/upload/single", h.UploadSingle)
		authed.POST("/upload/multiple", h.UploadMultiple)

		authed.GET("/files", h.ListFiles)
		authed.GET("/files/:id", h.GetFile)
		authed.GET("/files/:id/download", h.DownloadFile)
		authed.DELETE("/files/:id", h.DeleteFile)
	}
}
