package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vidanalyzer/config"
)

func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "Video Analyzer",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		v1.POST("/analyze", h.handleAnalyze)
		v1.GET("/status/:taskId", h.handleStatus)
		v1.DELETE("/task/:taskId", h.handleCancel)

		v1.POST("/scripts", h.handleGenerateScript)
		v1.GET("/scripts/:taskId", h.handleGetScript)

		v1.GET("/trending/videos", h.handleTrendingVideos)
	}
	return r
}
