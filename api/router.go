package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/clipfetch/api/handlers"
	"github.com/yourusername/clipfetch/api/middleware"
	"github.com/yourusername/clipfetch/internal/app"
	"github.com/yourusername/clipfetch/pkg/logger"
)

// SetupRouter sets up the HTTP router
func SetupRouter(
	queueMgr *app.QueueManager,
	fetchMgr *app.FetchManager,
	logAdapter *logger.LoggerAdapter,
	logsDir string,
) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logAdapter))
	router.Use(middleware.Recovery(logAdapter))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(queueMgr, fetchMgr)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	logReader := logger.NewLogReader(logsDir)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		fetchHandler := handlers.NewFetchHandler(queueMgr, fetchMgr, logAdapter.General())
		progressHandler := handlers.NewProgressStreamHandler(queueMgr, fetchMgr.Hub(), logAdapter.General())
		fetches := v1.Group("/fetches")
		{
			fetches.POST("", fetchHandler.AddFetch)
			fetches.GET("", fetchHandler.ListFetches)
			fetches.GET("/stats", fetchHandler.GetStats)
			fetches.GET("/:id", fetchHandler.GetFetch)
			fetches.GET("/:id/progress", progressHandler.Stream)
			fetches.GET("/:id/file", fetchHandler.DownloadFile)
			fetches.POST("/:id/cancel", fetchHandler.CancelFetch)
			fetches.POST("/:id/retry", fetchHandler.RetryFetch)
			fetches.DELETE("/:id", fetchHandler.DeleteFetch)
		}

		v1.GET("/probe", fetchHandler.Probe)

		logHandler := handlers.NewLogHandler(logReader)
		logStreamHandler := handlers.NewLogStreamHandler(logReader, logAdapter.General())
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
			logs.GET("/:category/stream", logStreamHandler.Stream)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
