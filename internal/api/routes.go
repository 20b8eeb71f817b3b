package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keymonitor/backend/internal/api/handlers"
	"github.com/keymonitor/backend/internal/config"
	"github.com/keymonitor/backend/internal/metrics"
	"github.com/keymonitor/backend/internal/services"
	"github.com/keymonitor/backend/internal/store"
)

// metricsMiddleware records request counts and latency per route template.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func SetupRouter(st *store.Store, collector *services.Collector, scheduler *services.Scheduler,
	alerts *services.AlertEngine, analysis *services.AnalysisService, cfg *config.Manager) *gin.Engine {
	router := gin.Default()
	router.Use(metricsMiddleware())

	// Get frontend dist path from env
	frontendPath := os.Getenv("FRONTEND_DIST_PATH")
	serveFrontend := frontendPath != "" && dirExists(frontendPath)

	// CORS configuration - allow origins from environment or use defaults
	corsConfig := cors.DefaultConfig()
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(corsOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	// Initialize handlers
	gamesHandler := handlers.NewGamesHandler(st, collector, analysis)
	pricesHandler := handlers.NewPricesHandler(st, analysis)
	configHandler := handlers.NewConfigHandler(cfg, scheduler)
	adminHandler := handlers.NewAdminHandler(st, collector, scheduler, alerts, analysis, cfg)

	// API routes
	api := router.Group("/api")
	{
		games := api.Group("/games")
		{
			games.GET("", gamesHandler.ListGames)
			games.POST("", gamesHandler.RegisterGame)
			games.DELETE("/:id", gamesHandler.DeleteGame)
			games.PUT("/:id/history-low", gamesHandler.UpdateHistoryLow)
			games.PUT("/:id/push-settings", gamesHandler.UpdatePushSettings)
		}

		api.GET("/prices/:id", pricesHandler.GetPrices)
		api.GET("/stats/:id", pricesHandler.GetStats)
		api.GET("/analysis/:id", pricesHandler.GetAnalysis)

		api.GET("/config", configHandler.GetConfig)
		api.PUT("/config", configHandler.UpdateConfig)

		api.POST("/collect", adminHandler.CollectAll)
		api.POST("/collect/:id", adminHandler.CollectOne)
		api.POST("/cleanup", adminHandler.Cleanup)
		api.POST("/notify/test", adminHandler.NotifyTest)
		api.POST("/notify/daily-report", adminHandler.NotifyDailyReport)
		api.GET("/db-stats", adminHandler.DBStats)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Serve frontend static files
	if serveFrontend {
		indexPath := filepath.Join(frontendPath, "index.html")

		router.Static("/assets", filepath.Join(frontendPath, "assets"))

		// Serve root index.html
		router.GET("/", func(c *gin.Context) {
			c.File(indexPath)
		})

		// SPA fallback - serve index.html for all non-API routes
		router.NoRoute(func(c *gin.Context) {
			path := c.Request.URL.Path
			if strings.HasPrefix(path, "/api") {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.File(indexPath)
		})
	}

	return router
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
