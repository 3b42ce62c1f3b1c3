// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/api/handlers"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/api/middleware"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/ingest"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/service"
)

type Services struct {
	Engine     *service.ForecastEngine
	Importer   *ingest.Importer
	Reconciler *service.Reconciler
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger("/health"))
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil && services.Engine != nil {
		importer := services.Importer
		if importer == nil {
			importer = ingest.NewImporter(services.Engine, nil)
		}
		forecastHandler := handlers.NewForecastHandler(services.Engine, importer, services.Reconciler)

		apiGroup.POST("/predictions", forecastHandler.Predict)

		salesGroup := apiGroup.Group("/sales")
		{
			salesGroup.POST("", forecastHandler.RecordSales)
			salesGroup.POST("/upload", forecastHandler.UploadSales)
		}

		stoGroup := apiGroup.Group("/stos/:sto_id")
		{
			stoGroup.GET("/predictions", forecastHandler.GetHistory)
			stoGroup.GET("/predictions/export", forecastHandler.ExportHistory)
			stoGroup.GET("/accuracy", forecastHandler.GetAccuracy)
		}

		accuracyGroup := apiGroup.Group("/accuracy")
		{
			accuracyGroup.POST("/reconcile", forecastHandler.Reconcile)
			accuracyGroup.POST("/reconcile/run", forecastHandler.RunReconciliation)
		}

		cacheGroup := apiGroup.Group("/cache")
		{
			cacheGroup.GET("/stats", forecastHandler.GetCacheStats)
			cacheGroup.DELETE("/:sto_id", forecastHandler.InvalidateCache)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			switch trimmed {
			case "":
			case "*":
				allowAll = true
			default:
				parsed = append(parsed, trimmed)
			}
		}
	}
	return parsed, allowAll
}
