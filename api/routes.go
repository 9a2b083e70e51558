package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/api/handlers"
	"github.com/customeros/mailvault/api/middleware"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	// Health check and status endpoints (no auth needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.ArchiveService))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILVAULT-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TracingMiddleware()) // Add tracing for all /v1/* endpoints
	{
		sync := api.Group("/sync")
		{
			sync.POST("", handlers.TriggerSync(s.Logger, s.ArchiveService))
			sync.GET("/progress", handlers.SyncProgress(repos))
		}

		archive := api.Group("/archive")
		{
			archive.GET("/stats", handlers.ArchiveStats(repos))
		}
	}
}
