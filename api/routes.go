package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/api/middleware"
	"github.com/customeros/mailsync/api/rest/handlers"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/tracing"
)

const APIKeyHeader = "X-MAILSYNC-API-KEY"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, runs interfaces.SyncRunRepository, trigger handlers.SyncTrigger, apikey string) {
	if runs == nil {
		panic("SyncRunRepository cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(runs))

	api := r.Group("/v1")
	api.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  APIKeyHeader,
		ValidAPIKey: apikey,
	}))
	api.Use(middleware.TracingMiddleware())
	{
		api.GET("/runs", handlers.RecentRuns(runs))
		api.POST("/sync", handlers.TriggerSync(trigger))
	}
}
