package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/telemetry"
	"rag-knowledge-platform/middleware"
)

// maxUploadSize bounds manual document uploads.
const maxUploadSize = 10 << 20

// Handlers groups the route handlers the router mounts.
type Handlers struct {
	Query     *QueryHandler
	Documents *DocumentHandler
	Audit     *AuditHandler
	Health    *HealthHandler
}

// Register mounts all routes and their middleware chains on the engine.
func Register(r *gin.Engine, cfg *config.Config, rdb *redis.Client, metrics *telemetry.Metrics, h Handlers) {
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middleware.TracingMiddleware())
	r.Use(middleware.MetricsMiddleware(metrics))
	r.Use(middleware.RateLimitMiddleware(rdb, cfg))

	r.GET("/health", h.Health.HandleHealth)
	r.GET("/ready", h.Health.HandleReady)

	auth := middleware.NewAuthMiddleware(cfg)
	roles := middleware.NewRoleMiddleware()

	api := r.Group("/api")
	api.Use(auth.RequireAuth())
	api.Use(middleware.EnrichTrace())
	api.Use(middleware.RoleBasedRateLimit(rdb, cfg))
	{
		api.POST("/query", h.Query.HandleQuery)
		api.GET("/quota", h.Query.HandleQuotaStatus)
		api.GET("/documents", h.Documents.HandleList)

		editors := api.Group("")
		editors.Use(roles.EditorGuard())
		{
			editors.POST("/documents/index", h.Documents.HandleIndex)
			editors.POST("/documents/upload",
				middleware.RequestSizeLimit(maxUploadSize), h.Documents.HandleUpload)
			editors.DELETE("/documents", h.Documents.HandleDelete)
			editors.PUT("/documents/metadata", h.Documents.HandleSetOverride)
			editors.GET("/documents/history", h.Documents.HandleHistory)
			editors.GET("/documents/snapshot", h.Documents.HandleSnapshot)
			editors.GET("/sync/status", h.Documents.HandleSyncStatus)
		}

		admins := api.Group("")
		admins.Use(roles.AdminGuard())
		{
			admins.POST("/sync", h.Documents.HandleSync)
			admins.GET("/audit", h.Audit.HandleQueryRecords)
			admins.GET("/audit/verify", h.Audit.HandleVerifyChain)
		}
	}
}
