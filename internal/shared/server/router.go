package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"travelog-backend/internal/cities"
	"travelog-backend/internal/enrichment"
	"travelog-backend/internal/materialize"
	"travelog-backend/internal/services/health"
	"travelog-backend/internal/shared/config"
	"travelog-backend/internal/shared/metrics"
	"travelog-backend/internal/shared/server/middleware"
	"travelog-backend/internal/shared/server/respond"
)

const triggerGroup = "TRIGGER"

// RouterDeps are the handlers mounted under /api/v1. Nil handlers are skipped.
type RouterDeps struct {
	Config            config.Config
	Health            *health.Service
	CityHandler       *cities.Handler
	EnrichmentHandler *enrichment.Handler
	ImageHandler      *materialize.Handler
	Limiter           *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: groupFor,
			Limiter:  deps.Limiter,
			Rules: map[string]middleware.RateLimitRule{
				triggerGroup: {Rate: deps.Config.TriggerRateLimit, Burst: deps.Config.TriggerBurst},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	if deps.CityHandler != nil {
		deps.CityHandler.RegisterRoutes(api)
	}
	if deps.EnrichmentHandler != nil {
		deps.EnrichmentHandler.RegisterRoutes(api)
	}
	if deps.ImageHandler != nil {
		deps.ImageHandler.RegisterRoutes(api)
	}

	return r
}

// groupFor puts the routes that schedule enrichment work in the trigger group.
func groupFor(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return ""
	}
	switch c.FullPath() {
	case "/api/v1/enrichment/runs", "/api/v1/cities/:id/enrich":
		return triggerGroup
	}
	return ""
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
