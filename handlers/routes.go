package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sreekar-ss/devbytes-blog/metrics"
	"github.com/sreekar-ss/devbytes-blog/middleware"
)

type RouterConfig struct {
	Analytics *AnalyticsHandlers
	Auth      *middleware.Auth
	Limiter   *middleware.RateLimiter
	Health    HealthChecker
	FEOrigin  string
	Logger    *zap.Logger

	// TrustedProxies is passed to gin; nil trusts no forwarding headers.
	TrustedProxies []string
}

func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	r.Use(middleware.RequestLogger(cfg.Logger), middleware.Recovery(cfg.Logger))
	r.Use(middleware.CORSMiddleware(cfg.FEOrigin))

	r.GET("/healthz", HealthCheck(cfg.Health))
	r.GET("/metrics", metrics.Handler())

	h := cfg.Analytics
	api := r.Group("/api/analytics")
	{
		ingest := api.Group("/")
		ingest.Use(cfg.Limiter.Middleware(), cfg.Auth.OptionalAuth())
		{
			ingest.POST("/track", h.Track)
			ingest.POST("/events", h.TrackEvents)
		}

		reader := api.Group("/")
		reader.Use(cfg.Auth.AuthRequired())
		{
			reader.POST("/sync", h.Sync)
			reader.GET("/me", h.GetMyStats)
			reader.GET("/me/history", h.GetMyHistory)
		}

		admin := api.Group("/admin")
		admin.Use(cfg.Auth.AdminRequired())
		{
			admin.GET("", h.GetAdminStats)
			admin.GET("/bots", h.GetBotTraffic)
			admin.GET("/endpoints", h.GetEndpointUsage)
		}
	}

	return r, nil
}
