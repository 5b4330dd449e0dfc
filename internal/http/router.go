// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, and rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Operational routes (webhook, sweep) guarded by shared secrets and kept
//     outside the app-facing rate limiter and auth
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/config"
	"github.com/K41R0N/threadbot-sub001/internal/http/handlers"
	"github.com/K41R0N/threadbot-sub001/internal/http/middleware"
	"github.com/K41R0N/threadbot-sub001/internal/services"
)

// Deps carries the constructed services the router mounts. Gateway is shared
// by every service that talks to the chat platform.
type Deps struct {
	DB       *gorm.DB
	Gateway  services.Gateway
	External services.ExternalSource
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip compression for API responses
//  8. Rate limiter (per user/IP)
//  9. CORS and security headers
//
// The webhook and sweep routes mount their secret guards per-route; the
// app-facing /api group additionally requires X-User-ID.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB; webhook payloads are tiny)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compress JSON responses; /metrics is exempt so Prometheus sees the
	// exposition format it negotiated.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/gateway
	delivery := services.NewDeliveryService(deps.DB, deps.Gateway, deps.External)
	delivery.Concurrency = cfg.Sweep.Concurrency
	delivery.UserTimeout = cfg.Sweep.UserTimeout

	linkSvc := services.NewLinkService(deps.DB)
	inboundSvc := services.NewInboundService(deps.DB, deps.Gateway)
	sendSvc := services.NewSendService(deps.DB, delivery)
	settingsSvc := services.NewSettingsService(deps.DB, deps.Gateway,
		cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret)

	h := handlers.New(linkSvc, settingsSvc, sendSvc, delivery, inboundSvc)

	// Chat platform pushes updates here; guarded by the webhook secret.
	r.POST("/telegram/webhook",
		middleware.RequireSecret("X-Telegram-Bot-Api-Secret-Token", cfg.Telegram.WebhookSecret),
		h.Webhook)

	// External cron triggers sweeps here; guarded by the sweep secret.
	r.POST("/internal/sweep",
		middleware.RequireSecret("X-Sweep-Secret", cfg.Sweep.Secret),
		h.RunSweep)

	// App-facing API
	api := r.Group(cfg.APIBasePath, rl.Handler(), middleware.RequireUser())
	{
		api.POST("/link/code", h.RequestLinkCode)
		api.GET("/link/status", h.LinkStatus)
		api.POST("/send-now", h.SendNow)
		api.PUT("/settings", h.SaveSettings)
		api.GET("/settings", h.GetSettings)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Oversized bodies error on downstream reads.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
