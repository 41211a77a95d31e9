package router

import (
	"github.com/gin-gonic/gin"
	"github.com/pms/channelsync/internal/infrastructure/logger"
	"github.com/pms/channelsync/internal/interfaces/http/handler"
	"github.com/pms/channelsync/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Handlers are the route handlers served by the engine
type Handlers struct {
	System  *handler.SystemHandler
	Webhook *handler.WebhookHandler
	Issue   *handler.IssueHandler
	Task    *handler.TaskHandler
	Backend *handler.BackendHandler
}

// EngineConfig configures the middleware chain
type EngineConfig struct {
	Logger          *zap.Logger
	Meter           metric.Meter // nil disables HTTP metrics
	Tracing         middleware.TracingConfig
	Profiling       bool // label request CPU samples for the profiler
	TrustedProxies  []string
	MaxWebhookBytes int64
	// Webhook quota per backend and client address
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// NewEngine builds the gin engine with the middleware chain and every route
func NewEngine(cfg EngineConfig, h Handlers) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	middleware.SetupValidator()

	engine.Use(
		logger.Recovery(cfg.Logger),
		middleware.Tracing(cfg.Tracing),
		logger.GinMiddleware(cfg.Logger),
		middleware.SpanEnricher(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.Profiling(cfg.Profiling),
	)

	engine.GET("/health", h.System.Health)

	limiter := middleware.NewRateLimiter(cfg.WebhookRatePerSecond, cfg.WebhookBurst)
	NewRouter(engine).
		Register(SystemRoutes(h.System)).
		Register(WebhookRoutes(h.Webhook, limiter, cfg.MaxWebhookBytes)).
		Register(IssueRoutes(h.Issue)).
		Register(TaskRoutes(h.Task)).
		Register(BackendRoutes(h.Backend)).
		Setup()

	return engine, nil
}

// SystemRoutes serves build information
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").
		GET("/info", h.GetSystemInfo)
}

// WebhookRoutes serves inbound channel deliveries
func WebhookRoutes(h *handler.WebhookHandler, limiter *middleware.RateLimiter, maxBytes int64) *DomainGroup {
	return NewDomainGroup("webhooks", "/webhooks/:backend").
		Use(middleware.RateLimitByKey(limiter, middleware.BackendKey), middleware.BodyLimit(maxBytes)).
		POST("/reservation", h.Reservation).
		POST("/listing", h.Listing).
		POST("/calendar/:property", h.Calendar)
}

// IssueRoutes serves the operator issue list
func IssueRoutes(h *handler.IssueHandler) *DomainGroup {
	return NewDomainGroup("issues", "/issues").
		GET("", h.List).
		GET("/counts", h.Counts).
		POST("/:id/ack", h.Acknowledge)
}

// TaskRoutes serves queue administration
func TaskRoutes(h *handler.TaskHandler) *DomainGroup {
	return NewDomainGroup("tasks", "/tasks").
		GET("/dead", h.ListDead).
		GET("/stats", h.Stats).
		POST("/:id/retry", h.Retry)
}

// BackendRoutes serves per-backend operator actions
func BackendRoutes(h *handler.BackendHandler) *DomainGroup {
	return NewDomainGroup("backends", "/backends/:backend").
		POST("/exports", h.RunExports)
}
