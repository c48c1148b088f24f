package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/internal/handler/health"
	promhandler "github.com/jwalitptl/hospital-api/internal/handler/prometheus"
	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(handler.Groups)
}

type RouterConfig struct {
	Mode             string
	RateLimitEnabled bool
	RateLimit        middleware.RateLimiterConfig
	CORSConfig       middleware.CORSConfig
	Security         middleware.SecurityConfig
	MaxBodyBytes     int64
	// MetricsPath is left unrouted when empty.
	MetricsPath string
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   *health.Handler
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	handlers []Handler
	config   RouterConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH *health.Handler,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	handlers []Handler,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		health:   healthH,
		metrics:  m,
		gatherer: gatherer,
		handlers: handlers,
		config:   config,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Metrics(m),
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORSConfig),
	)
	if config.RateLimitEnabled {
		engine.Use(middleware.NewRateLimiter(config.RateLimit).RateLimit())
	}

	return r
}

// Setup registers every route. Admin and doctor prefixes are gated on the
// verified role claim of the session token.
func (r *Router) Setup() {
	if r.gatherer != nil && r.config.MetricsPath != "" {
		promhandler.New(r.gatherer).RegisterRoutes(r.engine, r.config.MetricsPath)
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	if r.health != nil {
		r.health.RegisterRoutes(api)
	}

	public := api.Group("", middleware.SizeLimit(r.config.MaxBodyBytes))
	authed := public.Group("", r.auth.Authenticate())
	groups := handler.Groups{
		Public: public,
		Authed: authed,
		Doctor: authed.Group("/doctor", r.auth.RequireRole(model.RoleDoctor)),
		Admin:  authed.Group("/admin", r.auth.RequireRole(model.RoleAdmin)),
	}

	for _, h := range r.handlers {
		h.RegisterRoutes(groups)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
