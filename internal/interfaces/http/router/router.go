package router

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/arcade/backend/docs"
	billingapp "github.com/arcade/backend/internal/application/billing"
	"github.com/arcade/backend/internal/infrastructure/logger"
	"github.com/arcade/backend/internal/infrastructure/telemetry"
	"github.com/arcade/backend/internal/interfaces/http/handler"
	"github.com/arcade/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		registrars: make([]RouteRegistrar, 0),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one API area before registration
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{
		name:   name,
		prefix: prefix,
	}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: "GET", path: path, handlers: handlers})
	return dg
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: "POST", path: path, handlers: handlers})
	return dg
}

// Group creates a sub-group that inherits this group's middleware
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	subgroup := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, subgroup)
	return subgroup
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}

	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}

	for _, subgroup := range dg.subgroups {
		subgroup.RegisterRoutes(group)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Handlers bundles the HTTP handlers mounted by NewEngine
type Handlers struct {
	Sessions  *handler.SessionHandler
	Recharge  *handler.RechargeHandler
	Callbacks *handler.PaymentCallbackHandler
	System    *handler.SystemHandler
	// Tokens is nil when JWT signing is not configured.
	Tokens *handler.TokenHandler
}

// EngineConfig configures the middleware chain built by NewEngine.
// Zero values disable the optional pieces.
type EngineConfig struct {
	Logger         *zap.Logger
	Verifier       billingapp.CredentialVerifier
	RateLimiter    *middleware.RateLimiter
	MaxBodySize    int64
	RequestTimeout time.Duration
	TrustedProxies []string
	Tracing        middleware.TracingConfig
	MeterProvider  *telemetry.MeterProvider
	Metrics        bool
	Profiling      middleware.ProfilingConfig
	Security       middleware.SecurityConfig
	// Swagger serves the OpenAPI document and UI under /swagger.
	Swagger bool
}

// NewEngine assembles the gin engine with the full middleware chain and
// every API route.
//
//	GET  /health
//	POST /api/v1/sessions/authorize          (credentials checked by the service)
//	GET  /api/v1/sessions/:session_id        (operator auth)
//	POST /api/v1/recharge-orders             (operator auth)
//	GET  /api/v1/recharge-orders/:order_no   (operator auth)
//	POST /api/v1/payment/callback/:gateway   (gateway signature)
//	POST /api/v1/auth/token                  (operator auth, JWT enabled)
//	POST /api/v1/auth/revoke                 (operator auth, JWT enabled)
//	GET  /api/v1/system/info
//	GET  /swagger/*any                       (when Swagger is set)
func NewEngine(cfg EngineConfig, h Handlers) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(log),
		logger.GinMiddleware(log),
		middleware.TracingWithConfig(cfg.Tracing),
		middleware.TracingAttributeInjector(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: cfg.MeterProvider,
			Enabled:       cfg.Metrics,
		}),
		middleware.ProfilingWithConfig(cfg.Profiling),
		middleware.Secure(cfg.Security),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	engine.Use(middleware.Timeout(cfg.RequestTimeout))

	engine.GET("/health", h.System.Health)
	if cfg.Swagger {
		engine.GET("/swagger/*any", allowSwaggerUI, ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireOperator := middleware.RequireOperator(cfg.Verifier)

	sessions := NewDomainGroup("sessions", "/sessions")
	if cfg.RateLimiter != nil {
		sessions.Use(middleware.RateLimit(cfg.RateLimiter, nil))
	}
	sessions.POST("/authorize", h.Sessions.Authorize)
	sessions.GET("/:session_id", requireOperator, h.Sessions.GetSession)

	recharge := NewDomainGroup("recharge", "/recharge-orders").Use(requireOperator)
	recharge.POST("", h.Recharge.CreateOrder)
	recharge.GET("/:order_no", h.Recharge.GetOrder)

	payment := NewDomainGroup("payment", "/payment")
	payment.Group("callback", "/callback").POST("/:gateway", h.Callbacks.HandlePaymentCallback)

	system := NewDomainGroup("system", "/system")
	system.GET("/info", h.System.GetSystemInfo)

	r := NewRouter(engine, WithAPIVersion("v1")).
		Register(sessions).
		Register(recharge).
		Register(payment).
		Register(system)
	if h.Tokens != nil {
		tokens := NewDomainGroup("auth", "/auth").Use(requireOperator)
		tokens.POST("/token", h.Tokens.Issue)
		tokens.POST("/revoke", h.Tokens.Revoke)
		r.Register(tokens)
	}
	r.Setup()

	return engine, nil
}

// allowSwaggerUI drops the API's deny-all CSP so the UI can load its assets
func allowSwaggerUI(c *gin.Context) {
	c.Writer.Header().Del("Content-Security-Policy")
	c.Next()
}
