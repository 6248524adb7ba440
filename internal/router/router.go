package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/handler"
	analyticsHandler "github.com/jwalitptl/qrcare/internal/handler/analytics"
	doctorHandler "github.com/jwalitptl/qrcare/internal/handler/doctor"
	filesHandler "github.com/jwalitptl/qrcare/internal/handler/files"
	"github.com/jwalitptl/qrcare/internal/handler/health"
	operatorHandler "github.com/jwalitptl/qrcare/internal/handler/operator"
	patientHandler "github.com/jwalitptl/qrcare/internal/handler/patient"
	promHandler "github.com/jwalitptl/qrcare/internal/handler/prometheus"
	qrHandler "github.com/jwalitptl/qrcare/internal/handler/qr"
	"github.com/jwalitptl/qrcare/internal/middleware"
	"github.com/jwalitptl/qrcare/internal/repository"
	"github.com/jwalitptl/qrcare/internal/service/analytics"
	"github.com/jwalitptl/qrcare/internal/service/auth"
	"github.com/jwalitptl/qrcare/internal/service/patient"
	"github.com/jwalitptl/qrcare/internal/service/qr"
	"github.com/jwalitptl/qrcare/internal/service/visit"
	"github.com/jwalitptl/qrcare/internal/session"
	"github.com/jwalitptl/qrcare/internal/storage"
	"github.com/jwalitptl/qrcare/internal/web"
	"github.com/jwalitptl/qrcare/pkg/metrics"
)

// Services are the domain services the HTTP layer drives.
type Services struct {
	QR        *qr.Service
	Patients  *patient.Service
	Visits    *visit.Service
	Auth      *auth.Service
	Analytics *analytics.Service
}

type Dependencies struct {
	Services Services
	Sessions *session.Manager
	Gate     *access.Gate
	Files    *storage.Store
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Health   map[string]repository.Pinger
}

type RouterConfig struct {
	Mode           string
	TLS            bool
	CORSOrigins    []string
	LoginPerMinute int
	LoginBurst     int
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Router struct {
	engine *gin.Engine
	deps   Dependencies
	config RouterConfig
	auth   *middleware.AuthMiddleware
	prom   *promHandler.Handler
}

func NewRouter(deps Dependencies, config RouterConfig) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}

	engine := gin.New()
	engine.SetHTMLTemplate(web.MustTemplates())

	r := &Router{
		engine: engine,
		deps:   deps,
		config: config,
		auth:   middleware.NewAuthMiddleware(deps.Sessions, deps.Gate),
		prom:   promHandler.New(deps.Gatherer, deps.Metrics),
	}

	sizeLimit := middleware.DefaultSizeLimitConfig()
	if config.MaxUploadBytes > 0 {
		// Leave room for the other form fields around the file parts.
		sizeLimit.MaxUploadSize = 2*config.MaxUploadBytes + 1<<20
	}
	timeout := middleware.DefaultTimeoutConfig()
	if config.RequestTimeout > 0 {
		timeout.Duration = config.RequestTimeout
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		r.prom.Middleware(),
		middleware.Timeout(timeout),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig(config.TLS)),
		middleware.SizeLimit(sizeLimit),
		r.auth.LoadSession(),
	)

	return r
}

// Setup registers every route.
func (r *Router) Setup() {
	s := r.deps.Services
	base := &handler.BaseHandler{Sessions: r.deps.Sessions}

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		PerMinute: r.config.LoginPerMinute,
		Burst:     r.config.LoginBurst,
	})
	guards := handler.Guards{
		Auth:     r.auth,
		Throttle: limiter.RateLimit(),
		NoStore:  middleware.Cache(middleware.NoStoreConfig()),
	}

	health.NewHandler(r.deps.Health).RegisterRoutes(r.engine)
	r.engine.GET("/metrics", r.prom.Handler())

	api := r.engine.Group("/api")
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = r.config.CORSOrigins
	api.Use(middleware.CORS(cors), middleware.ErrorHandler())

	home := handler.NewHandler(base)
	home.RegisterRoutes(r.engine)

	qrHandler.NewHandler(base, s.QR, s.Patients, s.Auth, r.deps.Gate).RegisterRoutes(r.engine, guards)
	patientHandler.NewHandler(base, s.Patients, s.Visits, s.QR, s.Auth).RegisterRoutes(r.engine, guards)
	operatorHandler.NewHandler(base, s.Auth, s.Patients, s.Visits, s.Analytics).RegisterRoutes(r.engine, guards)
	doctorHandler.NewHandler(base, s.Auth, s.Patients, s.Visits).RegisterRoutes(r.engine, guards)
	analyticsHandler.NewHandler(base, s.Analytics).RegisterRoutes(r.engine, api, guards)
	filesHandler.NewHandler(base, r.deps.Files, s.Patients, r.deps.Gate).
		RegisterRoutes(r.engine, guards, middleware.Cache(middleware.AssetCacheConfig()))

	r.engine.NoRoute(home.NoRoute)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
