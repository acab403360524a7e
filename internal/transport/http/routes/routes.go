package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/infra/config"
	"github.com/carehub/clinic-api/internal/transport/http/handlers"
	"github.com/carehub/clinic-api/internal/transport/http/middleware"
	"github.com/carehub/clinic-api/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Revocations *usecase.RevocationService
	RoleChanges *usecase.RoleChangeService
	Sweeper     *usecase.ExpirySweeper
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	TokenParser middleware.AccessTokenParser
	Services    ServiceSet
	Metrics     *middleware.HTTPMetrics
	// Gatherer backs /metrics. Nil selects the default registry.
	Gatherer        prometheus.Gatherer
	ReadinessChecks map[string]handlers.ReadinessCheck
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if deps.Config.Telemetry.TracingEnabled {
		r.Use(middleware.Tracing(deps.Config.Telemetry.ServiceName, middleware.TracingOptions{
			SkipPaths: []string{"/metrics", "/api/health"},
		}))
	}
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(deps.Config.HTTP.CORSAllowedOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}
	r.Use(middleware.Authenticate(deps.TokenParser, log))

	// A nil bypass list would select the defaults; an explicitly empty list disables bypassing.
	bypass := deps.Config.Gate.BypassPaths
	if bypass == nil {
		bypass = middleware.DefaultBypassPaths
	}
	var checker middleware.RevocationChecker
	if deps.Services.Revocations != nil {
		checker = deps.Services.Revocations
	}
	r.Use(middleware.RevocationGate(checker, middleware.RevocationGateOptions{
		BypassPaths: bypass,
		Policy:      deps.Config.Revocation.Policy(),
		Logger:      log,
	}))

	healthHandler := handlers.NewHealthHandler(deps.ReadinessChecks)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.GET("/health", healthHandler.Status)
		api.GET("/health/ready", healthHandler.Ready)

		sessionHandler := handlers.NewSessionHandler()
		api.GET("/session", middleware.RequireAuth(), sessionHandler.Current)

		if deps.Services.Revocations != nil {
			admin := api.Group("/admin", middleware.RequireAuth(), middleware.RequireRole(domain.RoleSuperAdmin, domain.RoleAdmin))
			handlers.NewRevocationAdminHandler(
				deps.Services.Revocations,
				deps.Services.RoleChanges,
				deps.Services.Sweeper,
			).RegisterRoutes(admin)
		}
	}

	return r
}
