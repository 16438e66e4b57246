package router

import (
	"github.com/erp/importer/internal/infrastructure/config"
	"github.com/erp/importer/internal/infrastructure/logger"
	"github.com/erp/importer/internal/infrastructure/telemetry"
	"github.com/erp/importer/internal/interfaces/http/handler"
	"github.com/erp/importer/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ImportRunPath is the route that runs an import, relative to the API prefix
const ImportRunPath = "/imports/:kind"

// ImportRoutes groups the import endpoints
func ImportRoutes(h *handler.ImportHandler) *DomainGroup {
	g := NewDomainGroup("import", "/imports")
	g.POST("/connection-test", h.TestConnection)
	g.POST("/:kind", h.RunImport)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.GET("/runs/:id/errors", h.GetRunErrors)
	return g
}

// SystemRoutes groups the system endpoints
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	g := NewDomainGroup("system", "/system")
	g.GET("/info", h.GetSystemInfo)
	g.GET("/ping", h.Ping)
	return g
}

// EngineDeps carries what the HTTP engine is built from
type EngineDeps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Meters  *telemetry.MeterProvider
	Imports *handler.ImportHandler
	System  *handler.SystemHandler
	// Limiter is nil when rate limiting is off
	Limiter *middleware.RateLimiter
}

// NewEngine builds the gin engine with the middleware chain and every route
func NewEngine(deps EngineDeps) (*gin.Engine, error) {
	cfg := deps.Config
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	r := NewRouter(engine, WithAPIVersion("v1"))

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(deps.Logger))
	engine.Use(logger.GinMiddleware(deps.Logger))
	engine.Use(middleware.HTTPMetrics(deps.Meters, deps.Logger))
	engine.Use(middleware.SecureWithConfig(middleware.DefaultSecurityConfig()))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.Timeout(cfg.HTTP.RequestTimeout, r.APIPrefix()+ImportRunPath))
	if deps.Limiter != nil {
		engine.Use(middleware.RateLimit(deps.Limiter))
	}

	engine.GET("/health", deps.System.Health)

	r.Register(SystemRoutes(deps.System))
	r.Register(ImportRoutes(deps.Imports))
	r.Setup()

	return engine, nil
}
