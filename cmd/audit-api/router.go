package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/wms-audit-api/api/swagger"
	"github.com/noah-isme/wms-audit-api/internal/handler"
	"github.com/noah-isme/wms-audit-api/internal/middleware"
	"github.com/noah-isme/wms-audit-api/internal/models"
	"github.com/noah-isme/wms-audit-api/internal/service"
	"github.com/noah-isme/wms-audit-api/pkg/config"
	"github.com/noah-isme/wms-audit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/wms-audit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/wms-audit-api/pkg/middleware/requestid"
)

// routerDeps carries the wired services the HTTP layer needs.
type routerDeps struct {
	auth    *service.AuthService
	flags   *service.FlagService
	export  *service.FlagExportService
	hhd     *service.HHDService
	audit   *service.AuditTrailService
	metrics *service.MetricsService
	checks  map[string]handler.ReadinessCheck
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/readyz", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics, "/metrics", "/health", "/readyz"))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(deps.metrics, deps.checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/readyz", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.auth))

	flagHandler := handler.NewFlagHandler(deps.flags, deps.export, deps.audit)
	flags := api.Group("/audit/flags")
	flags.Use(middleware.RequireRoles(models.RoleSupervisor, models.RoleAdmin))
	{
		flags.GET("", flagHandler.List)
		flags.GET("/export", flagHandler.Export)
		flags.GET("/:id/recovery-check", flagHandler.RecoveryCheck)
		flags.GET("/:id/history", flagHandler.History)
		flags.POST("/:id/resolve", flagHandler.Resolve)
		flags.POST("/:id/reject", flagHandler.Reject)
	}

	hhdHandler := handler.NewHHDHandler(deps.hhd)
	hhd := api.Group("/hhd")
	hhd.Use(middleware.RequireRoles(models.RoleAuditor, models.RoleSupervisor))
	{
		hhd.GET("/session", hhdHandler.Session)
		hhd.POST("/start", hhdHandler.Start)
		hhd.POST("/rack/scan", hhdHandler.ScanRack)
		hhd.POST("/box/scan", hhdHandler.ScanBox)
		hhd.POST("/box/ean", hhdHandler.VerifyEAN)
		hhd.POST("/box/submit", hhdHandler.SubmitBox)
		hhd.POST("/rack/complete", hhdHandler.CompleteRack)
		hhd.POST("/rack/skip", hhdHandler.SkipRack)
		hhd.POST("/exit", hhdHandler.Exit)
	}

	return r
}
