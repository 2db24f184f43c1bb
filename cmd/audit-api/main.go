package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/wms-audit-api/internal/gateway"
	"github.com/noah-isme/wms-audit-api/internal/handler"
	"github.com/noah-isme/wms-audit-api/internal/repository"
	"github.com/noah-isme/wms-audit-api/internal/service"
	"github.com/noah-isme/wms-audit-api/pkg/cache"
	"github.com/noah-isme/wms-audit-api/pkg/config"
	"github.com/noah-isme/wms-audit-api/pkg/database"
	"github.com/noah-isme/wms-audit-api/pkg/export"
	"github.com/noah-isme/wms-audit-api/pkg/jobs"
	"github.com/noah-isme/wms-audit-api/pkg/logger"
)

// @title WMS Audit API
// @version 0.1.0
// @description Supervisor flag resolution and handheld stepwise audit
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := wire(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to wire services", zap.Error(err))
	}
	defer cleanup()

	deps.audit.Start(ctx)
	defer deps.audit.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, logr, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env),
			zap.String("flag_source", cfg.Flags.Source), zap.String("hhd_source", cfg.HHD.Source))
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Error("graceful shutdown failed", zap.Error(err))
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
		}
	}
}

// wire builds the services for the configured sources. cleanup releases their connections.
func wire(ctx context.Context, cfg *config.Config, logr *zap.Logger) (routerDeps, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logr.Warn("cleanup failed", zap.Error(err))
			}
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	checks := map[string]handler.ReadinessCheck{}

	var db *sqlx.DB
	if cfg.Database.Enabled {
		conn, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return routerDeps{}, cleanup, fmt.Errorf("connect postgres: %w", err)
		}
		db = conn
		closers = append(closers, db.Close)
		if err := database.EnsureSchema(ctx, db); err != nil {
			cleanup()
			return routerDeps{}, func() {}, err
		}
		checks["postgres"] = db.PingContext
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, recovery cache stays local", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	closers = append(closers, cacheRepo.Close)
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}
	recoveryCache := service.NewCacheService(cacheRepo, metrics, logr,
		service.WithCacheTTL(cfg.Flags.RecoveryCheckTTL),
		service.WithCacheEnabled(cfg.Flags.RecoveryCacheEnable && redisClient != nil),
	)

	var audit *service.AuditTrailService
	queueCfg := jobs.QueueConfig{
		Workers:    cfg.AuditTrail.Workers,
		MaxRetries: cfg.AuditTrail.Retries,
		RetryDelay: cfg.AuditTrail.RetryDelay,
	}
	if db != nil {
		audit = service.NewAuditTrailService(repository.NewAuditRepository(db), queueCfg, metrics, logr)
	} else {
		audit = service.NewAuditTrailService(nil, queueCfg, metrics, logr)
	}

	upstream := gateway.NewClient(cfg.Upstream, logr)

	source, err := flagSource(ctx, cfg, db, upstream, metrics, logr)
	if err != nil {
		cleanup()
		return routerDeps{}, func() {}, err
	}
	matcher := service.NewRecoveryMatcher(source, recoveryCache, cfg.Flags.RecoveryCheckTTL, logr)
	flags := service.NewFlagService(source, matcher, validate, logr,
		service.WithFlagAuditRecorder(audit),
		service.WithFlagMetrics(metrics),
	)
	exporter := service.NewFlagExportService(flags, export.NewCSVExporter(export.WithBOM()), export.NewLandscapePDFExporter(), logr)

	var tasks service.WorkTaskSource = repository.NewDefaultFixtureWorkTaskRepository()
	if cfg.HHD.Source == config.SourceHTTP {
		tasks = gateway.NewHHDClient(upstream)
	}
	hhd := service.NewHHDService(tasks, audit, metrics, validate, logr)

	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	return routerDeps{
		auth:    auth,
		flags:   flags,
		export:  exporter,
		hhd:     hhd,
		audit:   audit,
		metrics: metrics,
		checks:  checks,
	}, cleanup, nil
}

// flagSource picks the primary flag source. Unless disabled, a fixture fallback covers
// transport failures of remote sources.
func flagSource(ctx context.Context, cfg *config.Config, db *sqlx.DB, upstream *gateway.Client, metrics *service.MetricsService, logr *zap.Logger) (service.FlagSource, error) {
	fixture := repository.NewFixtureFlagRepository(repository.DefaultFlagFixtures())

	var primary service.FlagSource
	switch cfg.Flags.Source {
	case config.SourceHTTP:
		primary = gateway.NewFlagClient(upstream)
	case config.SourcePostgres:
		repo := repository.NewFlagRepository(db)
		if cfg.Flags.SeedFixtures {
			seeded, err := repo.SeedIfEmpty(ctx, repository.DefaultFlagFixtures())
			if err != nil {
				return nil, fmt.Errorf("seed flags: %w", err)
			}
			logr.Info("flag fixtures seeded", zap.Int("count", seeded))
		}
		primary = repo
	default:
		return fixture, nil
	}

	if !cfg.Flags.FallbackEnabled {
		return primary, nil
	}
	return service.NewFallbackFlagSource(primary, fixture, metrics, logr), nil
}
