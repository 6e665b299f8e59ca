// Package app wires configuration, infrastructure clients, and domain
// components together and runs the selected mode (api, worker, migrate).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/kubefleet/internal/audit"
	"github.com/wisbric/kubefleet/internal/background"
	"github.com/wisbric/kubefleet/internal/clusterstore"
	"github.com/wisbric/kubefleet/internal/config"
	"github.com/wisbric/kubefleet/internal/grants"
	"github.com/wisbric/kubefleet/internal/httpauth"
	"github.com/wisbric/kubefleet/internal/httpserver"
	"github.com/wisbric/kubefleet/internal/monitoring"
	"github.com/wisbric/kubefleet/internal/platform"
	"github.com/wisbric/kubefleet/internal/telemetry"
	"github.com/wisbric/kubefleet/pkg/alertrules"
	"github.com/wisbric/kubefleet/pkg/cache"
	"github.com/wisbric/kubefleet/pkg/clientpool"
	"github.com/wisbric/kubefleet/pkg/reqmetrics"
	"github.com/wisbric/kubefleet/pkg/resource"
	"github.com/wisbric/kubefleet/pkg/singleton"
	"github.com/wisbric/kubefleet/pkg/watcher"
	"github.com/wisbric/kubefleet/pkg/wshub"
)

// Run is the process entry point: it connects to infrastructure and
// starts the mode named by cfg.Mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting kubefleet", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "0.1.0")
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
	}

	if cfg.Mode == "migrate" {
		return platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir)
	}
	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewRegistry()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb, metricsReg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	sessionSecret := cfg.JWTSecretKey
	sessionMgr, err := httpauth.NewSessionManager(sessionSecret, cfg.SessionMaxAge)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	var oidcAuth *httpauth.OIDCAuthenticator
	if cfg.OIDCEnabled() {
		oidcAuth, err = httpauth.NewOIDCAuthenticator(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return fmt.Errorf("creating OIDC authenticator: %w", err)
		}
	}

	cacheImpl := cache.NewRedisCache(rdb)
	pool := clientpool.New(clientpool.Config{
		MaxConnectionsPerCluster: cfg.ClientPoolMaxEntries,
		ConnectionTimeout:        cfg.ClientPoolTTL,
	})

	hub := wshub.New(cfg.WSMaxConnections, logger)
	watcherMgr := watcher.NewManager(pool, hubPublisher{hub}, logger, int64(cfg.WatcherStartConcurrency))

	auditor := audit.NewWriter(db, logger)
	auditor.Start(ctx)
	defer auditor.Close()

	clusters := clusterstore.New(db)
	grantsResolver := grants.New(db)
	readFacade := resource.NewReadFacade(cacheImpl)
	mutateFacade := resource.NewMutationFacade(cacheImpl)
	recorder := reqmetrics.New(cfg.MetricsWindowSize)

	authMiddleware := httpauth.Middleware(sessionMgr, oidcAuth, logger)

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsPath:        cfg.MetricsPath,
	}, logger, db, rdb, metricsReg, authMiddleware)

	srv.APIRouter.Use(httpserver.RollingMetrics(recorder))

	resourceHandler := resource.NewHandler(pool, clusters, grantsResolver, readFacade, mutateFacade, auditor, logger)
	clusterHandler := clusterstore.NewHandler(clusters, pool, grantsResolver, watcherMgr, auditor, logger)
	wsHandler := wshub.NewHandler(hub, logger)
	monitoringHandler := monitoring.NewHandler(recorder, pool, hub)

	srv.APIRouter.Mount("/", resourceHandler.Routes())
	srv.APIRouter.Mount("/clusters", clusterHandler.Routes())
	srv.APIRouter.Mount("/monitoring", monitoringHandler.Routes())
	srv.APIRouter.Get("/ws", wsHandler.ServeHTTP)

	srv.Router.Post("/api/alerts/webhook", alertrules.NewWebhookHandler(db, logger, cfg.AlertWebhookSecret, nil).ServeHTTP)

	if cfg.EnableBackgroundTasks {
		lock := singleton.NewFileLock(cfg.BackgroundTasksLockfile)
		evaluator := alertrules.NewEvaluator(db, logger, 30*time.Second, nil)
		runner := background.New(lock, auditor, evaluator, pool, background.Config{
			RetentionDays:        cfg.AuditLogRetentionDays,
			CleanupIntervalHours: cfg.AuditLogCleanupIntervalHours,
			CleanupBatchSize:     int32(cfg.AuditLogCleanupBatchSize),
		}, logger)
		go runner.Run(ctx)
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	go hub.RunHeartbeat(hbCtx)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		watcherMgr.StopAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	pool := clientpool.New(clientpool.Config{
		MaxConnectionsPerCluster: cfg.ClientPoolMaxEntries,
		ConnectionTimeout:        cfg.ClientPoolTTL,
	})
	auditor := audit.NewWriter(db, logger)
	auditor.Start(ctx)
	defer auditor.Close()

	lock := singleton.NewFileLock(cfg.BackgroundTasksLockfile)
	evaluator := alertrules.NewEvaluator(db, logger, 30*time.Second, nil)
	runner := background.New(lock, auditor, evaluator, pool, background.Config{
		RetentionDays:        cfg.AuditLogRetentionDays,
		CleanupIntervalHours: cfg.AuditLogCleanupIntervalHours,
		CleanupBatchSize:     int32(cfg.AuditLogCleanupBatchSize),
	}, logger)

	runner.Run(ctx)
	return nil
}

type hubPublisher struct {
	hub *wshub.Hub
}

func (p hubPublisher) PublishResourceUpdate(ev watcher.Event) {
	update := wshub.ResourceUpdate{
		ResourceType: ev.Kind,
		ClusterID:    ev.ClusterID,
		Namespace:    ev.Namespace,
		EventType:    ev.EventType,
		ResourceData: ev.Snapshot,
	}
	p.hub.BroadcastToCluster(ev.ClusterID, update)
	if ev.Namespace != "" {
		p.hub.BroadcastToNamespace(ev.ClusterID, ev.Namespace, update)
	}
	p.hub.BroadcastToKind(ev.ClusterID, ev.Kind, update)
}
