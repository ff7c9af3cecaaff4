// Command server runs the agenthub MCP server: an authenticated JSON-RPC
// tool surface over projects, branches, tasks and the four-tier context
// hierarchy, backed by Postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phamhung075/4genthub-sub028/internal/api"
	"github.com/phamhung075/4genthub-sub028/internal/config"
	"github.com/phamhung075/4genthub-sub028/internal/core"
	"github.com/phamhung075/4genthub-sub028/internal/database"
	"github.com/phamhung075/4genthub-sub028/internal/database/migration"
	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/facade"
	"github.com/phamhung075/4genthub-sub028/internal/repository/postgres"
	"github.com/phamhung075/4genthub-sub028/internal/services"
	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/cache"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

const shutdownGrace = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewStandardLogger("boot").Fatal("Failed to load configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger := observability.NewStandardLoggerWithLevel("agenthub", cfg.Logging.Level)

	var metrics observability.MetricsClient
	if cfg.Metrics.Enabled {
		metrics = observability.NewPrometheusMetrics(cfg.Metrics.Namespace)
	} else {
		metrics = observability.NewNoopMetrics()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		manager, err := migration.NewManager(db.DB(), migration.Config{
			MigrationsPath: cfg.Database.MigrationsPath,
			Timeout:        2 * time.Minute,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize migrations", map[string]interface{}{
				"error": err.Error(),
			})
		}
		if err := manager.Run(ctx); err != nil {
			logger.Fatal("Migrations failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	authService := auth.NewService(cfg.Auth, logger)
	dispatcher := events.NewDispatcher(logger, metrics)
	repos := postgres.NewRepositories(db.DB(), logger, metrics)

	inheritanceCache, err := core.NewInheritanceCache(cfg.Cache.InheritanceCacheSize)
	if err != nil {
		logger.Fatal("Failed to build inheritance cache", map[string]interface{}{
			"error": err.Error(),
		})
	}
	contexts := core.NewContextManager(repos, inheritanceCache, dispatcher, logger, metrics)

	worker := core.NewDelegationWorker(contexts, repos, logger, metrics,
		2*time.Second, cfg.Limits.DelegationMaxTries)
	worker.Start(ctx)
	defer worker.Stop()

	var sharedCache cache.Cache
	if cfg.Cache.UseRedis && cfg.Redis.Address != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", map[string]interface{}{
				"error": err.Error(),
			})
		}
		sharedCache = redisCache
	} else {
		sharedCache = cache.NewMemoryCache(cfg.Cache.SharedCacheSize, cfg.Cache.SharedCacheTTL)
	}
	defer sharedCache.Close()

	svcs := services.New(services.Deps{
		DB:         db,
		Repos:      repos,
		Contexts:   contexts,
		Dispatcher: dispatcher,
		Cache:      sharedCache,
		Logger:     logger,
		Metrics:    metrics,

		MaxDependencyEdges: cfg.Limits.MaxDependencyEdges,
	})

	facades := facade.NewFactory(svcs, contexts, worker,
		cfg.Cache.FacadeCacheSize, cfg.Cache.FacadeCacheTTL)

	server, err := api.NewServer(cfg, facades, dispatcher, db, authService, logger, metrics)
	if err != nil {
		logger.Fatal("Failed to build API server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", nil)
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", map[string]interface{}{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	logger.Info("Server stopped", nil)
}
