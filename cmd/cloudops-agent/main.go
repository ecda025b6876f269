package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cloudops-agent/internal/agent/audit"
	"cloudops-agent/internal/agent/catalog"
	"cloudops-agent/internal/agent/chat"
	"cloudops-agent/internal/agent/dispatcher"
	"cloudops-agent/internal/agent/extractor"
	"cloudops-agent/internal/agent/gate"
	"cloudops-agent/internal/common/aws"
	"cloudops-agent/internal/common/camunda"
	"cloudops-agent/internal/common/config"
	"cloudops-agent/internal/common/database"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/common/observability"
	"cloudops-agent/internal/common/openstack"
	"cloudops-agent/internal/provider"
	"cloudops-agent/internal/server"

	co "cloudops-agent/internal/workers/cloud-ops/confirm-operation"
	po "cloudops-agent/internal/workers/cloud-ops/parse-operation"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting cloudops agent...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("provider", cfg.Provider.Driver),
	)

	obs, err := observability.New(observability.Options{
		ServiceName:    cfg.Observability.ServiceName,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
	})
	if err != nil {
		zapLog.Fatal("observability setup failed", zap.Error(err))
	}

	ctx := context.Background()
	var checks []server.Check

	// --- Audit store: PostgreSQL, or in-process when disabled ---
	var store audit.Store
	var pg *database.PostgresClient
	if cfg.Database.Postgres.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		if err := pg.EnsureSchema(ctx, audit.Schema); err != nil {
			zapLog.Fatal("audit schema setup failed", zap.Error(err))
		}
		store = audit.NewPostgresStore(pg.DB)
		checks = append(checks, server.Check{Name: "postgres", Ping: pg.Ping})
		zapLog.Info("PostgreSQL connected successfully")
	} else {
		store = audit.NewMemoryStore()
		zapLog.Warn("PostgreSQL disabled, interactions are kept in memory only")
	}

	// --- Elasticsearch mirror for interaction search ---
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}

		index := cfg.Database.Elasticsearch.Index
		if err := esClient.EnsureIndex(ctx, index, audit.IndexMapping); err != nil {
			zapLog.Fatal("interaction index setup failed", zap.Error(err))
		}
		store = audit.NewFanOut(store, log, audit.NewElasticsearchStore(esClient.Client, index))
		checks = append(checks, server.Check{Name: "elasticsearch", Ping: esClient.Ping})
		zapLog.Info("Elasticsearch connected successfully")
	}
	auditLog := audit.NewLog(store, log)

	// --- Provider ---
	var p provider.Provider
	switch cfg.Provider.Driver {
	case config.DriverMemory:
		p = provider.NewMemoryProvider(nil, provider.Quota{}, cfg.OpenStack.SubnetCIDR)
		zapLog.Warn("using in-memory provider, no cloud resources will be changed")
	default:
		p = openstack.New(cfg.OpenStack, config.GetDuration(cfg.Provider.Timeout), log)
	}

	if cfg.Database.Redis.Enabled {
		redis := database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()

		p = provider.NewCachedProvider(p, redis.Client, config.GetDuration(cfg.Database.Redis.UsageCacheTTL), log)
		checks = append(checks, server.Check{Name: "redis", Ping: redis.Ping})
		zapLog.Info("Redis connected successfully")
	}

	// --- Agent ---
	cat := catalog.New()
	disp := dispatcher.New(p, cat, config.GetDuration(cfg.Provider.Timeout), obs.Tracer(), log)

	var signer *gate.Signer
	if cfg.Confirmation.SigningKey != "" {
		signer = gate.NewSigner(cfg.Confirmation.SigningKey, config.GetDuration(cfg.Confirmation.TokenTTL))
	}
	gateOpts := []gate.Option{gate.WithSigner(signer, cfg.Confirmation.RequireToken)}

	notifier, err := aws.NewNotifier(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notifier setup failed", zap.Error(err))
	}
	if notifier != nil {
		gateOpts = append(gateOpts, gate.WithNotifier(notifier))
	}

	confirmGate := gate.New(cat, disp, auditLog, log, gateOpts...)
	chatService := chat.New(extractor.New(cfg.Catalog.Flavors), cat, disp, auditLog, signer, log)

	// --- Zeebe workers ---
	var workers []*camunda.Worker
	if cfg.Camunda.Enabled {
		var zeebe *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		checks = append(checks, server.Check{Name: "zeebe", Ping: zeebe.HealthCheck})
		zapLog.Info("Zeebe client connected successfully")

		parseHandler := po.NewHandler(
			&po.Config{Timeout: config.GetDuration(config.GetWorkerConfig(cfg, po.TaskType).Timeout)},
			chatService,
			&parseOperationLoggerAdapter{log},
		)
		workers = append(workers, camunda.StartWorker(zeebe.Zeebe(), po.TaskType,
			config.GetWorkerConfig(cfg, po.TaskType), parseHandler.Handle, log))

		confirmHandler := co.NewHandler(
			&co.Config{Timeout: config.GetDuration(config.GetWorkerConfig(cfg, co.TaskType).Timeout)},
			confirmGate,
			&confirmOperationLoggerAdapter{log},
		)
		workers = append(workers, camunda.StartWorker(zeebe.Zeebe(), co.TaskType,
			config.GetWorkerConfig(cfg, co.TaskType), confirmHandler.Handle, log))
	}

	// --- HTTP ---
	srv := server.New(server.Deps{
		Chat:          chatService,
		Gate:          confirmGate,
		Dispatcher:    disp,
		Catalog:       cat,
		Audit:         auditLog,
		Observability: obs,
		Checks:        checks,
		Logger:        log,
	})
	httpServer := srv.HTTPServer(cfg.Server)

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop()
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down observability", zap.Error(err))
	}

	zapLog.Info("cloudops agent stopped gracefully")
}

// Logger adapters for workers that declare their own Logger interfaces
type parseOperationLoggerAdapter struct {
	logger.Logger
}

func (a *parseOperationLoggerAdapter) With(fields map[string]interface{}) po.Logger {
	return &parseOperationLoggerAdapter{a.Logger.With(fields)}
}

type confirmOperationLoggerAdapter struct {
	logger.Logger
}

func (a *confirmOperationLoggerAdapter) With(fields map[string]interface{}) co.Logger {
	return &confirmOperationLoggerAdapter{a.Logger.With(fields)}
}
