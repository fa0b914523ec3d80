package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/runsql/runsql/internal/api"
	"github.com/runsql/runsql/internal/auth"
	"github.com/runsql/runsql/internal/config"
	"github.com/runsql/runsql/internal/driver"
	duckdbdriver "github.com/runsql/runsql/internal/driver/duckdb"
	pgdriver "github.com/runsql/runsql/internal/driver/postgres"
	"github.com/runsql/runsql/internal/exec"
	"github.com/runsql/runsql/internal/export"
	"github.com/runsql/runsql/internal/observability"
	"github.com/runsql/runsql/internal/statement"
	"github.com/runsql/runsql/internal/storage"
	s3store "github.com/runsql/runsql/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("runsql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Enabled {
		store, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
	}

	conns, cleanup, err := newConnProvider(cfg)
	if err != nil {
		logger.Error("failed to initialize database engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	deps := api.Dependencies{
		Logger: logger,
		Runner: &exec.Runner{
			Resolver: &statement.Resolver{Store: objectStore},
			Logger:   logger,
		},
		Conns:             conns,
		Readiness:         api.CombineReadinessChecks(api.CheckDatabaseConfig(cfg), conns.HealthCheck),
		DependencyTimeout: time.Second,
	}
	if objectStore != nil {
		deps.Exporter = &export.Exporter{Store: objectStore}
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("engine", string(cfg.Database.Engine)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

type connProvider struct {
	cfg config.Config
	db  *sql.DB
}

func newConnProvider(cfg config.Config) (*connProvider, func(), error) {
	switch cfg.Database.Engine {
	case config.EngineDuckDB:
		db, err := duckdbdriver.Open(cfg.Database.DuckDBPath)
		if err != nil {
			return nil, func() {}, err
		}
		return &connProvider{cfg: cfg, db: db}, func() { _ = db.Close() }, nil
	default:
		return &connProvider{cfg: cfg}, func() {}, nil
	}
}

// Acquire opens one backend session per request; the API layer closes it
// when the request finishes.
func (p *connProvider) Acquire(ctx context.Context) (driver.Conn, error) {
	if p.db != nil {
		return duckdbdriver.Acquire(ctx, p.db)
	}
	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.Database.ConnectTimeout)
	defer cancel()
	return pgdriver.Connect(connectCtx, p.cfg.Database.DSN)
}

func (p *connProvider) HealthCheck(ctx context.Context) error {
	if p.db != nil {
		return p.db.PingContext(ctx)
	}
	conn, err := pgdriver.Connect(ctx, p.cfg.Database.DSN)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}
