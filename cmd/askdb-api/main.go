package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/api/uistatic"
	"github.com/askdb/askdb/internal/auth"
	catalogsqlite "github.com/askdb/askdb/internal/catalog/sqlite"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/ingest"
	"github.com/askdb/askdb/internal/maintenance"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	querysqlite "github.com/askdb/askdb/internal/query/sqlite"
	"github.com/askdb/askdb/internal/snapshot"
	"github.com/askdb/askdb/internal/storage"
	fsstore "github.com/askdb/askdb/internal/storage/fs"
	s3store "github.com/askdb/askdb/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("askdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, err := catalogsqlite.Open(context.Background(), catalogsqlite.DBConfig{
		Path:            cfg.Database.Path,
		BusyTimeout:     cfg.Database.BusyTimeout,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	catalogRepo := catalogsqlite.NewRepository(db)
	queryEngine := querysqlite.NewEngine(db)

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Enabled() {
		objectStore, err = s3store.New(context.Background(), cfg.ObjectStore)
	} else {
		objectStore, err = fsstore.New(cfg.ObjectStore.LocalDir)
	}
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	exporter := &snapshot.Exporter{
		DB:          db,
		ObjectStore: objectStore,
		Catalog:     catalogRepo,
		Logger:      logger,
	}
	maintenanceService := &maintenance.Service{
		DB:          db,
		Catalog:     catalogRepo,
		ObjectStore: objectStore,
		Snapshots:   exporter,
		Config: maintenance.Config{
			CheckpointInterval: cfg.Maintenance.CheckpointInterval,
			RetentionInterval:  cfg.Maintenance.RetentionInterval,
			KeepArtifacts:      cfg.Maintenance.KeepArtifacts,
			SafetyAge:          cfg.Maintenance.SafetyAge,
			BackupDir:          cfg.Maintenance.BackupDir,
			DatabaseName:       databaseName(cfg.Database.Path),
		},
		Logger: logger,
	}

	ingestService := &ingest.Service{
		DB:        db,
		Catalog:   catalogRepo,
		Logger:    logger,
		BatchSize: cfg.Ingest.BatchSize,
	}

	deps := api.Dependencies{
		Logger:           logger,
		Catalog:          catalogRepo,
		QueryEngine:      queryEngine,
		QueryRowLimit:    cfg.Query.RowLimit,
		QueryAllowWrites: cfg.Query.AllowWrites,
		Ingest:           ingestService,
		Maintenance:      maintenanceService,
		SchemaSampleRows: cfg.UI.SchemaSampleRows,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabasePath(cfg),
			api.CheckDatabase(catalogRepo),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.UI.Enabled {
		deps.UI = uistatic.Handler()
	}

	// A translator that cannot be built leaves ask/translate unconfigured in
	// dev so the rest of the API stays usable. Prod refuses to start.
	translator, err := nl2sql.NewTranslator(cfg.AI)
	if err != nil {
		if cfg.Profile == config.ProfileProd {
			logger.Error("failed to initialize query translator", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Warn("query translator unavailable, ask endpoints disabled", slog.Any("error", err))
	} else {
		deps.Agent = agent.NewService(catalogRepo, translator, queryEngine, logger, agent.Config{
			Provider:    cfg.AI.Provider,
			SampleRows:  cfg.UI.SchemaSampleRows,
			RowLimit:    cfg.Query.RowLimit,
			AllowWrites: cfg.Query.AllowWrites,
		})
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
		if err := maintenanceService.Run(ctx); err != nil {
			logger.Error("maintenance loop stopped", slog.Any("error", err))
		}
	}()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
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

// databaseName turns the configured database path into the label used for
// backup artifacts, e.g. "data/product_data.db" -> "product_data".
func databaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
