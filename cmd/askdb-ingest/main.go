package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	catalogsqlite "github.com/askdb/askdb/internal/catalog/sqlite"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/demo"
	"github.com/askdb/askdb/internal/ingest"
	"github.com/askdb/askdb/internal/migrations"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/snapshot"
	"github.com/askdb/askdb/internal/storage"
	fsstore "github.com/askdb/askdb/internal/storage/fs"
	s3store "github.com/askdb/askdb/internal/storage/s3"
)

func main() {
	useDemo := flag.Bool("demo", false, "generate a deterministic demo dataset instead of fetching the configured sources")
	keepFiles := flag.Bool("keep-files", false, "keep generated demo CSVs in ./demo_data")
	reset := flag.Bool("reset", false, "delete existing rows before loading")
	tablesFlag := flag.String("tables", "", "comma-separated subset of tables to load (default: all)")
	sampleRows := flag.Int("sample-rows", 3, "rows to print per table after loading; 0 disables")
	takeSnapshot := flag.Bool("snapshot", false, "export parquet snapshots after loading")
	flag.Parse()

	cfg, err := config.LoadFromEnv("askdb-ingest")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := catalogsqlite.Open(ctx, catalogsqlite.DBConfig{
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

	applied, err := migrations.NewRunner().Up(ctx, db, 0)
	if err != nil {
		logger.Error("migrations failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations up to date", slog.Int("applied", applied), slog.String("database", cfg.Database.Path))

	sources := ingest.SourcesFromConfig(cfg.Ingest)
	if *useDemo {
		dir := "demo_data"
		if !*keepFiles {
			dir, err = os.MkdirTemp("", "askdb-demo-")
			if err != nil {
				logger.Error("failed to create demo dir", slog.Any("error", err))
				os.Exit(1)
			}
			defer func() { _ = os.RemoveAll(dir) }()
		}
		dataset := demo.NewGenerator(demo.Config{}).Dataset()
		sources, err = demo.WriteCSV(dir, dataset)
		if err != nil {
			logger.Error("failed to write demo dataset", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("demo dataset generated",
			slog.String("dir", dir),
			slog.Int("eligibility_rows", len(dataset.Eligibility)),
			slog.Int("total_sales_rows", len(dataset.TotalSales)),
			slog.Int("ad_sales_rows", len(dataset.AdSales)),
		)
	}

	if subset := strings.TrimSpace(*tablesFlag); subset != "" {
		sources, err = filterSources(sources, subset)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	repo := catalogsqlite.NewRepository(db)
	loader := &ingest.Service{
		DB:         db,
		Catalog:    repo,
		HTTPClient: &http.Client{Timeout: cfg.Ingest.HTTPTimeout},
		Logger:     logger,
		BatchSize:  cfg.Ingest.BatchSize,
	}

	results, loadErr := loader.LoadAll(ctx, sources, *reset)
	for _, result := range results {
		if result.Err != nil {
			logger.Error("table load failed",
				slog.String("table", result.Table),
				slog.String("source", result.Source),
				slog.String("error", result.Error),
			)
			continue
		}
		logger.Info("table loaded",
			slog.String("table", result.Table),
			slog.String("source", result.Source),
			slog.Int64("rows", result.Rows),
		)
	}

	if *sampleRows > 0 {
		printVerification(ctx, repo, results, *sampleRows)
	}

	if *takeSnapshot && loadErr == nil {
		if err := exportSnapshots(ctx, cfg, db, repo, logger); err != nil {
			logger.Error("snapshot export failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if loadErr != nil {
		logger.Error("ingest finished with failures", slog.Any("error", loadErr))
		os.Exit(1)
	}
	logger.Info("ingest complete", slog.Int("tables", len(results)))
}

func filterSources(sources map[string]string, subset string) (map[string]string, error) {
	filtered := make(map[string]string)
	for _, name := range strings.Split(subset, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		source, ok := sources[name]
		if !ok {
			return nil, fmt.Errorf("unknown table %q, expected one of: %s", name, strings.Join(ingest.TableNames(), ", "))
		}
		filtered[name] = source
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("-tables selected nothing to load")
	}
	return filtered, nil
}

// printVerification shows what actually landed: row counts and a few sample
// rows per successfully loaded table.
func printVerification(ctx context.Context, repo *catalogsqlite.Repository, results []ingest.TableResult, limit int) {
	for _, result := range results {
		if result.Err != nil {
			continue
		}
		table, err := repo.GetTable(ctx, result.Table)
		if err != nil {
			fmt.Printf("%s: verification failed: %v\n", result.Table, err)
			continue
		}
		fmt.Printf("\n%s (%d rows)\n", table.Name, table.RowCount)

		sample, err := repo.SampleRows(ctx, result.Table, limit)
		if err != nil {
			fmt.Printf("  sample unavailable: %v\n", err)
			continue
		}
		fmt.Printf("  %s\n", strings.Join(sample.Columns, " | "))
		for _, row := range sample.Rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				cells = append(cells, fmt.Sprintf("%v", cell))
			}
			fmt.Printf("  %s\n", strings.Join(cells, " | "))
		}
	}
}

func exportSnapshots(ctx context.Context, cfg config.Config, db *sql.DB, repo *catalogsqlite.Repository, logger *slog.Logger) error {
	var store storage.ObjectStore
	var err error
	if cfg.ObjectStore.Enabled() {
		store, err = s3store.New(ctx, cfg.ObjectStore)
	} else {
		store, err = fsstore.New(cfg.ObjectStore.LocalDir)
	}
	if err != nil {
		return err
	}

	exporter := &snapshot.Exporter{
		DB:          db,
		ObjectStore: store,
		Catalog:     repo,
		Logger:      logger,
	}
	summary, err := exporter.ExportAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("snapshots exported",
		slog.Int("tables", summary.TablesExported),
		slog.Int64("rows", summary.RowsExported),
		slog.Int64("bytes", summary.BytesWritten),
	)
	return nil
}
