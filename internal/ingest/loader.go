package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/observability"
)

// Catalog records ingest runs so the status surface can report dataset
// freshness.
type Catalog interface {
	StartIngestRun(ctx context.Context, table, source string) (int64, error)
	CompleteIngestRun(ctx context.Context, runID int64, rows int64, runErr error) error
}

// Service fetches the product CSVs and loads them into SQLite, one ingest
// run record per table.
type Service struct {
	DB         *sql.DB
	Catalog    Catalog
	HTTPClient *http.Client
	Logger     *slog.Logger
	BatchSize  int
	Clock      func() time.Time
}

// TableResult describes one table's load. Err keeps the original error for
// callers, Error carries it across JSON.
type TableResult struct {
	Table  string `json:"table"`
	Source string `json:"source"`
	Rows   int64  `json:"rows"`
	Error  string `json:"error,omitempty"`

	Err error `json:"-"`
}

// SourcesFromConfig maps each dataset table to its configured CSV source.
func SourcesFromConfig(cfg config.IngestConfig) map[string]string {
	return map[string]string{
		TableEligibility: cfg.EligibilityURL,
		TableTotalSales:  cfg.TotalSalesURL,
		TableAdSales:     cfg.AdSalesURL,
	}
}

// LoadAll loads every table that has an entry in sources, in dataset order.
// A failed table does not stop the others; failures are joined into the
// returned error.
func (s *Service) LoadAll(ctx context.Context, sources map[string]string, reset bool) ([]TableResult, error) {
	s.ensureDefaults()

	results := make([]TableResult, 0, len(tableSpecs))
	var failures []string
	for _, spec := range tableSpecs {
		source, ok := sources[spec.Name]
		if !ok || strings.TrimSpace(source) == "" {
			continue
		}
		result, err := s.LoadTable(ctx, spec.Name, source, reset)
		results = append(results, result)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", spec.Name, err))
		}
	}
	if len(failures) > 0 {
		return results, fmt.Errorf("ingest encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	return results, nil
}

// LoadTable fetches one table's CSV from source and imports it.
func (s *Service) LoadTable(ctx context.Context, table, source string, reset bool) (TableResult, error) {
	s.ensureDefaults()
	spec, ok := SpecFor(table)
	if !ok {
		err := fmt.Errorf("unknown table %q, expected one of: %s", table, strings.Join(TableNames(), ", "))
		return TableResult{Table: table, Source: source, Error: err.Error(), Err: err}, err
	}
	body, err := Fetch(ctx, s.HTTPClient, source)
	if err != nil {
		result := s.finishRun(ctx, spec, source, 0, 0, err)
		return result, err
	}
	defer body.Close()
	return s.importStream(ctx, spec, source, body, reset)
}

// LoadTableFrom imports CSV bytes supplied by the caller, for uploads that
// never touch a URL. source is a label for the run record.
func (s *Service) LoadTableFrom(ctx context.Context, table, source string, r io.Reader, reset bool) (TableResult, error) {
	s.ensureDefaults()
	spec, ok := SpecFor(table)
	if !ok {
		err := fmt.Errorf("unknown table %q, expected one of: %s", table, strings.Join(TableNames(), ", "))
		return TableResult{Table: table, Source: source, Error: err.Error(), Err: err}, err
	}
	return s.importStream(ctx, spec, source, r, reset)
}

// Reset clears a table without dropping it, keeping the schema and indexes
// in place for the next load.
func (s *Service) Reset(ctx context.Context, table string) error {
	s.ensureDefaults()
	spec, ok := SpecFor(table)
	if !ok {
		return fmt.Errorf("unknown table %q, expected one of: %s", table, strings.Join(TableNames(), ", "))
	}
	if s.DB == nil {
		return fmt.Errorf("database handle is required")
	}
	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q", spec.Name)); err != nil {
		return fmt.Errorf("reset %s: %w", spec.Name, err)
	}
	return nil
}

func (s *Service) importStream(ctx context.Context, spec TableSpec, source string, r io.Reader, reset bool) (TableResult, error) {
	if s.DB == nil {
		err := fmt.Errorf("database handle is required")
		return TableResult{Table: spec.Name, Source: source, Error: err.Error(), Err: err}, err
	}
	start := s.Clock()
	runID := s.startRun(ctx, spec, source)

	if reset {
		if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q", spec.Name)); err != nil {
			err = fmt.Errorf("reset %s: %w", spec.Name, err)
			return s.completeRun(ctx, spec, source, runID, 0, err), err
		}
	}

	rows, err := ImportCSV(ctx, s.DB, spec, r, s.BatchSize)
	result := s.completeRun(ctx, spec, source, runID, rows, err)
	if err != nil {
		return result, err
	}

	s.refreshGauges(ctx, spec)
	s.Logger.InfoContext(ctx, "table ingested",
		slog.String("table", spec.Name),
		slog.String("source", source),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", s.Clock().Sub(start)),
	)
	return result, nil
}

func (s *Service) startRun(ctx context.Context, spec TableSpec, source string) int64 {
	if s.Catalog == nil {
		return 0
	}
	runID, err := s.Catalog.StartIngestRun(ctx, spec.Name, source)
	if err != nil {
		s.Logger.WarnContext(ctx, "recording ingest run failed", slog.String("table", spec.Name), slog.Any("error", err))
		return 0
	}
	return runID
}

func (s *Service) completeRun(ctx context.Context, spec TableSpec, source string, runID, rows int64, runErr error) TableResult {
	if s.Catalog != nil && runID != 0 {
		if err := s.Catalog.CompleteIngestRun(ctx, runID, rows, runErr); err != nil {
			s.Logger.WarnContext(ctx, "completing ingest run failed", slog.String("table", spec.Name), slog.Any("error", err))
		}
	}
	observability.ObserveIngestRun(spec.Name, int(rows), runErr)
	result := TableResult{Table: spec.Name, Source: source, Rows: rows, Err: runErr}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	return result
}

// finishRun records a run that failed before any CSV bytes arrived.
func (s *Service) finishRun(ctx context.Context, spec TableSpec, source string, runID, rows int64, runErr error) TableResult {
	if runID == 0 && s.Catalog != nil {
		runID = s.startRun(ctx, spec, source)
	}
	return s.completeRun(ctx, spec, source, runID, rows, runErr)
}

func (s *Service) refreshGauges(ctx context.Context, spec TableSpec) {
	var count int64
	if err := s.DB.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", spec.Name)).Scan(&count); err != nil {
		s.Logger.WarnContext(ctx, "counting table rows failed", slog.String("table", spec.Name), slog.Any("error", err))
		return
	}
	observability.SetDatasetRows(spec.Name, count)
	observability.SetDatasetLastIngest(s.Clock())
}

func (s *Service) ensureDefaults() {
	if s.HTTPClient == nil {
		s.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.BatchSize <= 0 {
		s.BatchSize = defaultBatchSize
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
}
