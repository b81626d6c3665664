package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/catalog"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/ingest"
	"github.com/askdb/askdb/internal/maintenance"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/snapshot"
)

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func testConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("askdb-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

// fakeCatalog is an in-memory catalog.Repository for handler tests.
type fakeCatalog struct {
	tables     []catalog.Table
	samples    map[string]catalog.Sample
	stats      catalog.DatabaseStats
	latestRuns []catalog.IngestRun
	healthErr  error
	listErr    error
	sampleErr  error
}

func newFakeCatalog() *fakeCatalog {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	done := now.Add(2 * time.Minute)
	return &fakeCatalog{
		tables: []catalog.Table{
			{
				Name: "product_total_sales",
				Columns: []catalog.Column{
					{Name: "date", Type: "TEXT"},
					{Name: "item_id", Type: "INTEGER"},
					{Name: "total_sales", Type: "REAL"},
					{Name: "total_units_ordered", Type: "INTEGER"},
				},
				RowCount: 2,
			},
		},
		samples: map[string]catalog.Sample{
			"product_total_sales": {
				Columns: []string{"date", "item_id", "total_sales", "total_units_ordered"},
				Rows:    [][]any{{"2025-06-01", int64(25), 512.5, int64(40)}},
			},
		},
		stats: catalog.DatabaseStats{PageCount: 10, PageSize: 4096, SizeBytes: 40960},
		latestRuns: []catalog.IngestRun{
			{ID: 1, TableName: "product_total_sales", Source: "demo", Rows: 2, Status: catalog.RunStatusCompleted, StartedAt: now, CompletedAt: &done},
		},
	}
}

func (f *fakeCatalog) HealthCheck(context.Context) error { return f.healthErr }

func (f *fakeCatalog) RequireTables(context.Context, ...string) error { return f.healthErr }

func (f *fakeCatalog) ListTables(context.Context) ([]catalog.Table, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tables, nil
}

func (f *fakeCatalog) GetTable(_ context.Context, name string) (catalog.Table, error) {
	for _, table := range f.tables {
		if table.Name == name {
			return table, nil
		}
	}
	return catalog.Table{}, catalog.ErrNotFound
}

func (f *fakeCatalog) SampleRows(_ context.Context, table string, limit int) (catalog.Sample, error) {
	if f.sampleErr != nil {
		return catalog.Sample{}, f.sampleErr
	}
	sample, ok := f.samples[table]
	if !ok {
		return catalog.Sample{}, catalog.ErrNotFound
	}
	if limit > 0 && limit < len(sample.Rows) {
		sample.Rows = sample.Rows[:limit]
	}
	return sample, nil
}

func (f *fakeCatalog) DatabaseStats(context.Context) (catalog.DatabaseStats, error) {
	return f.stats, nil
}

func (f *fakeCatalog) StartIngestRun(context.Context, string, string) (int64, error) { return 1, nil }

func (f *fakeCatalog) CompleteIngestRun(context.Context, int64, int64, error) error { return nil }

func (f *fakeCatalog) ListIngestRuns(context.Context, int) ([]catalog.IngestRun, error) {
	return f.latestRuns, nil
}

func (f *fakeCatalog) LatestIngestRuns(context.Context) ([]catalog.IngestRun, error) {
	return f.latestRuns, nil
}

func (f *fakeCatalog) RecordArtifact(context.Context, catalog.RecordArtifactInput) (catalog.Artifact, error) {
	return catalog.Artifact{}, nil
}

func (f *fakeCatalog) ListArtifacts(context.Context, string, int) ([]catalog.Artifact, error) {
	return nil, nil
}

func (f *fakeCatalog) StaleArtifacts(context.Context, string, int, time.Time) ([]catalog.Artifact, error) {
	return nil, nil
}

func (f *fakeCatalog) DeleteArtifact(context.Context, int64) error { return nil }

type fakeAgent struct {
	answer       agent.Answer
	askErr       error
	translation  nl2sql.Result
	translateErr error
	events       []agent.Event
	streamErr    error
	lastQuestion string
}

func (f *fakeAgent) Ask(_ context.Context, question string) (agent.Answer, error) {
	f.lastQuestion = question
	return f.answer, f.askErr
}

func (f *fakeAgent) AskStream(_ context.Context, question string, emit func(agent.Event) error) error {
	f.lastQuestion = question
	for _, event := range f.events {
		if err := emit(event); err != nil {
			return err
		}
	}
	return f.streamErr
}

func (f *fakeAgent) Translate(_ context.Context, question string) (nl2sql.Result, error) {
	f.lastQuestion = question
	return f.translation, f.translateErr
}

type fakeEngine struct {
	result      query.Result
	err         error
	lastRequest query.Request
}

func (f *fakeEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.lastRequest = request
	return f.result, f.err
}

type fakeIngestRunner struct {
	result     ingest.TableResult
	err        error
	lastTable  string
	lastSource string
	lastReset  bool
	lastBody   []byte
}

func (f *fakeIngestRunner) LoadTable(_ context.Context, table, source string, reset bool) (ingest.TableResult, error) {
	f.lastTable, f.lastSource, f.lastReset = table, source, reset
	return f.result, f.err
}

func (f *fakeIngestRunner) LoadTableFrom(_ context.Context, table, source string, r io.Reader, reset bool) (ingest.TableResult, error) {
	f.lastTable, f.lastSource, f.lastReset = table, source, reset
	f.lastBody, _ = io.ReadAll(r)
	return f.result, f.err
}

type fakeMaintenance struct {
	vacuum    maintenance.VacuumSummary
	backup    maintenance.BackupSummary
	snapshots snapshot.Summary
	retention maintenance.RetentionSummary
	integrity maintenance.IntegritySummary
	err       error
	calls     []string
}

func (f *fakeMaintenance) RunVacuumOnce(context.Context) (maintenance.VacuumSummary, error) {
	f.calls = append(f.calls, "vacuum")
	return f.vacuum, f.err
}

func (f *fakeMaintenance) RunBackupOnce(context.Context) (maintenance.BackupSummary, error) {
	f.calls = append(f.calls, "backup")
	return f.backup, f.err
}

func (f *fakeMaintenance) RunSnapshotOnce(context.Context) (snapshot.Summary, error) {
	f.calls = append(f.calls, "snapshot")
	return f.snapshots, f.err
}

func (f *fakeMaintenance) RunRetentionOnce(context.Context) (maintenance.RetentionSummary, error) {
	f.calls = append(f.calls, "retention")
	return f.retention, f.err
}

func (f *fakeMaintenance) RunIntegrityCheckOnce(context.Context) (maintenance.IntegritySummary, error) {
	f.calls = append(f.calls, "integrity")
	return f.integrity, f.err
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := testConfig(t, map[string]string{"ASKDB_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:analyst:query_reader")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Catalog:        newFakeCatalog(),
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/tables", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/v1/tables", nil)
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body=%s", authResp.Code, authResp.Body.String())
	}
}

func TestRoleEnforcement(t *testing.T) {
	cfg := testConfig(t, map[string]string{"ASKDB_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("loader:loader-job:ingest_writer")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Catalog:        newFakeCatalog(),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/tables", nil)
	req.Header.Set("X-API-Key", "loader")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckDatabaseReportsBrokenCatalog(t *testing.T) {
	cat := newFakeCatalog()
	cat.healthErr = errors.New("file missing")

	if err := CheckDatabase(cat)(context.Background()); err == nil {
		t.Fatal("expected readiness error")
	}
	cat.healthErr = nil
	if err := CheckDatabase(cat)(context.Background()); err != nil {
		t.Fatalf("readiness error: %v", err)
	}
}

func TestUIHandlerServesNonAPIRoutes(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		UI: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "<html>ok</html>")
		}),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}
