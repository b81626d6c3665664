package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/askdb/askdb/internal/catalog"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestStartIngestRun(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO ingest_runs (table_name, source, rows_loaded, status, error, started_at)
VALUES (?, ?, 0, ?, '', ?)`)).
		WithArgs("product_total_sales", "https://example.com/sales.csv", catalog.RunStatusRunning, fixedNow.Unix()).
		WillReturnResult(sqlmock.NewResult(7, 1))

	runID, err := repo.StartIngestRun(context.Background(), "product_total_sales", "https://example.com/sales.csv")
	if err != nil {
		t.Fatalf("StartIngestRun() error = %v", err)
	}
	if runID != 7 {
		t.Fatalf("runID = %d, want 7", runID)
	}
	assertSQLMock(t, mock)
}

func TestCompleteIngestRunRecordsFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
UPDATE ingest_runs
SET rows_loaded = ?, status = ?, error = ?, completed_at = ?
WHERE id = ?`)).
		WithArgs(int64(0), catalog.RunStatusFailed, "fetch source: boom", fixedNow.Unix(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CompleteIngestRun(context.Background(), 7, 0, errors.New("fetch source: boom"))
	if err != nil {
		t.Fatalf("CompleteIngestRun() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestCompleteIngestRunNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
UPDATE ingest_runs
SET rows_loaded = ?, status = ?, error = ?, completed_at = ?
WHERE id = ?`)).
		WithArgs(int64(12), catalog.RunStatusCompleted, "", fixedNow.Unix(), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CompleteIngestRun(context.Background(), 99, 12, nil)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestLatestIngestRuns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)
	started := fixedNow.Add(-time.Minute).Unix()
	completed := fixedNow.Unix()

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT r.id, r.table_name, r.source, r.rows_loaded, r.status, r.error, r.started_at, r.completed_at
FROM ingest_runs AS r
JOIN (
    SELECT table_name, MAX(id) AS max_id
    FROM ingest_runs
    GROUP BY table_name
) AS latest ON latest.max_id = r.id
ORDER BY r.table_name ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "table_name", "source", "rows_loaded", "status", "error", "started_at", "completed_at",
		}).
			AddRow(int64(3), "product_ad_sales", "file.csv", int64(702), catalog.RunStatusCompleted, "", started, completed).
			AddRow(int64(4), "product_eligibility", "file2.csv", int64(0), catalog.RunStatusRunning, "", started, nil))

	runs, err := repo.LatestIngestRuns(context.Background())
	if err != nil {
		t.Fatalf("LatestIngestRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("run count = %d, want 2", len(runs))
	}
	if runs[0].TableName != "product_ad_sales" || runs[0].Rows != 702 {
		t.Fatalf("runs[0] = %#v", runs[0])
	}
	if runs[0].CompletedAt == nil || runs[0].CompletedAt.Unix() != completed {
		t.Fatalf("runs[0].CompletedAt = %#v", runs[0].CompletedAt)
	}
	if runs[1].CompletedAt != nil {
		t.Fatalf("runs[1].CompletedAt = %#v, want nil for running run", runs[1].CompletedAt)
	}
	assertSQLMock(t, mock)
}

func TestGetTableDescribesColumnsAndCount(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT COUNT(*) FROM sqlite_master
WHERE type = 'table' AND name = ?`)).
		WithArgs("product_total_sales").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT name, type, "notnull", pk
FROM pragma_table_info(?)
ORDER BY cid ASC`)).
		WithArgs("product_total_sales").
		WillReturnRows(sqlmock.NewRows([]string{"name", "type", "notnull", "pk"}).
			AddRow("date", "TEXT", int64(0), int64(0)).
			AddRow("item_id", "INTEGER", int64(0), int64(0)).
			AddRow("total_sales", "REAL", int64(0), int64(0)).
			AddRow("total_units_ordered", "INTEGER", int64(0), int64(0)))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "product_total_sales"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(702)))

	table, err := repo.GetTable(context.Background(), "product_total_sales")
	if err != nil {
		t.Fatalf("GetTable() error = %v", err)
	}
	if table.RowCount != 702 {
		t.Fatalf("RowCount = %d", table.RowCount)
	}
	if len(table.Columns) != 4 {
		t.Fatalf("column count = %d", len(table.Columns))
	}
	if table.Columns[1].Name != "item_id" || table.Columns[1].Type != "INTEGER" {
		t.Fatalf("Columns[1] = %#v", table.Columns[1])
	}
	assertSQLMock(t, mock)
}

func TestGetTableUnknownReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT COUNT(*) FROM sqlite_master
WHERE type = 'table' AND name = ?`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	_, err := repo.GetTable(context.Background(), "nope")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestGetTableRejectsHostileIdentifierWithoutQuerying(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	_, err := repo.GetTable(context.Background(), `x"; DROP TABLE y; --`)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	_, err = repo.GetTable(context.Background(), "ingest_runs")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("bookkeeping table error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestSampleRowsNormalizesBytes(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT COUNT(*) FROM sqlite_master
WHERE type = 'table' AND name = ?`)).
		WithArgs("product_eligibility").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "product_eligibility" LIMIT 2`)).
		WillReturnRows(sqlmock.NewRows([]string{"eligibility_datetime_utc", "item_id", "eligibility", "message"}).
			AddRow([]byte("2025-06-04 8:50:07"), int64(0), int64(1), nil).
			AddRow([]byte("2025-06-04 8:50:07"), int64(1), int64(0), []byte("listing missing")))

	sample, err := repo.SampleRows(context.Background(), "product_eligibility", 2)
	if err != nil {
		t.Fatalf("SampleRows() error = %v", err)
	}
	if len(sample.Rows) != 2 {
		t.Fatalf("row count = %d", len(sample.Rows))
	}
	if sample.Rows[0][0] != "2025-06-04 8:50:07" {
		t.Fatalf("Rows[0][0] = %#v, want string", sample.Rows[0][0])
	}
	if sample.Rows[1][3] != "listing missing" {
		t.Fatalf("Rows[1][3] = %#v", sample.Rows[1][3])
	}
	assertSQLMock(t, mock)
}

func TestDatabaseStats(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT pc.page_count, ps.page_size
FROM pragma_page_count() AS pc, pragma_page_size() AS ps`)).
		WillReturnRows(sqlmock.NewRows([]string{"page_count", "page_size"}).AddRow(int64(10), int64(4096)))

	stats, err := repo.DatabaseStats(context.Background())
	if err != nil {
		t.Fatalf("DatabaseStats() error = %v", err)
	}
	if stats.SizeBytes != 40960 {
		t.Fatalf("SizeBytes = %d", stats.SizeBytes)
	}
	assertSQLMock(t, mock)
}

func TestRecordArtifactRejectsUnknownKind(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	_, err := repo.RecordArtifact(context.Background(), catalog.RecordArtifactInput{Kind: "scratch"})
	if err == nil {
		t.Fatal("expected error for unknown artifact kind")
	}
	assertSQLMock(t, mock)
}

func TestRecordArtifact(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO artifacts (kind, table_name, path, size_bytes, record_count, created_at)
VALUES (?, ?, ?, ?, ?, ?)`)).
		WithArgs(catalog.ArtifactKindSnapshot, "product_ad_sales", "snapshots/date=2025-06-15/product_ad_sales-1.parquet", int64(2048), int64(702), fixedNow.Unix()).
		WillReturnResult(sqlmock.NewResult(5, 1))

	artifact, err := repo.RecordArtifact(context.Background(), catalog.RecordArtifactInput{
		Kind:        catalog.ArtifactKindSnapshot,
		TableName:   "product_ad_sales",
		Path:        "snapshots/date=2025-06-15/product_ad_sales-1.parquet",
		SizeBytes:   2048,
		RecordCount: 702,
	})
	if err != nil {
		t.Fatalf("RecordArtifact() error = %v", err)
	}
	if artifact.ID != 5 {
		t.Fatalf("ID = %d", artifact.ID)
	}
	if !artifact.CreatedAt.Equal(fixedNow) {
		t.Fatalf("CreatedAt = %v", artifact.CreatedAt)
	}
	assertSQLMock(t, mock)
}

func TestStaleArtifacts(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)
	cutoff := fixedNow.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT a.id, a.kind, a.table_name, a.path, a.size_bytes, a.record_count, a.created_at
FROM artifacts AS a
WHERE a.kind = ?
  AND a.created_at < ?
  AND a.id NOT IN (
      SELECT b.id FROM artifacts AS b
      WHERE b.kind = a.kind AND b.table_name = a.table_name
      ORDER BY b.id DESC
      LIMIT ?
  )
ORDER BY a.id ASC`)).
		WithArgs(catalog.ArtifactKindBackup, cutoff.Unix(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "table_name", "path", "size_bytes", "record_count", "created_at"}).
			AddRow(int64(1), catalog.ArtifactKindBackup, "", "backups/product_data-1.db", int64(8192), int64(0), cutoff.Add(-time.Hour).Unix()))

	stale, err := repo.StaleArtifacts(context.Background(), catalog.ArtifactKindBackup, 2, cutoff)
	if err != nil {
		t.Fatalf("StaleArtifacts() error = %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("stale count = %d", len(stale))
	}
	if stale[0].Path != "backups/product_data-1.db" {
		t.Fatalf("stale[0].Path = %q", stale[0].Path)
	}
	assertSQLMock(t, mock)
}

func TestDeleteArtifactNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newFixedClockRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM artifacts WHERE id = ?`)).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteArtifact(context.Background(), 404)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func newFixedClockRepository(db *sql.DB) *Repository {
	repo := NewRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
