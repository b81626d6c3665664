package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/catalog"
)

// Tables the repository never reports as part of the dataset.
var bookkeepingTables = []string{"askdb_schema_migrations", "ingest_runs", "artifacts"}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,63}$`)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// RequireTables errors when any of the named tables is missing, naming the
// first absent one. Used by readiness so the API refuses traffic before the
// dataset is loaded.
func (r *Repository) RequireTables(ctx context.Context, names ...string) error {
	const query = `
SELECT COUNT(*) FROM sqlite_master
WHERE type = 'table' AND name = ?`
	for _, name := range names {
		var count int64
		if err := r.db.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
			return fmt.Errorf("check table %s: %w", name, err)
		}
		if count == 0 {
			return fmt.Errorf("table %s is missing: run askdb-ingest first", name)
		}
	}
	return nil
}

func (r *Repository) ListTables(ctx context.Context) ([]catalog.Table, error) {
	query := fmt.Sprintf(`
SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%%' AND name NOT IN (%s)
ORDER BY name ASC`, placeholders(len(bookkeepingTables)))

	args := make([]any, 0, len(bookkeepingTables))
	for _, name := range bookkeepingTables {
		args = append(args, name)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table names: %w", err)
	}

	tables := make([]catalog.Table, 0, len(names))
	for _, name := range names {
		table, err := r.describeTable(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (r *Repository) GetTable(ctx context.Context, name string) (catalog.Table, error) {
	if err := r.tableExists(ctx, name); err != nil {
		return catalog.Table{}, err
	}
	return r.describeTable(ctx, name)
}

func (r *Repository) SampleRows(ctx context.Context, table string, limit int) (catalog.Sample, error) {
	if limit <= 0 {
		return catalog.Sample{}, nil
	}
	if err := r.tableExists(ctx, table); err != nil {
		return catalog.Sample{}, err
	}

	query := fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdent(table), limit)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return catalog.Sample{}, fmt.Errorf("sample rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return catalog.Sample{}, fmt.Errorf("sample columns: %w", err)
	}

	sample := catalog.Sample{Columns: columns, Rows: make([][]any, 0, limit)}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return catalog.Sample{}, fmt.Errorf("scan sample row: %w", err)
		}
		sample.Rows = append(sample.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return catalog.Sample{}, fmt.Errorf("iterate sample rows: %w", err)
	}
	return sample, nil
}

func (r *Repository) DatabaseStats(ctx context.Context) (catalog.DatabaseStats, error) {
	const query = `
SELECT pc.page_count, ps.page_size
FROM pragma_page_count() AS pc, pragma_page_size() AS ps`

	var stats catalog.DatabaseStats
	if err := r.db.QueryRowContext(ctx, query).Scan(&stats.PageCount, &stats.PageSize); err != nil {
		return catalog.DatabaseStats{}, fmt.Errorf("database stats: %w", err)
	}
	stats.SizeBytes = stats.PageCount * stats.PageSize
	return stats, nil
}

func (r *Repository) StartIngestRun(ctx context.Context, table, source string) (int64, error) {
	const query = `
INSERT INTO ingest_runs (table_name, source, rows_loaded, status, error, started_at)
VALUES (?, ?, 0, ?, '', ?)`

	result, err := r.db.ExecContext(ctx, query, table, source, catalog.RunStatusRunning, r.now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("start ingest run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("start ingest run id: %w", err)
	}
	return runID, nil
}

func (r *Repository) CompleteIngestRun(ctx context.Context, runID int64, rowCount int64, runErr error) error {
	status := catalog.RunStatusCompleted
	errText := ""
	if runErr != nil {
		status = catalog.RunStatusFailed
		errText = runErr.Error()
	}

	const query = `
UPDATE ingest_runs
SET rows_loaded = ?, status = ?, error = ?, completed_at = ?
WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, rowCount, status, errText, r.now().UTC().Unix(), runID)
	if err != nil {
		return fmt.Errorf("complete ingest run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete ingest run rows affected: %w", err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *Repository) ListIngestRuns(ctx context.Context, limit int) ([]catalog.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
SELECT id, table_name, source, rows_loaded, status, error, started_at, completed_at
FROM ingest_runs
ORDER BY id DESC
LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingest runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanIngestRuns(rows)
}

func (r *Repository) LatestIngestRuns(ctx context.Context) ([]catalog.IngestRun, error) {
	const query = `
SELECT r.id, r.table_name, r.source, r.rows_loaded, r.status, r.error, r.started_at, r.completed_at
FROM ingest_runs AS r
JOIN (
    SELECT table_name, MAX(id) AS max_id
    FROM ingest_runs
    GROUP BY table_name
) AS latest ON latest.max_id = r.id
ORDER BY r.table_name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest ingest runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanIngestRuns(rows)
}

func (r *Repository) RecordArtifact(ctx context.Context, in catalog.RecordArtifactInput) (catalog.Artifact, error) {
	if in.Kind != catalog.ArtifactKindSnapshot && in.Kind != catalog.ArtifactKindBackup {
		return catalog.Artifact{}, fmt.Errorf("record artifact: unknown kind %q", in.Kind)
	}

	createdAt := r.now().UTC()
	const query = `
INSERT INTO artifacts (kind, table_name, path, size_bytes, record_count, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, in.Kind, in.TableName, in.Path, in.SizeBytes, in.RecordCount, createdAt.Unix())
	if err != nil {
		return catalog.Artifact{}, fmt.Errorf("record artifact: %w", err)
	}
	artifactID, err := result.LastInsertId()
	if err != nil {
		return catalog.Artifact{}, fmt.Errorf("record artifact id: %w", err)
	}
	return catalog.Artifact{
		ID:          artifactID,
		Kind:        in.Kind,
		TableName:   in.TableName,
		Path:        in.Path,
		SizeBytes:   in.SizeBytes,
		RecordCount: in.RecordCount,
		CreatedAt:   createdAt.Truncate(time.Second),
	}, nil
}

func (r *Repository) ListArtifacts(ctx context.Context, kind string, limit int) ([]catalog.Artifact, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, kind, table_name, path, size_bytes, record_count, created_at
FROM artifacts
WHERE kind = ?
ORDER BY id DESC
LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanArtifacts(rows)
}

/// StaleArtifacts returns retention candidates: artifacts of the given kind
// older than the cutoff, excluding the newest keep entries per table.
func (r *Repository) StaleArtifacts(ctx context.Context, kind string, keep int, olderThan time.Time) ([]catalog.Artifact, error) {
	if keep < 0 {
		keep = 0
	}
	const query = `
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
ORDER BY a.id ASC`

	rows, err := r.db.QueryContext(ctx, query, kind, olderThan.UTC().Unix(), keep)
	if err != nil {
		return nil, fmt.Errorf("stale artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanArtifacts(rows)
}

func (r *Repository) DeleteArtifact(ctx context.Context, artifactID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, artifactID)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete artifact rows affected: %w", err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *Repository) describeTable(ctx context.Context, name string) (catalog.Table, error) {
	const columnsQuery = `
SELECT name, type, "notnull", pk
FROM pragma_table_info(?)
ORDER BY cid ASC`

	rows, err := r.db.QueryContext(ctx, columnsQuery, name)
	if err != nil {
		return catalog.Table{}, fmt.Errorf("describe table %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	table := catalog.Table{Name: name}
	for rows.Next() {
		var (
			column  catalog.Column
			notNull int64
			pk      int64
		)
		if err := rows.Scan(&column.Name, &column.Type, &notNull, &pk); err != nil {
			return catalog.Table{}, fmt.Errorf("scan column row: %w", err)
		}
		column.NotNull = notNull != 0
		column.PrimaryKey = pk != 0
		table.Columns = append(table.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return catalog.Table{}, fmt.Errorf("iterate column rows: %w", err)
	}
	if len(table.Columns) == 0 {
		return catalog.Table{}, catalog.ErrNotFound
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(name))
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&table.RowCount); err != nil {
		return catalog.Table{}, fmt.Errorf("count rows for %s: %w", name, err)
	}
	return table, nil
}

func (r *Repository) tableExists(ctx context.Context, name string) error {
	if !identifierPattern.MatchString(name) {
		return catalog.ErrNotFound
	}
	for _, reserved := range bookkeepingTables {
		if name == reserved {
			return catalog.ErrNotFound
		}
	}

	const query = `
SELECT COUNT(*) FROM sqlite_master
WHERE type = 'table' AND name = ?`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return fmt.Errorf("check table %s: %w", name, err)
	}
	if count == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanIngestRuns(rows *sql.Rows) ([]catalog.IngestRun, error) {
	runs := make([]catalog.IngestRun, 0)
	for rows.Next() {
		var (
			run         catalog.IngestRun
			startedAt   int64
			completedAt sql.NullInt64
		)
		if err := rows.Scan(
			&run.ID,
			&run.TableName,
			&run.Source,
			&run.Rows,
			&run.Status,
			&run.Error,
			&startedAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ingest run row: %w", err)
		}
		run.StartedAt = time.Unix(startedAt, 0).UTC()
		if completedAt.Valid {
			completed := time.Unix(completedAt.Int64, 0).UTC()
			run.CompletedAt = &completed
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest run rows: %w", err)
	}
	return runs, nil
}

func scanArtifacts(rows *sql.Rows) ([]catalog.Artifact, error) {
	artifacts := make([]catalog.Artifact, 0)
	for rows.Next() {
		var (
			artifact  catalog.Artifact
			createdAt int64
		)
		if err := rows.Scan(
			&artifact.ID,
			&artifact.Kind,
			&artifact.TableName,
			&artifact.Path,
			&artifact.SizeBytes,
			&artifact.RecordCount,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan artifact row: %w", err)
		}
		artifact.CreatedAt = time.Unix(createdAt, 0).UTC()
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifact rows: %w", err)
	}
	return artifacts, nil
}

func normalizeValues(values []any) []any {
	for i, value := range values {
		if b, ok := value.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
