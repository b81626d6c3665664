package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/askdb/askdb/internal/catalog"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/storage"
)

type Catalog interface {
	ListTables(ctx context.Context) ([]catalog.Table, error)
	RecordArtifact(ctx context.Context, in catalog.RecordArtifactInput) (catalog.Artifact, error)
}

// snapshotRow is the parquet schema for exports. Row contents ride along as
// JSON so one schema covers every table shape.
type snapshotRow struct {
	TableName    string `parquet:"table_name"`
	RowIndex     int64  `parquet:"row_index"`
	PayloadJSON  string `parquet:"payload_json"`
	ExportedAtMS int64  `parquet:"exported_at_ms"`
}

type TableExport struct {
	TableName   string `json:"table_name"`
	Path        string `json:"path"`
	SizeBytes   int64  `json:"size_bytes"`
	RecordCount int64  `json:"record_count"`
}

type Summary struct {
	TablesExported int           `json:"tables_exported"`
	RowsExported   int64         `json:"rows_exported"`
	BytesWritten   int64         `json:"bytes_written"`
	Failures       int           `json:"failures"`
	Exports        []TableExport `json:"exports"`
}

// Exporter writes per-table parquet snapshots to the object store and records
// each upload as a catalog artifact.
type Exporter struct {
	DB          *sql.DB
	ObjectStore storage.ObjectStore
	Catalog     Catalog
	Logger      *slog.Logger
	Clock       func() time.Time
}

var exportIdentifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,63}$`)

func (e *Exporter) ExportAll(ctx context.Context) (Summary, error) {
	e.ensureDefaults()
	if e.DB == nil {
		return Summary{}, fmt.Errorf("database handle is required")
	}
	if e.ObjectStore == nil {
		return Summary{}, fmt.Errorf("object store is required")
	}
	if e.Catalog == nil {
		return Summary{}, fmt.Errorf("catalog is required")
	}

	tables, err := e.Catalog.ListTables(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list tables: %w", err)
	}

	summary := Summary{Exports: make([]TableExport, 0, len(tables))}
	failures := make([]string, 0)

	for _, table := range tables {
		export, err := e.ExportTable(ctx, table.Name)
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("table %s: %v", table.Name, err))
			continue
		}
		summary.TablesExported++
		summary.RowsExported += export.RecordCount
		summary.BytesWritten += export.SizeBytes
		summary.Exports = append(summary.Exports, export)
	}

	if summary.BytesWritten > 0 {
		observability.AddSnapshotBytes(summary.BytesWritten)
	}
	if len(failures) > 0 {
		return summary, fmt.Errorf("snapshot export encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	return summary, nil
}

func (e *Exporter) ExportTable(ctx context.Context, tableName string) (TableExport, error) {
	e.ensureDefaults()
	if !exportIdentifierPattern.MatchString(tableName) {
		return TableExport{}, fmt.Errorf("invalid table name %q", tableName)
	}

	columns, rows, err := e.readTable(ctx, tableName)
	if err != nil {
		return TableExport{}, err
	}

	exportedAt := e.Clock().UTC()
	data, recordCount, err := encodeRows(tableName, columns, rows, exportedAt)
	if err != nil {
		return TableExport{}, err
	}

	key, err := storage.BuildSnapshotPath(tableName, exportedAt)
	if err != nil {
		return TableExport{}, err
	}
	info, err := e.ObjectStore.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: storage.ContentTypeParquet})
	if err != nil {
		return TableExport{}, fmt.Errorf("upload snapshot: %w", err)
	}

	if _, err := e.Catalog.RecordArtifact(ctx, catalog.RecordArtifactInput{
		Kind:        catalog.ArtifactKindSnapshot,
		TableName:   tableName,
		Path:        key,
		SizeBytes:   info.Size,
		RecordCount: recordCount,
	}); err != nil {
		return TableExport{}, fmt.Errorf("record snapshot artifact: %w", err)
	}

	e.Logger.InfoContext(ctx, "table snapshot exported",
		slog.String("table", tableName),
		slog.String("path", key),
		slog.Int64("rows", recordCount),
		slog.Int64("bytes", info.Size),
	)
	return TableExport{TableName: tableName, Path: key, SizeBytes: info.Size, RecordCount: recordCount}, nil
}

func (e *Exporter) readTable(ctx context.Context, tableName string) ([]string, [][]any, error) {
	rows, err := e.DB.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, tableName))
	if err != nil {
		return nil, nil, fmt.Errorf("read table: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	out := make([][]any, 0, 256)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		for i, value := range values {
			if b, ok := value.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, out, nil
}

func encodeRows(tableName string, columns []string, rows [][]any, exportedAt time.Time) ([]byte, int64, error) {
	exportedAtMS := exportedAt.UnixMilli()
	parquetRows := make([]snapshotRow, 0, len(rows))
	for i, row := range rows {
		payload := make(map[string]any, len(columns))
		for j, col := range columns {
			if j < len(row) {
				payload[col] = row[j]
			}
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal row %d: %w", i, err)
		}
		parquetRows = append(parquetRows, snapshotRow{
			TableName:    tableName,
			RowIndex:     int64(i),
			PayloadJSON:  string(encoded),
			ExportedAtMS: exportedAtMS,
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[snapshotRow](buf)
	if len(parquetRows) > 0 {
		if _, err := writer.Write(parquetRows); err != nil {
			return nil, 0, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), int64(len(parquetRows)), nil
}

func (e *Exporter) ensureDefaults() {
	if e.Clock == nil {
		e.Clock = time.Now
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
}
