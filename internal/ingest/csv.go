package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const defaultBatchSize = 500

// ImportCSV loads rows from r into the table described by spec. Headers are
// matched after trimming whitespace, CSV columns the table does not declare
// are ignored, and rows are committed in batches of batchSize. Returns the
// number of rows imported; on error that count covers the batches committed
// before the failure.
func ImportCSV(ctx context.Context, db *sql.DB, spec TableSpec, r io.Reader, batchSize int) (int64, error) {
	if db == nil {
		return 0, errors.New("import csv: nil database")
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("import csv: %s source is empty", spec.Name)
	}
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	conv, err := newRowConverter(spec, header)
	if err != nil {
		return 0, err
	}

	insertSQL := buildInsertSQL(spec)
	var imported int64
	batch := make([][]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := insertBatch(ctx, db, insertSQL, batch); err != nil {
			return err
		}
		imported += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read csv: %w", err)
		}
		row++
		args, err := conv.convert(record, row)
		if err != nil {
			return imported, fmt.Errorf("import into %s: %w", spec.Name, err)
		}
		batch = append(batch, args)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return imported, err
			}
		}
	}
	if err := flush(); err != nil {
		return imported, err
	}
	return imported, nil
}

func insertBatch(ctx context.Context, db *sql.DB, insertSQL string, batch [][]any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	for _, args := range batch {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("insert row: %w", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert batch: %w", err)
	}
	return nil
}

func buildInsertSQL(spec TableSpec) string {
	names := make([]string, len(spec.Columns))
	marks := make([]string, len(spec.Columns))
	for i, col := range spec.Columns {
		names[i] = col.Name
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		spec.Name, strings.Join(names, ", "), strings.Join(marks, ", "))
}

// rowConverter maps CSV record positions onto the table's declared columns.
type rowConverter struct {
	spec    TableSpec
	indexes []int
}

func newRowConverter(spec TableSpec, header []string) (*rowConverter, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.TrimSpace(name)] = i
	}
	indexes := make([]int, len(spec.Columns))
	var missing []string
	for i, col := range spec.Columns {
		pos, ok := positions[col.Name]
		if !ok {
			missing = append(missing, col.Name)
			continue
		}
		indexes[i] = pos
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv for %s is missing column(s): %s", spec.Name, strings.Join(missing, ", "))
	}
	return &rowConverter{spec: spec, indexes: indexes}, nil
}

func (c *rowConverter) convert(record []string, row int) ([]any, error) {
	args := make([]any, len(c.spec.Columns))
	for i, col := range c.spec.Columns {
		pos := c.indexes[i]
		if pos >= len(record) {
			return nil, fmt.Errorf("row %d: column %q: record too short", row, col.Name)
		}
		value, err := convertValue(col.Kind, record[pos], row, col.Name)
		if err != nil {
			return nil, err
		}
		args[i] = value
	}
	return args, nil
}

func convertValue(kind ColumnKind, raw string, row int, column string) (any, error) {
	switch kind {
	case KindBoolean:
		switch strings.ToUpper(strings.TrimSpace(raw)) {
		case "TRUE":
			return int64(1), nil
		case "FALSE":
			return int64(0), nil
		case "":
			return nil, nil
		}
		// Anything else passes through untouched and the column affinity
		// decides how it lands.
		return raw, nil
	case KindInteger:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil, nil
		}
		if v, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return v, nil
		}
		// Sheets export whole numbers as 25.0 now and then.
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return v, nil
		}
		return nil, fmt.Errorf("row %d: column %q: %q is not a number", row, column, raw)
	case KindReal:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: column %q: %q is not a number", row, column, raw)
		}
		return v, nil
	default:
		return raw, nil
	}
}
