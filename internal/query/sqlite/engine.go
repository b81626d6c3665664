// Package sqlite executes vetted statements against the dataset database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
)

// Engine runs validated SQL on the shared SQLite handle.
type Engine struct {
	db *sql.DB
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	stmt, err := query.ValidateSQL(request.SQL, request.AllowWrites)
	if err != nil {
		return query.Result{}, err
	}

	start := time.Now()
	var result query.Result
	if stmt.Kind == query.StatementSelect {
		result, err = e.readRows(ctx, stmt.SQL, request.RowLimit)
	} else {
		result, err = e.applyWrite(ctx, stmt.SQL)
	}
	result.Duration = time.Since(start)
	observability.ObserveQueryExecution(result.Duration, err)
	return result, err
}

func (e *Engine) applyWrite(ctx context.Context, sqlText string) (query.Result, error) {
	res, err := e.db.ExecContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return query.Result{}, fmt.Errorf("rows affected: %w", err)
	}
	return query.Result{RowsAffected: affected}, nil
}

func (e *Engine) readRows(ctx context.Context, sqlText string, rowLimit int) (query.Result, error) {
	if rowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit)
	}

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("describe result columns: %w", err)
	}

	// One scan buffer serves every row; decodeRow copies values out before
	// the driver reuses it.
	buf := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range buf {
		ptrs[i] = &buf[i]
	}

	out := make([][]any, 0, 64)
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return query.Result{}, fmt.Errorf("scan result row: %w", err)
		}
		out = append(out, decodeRow(buf))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("read result rows: %w", err)
	}

	return query.Result{Columns: columns, Rows: out, ReadOnly: true}, nil
}

// decodeRow copies one scanned row, converting byte blobs to strings so they
// stay valid past the next Scan and marshal as JSON text.
func decodeRow(buf []any) []any {
	row := make([]any, len(buf))
	for i, value := range buf {
		if b, ok := value.([]byte); ok {
			row[i] = string(b)
		} else {
			row[i] = value
		}
	}
	return row
}
