// Package query defines the execution contract for vetted SQL.
package query

import (
	"context"
	"time"
)

// Request describes one statement to run against the dataset database.
// RowLimit caps SELECT output; statements that write run only when
// AllowWrites is set.
type Request struct {
	SQL         string
	RowLimit    int
	AllowWrites bool
}

// Result carries either the rows a query returned or, for writes, the
// affected-row count. ReadOnly records which path ran.
type Result struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	ReadOnly     bool
	Duration     time.Duration
}

// Engine runs vetted SQL against the local database.
type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
