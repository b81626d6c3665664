package nl2sql

import (
	"context"
	"errors"
)

// ErrNotAnswerable reports that the model declined the question, meaning it
// could not produce a query from the available tables.
var ErrNotAnswerable = errors.New("question is not answerable from the available data")

type ColumnContext struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TableContext struct {
	TableName  string          `json:"table_name"`
	Columns    []ColumnContext `json:"columns"`
	SampleRows [][]any         `json:"sample_rows,omitempty"`
}

type Request struct {
	Question string         `json:"question"`
	Tables   []TableContext `json:"tables"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
