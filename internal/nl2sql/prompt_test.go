package nl2sql

import (
	"errors"
	"strings"
	"testing"
)

var promptTables = []TableContext{
	{
		TableName: "product_total_sales",
		Columns: []ColumnContext{
			{Name: "date", Type: "TEXT"},
			{Name: "item_id", Type: "INTEGER"},
			{Name: "total_sales", Type: "REAL"},
			{Name: "total_units_ordered", Type: "INTEGER"},
		},
	},
	{
		TableName: "product_eligibility",
		Columns: []ColumnContext{
			{Name: "eligibility_datetime_utc", Type: "TEXT"},
			{Name: "item_id", Type: "INTEGER"},
			{Name: "eligibility", Type: "BOOLEAN"},
			{Name: "message", Type: "TEXT"},
		},
	},
}

func TestBuildSystemPromptDescribesSchema(t *testing.T) {
	prompt := buildSystemPrompt(promptTables)

	for _, want := range []string{
		"You are an expert in SQLite SQL.",
		"Available tables and their columns:",
		"- product_total_sales: date (TEXT), item_id (INTEGER), total_sales (REAL), total_units_ordered (INTEGER)",
		"- product_eligibility: eligibility_datetime_utc (TEXT), item_id (INTEGER), eligibility (BOOLEAN), message (TEXT)",
		"Only return the SQL query.",
		`return "N/A"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSystemPromptIncludesSampleRows(t *testing.T) {
	tables := []TableContext{
		{
			TableName:  "product_total_sales",
			Columns:    []ColumnContext{{Name: "date", Type: "TEXT"}},
			SampleRows: [][]any{{"2025-06-01", 25, 512.5, 40}},
		},
	}
	prompt := buildSystemPrompt(tables)
	if !strings.Contains(prompt, "Example rows:") {
		t.Fatalf("prompt missing sample row section:\n%s", prompt)
	}
	if !strings.Contains(prompt, `["2025-06-01",25,512.5,40]`) {
		t.Fatalf("prompt missing encoded sample row:\n%s", prompt)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	got := buildUserPrompt("  Show me the total sales for item_id 25  ")
	want := "Convert the following question into an SQL query: 'Show me the total sales for item_id 25'"
	if got != want {
		t.Fatalf("buildUserPrompt() = %q, want %q", got, want)
	}
}

func TestExtractSQL(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantSQL string
		wantErr error
	}{
		{name: "plain select", raw: "SELECT * FROM product_total_sales", wantSQL: "SELECT * FROM product_total_sales"},
		{name: "fenced", raw: "```sql\nSELECT total_sales FROM product_total_sales WHERE item_id = 25;\n```", wantSQL: "SELECT total_sales FROM product_total_sales WHERE item_id = 25;"},
		{name: "cte", raw: "WITH s AS (SELECT 1) SELECT * FROM s", wantSQL: "WITH s AS (SELECT 1) SELECT * FROM s"},
		{name: "sentinel", raw: "N/A", wantErr: ErrNotAnswerable},
		{name: "quoted sentinel", raw: `"N/A"`, wantErr: ErrNotAnswerable},
		{name: "empty", raw: "   ", wantErr: ErrNotAnswerable},
		{name: "prose", raw: "I cannot answer that from the given tables.", wantErr: ErrNotAnswerable},
	}
	for _, tc := range cases {
		got, err := extractSQL(tc.raw)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.wantSQL {
			t.Fatalf("%s: sql = %q, want %q", tc.name, got, tc.wantSQL)
		}
	}
}

func TestStripMarkdownSQL(t *testing.T) {
	got := stripMarkdownSQL("```sql\nSELECT 1;\n```")
	if got != "SELECT 1;" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
}
