package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"
)

// buildSystemPrompt describes the task and the live schema to the model. The
// "N/A" sentinel is how the model signals an unanswerable question; extractSQL
// turns it into ErrNotAnswerable.
func buildSystemPrompt(tables []TableContext) string {
	var b strings.Builder
	b.WriteString("You are an expert in SQLite SQL. Your task is to convert natural language questions into accurate and executable SQLite SQL queries.\n\n")
	b.WriteString("Available tables and their columns:\n")
	for _, table := range tables {
		parts := make([]string, 0, len(table.Columns))
		for _, col := range table.Columns {
			parts = append(parts, fmt.Sprintf("%s (%s)", col.Name, strings.ToUpper(col.Type)))
		}
		b.WriteString(fmt.Sprintf("- %s: %s\n", table.TableName, strings.Join(parts, ", ")))
	}
	if rows := sampleRowsBlock(tables); rows != "" {
		b.WriteString("\nExample rows:\n")
		b.WriteString(rows)
	}
	b.WriteString("\nOnly return the SQL query. Do NOT include any explanations, comments, or additional text.\n")
	b.WriteString("Make sure the query is syntactically correct and uses the correct table and column names.\n")
	b.WriteString("If the question cannot be answered with the available tables, return \"N/A\".")
	return b.String()
}

func sampleRowsBlock(tables []TableContext) string {
	var b strings.Builder
	for _, table := range tables {
		for _, row := range table.SampleRows {
			encoded, err := json.Marshal(row)
			if err != nil {
				continue
			}
			b.WriteString(fmt.Sprintf("- %s: %s\n", table.TableName, string(encoded)))
		}
	}
	return b.String()
}

func buildUserPrompt(question string) string {
	return fmt.Sprintf("Convert the following question into an SQL query: '%s'", strings.TrimSpace(question))
}

// extractSQL cleans a raw model reply and decides whether it is usable SQL.
func extractSQL(raw string) (string, error) {
	sqlText := stripMarkdownSQL(raw)
	if sqlText == "" || strings.EqualFold(sqlText, "N/A") || strings.EqualFold(strings.Trim(sqlText, `"'`), "N/A") {
		return "", ErrNotAnswerable
	}
	upper := strings.ToUpper(sqlText)
	for _, prefix := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "WITH"} {
		if strings.HasPrefix(upper, prefix) {
			return sqlText, nil
		}
	}
	return "", ErrNotAnswerable
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	fenced, ok := strings.CutPrefix(trimmed, "```")
	if !ok {
		return trimmed
	}
	fenced = strings.TrimPrefix(fenced, "sql")
	fenced, _ = strings.CutSuffix(fenced, "```")
	return strings.TrimSpace(fenced)
}
