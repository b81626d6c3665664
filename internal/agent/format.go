package agent

import (
	"fmt"
	"strings"
)

// FormatTable renders rows as the plain-text table shown to users: a header
// joined with " | ", a dash rule of the same width, then one line per row.
func FormatTable(question string, columns []string, rows [][]any) string {
	parts := make([]string, 0, len(rows)+3)
	parts = append(parts, fmt.Sprintf("Here are the results for '%s':\n", question))

	header := strings.Join(columns, " | ")
	parts = append(parts, header)
	parts = append(parts, strings.Repeat("-", len(header)))

	for _, row := range rows {
		cells := make([]string, len(columns))
		for i := range columns {
			if i < len(row) {
				cells[i] = formatCell(row[i])
			} else {
				cells[i] = "N/A"
			}
		}
		parts = append(parts, strings.Join(cells, " | "))
	}
	return strings.Join(parts, "\n")
}

func formatCell(value any) string {
	if value == nil {
		return "N/A"
	}
	return fmt.Sprintf("%v", value)
}
