package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/triage-ai/sqlgate/internal/executor"
)

func formatTables(rows []executor.Row) string {
	if len(rows) == 0 {
		return "No tables found"
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("%v.%v", value(r, 0), value(r, 1))
	}
	return strings.Join(lines, "\n")
}

// formatColumns renders INFORMATION_SCHEMA.COLUMNS rows as
// "name type[(len)] [NOT NULL] [DEFAULT x]".
func formatColumns(table string, rows []executor.Row) string {
	if len(rows) == 0 {
		return fmt.Sprintf("Table '%s' not found", table)
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		var b strings.Builder
		fmt.Fprintf(&b, "%v %v", value(r, 0), value(r, 1))
		if l := value(r, 2); l != nil {
			switch s := fmt.Sprint(l); s {
			case "", "0":
			case "-1":
				b.WriteString("(max)")
			default:
				b.WriteString("(" + s + ")")
			}
		}
		if nullable, _ := value(r, 3).(string); strings.EqualFold(nullable, "NO") {
			b.WriteString(" NOT NULL")
		}
		if d := value(r, 4); d != nil && fmt.Sprint(d) != "" {
			fmt.Fprintf(&b, " DEFAULT %v", d)
		}
		lines[i] = b.String()
	}
	return strings.Join(lines, "\n")
}

func formatRows(rows []executor.Row) (string, error) {
	if len(rows) == 0 {
		return "No results found", nil
	}
	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("formatRows: %w", err)
	}
	return string(out), nil
}

func value(r executor.Row, i int) any {
	if i >= len(r) {
		return nil
	}
	return r[i].Value
}
