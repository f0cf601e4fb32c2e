// Package format renders run outcomes for humans (pterm tables) and for
// machines (stable JSON). Translated-only and rejected runs render in both
// modes too, so callers never branch on outcome before formatting.
package format

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/nlquery/nlquery/internal/execute"
	"github.com/nlquery/nlquery/internal/safety"
)

type Mode string

const (
	ModeTable Mode = "table"
	ModeRaw   Mode = "raw"
)

func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "table", "":
		return ModeTable, nil
	case "raw", "json":
		return ModeRaw, nil
	default:
		return "", fmt.Errorf("unknown output mode %q (want table or raw)", value)
	}
}

// Report is the renderable view of one run. Result is nil for translated
// and rejected runs.
type Report struct {
	Status         string
	SQL            string
	Classification safety.Classification
	RejectedReason string
	Result         *execute.Result
}

func Render(report Report, mode Mode) (string, error) {
	if mode == ModeRaw {
		return renderRaw(report)
	}
	return renderTable(report)
}

type rawPayload struct {
	Status         string                `json:"status"`
	SQL            string                `json:"sql"`
	Classification safety.Classification `json:"classification"`
	RejectedReason string                `json:"rejected_reason,omitempty"`
	Columns        []string              `json:"columns,omitempty"`
	Rows           [][]any               `json:"rows,omitempty"`
	RowCount       int                   `json:"row_count,omitempty"`
	RowsAffected   int64                 `json:"rows_affected,omitempty"`
	DurationMS     int64                 `json:"duration_ms,omitempty"`
	Truncated      bool                  `json:"truncated,omitempty"`
}

func renderRaw(report Report) (string, error) {
	payload := rawPayload{
		Status:         report.Status,
		SQL:            report.SQL,
		Classification: report.Classification,
		RejectedReason: report.RejectedReason,
	}
	if report.Result != nil {
		payload.Columns = report.Result.Columns
		payload.Rows = report.Result.Rows
		payload.RowCount = report.Result.RowCount
		payload.RowsAffected = report.Result.RowsAffected
		payload.DurationMS = report.Result.Duration.Milliseconds()
		payload.Truncated = report.Result.Truncated
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return string(encoded) + "\n", nil
}

func renderTable(report Report) (string, error) {
	var out strings.Builder
	fmt.Fprintf(&out, "SQL: %s\n", report.SQL)

	if report.RejectedReason != "" {
		fmt.Fprintf(&out, "Rejected (%s): %s\n", report.Classification.Kind, report.RejectedReason)
		return out.String(), nil
	}
	if report.Result == nil {
		fmt.Fprintf(&out, "Classified as %s; not executed.\n", report.Classification.Kind)
		return out.String(), nil
	}

	result := report.Result
	if len(result.Columns) == 0 {
		fmt.Fprintf(&out, "%d row(s) affected in %s\n", result.RowsAffected, result.Duration.Round(time.Millisecond))
		return out.String(), nil
	}
	if len(result.Rows) == 0 {
		out.WriteString("(no rows)\n")
		return out.String(), nil
	}

	data := make(pterm.TableData, 0, len(result.Rows)+1)
	data = append(data, result.Columns)
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatCell(value)
		}
		data = append(data, cells)
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}
	out.WriteString(rendered)
	if !strings.HasSuffix(rendered, "\n") {
		out.WriteString("\n")
	}
	fmt.Fprintf(&out, "%d row(s) in %s\n", result.RowCount, result.Duration.Round(time.Millisecond))
	if result.Truncated {
		fmt.Fprintf(&out, "(output truncated at %d rows)\n", result.RowCount)
	}
	return out.String(), nil
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339)
	case float32, float64:
		return fmt.Sprintf("%g", typed)
	default:
		return fmt.Sprint(typed)
	}
}
