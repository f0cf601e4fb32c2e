package format

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/nlquery/nlquery/internal/execute"
	"github.com/nlquery/nlquery/internal/safety"
)

func init() {
	pterm.DisableColor()
}

func executedReport() Report {
	return Report{
		Status:         "executed",
		SQL:            "SELECT id, email FROM users",
		Classification: safety.Classification{Kind: safety.KindReadOnly, Verb: "select", Tables: []string{"users"}},
		Result: &execute.Result{
			Columns:  []string{"id", "email"},
			Rows:     [][]any{{int64(1), "a@example.com"}, {int64(2), nil}},
			RowCount: 2,
			Duration: 12 * time.Millisecond,
		},
	}
}

func TestParseMode(t *testing.T) {
	for value, want := range map[string]Mode{"": ModeTable, "table": ModeTable, "raw": ModeRaw, "json": ModeRaw, "RAW": ModeRaw} {
		got, err := ParseMode(value)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v; want %q", value, got, err, want)
		}
	}
	if _, err := ParseMode("yaml"); err == nil {
		t.Fatal("ParseMode should reject unknown modes")
	}
}

func TestRenderTableShowsRowsAndNullMarker(t *testing.T) {
	out, err := Render(executedReport(), ModeTable)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	for _, want := range []string{"SQL: SELECT id, email FROM users", "a@example.com", "NULL", "2 row(s) in 12ms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTableEmptyResult(t *testing.T) {
	report := executedReport()
	report.Result.Rows = nil
	report.Result.RowCount = 0
	out, err := Render(report, ModeTable)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(out, "(no rows)") {
		t.Fatalf("output missing empty-set marker:\n%s", out)
	}
}

func TestRenderTableTruncationNotice(t *testing.T) {
	report := executedReport()
	report.Result.Truncated = true
	out, err := Render(report, ModeTable)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(out, "(output truncated at 2 rows)") {
		t.Fatalf("output missing truncation notice:\n%s", out)
	}
}

func TestRenderTableRejected(t *testing.T) {
	out, err := Render(Report{
		Status:         "rejected",
		SQL:            "DROP TABLE users",
		Classification: safety.Classification{Kind: safety.KindSchemaChanging, Verb: "drop"},
		RejectedReason: "statement changes the schema (DROP); rerun with mutations allowed to execute it",
	}, ModeTable)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(out, "Rejected (schema_changing)") {
		t.Fatalf("output missing rejection line:\n%s", out)
	}
}

func TestRenderTableDryRun(t *testing.T) {
	out, err := Render(Report{
		Status:         "translated",
		SQL:            "SELECT 1",
		Classification: safety.Classification{Kind: safety.KindReadOnly, Verb: "select"},
	}, ModeTable)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(out, "Classified as read_only; not executed.") {
		t.Fatalf("output missing dry-run line:\n%s", out)
	}
}

func TestRenderTableMutation(t *testing.T) {
	out, err := Render(Report{
		Status:         "executed",
		SQL:            "DELETE FROM orders",
		Classification: safety.Classification{Kind: safety.KindMutating, Verb: "delete"},
		Result:         &execute.Result{RowsAffected: 3, Duration: 5 * time.Millisecond},
	}, ModeTable)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(out, "3 row(s) affected") {
		t.Fatalf("output missing affected count:\n%s", out)
	}
}

func TestRenderRawShape(t *testing.T) {
	out, err := Render(executedReport(), ModeRaw)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("raw output is not valid JSON: %v\n%s", err, out)
	}
	if decoded["status"] != "executed" || decoded["sql"] != "SELECT id, email FROM users" {
		t.Fatalf("unexpected raw payload: %v", decoded)
	}
	if decoded["row_count"] != float64(2) {
		t.Fatalf("row_count = %v", decoded["row_count"])
	}
	if _, ok := decoded["classification"].(map[string]any); !ok {
		t.Fatalf("classification missing: %v", decoded)
	}
}

func TestRenderRawRejectedOmitsResultFields(t *testing.T) {
	out, err := Render(Report{
		Status:         "rejected",
		SQL:            "SELECT 1; SELECT 2",
		Classification: safety.Classification{Kind: safety.KindMultiStatement},
		RejectedReason: "multiple SQL statements are never executed",
	}, ModeRaw)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("raw output is not valid JSON: %v", err)
	}
	if _, ok := decoded["rows"]; ok {
		t.Fatalf("rejected payload should omit rows: %v", decoded)
	}
	if decoded["rejected_reason"] == "" {
		t.Fatal("rejected payload missing reason")
	}
}
