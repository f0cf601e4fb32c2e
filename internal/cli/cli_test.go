package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nlquery/nlquery/internal/execute"
	"github.com/nlquery/nlquery/internal/pipeline"
	"github.com/nlquery/nlquery/internal/safety"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/translate"
)

type fakeRunner struct {
	outcome *pipeline.Outcome
	err     error
	last    pipeline.Request
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	f.last = req
	return f.outcome, f.err
}

type fakeIntrospector struct {
	snapshot *schema.Snapshot
	err      error
}

func (f *fakeIntrospector) Snapshot(ctx context.Context) (*schema.Snapshot, error) {
	return f.snapshot, f.err
}

func emptyLookup(string) (string, bool) { return "", false }

func runCLI(t *testing.T, args []string, runner QueryRunner, introspector schema.Introspector) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, Options{
		Stdout:       &stdout,
		Stderr:       &stderr,
		Lookup:       emptyLookup,
		Runner:       runner,
		Introspector: introspector,
	})
	return code, stdout.String(), stderr.String()
}

func executedOutcome() *pipeline.Outcome {
	return &pipeline.Outcome{
		Status:         pipeline.StatusExecuted,
		SQL:            "SELECT id FROM users",
		Classification: safety.Classification{Kind: safety.KindReadOnly, Verb: "select"},
		Result: &execute.Result{
			Columns:  []string{"id"},
			Rows:     [][]any{{int64(1)}},
			RowCount: 1,
		},
	}
}

func TestQueryCommandExecutes(t *testing.T) {
	runner := &fakeRunner{outcome: executedOutcome()}
	code, stdout, stderr := runCLI(t, []string{"query", "--db", "sqlite://test.db", "show", "all", "users"}, runner, &fakeIntrospector{})
	if code != ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "SELECT id FROM users") {
		t.Fatalf("stdout missing SQL:\n%s", stdout)
	}
	if runner.last.Question != "show all users" {
		t.Fatalf("question = %q", runner.last.Question)
	}
}

func TestQueryCommandDryRun(t *testing.T) {
	runner := &fakeRunner{outcome: &pipeline.Outcome{
		Status:         pipeline.StatusTranslated,
		SQL:            "SELECT 1",
		Classification: safety.Classification{Kind: safety.KindReadOnly, Verb: "select"},
	}}
	code, stdout, _ := runCLI(t, []string{"query", "--db", "sqlite://test.db", "--dry-run", "anything"}, runner, &fakeIntrospector{})
	if code != ExitOK {
		t.Fatalf("exit = %d", code)
	}
	if !runner.last.DryRun {
		t.Fatal("dry-run flag not forwarded")
	}
	if !strings.Contains(stdout, "not executed") {
		t.Fatalf("stdout missing dry-run note:\n%s", stdout)
	}
}

func TestQueryCommandRejectionExitsZero(t *testing.T) {
	runner := &fakeRunner{outcome: &pipeline.Outcome{
		Status:         pipeline.StatusRejected,
		SQL:            "DROP TABLE users",
		Classification: safety.Classification{Kind: safety.KindSchemaChanging, Verb: "drop"},
		RejectedReason: "statement changes the schema (DROP); rerun with mutations allowed to execute it",
	}}
	code, stdout, _ := runCLI(t, []string{"query", "--db", "sqlite://test.db", "drop", "users"}, runner, &fakeIntrospector{})
	if code != ExitOK {
		t.Fatalf("rejection must exit 0, got %d", code)
	}
	if !strings.Contains(stdout, "Rejected") {
		t.Fatalf("stdout missing rejection:\n%s", stdout)
	}
}

func TestQueryCommandRawOutput(t *testing.T) {
	runner := &fakeRunner{outcome: executedOutcome()}
	code, stdout, _ := runCLI(t, []string{"query", "--db", "sqlite://test.db", "--output", "raw", "x"}, runner, &fakeIntrospector{})
	if code != ExitOK {
		t.Fatalf("exit = %d", code)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("raw output is not JSON: %v\n%s", err, stdout)
	}
	if decoded["status"] != "executed" {
		t.Fatalf("status = %v", decoded["status"])
	}
}

func TestQueryCommandAllowMutationsFlag(t *testing.T) {
	runner := &fakeRunner{outcome: executedOutcome()}
	code, _, _ := runCLI(t, []string{"query", "--db", "sqlite://test.db", "--allow-mutations", "x"}, runner, &fakeIntrospector{})
	if code != ExitOK {
		t.Fatalf("exit = %d", code)
	}
	if !runner.last.AllowMutations {
		t.Fatal("allow-mutations flag not forwarded")
	}
}

func TestQueryCommandTranslationFailureExits3(t *testing.T) {
	runner := &fakeRunner{err: &translate.Error{Kind: translate.KindUnavailable, Err: errors.New("provider down")}}
	code, _, stderr := runCLI(t, []string{"query", "--db", "sqlite://test.db", "x"}, runner, &fakeIntrospector{})
	if code != ExitTranslation {
		t.Fatalf("exit = %d, want %d (stderr: %s)", code, ExitTranslation, stderr)
	}
}

func TestQueryCommandDatabaseFailureExits4(t *testing.T) {
	runner := &fakeRunner{err: &execute.Error{Kind: execute.KindConnectionLost, Err: errors.New("gone")}}
	code, _, _ := runCLI(t, []string{"query", "--db", "sqlite://test.db", "x"}, runner, &fakeIntrospector{})
	if code != ExitDatabase {
		t.Fatalf("exit = %d, want %d", code, ExitDatabase)
	}

	runner = &fakeRunner{err: &schema.IntrospectionError{Err: errors.New("catalog unreachable")}}
	code, _, _ = runCLI(t, []string{"query", "--db", "sqlite://test.db", "x"}, runner, &fakeIntrospector{})
	if code != ExitDatabase {
		t.Fatalf("introspection exit = %d, want %d", code, ExitDatabase)
	}
}

func TestQueryCommandUsageErrors(t *testing.T) {
	runner := &fakeRunner{outcome: executedOutcome()}

	// No database configured anywhere.
	code, _, _ := runCLI(t, []string{"query", "x"}, runner, &fakeIntrospector{})
	if code != ExitUsage {
		t.Fatalf("missing db exit = %d, want %d", code, ExitUsage)
	}

	// Unknown output mode.
	code, _, _ = runCLI(t, []string{"query", "--db", "sqlite://test.db", "--output", "yaml", "x"}, runner, &fakeIntrospector{})
	if code != ExitUsage {
		t.Fatalf("bad output exit = %d, want %d", code, ExitUsage)
	}

	// No question.
	code, _, _ = runCLI(t, []string{"query"}, runner, &fakeIntrospector{})
	if code != ExitUsage {
		t.Fatalf("no question exit = %d, want %d", code, ExitUsage)
	}
}

func TestSchemaCommandRendersTables(t *testing.T) {
	introspector := &fakeIntrospector{snapshot: &schema.Snapshot{Tables: []schema.TableInfo{
		{Name: "users", Columns: []schema.ColumnInfo{{Name: "id", DataType: "integer"}}},
	}}}
	code, stdout, stderr := runCLI(t, []string{"schema", "--db", "sqlite://test.db"}, &fakeRunner{}, introspector)
	if code != ExitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "TABLE users") {
		t.Fatalf("stdout missing schema:\n%s", stdout)
	}
}

func TestSchemaCommandRawOutput(t *testing.T) {
	introspector := &fakeIntrospector{snapshot: &schema.Snapshot{Tables: []schema.TableInfo{{Name: "users"}}}}
	code, stdout, _ := runCLI(t, []string{"schema", "--db", "sqlite://test.db", "--output", "raw"}, &fakeRunner{}, introspector)
	if code != ExitOK {
		t.Fatalf("exit = %d", code)
	}
	var decoded schema.Snapshot
	if err := json.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("raw schema output is not JSON: %v", err)
	}
	if len(decoded.Tables) != 1 || decoded.Tables[0].Name != "users" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestSchemaCommandIntrospectionFailureExits4(t *testing.T) {
	introspector := &fakeIntrospector{err: &schema.IntrospectionError{Err: errors.New("connect refused")}}
	code, _, _ := runCLI(t, []string{"schema", "--db", "sqlite://test.db"}, &fakeRunner{}, introspector)
	if code != ExitDatabase {
		t.Fatalf("exit = %d, want %d", code, ExitDatabase)
	}
}
