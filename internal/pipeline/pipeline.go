// Package pipeline orchestrates one question's full run: introspect the
// schema, build the prompt, translate, classify, decide, and execute. The
// executor is only ever reached by a permitted, classified statement, and
// never in dry-run mode.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nlquery/nlquery/internal/execute"
	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/safety"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/translate"
)

type Stage string

const (
	StageInit          Stage = "init"
	StageIntrospecting Stage = "introspecting"
	StageTranslating   Stage = "translating"
	StageValidating    Stage = "validating"
	StageDryRunDone    Stage = "dry_run_done"
	StageExecuting     Stage = "executing"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

type Status string

const (
	StatusTranslated Status = "translated"
	StatusExecuted   Status = "executed"
	StatusRejected   Status = "rejected"
)

// Request is one natural-language question plus its run options. History
// carries earlier exchanges for follow-up questions.
type Request struct {
	Question       string
	History        []translate.Exchange
	DryRun         bool
	AllowMutations bool
}

// Outcome is the terminal state of a successful run. Rejection is a
// success: the pipeline did its job by refusing the statement.
type Outcome struct {
	Status         Status
	SQL            string
	Provider       string
	Model          string
	Classification safety.Classification
	RejectedReason string
	Result         *execute.Result
}

// Executor runs permitted statements. Query streams read-only statements,
// Mutate wraps everything else in a transaction.
type Executor interface {
	Query(ctx context.Context, sqlText string) (*execute.Result, error)
	Mutate(ctx context.Context, sqlText string) (*execute.Result, error)
}

type Runner struct {
	Introspector schema.Introspector
	Translator   translate.Translator
	Executor     Executor
	Builder      translate.PromptBuilder
	Policy       safety.Policy
	Logger       *slog.Logger
}

// Run executes one question end to end. Errors carry their origin's typed
// error (schema.IntrospectionError, translate.Error, execute.Error) so
// callers can map them to exit codes or HTTP statuses.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Question == "" {
		return nil, fmt.Errorf("question is required")
	}
	logger := r.logger()

	logger.DebugContext(ctx, "pipeline stage", slog.String("stage", string(StageIntrospecting)))
	snapshot, err := r.Introspector.Snapshot(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "schema introspection failed", slog.Any("error", err))
		return nil, fmt.Errorf("introspect schema: %w", err)
	}

	logger.DebugContext(ctx, "pipeline stage", slog.String("stage", string(StageTranslating)))
	prompt := r.Builder.Build(snapshot, req.Question, req.History)
	candidate, err := r.Translator.Translate(ctx, prompt)
	if err != nil {
		logger.ErrorContext(ctx, "translation failed", slog.Any("error", err))
		return nil, fmt.Errorf("translate question: %w", err)
	}

	logger.DebugContext(ctx, "pipeline stage", slog.String("stage", string(StageValidating)))
	classification := safety.Classify(candidate.SQL, snapshot)
	policy := r.Policy
	if req.AllowMutations {
		policy.AllowMutations = true
	}
	decision := policy.Decide(classification)
	observability.ObserveClassification(string(classification.Kind), !decision.Permitted)

	outcome := &Outcome{
		SQL:            candidate.SQL,
		Provider:       candidate.Provider,
		Model:          candidate.Model,
		Classification: classification,
	}
	if !decision.Permitted {
		outcome.Status = StatusRejected
		outcome.RejectedReason = decision.Reason
		logger.InfoContext(ctx, "statement rejected",
			slog.String("classification", string(classification.Kind)),
			slog.String("reason", decision.Reason))
		return outcome, nil
	}
	if req.DryRun {
		outcome.Status = StatusTranslated
		logger.InfoContext(ctx, "dry run complete",
			slog.String("classification", string(classification.Kind)))
		return outcome, nil
	}

	logger.DebugContext(ctx, "pipeline stage", slog.String("stage", string(StageExecuting)))
	var result *execute.Result
	if classification.Kind == safety.KindReadOnly {
		result, err = r.Executor.Query(ctx, candidate.SQL)
	} else {
		result, err = r.Executor.Mutate(ctx, candidate.SQL)
	}
	if err != nil {
		logger.ErrorContext(ctx, "execution failed", slog.Any("error", err))
		return nil, fmt.Errorf("execute statement: %w", err)
	}

	outcome.Status = StatusExecuted
	outcome.Result = result
	logger.InfoContext(ctx, "statement executed",
		slog.String("classification", string(classification.Kind)),
		slog.Int("row_count", result.RowCount),
		slog.Bool("truncated", result.Truncated))
	return outcome, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
