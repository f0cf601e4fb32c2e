// Package cli implements the nlquery command tree: query a database in
// natural language, inspect its schema, or run the HTTP service.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nlquery/nlquery/internal/config"
	"github.com/nlquery/nlquery/internal/execute"
	"github.com/nlquery/nlquery/internal/pipeline"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/translate"
)

// Exit codes: 0 success (including rejections and dry runs), 2 usage
// errors, 3 translation or provider failures, 4 database failures.
const (
	ExitOK          = 0
	ExitUsage       = 2
	ExitTranslation = 3
	ExitDatabase    = 4
)

// Options carries the process environment and optional test doubles. A nil
// Runner or Introspector means the real one is built from configuration.
type Options struct {
	Stdout       io.Writer
	Stderr       io.Writer
	Lookup       config.LookupFunc
	Runner       QueryRunner
	Introspector schema.Introspector
}

type QueryRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}

	root := newRootCmd(&opts)
	root.SetArgs(args)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(opts.Stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return ExitOK
}

func newRootCmd(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "nlquery",
		Short:         "Query databases in natural language",
		Long:          "nlquery translates natural-language questions into SQL with an AI provider, classifies the result, and only runs statements the safety policy permits.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("db", "", "database connection string (defaults to NLQUERY_DATABASE_DSN or DATABASE_URL)")
	root.PersistentFlags().String("output", "table", "output mode: table or raw")

	root.AddCommand(newQueryCmd(opts))
	root.AddCommand(newSchemaCmd(opts))
	root.AddCommand(newServeCmd(opts))
	return root
}

// usageError marks operator mistakes that should exit 2 rather than 3/4.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var usage *usageError
	if errors.As(err, &usage) {
		return ExitUsage
	}
	var translateErr *translate.Error
	if errors.As(err, &translateErr) {
		return ExitTranslation
	}
	var execErr *execute.Error
	if errors.As(err, &execErr) {
		return ExitDatabase
	}
	var introspectErr *schema.IntrospectionError
	if errors.As(err, &introspectErr) {
		return ExitDatabase
	}
	var connectErr *connectError
	if errors.As(err, &connectErr) {
		return ExitDatabase
	}
	return ExitUsage
}
