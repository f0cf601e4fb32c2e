package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nlquery/nlquery/internal/export"
	"github.com/nlquery/nlquery/internal/format"
	"github.com/nlquery/nlquery/internal/pipeline"
)

func newQueryCmd(opts *Options) *cobra.Command {
	var (
		dryRun         bool
		allowMutations bool
		exportPath     string
	)

	cmd := &cobra.Command{
		Use:   "query [question...]",
		Short: "Translate a question to SQL and run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return &usageError{err: fmt.Errorf("question is required")}
			}
			mode, err := format.ParseMode(mustString(cmd, "output"))
			if err != nil {
				return &usageError{err: err}
			}

			cfg, err := loadConfig(opts, mustString(cmd, "db"))
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), opts, cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			outcome, err := rt.runner.Run(cmd.Context(), pipeline.Request{
				Question:       question,
				DryRun:         dryRun,
				AllowMutations: allowMutations,
			})
			if err != nil {
				return err
			}

			rendered, err := format.Render(format.Report{
				Status:         string(outcome.Status),
				SQL:            outcome.SQL,
				Classification: outcome.Classification,
				RejectedReason: outcome.RejectedReason,
				Result:         outcome.Result,
			}, mode)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)

			if exportPath != "" && outcome.Result != nil {
				if err := export.WriteParquetFile(exportPath, outcome.Result); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d row(s) to %s\n", outcome.Result.RowCount, exportPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "translate and classify without executing")
	cmd.Flags().BoolVar(&allowMutations, "allow-mutations", false, "permit mutating and schema-changing statements")
	cmd.Flags().StringVar(&exportPath, "export", "", "write executed result rows to a parquet file")
	return cmd
}

func mustString(cmd *cobra.Command, name string) string {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return ""
	}
	return value
}
