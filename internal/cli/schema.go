package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nlquery/nlquery/internal/format"
)

func newSchemaCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show the introspected schema of the target database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			snapshot, err := rt.introspector.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			if mode == format.ModeRaw {
				encoded, err := json.MarshalIndent(snapshot, "", "  ")
				if err != nil {
					return fmt.Errorf("encode schema: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), snapshot.Render())
			return nil
		},
	}
}
