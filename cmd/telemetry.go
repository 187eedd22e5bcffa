// cmd/telemetry.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/locus/internal/engine"
	"github.com/xkilldash9x/locus/internal/telemetry"
)

func newTelemetryCmd(a *app) *cobra.Command {
	var (
		wipe    bool
		asTable bool
	)
	telemetryCmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Show recorded recovery outcomes and per-strategy statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kv, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer kv.Close()
			rec := telemetry.New(kv, a.cfg.TelemetryCfg, nil, a.logger)

			if wipe {
				if err := rec.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "telemetry cleared")
				return nil
			}
			entries, err := rec.Entries(ctx)
			if err != nil {
				return err
			}
			stats, err := rec.Stats(ctx)
			if err != nil {
				return err
			}
			if !asTable {
				return writeJSON(cmd.OutOrStdout(), engine.TelemetryReport{Entries: entries, Stats: stats})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STRATEGY\tSUCCESSES\tFAILURES\tRATE\tAVG MS")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.1f\n", s.Strategy, s.Successes, s.Failures, s.SuccessRate, s.AvgDurationMs)
			}
			return tw.Flush()
		},
	}
	telemetryCmd.Flags().BoolVar(&wipe, "clear", false, "delete all recorded entries")
	telemetryCmd.Flags().BoolVar(&asTable, "table", false, "print per-strategy statistics as a table")
	return telemetryCmd
}
