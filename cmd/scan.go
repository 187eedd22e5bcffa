// cmd/scan.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <file|url>",
		Short: "Load a page and print its interactive surface as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			snap, err := s.engine.Scan(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("Scanned page.",
				zap.String("url", snap.URL),
				zap.Int("fields", len(snap.Fields)),
				zap.Int("actionables", len(snap.Actionables)))
			return writeJSON(cmd.OutOrStdout(), snap)
		},
	}
}
