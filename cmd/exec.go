// cmd/exec.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/locus/internal/engine"
	"github.com/xkilldash9x/locus/internal/executor"
)

func newExecCmd(a *app) *cobra.Command {
	var (
		text    string
		batch   string
		capture bool
		restore bool
	)
	execCmd := &cobra.Command{
		Use:   "exec <file|url>",
		Short: "Run a natural language command or an action batch against a page",
		Long: `Run either a command such as "fill email with bob@example.com then click submit"
or a batch file: a YAML or JSON list of action descriptors. Use "-" to read the batch from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (text == "") == (batch == "") {
				return errors.New("exactly one of --command or --batch is required")
			}
			var descriptors []executor.Descriptor
			if batch != "" {
				var err error
				if descriptors, err = readBatch(cmd.InOrStdin(), batch); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			s, err := a.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if restore {
				report, found, err := s.engine.Forms().RestoreSaved(ctx)
				if err != nil {
					return err
				}
				a.logger.Info("Restored saved form state.", zap.Bool("found", found), zap.Int("restored", report.Restored))
			}

			var out interface{}
			var result executor.BatchResult
			if text != "" {
				res, err := s.engine.RunCommand(ctx, text, engine.Options{})
				if err != nil {
					return err
				}
				out, result = res, res.BatchResult
			} else {
				actions, err := executor.DecodeAll(descriptors)
				if err != nil {
					return err
				}
				result = s.engine.Executor().ExecuteBatch(ctx, actions)
				out = result
			}

			if capture {
				if _, err := s.engine.Forms().CaptureAndSave(ctx); err != nil {
					a.logger.Warn("Failed to capture form state.", zap.Error(err))
				}
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("batch failed at step %d of %d", result.ExecutedSteps, result.TotalSteps)
			}
			return nil
		},
	}
	execCmd.Flags().StringVar(&text, "command", "", "natural language command to run")
	execCmd.Flags().StringVar(&batch, "batch", "", "file of action descriptors, or - for stdin")
	execCmd.Flags().String("profile", "", "profile to fill values from (overrides config)")
	execCmd.Flags().BoolVar(&capture, "capture", false, "save the form state after running")
	execCmd.Flags().BoolVar(&restore, "restore", false, "restore the saved form state before running")
	return execCmd
}

func readBatch(stdin io.Reader, path string) ([]executor.Descriptor, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open batch: %w", err)
		}
		defer f.Close()
		r = f
	}
	var ds []executor.Descriptor
	// YAML is a superset of JSON, so either format decodes here.
	if err := yaml.NewDecoder(r).Decode(&ds); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("batch is empty")
		}
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	if len(ds) == 0 {
		return nil, errors.New("batch is empty")
	}
	return ds, nil
}
