// cmd/profiles.go
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/locus/internal/classifier"
	"github.com/xkilldash9x/locus/internal/profile"
)

func newProfilesCmd(a *app) *cobra.Command {
	profilesCmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage the value profiles fills and autofill read from",
	}

	// withStore opens the configured store for the duration of fn.
	withStore := func(cmd *cobra.Command, fn func(s *profile.Store) error) error {
		kv, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer kv.Close()
		return fn(profile.NewStore(kv, a.logger))
	}

	profilesCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List profile names",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(s *profile.Store) error {
					names, err := s.List(cmd.Context())
					if err != nil {
						return err
					}
					for _, n := range names {
						fmt.Fprintln(cmd.OutOrStdout(), n)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Print a profile as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(s *profile.Store) error {
					p, err := s.Load(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), p)
				})
			},
		},
		&cobra.Command{
			Use:   "set <name> <type=value>...",
			Short: "Create a profile or merge values into it",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				values, err := parseAssignments(args[1:])
				if err != nil {
					return err
				}
				return withStore(cmd, func(s *profile.Store) error {
					p, err := s.Load(cmd.Context(), args[0])
					if errors.Is(err, profile.ErrNotFound) {
						p, err = profile.Profile{Name: args[0]}, nil
					}
					if err != nil {
						return err
					}
					if p.Values == nil {
						p.Values = make(map[classifier.SemanticType]string, len(values))
					}
					for k, v := range values {
						p.Values[k] = v
					}
					return s.Save(cmd.Context(), p)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(s *profile.Store) error {
					return s.Delete(cmd.Context(), args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "seed <file>",
			Short: "Load profiles from a YAML file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				return withStore(cmd, func(s *profile.Store) error {
					n, err := s.Seed(cmd.Context(), f)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "seeded %d profiles\n", n)
					return nil
				})
			},
		},
	)
	return profilesCmd
}

func parseAssignments(args []string) (map[classifier.SemanticType]string, error) {
	out := make(map[classifier.SemanticType]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected type=value, got %q", arg)
		}
		out[classifier.SemanticType(k)] = v
	}
	return out, nil
}
