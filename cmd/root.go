// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/config"
	"github.com/xkilldash9x/locus/internal/observability"
)

// flagKeys maps command flags onto configuration keys. A flag only overrides the config file and
// environment when the user sets it.
var flagKeys = map[string]string{
	"log-level": "logger.level",
	"browser":   "browser.mode",
	"store":     "store.backend",
	"profile":   "engine.profile",
	"transport": "server.transport",
	"listen":    "server.listen_addr",
}

// app is the state shared by one command tree.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "locus",
		Short:         "Locus resolves and drives web page elements, healing broken selectors as pages change.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./locus.yaml, then ~/.locus/locus.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	rootCmd.PersistentFlags().String("browser", "", "page implementation: memory or cdp (overrides config)")
	rootCmd.PersistentFlags().String("store", "", "store backend: memory, sqlite or postgres (overrides config)")

	rootCmd.AddCommand(
		newScanCmd(a),
		newExecCmd(a),
		newServeCmd(a),
		newProfilesCmd(a),
		newTelemetryCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree from os.Args.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

func (a *app) initialize(cmd *cobra.Command) error {
	v := viper.New()
	config.SetDefaults(v)
	config.BindEnv(v)
	if err := readConfigFile(v, a.cfgFile); err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	a.v = v
	a.cfg = cfg
	if a.logger == nil {
		observability.InitializeLogger(cfg.LoggerCfg)
		a.logger = observability.GetLogger()
	}
	a.logger.Debug("Configuration loaded.",
		zap.String("config_file", v.ConfigFileUsed()),
		zap.String("browser", cfg.BrowserCfg.Mode),
		zap.String("store", cfg.StoreCfg.Backend))
	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("locus")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.locus")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}
