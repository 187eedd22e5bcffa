package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, BrowserMemory, cfg.Browser().Mode)
	assert.Equal(t, 100*time.Millisecond, cfg.Browser().PollInterval)
	assert.Equal(t, 8, cfg.Scanner().MaxDepth)
	assert.Equal(t, 1500*time.Millisecond, cfg.Recovery().ChangeWaitTimeout)
	assert.True(t, cfg.Executor().Highlight)
	assert.False(t, cfg.Executor().AllowScripts)
	assert.Equal(t, 50, cfg.FormState().Capacity)
	assert.Equal(t, 24*time.Hour, cfg.FormState().TTL)
	assert.Equal(t, 200, cfg.Telemetry().Capacity)
	assert.Equal(t, 7*24*time.Hour, cfg.Telemetry().MaxAge)
	assert.Equal(t, TransportStdio, cfg.Server().Transport)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".locus", "locus.db"), cfg.Store().Path)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"Valid", func(*Config) {}, ""},
		{"Unknown Browser Mode", func(c *Config) { c.BrowserCfg.Mode = "firefox" }, "browser.mode"},
		{"Unknown Store Backend", func(c *Config) { c.StoreCfg.Backend = "redis" }, "store.backend"},
		{"Postgres Without URL", func(c *Config) { c.StoreCfg.Backend = StorePostgres }, "store.url is required"},
		{"SQLite Without Path", func(c *Config) { c.StoreCfg.Path = "" }, "store.path is required"},
		{"Websocket Without Address", func(c *Config) {
			c.ServerCfg.Transport = TransportWebSocket
			c.ServerCfg.ListenAddr = ""
		}, "server.listen_addr"},
		{"Zero In Flight", func(c *Config) { c.ServerCfg.MaxInFlight = 0 }, "server.max_in_flight"},
		{"Bad Probe Fraction", func(c *Config) { c.RecoveryCfg.ProbeFraction = 2 }, "recovery.probe_fraction"},
		{"Bad Partial Ratio", func(c *Config) { c.FormStateCfg.MinPartialRatio = 1.5 }, "formstate configuration invalid"},
		{"Negative Rate", func(c *Config) { c.ExecutorCfg.MaxActionsPerSecond = -1 }, "executor.max_actions_per_second"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  mode: cdp
  args: ["--window-size=1024,768"]
store:
  backend: memory
executor:
  allow_scripts: true
  highlight_duration: 250ms
formstate:
  min_partial_ratio: 0.75
engine:
  profile: work
  auto_capture: true
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, BrowserCDP, cfg.Browser().Mode)
		assert.Equal(t, []string{"--window-size=1024,768"}, cfg.Browser().Args)
		assert.Equal(t, StoreMemory, cfg.Store().Backend)
		assert.True(t, cfg.Executor().AllowScripts)
		assert.Equal(t, 250*time.Millisecond, cfg.Executor().HighlightDuration)
		assert.Equal(t, 0.75, cfg.FormState().MinPartialRatio)
		assert.Equal(t, 2, cfg.FormState().MinPartialSegments, "defaults survive partial sections")
		assert.Equal(t, "work", cfg.Engine().Profile)
		assert.True(t, cfg.Engine().AutoCapture)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("server.transport", "carrier-pigeon")

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "server.transport")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		BindEnv(v)

		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
store:
  backend: postgres
  url: "postgres://configfile/db"
`)))

		t.Setenv("LOCUS_DATABASE_URL", "postgres://envvar/db")
		t.Setenv("LOCUS_LOGGER_LEVEL", "debug")
		t.Setenv("LOCUS_SERVER_MAX_IN_FLIGHT", "4")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://envvar/db", cfg.Store().URL)
		assert.Equal(t, "debug", cfg.Logger().Level)
		assert.Equal(t, 4, cfg.Server().MaxInFlight)
	})
}
