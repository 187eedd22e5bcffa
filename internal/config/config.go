// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/locus/internal/browser/humanoid"
	"github.com/xkilldash9x/locus/internal/executor"
	"github.com/xkilldash9x/locus/internal/formstate"
	"github.com/xkilldash9x/locus/internal/recovery"
	"github.com/xkilldash9x/locus/internal/scanner"
	"github.com/xkilldash9x/locus/internal/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. LOCUS_STORE_BACKEND.
const EnvPrefix = "LOCUS"

// Interface defines the contract for accessing application configuration.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Scanner() scanner.Config
	Recovery() recovery.Config
	Executor() executor.Config
	Humanoid() humanoid.Config
	FormState() formstate.Config
	Telemetry() telemetry.Config
	Store() StoreConfig
	Server() ServerConfig
	Engine() EngineConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	ScannerCfg   scanner.Config   `mapstructure:"scanner" yaml:"scanner"`
	RecoveryCfg  recovery.Config  `mapstructure:"recovery" yaml:"recovery"`
	ExecutorCfg  executor.Config  `mapstructure:"executor" yaml:"executor"`
	HumanoidCfg  humanoid.Config  `mapstructure:"humanoid" yaml:"humanoid"`
	FormStateCfg formstate.Config `mapstructure:"formstate" yaml:"formstate"`
	TelemetryCfg telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`
	StoreCfg     StoreConfig      `mapstructure:"store" yaml:"store"`
	ServerCfg    ServerConfig     `mapstructure:"server" yaml:"server"`
	EngineCfg    EngineConfig     `mapstructure:"engine" yaml:"engine"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig        { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig      { return c.BrowserCfg }
func (c *Config) Scanner() scanner.Config     { return c.ScannerCfg }
func (c *Config) Recovery() recovery.Config   { return c.RecoveryCfg }
func (c *Config) Executor() executor.Config   { return c.ExecutorCfg }
func (c *Config) Humanoid() humanoid.Config   { return c.HumanoidCfg }
func (c *Config) FormState() formstate.Config { return c.FormStateCfg }
func (c *Config) Telemetry() telemetry.Config { return c.TelemetryCfg }
func (c *Config) Store() StoreConfig          { return c.StoreCfg }
func (c *Config) Server() ServerConfig        { return c.ServerCfg }
func (c *Config) Engine() EngineConfig        { return c.EngineCfg }

// LoggerConfig holds the settings for the global logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Browser modes.
const (
	BrowserMemory = "memory"
	BrowserCDP    = "cdp"
)

// BrowserConfig selects and tunes the page implementation.
type BrowserConfig struct {
	// Mode is "memory" (parsed document, no JavaScript) or "cdp" (Chrome over DevTools).
	Mode              string         `mapstructure:"mode" yaml:"mode"`
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	PollInterval      time.Duration  `mapstructure:"poll_interval" yaml:"poll_interval"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
}

// ViewportConfig is the layout viewport of memory pages.
type ViewportConfig struct {
	Width  float64 `mapstructure:"width" yaml:"width"`
	Height float64 `mapstructure:"height" yaml:"height"`
}

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// StoreConfig selects the key-value backend for snapshots, telemetry and profiles.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the SQLite file; a leading "~" is expanded.
	Path string `mapstructure:"path" yaml:"path"`
	// URL is the Postgres connection string.
	URL string `mapstructure:"url" yaml:"url"`
	// ConnectTimeout bounds opening and pinging the backend.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// Server transports.
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"
)

// ServerConfig configures `locus serve`.
type ServerConfig struct {
	Transport       string        `mapstructure:"transport" yaml:"transport"`
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	MaxInFlight     int           `mapstructure:"max_in_flight" yaml:"max_in_flight"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// EngineConfig holds engine-level switches.
type EngineConfig struct {
	// Profile names the profile fills read values from.
	Profile string `mapstructure:"profile" yaml:"profile"`
	// ProfileSeed is a YAML file of profiles loaded at startup.
	ProfileSeed string `mapstructure:"profile_seed" yaml:"profile_seed"`
	AutoCapture bool   `mapstructure:"auto_capture" yaml:"auto_capture"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "locus")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.mode", BrowserMemory)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.poll_interval", "100ms")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 800)

	// -- Scanner --
	v.SetDefault("scanner.max_depth", scanner.DefaultConfig().MaxDepth)

	// -- Recovery --
	rc := recovery.DefaultConfig()
	v.SetDefault("recovery.min_token_score", rc.MinTokenScore)
	v.SetDefault("recovery.long_token_len", rc.LongTokenLen)
	v.SetDefault("recovery.skill_memory_size", rc.SkillMemorySize)
	v.SetDefault("recovery.probe_fraction", rc.ProbeFraction)
	v.SetDefault("recovery.max_probes", rc.MaxProbes)
	v.SetDefault("recovery.change_wait_timeout", rc.ChangeWaitTimeout)
	v.SetDefault("recovery.max_traversal_depth", rc.MaxTraversalDepth)

	// -- Executor --
	ec := executor.DefaultConfig()
	v.SetDefault("executor.allow_scripts", ec.AllowScripts)
	v.SetDefault("executor.highlight", ec.Highlight)
	v.SetDefault("executor.highlight_duration", ec.HighlightDuration)
	v.SetDefault("executor.max_actions_per_second", ec.MaxActionsPerSecond)
	v.SetDefault("executor.recovery_wait_budget", ec.RecoveryWaitBudget)

	// -- Humanoid --
	hc := humanoid.DefaultConfig()
	v.SetDefault("humanoid.enabled", hc.Enabled)
	v.SetDefault("humanoid.base_delay", hc.BaseDelay)
	v.SetDefault("humanoid.jitter", hc.Jitter)
	v.SetDefault("humanoid.key_pause_mean", hc.KeyPauseMean)
	v.SetDefault("humanoid.key_pause_std_dev", hc.KeyPauseStdDev)
	v.SetDefault("humanoid.key_pause_min", hc.KeyPauseMin)
	v.SetDefault("humanoid.hesitation_factor", hc.HesitationFactor)

	// -- Form state --
	fc := formstate.DefaultConfig()
	v.SetDefault("formstate.capacity", fc.Capacity)
	v.SetDefault("formstate.ttl", fc.TTL)
	v.SetDefault("formstate.min_partial_ratio", fc.MinPartialRatio)
	v.SetDefault("formstate.min_partial_segments", fc.MinPartialSegments)
	v.SetDefault("formstate.debounce", fc.Debounce)
	v.SetDefault("formstate.heal_wait_budget", fc.HealWaitBudget)

	// -- Telemetry --
	tc := telemetry.DefaultConfig()
	v.SetDefault("telemetry.capacity", tc.Capacity)
	v.SetDefault("telemetry.max_age", tc.MaxAge)

	// -- Store --
	v.SetDefault("store.backend", StoreSQLite)
	v.SetDefault("store.path", "~/.locus/locus.db")
	v.SetDefault("store.url", "")
	v.SetDefault("store.connect_timeout", "10s")

	// -- Server --
	v.SetDefault("server.transport", TransportStdio)
	v.SetDefault("server.listen_addr", "127.0.0.1:7311")
	v.SetDefault("server.max_in_flight", 16)
	v.SetDefault("server.shutdown_timeout", "10s")

	// -- Engine --
	v.SetDefault("engine.profile", "")
	v.SetDefault("engine.profile_seed", "")
	v.SetDefault("engine.auto_capture", false)
}

// NewDefaultConfig returns a validated configuration built from the defaults alone.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// The defaults are static; failing here is a programming error.
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// BindEnv makes every key overridable through LOCUS_ prefixed variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The Postgres URL usually carries a password; it gets a short, explicit name.
	_ = v.BindEnv("store.url", "LOCUS_STORE_URL", "LOCUS_DATABASE_URL")
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.StoreCfg.Path != "" {
		expanded, err := homedir.Expand(cfg.StoreCfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand store.path: %w", err)
		}
		cfg.StoreCfg.Path = expanded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Mode {
	case BrowserMemory, BrowserCDP:
	default:
		return fmt.Errorf("browser.mode must be %q or %q, got %q", BrowserMemory, BrowserCDP, c.BrowserCfg.Mode)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return err
	}
	if err := c.ServerCfg.Validate(); err != nil {
		return err
	}
	if err := c.RecoveryCfg.Validate(); err != nil {
		return fmt.Errorf("recovery configuration invalid: %w", err)
	}
	if err := c.FormStateCfg.Validate(); err != nil {
		return fmt.Errorf("formstate configuration invalid: %w", err)
	}
	if c.ExecutorCfg.MaxActionsPerSecond < 0 {
		return fmt.Errorf("executor.max_actions_per_second must not be negative")
	}
	if c.TelemetryCfg.Capacity <= 0 {
		return fmt.Errorf("telemetry.capacity must be a positive integer")
	}
	return nil
}

// Validate checks the store selection.
func (s StoreConfig) Validate() error {
	switch s.Backend {
	case StoreMemory:
	case StoreSQLite:
		if s.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case StorePostgres:
		if s.URL == "" {
			return fmt.Errorf("store.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, sqlite, postgres; got %q", s.Backend)
	}
	return nil
}

// Validate checks the server settings.
func (s ServerConfig) Validate() error {
	switch s.Transport {
	case TransportStdio:
	case TransportWebSocket:
		if s.ListenAddr == "" {
			return fmt.Errorf("server.listen_addr is required for the websocket transport")
		}
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q", TransportStdio, TransportWebSocket, s.Transport)
	}
	if s.MaxInFlight <= 0 {
		return fmt.Errorf("server.max_in_flight must be a positive integer")
	}
	return nil
}
