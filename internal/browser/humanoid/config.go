// internal/browser/humanoid/config.go
package humanoid

import (
	"math/rand"
	"time"
)

// Config holds the parameters of the humanized pacing model.
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Rng     *rand.Rand

	// Action pause: base plus uniform jitter.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
	Jitter    time.Duration `json:"jitter" yaml:"jitter" mapstructure:"jitter"`

	// Key pause (IKD) parameters, in milliseconds.
	KeyPauseMean   float64 `json:"key_pause_mean" yaml:"key_pause_mean" mapstructure:"key_pause_mean"`
	KeyPauseStdDev float64 `json:"key_pause_std_dev" yaml:"key_pause_std_dev" mapstructure:"key_pause_std_dev"`
	KeyPauseMin    float64 `json:"key_pause_min" yaml:"key_pause_min" mapstructure:"key_pause_min"`

	// Hesitation before a click, as a fraction of the action pause.
	HesitationFactor float64 `json:"hesitation_factor" yaml:"hesitation_factor" mapstructure:"hesitation_factor"`
}

// DefaultConfig returns a configuration representing an average user.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		BaseDelay:        150 * time.Millisecond,
		Jitter:           250 * time.Millisecond,
		KeyPauseMean:     70.0,
		KeyPauseStdDev:   28.0,
		KeyPauseMin:      35.0,
		HesitationFactor: 0.5,
	}
}
