// internal/recovery/config.go
package recovery

import (
	"fmt"
	"time"
)

// Config holds the tunable thresholds of the built-in strategies. The token and probe numbers are
// empirical and kept configurable for that reason.
type Config struct {
	MinTokenScore     int           `mapstructure:"min_token_score" yaml:"min_token_score" json:"min_token_score"`
	LongTokenLen      int           `mapstructure:"long_token_len" yaml:"long_token_len" json:"long_token_len"`
	SkillMemorySize   int           `mapstructure:"skill_memory_size" yaml:"skill_memory_size" json:"skill_memory_size"`
	ProbeFraction     float64       `mapstructure:"probe_fraction" yaml:"probe_fraction" json:"probe_fraction"`
	MaxProbes         int           `mapstructure:"max_probes" yaml:"max_probes" json:"max_probes"`
	ChangeWaitTimeout time.Duration `mapstructure:"change_wait_timeout" yaml:"change_wait_timeout" json:"change_wait_timeout"`
	MaxTraversalDepth int           `mapstructure:"max_traversal_depth" yaml:"max_traversal_depth" json:"max_traversal_depth"`
}

func DefaultConfig() Config {
	return Config{
		MinTokenScore:     2,
		LongTokenLen:      5,
		SkillMemorySize:   256,
		ProbeFraction:     0.8,
		MaxProbes:         6,
		ChangeWaitTimeout: 1500 * time.Millisecond,
		MaxTraversalDepth: 6,
	}
}

// Validate checks the thresholds for values the strategies cannot work with.
func (c Config) Validate() error {
	if c.MinTokenScore < 1 {
		return fmt.Errorf("recovery.min_token_score must be at least 1, got %d", c.MinTokenScore)
	}
	if c.ProbeFraction <= 0 || c.ProbeFraction > 1 {
		return fmt.Errorf("recovery.probe_fraction must be in (0, 1], got %v", c.ProbeFraction)
	}
	if c.MaxProbes < 1 {
		return fmt.Errorf("recovery.max_probes must be at least 1, got %d", c.MaxProbes)
	}
	if c.MaxTraversalDepth < 1 {
		return fmt.Errorf("recovery.max_traversal_depth must be at least 1, got %d", c.MaxTraversalDepth)
	}
	if c.SkillMemorySize < 1 {
		return fmt.Errorf("recovery.skill_memory_size must be at least 1, got %d", c.SkillMemorySize)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinTokenScore <= 0 {
		c.MinTokenScore = d.MinTokenScore
	}
	if c.LongTokenLen <= 0 {
		c.LongTokenLen = d.LongTokenLen
	}
	if c.SkillMemorySize <= 0 {
		c.SkillMemorySize = d.SkillMemorySize
	}
	if c.ProbeFraction <= 0 {
		c.ProbeFraction = d.ProbeFraction
	}
	if c.MaxProbes <= 0 {
		c.MaxProbes = d.MaxProbes
	}
	if c.ChangeWaitTimeout <= 0 {
		c.ChangeWaitTimeout = d.ChangeWaitTimeout
	}
	if c.MaxTraversalDepth <= 0 {
		c.MaxTraversalDepth = d.MaxTraversalDepth
	}
	return c
}
