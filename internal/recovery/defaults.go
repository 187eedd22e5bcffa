// internal/recovery/defaults.go
package recovery

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/scanner"
)

// NewDefault builds an ensemble with the eight built-in strategies over page.
func NewDefault(page browser.Page, sc *scanner.Scanner, cfg Config, recorder Recorder, logger *zap.Logger) (*Ensemble, error) {
	if err := cfg.withDefaults().Validate(); err != nil {
		return nil, err
	}
	if sc == nil {
		sc = scanner.New(scanner.DefaultConfig(), logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	env := Env{Page: page, Scanner: sc, Config: cfg.withDefaults(), Logger: logger.Named("recovery")}

	skills, err := NewSkillMemory(env)
	if err != nil {
		return nil, fmt.Errorf("failed to create skill memory: %w", err)
	}
	e := NewEnsemble(recorder, logger)
	for _, s := range []Strategy{
		skills,
		NewHeuristic(env),
		NewPermutation(env),
		NewProbeScroll(env),
		NewChangeWait(env),
		NewDeepTraversal(env),
		NewLabelProximity(env),
		NewValidationRetry(env),
	} {
		e.Register(s)
	}
	return e, nil
}
