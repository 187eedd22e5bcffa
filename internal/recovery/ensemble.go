// internal/recovery/ensemble.go
package recovery

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/telemetry"
)

// Recorder receives one entry per successful or exhausted recovery.
type Recorder interface {
	Record(ctx context.Context, e telemetry.Entry) error
}

// Ensemble runs registered strategies in descending priority and returns the first success.
type Ensemble struct {
	mu         sync.RWMutex
	strategies []Strategy
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// NewEnsemble creates an empty ensemble. recorder may be nil.
func NewEnsemble(recorder Recorder, logger *zap.Logger) *Ensemble {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ensemble{recorder: recorder, logger: logger.Named("recovery"), now: time.Now}
}

// Register adds a strategy. Strategies of equal priority keep registration order.
func (e *Ensemble) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies = append(e.strategies, s)
	sort.SliceStable(e.strategies, func(i, j int) bool {
		return e.strategies[i].Priority() > e.strategies[j].Priority()
	})
}

// Strategies returns the registered strategy names in run order.
func (e *Ensemble) Strategies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// AttemptRecovery tries every strategy until one succeeds. A strategy that errors or panics
// counts as failed; the ensemble itself never fails. intent, target and failed override the
// corresponding fields of rc.
func (e *Ensemble) AttemptRecovery(ctx context.Context, intent, target string, failed []string, rc Context) Result {
	e.mu.RLock()
	strategies := append([]Strategy(nil), e.strategies...)
	e.mu.RUnlock()
	if len(strategies) == 0 {
		return Result{Info: map[string]interface{}{"attempted": 0}}
	}

	rc.Intent, rc.Target = intent, target
	rc.FailedLocators = append([]string(nil), failed...)
	start := e.now()

	var lastErr error
	attempted := 0
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempted++
		res, err := e.safeAttempt(ctx, s, rc)
		if err != nil {
			lastErr = err
			e.logger.Debug("Strategy failed.", zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		if !res.Success || res.Element == nil {
			continue
		}

		res.Strategy = s.Name()
		res.Duration = e.now().Sub(start)
		if res.Info == nil {
			res.Info = make(map[string]interface{})
		}
		res.Info["attempted"] = attempted
		e.learn(strategies, rc, res)
		e.record(ctx, telemetry.Entry{
			Type:       telemetry.Success,
			Strategy:   res.Strategy,
			Intent:     intent,
			Target:     target,
			DurationMs: res.Duration.Milliseconds(),
			Attempted:  attempted,
		})
		e.logger.Info("Element recovered.",
			zap.String("strategy", res.Strategy),
			zap.String("target", target),
			zap.String("resolved", res.Element.Target.String()),
			zap.Duration("duration", res.Duration))
		return res
	}

	res := Result{
		Duration: e.now().Sub(start),
		Info:     map[string]interface{}{"attempted": attempted},
	}
	if lastErr != nil {
		res.Info["lastError"] = lastErr.Error()
	}
	e.record(ctx, telemetry.Entry{
		Type:       telemetry.Failure,
		Intent:     intent,
		Target:     target,
		DurationMs: res.Duration.Milliseconds(),
		Attempted:  attempted,
	})
	e.logger.Warn("Recovery exhausted.", zap.String("target", target), zap.Int("attempted", attempted))
	return res
}

func (e *Ensemble) safeAttempt(ctx context.Context, s Strategy, rc Context) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Strategy panicked.", zap.String("strategy", s.Name()), zap.Any("panic", r))
			res, err = Result{}, fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	// Each strategy gets its own copies so none can leak state into the next.
	rc.Hints = maps.Clone(rc.Hints)
	rc.FailedLocators = slices.Clone(rc.FailedLocators)
	return s.Attempt(ctx, rc)
}

func (e *Ensemble) learn(strategies []Strategy, rc Context, res Result) {
	for _, s := range strategies {
		if l, ok := s.(Learner); ok {
			l.Learn(rc, res)
		}
	}
}

func (e *Ensemble) record(ctx context.Context, entry telemetry.Entry) {
	if e.recorder == nil {
		return
	}
	// Telemetry must survive a cancelled request.
	if err := e.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("Failed to record recovery telemetry.", zap.Error(err))
	}
}
