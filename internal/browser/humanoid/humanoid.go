// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Humanoid paces automated actions with randomized, non-uniform delays.
type Humanoid struct {
	// mu guards rng and fatigueLevel.
	mu           sync.Mutex
	cfg          Config
	logger       *zap.Logger
	rng          *rand.Rand
	fatigueLevel float64
	sleep        func(ctx context.Context, d time.Duration) error
}

// New creates a pacer. A disabled config yields a pacer whose pauses return immediately.
func New(cfg Config, logger *zap.Logger) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Humanoid{
		cfg:    cfg,
		logger: logger.Named("humanoid"),
		rng:    rng,
		sleep:  Sleep,
	}
}

// NewTestHumanoid creates a deterministic pacer that records its delays instead of sleeping.
func NewTestHumanoid(seed int64, record func(time.Duration)) *Humanoid {
	cfg := DefaultConfig()
	cfg.Rng = rand.New(rand.NewSource(seed))
	h := New(cfg, zap.NewNop())
	h.sleep = func(ctx context.Context, d time.Duration) error {
		if record != nil {
			record(d)
		}
		return ctx.Err()
	}
	return h
}

// Enabled reports whether pauses actually wait.
func (h *Humanoid) Enabled() bool { return h != nil && h.cfg.Enabled }

// ActionDelay samples the pause that follows an action: base + jitter, scaled by fatigue.
func (h *Humanoid) ActionDelay() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	jitter := time.Duration(0)
	if h.cfg.Jitter > 0 {
		jitter = time.Duration(h.rng.Int63n(int64(h.cfg.Jitter) + 1))
	}
	d := time.Duration(float64(h.cfg.BaseDelay+jitter) * (1.0 + h.fatigueLevel))
	h.fatigueLevel = math.Min(0.5, h.fatigueLevel+0.01)
	return d
}

// KeyDelay samples an inter-key delay.
func (h *Humanoid) KeyDelay() time.Duration {
	if !h.Enabled() {
		return 0
	}
	h.mu.Lock()
	randNorm := h.rng.NormFloat64()
	h.mu.Unlock()
	delay := math.Max(h.cfg.KeyPauseMin, randNorm*h.cfg.KeyPauseStdDev+h.cfg.KeyPauseMean)
	return time.Duration(delay) * time.Millisecond
}

// Pause waits the post-action delay. It is a no-op when pacing is disabled.
func (h *Humanoid) Pause(ctx context.Context) error {
	if !h.Enabled() {
		return ctx.Err()
	}
	return h.sleep(ctx, h.ActionDelay())
}

// Hesitate waits a shorter delay before a pointer action.
func (h *Humanoid) Hesitate(ctx context.Context) error {
	if !h.Enabled() {
		return ctx.Err()
	}
	d := time.Duration(float64(h.ActionDelay()) * h.cfg.HesitationFactor)
	return h.sleep(ctx, d)
}

// Recover lowers accumulated fatigue, e.g. after an idle period between requests.
func (h *Humanoid) Recover(idle time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fatigueLevel = math.Max(0, h.fatigueLevel-idle.Seconds()*0.01)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
