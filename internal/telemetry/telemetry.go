// internal/telemetry/telemetry.go
package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/store"
)

// EntryType is the outcome of one recovery attempt.
type EntryType string

const (
	Success EntryType = "success"
	Failure EntryType = "failure"
)

// Entry is one recorded recovery outcome.
type Entry struct {
	ID         string    `json:"id"`
	Type       EntryType `json:"type"`
	Strategy   string    `json:"strategy,omitempty"`
	Intent     string    `json:"intent,omitempty"`
	Target     string    `json:"target"`
	DurationMs int64     `json:"durationMs"`
	// Attempted counts the strategies run before the outcome.
	Attempted int       `json:"attempted,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config bounds the ring buffer.
type Config struct {
	Capacity int           `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
	MaxAge   time.Duration `mapstructure:"max_age" yaml:"max_age" json:"max_age"`
}

func DefaultConfig() Config {
	return Config{Capacity: 200, MaxAge: 7 * 24 * time.Hour}
}

// StrategyStats summarises the outcomes credited to one strategy.
type StrategyStats struct {
	Strategy      string  `json:"strategy"`
	Successes     int     `json:"successes"`
	Failures      int     `json:"failures"`
	SuccessRate   float64 `json:"successRate"`
	AvgDurationMs float64 `json:"avgDurationMs"`
}

// Recorder is the append-only, capped and time-boxed outcome log. Both bounds are applied
// whenever the log is read or written.
type Recorder struct {
	mu      sync.Mutex
	kv      store.KV
	cfg     Config
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a recorder over kv. metrics may be nil.
func New(kv store.KV, cfg Config, metrics *Metrics, logger *zap.Logger) *Recorder {
	if kv == nil {
		kv = store.NewMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	return &Recorder{kv: kv, cfg: cfg, metrics: metrics, logger: logger.Named("telemetry"), now: time.Now}
}

// Record appends an entry, filling in its ID and timestamp when unset.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	r.metrics.observe(e)

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load(ctx)
	if err != nil {
		return err
	}
	entries = r.prune(append(entries, e))
	if err := store.PutJSON(ctx, r.kv, store.NamespaceTelemetry, entries); err != nil {
		return fmt.Errorf("failed to persist telemetry: %w", err)
	}
	r.logger.Debug("Recovery recorded.",
		zap.String("type", string(e.Type)),
		zap.String("strategy", e.Strategy),
		zap.String("target", e.Target),
		zap.Int64("duration_ms", e.DurationMs))
	return nil
}

// Entries returns the live entries, oldest first.
func (r *Recorder) Entries(ctx context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return r.prune(entries), nil
}

// Stats aggregates the live entries per strategy, sorted by name. Exhausted attempts are
// reported under "none".
func (r *Recorder) Stats(ctx context.Context) ([]StrategyStats, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return nil, err
	}
	type acc struct {
		ok, fail int
		total    int64
	}
	by := make(map[string]*acc)
	for _, e := range entries {
		name := e.Strategy
		if name == "" {
			name = "none"
		}
		a := by[name]
		if a == nil {
			a = &acc{}
			by[name] = a
		}
		if e.Type == Success {
			a.ok++
		} else {
			a.fail++
		}
		a.total += e.DurationMs
	}

	out := make([]StrategyStats, 0, len(by))
	for name, a := range by {
		n := a.ok + a.fail
		out = append(out, StrategyStats{
			Strategy:      name,
			Successes:     a.ok,
			Failures:      a.fail,
			SuccessRate:   float64(a.ok) / float64(n),
			AvgDurationMs: float64(a.total) / float64(n),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out, nil
}

// Clear drops every entry.
func (r *Recorder) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kv.Delete(ctx, store.NamespaceTelemetry)
}

func (r *Recorder) load(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if _, err := store.GetJSON(ctx, r.kv, store.NamespaceTelemetry, &entries); err != nil {
		return nil, fmt.Errorf("failed to load telemetry: %w", err)
	}
	return entries, nil
}

func (r *Recorder) prune(entries []Entry) []Entry {
	cutoff := r.now().Add(-r.cfg.MaxAge)
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if over := len(kept) - r.cfg.Capacity; over > 0 {
		kept = kept[over:]
	}
	return kept
}
