// internal/formstate/store.go
package formstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/store"
)

// Config bounds persistence and tunes restore matching.
type Config struct {
	Capacity int           `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	// A partial fingerprint match needs at least MinPartialRatio of the saved segments and at
	// least MinPartialSegments of them.
	MinPartialRatio    float64       `mapstructure:"min_partial_ratio" yaml:"min_partial_ratio" json:"min_partial_ratio"`
	MinPartialSegments int           `mapstructure:"min_partial_segments" yaml:"min_partial_segments" json:"min_partial_segments"`
	Debounce           time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
	// HealWaitBudget caps waiting recovery strategies during restore.
	HealWaitBudget time.Duration `mapstructure:"heal_wait_budget" yaml:"heal_wait_budget" json:"heal_wait_budget"`
}

func DefaultConfig() Config {
	return Config{
		Capacity:           50,
		TTL:                24 * time.Hour,
		MinPartialRatio:    0.5,
		MinPartialSegments: 2,
		Debounce:           500 * time.Millisecond,
		HealWaitBudget:     250 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("formstate.capacity must be positive, got %d", c.Capacity)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("formstate.ttl must be positive, got %s", c.TTL)
	}
	if c.MinPartialRatio <= 0 || c.MinPartialRatio > 1 {
		return fmt.Errorf("formstate.min_partial_ratio must be in (0,1], got %v", c.MinPartialRatio)
	}
	if c.MinPartialSegments < 1 {
		return fmt.Errorf("formstate.min_partial_segments must be at least 1, got %d", c.MinPartialSegments)
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.MinPartialRatio <= 0 {
		c.MinPartialRatio = def.MinPartialRatio
	}
	if c.MinPartialSegments <= 0 {
		c.MinPartialSegments = def.MinPartialSegments
	}
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.HealWaitBudget <= 0 {
		c.HealWaitBudget = def.HealWaitBudget
	}
	return c
}

// Field is one captured value.
type Field struct {
	Fingerprint string         `json:"fingerprint"`
	Locator     browser.Target `json:"locator"`
	Value       string         `json:"value,omitempty"`
	Checked     *bool          `json:"checked,omitempty"`
}

// Snapshot is the captured state of the forms on one page.
type Snapshot struct {
	URL       string    `json:"url"`
	Fields    []Field   `json:"fields"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists snapshots as one array in the form_snapshots namespace, newest last, at most one
// per normalized URL. The count cap and TTL are applied on every read and write.
type Store struct {
	mu     sync.Mutex
	kv     store.KV
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(kv store.KV, cfg Config, logger *zap.Logger) *Store {
	if kv == nil {
		kv = store.NewMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, cfg: cfg.withDefaults(), logger: logger.Named("formstate"), now: time.Now}
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// Save stores snap, replacing any earlier snapshot for the same URL.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	snap.URL = NormalizeURL(snap.URL)
	if snap.Timestamp.IsZero() {
		snap.Timestamp = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, o := range all {
		if o.URL != snap.URL {
			kept = append(kept, o)
		}
	}
	all = s.prune(append(kept, snap))
	if err := store.PutJSON(ctx, s.kv, store.NamespaceFormSnapshots, all); err != nil {
		return fmt.Errorf("failed to persist form snapshot: %w", err)
	}
	s.logger.Debug("Form snapshot saved.", zap.String("url", snap.URL), zap.Int("fields", len(snap.Fields)))
	return nil
}

// Load returns the live snapshot for rawURL.
func (s *Store) Load(ctx context.Context, rawURL string) (Snapshot, bool, error) {
	key := NormalizeURL(rawURL)
	all, err := s.List(ctx)
	if err != nil {
		return Snapshot{}, false, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].URL == key {
			return all[i], true, nil
		}
	}
	return Snapshot{}, false, nil
}

// List returns every live snapshot, oldest first.
func (s *Store) List(ctx context.Context) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.prune(all), nil
}

// Delete drops the snapshot for rawURL.
func (s *Store) Delete(ctx context.Context, rawURL string) error {
	key := NormalizeURL(rawURL)
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, o := range all {
		if o.URL != key {
			kept = append(kept, o)
		}
	}
	return store.PutJSON(ctx, s.kv, store.NamespaceFormSnapshots, s.prune(kept))
}

func (s *Store) load(ctx context.Context) ([]Snapshot, error) {
	var all []Snapshot
	if _, err := store.GetJSON(ctx, s.kv, store.NamespaceFormSnapshots, &all); err != nil {
		return nil, fmt.Errorf("failed to load form snapshots: %w", err)
	}
	return all, nil
}

func (s *Store) prune(all []Snapshot) []Snapshot {
	cutoff := s.now().Add(-s.cfg.TTL)
	kept := all[:0]
	for _, o := range all {
		if o.Timestamp.After(cutoff) {
			kept = append(kept, o)
		}
	}
	if over := len(kept) - s.cfg.Capacity; over > 0 {
		kept = kept[over:]
	}
	return kept
}
