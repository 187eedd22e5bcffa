// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/humanoid"
	"github.com/xkilldash9x/locus/internal/classifier"
	"github.com/xkilldash9x/locus/internal/executor"
	"github.com/xkilldash9x/locus/internal/formstate"
	"github.com/xkilldash9x/locus/internal/profile"
	"github.com/xkilldash9x/locus/internal/recovery"
	"github.com/xkilldash9x/locus/internal/scanner"
	"github.com/xkilldash9x/locus/internal/store"
	"github.com/xkilldash9x/locus/internal/telemetry"
)

// ErrAlreadyInstalled is returned by a second Install on the same engine.
var ErrAlreadyInstalled = errors.New("engine handlers already installed")

// Config gathers the settings of every component the engine owns.
type Config struct {
	Scanner   scanner.Config
	Recovery  recovery.Config
	Executor  executor.Config
	Humanoid  humanoid.Config
	FormState formstate.Config
	Telemetry telemetry.Config
	// Profile is the profile fills and autofill read values from; empty disables them.
	Profile string
	// AutoCapture keeps a form snapshot of the page current while Start is running.
	AutoCapture bool
}

// DefaultConfig returns the defaults of every component.
func DefaultConfig() Config {
	return Config{
		Scanner:   scanner.DefaultConfig(),
		Recovery:  recovery.DefaultConfig(),
		Executor:  executor.DefaultConfig(),
		Humanoid:  humanoid.DefaultConfig(),
		FormState: formstate.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Deps are the external resources the engine runs on. KV and Registerer may be nil, which means
// an in-memory store and no metrics.
type Deps struct {
	Page       browser.Page
	KV         store.KV
	Registerer prometheus.Registerer
	Logger     *zap.Logger
}

// Engine is the composition root. It owns one page and everything that resolves and acts on it.
type Engine struct {
	cfg    Config
	page   browser.Page
	logger *zap.Logger

	scanner    *scanner.Scanner
	classifier *classifier.Classifier
	ensemble   *recovery.Ensemble
	executor   *executor.Executor
	telemetry  *telemetry.Recorder
	forms      *formstate.Manager
	formStore  *formstate.Store
	profiles   *profile.Store
	active     *profile.Active

	installed atomic.Bool

	mu      sync.Mutex
	watcher *formstate.Watcher
}

// New wires the engine. Nothing runs until a request arrives or Start is called.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Page == nil {
		return nil, errors.New("engine requires a page")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.FormState.Validate(); err != nil {
		return nil, err
	}
	kv := deps.KV
	if kv == nil {
		kv = store.NewMemory()
	}

	var metrics *telemetry.Metrics
	if deps.Registerer != nil {
		metrics = telemetry.NewMetrics(deps.Registerer)
	}
	rec := telemetry.New(kv, cfg.Telemetry, metrics, logger)

	sc := scanner.New(cfg.Scanner, logger)
	ens, err := recovery.NewDefault(deps.Page, sc, cfg.Recovery, rec, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build recovery ensemble: %w", err)
	}
	cls := classifier.New()

	profiles := profile.NewStore(kv, logger)
	active := profile.NewActive(profiles, cfg.Profile)

	var pacer *humanoid.Humanoid
	if cfg.Humanoid.Enabled {
		pacer = humanoid.New(cfg.Humanoid, logger)
	}
	exec := executor.New(cfg.Executor, executor.Deps{
		Page:       deps.Page,
		Scanner:    sc,
		Classifier: cls,
		Ensemble:   ens,
		Humanoid:   pacer,
		Values:     active,
		Logger:     logger,
	})

	formStore := formstate.NewStore(kv, cfg.FormState, logger)
	return &Engine{
		cfg:        cfg,
		page:       deps.Page,
		logger:     logger.Named("engine"),
		scanner:    sc,
		classifier: cls,
		ensemble:   ens,
		executor:   exec,
		telemetry:  rec,
		forms:      formstate.NewManager(deps.Page, sc, formStore, ens, logger),
		formStore:  formStore,
		profiles:   profiles,
		active:     active,
	}, nil
}

// Start begins background form capture when configured. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	if !e.cfg.AutoCapture {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watcher != nil {
		return
	}
	e.watcher = e.forms.Watch(ctx, e.page.Changes())
	e.logger.Info("Form auto-capture started.")
}

// Close flushes and stops background capture. The page is not closed.
func (e *Engine) Close() {
	e.mu.Lock()
	w := e.watcher
	e.watcher = nil
	e.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Flush(context.Background()); err != nil {
		e.logger.Warn("Final form capture failed.", zap.Error(err))
	}
	w.Close()
}

func (e *Engine) Executor() *executor.Executor  { return e.executor }
func (e *Engine) Telemetry() *telemetry.Recorder { return e.telemetry }
func (e *Engine) Profiles() *profile.Store       { return e.profiles }
func (e *Engine) Forms() *formstate.Manager      { return e.forms }

// UseProfile selects the profile values are read from.
func (e *Engine) UseProfile(name string) { e.active.Use(name) }

// Scan rescans the page, rebuilding the field graph.
func (e *Engine) Scan(ctx context.Context) (*scanner.Snapshot, error) {
	return e.executor.Refresh(ctx)
}

// State answers a state query.
func (e *Engine) State(ctx context.Context) (browser.PageInfo, error) {
	return e.page.Info(ctx)
}
