// internal/executor/executor.go
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/humanoid"
	"github.com/xkilldash9x/locus/internal/classifier"
	"github.com/xkilldash9x/locus/internal/fieldgraph"
	"github.com/xkilldash9x/locus/internal/recovery"
	"github.com/xkilldash9x/locus/internal/scanner"
)

var (
	// ErrNotResolved is returned when no locator, graph entry or recovery strategy produced an
	// element.
	ErrNotResolved = errors.New("element could not be resolved")
	// ErrNoEffect is returned by a write strategy whose value did not stick.
	ErrNoEffect = errors.New("write had no observable effect")
	// ErrWriteFailed is returned when every write strategy failed.
	ErrWriteFailed = errors.New("all write strategies failed")
	// ErrScriptsDisabled is the policy failure for RunScript when scripts are not allowed.
	ErrScriptsDisabled = errors.New("script execution is disabled by policy")
	// ErrSensitiveField is returned when a profile value would be written into a sensitive field.
	ErrSensitiveField = errors.New("refusing to auto-fill a sensitive field")
	// ErrNoValue is returned when a fill has neither a value nor a profile value.
	ErrNoValue = errors.New("no value to fill")
)

// Config controls executor policy.
type Config struct {
	AllowScripts        bool          `mapstructure:"allow_scripts" yaml:"allow_scripts" json:"allow_scripts"`
	Highlight           bool          `mapstructure:"highlight" yaml:"highlight" json:"highlight"`
	HighlightDuration   time.Duration `mapstructure:"highlight_duration" yaml:"highlight_duration" json:"highlight_duration"`
	MaxActionsPerSecond float64       `mapstructure:"max_actions_per_second" yaml:"max_actions_per_second" json:"max_actions_per_second"`
	// RecoveryWaitBudget caps waiting strategies during resolution.
	RecoveryWaitBudget time.Duration `mapstructure:"recovery_wait_budget" yaml:"recovery_wait_budget" json:"recovery_wait_budget"`
}

func DefaultConfig() Config {
	return Config{
		Highlight:           true,
		HighlightDuration:   600 * time.Millisecond,
		MaxActionsPerSecond: 10,
		RecoveryWaitBudget:  1500 * time.Millisecond,
	}
}

// ValueSource supplies profile values by semantic type.
type ValueSource interface {
	ValueFor(ctx context.Context, t classifier.SemanticType) (string, bool)
}

// Deps are the collaborators of an executor. Ensemble, Humanoid and Values may be nil.
type Deps struct {
	Page       browser.Page
	Scanner    *scanner.Scanner
	Classifier *classifier.Classifier
	Ensemble   *recovery.Ensemble
	Humanoid   *humanoid.Humanoid
	Values     ValueSource
	Logger     *zap.Logger
}

// Result is the outcome of one action. Failures are values, never panics or Go errors.
type Result struct {
	Success bool   `json:"success"`
	Action  Kind   `json:"action"`
	Target  string `json:"target,omitempty"`
	// Resolution names how the element was found: "selector", "graph" or a recovery strategy.
	Resolution    string          `json:"resolution,omitempty"`
	WriteStrategy string          `json:"writeStrategy,omitempty"`
	Value         string          `json:"value,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Skipped       bool            `json:"skipped,omitempty"`
	Validation    string          `json:"validation,omitempty"`
	Error         string          `json:"error,omitempty"`
	Transitions   []State         `json:"transitions"`
	DurationMs    int64           `json:"durationMs"`

	err    error
	target *browser.Target
}

// Err returns the underlying error of a failed result.
func (r Result) Err() error { return r.err }

// Failure builds the result of an action that failed before reaching the executor.
func Failure(kind Kind, err error) Result {
	return Result{Action: kind, Error: err.Error(), Transitions: []State{StateIdle, StateFailed}, err: err}
}

// BatchResult summarises a sequential batch.
type BatchResult struct {
	Success       bool     `json:"success"`
	ExecutedSteps int      `json:"executedSteps"`
	TotalSteps    int      `json:"totalSteps"`
	Results       []Result `json:"results"`
}

// Executor runs actions against one page. Requests are serialised: one action or batch holds the
// executor at a time.
type Executor struct {
	cfg      Config
	page     browser.Page
	scanner  *scanner.Scanner
	classify *classifier.Classifier
	ensemble *recovery.Ensemble
	pacer    *humanoid.Humanoid
	values   ValueSource
	limiter  *rate.Limiter
	logger   *zap.Logger

	run sync.Mutex

	graphMu sync.RWMutex
	graph   *fieldgraph.Graph
	snap    *scanner.Snapshot
}

func New(cfg Config, deps Deps) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Scanner == nil {
		deps.Scanner = scanner.New(scanner.DefaultConfig(), logger)
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.New()
	}
	if cfg.HighlightDuration <= 0 {
		cfg.HighlightDuration = DefaultConfig().HighlightDuration
	}
	limit := rate.Inf
	if cfg.MaxActionsPerSecond > 0 {
		limit = rate.Limit(cfg.MaxActionsPerSecond)
	}
	return &Executor{
		cfg:      cfg,
		page:     deps.Page,
		scanner:  deps.Scanner,
		classify: deps.Classifier,
		ensemble: deps.Ensemble,
		pacer:    deps.Humanoid,
		values:   deps.Values,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.Named("executor"),
	}
}

// Refresh rescans the page and replaces the field graph wholesale.
func (e *Executor) Refresh(ctx context.Context) (*scanner.Snapshot, error) {
	snap, err := e.scanner.ScanPage(ctx, e.page)
	if err != nil {
		return nil, err
	}
	g := fieldgraph.Build(snap, e.classify)
	e.graphMu.Lock()
	e.graph, e.snap = g, snap
	e.graphMu.Unlock()
	return snap, nil
}

// Graph returns the field graph of the most recent scan, or nil before the first one.
func (e *Executor) Graph() *fieldgraph.Graph {
	e.graphMu.RLock()
	defer e.graphMu.RUnlock()
	return e.graph
}

// Execute runs a single action.
func (e *Executor) Execute(ctx context.Context, a Action) Result {
	e.run.Lock()
	defer e.run.Unlock()
	return e.execute(ctx, a)
}

// ExecuteBatch runs actions in order and stops at the first failure or cancellation.
func (e *Executor) ExecuteBatch(ctx context.Context, actions []Action) BatchResult {
	e.run.Lock()
	defer e.run.Unlock()

	out := BatchResult{TotalSteps: len(actions), Results: make([]Result, 0, len(actions))}
	for i, a := range actions {
		if err := ctx.Err(); err != nil {
			e.logger.Info("Batch cancelled.", zap.Int("step", i), zap.Error(err))
			break
		}
		if err := e.limiter.Wait(ctx); err != nil {
			break
		}
		res := e.execute(ctx, a)
		out.Results = append(out.Results, res)
		out.ExecutedSteps++
		if !res.Success {
			e.logger.Info("Batch stopped at failed step.", zap.Int("step", i), zap.String("error", res.Error))
			break
		}
	}
	out.Success = out.ExecutedSteps == out.TotalSteps && allSucceeded(out.Results)
	return out
}

// Held runs actions for a caller that holds the executor through Hold.
type Held struct{ e *Executor }

// Execute runs a once the rate limiter allows it.
func (h Held) Execute(ctx context.Context, a Action) Result {
	if err := h.e.limiter.Wait(ctx); err != nil {
		return Failure(a.Kind(), err)
	}
	return h.e.execute(ctx, a)
}

// Hold gives fn exclusive use of the executor. Actions fn runs through the Held value are paced
// like batch steps and no other request interleaves with them.
func (e *Executor) Hold(fn func(h Held)) {
	e.run.Lock()
	defer e.run.Unlock()
	fn(Held{e: e})
}

func allSucceeded(rs []Result) bool {
	for _, r := range rs {
		if !r.Success {
			return false
		}
	}
	return true
}

func (e *Executor) execute(ctx context.Context, a Action) Result {
	start := time.Now()
	m := newMachine()
	res := Result{Action: a.Kind()}

	var err error
	switch act := a.(type) {
	case Click:
		err = e.click(ctx, m, act, &res)
	case Fill:
		err = e.fillAction(ctx, m, act, &res)
	case Scroll:
		err = e.scroll(ctx, m, act, &res)
	case Wait:
		m.to(StateExecuting)
		err = humanoid.Sleep(ctx, act.Duration)
	case Extract:
		err = e.extract(ctx, m, act, &res)
	case RunScript:
		err = e.script(ctx, m, act, &res)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}

	if err == nil {
		m.to(StateSettling)
		e.settle(ctx, a, &res)
		err = ctx.Err()
	}
	if err != nil {
		m.fail()
		res.Success, res.err, res.Error = false, err, err.Error()
		e.logger.Debug("Action failed.", zap.String("action", string(res.Action)), zap.String("target", res.Target), zap.Error(err))
	} else {
		m.to(StateDone)
		res.Success = true
	}
	res.Transitions = m.recorded()
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

// settle highlights the element and applies the humanized pause.
func (e *Executor) settle(ctx context.Context, a Action, res *Result) {
	if e.cfg.Highlight && res.target != nil {
		if err := e.page.Highlight(ctx, *res.target, e.cfg.HighlightDuration); err != nil {
			e.logger.Debug("Highlight failed.", zap.Error(err))
		}
	}
	if a.Kind() != KindWait {
		_ = e.pacer.Pause(ctx)
	}
}
