package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStrategy struct {
	name    string
	prio    int
	fn      func(ctx context.Context, rc Context) (Result, error)
	calls   *[]string
	learned []Context
}

func (f *fakeStrategy) Name() string  { return f.name }
func (f *fakeStrategy) Priority() int { return f.prio }
func (f *fakeStrategy) Attempt(ctx context.Context, rc Context) (Result, error) {
	*f.calls = append(*f.calls, f.name)
	return f.fn(ctx, rc)
}

type learningStrategy struct {
	*fakeStrategy
}

func (l learningStrategy) Learn(rc Context, res Result) {
	l.learned = append(l.learned, rc)
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []telemetry.Entry
}

func (r *fakeRecorder) Record(ctx context.Context, e telemetry.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func success(sel string) func(context.Context, Context) (Result, error) {
	return func(context.Context, Context) (Result, error) {
		return found(Element{Target: browser.Target{Selector: sel}}, nil), nil
	}
}

func miss(context.Context, Context) (Result, error) { return Result{}, nil }

func TestEnsemble_EmptyRegistry(t *testing.T) {
	rec := &fakeRecorder{}
	e := NewEnsemble(rec, zap.NewNop())

	res := e.AttemptRecovery(context.Background(), "fill", "#email", []string{"#email"}, Context{})
	assert.False(t, res.Success)
	assert.Zero(t, res.Duration)
	assert.Equal(t, 0, res.Info["attempted"])
	assert.Empty(t, rec.entries)
}

func TestEnsemble_PriorityOrderAndShortCircuit(t *testing.T) {
	var calls []string
	rec := &fakeRecorder{}
	e := NewEnsemble(rec, zap.NewNop())
	e.Register(&fakeStrategy{name: "low", prio: 10, fn: success("#low"), calls: &calls})
	e.Register(&fakeStrategy{name: "high", prio: 90, fn: miss, calls: &calls})
	e.Register(&fakeStrategy{name: "mid", prio: 50, fn: success("#mid"), calls: &calls})

	assert.Equal(t, []string{"high", "mid", "low"}, e.Strategies())

	res := e.AttemptRecovery(context.Background(), "click", "Buy", nil, Context{})
	require.True(t, res.Success)
	assert.Equal(t, "mid", res.Strategy)
	assert.Equal(t, "#mid", res.Element.Target.Selector)
	assert.Equal(t, []string{"high", "mid"}, calls, "a lower priority strategy must not run after a success")
	assert.Equal(t, 2, res.Info["attempted"])

	require.Len(t, rec.entries, 1)
	assert.Equal(t, telemetry.Success, rec.entries[0].Type)
	assert.Equal(t, "mid", rec.entries[0].Strategy)
	assert.Equal(t, "Buy", rec.entries[0].Target)
}

func TestEnsemble_AbsorbsErrorsAndPanics(t *testing.T) {
	var calls []string
	e := NewEnsemble(nil, zap.NewNop())
	e.Register(&fakeStrategy{name: "panics", prio: 3, calls: &calls, fn: func(context.Context, Context) (Result, error) {
		panic("boom")
	}})
	e.Register(&fakeStrategy{name: "errors", prio: 2, calls: &calls, fn: func(context.Context, Context) (Result, error) {
		return Result{}, errors.New("page gone")
	}})
	e.Register(&fakeStrategy{name: "works", prio: 1, calls: &calls, fn: success("#ok")})

	res := e.AttemptRecovery(context.Background(), "fill", "x", nil, Context{})
	require.True(t, res.Success)
	assert.Equal(t, "works", res.Strategy)
	assert.Equal(t, []string{"panics", "errors", "works"}, calls)
}

func TestEnsemble_ExhaustionIsRecorded(t *testing.T) {
	var calls []string
	rec := &fakeRecorder{}
	e := NewEnsemble(rec, zap.NewNop())
	e.Register(&fakeStrategy{name: "a", prio: 2, calls: &calls, fn: miss})
	e.Register(&fakeStrategy{name: "b", prio: 1, calls: &calls, fn: func(context.Context, Context) (Result, error) {
		return Result{}, errors.New("last failure")
	}})

	res := e.AttemptRecovery(context.Background(), "fill", "#gone", []string{"#gone"}, Context{})
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Info["attempted"])
	assert.Equal(t, "last failure", res.Info["lastError"])

	require.Len(t, rec.entries, 1)
	assert.Equal(t, telemetry.Failure, rec.entries[0].Type)
	assert.Equal(t, "fill", rec.entries[0].Intent)
	assert.Equal(t, 2, rec.entries[0].Attempted)
}

func TestEnsemble_ContextIsolationAndLearning(t *testing.T) {
	var calls []string
	e := NewEnsemble(nil, zap.NewNop())
	e.Register(&fakeStrategy{name: "mutator", prio: 2, calls: &calls, fn: func(_ context.Context, rc Context) (Result, error) {
		rc.Hints["label"] = "tampered"
		rc.FailedLocators[0] = "tampered"
		return Result{}, nil
	}})
	learner := learningStrategy{&fakeStrategy{name: "checker", prio: 1, calls: &calls, fn: func(_ context.Context, rc Context) (Result, error) {
		if rc.Hints["label"] != "Email" || rc.FailedLocators[0] != "#email" {
			return Result{}, errors.New("context leaked between strategies")
		}
		return found(Element{Target: browser.Target{Selector: "#mail"}}, nil), nil
	}}}
	e.Register(learner)

	hints := map[string]string{"label": "Email"}
	res := e.AttemptRecovery(context.Background(), "fill", "#email", []string{"#email"}, Context{Hints: hints})
	require.True(t, res.Success, "%v", res.Info)
	assert.Equal(t, "Email", hints["label"])
	require.Len(t, learner.learned, 1)
	assert.Equal(t, "fill", learner.learned[0].Intent)
	assert.Equal(t, "#email", learner.learned[0].Target)
}

func TestEnsemble_StopsOnCancellation(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	e := NewEnsemble(nil, zap.NewNop())
	e.Register(&fakeStrategy{name: "cancels", prio: 2, calls: &calls, fn: func(context.Context, Context) (Result, error) {
		cancel()
		return Result{}, nil
	}})
	e.Register(&fakeStrategy{name: "never", prio: 1, calls: &calls, fn: success("#x")})

	res := e.AttemptRecovery(ctx, "click", "x", nil, Context{})
	assert.False(t, res.Success)
	assert.Equal(t, []string{"cancels"}, calls)
	assert.Equal(t, context.Canceled.Error(), res.Info["lastError"])
}
