package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/browser/memory"
	"github.com/xkilldash9x/locus/internal/scanner"
)

func newEnv(t *testing.T, markup string) (Env, *memory.Page) {
	t.Helper()
	page, err := memory.NewPage(markup, "https://app.test/form", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(page.Close)
	cfg := DefaultConfig()
	cfg.ChangeWaitTimeout = 100 * time.Millisecond
	return Env{Page: page, Scanner: scanner.New(scanner.DefaultConfig(), nil), Config: cfg}, page
}

const renamedHTML = `<html><body><form>
	<label for="contact-email-v2">Email address</label><input id="contact-email-v2" name="contact_email">
	<label for="fullname">Full name</label><input id="fullname">
</form></body></html>`

func TestHeuristic_RenamedID(t *testing.T) {
	env, _ := newEnv(t, renamedHTML)
	h := NewHeuristic(env)

	res, err := h.Attempt(context.Background(), Context{
		Intent: "fill", Target: "#email", FailedLocators: []string{"#email"},
		Hints: map[string]string{HintLabel: "Email address"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "contact-email-v2", res.Element.Field.ID)
	assert.Equal(t, 4, res.Info["score"])

	res, err = h.Attempt(context.Background(), Context{Intent: "fill", Target: "#zzz"})
	require.NoError(t, err)
	assert.False(t, res.Success, "no overlap must stay below the threshold")
}

func TestTokenizeAndScore(t *testing.T) {
	assert.Equal(t, []string{"contact", "email", "v2"}, Tokenize("#contact-email-v2"))
	assert.Equal(t, []string{"billing", "address"}, Tokenize("billingAddress"))
	assert.Equal(t, []string{"prenom"}, Tokenize("Enter your Prénom"))

	assert.Equal(t, 2, score([]string{"email"}, []string{"contact", "email"}, 5))
	assert.Equal(t, 1, score([]string{"zip"}, []string{"zipcode"}, 5))
	assert.Zero(t, score([]string{"phone"}, []string{"email"}, 5))
}

func TestPermutation(t *testing.T) {
	env, _ := newEnv(t, `<html><body>
		<div id="email-wrapper"><input name="user_email" placeholder="you@example.com"></div>
	</body></html>`)
	p := NewPermutation(env)

	rc := Context{Intent: "fill", Target: "[name='email']", FailedLocators: []string{`[name="email"]`}}
	sels := p.Selectors(rc)
	assert.NotContains(t, sels, `[name="email"]`)
	assert.Contains(t, sels, "#email")

	res, err := p.Attempt(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, res.Success)
	// The wrapper div matches [id*=email] but is not a form control.
	assert.Equal(t, `[name*="email" i]`, res.Element.Target.Selector)
	assert.Equal(t, "user_email", res.Element.Field.Name)
}

const lazyHTML = `<html><body>
	<div style="height:4000px">spacer</div>
	<div id="feed"></div>
</body></html>`

func lazyLoad(doc *dom.Document) bool {
	feed, _ := doc.QueryOne(nil, "#feed")
	if feed == nil || feed.FirstChild != nil || doc.Viewport.ScrollY < 2400 {
		return false
	}
	_ = dom.AppendHTML(feed, `<label for="late-input">Promo code</label><input id="late-input" name="promo">`)
	return true
}

func TestProbeScroll_FindsLazyTarget(t *testing.T) {
	env, page := newEnv(t, lazyHTML)
	page.OnScroll(lazyLoad)

	e, err := NewDefault(page, env.Scanner, env.Config, nil, zap.NewNop())
	require.NoError(t, err)

	res := e.AttemptRecovery(context.Background(), "fill", "Promo code", nil, Context{})
	require.True(t, res.Success, "%v", res.Info)
	assert.Equal(t, "probe_scroll", res.Strategy)
	assert.Equal(t, 4, res.Info["probe"])
	assert.Equal(t, "late-input", res.Element.Field.ID)

	info, err := page.Info(context.Background())
	require.NoError(t, err)
	assert.Greater(t, info.Scroll.Y, 2400.0, "viewport must stay at the element")

	doc, err := page.Document(context.Background())
	require.NoError(t, err)
	n, err := doc.QueryOne(nil, "#late-input")
	require.NoError(t, err)
	assert.True(t, doc.InViewport(n))
}

func TestProbeScroll_ResetsWhenNothingAppears(t *testing.T) {
	env, page := newEnv(t, lazyHTML)
	ctx := context.Background()
	require.NoError(t, page.ScrollTo(ctx, 0, 100))

	res, err := NewProbeScroll(env).Attempt(ctx, Context{Intent: "click", Target: "Load more reviews"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	info, err := page.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, info.Scroll.Y)
}

// stuckScroll refuses to scroll anywhere but the top.
type stuckScroll struct{ *memory.Page }

func (s stuckScroll) ScrollTo(ctx context.Context, x, y float64) error {
	if y != 0 {
		return errors.New("scroll rejected")
	}
	return s.Page.ScrollTo(ctx, x, y)
}

func TestProbeScroll_LogsFailedRestore(t *testing.T) {
	env, page := newEnv(t, lazyHTML)
	ctx := context.Background()
	require.NoError(t, page.ScrollTo(ctx, 0, 100))
	core, logs := observer.New(zapcore.WarnLevel)
	env.Page, env.Logger = stuckScroll{page}, zap.New(core)

	res, err := NewProbeScroll(env).Attempt(ctx, Context{Intent: "click", Target: "Load more reviews"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	entries := logs.FilterMessage("Failed to restore scroll position.").All()
	require.Len(t, entries, 1)
	assert.Equal(t, 100.0, entries[0].ContextMap()["y"])
}

func TestProbeScroll_SkipsNonInteraction(t *testing.T) {
	env, page := newEnv(t, lazyHTML)
	res, err := NewProbeScroll(env).Attempt(context.Background(), Context{Intent: "extract", Target: "Promo code"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, page.Events(), "non-interaction intents must not move the viewport")
}

func TestChangeWait(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves on change", func(t *testing.T) {
		env, page := newEnv(t, `<html><body><div id="app"></div></body></html>`)
		page.MutateAfter(20*time.Millisecond, func(doc *dom.Document) error {
			app, _ := doc.QueryOne(nil, "#app")
			return dom.AppendHTML(app, `<input id="late" name="late">`)
		})
		res, err := NewChangeWait(env).Attempt(ctx, Context{
			Intent: "fill", Target: "#late", FailedLocators: []string{"#late"}, WaitBudget: 2 * time.Second,
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		assert.Equal(t, "#late", res.Element.Target.Selector)
	})

	t.Run("resolves immediately", func(t *testing.T) {
		env, _ := newEnv(t, `<html><body><input id="now"></body></html>`)
		start := time.Now()
		res, err := NewChangeWait(env).Attempt(ctx, Context{Intent: "fill", Target: "#now"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("times out", func(t *testing.T) {
		env, _ := newEnv(t, `<html><body></body></html>`)
		res, err := NewChangeWait(env).Attempt(ctx, Context{
			Intent: "fill", Target: "#never", WaitBudget: 30 * time.Millisecond,
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "30ms", res.Info["timeout"])
	})
}

const nestedHTML = `<html><body>
	<my-widget id="w"><template shadowrootmode="open">
		<inner-widget id="iw"><template shadowrootmode="open"><input id="deep" name="deep"></template></inner-widget>
		<input id="inner" name="inner">
	</template></my-widget>
	<div id="vault"><template shadowrootmode="closed"><input id="hidden-away"></template></div>
	<iframe id="pay" srcdoc="<input id='card' name='card'>"></iframe>
</body></html>`

func TestDeepTraversal(t *testing.T) {
	ctx := context.Background()
	env, page := newEnv(t, nestedHTML)
	d := NewDeepTraversal(env)

	tests := []struct {
		target string
		scope  []string
	}{
		{"#inner", []string{"#w"}},
		{"#deep", []string{"#w", "#iw"}},
		{"#card", []string{"#pay"}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			res, err := d.Attempt(ctx, Context{Intent: "fill", Target: tt.target, FailedLocators: []string{tt.target}})
			require.NoError(t, err)
			require.True(t, res.Success)
			assert.Equal(t, browser.Target{Scope: tt.scope, Selector: tt.target}, res.Element.Target)
			assert.NoError(t, page.SetValue(ctx, res.Element.Target, "x"), "the target must be usable on the live page")
		})
	}

	res, err := d.Attempt(ctx, Context{Intent: "fill", Target: "#hidden-away"})
	require.NoError(t, err)
	assert.False(t, res.Success, "closed roots are never entered")

	env.Config.MaxTraversalDepth = 1
	res, err = NewDeepTraversal(env).Attempt(ctx, Context{Intent: "fill", Target: "#deep"})
	require.NoError(t, err)
	assert.False(t, res.Success, "the depth cap bounds the search")
}

func TestLabelProximity(t *testing.T) {
	env, _ := newEnv(t, `<html><body><form>
		<label for="pn">Prénom :</label><input id="pn">
		<label>Nom de famille <input name="nf"></label>
		<div><label>Ville</label><input name="ville"></div>
	</form></body></html>`)
	l := NewLabelProximity(env)

	tests := []struct {
		target  string
		name    string
		id      string
		binding string
	}{
		{"PRENOM", "", "pn", "for"},
		{"nom de famille", "nf", "", "nested"},
		{"Ville", "ville", "", "sibling"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			res, err := l.Attempt(context.Background(), Context{Intent: "fill", Target: tt.target})
			require.NoError(t, err)
			require.True(t, res.Success)
			assert.Equal(t, tt.id, res.Element.Field.ID)
			assert.Equal(t, tt.name, res.Element.Field.Name)
			assert.Equal(t, tt.binding, res.Info["binding"])
		})
	}
}

func TestValidationRetry(t *testing.T) {
	env, _ := newEnv(t, `<html><body><form>
		<label for="a">Email address (work)</label><input id="a">
		<label for="b">Email address</label><input id="b">
	</form></body></html>`)
	v := NewValidationRetry(env)
	ctx := context.Background()

	res, err := v.Attempt(ctx, Context{Intent: "fill", Target: "Email address (work)"})
	require.NoError(t, err)
	assert.False(t, res.Success, "runs only after a validation failure")

	res, err = v.Attempt(ctx, Context{
		Intent: "fill", Target: "Email address (work)", FailedLocators: []string{"#a"}, ValidationError: "invalid email",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "b", res.Element.Field.ID)
	assert.Equal(t, "Email address", res.Info["relaxed"])
}

func TestSkillMemory(t *testing.T) {
	env, page := newEnv(t, renamedHTML)
	s, err := NewSkillMemory(env)
	require.NoError(t, err)
	ctx := context.Background()
	rc := Context{Intent: "fill", Target: "#email"}

	res, err := s.Attempt(ctx, rc)
	require.NoError(t, err)
	assert.False(t, res.Success)

	s.Learn(rc, found(Element{Target: browser.Target{Selector: "#contact-email-v2"}}, nil))
	assert.Equal(t, 1, s.Len())
	res, err = s.Attempt(ctx, rc)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "#contact-email-v2", res.Element.Target.Selector)

	require.NoError(t, page.Mutate(func(doc *dom.Document) error {
		n, _ := doc.QueryOne(nil, "#contact-email-v2")
		dom.Remove(n)
		return nil
	}))
	res, err = s.Attempt(ctx, rc)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, s.Len(), "a dead skill is forgotten")
}

func TestNewDefault_Order(t *testing.T) {
	env, page := newEnv(t, renamedHTML)
	e, err := NewDefault(page, env.Scanner, env.Config, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"skill_memory", "heuristic", "permutation", "probe_scroll",
		"change_wait", "deep_traversal", "label_proximity", "validation_retry",
	}, e.Strategies())

	bad := DefaultConfig()
	bad.ProbeFraction = 2
	_, err = NewDefault(page, env.Scanner, bad, nil, nil)
	assert.Error(t, err)
}
