package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/browser/memory"
	"github.com/xkilldash9x/locus/internal/changes"
)

const formHTML = `<html><body>
	<input id="plain" name="plain">
	<input id="controlled" name="controlled" data-controlled>
	<input id="agree" type="checkbox">
	<input type="radio" name="plan" id="basic" checked><input type="radio" name="plan" id="pro">
	<select id="size"><option value="s">Small</option><option value="l">Large</option></select>
	<button id="go" disabled>Go</button>
	<div id="spacer" style="height:4000px"></div>
	<div id="feed"></div>
</body></html>`

func newPage(t *testing.T) *memory.Page {
	t.Helper()
	p, err := memory.NewPage(formHTML, "https://app.test/form", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func sel(s string) browser.Target { return browser.Target{Selector: s} }

func TestPage_WriteStrategies(t *testing.T) {
	ctx := context.Background()
	p := newPage(t)

	require.NoError(t, p.SetValue(ctx, sel("#plain"), "hello"))
	v, err := p.ReadValue(ctx, sel("#plain"))
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	require.NoError(t, p.TypeKeys(ctx, sel("#plain"), "abc", 0))
	v, _ = p.ReadValue(ctx, sel("#plain"))
	assert.Equal(t, "abc", v)

	// Controlled inputs ignore assignment and key events.
	require.NoError(t, p.SetValue(ctx, sel("#controlled"), "x"))
	require.NoError(t, p.TypeKeys(ctx, sel("#controlled"), "x", 0))
	v, _ = p.ReadValue(ctx, sel("#controlled"))
	assert.Empty(t, v)

	require.NoError(t, p.SetValueNative(ctx, sel("#controlled"), "native"))
	v, _ = p.ReadValue(ctx, sel("#controlled"))
	assert.Equal(t, "native", v)

	require.NoError(t, p.SetValue(ctx, sel("#size"), "Large"))
	v, _ = p.ReadValue(ctx, sel("#size"))
	assert.Equal(t, "l", v)

	err = p.SetValue(ctx, sel("#agree"), "x")
	assert.ErrorIs(t, err, browser.ErrNotEditable)

	err = p.SetValue(ctx, sel("#nope"), "x")
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestPage_Toggles(t *testing.T) {
	ctx := context.Background()
	p := newPage(t)

	require.NoError(t, p.Click(ctx, sel("#agree")))
	v, _ := p.ReadValue(ctx, sel("#agree"))
	assert.Equal(t, "true", v)

	require.NoError(t, p.SetChecked(ctx, sel("#pro"), true))
	basic, _ := p.ReadValue(ctx, sel("#basic"))
	pro, _ := p.ReadValue(ctx, sel("#pro"))
	assert.Equal(t, "false", basic)
	assert.Equal(t, "true", pro)

	assert.Error(t, p.Click(ctx, sel("#go")))
}

func TestPage_ScrollClampsAndRunsHooks(t *testing.T) {
	ctx := context.Background()
	p := newPage(t)

	p.OnScroll(func(doc *dom.Document) bool {
		if doc.Viewport.ScrollY < 2400 {
			return false
		}
		feed, _ := doc.QueryOne(nil, "#feed")
		if feed == nil || feed.FirstChild != nil {
			return false
		}
		require.NoError(t, dom.AppendHTML(feed, `<button id="more">More</button>`))
		return true
	})

	require.NoError(t, p.ScrollBy(ctx, 0, -500))
	info, err := p.Info(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.Scroll.Y)

	require.NoError(t, p.ScrollBy(ctx, 0, 2400))
	doc, err := p.Document(ctx)
	require.NoError(t, err)
	more, _ := doc.QueryOne(nil, "#more")
	require.NotNil(t, more)
	assert.True(t, doc.IsVisible(more))

	require.NoError(t, p.ScrollTo(ctx, 0, 1e9))
	info, _ = p.Info(ctx)
	assert.InDelta(t, doc.Height()-info.Viewport.Height, info.Scroll.Y, 1)
}

func TestPage_DocumentIsSnapshot(t *testing.T) {
	ctx := context.Background()
	p := newPage(t)

	doc, err := p.Document(ctx)
	require.NoError(t, err)
	require.NoError(t, p.SetValue(ctx, sel("#plain"), "later"))

	plain, _ := doc.QueryOne(nil, "#plain")
	assert.Empty(t, doc.Value(plain), "snapshots must not observe later writes")
}

func TestPage_MutateNotifiesSubscribers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p := newPage(t)

	p.MutateAfter(20*time.Millisecond, func(doc *dom.Document) error {
		body, _ := doc.QueryOne(nil, "body")
		return dom.AppendHTML(body, `<input id="late">`)
	})

	var found *html.Node
	err := changes.WaitFor(ctx, p.Changes(), time.Second, func(ctx context.Context) (bool, error) {
		doc, err := p.Document(ctx)
		if err != nil {
			return false, err
		}
		found, _ = doc.QueryOne(nil, "#late")
		return found != nil, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, found)
}

func TestPage_EventsAndScripts(t *testing.T) {
	ctx := context.Background()
	p := newPage(t)

	out, err := p.RunScript(ctx, "1+1")
	require.NoError(t, err)
	assert.JSONEq(t, "null", string(out))

	require.NoError(t, p.Highlight(ctx, sel("#plain"), time.Second))
	events := p.Events()
	require.Len(t, events, 2)
	assert.Equal(t, memory.EventScript, events[0].Kind)
	assert.Equal(t, memory.EventHighlight, events[1].Kind)
	assert.Equal(t, "#plain", events[1].Target)
}
