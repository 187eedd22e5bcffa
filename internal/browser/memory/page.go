// internal/browser/memory/page.go
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/changes"
)

// ControlledAttr marks an element that behaves like a framework-controlled input: it ignores plain
// value assignment and synthetic key events, and only the native prototype setter sticks.
const ControlledAttr = "data-controlled"

// EventKind identifies a recorded page interaction.
type EventKind string

const (
	EventClick     EventKind = "click"
	EventInput     EventKind = "input"
	EventKeys      EventKind = "keys"
	EventNative    EventKind = "native"
	EventCheck     EventKind = "check"
	EventScroll    EventKind = "scroll"
	EventHighlight EventKind = "highlight"
	EventScript    EventKind = "script"
)

// Event is one recorded interaction, kept for inspection by tests and the CLI.
type Event struct {
	Kind   EventKind
	Target string
	Value  string
}

// ScrollHook runs after every viewport change with the live document. Returning true reports that
// the hook mutated the tree, which triggers a reindex and a change notification.
type ScrollHook func(doc *dom.Document) bool

// Page is an in-process browser.Page over a mutable document.
type Page struct {
	logger *zap.Logger
	bus    *changes.Bus

	mu      sync.Mutex
	doc     *dom.Document
	cursor  browser.Point
	events  []Event
	hooks   []ScrollHook
	timers  []*time.Timer
	scripts func(code string) (json.RawMessage, error)
}

var _ browser.Page = (*Page)(nil)

// NewPage parses markup into a live document addressed by rawURL.
func NewPage(markup, rawURL string, logger *zap.Logger) (*Page, error) {
	doc, err := dom.ParseString(markup, rawURL)
	if err != nil {
		return nil, err
	}
	return NewPageFromDocument(doc, logger), nil
}

// NewPageFromDocument wraps an already parsed document. The page takes ownership of doc.
func NewPageFromDocument(doc *dom.Document, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("memory_page")
	return &Page{
		logger: logger,
		bus:    changes.NewBus(logger),
		doc:    doc,
	}
}

// SetScriptRunner installs the evaluator used by RunScript. Without one, scripts evaluate to null.
func (p *Page) SetScriptRunner(fn func(code string) (json.RawMessage, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = fn
}

// OnScroll registers a hook run after every viewport change.
func (p *Page) OnScroll(h ScrollHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, h)
}

// Mutate applies fn to the live document, then reindexes it and notifies change subscribers.
func (p *Page) Mutate(fn func(doc *dom.Document) error) error {
	p.mu.Lock()
	err := fn(p.doc)
	p.doc.Reindex()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.bus.Notify("mutation")
	return nil
}

// MutateAfter schedules a mutation. Close cancels mutations that have not run yet.
func (p *Page) MutateAfter(d time.Duration, fn func(doc *dom.Document) error) {
	t := time.AfterFunc(d, func() {
		if err := p.Mutate(fn); err != nil {
			p.logger.Warn("Scheduled mutation failed.", zap.Error(err))
		}
	})
	p.mu.Lock()
	p.timers = append(p.timers, t)
	p.mu.Unlock()
}

// Events returns a copy of the recorded interactions.
func (p *Page) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Close stops pending mutations and closes the change bus.
func (p *Page) Close() {
	p.mu.Lock()
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
	p.mu.Unlock()
	p.bus.Close()
}

// -- browser.Page --

func (p *Page) Document(ctx context.Context) (*dom.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Clone(), nil
}

func (p *Page) Info(ctx context.Context) (browser.PageInfo, error) {
	if err := ctx.Err(); err != nil {
		return browser.PageInfo{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	info := browser.PageInfo{
		Title:    p.doc.Title(),
		Scroll:   browser.Point{X: p.doc.Viewport.ScrollX, Y: p.doc.Viewport.ScrollY},
		Cursor:   p.cursor,
		Viewport: p.doc.Viewport,
	}
	if p.doc.URL != nil {
		info.URL = p.doc.URL.String()
	}
	return info, nil
}

func (p *Page) Changes() changes.Source { return p.bus }

func (p *Page) Click(ctx context.Context, t browser.Target) error {
	return p.act(ctx, t, func(doc *dom.Document, n *html.Node) (bool, error) {
		if dom.IsDisabled(n) {
			return false, fmt.Errorf("cannot click disabled element %s", t)
		}
		r := doc.PageRect(n)
		p.cursor = browser.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
		p.record(EventClick, t, "")
		switch dom.InputType(n) {
		case "checkbox":
			doc.SetChecked(n, !doc.Checked(n))
			return true, nil
		case "radio":
			setRadio(doc, n)
			return true, nil
		}
		return false, nil
	})
}

func (p *Page) SetValue(ctx context.Context, t browser.Target, value string) error {
	return p.act(ctx, t, func(doc *dom.Document, n *html.Node) (bool, error) {
		if err := editable(n, t); err != nil {
			return false, err
		}
		p.record(EventInput, t, value)
		if dom.HasAttr(n, ControlledAttr) {
			return false, nil
		}
		return assign(doc, n, value), nil
	})
}

func (p *Page) TypeKeys(ctx context.Context, t browser.Target, text string, delay time.Duration) error {
	// Keys are delivered one at a time to the element resolved at the start.
	var target *html.Node
	var tdoc *dom.Document
	err := p.act(ctx, t, func(doc *dom.Document, n *html.Node) (bool, error) {
		if err := editable(n, t); err != nil {
			return false, err
		}
		target, tdoc = n, doc
		p.record(EventKeys, t, text)
		if dom.HasAttr(n, ControlledAttr) || dom.Tag(n) == "select" {
			target = nil
			return false, nil
		}
		doc.SetValue(n, "")
		return true, nil
	})
	if err != nil || target == nil {
		return err
	}

	var sb strings.Builder
	for _, r := range text {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		sb.WriteRune(r)
		p.mu.Lock()
		if tdoc.Contains(target) {
			tdoc.SetValue(target, sb.String())
		}
		p.mu.Unlock()
	}
	p.bus.Notify("input")
	return nil
}

func (p *Page) SetValueNative(ctx context.Context, t browser.Target, value string) error {
	return p.act(ctx, t, func(doc *dom.Document, n *html.Node) (bool, error) {
		if err := editable(n, t); err != nil {
			return false, err
		}
		p.record(EventNative, t, value)
		return assign(doc, n, value), nil
	})
}

func (p *Page) SetChecked(ctx context.Context, t browser.Target, checked bool) error {
	return p.act(ctx, t, func(doc *dom.Document, n *html.Node) (bool, error) {
		if !dom.IsToggle(n) {
			return false, fmt.Errorf("%w: %s is not a checkbox or radio", browser.ErrNotEditable, t)
		}
		if dom.IsDisabled(n) {
			return false, fmt.Errorf("%w: %s is disabled", browser.ErrNotEditable, t)
		}
		p.record(EventCheck, t, fmt.Sprint(checked))
		if dom.InputType(n) == "radio" && checked {
			setRadio(doc, n)
		} else {
			doc.SetChecked(n, checked)
		}
		return true, nil
	})
}

func (p *Page) ReadValue(ctx context.Context, t browser.Target) (string, error) {
	var out string
	err := p.act(ctx, t, func(doc *dom.Document, n *html.Node) (bool, error) {
		if dom.IsToggle(n) {
			out = fmt.Sprint(doc.Checked(n))
		} else {
			out = doc.Value(n)
		}
		return false, nil
	})
	return out, err
}

func (p *Page) ScrollIntoView(ctx context.Context, t browser.Target) error {
	var y float64
	err := p.act(ctx, t, func(doc *dom.Document, n *html.Node) (bool, error) {
		y = doc.PageRect(n).Y
		return false, nil
	})
	if err != nil {
		return err
	}
	return p.scroll(ctx, "into-view", func(vp *dom.Viewport) { vp.ScrollY = y })
}

func (p *Page) ScrollBy(ctx context.Context, dx, dy float64) error {
	return p.scroll(ctx, "by", func(vp *dom.Viewport) {
		vp.ScrollX += dx
		vp.ScrollY += dy
	})
}

func (p *Page) ScrollTo(ctx context.Context, x, y float64) error {
	return p.scroll(ctx, "to", func(vp *dom.Viewport) {
		vp.ScrollX, vp.ScrollY = x, y
	})
}

func (p *Page) Highlight(ctx context.Context, t browser.Target, d time.Duration) error {
	return p.act(ctx, t, func(*dom.Document, *html.Node) (bool, error) {
		p.record(EventHighlight, t, d.String())
		return false, nil
	})
}

func (p *Page) RunScript(ctx context.Context, code string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	runner := p.scripts
	p.events = append(p.events, Event{Kind: EventScript, Value: code})
	p.mu.Unlock()
	if runner == nil {
		return json.RawMessage("null"), nil
	}
	return runner(code)
}

// -- Internals --

// act resolves t against the live document and runs fn under the page lock. fn reports whether it
// changed the document so subscribers can be notified.
func (p *Page) act(ctx context.Context, t browser.Target, fn func(doc *dom.Document, n *html.Node) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	doc, n, err := browser.Resolve(p.doc, t)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	changed, err := fn(doc, n)
	p.mu.Unlock()
	if changed {
		p.bus.Notify("input")
	}
	return err
}

func (p *Page) record(kind EventKind, t browser.Target, value string) {
	p.events = append(p.events, Event{Kind: kind, Target: t.String(), Value: value})
}

func (p *Page) scroll(ctx context.Context, how string, move func(vp *dom.Viewport)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	move(&p.doc.Viewport)
	clamp(p.doc)
	p.events = append(p.events, Event{Kind: EventScroll, Value: fmt.Sprintf("%s %.0f,%.0f", how, p.doc.Viewport.ScrollX, p.doc.Viewport.ScrollY)})
	mutated := false
	for _, h := range p.hooks {
		if h(p.doc) {
			mutated = true
		}
	}
	if mutated {
		p.doc.Reindex()
		clamp(p.doc)
	}
	p.mu.Unlock()

	p.bus.Notify("scroll")
	if mutated {
		p.bus.Notify("mutation")
	}
	return nil
}

func clamp(doc *dom.Document) {
	maxY := math.Max(0, doc.Height()-doc.Viewport.Height)
	doc.Viewport.ScrollY = math.Min(math.Max(0, doc.Viewport.ScrollY), maxY)
	doc.Viewport.ScrollX = math.Max(0, doc.Viewport.ScrollX)
}

func editable(n *html.Node, t browser.Target) error {
	if !dom.IsTextEntry(n) {
		return fmt.Errorf("%w: %s (%s)", browser.ErrNotEditable, t, dom.Tag(n))
	}
	if dom.IsDisabled(n) || dom.HasAttr(n, "readonly") {
		return fmt.Errorf("%w: %s is disabled or read-only", browser.ErrNotEditable, t)
	}
	return nil
}

// assign stores value, resolving select options by value or visible text. It reports whether the
// stored value changed.
func assign(doc *dom.Document, n *html.Node, value string) bool {
	if dom.Tag(n) == "select" {
		opt, ok := matchOption(n, value)
		if !ok {
			return false
		}
		value = opt
	}
	before := doc.Value(n)
	doc.SetValue(n, value)
	return before != value
}

func matchOption(sel *html.Node, want string) (string, bool) {
	var found string
	var ok bool
	dom.Walk(sel, func(o *html.Node) bool {
		if ok || dom.Tag(o) != "option" {
			return !ok
		}
		val, hasVal := dom.Attr(o, "value"), dom.HasAttr(o, "value")
		text := dom.NormalizedText(o)
		if !hasVal {
			val = text
		}
		if val == want || strings.EqualFold(text, want) {
			found, ok = val, true
		}
		return false
	})
	return found, ok
}

func setRadio(doc *dom.Document, n *html.Node) {
	name := dom.Attr(n, "name")
	if name != "" {
		root := doc.TreeRoot(n)
		dom.Walk(root, func(o *html.Node) bool {
			if dom.InputType(o) == "radio" && dom.Attr(o, "name") == name {
				doc.SetChecked(o, false)
			}
			return true
		})
	}
	doc.SetChecked(n, true)
}
