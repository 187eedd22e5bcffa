// internal/browser/cdp/page.go
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/changes"
)

// Config controls the Chrome process and the change poller.
type Config struct {
	Headless     bool
	Args         []string
	PollInterval time.Duration
}

// Page drives one Chrome tab through the DevTools protocol.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	bus    *changes.Bus

	mu     sync.Mutex
	cursor browser.Point

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

var _ browser.Page = (*Page)(nil)

// ExecOptions builds the allocator options, mirroring the flags used for CI and containers.
func ExecOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("enable-automation", true),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Launch starts a browser, opens a tab and navigates it to rawURL.
func Launch(ctx context.Context, cfg Config, rawURL string, logger *zap.Logger) (*Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		tabCancel()
		allocCancel()
	}
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	p := newPage(tabCtx, cancel, cfg, logger)
	if rawURL != "" {
		if err := p.Navigate(ctx, rawURL); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

func newPage(tabCtx context.Context, cancel context.CancelFunc, cfg Config, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cdp_page")
	p := &Page{
		ctx:    tabCtx,
		cancel: cancel,
		logger: logger,
		bus:    changes.NewBus(logger),
		done:   make(chan struct{}),
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	p.wg.Add(1)
	go p.pollChanges(interval)
	return p
}

// Navigate loads rawURL and waits for the body to be ready.
func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	if err := p.run(ctx, chromedp.Navigate(rawURL), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", rawURL, err)
	}
	p.logger.Info("Navigated.", zap.String("url", rawURL))
	return nil
}

// Close stops the change poller and tears down the tab and browser.
func (p *Page) Close() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.bus.Close()
		p.cancel()
	})
}

func (p *Page) Changes() changes.Source { return p.bus }

// -- browser.Page --

type serialized struct {
	HTML    string  `json:"html"`
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

func (p *Page) Document(ctx context.Context) (*dom.Document, error) {
	var out serialized
	if err := p.eval(ctx, serializeScript, &out); err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	doc, err := dom.ParseString(out.HTML, out.URL)
	if err != nil {
		return nil, err
	}
	doc.Viewport = dom.Viewport{ScrollX: out.ScrollX, ScrollY: out.ScrollY, Width: out.Width, Height: out.Height}
	return doc, nil
}

func (p *Page) Info(ctx context.Context) (browser.PageInfo, error) {
	var out serialized
	if err := p.eval(ctx, infoScript, &out); err != nil {
		return browser.PageInfo{}, err
	}
	p.mu.Lock()
	cursor := p.cursor
	p.mu.Unlock()
	return browser.PageInfo{
		URL:      out.URL,
		Title:    out.Title,
		Scroll:   browser.Point{X: out.ScrollX, Y: out.ScrollY},
		Cursor:   cursor,
		Viewport: dom.Viewport{ScrollX: out.ScrollX, ScrollY: out.ScrollY, Width: out.Width, Height: out.Height},
	}, nil
}

func (p *Page) Click(ctx context.Context, t browser.Target) error {
	var rect dom.Rect
	script, err := action(t, `el.scrollIntoView({block: 'center'});
  const r = el.getBoundingClientRect();
  return {x: r.left, y: r.top, width: r.width, height: r.height};`)
	if err != nil {
		return err
	}
	if err := p.eval(ctx, script, &rect); err != nil {
		return p.wrap(t, err)
	}
	if rect.Empty() || len(t.Scope) > 0 {
		// Zero-sized targets cannot receive a pointer event and frame-relative boxes would need
		// offsetting; both use a programmatic click.
		return p.do(ctx, t, clickBody)
	}
	x, y := rect.X+rect.Width/2, rect.Y+rect.Height/2
	if err := p.run(ctx, chromedp.MouseClickXY(x, y, chromedp.ButtonLeft)); err != nil {
		return fmt.Errorf("failed to click %s: %w", t, err)
	}
	p.mu.Lock()
	p.cursor = browser.Point{X: x, Y: y}
	p.mu.Unlock()
	return nil
}

func (p *Page) SetValue(ctx context.Context, t browser.Target, value string) error {
	return p.do(ctx, t, fmt.Sprintf(setValueBody, quote(value)))
}

func (p *Page) TypeKeys(ctx context.Context, t browser.Target, text string, delay time.Duration) error {
	if err := p.do(ctx, t, clearBody); err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.KeyEvent(kb.Backspace)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", t, err)
	}
	for _, r := range text {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := p.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("failed to type into %s: %w", t, err)
		}
	}
	return nil
}

func (p *Page) SetValueNative(ctx context.Context, t browser.Target, value string) error {
	return p.do(ctx, t, fmt.Sprintf(nativeSetterBody, quote(value)))
}

func (p *Page) SetChecked(ctx context.Context, t browser.Target, checked bool) error {
	return p.do(ctx, t, fmt.Sprintf(setCheckedBody, quote(checked)))
}

func (p *Page) ReadValue(ctx context.Context, t browser.Target) (string, error) {
	script, err := action(t, readValueBody)
	if err != nil {
		return "", err
	}
	var out string
	if err := p.eval(ctx, script, &out); err != nil {
		return "", p.wrap(t, err)
	}
	return out, nil
}

func (p *Page) ScrollIntoView(ctx context.Context, t browser.Target) error {
	return p.do(ctx, t, scrollIntoViewBody)
}

func (p *Page) ScrollBy(ctx context.Context, dx, dy float64) error {
	return p.eval(ctx, fmt.Sprintf(`window.scrollBy(%f, %f); true`, dx, dy), nil)
}

func (p *Page) ScrollTo(ctx context.Context, x, y float64) error {
	return p.eval(ctx, fmt.Sprintf(`window.scrollTo(%f, %f); true`, x, y), nil)
}

func (p *Page) Highlight(ctx context.Context, t browser.Target, d time.Duration) error {
	return p.do(ctx, t, fmt.Sprintf(highlightBody, d.Milliseconds()))
}

func (p *Page) RunScript(ctx context.Context, code string) (json.RawMessage, error) {
	var res *runtime.RemoteObject
	err := p.run(ctx, chromedp.Evaluate(code, &res, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true).WithReturnByValue(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}
	if res == nil || len(res.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(res.Value), nil
}

// -- Internals --

// run executes actions bound to both the tab lifetime and the request context.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *Page) eval(ctx context.Context, script string, res interface{}) error {
	return p.run(ctx,
		chromedp.Evaluate(bootstrapScript, nil),
		chromedp.Evaluate(script, res),
	)
}

func (p *Page) do(ctx context.Context, t browser.Target, body string) error {
	script, err := action(t, body)
	if err != nil {
		return err
	}
	if err := p.eval(ctx, script, nil); err != nil {
		return p.wrap(t, err)
	}
	return nil
}

func (p *Page) wrap(t browser.Target, err error) error {
	if strings.Contains(err.Error(), "element not found") {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, t)
	}
	if strings.Contains(err.Error(), "scope element not found") {
		return fmt.Errorf("%w: %s", dom.ErrScopeNotFound, t)
	}
	if strings.Contains(err.Error(), "not accessible") {
		return fmt.Errorf("%w: %s", dom.ErrScopeInaccessible, t)
	}
	return err
}

func (p *Page) pollChanges(interval time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last float64
	for {
		select {
		case <-p.done:
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if p.bus.Subscribers() == 0 {
				continue
			}
			var count float64
			ctx, cancel := context.WithTimeout(p.ctx, interval)
			err := chromedp.Run(ctx, chromedp.Evaluate(bootstrapScript, nil), chromedp.Evaluate(changeCounterScript, &count))
			cancel()
			if err != nil {
				p.logger.Debug("Change poll failed.", zap.Error(err))
				continue
			}
			if count != last {
				last = count
				p.bus.Notify("mutation")
			}
		}
	}
}

func action(t browser.Target, body string) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode target: %w", err)
	}
	return fmt.Sprintf(actionScript, raw, body), nil
}

func quote(v interface{}) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

// combineContext derives a context from ctx1 that is also cancelled when ctx2 is done.
func combineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
