// internal/scanner/scanner.go
package scanner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/locator"
)

// Config bounds a scan.
type Config struct {
	// MaxDepth caps the number of nested frame and shadow boundaries entered.
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`
}

// DefaultConfig returns the default scan bounds.
func DefaultConfig() Config { return Config{MaxDepth: 8} }

// Interactivity levels.
const (
	InteractivityNative  = 1.0
	InteractivityHandler = 0.6
	InteractivityPointer = 0.3
)

var controlTags = map[string]bool{
	"input": true, "textarea": true, "select": true, "button": true,
	"summary": true, "details": true, "option": true,
}

var interactiveRoles = map[string]bool{
	"button": true, "link": true, "checkbox": true, "radio": true, "textbox": true,
	"combobox": true, "listbox": true, "menuitem": true, "menuitemcheckbox": true,
	"menuitemradio": true, "option": true, "switch": true, "tab": true, "slider": true,
	"spinbutton": true, "searchbox": true, "treeitem": true,
}

var landmarkTags = map[string]bool{
	"form": true, "nav": true, "main": true, "header": true, "footer": true,
	"aside": true, "dialog": true,
}

var landmarkRoles = map[string]bool{
	"banner": true, "navigation": true, "main": true, "contentinfo": true,
	"complementary": true, "region": true, "form": true, "search": true, "dialog": true,
}

// Scanner builds snapshots of the page surface. It holds no per-page state.
type Scanner struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a scanner.
func New(cfg Config, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	return &Scanner{cfg: cfg, logger: logger.Named("scanner"), now: time.Now}
}

// ScanPage takes a fresh document snapshot from the page and scans it.
func (s *Scanner) ScanPage(ctx context.Context, page browser.Page) (*Snapshot, error) {
	doc, err := page.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return s.Scan(doc), nil
}

// Scan walks the document, its same-origin frames and its open shadow roots. It only reads.
func (s *Scanner) Scan(doc *dom.Document) *Snapshot {
	snap := &Snapshot{Timestamp: s.now().UTC()}
	if doc.URL != nil {
		snap.URL = doc.URL.String()
	}
	w := &walker{cfg: s.cfg, snap: snap}
	w.tree(doc, doc.Root, nil, 0)

	s.logger.Debug("Scan complete.",
		zap.String("url", snap.URL),
		zap.Int("fields", len(snap.Fields)),
		zap.Int("actionables", len(snap.Actionables)),
		zap.Int("frames", len(snap.Frames)),
		zap.Int("isolated", len(snap.IsolatedSubtrees)))
	return snap
}

type walker struct {
	cfg  Config
	snap *Snapshot
}

func (w *walker) tree(doc *dom.Document, root *html.Node, scope []string, depth int) {
	dom.Walk(root, func(n *html.Node) bool {
		w.element(doc, root, n, scope)

		if sr, ok := doc.ShadowRootOf(n); ok {
			host := hostLocator(doc, root, n)
			iso := IsolatedSubtree{Host: host, Scope: scope, Mode: string(sr.Mode)}
			if sr.Mode == dom.ShadowOpen {
				if depth+1 > w.cfg.MaxDepth {
					w.snap.Truncated = true
				} else {
					iso.Traversed = true
					w.snap.IsolatedSubtrees = append(w.snap.IsolatedSubtrees, iso)
					w.tree(doc, sr.Root, extend(scope, host.Value), depth+1)
					return true
				}
			}
			w.snap.IsolatedSubtrees = append(w.snap.IsolatedSubtrees, iso)
		}

		if f, ok := doc.FrameOf(n); ok {
			loc := hostLocator(doc, root, n)
			w.snap.Frames = append(w.snap.Frames, FrameInfo{
				Locator: loc, Scope: scope, Src: f.Src, Origin: f.Origin, Accessible: f.Accessible,
			})
			if f.Accessible && f.Doc != nil {
				if depth+1 > w.cfg.MaxDepth {
					w.snap.Truncated = true
				} else {
					w.tree(f.Doc, f.Doc.Root, extend(scope, loc.Value), depth+1)
				}
			}
			return false
		}
		return true
	})
}

func (w *walker) element(doc *dom.Document, root, n *html.Node, scope []string) {
	if score := Interactivity(n); score > 0 {
		fd := Describe(doc, root, n, scope)
		fd.Interactivity = score
		if dom.IsFormControl(n) {
			w.snap.Fields = append(w.snap.Fields, fd)
		} else {
			w.snap.Actionables = append(w.snap.Actionables, fd)
		}
	}
	if kind := landmarkKind(n); kind != "" {
		label := strings.TrimSpace(dom.Attr(n, "aria-label"))
		if label == "" {
			label = LabelFor(doc, root, n)
		}
		w.snap.Regions = append(w.snap.Regions, Region{
			Kind:    kind,
			Label:   label,
			Rect:    doc.Rect(n),
			Scope:   scope,
			Locator: hostLocator(doc, root, n),
		})
	}
}

// Describe builds the descriptor of one element.
func Describe(doc *dom.Document, root, n *html.Node, scope []string) FieldDescriptor {
	label := LabelFor(doc, root, n)
	fd := FieldDescriptor{
		ID:             dom.Attr(n, "id"),
		Name:           dom.Attr(n, "name"),
		Tag:            dom.Tag(n),
		InputType:      dom.InputType(n),
		Role:           strings.ToLower(dom.Attr(n, "role")),
		Label:          label,
		Placeholder:    dom.Attr(n, "placeholder"),
		AccessibleName: AccessibleName(n, label),
		Autocomplete:   strings.ToLower(strings.TrimSpace(dom.Attr(n, "autocomplete"))),
		TestID:         firstAttr(n, "data-testid", "data-test", "data-qa", "data-cy"),
		Rect:           doc.PageRect(n),
		Visible:        doc.IsVisible(n),
		Disabled:       dom.IsDisabled(n),
		ReadOnly:       dom.HasAttr(n, "readonly"),
		Scope:          append([]string(nil), scope...),
		Locators:       locator.Generate(doc, root, n),
	}
	if dom.IsToggle(n) {
		fd.Checked = doc.Checked(n)
	}
	if !dom.IsTextEntry(n) {
		fd.Text = truncate(dom.NormalizedText(n))
	}
	return fd
}

// Interactivity scores how confidently n is interactive; 0 means it is not.
func Interactivity(n *html.Node) float64 {
	tag := dom.Tag(n)
	switch {
	case tag == "input" && dom.InputType(n) == "hidden":
		return 0
	case tag == "option" && insideSelect(n):
		// Options of a native select are reached through the select itself.
		return 0
	case controlTags[tag]:
		return InteractivityNative
	case tag == "a" && dom.HasAttr(n, "href"):
		return InteractivityNative
	case interactiveRoles[strings.ToLower(dom.Attr(n, "role"))]:
		return InteractivityNative
	case dom.IsContentEditable(n):
		return InteractivityNative
	case dom.HasAttr(n, "onclick"):
		return InteractivityHandler
	}
	if ti, err := strconv.Atoi(strings.TrimSpace(dom.Attr(n, "tabindex"))); err == nil && ti > 0 {
		return InteractivityHandler
	}
	if dom.HasPointerCursor(n) {
		return InteractivityPointer
	}
	return 0
}

func landmarkKind(n *html.Node) string {
	if role := strings.ToLower(dom.Attr(n, "role")); landmarkRoles[role] {
		return role
	}
	tag := dom.Tag(n)
	if landmarkTags[tag] {
		return tag
	}
	if tag == "section" && (dom.HasAttr(n, "aria-label") || dom.HasAttr(n, "aria-labelledby")) {
		return "region"
	}
	return ""
}

func insideSelect(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if dom.Tag(p) == "select" || dom.Tag(p) == "datalist" {
			return true
		}
	}
	return false
}

func hostLocator(doc *dom.Document, root, n *html.Node) locator.Locator {
	best, _ := locator.Best(locator.Generate(doc, root, n))
	return best
}

func firstAttr(n *html.Node, keys ...string) string {
	for _, k := range keys {
		if v := dom.Attr(n, k); v != "" {
			return v
		}
	}
	return ""
}

func extend(scope []string, sel string) []string {
	out := make([]string, 0, len(scope)+1)
	out = append(out, scope...)
	return append(out, sel)
}
