// internal/recovery/candidates.go
package recovery

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/locator"
	"github.com/xkilldash9x/locus/internal/scanner"
)

// Env is what the built-in strategies share: the page and a scanner for fresh snapshots.
type Env struct {
	Page    browser.Page
	Scanner *scanner.Scanner
	Config  Config
	// Logger may be nil.
	Logger *zap.Logger
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

var interactionIntents = map[string]bool{
	"click": true, "fill": true, "type": true, "check": true, "select": true,
	"focus": true, "submit": true, "autofill": true, "restore": true,
}

// IsInteraction reports whether an intent needs the element on screen, which is what allows
// probe-scroll to move the viewport.
func IsInteraction(intent string) bool { return interactionIntents[strings.ToLower(intent)] }

func wantsField(intent string) bool {
	switch strings.ToLower(intent) {
	case "fill", "type", "check", "select", "autofill", "restore":
		return true
	}
	return false
}

// eligible filters the snapshot down to elements the intent can act on.
func eligible(snap *scanner.Snapshot, rc Context) []scanner.FieldDescriptor {
	pool := snap.All()
	if wantsField(rc.Intent) {
		pool = snap.Fields
	}
	out := make([]scanner.FieldDescriptor, 0, len(pool))
	for _, f := range pool {
		if !f.Visible || f.Disabled || len(f.Locators) == 0 {
			continue
		}
		if wantsField(rc.Intent) && f.ReadOnly {
			continue
		}
		if rc.Failed(f.BestLocator().Value) || rc.Failed(f.Key()) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// bestMatch returns the highest-scoring eligible element. Ties keep document order.
func bestMatch(snap *scanner.Snapshot, rc Context, query []string, cfg Config) (scanner.FieldDescriptor, int, bool) {
	var best scanner.FieldDescriptor
	bestScore := 0
	if len(query) == 0 {
		return best, 0, false
	}
	for _, f := range eligible(snap, rc) {
		if s := score(query, fieldTokens(f), cfg.LongTokenLen); s > bestScore {
			best, bestScore = f, s
		}
	}
	return best, bestScore, bestScore >= cfg.MinTokenScore
}

func elementOf(f scanner.FieldDescriptor) Element {
	return Element{Target: f.Target(), Field: f}
}

// describe builds an Element for a node found inside the tree rooted at root.
func describe(doc *dom.Document, root, n *html.Node, scope []string) (Element, bool) {
	f := scanner.Describe(doc, root, n, scope)
	if len(f.Locators) == 0 {
		return Element{}, false
	}
	return elementOf(f), true
}

// resolveSelector evaluates sel in the tree rooted at root and returns the first visible,
// enabled match the intent can use.
func resolveSelector(doc *dom.Document, root *html.Node, sel string, rc Context) *html.Node {
	nodes, err := doc.QueryAll(root, sel)
	if err != nil {
		return nil
	}
	for _, n := range nodes {
		if doc.IsVisible(n) && !dom.IsDisabled(n) && usable(rc, n) {
			return n
		}
	}
	return nil
}

// usable reports whether n suits the intent: fill-like intents need an enabled, writable form
// control, clicks need something interactive.
func usable(rc Context, n *html.Node) bool {
	switch {
	case wantsField(rc.Intent):
		return dom.IsFormControl(n) && !dom.HasAttr(n, "readonly")
	case IsInteraction(rc.Intent):
		return scanner.Interactivity(n) > 0
	}
	return true
}

// selectorLike reports whether the target string is a selector rather than a description.
func selectorLike(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if dom.IsXPath(s) || strings.ContainsAny(s[:1], "#.[") {
		return true
	}
	return strings.ContainsAny(s, "[]=>#") && !strings.Contains(s, " ")
}

// candidateSelectors lists the literal selectors worth re-checking: the failed locators and the
// target itself when it is a selector.
func candidateSelectors(rc Context) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, f := range rc.FailedLocators {
		add(f)
	}
	if selectorLike(rc.Target) {
		add(rc.Target)
	}
	if id := rc.Hint(HintID); id != "" {
		add(locator.IDSelector(id))
	}
	if name := rc.Hint(HintName); name != "" {
		add(locator.AttrSelector("name", name))
	}
	return out
}

// describedText is the human description of the target: the label hint, else the visible text
// hint, else the target when it is not a selector.
func describedText(rc Context) string {
	for _, k := range []string{HintLabel, HintText, HintAriaLabel, HintPlaceholder} {
		if v := strings.TrimSpace(rc.Hint(k)); v != "" {
			return v
		}
	}
	if !selectorLike(rc.Target) {
		return strings.TrimSpace(rc.Target)
	}
	return ""
}

func freshScan(ctx context.Context, env Env) (*scanner.Snapshot, error) {
	return env.Scanner.ScanPage(ctx, env.Page)
}
