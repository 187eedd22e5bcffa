// internal/executor/resolve.go
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/fieldgraph"
	"github.com/xkilldash9x/locus/internal/recovery"
	"github.com/xkilldash9x/locus/internal/scanner"
)

// Resolution sources reported in Result.Resolution besides recovery strategy names.
const (
	ViaSelector = "selector"
	ViaGraph    = "graph"
)

type resolved struct {
	target browser.Target
	field  scanner.FieldDescriptor
	via    string
}

// retry carries what a previous attempt learned into a re-resolution.
type retry struct {
	failed          []string
	validationError string
}

// resolve finds the element loc describes. Explicit selectors are tried against a fresh document
// first, then the field graph, then the recovery ensemble.
func (e *Executor) resolve(ctx context.Context, m *machine, intent string, loc Locate, again *retry) (resolved, error) {
	m.to(StateResolving)

	doc, err := e.page.Document(ctx)
	if err != nil {
		return resolved{}, fmt.Errorf("failed to read document: %w", err)
	}

	failed := append([]string(nil), loc.Selectors...)
	if again == nil {
		for _, sel := range loc.Selectors {
			if el, ok := e.direct(doc, intent, browser.Target{Scope: loc.Scope, Selector: sel}); ok {
				return el, nil
			}
		}
		if el, ok := e.fromGraph(ctx, doc, intent, loc); ok {
			return el, nil
		}
	} else {
		failed = append(failed, again.failed...)
	}

	if e.ensemble == nil {
		return resolved{}, fmt.Errorf("%w: %s", ErrNotResolved, loc.Describe())
	}
	rc := recovery.Context{Hints: loc.Hints, WaitBudget: e.cfg.RecoveryWaitBudget}
	if again != nil {
		rc.ValidationError = again.validationError
	}
	res := e.ensemble.AttemptRecovery(ctx, intent, loc.Describe(), failed, rc)
	if !res.Success || res.Element == nil {
		if err := ctx.Err(); err != nil {
			return resolved{}, err
		}
		return resolved{}, fmt.Errorf("%w: %s", ErrNotResolved, loc.Describe())
	}
	if _, err := e.Refresh(ctx); err != nil {
		e.logger.Debug("Graph refresh after recovery failed.", zap.Error(err))
	}
	return resolved{target: res.Element.Target, field: res.Element.Field, via: res.Strategy}, nil
}

// direct checks one explicit target against doc.
func (e *Executor) direct(doc *dom.Document, intent string, t browser.Target) (resolved, bool) {
	sub, n, err := browser.Resolve(doc, t)
	if err != nil || !acceptable(sub, n, intent) {
		return resolved{}, false
	}
	field := scanner.Describe(sub, sub.TreeRoot(n), n, t.Scope)
	return resolved{target: t, field: field, via: ViaSelector}, true
}

// fromGraph looks the target and hints up in the field graph and revalidates the entry against
// the fresh document: the element must still take the intent and still answer to the hints.
func (e *Executor) fromGraph(ctx context.Context, doc *dom.Document, intent string, loc Locate) (resolved, bool) {
	hints := make([]string, 0, len(loc.Hints)+1)
	if loc.Target != "" {
		hints = append(hints, loc.Target)
	}
	for _, v := range loc.Hints {
		hints = append(hints, v)
	}
	if len(hints) == 0 {
		return resolved{}, false
	}
	g := e.Graph()
	if g == nil {
		if _, err := e.Refresh(ctx); err != nil {
			return resolved{}, false
		}
		g = e.Graph()
	}
	entry, ok := g.Find(hints...)
	if !ok {
		return resolved{}, false
	}
	t := entry.Field.Target()
	sub, n, err := browser.Resolve(doc, t)
	if err != nil || !acceptable(sub, n, intent) {
		return resolved{}, false
	}
	// A re-render can move the selector onto a different element.
	field := scanner.Describe(sub, sub.TreeRoot(n), n, t.Scope)
	if !fieldgraph.Matches(field, hints...) {
		e.logger.Debug("Graph entry went stale.", zap.String("target", t.String()), zap.Strings("hints", hints))
		return resolved{}, false
	}
	return resolved{target: t, field: field, via: ViaGraph}, true
}

// acceptable reports whether n can take the intent: interactions need a visible element and
// writes need something that holds a value.
func acceptable(doc *dom.Document, n *html.Node, intent string) bool {
	if recovery.IsInteraction(intent) && !doc.IsVisible(n) {
		return false
	}
	if intent == string(KindFill) {
		return dom.IsFormControl(n)
	}
	return true
}
