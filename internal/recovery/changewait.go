// internal/recovery/changewait.go
package recovery

import (
	"context"
	"errors"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/changes"
)

// ChangeWait re-checks the candidate selectors every time the document changes, for a bounded
// time. It resolves immediately when a candidate already matches.
type ChangeWait struct{ env Env }

func NewChangeWait(env Env) *ChangeWait { return &ChangeWait{env: env} }

func (c *ChangeWait) Name() string  { return "change_wait" }
func (c *ChangeWait) Priority() int { return 400 }

func (c *ChangeWait) Attempt(ctx context.Context, rc Context) (Result, error) {
	sels := candidateSelectors(rc)
	if len(sels) == 0 {
		return Result{}, nil
	}
	timeout := c.env.Config.withDefaults().ChangeWaitTimeout
	if rc.WaitBudget > 0 && rc.WaitBudget < timeout {
		timeout = rc.WaitBudget
	}

	var el Element
	var matched string
	check := func(ctx context.Context) (bool, error) {
		doc, err := c.env.Page.Document(ctx)
		if err != nil {
			return false, err
		}
		for _, sel := range sels {
			n := resolveSelector(doc, doc.Root, sel, rc)
			if n == nil {
				continue
			}
			if e, ok := describe(doc, doc.Root, n, nil); ok {
				el, matched = e, sel
				el.Target = browser.Target{Selector: sel}
				return true, nil
			}
		}
		return false, nil
	}

	err := changes.WaitFor(ctx, c.env.Page.Changes(), timeout, check)
	if errors.Is(err, changes.ErrTimeout) {
		return Result{Info: map[string]interface{}{"timeout": timeout.String()}}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return found(el, map[string]interface{}{"selector": matched}), nil
}
