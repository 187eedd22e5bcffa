// internal/recovery/permutation.go
package recovery

import (
	"context"
	"strings"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/locator"
)

var permutationAttrs = []string{"id", "name", "aria-label", "placeholder", "data-testid", "autocomplete"}

// Permutation synthesizes exact and contains selectors over the durable attributes from every
// hint value, skipping selectors that already failed.
type Permutation struct{ env Env }

func NewPermutation(env Env) *Permutation { return &Permutation{env: env} }

func (p *Permutation) Name() string  { return "permutation" }
func (p *Permutation) Priority() int { return 600 }

// Selectors returns the synthesized selectors in try order: every exact variant first.
func (p *Permutation) Selectors(rc Context) []string {
	values := permutationValues(rc)
	var exact, contains []string
	seen := map[string]bool{}
	add := func(list *[]string, sel string) {
		if !seen[sel] && !rc.Failed(sel) {
			seen[sel] = true
			*list = append(*list, sel)
		}
	}
	for _, attr := range permutationAttrs {
		for _, v := range values {
			if attr == "id" {
				add(&exact, locator.IDSelector(v))
			} else {
				add(&exact, locator.AttrSelector(attr, v))
			}
			add(&contains, locator.AttrContains(attr, v))
		}
	}
	return append(exact, contains...)
}

func (p *Permutation) Attempt(ctx context.Context, rc Context) (Result, error) {
	sels := p.Selectors(rc)
	if len(sels) == 0 {
		return Result{}, nil
	}
	doc, err := p.env.Page.Document(ctx)
	if err != nil {
		return Result{}, err
	}
	for _, sel := range sels {
		n := resolveSelector(doc, doc.Root, sel, rc)
		if n == nil {
			continue
		}
		el, ok := describe(doc, doc.Root, n, nil)
		if !ok {
			continue
		}
		// Keep the selector that worked; it is what the caller asked for.
		el.Target = browser.Target{Selector: sel}
		return found(el, map[string]interface{}{"selector": sel, "tried": len(sels)}), nil
	}
	return Result{Info: map[string]interface{}{"tried": len(sels)}}, nil
}

// permutationValues gathers raw hint values plus the identifier-looking words of the target.
func permutationValues(rc Context) []string {
	var out []string
	seen := map[string]bool{}
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v != "" && len(v) <= 80 && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, k := range []string{HintID, HintName, HintAriaLabel, HintPlaceholder, HintTestID, HintAutocomplete, HintLabel} {
		add(rc.Hint(k))
	}
	if id := bareIdentifier(rc.Target); id != "" {
		add(id)
	}
	for _, tok := range Tokenize(rc.Target) {
		if len(tok) >= 3 {
			add(tok)
		}
	}
	return out
}

// bareIdentifier strips simple selector syntax: "#email" and "[name='email']" both give "email".
func bareIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") && !strings.ContainsAny(s[1:], " .[>:") {
		return s[1:]
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		if _, v, ok := strings.Cut(s[1:len(s)-1], "="); ok {
			return strings.Trim(v, `"' `)
		}
	}
	return ""
}
