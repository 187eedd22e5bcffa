// internal/recovery/deep.go
package recovery

import (
	"context"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/locator"
)

// DeepTraversal searches same-origin frames and open shadow roots breadth first for the
// candidate selectors, which a plain top-level query cannot see.
type DeepTraversal struct{ env Env }

func NewDeepTraversal(env Env) *DeepTraversal { return &DeepTraversal{env: env} }

func (d *DeepTraversal) Name() string  { return "deep_traversal" }
func (d *DeepTraversal) Priority() int { return 300 }

type scopeItem struct {
	doc   *dom.Document
	root  *html.Node
	scope []string
	depth int
}

func (d *DeepTraversal) Attempt(ctx context.Context, rc Context) (Result, error) {
	sels := candidateSelectors(rc)
	if len(sels) == 0 {
		return Result{}, nil
	}
	doc, err := d.env.Page.Document(ctx)
	if err != nil {
		return Result{}, err
	}
	maxDepth := d.env.Config.withDefaults().MaxTraversalDepth

	visited := map[*html.Node]bool{doc.Root: true}
	queue := []scopeItem{{doc: doc, root: doc.Root}}
	scopes := 0
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		item := queue[0]
		queue = queue[1:]
		scopes++

		// The top level was already tried by the caller; only nested scopes can add anything.
		if item.depth > 0 {
			for _, sel := range sels {
				n := resolveSelector(item.doc, item.root, sel, rc)
				if n == nil {
					continue
				}
				if el, ok := describe(item.doc, item.root, n, item.scope); ok {
					el.Target = browser.Target{Scope: item.scope, Selector: sel}
					return found(el, map[string]interface{}{"depth": item.depth, "scopes": scopes}), nil
				}
			}
		}
		if item.depth >= maxDepth {
			continue
		}
		queue = append(queue, children(item, visited)...)
	}
	return Result{Info: map[string]interface{}{"scopes": scopes}}, nil
}

// children lists the enterable scopes directly inside item.
func children(item scopeItem, visited map[*html.Node]bool) []scopeItem {
	var out []scopeItem
	dom.Walk(item.root, func(n *html.Node) bool {
		if sr, ok := item.doc.ShadowRootOf(n); ok && sr.Mode == dom.ShadowOpen && !visited[sr.Root] {
			visited[sr.Root] = true
			out = append(out, scopeItem{
				doc:   item.doc,
				root:  sr.Root,
				scope: extendScope(item.scope, hostSelector(item.doc, item.root, n)),
				depth: item.depth + 1,
			})
		}
		if f, ok := item.doc.FrameOf(n); ok && f.Accessible && f.Doc != nil && !visited[f.Doc.Root] {
			visited[f.Doc.Root] = true
			out = append(out, scopeItem{
				doc:   f.Doc,
				root:  f.Doc.Root,
				scope: extendScope(item.scope, hostSelector(item.doc, item.root, n)),
				depth: item.depth + 1,
			})
		}
		return true
	})
	return out
}

func hostSelector(doc *dom.Document, root, host *html.Node) string {
	best, _ := locator.Best(locator.Generate(doc, root, host))
	return best.Value
}

func extendScope(scope []string, sel string) []string {
	out := make([]string, 0, len(scope)+1)
	return append(append(out, scope...), sel)
}
