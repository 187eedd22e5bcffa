// internal/browser/dom/query.go
package dom

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// IsXPath reports whether a selector should be evaluated as XPath rather than CSS.
func IsXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(")
}

// QueryAll evaluates a CSS or XPath selector below scope (the document root when nil) and returns
// the matching elements of that tree in document order. Matches inside template content, which
// includes nested shadow roots, are dropped: a query never pierces an isolation boundary.
func (d *Document) QueryAll(scope *html.Node, selector string) ([]*html.Node, error) {
	if scope == nil {
		scope = d.Root
	}
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("empty selector")
	}

	var found []*html.Node
	if IsXPath(selector) {
		nodes, err := htmlquery.QueryAll(scope, xpathSelector(scope, selector))
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", selector, err)
		}
		found = nodes
	} else {
		sel, err := cascadia.Compile(selector)
		if err != nil {
			return nil, fmt.Errorf("invalid css selector %q: %w", selector, err)
		}
		// cascadia walks every descendant; the boundary filter below trims the shadow content.
		found = sel.MatchAll(scope)
	}

	out := found[:0]
	for _, n := range found {
		if n.Type == html.ElementNode && n != scope && d.sameTree(scope, n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// QueryOne returns the first match of selector below scope, or nil.
func (d *Document) QueryOne(scope *html.Node, selector string) (*html.Node, error) {
	nodes, err := d.QueryAll(scope, selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// sameTree reports whether n is reachable from scope without entering a template element.
func (d *Document) sameTree(scope, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == scope {
			return true
		}
		if p.Type == html.ElementNode && p.Data == "template" {
			return false
		}
	}
	return false
}

// xpathSelector rewrites absolute paths into paths relative to a non-document scope so that
// "//input" inside a shadow root does not escape to the host document.
func xpathSelector(scope *html.Node, selector string) string {
	if scope.Type == html.DocumentNode {
		return selector
	}
	switch {
	case strings.HasPrefix(selector, "//"):
		return "." + selector
	case strings.HasPrefix(selector, "(//"):
		return "(." + selector[1:]
	case strings.HasPrefix(selector, "/"):
		return "." + selector
	}
	return selector
}
