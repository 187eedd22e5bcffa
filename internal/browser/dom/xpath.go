// internal/browser/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// GenerateUniqueXPath generates a robust XPath expression for a given node.
// It prioritizes using IDs as anchors for stability and brevity. The walk stops at the root of
// the node's own tree, so a node inside a shadow root gets a path relative to that root.
func GenerateUniqueXPath(node *html.Node) string {
	return generateXPath(node, true)
}

// GenerateAbsoluteXPath is GenerateUniqueXPath without the ID short-circuit. It is used when
// the ID itself is the thing that can no longer be trusted.
func GenerateAbsoluteXPath(node *html.Node) string {
	return generateXPath(node, false)
}

func generateXPath(node *html.Node, anchorOnID bool) string {
	if node == nil {
		return ""
	}

	var path []string
	anchored := false
	// Traverse up the tree from the node to the root of its tree.
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(n.Data)
		if tag == "template" {
			// Shadow root boundary.
			break
		}

		if anchorOnID {
			if id := htmlquery.SelectAttr(n, "id"); id != "" && !LooksGenerated(id) {
				path = append(path, fmt.Sprintf(`//*[@id=%s]`, XPathLiteral(id)))
				anchored = true
				break
			}
		}

		// XPath indices are 1-based.
		index := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, index))
	}

	if len(path) == 0 {
		return "/"
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	xpath := strings.Join(path, "/")
	if !anchored {
		xpath = "/" + xpath
	}
	return xpath
}

// XPathLiteral quotes s as an XPath string literal, falling back to concat() when s contains
// both quote characters.
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}
