// internal/browser/dom/node.go
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Attr returns the value of an attribute, matching the key case-insensitively.
func Attr(n *html.Node, key string) string {
	v, _ := attrLookup(n, key)
	return v
}

// HasAttr reports whether n carries the attribute, even with an empty value.
func HasAttr(n *html.Node, key string) bool {
	_, ok := attrLookup(n, key)
	return ok
}

func attrLookup(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// Tag returns the lower-case tag name of an element node, or "" for other node types.
func Tag(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(n.Data)
}

// InputType returns the effective type of an <input>, defaulting to "text".
func InputType(n *html.Node) string {
	if Tag(n) != "input" {
		return ""
	}
	t := strings.ToLower(strings.TrimSpace(Attr(n, "type")))
	if t == "" {
		return "text"
	}
	return t
}

// IsContentEditable reports whether the element is an editing host.
func IsContentEditable(n *html.Node) bool {
	v, ok := attrLookup(n, "contenteditable")
	if !ok {
		return false
	}
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "" || v == "true" || v == "plaintext-only"
}

// IsDisabled reports whether a control is disabled directly, through aria-disabled, or by a
// disabled ancestor fieldset.
func IsDisabled(n *html.Node) bool {
	if HasAttr(n, "disabled") || strings.EqualFold(Attr(n, "aria-disabled"), "true") {
		return true
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if Tag(p) == "fieldset" && HasAttr(p, "disabled") {
			return true
		}
	}
	return false
}

// Text returns the concatenated text content of n within its own tree, skipping scripts,
// styles and template content.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			switch ch.Type {
			case html.TextNode:
				sb.WriteString(ch.Data)
			case html.ElementNode:
				switch ch.Data {
				case "script", "style", "template", "noscript":
					continue
				}
				visit(ch)
			}
		}
	}
	visit(n)
	return sb.String()
}

// NormalizedText collapses whitespace in the text content of n.
func NormalizedText(n *html.Node) string {
	return strings.Join(strings.Fields(Text(n)), " ")
}

// walkAll visits every node below root in document order, descending into template content.
// Returning false from fn skips the node's children.
func walkAll(root *html.Node, fn func(*html.Node) bool) {
	if root == nil {
		return
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if fn(c) {
			walkAll(c, fn)
		}
	}
}

// Walk visits the element nodes of root's light tree in document order. It never descends into
// template content (which includes attached shadow roots) or frame content. Returning false
// from fn skips the element's children.
func Walk(root *html.Node, fn func(*html.Node) bool) {
	if root == nil {
		return
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.Data == "template" {
			continue
		}
		if fn(c) {
			Walk(c, fn)
		}
	}
}

// Elements collects the element nodes of root's light tree.
func Elements(root *html.Node) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// ByID returns the elements of root's light tree whose id equals id.
func ByID(root *html.Node, id string) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if v, ok := attrLookup(n, "id"); ok && v == id {
			out = append(out, n)
		}
		return true
	})
	return out
}

// TreeRoot returns the root of the tree n lives in: the document node or the template node of
// the enclosing shadow root.
func (d *Document) TreeRoot(n *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if d.IsShadowRoot(p) || p.Parent == nil {
			return p
		}
	}
	return nil
}

var nonTextInputs = map[string]bool{
	"button": true, "submit": true, "reset": true, "image": true,
	"hidden": true, "file": true, "checkbox": true, "radio": true,
}

// IsTextEntry reports whether n accepts a typed or assigned value.
func IsTextEntry(n *html.Node) bool {
	switch Tag(n) {
	case "input":
		return !nonTextInputs[InputType(n)]
	case "textarea", "select":
		return true
	}
	return IsContentEditable(n)
}

// IsToggle reports whether n is a checkbox or radio input.
func IsToggle(n *html.Node) bool {
	t := InputType(n)
	return t == "checkbox" || t == "radio"
}

// IsFormControl reports whether n can carry form state.
func IsFormControl(n *html.Node) bool {
	return IsTextEntry(n) || IsToggle(n)
}
