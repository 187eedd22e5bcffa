// internal/browser/dom/style.go
package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Style parses the inline style attribute of n into lower-case property/value pairs.
func Style(n *html.Node) map[string]string {
	raw := Attr(n, "style")
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, decl := range strings.Split(raw, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important")))
		if prop != "" {
			out[prop] = strings.TrimSpace(val)
		}
	}
	return out
}

// StyleValue returns one inline style property.
func StyleValue(n *html.Node, prop string) string {
	return Style(n)[prop]
}

// pixels parses a CSS length in px (or a bare number).
func pixels(v string) (float64, bool) {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// notRendered lists elements that never generate a box.
var notRendered = map[string]bool{
	"head": true, "script": true, "style": true, "meta": true, "link": true,
	"title": true, "template": true, "noscript": true, "base": true,
}

// hiddenBySelf reports whether the element itself suppresses rendering.
func hiddenBySelf(n *html.Node) bool {
	if notRendered[Tag(n)] {
		return true
	}
	if HasAttr(n, "hidden") {
		return true
	}
	if InputType(n) == "hidden" {
		return true
	}
	st := Style(n)
	if st["display"] == "none" || st["visibility"] == "hidden" || st["visibility"] == "collapse" {
		return true
	}
	if op, ok := st["opacity"]; ok {
		if f, err := strconv.ParseFloat(op, 64); err == nil && f == 0 {
			return true
		}
	}
	return false
}

// IsVisible reports whether n renders with a non-empty box: no hidden ancestor (crossing
// shadow boundaries to the host and frame boundaries to the embedding iframe) and a
// non-zero rect.
func (d *Document) IsVisible(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if d.IsShadowRoot(p) {
			continue
		}
		if hiddenBySelf(p) {
			return false
		}
	}
	if d.Rect(n).Empty() {
		return false
	}
	if el := d.EmbeddingFrame(); el != nil {
		return d.parent.IsVisible(el)
	}
	return true
}

// InViewport reports whether the element's box intersects the current viewport.
func (d *Document) InViewport(n *html.Node) bool {
	return d.Rect(n).Intersects(d.Viewport.Rect())
}

// HasPointerCursor reports an inline cursor:pointer on n.
func HasPointerCursor(n *html.Node) bool {
	return StyleValue(n, "cursor") == "pointer"
}

// EmbeddingFrame returns the iframe element that hosts this document in its parent, or nil for a
// top-level document.
func (d *Document) EmbeddingFrame() *html.Node {
	if d.parent == nil {
		return nil
	}
	for el, f := range d.parent.frames {
		if f.Doc == d {
			return el
		}
	}
	return nil
}

// PageRect returns the element's box in top-level document coordinates, offsetting the box by the
// position of every embedding frame.
func (d *Document) PageRect(n *html.Node) Rect {
	r := d.Rect(n)
	for cur := d; cur.parent != nil; cur = cur.parent {
		el := cur.EmbeddingFrame()
		if el == nil {
			break
		}
		fr := cur.parent.Rect(el)
		r.X += fr.X
		r.Y += fr.Y
	}
	return r
}
