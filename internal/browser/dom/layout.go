// internal/browser/dom/layout.go
package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// A deliberately small block-flow model: every rendered element stacks vertically under its
// predecessor. Pages that need exact geometry (the CDP serializer, targeted tests) annotate
// elements with data-rect="x,y,w,h", which places the box out of flow.
const (
	lineHeight     = 24.0
	controlWidth   = 200.0
	textareaHeight = 48.0
	frameHeight    = 150.0
)

// RectAttr is the annotation carrying serialized geometry.
const RectAttr = "data-rect"

func (d *Document) layout() {
	for _, s := range d.state {
		s.rect = Rect{}
	}
	width := d.Viewport.Width
	if width <= 0 {
		width = DefaultViewport.Width
	}
	d.height = d.layoutChildren(d.Root, 0, 0, width)
}

// Relayout recomputes geometry without rebuilding the frame and shadow tables.
func (d *Document) Relayout() { d.layout() }

func (d *Document) layoutChildren(parent *html.Node, x, y, width float64) float64 {
	container := parent
	if s, ok := d.shadows[parent]; ok {
		container = s.Root
	}
	total := 0.0
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			if c.Data == "template" {
				continue
			}
			total += d.layoutNode(c, x, y+total, width)
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" && Tag(parent) != "html" {
				total += lineHeight
			}
		case html.DocumentNode:
			total += d.layoutChildren(c, x, y+total, width)
		}
	}
	return total
}

func (d *Document) layoutNode(n *html.Node, x, y, width float64) float64 {
	if hiddenBySelf(n) {
		return 0
	}
	if r, ok := parseRect(Attr(n, RectAttr)); ok {
		d.st(n).rect = r
		d.layoutChildren(n, r.X, r.Y, r.Width)
		return 0
	}

	st := Style(n)
	w, h := intrinsicSize(n, width)
	if v, ok := pixels(st["width"]); ok {
		w = v
	}
	fixed := false
	if v, ok := pixels(st["height"]); ok {
		h, fixed = v, true
	}

	if st["position"] == "absolute" || st["position"] == "fixed" {
		top, _ := pixels(st["top"])
		left, _ := pixels(st["left"])
		d.st(n).rect = Rect{X: left, Y: top, Width: w, Height: h}
		d.layoutChildren(n, left, top, w)
		return 0
	}

	var childHeight float64
	switch Tag(n) {
	case "select", "textarea", "iframe", "frame", "input", "img":
	default:
		childHeight = d.layoutChildren(n, x, y, w)
	}
	if !fixed && childHeight > h {
		h = childHeight
	}
	d.st(n).rect = Rect{X: x, Y: y, Width: w, Height: h}
	return h
}

func intrinsicSize(n *html.Node, width float64) (float64, float64) {
	attrPx := func(key string, def float64) float64 {
		if v, ok := pixels(Attr(n, key)); ok {
			return v
		}
		return def
	}
	switch Tag(n) {
	case "input":
		switch InputType(n) {
		case "checkbox", "radio":
			return 16, 16
		}
		return controlWidth, lineHeight
	case "select", "button":
		return controlWidth, lineHeight
	case "textarea":
		return 300, textareaHeight
	case "img":
		return attrPx("width", 0), attrPx("height", 0)
	case "iframe", "frame":
		return attrPx("width", 300), attrPx("height", frameHeight)
	case "br":
		return 0, 0
	case "hr":
		return width, 2
	}
	return width, 0
}

func parseRect(v string) (Rect, bool) {
	if v == "" {
		return Rect{}, false
	}
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return Rect{}, false
	}
	var nums [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Rect{}, false
		}
		nums[i] = f
	}
	return Rect{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}, true
}

// FormatRect renders a rect in the data-rect annotation format.
func FormatRect(r Rect) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(r.X) + "," + f(r.Y) + "," + f(r.Width) + "," + f(r.Height)
}
