// internal/scanner/label.go
package scanner

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser/dom"
)

const maxTextLen = 80

// LabelFor returns the label text of a control: an explicit label[for], a wrapping label, or the
// elements referenced by aria-labelledby, in that order.
func LabelFor(doc *dom.Document, root, el *html.Node) string {
	if root == nil {
		root = doc.TreeRoot(el)
	}
	if id := dom.Attr(el, "id"); id != "" {
		var found string
		dom.Walk(root, func(n *html.Node) bool {
			if found != "" {
				return false
			}
			if dom.Tag(n) == "label" && dom.Attr(n, "for") == id {
				found = labelText(n, el)
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	for p := el.Parent; p != nil && p != root; p = p.Parent {
		if dom.Tag(p) == "label" {
			if t := labelText(p, el); t != "" {
				return t
			}
			break
		}
	}
	if refs := dom.Attr(el, "aria-labelledby"); refs != "" {
		var parts []string
		for _, id := range strings.Fields(refs) {
			for _, n := range dom.ByID(root, id) {
				if t := dom.NormalizedText(n); t != "" {
					parts = append(parts, t)
				}
				break
			}
		}
		return truncate(strings.Join(parts, " "))
	}
	return ""
}

// labelText is the label's text without the text of the control it wraps.
func labelText(label, control *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c == control {
				continue
			}
			switch c.Type {
			case html.TextNode:
				sb.WriteString(c.Data)
				sb.WriteByte(' ')
			case html.ElementNode:
				switch dom.Tag(c) {
				case "select", "textarea", "script", "style", "template":
					continue
				}
				visit(c)
			}
		}
	}
	visit(label)
	return truncate(strings.Join(strings.Fields(sb.String()), " "))
}

// AccessibleName approximates the computed accessible name of el.
func AccessibleName(el *html.Node, label string) string {
	if v := strings.TrimSpace(dom.Attr(el, "aria-label")); v != "" {
		return truncate(v)
	}
	if label != "" {
		return label
	}
	switch dom.Tag(el) {
	case "button", "a", "summary", "option":
		if t := dom.NormalizedText(el); t != "" {
			return truncate(t)
		}
	case "input":
		switch dom.InputType(el) {
		case "submit", "button", "reset":
			if v := dom.Attr(el, "value"); v != "" {
				return truncate(v)
			}
		case "image":
			if v := dom.Attr(el, "alt"); v != "" {
				return truncate(v)
			}
		}
	case "img":
		if v := dom.Attr(el, "alt"); v != "" {
			return truncate(v)
		}
	}
	if v := strings.TrimSpace(dom.Attr(el, "title")); v != "" {
		return truncate(v)
	}
	if v := strings.TrimSpace(dom.Attr(el, "placeholder")); v != "" {
		return truncate(v)
	}
	if dom.Attr(el, "role") != "" {
		return truncate(dom.NormalizedText(el))
	}
	return ""
}

func truncate(s string) string {
	if len(s) <= maxTextLen {
		return s
	}
	cut := maxTextLen
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
