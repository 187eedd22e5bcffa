// internal/recovery/label.go
package recovery

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser/dom"
)

// LabelProximity matches the target description against visible label text and follows the
// label to its control: the for binding, a nested control, then the next sibling control.
type LabelProximity struct{ env Env }

func NewLabelProximity(env Env) *LabelProximity { return &LabelProximity{env: env} }

func (l *LabelProximity) Name() string  { return "label_proximity" }
func (l *LabelProximity) Priority() int { return 200 }

func (l *LabelProximity) Attempt(ctx context.Context, rc Context) (Result, error) {
	want := Fold(strings.Trim(describedText(rc), " :*"))
	if want == "" {
		return Result{}, nil
	}
	doc, err := l.env.Page.Document(ctx)
	if err != nil {
		return Result{}, err
	}

	var exact, partial *html.Node
	dom.Walk(doc.Root, func(n *html.Node) bool {
		if dom.Tag(n) != "label" || !doc.IsVisible(n) {
			return true
		}
		text := Fold(strings.Trim(dom.NormalizedText(n), " :*"))
		switch {
		case text == "":
		case text == want && exact == nil:
			exact = n
		case partial == nil && (strings.Contains(text, want) || strings.Contains(want, text)):
			partial = n
		}
		return true
	})

	for _, label := range []*html.Node{exact, partial} {
		if label == nil {
			continue
		}
		control, how := l.controlFor(doc, label, rc)
		if control == nil {
			continue
		}
		if el, ok := describe(doc, doc.Root, control, nil); ok {
			return found(el, map[string]interface{}{"binding": how, "label": dom.NormalizedText(label)}), nil
		}
	}
	return Result{}, nil
}

func (l *LabelProximity) controlFor(doc *dom.Document, label *html.Node, rc Context) (*html.Node, string) {
	ok := func(n *html.Node) bool {
		return n != nil && dom.IsFormControl(n) && doc.IsVisible(n) && !dom.IsDisabled(n) && usable(rc, n)
	}
	if id := dom.Attr(label, "for"); id != "" {
		for _, n := range dom.ByID(doc.Root, id) {
			if ok(n) {
				return n, "for"
			}
		}
	}
	var nested *html.Node
	dom.Walk(label, func(n *html.Node) bool {
		if nested == nil && ok(n) {
			nested = n
		}
		return nested == nil
	})
	if nested != nil {
		return nested, "nested"
	}
	for sib := label.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode {
			continue
		}
		if ok(sib) {
			return sib, "sibling"
		}
		if dom.Tag(sib) == "label" {
			break
		}
		var inner *html.Node
		dom.Walk(sib, func(n *html.Node) bool {
			if inner == nil && ok(n) {
				inner = n
			}
			return inner == nil
		})
		if inner != nil {
			return inner, "sibling"
		}
	}
	return nil, ""
}
