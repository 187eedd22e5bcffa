// internal/locator/locator.go
package locator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser/dom"
)

// ErrNoMatch is returned when a locator resolves to no element.
var ErrNoMatch = errors.New("locator matched no element")

// Kind ranks locators by durability.
type Kind string

const (
	KindID        Kind = "id"
	KindAttribute Kind = "attribute"
	KindXPath     Kind = "xpath"
)

// Confidence levels. They strictly decrease with kind rank.
const (
	ConfidenceID    = 0.95
	ConfidenceXPath = 0.40
)

// DurableAttributes lists the attributes tried after the id, most durable first, with the
// confidence a unique match earns.
var DurableAttributes = []struct {
	Name       string
	Confidence float64
}{
	{"data-testid", 0.85},
	{"data-test", 0.83},
	{"data-qa", 0.81},
	{"data-cy", 0.80},
	{"aria-label", 0.78},
	{"name", 0.75},
	{"placeholder", 0.70},
}

const maxAttrValueLen = 120

// Locator is one candidate reference to an element, relative to the element's scope root.
type Locator struct {
	Kind       Kind    `json:"kind"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	// Attr names the attribute of attribute-kind locators.
	Attr string `json:"attr,omitempty"`
}

// String renders the locator as "kind:value".
func (l Locator) String() string {
	return string(l.Kind) + ":" + l.Value
}

// Generate produces the ordered candidate locators for el, whose tree root is root inside doc.
// Every non-structural candidate is verified by a trial lookup to match exactly el.
func Generate(doc *dom.Document, root, el *html.Node) []Locator {
	if el == nil || el.Type != html.ElementNode {
		return nil
	}
	if root == nil {
		root = doc.TreeRoot(el)
	}
	var out []Locator

	if id := dom.Attr(el, "id"); id != "" && !dom.LooksGenerated(id) {
		sel := IDSelector(id)
		if unique(doc, root, sel, el) {
			out = append(out, Locator{Kind: KindID, Value: sel, Confidence: ConfidenceID})
		}
	}

	tag := dom.Tag(el)
	for _, a := range DurableAttributes {
		v := dom.Attr(el, a.Name)
		if v == "" || len(v) > maxAttrValueLen {
			continue
		}
		sel := AttrSelector(a.Name, v)
		if !unique(doc, root, sel, el) {
			// A tag-qualified selector often disambiguates a label shared with a button.
			sel = tag + sel
			if !unique(doc, root, sel, el) {
				continue
			}
		}
		out = append(out, Locator{Kind: KindAttribute, Attr: a.Name, Value: sel, Confidence: a.Confidence})
	}

	// An id-anchored path is only as good as the anchor; duplicated ancestor ids fall back to the
	// full path.
	xp := dom.GenerateUniqueXPath(el)
	if !unique(doc, root, xp, el) {
		xp = dom.GenerateAbsoluteXPath(el)
	}
	out = append(out, Locator{Kind: KindXPath, Value: xp, Confidence: ConfidenceXPath})
	Sort(out)
	return out
}

// Sort orders locators by descending confidence, keeping generation order for ties.
func Sort(locs []Locator) {
	sort.SliceStable(locs, func(i, j int) bool { return locs[i].Confidence > locs[j].Confidence })
}

// Best returns the highest-confidence locator.
func Best(locs []Locator) (Locator, bool) {
	if len(locs) == 0 {
		return Locator{}, false
	}
	best := locs[0]
	for _, l := range locs[1:] {
		if l.Confidence > best.Confidence {
			best = l
		}
	}
	return best, true
}

// Resolve evaluates loc below root and returns the first match.
func Resolve(doc *dom.Document, root *html.Node, loc Locator) (*html.Node, error) {
	nodes, err := doc.QueryAll(root, loc.Value)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, loc)
	}
	return nodes[0], nil
}

// FromSelector wraps a caller-supplied selector, inferring its kind.
func FromSelector(sel string) Locator {
	sel = strings.TrimSpace(sel)
	switch {
	case dom.IsXPath(sel):
		return Locator{Kind: KindXPath, Value: sel, Confidence: ConfidenceXPath}
	case strings.HasPrefix(sel, "#") && !strings.ContainsAny(sel[1:], " .[>:+~#"):
		return Locator{Kind: KindID, Value: sel, Confidence: ConfidenceID}
	}
	return Locator{Kind: KindAttribute, Value: sel, Confidence: 0.5}
}

func unique(doc *dom.Document, root *html.Node, sel string, el *html.Node) bool {
	nodes, err := doc.QueryAll(root, sel)
	return err == nil && len(nodes) == 1 && nodes[0] == el
}
