// internal/fieldgraph/graph.go
package fieldgraph

import (
	"strings"

	"github.com/xkilldash9x/locus/internal/classifier"
	"github.com/xkilldash9x/locus/internal/locator"
	"github.com/xkilldash9x/locus/internal/scanner"
)

// Entry is a scanned field enriched with its semantic type and pairing.
type Entry struct {
	Field scanner.FieldDescriptor `json:"field"`
	Type  classifier.SemanticType `json:"type"`
	// Paired is the best locator of the confirmation field, when there is one.
	Paired *locator.Locator `json:"paired,omitempty"`
}

// Graph indexes the fields of one scan by their canonical key. A graph is built wholesale from a
// snapshot and never modified afterwards; a new scan produces a new graph.
type Graph struct {
	url     string
	order   []string
	entries map[string]Entry
	byType  map[classifier.SemanticType][]string
}

// Build classifies every field of the snapshot. Actionables are not indexed.
func Build(snap *scanner.Snapshot, c *classifier.Classifier) *Graph {
	g := &Graph{
		entries: make(map[string]Entry),
		byType:  make(map[classifier.SemanticType][]string),
	}
	if snap == nil {
		return g
	}
	if c == nil {
		c = classifier.New()
	}
	g.url = snap.URL

	for _, f := range snap.Fields {
		key := f.Key()
		if _, dup := g.entries[key]; dup {
			continue
		}
		e := Entry{Field: f, Type: c.Classify(f)}
		if loc, ok := c.FindPair(f, snap.Fields); ok {
			e.Paired = &loc
		}
		g.entries[key] = e
		g.order = append(g.order, key)
		g.byType[e.Type] = append(g.byType[e.Type], key)
	}
	return g
}

// URL is the address of the scanned page.
func (g *Graph) URL() string { return g.url }

// Len returns the number of indexed fields.
func (g *Graph) Len() int { return len(g.order) }

// Lookup returns the entry stored under a canonical key (see scanner.FieldDescriptor.Key) or a
// bare best-locator value for top-level fields.
func (g *Graph) Lookup(key string) (Entry, bool) {
	e, ok := g.entries[key]
	return e, ok
}

// ByType returns the fields of a semantic type in document order.
func (g *Graph) ByType(t classifier.SemanticType) []Entry {
	keys := g.byType[t]
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.entries[k])
	}
	return out
}

// Entries returns all fields in document order.
func (g *Graph) Entries() []Entry {
	out := make([]Entry, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.entries[k])
	}
	return out
}

// Find returns the first visible field whose id, name, label or any locator value equals one of
// the hints, compared case-insensitively. Invisible fields are left to probe-scroll recovery.
func (g *Graph) Find(hints ...string) (Entry, bool) {
	for _, raw := range hints {
		h := strings.ToLower(strings.TrimSpace(raw))
		if h == "" {
			continue
		}
		for _, k := range g.order {
			e := g.entries[k]
			if !e.Field.Visible {
				continue
			}
			if matches(e.Field, h) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// Matches reports whether f answers to any of the hints under the same rules as Find, ignoring
// visibility.
func Matches(f scanner.FieldDescriptor, hints ...string) bool {
	for _, raw := range hints {
		if h := strings.ToLower(strings.TrimSpace(raw)); h != "" && matches(f, h) {
			return true
		}
	}
	return false
}

func matches(f scanner.FieldDescriptor, h string) bool {
	for _, v := range []string{f.ID, f.Name, f.Label, f.AccessibleName, f.TestID} {
		if v != "" && strings.ToLower(v) == h {
			return true
		}
	}
	for _, l := range f.Locators {
		if strings.ToLower(l.Value) == h {
			return true
		}
	}
	return false
}
