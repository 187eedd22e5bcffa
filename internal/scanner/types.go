// internal/scanner/types.go
package scanner

import (
	"time"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/locator"
)

// FieldDescriptor describes one interactive element found by a scan. Invisible elements are
// recorded with Visible=false so probe-scroll can still find them later.
type FieldDescriptor struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Tag       string `json:"tag"`
	InputType string `json:"inputType,omitempty"`
	Role      string `json:"role,omitempty"`

	Label          string `json:"label,omitempty"`
	Placeholder    string `json:"placeholder,omitempty"`
	AccessibleName string `json:"accessibleName,omitempty"`
	Autocomplete   string `json:"autocomplete,omitempty"`
	TestID         string `json:"testId,omitempty"`
	Text           string `json:"text,omitempty"`

	Rect     dom.Rect `json:"rect"`
	Visible  bool     `json:"visible"`
	Disabled bool     `json:"disabled,omitempty"`
	ReadOnly bool     `json:"readOnly,omitempty"`
	Checked  bool     `json:"checked,omitempty"`

	// Interactivity is 1 for native controls and lower for heuristic signals such as a pointer
	// cursor.
	Interactivity float64 `json:"interactivity"`

	Scope    []string          `json:"scope,omitempty"`
	Locators []locator.Locator `json:"locators"`
}

// BestLocator returns the highest-ranked locator.
func (f FieldDescriptor) BestLocator() locator.Locator {
	best, _ := locator.Best(f.Locators)
	return best
}

// Target addresses the field through its best locator.
func (f FieldDescriptor) Target() browser.Target {
	return browser.Target{Scope: f.Scope, Selector: f.BestLocator().Value}
}

// Key is the canonical identity of the field: its scope chain and best locator.
func (f FieldDescriptor) Key() string {
	return f.Target().String()
}

// Region is a landmark or semantic section of the page.
type Region struct {
	Kind    string          `json:"kind"`
	Label   string          `json:"label,omitempty"`
	Rect    dom.Rect        `json:"rect"`
	Scope   []string        `json:"scope,omitempty"`
	Locator locator.Locator `json:"locator"`
}

// FrameInfo records an embedded frame. Inaccessible frames are never traversed.
type FrameInfo struct {
	Locator    locator.Locator `json:"locator"`
	Scope      []string        `json:"scope,omitempty"`
	Src        string          `json:"src,omitempty"`
	Origin     string          `json:"origin"`
	Accessible bool            `json:"accessible"`
}

// IsolatedSubtree records an attached shadow root.
type IsolatedSubtree struct {
	Host      locator.Locator `json:"host"`
	Scope     []string        `json:"scope,omitempty"`
	Mode      string          `json:"mode"`
	Traversed bool            `json:"traversed"`
}

// Snapshot is the immutable result of one scan.
type Snapshot struct {
	Timestamp        time.Time         `json:"timestamp"`
	URL              string            `json:"url"`
	Fields           []FieldDescriptor `json:"fields"`
	Actionables      []FieldDescriptor `json:"actionables"`
	Regions          []Region          `json:"regions"`
	Frames           []FrameInfo       `json:"frames"`
	IsolatedSubtrees []IsolatedSubtree `json:"isolatedSubtrees"`
	// Truncated is set when the depth bound stopped traversal.
	Truncated bool `json:"truncated,omitempty"`
}

// All returns fields followed by actionables.
func (s *Snapshot) All() []FieldDescriptor {
	out := make([]FieldDescriptor, 0, len(s.Fields)+len(s.Actionables))
	out = append(out, s.Fields...)
	return append(out, s.Actionables...)
}
