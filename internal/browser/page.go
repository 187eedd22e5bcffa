// internal/browser/page.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/changes"
)

// ErrElementNotFound is returned by page actions whose target does not resolve to an element.
var ErrElementNotFound = errors.New("element not found")

// ErrNotEditable is returned when a write targets an element that cannot hold a value.
var ErrNotEditable = errors.New("element is not editable")

// Target addresses one element: Scope is the chain of shadow-host or frame selectors entered in
// order, Selector is evaluated inside the innermost scope. Selectors starting with "/" or "("
// are XPath, anything else is CSS.
type Target struct {
	Scope    []string `json:"scope,omitempty"`
	Selector string   `json:"selector"`
}

// String renders the target as "scope >>> scope >>> selector".
func (t Target) String() string {
	if len(t.Scope) == 0 {
		return t.Selector
	}
	return strings.Join(append(append([]string(nil), t.Scope...), t.Selector), " >>> ")
}

// Point is a 2D coordinate in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PageInfo is the answer to a state query.
type PageInfo struct {
	URL      string       `json:"url"`
	Title    string       `json:"title"`
	Scroll   Point        `json:"scroll"`
	Cursor   Point        `json:"cursor"`
	Viewport dom.Viewport `json:"viewport"`
}

// Page is the live document the engine drives. Every method reflects the state at call time;
// callers must not hold element references across calls.
type Page interface {
	// Document returns a fresh snapshot of the live document, frames and shadow roots included.
	Document(ctx context.Context) (*dom.Document, error)
	Info(ctx context.Context) (PageInfo, error)

	Click(ctx context.Context, t Target) error
	// SetValue assigns the value directly and dispatches input and change events.
	SetValue(ctx context.Context, t Target, value string) error
	// TypeKeys selects the current content and replaces it with key events, one character at a
	// time, pausing delay between keys.
	TypeKeys(ctx context.Context, t Target, text string, delay time.Duration) error
	// SetValueNative uses the prototype value setter, which controlled-input frameworks observe.
	SetValueNative(ctx context.Context, t Target, value string) error
	SetChecked(ctx context.Context, t Target, checked bool) error
	ReadValue(ctx context.Context, t Target) (string, error)

	ScrollIntoView(ctx context.Context, t Target) error
	ScrollBy(ctx context.Context, dx, dy float64) error
	ScrollTo(ctx context.Context, x, y float64) error

	Highlight(ctx context.Context, t Target, d time.Duration) error
	RunScript(ctx context.Context, code string) (json.RawMessage, error)

	Changes() changes.Source
}

// Resolve locates the element a target refers to within a document snapshot.
func Resolve(doc *dom.Document, t Target) (*dom.Document, *html.Node, error) {
	sub, root, err := doc.EnterScope(t.Scope)
	if err != nil {
		return nil, nil, err
	}
	n, err := sub.QueryOne(root, t.Selector)
	if err != nil {
		return nil, nil, err
	}
	if n == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrElementNotFound, t)
	}
	return sub, n, nil
}
