// internal/browser/dom/document.go
package dom

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ErrScopeNotFound indicates that a shadow host or frame in a scope chain could not be located.
var ErrScopeNotFound = errors.New("scope element not found")

// ErrScopeInaccessible indicates a scope element exists but its content is isolated
// (cross-origin frame or closed shadow root).
var ErrScopeInaccessible = errors.New("scope content is not accessible")

// DefaultViewport is used when a document is parsed without explicit viewport dimensions.
var DefaultViewport = Viewport{Width: 1280, Height: 800}

// Viewport describes the visible window over a document.
type Viewport struct {
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Rect returns the viewport as a rectangle in document coordinates.
func (v Viewport) Rect() Rect {
	return Rect{X: v.ScrollX, Y: v.ScrollY, Width: v.Width, Height: v.Height}
}

// Rect is an axis-aligned bounding box in document coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Bottom returns the lower edge of the rect.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Intersects reports whether two rects overlap.
func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.X+o.Width && o.X < r.X+r.Width && r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// ShadowMode is the encapsulation mode of an attached shadow root.
type ShadowMode string

const (
	ShadowOpen   ShadowMode = "open"
	ShadowClosed ShadowMode = "closed"
)

// ShadowRoot is an isolated sub-tree attached to a host element. In the parsed model the
// root is the declarative <template shadowrootmode> element that holds the content.
type ShadowRoot struct {
	Host *html.Node
	Root *html.Node
	Mode ShadowMode
}

// Frame is an embedded browsing context. Doc is nil when the frame is not accessible.
type Frame struct {
	Element    *html.Node
	Src        string
	Origin     string
	Accessible bool
	Doc        *Document
}

type elementState struct {
	value      string
	hasValue   bool
	checked    bool
	hasChecked bool
	rect       Rect
}

// Document is a parsed snapshot of a live page: an x/net/html tree plus the runtime state a
// browser keeps outside the markup (form values, geometry) and the frame and shadow boundaries.
type Document struct {
	URL      *url.URL
	Root     *html.Node
	Viewport Viewport

	parent  *Document
	frames  map[*html.Node]*Frame
	shadows map[*html.Node]*ShadowRoot
	state   map[*html.Node]*elementState
	height  float64
}

// Parse reads an annotated HTML document. rawURL is the document's address and is used to
// decide which frames share its origin.
func Parse(r io.Reader, rawURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid document url %q: %w", rawURL, err)
	}
	doc := newDocument(root, u, nil)
	doc.Viewport = DefaultViewport
	doc.Reindex()
	return doc, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s, rawURL string) (*Document, error) {
	return Parse(strings.NewReader(s), rawURL)
}

func newDocument(root *html.Node, u *url.URL, parent *Document) *Document {
	return &Document{
		URL:     u,
		Root:    root,
		parent:  parent,
		frames:  make(map[*html.Node]*Frame),
		shadows: make(map[*html.Node]*ShadowRoot),
		state:   make(map[*html.Node]*elementState),
	}
}

// Origin returns scheme://host for the document, or "null" for opaque origins.
func (d *Document) Origin() string {
	if d.URL == nil || d.URL.Host == "" {
		if d.parent != nil {
			return d.parent.Origin()
		}
		return "null"
	}
	return d.URL.Scheme + "://" + d.URL.Host
}

// Parent returns the embedding document for frame documents.
func (d *Document) Parent() *Document { return d.parent }

// Title returns the text of the first <title> element.
func (d *Document) Title() string {
	var title string
	walkAll(d.Root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			title = strings.TrimSpace(Text(n))
			return false
		}
		return true
	})
	return title
}

// Reindex rebuilds the shadow and frame tables and recomputes layout. It must be called after
// the tree has been modified in place. Runtime state of surviving nodes is preserved.
func (d *Document) Reindex() {
	oldFrames := d.frames
	d.frames = make(map[*html.Node]*Frame)
	d.shadows = make(map[*html.Node]*ShadowRoot)

	walkAll(d.Root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.Data {
		case "template":
			mode := Attr(n, "shadowrootmode")
			if mode == "" {
				mode = Attr(n, "shadowroot")
			}
			if n.Parent != nil && n.Parent.Type == html.ElementNode && mode != "" {
				if _, attached := d.shadows[n.Parent]; !attached {
					m := ShadowOpen
					if strings.EqualFold(mode, string(ShadowClosed)) {
						m = ShadowClosed
					}
					d.shadows[n.Parent] = &ShadowRoot{Host: n.Parent, Root: n, Mode: m}
				}
			}
		case "iframe", "frame":
			if f, ok := oldFrames[n]; ok {
				d.frames[n] = f
			} else {
				d.frames[n] = d.buildFrame(n)
			}
			return false
		}
		return true
	})

	for n := range d.state {
		if !d.Contains(n) {
			delete(d.state, n)
		}
	}
	d.layout()
}

func (d *Document) buildFrame(el *html.Node) *Frame {
	f := &Frame{Element: el, Src: Attr(el, "src")}

	sandboxed := HasAttr(el, "sandbox") && !strings.Contains(Attr(el, "sandbox"), "allow-same-origin")
	if srcdoc, ok := attrLookup(el, "srcdoc"); ok {
		f.Origin = d.Origin()
		if sandboxed {
			f.Origin = "null"
			return f
		}
		root, err := html.Parse(strings.NewReader(srcdoc))
		if err != nil {
			return f
		}
		u, _ := url.Parse("about:srcdoc")
		child := newDocument(root, u, d)
		child.Viewport = Viewport{Width: DefaultViewport.Width, Height: DefaultViewport.Height}
		child.Reindex()
		f.Accessible = true
		f.Doc = child
		return f
	}

	target := d.resolve(f.Src)
	if target == nil || target.Host == "" {
		// about:blank and friends inherit the embedder's origin.
		f.Origin = d.Origin()
	} else {
		f.Origin = target.Scheme + "://" + target.Host
	}
	if sandboxed || f.Origin != d.Origin() {
		return f
	}
	root, _ := html.Parse(strings.NewReader(""))
	child := newDocument(root, target, d)
	child.Viewport = DefaultViewport
	child.Reindex()
	f.Accessible = true
	f.Doc = child
	return f
}

func (d *Document) resolve(ref string) *url.URL {
	if ref == "" {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	if d.URL == nil {
		return u
	}
	return d.URL.ResolveReference(u)
}

// Frames returns every frame of this document in document order.
func (d *Document) Frames() []*Frame {
	var out []*Frame
	walkAll(d.Root, func(n *html.Node) bool {
		if f, ok := d.frames[n]; ok {
			out = append(out, f)
			return false
		}
		return true
	})
	return out
}

// FrameOf returns the frame record of an iframe element.
func (d *Document) FrameOf(el *html.Node) (*Frame, bool) {
	f, ok := d.frames[el]
	return f, ok
}

// ShadowRootOf returns the shadow root attached to host, regardless of mode.
func (d *Document) ShadowRootOf(host *html.Node) (*ShadowRoot, bool) {
	s, ok := d.shadows[host]
	return s, ok
}

// ShadowRoots returns all attached shadow roots in document order.
func (d *Document) ShadowRoots() []*ShadowRoot {
	var out []*ShadowRoot
	walkAll(d.Root, func(n *html.Node) bool {
		if s, ok := d.shadows[n]; ok {
			out = append(out, s)
		}
		if f, ok := d.frames[n]; ok && f != nil {
			return false
		}
		return true
	})
	return out
}

// IsShadowRoot reports whether n is the template node that holds a shadow tree.
func (d *Document) IsShadowRoot(n *html.Node) bool {
	if n == nil || n.Parent == nil {
		return false
	}
	s, ok := d.shadows[n.Parent]
	return ok && s.Root == n
}

// Contains reports whether n is still attached to this document's tree.
func (d *Document) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.Root {
			return true
		}
	}
	return false
}

// Height returns the laid-out height of the document content.
func (d *Document) Height() float64 { return d.height }

// EnterScope follows a chain of shadow host / frame selectors starting at the document root
// and returns the document and root node the final selector should be evaluated against.
func (d *Document) EnterScope(scope []string) (*Document, *html.Node, error) {
	cur, root := d, d.Root
	for _, sel := range scope {
		nodes, err := cur.QueryAll(root, sel)
		if err != nil {
			return nil, nil, err
		}
		if len(nodes) == 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrScopeNotFound, sel)
		}
		host := nodes[0]
		if s, ok := cur.shadows[host]; ok {
			if s.Mode != ShadowOpen {
				return nil, nil, fmt.Errorf("%w: closed shadow root at %s", ErrScopeInaccessible, sel)
			}
			root = s.Root
			continue
		}
		if f, ok := cur.frames[host]; ok {
			if !f.Accessible || f.Doc == nil {
				return nil, nil, fmt.Errorf("%w: frame %s (%s)", ErrScopeInaccessible, sel, f.Origin)
			}
			cur, root = f.Doc, f.Doc.Root
			continue
		}
		return nil, nil, fmt.Errorf("%w: %s is neither a shadow host nor a frame", ErrScopeNotFound, sel)
	}
	return cur, root, nil
}

// -- Runtime state --

func (d *Document) st(n *html.Node) *elementState {
	s, ok := d.state[n]
	if !ok {
		s = &elementState{}
		d.state[n] = s
	}
	return s
}

// Value returns the current value of a form control or editable element.
func (d *Document) Value(n *html.Node) string {
	if s, ok := d.state[n]; ok && s.hasValue {
		return s.value
	}
	return initialValue(n)
}

// SetValue stores the runtime value of n.
func (d *Document) SetValue(n *html.Node, v string) {
	s := d.st(n)
	s.value, s.hasValue = v, true
}

// Checked returns the checkedness of a checkbox or radio input.
func (d *Document) Checked(n *html.Node) bool {
	if s, ok := d.state[n]; ok && s.hasChecked {
		return s.checked
	}
	return HasAttr(n, "checked")
}

// SetChecked stores the runtime checkedness of n.
func (d *Document) SetChecked(n *html.Node, v bool) {
	s := d.st(n)
	s.checked, s.hasChecked = v, true
}

// Rect returns the bounding box computed by the last layout pass.
func (d *Document) Rect(n *html.Node) Rect {
	if s, ok := d.state[n]; ok {
		return s.rect
	}
	return Rect{}
}

// DefaultValue returns the value n holds before any user input: the value attribute, textarea
// text or the selected (else first) option.
func DefaultValue(n *html.Node) string { return initialValue(n) }

func initialValue(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	switch n.Data {
	case "input":
		return Attr(n, "value")
	case "textarea":
		return Text(n)
	case "select":
		var first, selected *html.Node
		walkAll(n, func(c *html.Node) bool {
			if c.Type == html.ElementNode && c.Data == "option" {
				if first == nil {
					first = c
				}
				if selected == nil && HasAttr(c, "selected") {
					selected = c
				}
			}
			return true
		})
		if selected == nil {
			selected = first
		}
		if selected == nil {
			return ""
		}
		if v, ok := attrLookup(selected, "value"); ok {
			return v
		}
		return strings.TrimSpace(Text(selected))
	}
	if IsContentEditable(n) {
		return Text(n)
	}
	return ""
}

// -- Mutation helpers --

// SetAttr sets or replaces an attribute on n.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key && n.Attr[i].Namespace == "" {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute from n.
func RemoveAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// AppendHTML parses fragment in the context of parent and appends the resulting nodes.
// Callers must Reindex afterwards.
func AppendHTML(parent *html.Node, fragment string) error {
	ctx := parent
	if parent.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "body"}
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return fmt.Errorf("failed to parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nil
}

// Remove detaches n from its parent.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// -- Cloning --

// Clone returns a deep copy of the document, its frames and its runtime state. Node identity
// is not preserved, so references taken from one snapshot never alias another.
func (d *Document) Clone() *Document {
	return d.cloneWithParent(nil)
}

func (d *Document) cloneWithParent(parent *Document) *Document {
	mapping := make(map[*html.Node]*html.Node)
	root := cloneTree(d.Root, mapping)

	var u *url.URL
	if d.URL != nil {
		cp := *d.URL
		u = &cp
	}
	c := newDocument(root, u, parent)
	c.Viewport = d.Viewport
	c.height = d.height
	for old, s := range d.state {
		if n, ok := mapping[old]; ok {
			cp := *s
			c.state[n] = &cp
		}
	}
	for old, s := range d.shadows {
		c.shadows[mapping[old]] = &ShadowRoot{Host: mapping[old], Root: mapping[s.Root], Mode: s.Mode}
	}
	for old, f := range d.frames {
		nf := &Frame{Element: mapping[old], Src: f.Src, Origin: f.Origin, Accessible: f.Accessible}
		if f.Doc != nil {
			nf.Doc = f.Doc.cloneWithParent(c)
		}
		c.frames[mapping[old]] = nf
	}
	return c
}

func cloneTree(n *html.Node, mapping map[*html.Node]*html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	mapping[n] = c
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(cloneTree(child, mapping))
	}
	return c
}
