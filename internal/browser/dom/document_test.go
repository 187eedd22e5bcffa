package dom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/locus/internal/browser/dom"
)

const boundariesHTML = `<html><head><title> Checkout </title></head><body>
	<form id="f">
		<label for="email">Email</label>
		<input id="email" name="email" value="a@b.test">
		<input id="hidden" type="hidden" name="token" value="t">
		<select id="country"><option value="us">US</option><option value="ca" selected>Canada</option></select>
		<textarea id="notes">hello</textarea>
	</form>
	<div id="open-host"><template shadowrootmode="open"><input id="inner" name="inner"></template></div>
	<div id="closed-host"><template shadowrootmode="closed"><input id="secret"></template></div>
	<iframe id="same" srcdoc="<input id='framed' name='framed'>"></iframe>
	<iframe id="cross" src="https://other.test/form"></iframe>
	<div style="display:none"><button id="ghost">Ghost</button></div>
	<div id="far" data-rect="0,4000,200,24">Far away</div>
</body></html>`

func parseBoundaries(t *testing.T) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(boundariesHTML, "https://shop.test/checkout")
	require.NoError(t, err)
	return doc
}

func TestParse_TitleAndValues(t *testing.T) {
	doc := parseBoundaries(t)
	assert.Equal(t, "Checkout", doc.Title())
	assert.Equal(t, "https://shop.test", doc.Origin())

	email, err := doc.QueryOne(nil, "#email")
	require.NoError(t, err)
	assert.Equal(t, "a@b.test", doc.Value(email))

	doc.SetValue(email, "x@y.test")
	assert.Equal(t, "x@y.test", doc.Value(email))

	country, _ := doc.QueryOne(nil, "#country")
	assert.Equal(t, "ca", doc.Value(country))
	notes, _ := doc.QueryOne(nil, "#notes")
	assert.Equal(t, "hello", doc.Value(notes))
}

func TestQueryAll_DoesNotPierceBoundaries(t *testing.T) {
	doc := parseBoundaries(t)

	for _, sel := range []string{"#inner", "#secret", "#framed", "//input[@id='inner']"} {
		nodes, err := doc.QueryAll(nil, sel)
		require.NoError(t, err)
		assert.Empty(t, nodes, sel)
	}

	_, err := doc.QueryAll(nil, "div[")
	assert.Error(t, err)
}

func TestEnterScope(t *testing.T) {
	doc := parseBoundaries(t)

	sub, root, err := doc.EnterScope([]string{"#open-host"})
	require.NoError(t, err)
	inner, err := sub.QueryOne(root, "#inner")
	require.NoError(t, err)
	assert.NotNil(t, inner)

	fdoc, froot, err := doc.EnterScope([]string{"#same"})
	require.NoError(t, err)
	framed, err := fdoc.QueryOne(froot, "input[name=framed]")
	require.NoError(t, err)
	assert.NotNil(t, framed)
	assert.Same(t, doc, fdoc.Parent())

	_, _, err = doc.EnterScope([]string{"#closed-host"})
	assert.ErrorIs(t, err, dom.ErrScopeInaccessible)

	_, _, err = doc.EnterScope([]string{"#cross"})
	assert.ErrorIs(t, err, dom.ErrScopeInaccessible)

	_, _, err = doc.EnterScope([]string{"#missing"})
	assert.ErrorIs(t, err, dom.ErrScopeNotFound)

	_, _, err = doc.EnterScope([]string{"#f"})
	assert.ErrorIs(t, err, dom.ErrScopeNotFound)
}

func TestFramesAndShadowRoots(t *testing.T) {
	doc := parseBoundaries(t)

	frames := doc.Frames()
	require.Len(t, frames, 2)
	assert.True(t, frames[0].Accessible)
	assert.Equal(t, "https://shop.test", frames[0].Origin)
	assert.False(t, frames[1].Accessible)
	assert.Equal(t, "https://other.test", frames[1].Origin)
	assert.Nil(t, frames[1].Doc)

	roots := doc.ShadowRoots()
	require.Len(t, roots, 2)
	assert.Equal(t, dom.ShadowOpen, roots[0].Mode)
	assert.Equal(t, dom.ShadowClosed, roots[1].Mode)
}

func TestVisibilityAndLayout(t *testing.T) {
	doc := parseBoundaries(t)

	email, _ := doc.QueryOne(nil, "#email")
	hidden, _ := doc.QueryOne(nil, "#hidden")
	ghost, _ := doc.QueryOne(nil, "#ghost")
	far, _ := doc.QueryOne(nil, "#far")

	assert.True(t, doc.IsVisible(email))
	assert.True(t, doc.InViewport(email))
	assert.False(t, doc.IsVisible(hidden))
	assert.False(t, doc.IsVisible(ghost))

	assert.True(t, doc.IsVisible(far))
	assert.False(t, doc.InViewport(far))
	assert.Equal(t, dom.Rect{X: 0, Y: 4000, Width: 200, Height: 24}, doc.Rect(far))

	doc.Viewport.ScrollY = 3900
	assert.True(t, doc.InViewport(far))
	assert.False(t, doc.InViewport(email))
}

func TestReindexAfterMutation(t *testing.T) {
	doc := parseBoundaries(t)
	form, _ := doc.QueryOne(nil, "#f")
	email, _ := doc.QueryOne(nil, "#email")
	doc.SetValue(email, "kept")

	require.NoError(t, dom.AppendHTML(form, `<input id="late" name="late">`))
	doc.Reindex()

	late, err := doc.QueryOne(nil, "#late")
	require.NoError(t, err)
	require.NotNil(t, late)
	assert.True(t, doc.IsVisible(late))
	assert.Equal(t, "kept", doc.Value(email))

	dom.Remove(email)
	doc.Reindex()
	assert.False(t, doc.Contains(email))
}

func TestClone_IsIndependent(t *testing.T) {
	doc := parseBoundaries(t)
	email, _ := doc.QueryOne(nil, "#email")
	doc.SetValue(email, "original")

	cp := doc.Clone()
	cpEmail, err := cp.QueryOne(nil, "#email")
	require.NoError(t, err)
	assert.NotSame(t, email, cpEmail)
	assert.Equal(t, "original", cp.Value(cpEmail))

	cp.SetValue(cpEmail, "changed")
	assert.Equal(t, "original", doc.Value(email))

	sub, root, err := cp.EnterScope([]string{"#same"})
	require.NoError(t, err)
	framed, _ := sub.QueryOne(root, "#framed")
	assert.NotNil(t, framed)
	assert.Same(t, cp, sub.Parent())
}

func TestLooksGenerated(t *testing.T) {
	for _, id := range []string{":r3:", "ember142", "mui-12", "field-99812", "a1b2c3d4e5f6"} {
		assert.True(t, dom.LooksGenerated(id), id)
	}
	for _, id := range []string{"email", "first_name", "signup-form", "q"} {
		assert.False(t, dom.LooksGenerated(id), id)
	}
}
