// internal/browser/cdp/scripts.go
package cdp

// bootstrapScript installs the helpers every other script relies on. It is idempotent and is
// re-run before each evaluation because navigations discard the previous window.
const bootstrapScript = `(function() {
  if (window.__locus) { return true; }
  const L = {};
  L.changes = 0;
  try {
    new MutationObserver(function() { L.changes++; }).observe(document, {
      subtree: true, childList: true, attributes: true, characterData: true
    });
  } catch (e) {}
  document.addEventListener('input', function() { L.changes++; }, true);

  L.query = function(root, sel) {
    sel = sel.trim();
    if (sel.startsWith('/') || sel.startsWith('(')) {
      const isDoc = root.nodeType === 9;
      let expr = sel;
      if (!isDoc) {
        if (expr.startsWith('(/')) { expr = '(.' + expr.slice(1); }
        else if (expr.startsWith('/')) { expr = '.' + expr; }
      }
      const ownerDoc = isDoc ? root : root.ownerDocument;
      const snap = ownerDoc.evaluate(expr, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
      return snap.snapshotLength ? snap.snapshotItem(0) : null;
    }
    return root.querySelector(sel);
  };

  L.resolve = function(target) {
    let root = document;
    for (const sel of (target.scope || [])) {
      const host = L.query(root, sel);
      if (!host) { throw new Error('scope element not found: ' + sel); }
      if (host.shadowRoot) { root = host.shadowRoot; continue; }
      let inner = null;
      try { inner = host.contentDocument; } catch (e) {}
      if (inner) { root = inner; continue; }
      throw new Error('scope content is not accessible: ' + sel);
    }
    const el = L.query(root, target.selector);
    if (!el) { throw new Error('element not found: ' + target.selector); }
    return el;
  };

  L.fire = function(el, type) {
    el.dispatchEvent(new Event(type, { bubbles: true }));
  };

  window.__locus = L;
  return true;
})()`

// serializeScript renders the live document as annotated markup: live form values become
// attributes, every element carries its bounding box in data-rect, open shadow roots become
// declarative templates and same-origin frames are inlined through srcdoc.
const serializeScript = `(function() {
  const esc = function(s) {
    return String(s).replace(/&/g, '&amp;').replace(/"/g, '&quot;').replace(/</g, '&lt;').replace(/>/g, '&gt;');
  };
  const voids = new Set(['area','base','br','col','embed','hr','img','input','link','meta','source','track','wbr']);

  const ser = function(node, win) {
    if (node.nodeType === 3) { return esc(node.data); }
    if (node.nodeType !== 1) { return ''; }
    const tag = node.tagName.toLowerCase();
    if (tag === 'script' || tag === 'style') { return '<' + tag + '></' + tag + '>'; }

    const attrs = {};
    for (const a of node.attributes) { attrs[a.name] = a.value; }
    const r = node.getBoundingClientRect();
    let w = r.width, h = r.height;
    const cs = win.getComputedStyle(node);
    if (cs && (cs.visibility === 'hidden' || cs.display === 'none')) { w = 0; h = 0; }
    attrs['data-rect'] = [r.left + win.scrollX, r.top + win.scrollY, w, h].map(function(v) { return Math.round(v); }).join(',');

    if (tag === 'input') {
      attrs['value'] = node.value;
      if (node.type === 'checkbox' || node.type === 'radio') {
        if (node.checked) { attrs['checked'] = ''; } else { delete attrs['checked']; }
      }
    }
    if (tag === 'option') {
      if (node.selected) { attrs['selected'] = ''; } else { delete attrs['selected']; }
    }
    let inner = '';
    if (tag === 'iframe' || tag === 'frame') {
      let doc = null;
      try { doc = node.contentDocument; } catch (e) {}
      if (doc && doc.documentElement) {
        attrs['srcdoc'] = '<!DOCTYPE html>' + ser(doc.documentElement, node.contentWindow);
      }
    } else if (tag === 'textarea') {
      inner = esc(node.value);
    } else {
      if (node.shadowRoot) {
        let s = '';
        for (const c of node.shadowRoot.childNodes) { s += ser(c, win); }
        inner += '<template shadowrootmode="open">' + s + '</template>';
      }
      const kids = tag === 'template' ? node.content.childNodes : node.childNodes;
      for (const c of kids) { inner += ser(c, win); }
    }

    let out = '<' + tag;
    for (const k in attrs) { out += ' ' + k + '="' + esc(attrs[k]) + '"'; }
    out += '>';
    if (voids.has(tag)) { return out; }
    return out + inner + '</' + tag + '>';
  };

  return {
    html: '<!DOCTYPE html>' + ser(document.documentElement, window),
    url: location.href,
    scrollX: window.scrollX,
    scrollY: window.scrollY,
    width: window.innerWidth,
    height: window.innerHeight
  };
})()`

// actionScript wraps a body that operates on the resolved element "el". %s receives the JSON
// encoded target and %s the body.
const actionScript = `(function() {
  const L = window.__locus;
  const el = L.resolve(%s);
  %s
})()`

const clickBody = `el.scrollIntoView({block: 'center'}); el.click(); return true;`

const setValueBody = `const v = %s;
  el.focus();
  if (el.isContentEditable) { el.textContent = v; } else { el.value = v; }
  L.fire(el, 'input'); L.fire(el, 'change');
  return true;`

const nativeSetterBody = `const v = %s;
  el.focus();
  if (el.isContentEditable) { el.textContent = v; L.fire(el, 'input'); return true; }
  const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype :
    el instanceof HTMLSelectElement ? HTMLSelectElement.prototype : HTMLInputElement.prototype;
  const desc = Object.getOwnPropertyDescriptor(proto, 'value');
  desc.set.call(el, v);
  L.fire(el, 'input'); L.fire(el, 'change');
  return true;`

const clearBody = `el.focus();
  if (el.isContentEditable) { el.textContent = ''; } else if (el.select) { el.select(); }
  return true;`

const setCheckedBody = `const want = %s;
  if (el.checked !== want) { el.click(); }
  return el.checked === want;`

const readValueBody = `if (el.type === 'checkbox' || el.type === 'radio') { return String(el.checked); }
  if (el.isContentEditable) { return el.textContent; }
  return el.value === undefined ? '' : String(el.value);`

const scrollIntoViewBody = `el.scrollIntoView({block: 'start'}); return true;`

const highlightBody = `const prev = el.style.outline;
  el.style.outline = '3px solid #f5a623';
  setTimeout(function() { el.style.outline = prev; }, %d);
  return true;`

const changeCounterScript = `(window.__locus ? window.__locus.changes : 0)`

const infoScript = `({url: location.href, title: document.title, scrollX: window.scrollX, scrollY: window.scrollY,
  width: window.innerWidth, height: window.innerHeight})`
