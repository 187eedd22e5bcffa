// internal/executor/interact.go
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/classifier"
	"github.com/xkilldash9x/locus/internal/scanner"
)

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

func (e *Executor) click(ctx context.Context, m *machine, a Click, res *Result) error {
	el, err := e.resolve(ctx, m, string(KindClick), a.Locate, nil)
	if err != nil {
		return err
	}
	res.Target, res.Resolution, res.target = el.target.String(), el.via, &el.target

	m.to(StateExecuting)
	if err := e.page.ScrollIntoView(ctx, el.target); err != nil {
		return err
	}
	if err := e.pacer.Hesitate(ctx); err != nil {
		return err
	}
	return e.page.Click(ctx, el.target)
}

func (e *Executor) scroll(ctx context.Context, m *machine, a Scroll, res *Result) error {
	if a.Locate.Empty() {
		m.to(StateExecuting)
		return e.page.ScrollBy(ctx, 0, a.Amount)
	}
	el, err := e.resolve(ctx, m, string(KindScroll), a.Locate, nil)
	if err != nil {
		return err
	}
	res.Target, res.Resolution = el.target.String(), el.via
	m.to(StateExecuting)
	return e.page.ScrollIntoView(ctx, el.target)
}

func (e *Executor) extract(ctx context.Context, m *machine, a Extract, res *Result) error {
	el, err := e.resolve(ctx, m, string(KindExtract), a.Locate, nil)
	if err != nil {
		return err
	}
	res.Target, res.Resolution = el.target.String(), el.via
	m.to(StateExecuting)

	var out string
	switch a.Mode {
	case ExtractValue:
		v, err := e.page.ReadValue(ctx, el.target)
		if err != nil {
			return err
		}
		out = classifier.Reveal(el.field, v)
	default:
		doc, err := e.page.Document(ctx)
		if err != nil {
			return err
		}
		sub, n, err := browser.Resolve(doc, el.target)
		if err != nil {
			return err
		}
		if out, err = readNode(sub, n, a.Mode); err != nil {
			return err
		}
	}
	data, err := wire.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode extracted data: %w", err)
	}
	res.Data = data
	return nil
}

// readNode renders the text or markup of n. Values of sensitive controls never leave the page.
func readNode(doc *dom.Document, n *html.Node, mode ExtractMode) (string, error) {
	sel := goquery.NewDocumentFromNode(n).Selection
	if mode == ExtractText {
		return strings.Join(strings.Fields(sel.Text()), " "), nil
	}
	root := doc.TreeRoot(n)
	sel.Find("input, textarea").AddSelection(sel.Filter("input, textarea")).Each(func(_ int, s *goquery.Selection) {
		if classifier.IsSensitive(scanner.Describe(doc, root, s.Get(0), nil)) {
			s.RemoveAttr("value")
			s.Empty()
		}
	})
	return goquery.OuterHtml(sel)
}

func (e *Executor) script(ctx context.Context, m *machine, a RunScript, res *Result) error {
	if !e.cfg.AllowScripts {
		return ErrScriptsDisabled
	}
	m.to(StateExecuting)
	out, err := e.page.RunScript(ctx, a.Code)
	if err != nil {
		return err
	}
	res.Data = out
	return nil
}
