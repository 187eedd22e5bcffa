// internal/formstate/capture.go
package formstate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/classifier"
	"github.com/xkilldash9x/locus/internal/recovery"
	"github.com/xkilldash9x/locus/internal/scanner"
)

// Healer re-finds an element whose locator broke. *recovery.Ensemble implements it.
type Healer interface {
	AttemptRecovery(ctx context.Context, intent, target string, failed []string, rc recovery.Context) recovery.Result
}

// How a saved field was matched on restore.
const (
	MatchLiteral     = "literal"
	MatchHealer      = "healer"
	MatchExact       = "fingerprint"
	MatchPartial     = "partial_fingerprint"
	StatusRestored   = "restored"
	StatusOccupied   = "occupied"
	StatusNotFound   = "not_found"
	StatusWriteError = "write_failed"
)

// Outcome is what happened to one saved field.
type Outcome struct {
	Fingerprint string `json:"fingerprint"`
	Target      string `json:"target,omitempty"`
	Match       string `json:"match,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// Report summarises a restore.
type Report struct {
	URL      string    `json:"url"`
	Restored int       `json:"restored"`
	Outcomes []Outcome `json:"outcomes"`
}

// Manager captures and restores the form state of one page.
type Manager struct {
	page    browser.Page
	scanner *scanner.Scanner
	store   *Store
	healer  Healer
	logger  *zap.Logger

	// held records the URLs whose form state this manager saved or restored.
	mu   sync.Mutex
	held map[string]bool
}

// NewManager wires a manager. healer may be nil.
func NewManager(page browser.Page, sc *scanner.Scanner, st *Store, healer Healer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sc == nil {
		sc = scanner.New(scanner.DefaultConfig(), logger)
	}
	return &Manager{page: page, scanner: sc, store: st, healer: healer, logger: logger.Named("formstate"), held: make(map[string]bool)}
}

// Capture records every visible, enabled, non-sensitive field holding a value.
func (m *Manager) Capture(ctx context.Context) (Snapshot, error) {
	doc, err := m.page.Document(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read document: %w", err)
	}
	snap := m.scanner.Scan(doc)
	c := classifier.New()

	out := Snapshot{URL: NormalizeURL(snap.URL), Timestamp: snap.Timestamp}
	for _, f := range snap.Fields {
		if !f.Visible || f.Disabled || classifier.IsSensitive(f) || classifier.IsSensitiveType(c.Classify(f)) {
			continue
		}
		sub, n, err := browser.Resolve(doc, f.Target())
		if err != nil {
			continue
		}
		field := Field{Fingerprint: Fingerprint(f), Locator: f.Target()}
		if dom.IsToggle(n) {
			if !sub.Checked(n) {
				continue
			}
			checked := true
			field.Checked = &checked
		} else {
			field.Value = sub.Value(n)
			if strings.TrimSpace(field.Value) == "" {
				continue
			}
			if dom.Tag(n) == "select" && dom.DefaultValue(n) == field.Value {
				continue
			}
		}
		out.Fields = append(out.Fields, field)
	}
	return out, nil
}

// CaptureAndSave captures the page and persists the snapshot. An empty capture deletes the saved
// snapshot when this manager saved or restored one for the URL, so a cleared form stays cleared.
// Otherwise it is ignored, so an untouched page never wipes state that is yet to be restored.
func (m *Manager) CaptureAndSave(ctx context.Context) (Snapshot, error) {
	snap, err := m.Capture(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snap.Fields) == 0 {
		if !m.holds(snap.URL) {
			return snap, nil
		}
		m.logger.Debug("Form cleared, dropping saved state.", zap.String("url", snap.URL))
		if err := m.store.Delete(ctx, snap.URL); err != nil {
			return snap, err
		}
		m.release(snap.URL)
		return snap, nil
	}
	if err := m.store.Save(ctx, snap); err != nil {
		return snap, err
	}
	m.hold(snap.URL)
	return snap, nil
}

func (m *Manager) hold(url string) {
	m.mu.Lock()
	m.held[url] = true
	m.mu.Unlock()
}

func (m *Manager) release(url string) {
	m.mu.Lock()
	delete(m.held, url)
	m.mu.Unlock()
}

func (m *Manager) holds(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[url]
}

// RestoreSaved restores the snapshot stored for the current URL, if any.
func (m *Manager) RestoreSaved(ctx context.Context) (Report, bool, error) {
	info, err := m.page.Info(ctx)
	if err != nil {
		return Report{}, false, err
	}
	snap, ok, err := m.store.Load(ctx, info.URL)
	if err != nil || !ok {
		return Report{URL: NormalizeURL(info.URL)}, false, err
	}
	rep, err := m.Restore(ctx, snap)
	if err == nil {
		m.hold(NormalizeURL(info.URL))
	}
	return rep, true, err
}

// Restore writes saved values back into fields that are currently empty.
func (m *Manager) Restore(ctx context.Context, snap Snapshot) (Report, error) {
	doc, err := m.page.Document(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read document: %w", err)
	}
	live := m.scanner.Scan(doc)
	rep := Report{URL: snap.URL}
	claimed := make(map[string]bool)

	for _, saved := range snap.Fields {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		out := Outcome{Fingerprint: saved.Fingerprint, Status: StatusNotFound}
		t, how, ok := m.locate(ctx, doc, live, saved, claimed)
		if ok {
			claimed[t.String()] = true
			out.Target, out.Match = t.String(), how
			out.Status, err = m.write(ctx, doc, t, saved)
			if err != nil {
				out.Error = err.Error()
			}
			if out.Status == StatusRestored {
				rep.Restored++
			}
		}
		rep.Outcomes = append(rep.Outcomes, out)
	}
	m.logger.Info("Form state restored.", zap.String("url", snap.URL), zap.Int("restored", rep.Restored), zap.Int("saved", len(snap.Fields)))
	return rep, nil
}

// locate runs the restore ladder: literal locator, healer, exact fingerprint, partial fingerprint.
func (m *Manager) locate(ctx context.Context, doc *dom.Document, live *scanner.Snapshot, saved Field, claimed map[string]bool) (browser.Target, string, bool) {
	if _, n, err := browser.Resolve(doc, saved.Locator); err == nil && dom.IsFormControl(n) && !claimed[saved.Locator.String()] {
		return saved.Locator, MatchLiteral, true
	}

	if m.healer != nil {
		h := hints(saved.Fingerprint)
		desc := firstNonEmpty(h["label"], h["name"], h["id"], h["placeholder"])
		if desc != "" {
			res := m.healer.AttemptRecovery(ctx, "restore", desc, []string{saved.Locator.Selector}, recovery.Context{
				Hints:      h,
				WaitBudget: m.store.cfg.HealWaitBudget,
			})
			if res.Success && res.Element != nil && !claimed[res.Element.Target.String()] {
				return res.Element.Target, MatchHealer, true
			}
		}
	}

	want := Segments(saved.Fingerprint)
	for _, f := range live.Fields {
		if Fingerprint(f) == saved.Fingerprint && !claimed[f.Key()] {
			return f.Target(), MatchExact, true
		}
	}

	cfg := m.store.cfg
	best, bestScore := scanner.FieldDescriptor{}, 0
	for _, f := range live.Fields {
		if claimed[f.Key()] {
			continue
		}
		if s := overlap(want, Segments(Fingerprint(f))); s > bestScore {
			best, bestScore = f, s
		}
	}
	if bestScore >= cfg.MinPartialSegments && float64(bestScore) >= cfg.MinPartialRatio*float64(len(want)) {
		return best.Target(), MatchPartial, true
	}
	return browser.Target{}, "", false
}

func (m *Manager) write(ctx context.Context, doc *dom.Document, t browser.Target, saved Field) (string, error) {
	current, err := m.page.ReadValue(ctx, t)
	if err != nil {
		return StatusWriteError, err
	}
	if saved.Checked != nil {
		if current == "true" {
			return StatusOccupied, nil
		}
		if err := m.page.SetChecked(ctx, t, *saved.Checked); err != nil {
			return StatusWriteError, err
		}
		return StatusRestored, nil
	}
	if strings.TrimSpace(current) != "" && !untouchedSelect(doc, t, current) {
		return StatusOccupied, nil
	}
	if err := m.page.SetValue(ctx, t, saved.Value); err == nil {
		if got, _ := m.page.ReadValue(ctx, t); got == saved.Value {
			return StatusRestored, nil
		}
	}
	if err := m.page.SetValueNative(ctx, t, saved.Value); err != nil {
		return StatusWriteError, err
	}
	return StatusRestored, nil
}

// untouchedSelect treats a select still showing its default option as empty.
func untouchedSelect(doc *dom.Document, t browser.Target, current string) bool {
	_, n, err := browser.Resolve(doc, t)
	return err == nil && dom.Tag(n) == "select" && dom.DefaultValue(n) == current
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
