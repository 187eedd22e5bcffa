// internal/executor/fill.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/classifier"
	"github.com/xkilldash9x/locus/internal/scanner"
)

// Write strategies, in the order they are tried.
const (
	WriteToggle = "toggle"
	WriteAssign = "assign"
	WriteKeys   = "keys"
	WriteNative = "native"
)

func (e *Executor) fillAction(ctx context.Context, m *machine, a Fill, res *Result) error {
	el, err := e.resolve(ctx, m, string(KindFill), a.Locate, nil)
	if err != nil {
		return err
	}
	res.Target, res.Resolution = el.target.String(), el.via

	value := a.Value
	if !a.HasValue {
		v, skip, err := e.profileValue(ctx, el.field, a.Semantic)
		if err != nil {
			return err
		}
		if skip {
			m.to(StateExecuting)
			res.Skipped = true
			return nil
		}
		value = v
	}

	m.to(StateExecuting)
	before, _ := e.page.ReadValue(ctx, el.target)
	strategy, err := e.write(ctx, el, value)
	if err != nil {
		return err
	}
	res.WriteStrategy = strategy
	res.Value = classifier.Reveal(el.field, value)
	res.target = &el.target

	msg, err := e.validate(ctx, el)
	if err != nil || msg == "" {
		return err
	}
	// A validation failure usually means the value landed in the wrong field. Recovery gets one
	// chance to find a better one.
	e.logger.Info("Fill failed validation, retrying resolution.", zap.String("target", res.Target), zap.String("validation", msg))
	again, err := e.resolve(ctx, m, string(KindFill), a.Locate, &retry{
		failed:          []string{el.target.Selector},
		validationError: msg,
	})
	m.to(StateExecuting)
	if err != nil || again.target.String() == el.target.String() {
		res.Validation = msg
		return nil
	}
	// The value moves, so the rejected field gets its previous value back.
	if err := e.restore(ctx, el, before); err != nil {
		e.logger.Warn("Failed to restore rejected field.", zap.String("target", res.Target), zap.Error(err))
	}
	strategy, err = e.write(ctx, again, value)
	if err != nil {
		res.Validation = msg
		return nil
	}
	res.Target, res.Resolution, res.WriteStrategy = again.target.String(), again.via, strategy
	res.Value = classifier.Reveal(again.field, value)
	res.target = &again.target
	if msg, _ := e.validate(ctx, again); msg != "" {
		res.Validation = msg
	}
	return nil
}

// restore puts a field back to a value read before it was written.
func (e *Executor) restore(ctx context.Context, el resolved, before string) error {
	if isToggleField(el.field) {
		return e.page.SetChecked(ctx, el.target, before == "true")
	}
	return e.page.SetValue(ctx, el.target, before)
}

// profileValue picks the profile value for a field. It refuses sensitive fields outright and
// reports skip for fields that already hold a value.
func (e *Executor) profileValue(ctx context.Context, f scanner.FieldDescriptor, semantic classifier.SemanticType) (string, bool, error) {
	t := semantic
	if t == "" {
		t = e.classify.Classify(f)
	}
	if classifier.IsSensitive(f) || classifier.IsSensitiveType(t) {
		return "", false, ErrSensitiveField
	}
	if e.values == nil {
		return "", false, ErrNoValue
	}
	current, err := e.page.ReadValue(ctx, f.Target())
	if err == nil && strings.TrimSpace(current) != "" && !isToggleField(f) {
		return "", true, nil
	}
	v, ok := e.values.ValueFor(ctx, t)
	if !ok {
		return "", false, fmt.Errorf("%w: no profile value for %s", ErrNoValue, t)
	}
	return v, false, nil
}

// write applies value through the strategy ladder, verifying each step by reading the field back.
func (e *Executor) write(ctx context.Context, el resolved, value string) (string, error) {
	t := el.target
	if isToggleField(el.field) {
		want := truthy(value)
		if err := e.page.SetChecked(ctx, t, want); err != nil {
			return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		got, err := e.page.ReadValue(ctx, t)
		if err != nil {
			return "", err
		}
		if got != strconv.FormatBool(want) {
			return "", fmt.Errorf("%w: %s", ErrNoEffect, t)
		}
		return WriteToggle, nil
	}

	before, _ := e.page.ReadValue(ctx, t)
	isSelect := el.field.Tag == "select"
	ladder := []struct {
		name string
		fn   func() error
	}{
		{WriteAssign, func() error { return e.page.SetValue(ctx, t, value) }},
		{WriteKeys, func() error { return e.page.TypeKeys(ctx, t, value, e.pacer.KeyDelay()) }},
		{WriteNative, func() error { return e.page.SetValueNative(ctx, t, value) }},
	}
	var errs []error
	for _, step := range ladder {
		if isSelect && step.name == WriteKeys {
			continue
		}
		if err := step.fn(); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		got, err := e.page.ReadValue(ctx, t)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		if stuck(got, before, value, isSelect) {
			e.logger.Debug("Value written.", zap.String("target", t.String()), zap.String("strategy", step.name))
			return step.name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", step.name, ErrNoEffect))
	}
	return "", fmt.Errorf("%w for %s: %w", ErrWriteFailed, t, errors.Join(errs...))
}

// stuck reports whether a write took. A select may report the option value for a label, so any
// non-empty change counts there.
func stuck(got, before, want string, isSelect bool) bool {
	if got == want {
		return true
	}
	return isSelect && got != "" && got != before
}

var inputPatterns = struct {
	email *regexp.Regexp
}{
	email: regexp.MustCompile(`^[^@\s]+@[^@\s]+$`),
}

// validate checks the written field the way a browser would flag it. It returns "" when valid.
func (e *Executor) validate(ctx context.Context, el resolved) (string, error) {
	doc, err := e.page.Document(ctx)
	if err != nil {
		return "", err
	}
	sub, n, err := browser.Resolve(doc, el.target)
	if err != nil {
		return "", nil
	}
	if isToggleField(el.field) {
		return "", nil
	}
	v := sub.Value(n)
	switch {
	case strings.EqualFold(dom.Attr(n, "aria-invalid"), "true"):
		return "field reports aria-invalid", nil
	case dom.HasAttr(n, "required") && strings.TrimSpace(v) == "":
		return "required field is empty", nil
	case v == "":
		return "", nil
	case el.field.InputType == "email" && !inputPatterns.email.MatchString(v):
		return "value is not a valid email address", nil
	}
	if p := dom.Attr(n, "pattern"); p != "" {
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err == nil && !re.MatchString(v) {
			return "value does not match the field pattern", nil
		}
	}
	return "", nil
}

func isToggleField(f scanner.FieldDescriptor) bool {
	return f.Tag == "input" && (f.InputType == "checkbox" || f.InputType == "radio")
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "no", "off", "unchecked":
		return false
	}
	return true
}

// Autofill fills every visible, empty, non-sensitive field of the current graph from the profile.
func (e *Executor) Autofill(ctx context.Context) BatchResult {
	e.run.Lock()
	defer e.run.Unlock()

	out := BatchResult{}
	if _, err := e.Refresh(ctx); err != nil {
		out.Results = append(out.Results, Result{Action: KindFill, Error: err.Error(), err: err})
		return out
	}
	for _, entry := range e.Graph().Entries() {
		f := entry.Field
		if !f.Visible || f.Disabled || f.ReadOnly || classifier.IsSensitive(f) || classifier.IsSensitiveType(entry.Type) || entry.Type == classifier.Unknown {
			continue
		}
		if e.values == nil {
			break
		}
		if _, ok := e.values.ValueFor(ctx, entry.Type); !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}
		out.TotalSteps++
		t := f.Target()
		res := e.execute(ctx, Fill{Locate: Locate{Selectors: []string{t.Selector}, Scope: t.Scope}, Semantic: entry.Type})
		out.Results = append(out.Results, res)
		out.ExecutedSteps++
	}
	out.Success = allSucceeded(out.Results)
	return out
}
