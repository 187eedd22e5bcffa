// internal/executor/action.go
package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/locus/internal/classifier"
)

// ErrUnknownAction is returned when a descriptor names no known action kind.
var ErrUnknownAction = errors.New("unknown action type")

// Kind names an action variant.
type Kind string

const (
	KindClick     Kind = "click"
	KindFill      Kind = "fill"
	KindScroll    Kind = "scroll"
	KindWait      Kind = "wait"
	KindExtract   Kind = "extract"
	KindRunScript Kind = "runScript"
)

// Descriptor is the wire form of an action.
type Descriptor struct {
	Type      string            `json:"type" yaml:"type"`
	Selector  string            `json:"selector,omitempty" yaml:"selector,omitempty"`
	Selectors []string          `json:"selectors,omitempty" yaml:"selectors,omitempty"`
	Scope     []string          `json:"scope,omitempty" yaml:"scope,omitempty"`
	Target    string            `json:"target,omitempty" yaml:"target,omitempty"`
	Hints     map[string]string `json:"hints,omitempty" yaml:"hints,omitempty"`
	Value     *string           `json:"value,omitempty" yaml:"value,omitempty"`
	Semantic  string            `json:"semantic,omitempty" yaml:"semantic,omitempty"`
	Amount    float64           `json:"amount,omitempty" yaml:"amount,omitempty"`
	Direction string            `json:"direction,omitempty" yaml:"direction,omitempty"`
	Ms        int               `json:"ms,omitempty" yaml:"ms,omitempty"`
	Mode      string            `json:"mode,omitempty" yaml:"mode,omitempty"`
	Code      string            `json:"code,omitempty" yaml:"code,omitempty"`
}

// Action is the closed set of executable actions. Only the types in this file implement it.
type Action interface {
	Kind() Kind
	action()
}

// Locate describes how to find the element an action works on.
type Locate struct {
	Selectors []string          `json:"selectors,omitempty"`
	Scope     []string          `json:"scope,omitempty"`
	Target    string            `json:"target,omitempty"`
	Hints     map[string]string `json:"hints,omitempty"`
}

// Empty reports whether nothing identifies an element.
func (l Locate) Empty() bool {
	return len(l.Selectors) == 0 && l.Target == "" && len(l.Hints) == 0
}

// Describe is the human form of the target used in logs, results and recovery.
func (l Locate) Describe() string {
	if l.Target != "" {
		return l.Target
	}
	if len(l.Selectors) > 0 {
		return l.Selectors[0]
	}
	for _, k := range []string{"label", "text", "name", "id", "placeholder"} {
		if v := l.Hints[k]; v != "" {
			return v
		}
	}
	return ""
}

type Click struct{ Locate }

// Fill writes Value into a field. Without a value the field is filled from the profile by
// semantic type.
type Fill struct {
	Locate
	Value    string
	HasValue bool
	Semantic classifier.SemanticType
}

// Scroll brings the located element into view, or moves the viewport by Amount pixels (negative
// is up) when nothing is located.
type Scroll struct {
	Locate
	Amount float64
}

type Wait struct{ Duration time.Duration }

// ExtractMode selects what Extract reads.
type ExtractMode string

const (
	ExtractText   ExtractMode = "text"
	ExtractValue  ExtractMode = "value"
	ExtractMarkup ExtractMode = "html"
)

type Extract struct {
	Locate
	Mode ExtractMode
}

type RunScript struct{ Code string }

func (Click) Kind() Kind     { return KindClick }
func (Fill) Kind() Kind      { return KindFill }
func (Scroll) Kind() Kind    { return KindScroll }
func (Wait) Kind() Kind      { return KindWait }
func (Extract) Kind() Kind   { return KindExtract }
func (RunScript) Kind() Kind { return KindRunScript }

func (Click) action()     {}
func (Fill) action()      {}
func (Scroll) action()    {}
func (Wait) action()      {}
func (Extract) action()   {}
func (RunScript) action() {}

// Decode turns a descriptor into its action variant.
func Decode(d Descriptor) (Action, error) {
	loc := Locate{Scope: d.Scope, Target: strings.TrimSpace(d.Target), Hints: d.Hints}
	if s := strings.TrimSpace(d.Selector); s != "" {
		loc.Selectors = append(loc.Selectors, s)
	}
	for _, s := range d.Selectors {
		if s = strings.TrimSpace(s); s != "" {
			loc.Selectors = append(loc.Selectors, s)
		}
	}

	switch Kind(normalizeType(d.Type)) {
	case KindClick:
		if loc.Empty() {
			return nil, fmt.Errorf("click needs a selector, target or hints")
		}
		return Click{Locate: loc}, nil
	case KindFill:
		if loc.Empty() {
			return nil, fmt.Errorf("fill needs a selector, target or hints")
		}
		f := Fill{Locate: loc, Semantic: classifier.SemanticType(d.Semantic)}
		if d.Value != nil {
			f.Value, f.HasValue = *d.Value, true
		}
		return f, nil
	case KindScroll:
		amount := d.Amount
		if strings.EqualFold(d.Direction, "up") && amount > 0 {
			amount = -amount
		}
		if loc.Empty() && amount == 0 {
			return nil, fmt.Errorf("scroll needs a target or a non-zero amount")
		}
		return Scroll{Locate: loc, Amount: amount}, nil
	case KindWait:
		if d.Ms < 0 {
			return nil, fmt.Errorf("wait duration must not be negative, got %dms", d.Ms)
		}
		return Wait{Duration: time.Duration(d.Ms) * time.Millisecond}, nil
	case KindExtract:
		if loc.Empty() {
			return nil, fmt.Errorf("extract needs a selector, target or hints")
		}
		mode := ExtractMode(strings.ToLower(d.Mode))
		switch mode {
		case "":
			mode = ExtractText
		case ExtractText, ExtractValue, ExtractMarkup:
		default:
			return nil, fmt.Errorf("unknown extract mode %q", d.Mode)
		}
		return Extract{Locate: loc, Mode: mode}, nil
	case KindRunScript:
		return RunScript{Code: d.Code}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, d.Type)
}

// DecodeAll decodes a batch, failing on the first bad descriptor.
func DecodeAll(ds []Descriptor) ([]Action, error) {
	out := make([]Action, 0, len(ds))
	for i, d := range ds {
		a, err := Decode(d)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func normalizeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "type", "fill", "input", "set":
		return string(KindFill)
	case "runscript", "run-script", "run_script", "script":
		return string(KindRunScript)
	case "read", "extract", "get":
		return string(KindExtract)
	}
	return strings.ToLower(strings.TrimSpace(t))
}
