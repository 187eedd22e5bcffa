// internal/recovery/types.go
package recovery

import (
	"context"
	"time"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/scanner"
)

// Hint keys understood by the built-in strategies.
const (
	HintID           = "id"
	HintName         = "name"
	HintLabel        = "label"
	HintPlaceholder  = "placeholder"
	HintAriaLabel    = "aria-label"
	HintTestID       = "testid"
	HintAutocomplete = "autocomplete"
	HintText         = "text"
	HintType         = "type"
)

// Context describes one resolution attempt. It is built once and passed by value, so strategies
// cannot affect each other through it.
type Context struct {
	Intent         string            `json:"intent"`
	Target         string            `json:"target"`
	FailedLocators []string          `json:"failedLocators,omitempty"`
	Hints          map[string]string `json:"hints,omitempty"`
	// WaitBudget caps how long waiting strategies may block. Zero uses their configured default.
	WaitBudget      time.Duration `json:"waitBudget,omitempty"`
	ValidationError string        `json:"validationError,omitempty"`
}

// Failed reports whether a selector is already known not to work.
func (c Context) Failed(sel string) bool {
	for _, f := range c.FailedLocators {
		if f == sel {
			return true
		}
	}
	return false
}

// Hint returns a hint value or "".
func (c Context) Hint(key string) string {
	if c.Hints == nil {
		return ""
	}
	return c.Hints[key]
}

// Element is a resolved element: a target valid against the live page at resolution time plus
// the scanned description of what it pointed at.
type Element struct {
	Target browser.Target          `json:"target"`
	Field  scanner.FieldDescriptor `json:"field"`
}

// Result is the outcome of a strategy or of the whole ensemble.
type Result struct {
	Success  bool                   `json:"success"`
	Element  *Element               `json:"element,omitempty"`
	Strategy string                 `json:"strategy,omitempty"`
	Info     map[string]interface{} `json:"info,omitempty"`
	Duration time.Duration          `json:"duration"`
}

func found(el Element, info map[string]interface{}) Result {
	return Result{Success: true, Element: &el, Info: info}
}

// Strategy is one independent way of turning a failed locator into a working element.
type Strategy interface {
	Name() string
	// Priority orders strategies; higher runs first.
	Priority() int
	Attempt(ctx context.Context, rc Context) (Result, error)
}

// Learner is implemented by strategies that remember the outcome of successful recoveries,
// regardless of which strategy produced them.
type Learner interface {
	Learn(rc Context, res Result)
}
