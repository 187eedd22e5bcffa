// internal/recovery/validation.go
package recovery

import (
	"context"
	"strings"
)

// ValidationRetry runs only after a fill failed post-hoc validation. It truncates the description
// to its first two words and runs the token match once more, excluding the element that failed.
type ValidationRetry struct{ env Env }

func NewValidationRetry(env Env) *ValidationRetry { return &ValidationRetry{env: env} }

func (v *ValidationRetry) Name() string  { return "validation_retry" }
func (v *ValidationRetry) Priority() int { return 100 }

func (v *ValidationRetry) Attempt(ctx context.Context, rc Context) (Result, error) {
	if rc.ValidationError == "" {
		return Result{}, nil
	}
	text := describedText(rc)
	if text == "" {
		text = strings.Join(Tokenize(rc.Target), " ")
	}
	words := strings.Fields(text)
	if len(words) > 2 {
		words = words[:2]
	}
	relaxed := strings.Join(words, " ")
	query := Tokenize(relaxed)

	snap, err := freshScan(ctx, v.env)
	if err != nil {
		return Result{}, err
	}
	f, s, ok := bestMatch(snap, rc, query, v.env.Config.withDefaults())
	if !ok {
		return Result{Info: map[string]interface{}{"relaxed": relaxed, "bestScore": s}}, nil
	}
	return found(elementOf(f), map[string]interface{}{"relaxed": relaxed, "score": s}), nil
}
