// internal/recovery/heuristic.go
package recovery

import "context"

// Heuristic scores every eligible element by token overlap with the target description.
type Heuristic struct{ env Env }

func NewHeuristic(env Env) *Heuristic { return &Heuristic{env: env} }

func (h *Heuristic) Name() string  { return "heuristic" }
func (h *Heuristic) Priority() int { return 700 }

func (h *Heuristic) Attempt(ctx context.Context, rc Context) (Result, error) {
	snap, err := freshScan(ctx, h.env)
	if err != nil {
		return Result{}, err
	}
	cfg := h.env.Config.withDefaults()
	query := queryTokens(rc)
	f, s, ok := bestMatch(snap, rc, query, cfg)
	if !ok {
		return Result{Info: map[string]interface{}{"bestScore": s}}, nil
	}
	return found(elementOf(f), map[string]interface{}{"score": s, "tokens": query}), nil
}
