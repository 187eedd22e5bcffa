// internal/recovery/probe.go
package recovery

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ProbeScroll pages the viewport down to surface lazily rendered targets. When every probe
// misses it tries once more from the top, and on failure restores the original offset. On
// success the viewport stays at the element.
type ProbeScroll struct{ env Env }

func NewProbeScroll(env Env) *ProbeScroll { return &ProbeScroll{env: env} }

func (p *ProbeScroll) Name() string  { return "probe_scroll" }
func (p *ProbeScroll) Priority() int { return 500 }

func (p *ProbeScroll) Attempt(ctx context.Context, rc Context) (Result, error) {
	if !IsInteraction(rc.Intent) {
		return Result{}, nil
	}
	cfg := p.env.Config.withDefaults()
	query := queryTokens(rc)
	if len(query) == 0 {
		return Result{}, nil
	}
	info, err := p.env.Page.Info(ctx)
	if err != nil {
		return Result{}, err
	}
	origin := info.Scroll
	step := info.Viewport.Height * cfg.ProbeFraction
	if step <= 0 {
		return Result{}, fmt.Errorf("viewport has no height")
	}

	lastY := origin.Y
	for probe := 1; probe <= cfg.MaxProbes; probe++ {
		if err := ctx.Err(); err != nil {
			p.restore(ctx, origin.X, origin.Y)
			return Result{}, err
		}
		if err := p.env.Page.ScrollBy(ctx, 0, step); err != nil {
			return Result{}, err
		}
		if res, ok, err := p.try(ctx, rc, query, cfg, probe); err != nil || ok {
			return res, err
		}
		cur, err := p.env.Page.Info(ctx)
		if err != nil {
			return Result{}, err
		}
		if cur.Scroll.Y == lastY {
			// Bottom of the page.
			break
		}
		lastY = cur.Scroll.Y
	}

	if err := p.env.Page.ScrollTo(ctx, origin.X, 0); err != nil {
		return Result{}, err
	}
	if res, ok, err := p.try(ctx, rc, query, cfg, 0); err != nil || ok {
		return res, err
	}
	p.restore(ctx, origin.X, origin.Y)
	return Result{Info: map[string]interface{}{"probes": cfg.MaxProbes}}, nil
}

func (p *ProbeScroll) try(ctx context.Context, rc Context, query []string, cfg Config, probe int) (Result, bool, error) {
	snap, err := freshScan(ctx, p.env)
	if err != nil {
		return Result{}, false, err
	}
	f, s, ok := bestMatch(snap, rc, query, cfg)
	if !ok {
		return Result{}, false, nil
	}
	el := elementOf(f)
	if err := p.env.Page.ScrollIntoView(ctx, el.Target); err != nil {
		return Result{}, false, err
	}
	return found(el, map[string]interface{}{"probe": probe, "score": s}), true, nil
}

// restore puts the viewport back even when the request context is already done.
func (p *ProbeScroll) restore(ctx context.Context, x, y float64) {
	if err := p.env.Page.ScrollTo(context.WithoutCancel(ctx), x, y); err != nil {
		p.env.logger().Warn("Failed to restore scroll position.", zap.Float64("x", x), zap.Float64("y", y), zap.Error(err))
	}
}
