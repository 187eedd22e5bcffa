// internal/command/run.go
package command

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/locus/internal/executor"
)

// ErrNothingToCopy is returned when the source of a copy step holds no readable value.
var ErrNothingToCopy = errors.New("copy source has no value")

// Runner executes single actions.
type Runner interface {
	Execute(ctx context.Context, a executor.Action) executor.Result
}

// Run executes the steps in order and stops at the first failure. Pass an executor.Held to keep
// the whole command under one hold of the executor.
func (c Command) Run(ctx context.Context, r Runner) executor.BatchResult {
	out := executor.BatchResult{TotalSteps: len(c.Steps)}
	for _, step := range c.Steps {
		if ctx.Err() != nil {
			break
		}
		res := runStep(ctx, r, step)
		out.Results = append(out.Results, res)
		out.ExecutedSteps++
		if !res.Success {
			break
		}
	}
	out.Success = out.ExecutedSteps == out.TotalSteps
	for _, res := range out.Results {
		out.Success = out.Success && res.Success
	}
	return out
}

func runStep(ctx context.Context, r Runner, step Step) executor.Result {
	d := step.Action
	if step.From != nil {
		src, err := executor.Decode(*step.From)
		if err != nil {
			return executor.Failure(executor.KindExtract, err)
		}
		read := r.Execute(ctx, src)
		if !read.Success {
			return read
		}
		var v string
		if err := jsoniter.Unmarshal(read.Data, &v); err != nil {
			return executor.Failure(executor.KindExtract, fmt.Errorf("failed to decode copied value: %w", err))
		}
		if v == "" {
			return executor.Failure(executor.KindFill, fmt.Errorf("%w: %s", ErrNothingToCopy, read.Target))
		}
		d.Value = &v
	}
	a, err := executor.Decode(d)
	if err != nil {
		return executor.Failure(executor.Kind(d.Type), err)
	}
	return r.Execute(ctx, a)
}
