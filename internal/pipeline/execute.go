package pipeline

import (
	"context"
	"sync"

	"github.com/specialistvlad/fnnxgo/internal/ctxlog"
	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/value"
	"golang.org/x/sync/errgroup"
)

// RunFunc executes the op instance behind one step. inputs are positional,
// in the order of the node's input names, and the result must hold one value
// per output name.
type RunFunc func(ctx context.Context, step Step, inputs []value.Value, attrs value.Map) ([]value.Value, error)

// Overlay returns the dynamic attributes a node sees: base with the node's
// extra_dynattrs layered on top. base is never modified.
func Overlay(base value.Map, extra map[string]string) value.Map {
	if len(extra) == 0 {
		return base.Clone()
	}
	top := make(value.Map, len(extra))
	for k, v := range extra {
		top[k] = value.String(v)
	}
	return base.Overlay(top)
}

// Execute runs the plan sequentially. It returns the final name table: the
// inputs plus every produced name. Cancellation is observed between steps.
func Execute(ctx context.Context, plan *Plan, inputs value.Map, attrs value.Map, run RunFunc) (value.Map, error) {
	logger := ctxlog.FromContext(ctx)
	state := inputs.Clone()

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		args, err := gather(state, step)
		if err != nil {
			return nil, err
		}
		logger.Debug("Running pipeline node.", "node", step.Label)
		outs, err := run(ctx, step, args, Overlay(attrs, step.Node.ExtraDynAttrs))
		if err != nil {
			return nil, err
		}
		if err := scatter(state, step, outs); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// ExecuteParallel runs steps as soon as their producers finish, with at most
// maxWorkers steps in flight (no bound when maxWorkers <= 0). The first
// failure cancels the steps that have not started yet.
func ExecuteParallel(ctx context.Context, plan *Plan, inputs value.Map, attrs value.Map, run RunFunc, maxWorkers int) (value.Map, error) {
	logger := ctxlog.FromContext(ctx)

	var mu sync.Mutex
	state := inputs.Clone()

	done := make(map[int]chan struct{}, len(plan.Steps))
	for _, s := range plan.Steps {
		done[s.Index] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	if maxWorkers > 0 {
		g.SetLimit(maxWorkers)
	}

	// Steps are started in plan order, so every producer a step waits on was
	// started before it and the worker limit cannot deadlock.
	for _, step := range plan.Steps {
		g.Go(func() error {
			for _, in := range step.Node.Inputs {
				from, ok := plan.Producer(in)
				if !ok {
					continue
				}
				select {
				case <-done[from]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if err := gctx.Err(); err != nil {
				return err
			}

			mu.Lock()
			args, err := gather(state, step)
			mu.Unlock()
			if err != nil {
				return err
			}

			logger.Debug("Running pipeline node.", "node", step.Label)
			outs, err := run(gctx, step, args, Overlay(attrs, step.Node.ExtraDynAttrs))
			if err != nil {
				return err
			}

			mu.Lock()
			err = scatter(state, step, outs)
			mu.Unlock()
			if err != nil {
				return err
			}
			close(done[step.Index])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return state, nil
}

func gather(state value.Map, step Step) ([]value.Value, error) {
	args := make([]value.Value, len(step.Node.Inputs))
	for i, name := range step.Node.Inputs {
		v, ok := state[name]
		if !ok {
			return nil, fnnxerr.New(fnnxerr.ErrValidation, step.Label, "input %q has no value", name)
		}
		args[i] = v
	}
	return args, nil
}

func scatter(state value.Map, step Step, outs []value.Value) error {
	if len(outs) != len(step.Node.Outputs) {
		return fnnxerr.New(fnnxerr.ErrValidation, step.Label,
			"returned %d value(s) for %d output(s)", len(outs), len(step.Node.Outputs))
	}
	for i, name := range step.Node.Outputs {
		state[name] = outs[i]
	}
	return nil
}
