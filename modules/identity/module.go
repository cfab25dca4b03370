package identity

import (
	"context"

	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// ClassName is the pyfunc class name this module registers.
const ClassName = "fnnx.builtin.Identity"

// Module implements the pyfunc.Module interface for this package.
type Module struct{}

// Func returns its inputs unchanged.
type Func struct{}

// Warmup has nothing to prepare.
func (Func) Warmup(ctx context.Context, c *pyfunc.Context) error { return nil }

// Compute returns a copy of inputs.
func (Func) Compute(ctx context.Context, inputs value.Map, attrs value.Map) (value.Map, error) {
	return inputs.Clone(), nil
}

// ComputeAsync is Compute, already resolved.
func (f Func) ComputeAsync(ctx context.Context, inputs value.Map, attrs value.Map) *pyfunc.Future {
	return pyfunc.Resolved(f.Compute(ctx, inputs, attrs))
}

// Reentrant reports that Func keeps no state between calls.
func (Func) Reentrant() bool { return true }

// Register registers the function with the plugin registry.
func (m *Module) Register(r *pyfunc.Registry) {
	r.Register(ClassName, func() any { return Func{} })
}
