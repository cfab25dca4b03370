// Package artifactsum provides a function that combines package artifacts
// with context values: it adds val1.json, subdir/val2.json and the val3
// extra value element-wise and returns the sum as y.
package artifactsum

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// ClassName is the pyfunc class name this module registers.
const ClassName = "fnnx.builtin.ArtifactSum"

// Module implements the pyfunc.Module interface for this package.
type Module struct{}

// Func holds the summed operands once warmed up.
type Func struct {
	val1, val2, val3 []float64
}

// Warmup reads both artifact files and the val3 value.
func (f *Func) Warmup(ctx context.Context, c *pyfunc.Context) error {
	var err error
	if f.val1, err = readNumbers(c, "val1.json"); err != nil {
		return err
	}
	if f.val2, err = readNumbers(c, "subdir/val2.json"); err != nil {
		return err
	}
	v, err := c.GetValue("val3")
	if err != nil {
		return err
	}
	if f.val3, err = numbers(v); err != nil {
		return fmt.Errorf("val3: %w", err)
	}
	if len(f.val1) != len(f.val2) || len(f.val1) != len(f.val3) {
		return fmt.Errorf("operand lengths differ: %d, %d, %d", len(f.val1), len(f.val2), len(f.val3))
	}
	return nil
}

// Compute returns y = val1 + val2 + val3. Inputs are ignored.
func (f *Func) Compute(ctx context.Context, inputs value.Map, attrs value.Map) (value.Map, error) {
	sum := make([]value.Value, len(f.val1))
	for i := range f.val1 {
		v, err := value.Float(f.val1[i] + f.val2[i] + f.val3[i])
		if err != nil {
			return nil, fmt.Errorf("y[%d]: %w", i, err)
		}
		sum[i] = v
	}
	return value.Map{"y": value.List(sum...)}, nil
}

// ComputeAsync runs Compute on its own goroutine.
func (f *Func) ComputeAsync(ctx context.Context, inputs value.Map, attrs value.Map) *pyfunc.Future {
	return pyfunc.Async(ctx, func(ctx context.Context) (value.Map, error) {
		return f.Compute(ctx, inputs, attrs)
	})
}

// Register registers the function with the plugin registry.
func (m *Module) Register(r *pyfunc.Registry) {
	r.Register(ClassName, func() any { return &Func{} })
}

func readNumbers(c *pyfunc.Context, rel string) ([]float64, error) {
	buf, err := c.ReadFile(rel)
	if err != nil {
		return nil, err
	}
	var out []float64
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	return out, nil
}

func numbers(v value.Value) ([]float64, error) {
	items, ok := v.AsList()
	if !ok {
		return nil, fmt.Errorf("expected a list, got %s", v)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := item.AsFloat()
		if !ok {
			return nil, fmt.Errorf("element %d is not a number: %s", i, item)
		}
		out[i] = f
	}
	return out, nil
}
