package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// Op executes one op instance of an externally implemented kind, such as
// ONNX_v1. Inputs and outputs are positional.
type Op interface {
	Warmup(ctx context.Context) error
	Compute(ctx context.Context, inputs []value.Value, attrs value.Map) ([]value.Value, error)
}

// OpFactory creates the Op of one instance. artifactsDir is the instance's
// ops_artifacts directory; it may not exist.
type OpFactory func(inst *ops.OpInstance, artifactsDir string) (Op, error)

// Implementations maps op kinds to factories. The pipeline and pyfunc kinds
// are executed by the session itself and cannot be registered.
type Implementations struct {
	factories map[ops.Kind]OpFactory
}

// NewImplementations creates an empty set of implementations.
func NewImplementations() *Implementations {
	return &Implementations{factories: make(map[ops.Kind]OpFactory)}
}

// Register adds the factory of a kind. Registering a kind twice, or a
// built-in kind, panics.
func (i *Implementations) Register(kind ops.Kind, f OpFactory) {
	if kind == ops.KindPipeline || kind == ops.KindPyFunc {
		panic(fmt.Sprintf("op kind '%s' is built in", kind))
	}
	if _, exists := i.factories[kind]; exists {
		panic(fmt.Sprintf("op implementation for '%s' already registered", kind))
	}
	i.factories[kind] = f
}

// Kinds returns the kinds with a registered implementation, sorted.
func (i *Implementations) Kinds() []ops.Kind {
	out := make([]ops.Kind, 0, len(i.factories))
	for k := range i.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func (i *Implementations) lookup(kind ops.Kind) (OpFactory, bool) {
	if i == nil {
		return nil, false
	}
	f, ok := i.factories[kind]
	return f, ok
}

// onceOp guards an external Op so its Warmup runs a single time, however the
// session reaches it.
type onceOp struct {
	Op
	once sync.Once
	err  error
}

func (o *onceOp) Warmup(ctx context.Context) error {
	o.once.Do(func() { o.err = o.Op.Warmup(ctx) })
	return o.err
}

func (o *onceOp) Compute(ctx context.Context, inputs []value.Value, attrs value.Map) ([]value.Value, error) {
	if err := o.Warmup(ctx); err != nil {
		return nil, err
	}
	return o.Op.Compute(ctx, inputs, attrs)
}
