package pyfunc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// Func is the capability set a custom function provides.
type Func interface {
	// Warmup prepares the function. It is called once per instance before any
	// compute call.
	Warmup(ctx context.Context, c *Context) error
	Compute(ctx context.Context, inputs value.Map, attrs value.Map) (value.Map, error)
	// ComputeAsync must produce the same outputs as Compute for the same
	// arguments.
	ComputeAsync(ctx context.Context, inputs value.Map, attrs value.Map) *Future
}

// Reentrant is implemented by functions that may serve concurrent calls.
type Reentrant interface {
	Reentrant() bool
}

// Factory creates a fresh, unwarmed function value. It returns any so that a
// unit lacking part of the capability set is reported at resolution time
// rather than rejected by the compiler at registration.
type Factory func() any

// Registry maps class names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a class name. Registering the same class name
// twice is a programming error and panics.
func (r *Registry) Register(classname string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[classname]; exists {
		panic(fmt.Sprintf("pyfunc class '%s' already registered", classname))
	}
	r.factories[classname] = f
}

// Names returns the registered class names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type (
	warmer interface {
		Warmup(ctx context.Context, c *Context) error
	}
	computer interface {
		Compute(ctx context.Context, inputs value.Map, attrs value.Map) (value.Map, error)
	}
	asyncComputer interface {
		ComputeAsync(ctx context.Context, inputs value.Map, attrs value.Map) *Future
	}
)

// Resolve creates a new function for classname. It fails with
// ErrClassResolution when the name is unknown or the created value does not
// provide the full capability set.
func (r *Registry) Resolve(classname string) (Func, error) {
	r.mu.RLock()
	factory, ok := r.factories[classname]
	r.mu.RUnlock()
	if !ok {
		return nil, fnnxerr.New(fnnxerr.ErrClassResolution, classname, "class is not registered")
	}

	unit := factory()
	if unit == nil {
		return nil, fnnxerr.New(fnnxerr.ErrClassResolution, classname, "factory returned nil")
	}

	var missing []string
	if _, ok := unit.(warmer); !ok {
		missing = append(missing, "Warmup")
	}
	if _, ok := unit.(computer); !ok {
		missing = append(missing, "Compute")
	}
	if _, ok := unit.(asyncComputer); !ok {
		missing = append(missing, "ComputeAsync")
	}
	if len(missing) > 0 {
		return nil, fnnxerr.New(fnnxerr.ErrClassResolution, classname, "%T is missing %v", unit, missing)
	}
	return unit.(Func), nil
}

// Module is a unit of compiled-in functions.
type Module interface {
	Register(r *Registry)
}

// RegisterAll registers every module with r.
func RegisterAll(r *Registry, modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}
