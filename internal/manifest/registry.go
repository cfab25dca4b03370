package manifest

import (
	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/pipeline"
	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
)

// Registry holds the op instances of one package, keyed by id, in
// registration order.
type Registry struct {
	byID  map[string]*ops.OpInstance
	order []string
}

// NewRegistry creates an empty op instance registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*ops.OpInstance)}
}

// Register adds an instance. Its id must not be registered yet.
func (r *Registry) Register(inst *ops.OpInstance) error {
	if _, exists := r.byID[inst.ID]; exists {
		return fnnxerr.New(fnnxerr.ErrDuplicateID, inst.ID, "op instance already registered")
	}
	r.byID[inst.ID] = inst
	r.order = append(r.order, inst.ID)
	return nil
}

// Resolve returns the instance registered under id.
func (r *Registry) Resolve(id string) (*ops.OpInstance, error) {
	inst, ok := r.byID[id]
	if !ok {
		return nil, fnnxerr.New(fnnxerr.ErrUnknownReference, id, "no op instance with this id")
	}
	return inst, nil
}

// ListByKind returns the instances of one kind in registration order.
func (r *Registry) ListByKind(kind ops.Kind) []*ops.OpInstance {
	var out []*ops.OpInstance
	for _, id := range r.order {
		if inst := r.byID[id]; inst.Op == kind {
			out = append(out, inst)
		}
	}
	return out
}

// IDs returns every id in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered instances.
func (r *Registry) Len() int { return len(r.order) }

// DefaultKinds returns a kind registry with every built-in kind.
func DefaultKinds() *ops.Kinds {
	k := ops.NewKinds()
	k.Register(ops.KindONNXv1, ops.DecodeONNX)
	k.Register(ops.KindPipeline, pipeline.Decode)
	k.Register(ops.KindPyFunc, pyfunc.Decode)
	return k
}
