// Package manifest assembles a package's op instances, metadata and
// environment descriptors into an immutable Manifest.
//
// A Manifest only comes out of Builder.Build, which runs the cross-reference
// integrity pass: meta ids and environment names are unique, header inputs
// and outputs are unique, every pipeline (the root and every nested one)
// validates, and no pipeline reaches itself through pipeline op instances.
// Execution plans are computed during that pass, so nothing is validated
// again at run time.
package manifest

import (
	"sort"

	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/pipeline"
)

// Manifest is a validated package description. It is safe for concurrent
// readers; nothing reachable from it is modified after Build.
type Manifest struct {
	header Header
	root   ops.Attributes
	ops    *Registry
	meta   []MetaEntry
	envs   map[string]EnvDescriptor

	rootPlan *pipeline.Plan
	plans    map[string]*pipeline.Plan
}

// Header returns a copy of the package header.
func (m *Manifest) Header() Header { return m.header.clone() }

// Variant returns the root variant kind.
func (m *Manifest) Variant() ops.Kind { return m.header.Variant }

// Root returns the root variant configuration: a *pipeline.Variant or a
// *pyfunc.Variant.
func (m *Manifest) Root() ops.Attributes { return m.root }

// Resolve returns the op instance registered under id.
func (m *Manifest) Resolve(id string) (*ops.OpInstance, error) { return m.ops.Resolve(id) }

// ListByKind returns the op instances of one kind in declaration order.
func (m *Manifest) ListByKind(kind ops.Kind) []*ops.OpInstance { return m.ops.ListByKind(kind) }

// OpIDs returns every op instance id in declaration order.
func (m *Manifest) OpIDs() []string { return m.ops.IDs() }

// Meta returns a copy of the meta entries in declaration order.
func (m *Manifest) Meta() []MetaEntry {
	out := make([]MetaEntry, len(m.meta))
	for i, e := range m.meta {
		out[i] = e.clone()
	}
	return out
}

// Env returns the environment descriptor with the given name.
func (m *Manifest) Env(name string) (EnvDescriptor, bool) {
	e, ok := m.envs[name]
	return e, ok
}

// Envs returns every environment descriptor sorted by name.
func (m *Manifest) Envs() []EnvDescriptor {
	names := make([]string, 0, len(m.envs))
	for n := range m.envs {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]EnvDescriptor, len(names))
	for i, n := range names {
		out[i] = m.envs[n]
	}
	return out
}

// RootPlan returns the execution plan of a pipeline package, or nil for a
// pyfunc package.
func (m *Manifest) RootPlan() *pipeline.Plan { return m.rootPlan }

// Plan returns the execution plan of a nested pipeline op instance.
func (m *Manifest) Plan(id string) (*pipeline.Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, fnnxerr.New(fnnxerr.ErrUnknownReference, id, "no pipeline op instance with this id")
	}
	return p, nil
}
