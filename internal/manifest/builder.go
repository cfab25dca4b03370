package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/specialistvlad/fnnxgo/internal/ctxlog"
	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/pipeline"
	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
)

// rootLabel names the root pipeline in reference cycles.
const rootLabel = "<root>"

// Builder collects the parts of a package and produces a Manifest.
type Builder struct {
	header Header
	root   ops.Attributes
	ops    *Registry
	meta   []MetaEntry
	envs   []EnvDescriptor
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{ops: NewRegistry()}
}

// SetHeader sets the package header.
func (b *Builder) SetHeader(h Header) *Builder {
	b.header = h
	return b
}

// SetRoot sets the root variant configuration.
func (b *Builder) SetRoot(attrs ops.Attributes) *Builder {
	b.root = attrs
	return b
}

// AddOp registers an op instance. It fails immediately on a duplicate id.
func (b *Builder) AddOp(inst *ops.OpInstance) error {
	return b.ops.Register(inst)
}

// AddMeta appends a meta entry. Id collisions are reported by Build.
func (b *Builder) AddMeta(entries ...MetaEntry) *Builder {
	b.meta = append(b.meta, entries...)
	return b
}

// AddEnv appends an environment descriptor. Name collisions are reported by
// Build.
func (b *Builder) AddEnv(envs ...EnvDescriptor) *Builder {
	b.envs = append(b.envs, envs...)
	return b
}

// DecodeRoot decodes variant_config.json for the given root variant kind.
func DecodeRoot(kind ops.Kind, raw json.RawMessage) (ops.Attributes, error) {
	var (
		attrs ops.Attributes
		err   error
	)
	switch kind {
	case ops.KindPipeline:
		attrs, err = pipeline.Decode(raw)
	case ops.KindPyFunc:
		attrs, err = pyfunc.Decode(raw)
	default:
		return nil, fnnxerr.New(fnnxerr.ErrUnsupportedVariant, string(kind), "package variant must be %q or %q", ops.KindPipeline, ops.KindPyFunc)
	}
	if err != nil {
		return nil, fnnxerr.Validation("variant_config.json", err)
	}
	return attrs, nil
}

// Build runs the integrity pass and returns the Manifest. Any failure aborts
// the build; no partial Manifest is returned.
func (b *Builder) Build(ctx context.Context) (*Manifest, error) {
	logger := ctxlog.FromContext(ctx)

	if err := b.header.validate(); err != nil {
		return nil, err
	}
	if b.root == nil {
		return nil, fnnxerr.New(fnnxerr.ErrValidation, "variant_config.json", "root variant configuration is missing")
	}
	if b.root.Kind() != b.header.Variant {
		return nil, fnnxerr.New(fnnxerr.ErrValidation, "variant_config.json",
			"configuration is for %q but the manifest declares %q", b.root.Kind(), b.header.Variant)
	}

	m := &Manifest{
		header: b.header.clone(),
		root:   b.root,
		ops:    b.ops,
		envs:   make(map[string]EnvDescriptor, len(b.envs)),
		plans:  make(map[string]*pipeline.Plan),
	}

	seenMeta := make(map[string]struct{}, len(b.meta))
	for _, e := range b.meta {
		if e.ID == "" {
			return nil, fnnxerr.New(fnnxerr.ErrValidation, "meta.json", "meta entry without an id")
		}
		if _, ok := seenMeta[e.ID]; ok {
			return nil, fnnxerr.New(fnnxerr.ErrDuplicateID, e.ID, "meta entry id used more than once")
		}
		seenMeta[e.ID] = struct{}{}
		m.meta = append(m.meta, e.clone())
	}

	for _, e := range b.envs {
		if e.Name == "" {
			return nil, fnnxerr.New(fnnxerr.ErrValidation, "env.json", "environment without a name")
		}
		if _, ok := m.envs[e.Name]; ok {
			return nil, fnnxerr.New(fnnxerr.ErrDuplicateID, e.Name, "environment declared more than once")
		}
		m.envs[e.Name] = e
	}

	refs := make(map[string][]string)
	for _, inst := range b.ops.ListByKind(ops.KindPipeline) {
		v, ok := inst.Attributes.(*pipeline.Variant)
		if !ok {
			return nil, fnnxerr.New(fnnxerr.ErrValidation, inst.ID, "pipeline op instance carries %T attributes", inst.Attributes)
		}
		plan, err := pipeline.Validate(v, v.Inputs, b.ops)
		if err != nil {
			return nil, err
		}
		m.plans[inst.ID] = plan
		refs[inst.ID] = b.pipelineRefs(v)
		logger.Debug("Validated nested pipeline.", "op_instance_id", inst.ID, "order", plan.Order())
	}

	if v, ok := b.root.(*pipeline.Variant); ok {
		// The root pipeline is fed by the header inputs only, so a root input
		// list may repeat them but never add to them.
		external := b.header.InputNames()
		for _, name := range v.Inputs {
			if !slices.Contains(external, name) {
				return nil, fnnxerr.New(fnnxerr.ErrValidation, name, "root pipeline input is not declared in manifest.json")
			}
		}
		plan, err := pipeline.Validate(v, external, b.ops)
		if err != nil {
			return nil, err
		}
		m.rootPlan = plan
		refs[rootLabel] = b.pipelineRefs(v)
		logger.Debug("Validated root pipeline.", "order", plan.Order())
	}

	if err := checkNesting(refs, append([]string{rootLabel}, b.ops.IDs()...)); err != nil {
		return nil, err
	}

	// The builder must not be able to change the built Manifest.
	b.ops = NewRegistry()
	logger.Debug("Manifest built.", "op_instances", m.ops.Len(), "meta_entries", len(m.meta), "envs", len(m.envs))
	return m, nil
}

// pipelineRefs lists the pipeline op instances a pipeline's nodes reference.
func (b *Builder) pipelineRefs(v *pipeline.Variant) []string {
	var out []string
	for _, id := range v.References() {
		if inst, err := b.ops.Resolve(id); err == nil && inst.Op == ops.KindPipeline {
			out = append(out, id)
		}
	}
	return out
}

// checkNesting rejects pipelines that reach themselves through pipeline op
// instances. roots fixes the visiting order.
func checkNesting(refs map[string][]string, roots []string) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(refs))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			for i, s := range stack {
				if s == id {
					e := fnnxerr.New(fnnxerr.ErrCyclicPipeline, id, "pipeline contains itself")
					e.Nodes = append(append([]string(nil), stack[i:]...), id)
					return e
				}
			}
			return errors.New("unreachable: visiting node not on stack")
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, next := range refs[id] {
			if err := visit(next); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, id := range roots {
		if _, ok := refs[id]; !ok {
			continue
		}
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
