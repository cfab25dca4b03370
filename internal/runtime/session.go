// Package runtime executes loaded packages.
//
// A Session binds every op instance of a package to something that can run
// it: built-in execution for pipeline and pyfunc instances, and an
// externally supplied Op for any other kind (ONNX_v1 in particular). Binding
// happens eagerly when the session starts, so a package referencing a kind
// without an implementation fails before any compute call. Pyfunc classes
// are resolved lazily, on first use.
package runtime

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/specialistvlad/fnnxgo/internal/ctxlog"
	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/loader"
	"github.com/specialistvlad/fnnxgo/internal/manifest"
	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/pipeline"
	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// Options controls pipeline execution.
type Options struct {
	// ParallelNodes runs pipeline nodes whose inputs are ready concurrently.
	ParallelNodes bool
	// MaxWorkers bounds concurrent nodes when ParallelNodes is set; zero means
	// no bound.
	MaxWorkers int
}

// Session runs one package.
type Session struct {
	id   string
	pkg  *loader.Package
	m    *manifest.Manifest
	opts Options

	external map[string]*onceOp
	pyfuncs  map[string]*pyfunc.Instance
	root     *pyfunc.Instance

	// mu is held shared by every running call and exclusively by Close, so
	// Close waits for in-flight calls before releasing ops.
	mu     sync.RWMutex
	closed atomic.Bool
}

// NewSession binds every op instance of pkg. impls supplies the kinds the
// session does not execute itself; plugins resolves pyfunc class names.
func NewSession(ctx context.Context, pkg *loader.Package, impls *Implementations, plugins *pyfunc.Registry, opts Options) (*Session, error) {
	s := &Session{
		id:       uuid.NewString(),
		pkg:      pkg,
		m:        pkg.Manifest,
		opts:     opts,
		external: make(map[string]*onceOp),
		pyfuncs:  make(map[string]*pyfunc.Instance),
	}
	logger := ctxlog.FromContext(ctx).With("session_id", s.id)

	for _, id := range s.m.OpIDs() {
		inst, err := s.m.Resolve(id)
		if err != nil {
			return nil, err
		}
		switch attrs := inst.Attributes.(type) {
		case *pipeline.Variant:
			// Executed through the manifest's precomputed plan.
		case *pyfunc.Variant:
			sandbox, err := pyfunc.NewContext(pkg.PyFuncScope(id), attrs.ExtraValues)
			if err != nil {
				return nil, err
			}
			s.pyfuncs[id] = pyfunc.NewInstance(id, attrs, plugins, sandbox)
		default:
			factory, ok := impls.lookup(inst.Op)
			if !ok {
				return nil, fnnxerr.New(fnnxerr.ErrUnsupportedVariant, id, "no implementation for op kind '%s'", inst.Op)
			}
			op, err := factory(inst, pkg.OpArtifactsDir(id))
			if err != nil {
				return nil, fmt.Errorf("creating op %q: %w", id, err)
			}
			s.external[id] = &onceOp{Op: op}
		}
	}

	if v, ok := s.m.Root().(*pyfunc.Variant); ok {
		sandbox, err := pyfunc.NewContext(pkg.PyFuncScope(""), v.ExtraValues)
		if err != nil {
			return nil, err
		}
		s.root = pyfunc.NewInstance("variant", v, plugins, sandbox)
	}

	logger.Info("Session started.", "variant", s.m.Variant(), "op_instances", len(s.m.OpIDs()), "parallel_nodes", opts.ParallelNodes)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Manifest returns the manifest the session runs.
func (s *Session) Manifest() *manifest.Manifest { return s.m }

func (s *Session) context(ctx context.Context) context.Context {
	return ctxlog.With(ctx, "session_id", s.id)
}

// Warmup warms every op of the package. Each op is warmed at most once per
// session, whether here or on first use.
func (s *Session) Warmup(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	ctx = s.context(ctx)
	for _, id := range s.m.OpIDs() {
		if op, ok := s.external[id]; ok {
			if err := op.Warmup(ctx); err != nil {
				return fmt.Errorf("warming up %q: %w", id, err)
			}
		}
		if inst, ok := s.pyfuncs[id]; ok {
			if err := inst.Warmup(ctx); err != nil {
				return err
			}
		}
	}
	if s.root != nil {
		if err := s.root.Warmup(ctx); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Info("Session warmed up.")
	return nil
}

// Compute runs the package on inputs with the given dynamic attributes and
// returns its outputs. When the package declares outputs, only those are
// returned.
func (s *Session) Compute(ctx context.Context, inputs value.Map, dynattrs value.Map) (value.Map, error) {
	ctx, err := s.begin(ctx, inputs)
	if err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	var out value.Map
	if s.root != nil {
		out, err = s.root.Compute(ctx, inputs, dynattrs)
	} else {
		out, err = s.runPlan(ctx, s.m.RootPlan(), inputs, dynattrs)
	}
	if err != nil {
		return nil, err
	}
	return s.declaredOutputs(out)
}

// ComputeAsync is the asynchronous form of Compute. Its future yields what
// Compute would return.
func (s *Session) ComputeAsync(ctx context.Context, inputs value.Map, dynattrs value.Map) *pyfunc.Future {
	ctx, err := s.begin(ctx, inputs)
	if err != nil {
		return pyfunc.Resolved(nil, err)
	}
	return pyfunc.Async(ctx, func(ctx context.Context) (value.Map, error) {
		defer s.mu.RUnlock()
		var (
			out value.Map
			err error
		)
		if s.root != nil {
			out, err = s.root.ComputeAsync(ctx, inputs, dynattrs).Wait(ctx)
		} else {
			out, err = s.runPlan(ctx, s.m.RootPlan(), inputs, dynattrs)
		}
		if err != nil {
			return nil, err
		}
		return s.declaredOutputs(out)
	})
}

// Close ends the session. Calls already running are allowed to finish
// first; later calls fail with ErrNotReady. Ops implementing io.Closer are
// closed.
func (s *Session) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	logger := ctxlog.FromContext(s.context(ctx))
	for id, op := range s.external {
		if c, ok := op.Op.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("Failed to close op.", "op_instance_id", id, "error", err)
			}
		}
	}
	s.pyfuncs, s.root, s.external = nil, nil, nil
	logger.Info("Session closed.")
	return nil
}

// acquire takes the shared lock for one call. On success the caller
// releases it with s.mu.RUnlock.
func (s *Session) acquire() error {
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return fnnxerr.New(fnnxerr.ErrNotReady, s.id, "session is closed")
	}
	return nil
}

// begin acquires the session for one compute call and checks its inputs. On
// success the caller releases the session with s.mu.RUnlock.
func (s *Session) begin(ctx context.Context, inputs value.Map) (context.Context, error) {
	if err := s.acquire(); err != nil {
		return ctx, err
	}
	if err := s.checkInputs(inputs); err != nil {
		s.mu.RUnlock()
		return ctx, err
	}
	return s.context(ctx), nil
}

func (s *Session) checkInputs(inputs value.Map) error {
	h := s.m.Header()
	declared := make(map[string]struct{}, len(h.Inputs))
	for _, in := range h.Inputs {
		declared[in.Name] = struct{}{}
		if _, ok := inputs[in.Name]; !ok {
			return fnnxerr.New(fnnxerr.ErrValidation, in.Name, "missing input")
		}
	}
	for _, name := range inputs.Keys() {
		if _, ok := declared[name]; !ok {
			return fnnxerr.New(fnnxerr.ErrValidation, name, "unknown input")
		}
	}
	return nil
}

func (s *Session) declaredOutputs(out value.Map) (value.Map, error) {
	names := s.m.Header().OutputNames()
	if len(names) == 0 {
		return out, nil
	}
	filtered := make(value.Map, len(names))
	for _, name := range names {
		v, ok := out[name]
		if !ok {
			return nil, fnnxerr.New(fnnxerr.ErrValidation, name, "declared output was not produced")
		}
		filtered[name] = v
	}
	return filtered, nil
}

func (s *Session) runPlan(ctx context.Context, plan *pipeline.Plan, inputs value.Map, attrs value.Map) (value.Map, error) {
	if s.opts.ParallelNodes {
		return pipeline.ExecuteParallel(ctx, plan, inputs, attrs, s.runStep, s.opts.MaxWorkers)
	}
	return pipeline.Execute(ctx, plan, inputs, attrs, s.runStep)
}

// runStep executes the op instance behind one pipeline node. The op sees
// the node's attribute overlay with its declared dynamic attribute bindings
// applied on top.
func (s *Session) runStep(ctx context.Context, step pipeline.Step, in []value.Value, attrs value.Map) ([]value.Value, error) {
	id := step.Node.OpInstanceID
	inst, err := s.m.Resolve(id)
	if err != nil {
		return nil, err
	}
	opAttrs := attrs.Overlay(inst.ExtractDynamic(attrs))

	if op, ok := s.external[id]; ok {
		return op.Compute(ctx, in, opAttrs)
	}
	if p, ok := s.pyfuncs[id]; ok {
		return runPyFunc(ctx, p, step, in, opAttrs)
	}
	if inst.Op == ops.KindPipeline {
		return s.runNested(ctx, id, in, opAttrs)
	}
	return nil, fnnxerr.New(fnnxerr.ErrUnsupportedVariant, id, "op kind '%s' cannot be executed", inst.Op)
}

// runPyFunc calls a pyfunc with its inputs keyed by the node's input names
// and reads its outputs by the node's output names. A function returning a
// single entry for a single-output node has that entry bound to the output.
func runPyFunc(ctx context.Context, p *pyfunc.Instance, step pipeline.Step, in []value.Value, attrs value.Map) ([]value.Value, error) {
	named := make(value.Map, len(in))
	for i, name := range step.Node.Inputs {
		named[name] = in[i]
	}
	out, err := p.Compute(ctx, named, attrs)
	if err != nil {
		return nil, err
	}

	names := step.Node.Outputs
	res := make([]value.Value, len(names))
	for i, name := range names {
		v, ok := out[name]
		if !ok {
			if len(names) == 1 && len(out) == 1 {
				for _, only := range out {
					v = only
				}
				res[i] = v
				continue
			}
			return nil, fnnxerr.New(fnnxerr.ErrValidation, step.Label, "pyfunc returned no %q (got %v)", name, out.Keys())
		}
		res[i] = v
	}
	return res, nil
}

// runNested runs a pipeline op instance. The node's inputs bind positionally
// to the nested pipeline's declared inputs, and its declared outputs bind
// positionally to the node's outputs.
func (s *Session) runNested(ctx context.Context, id string, in []value.Value, attrs value.Map) ([]value.Value, error) {
	plan, err := s.m.Plan(id)
	if err != nil {
		return nil, err
	}
	named := make(value.Map, len(in))
	for i, name := range plan.External {
		if i < len(in) {
			named[name] = in[i]
		}
	}
	state, err := s.runPlan(ctxlog.With(ctx, "pipeline", id), plan, named, attrs)
	if err != nil {
		return nil, err
	}
	res := make([]value.Value, len(plan.Outputs))
	for i, name := range plan.Outputs {
		res[i] = state[name]
	}
	return res, nil
}
