package pyfunc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/fnnxgo/internal/ctxlog"
	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// State is the lifecycle state of an Instance.
type State int32

const (
	Unloaded State = iota
	WarmedUp
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case WarmedUp:
		return "warmed_up"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Instance is one executable pyfunc. It resolves and warms its function
// lazily, exactly once, on first use.
type Instance struct {
	id       string
	variant  *Variant
	registry *Registry
	sandbox  *Context

	once  sync.Once
	state atomic.Int32
	err   error

	fn        Func
	reentrant bool
	calls     sync.Mutex
}

// NewInstance creates an unloaded instance. id names it in logs and errors.
func NewInstance(id string, v *Variant, r *Registry, sandbox *Context) *Instance {
	return &Instance{id: id, variant: v, registry: r, sandbox: sandbox}
}

// ID returns the instance name.
func (i *Instance) ID() string { return i.id }

// State returns the current lifecycle state.
func (i *Instance) State() State { return State(i.state.Load()) }

// Warmup resolves the function and runs its warm-up. Concurrent and repeated
// calls share a single attempt. After a failed attempt every call fails with
// ErrInstanceFailed wrapping the original cause.
func (i *Instance) Warmup(ctx context.Context) error {
	i.once.Do(func() {
		i.err = i.load(ctx)
		if i.err != nil {
			i.state.Store(int32(Failed))
			return
		}
		i.state.Store(int32(WarmedUp))
		i.state.Store(int32(Ready))
	})
	if i.err != nil {
		return fnnxerr.Wrap(fnnxerr.ErrInstanceFailed, i.id, i.err)
	}
	return nil
}

func (i *Instance) load(ctx context.Context) (err error) {
	logger := ctxlog.FromContext(ctx).With("op_instance_id", i.id, "classname", i.variant.ClassName)
	logger.Debug("Resolving pyfunc class.")

	fn, err := i.registry.Resolve(i.variant.ClassName)
	if err != nil {
		logger.Warn("Pyfunc class resolution failed.", "error", err)
		return err
	}
	if r, ok := fn.(Reentrant); ok {
		i.reentrant = r.Reentrant()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("warmup panicked: %v", p)
			logger.Warn("Pyfunc warmup panicked.", "panic", p)
		}
	}()
	if err := fn.Warmup(ctx, i.sandbox); err != nil {
		logger.Warn("Pyfunc warmup failed.", "error", err)
		return err
	}
	i.fn = fn
	logger.Debug("Pyfunc instance ready.", "reentrant", i.reentrant)
	return nil
}

// attrs is the dynamic attribute view passed to the function: the static
// extra values with the caller's attributes on top.
func (i *Instance) attrs(caller value.Map) value.Map {
	return i.variant.ExtraValues.Overlay(caller)
}

func (i *Instance) lock() func() {
	if i.reentrant {
		return func() {}
	}
	i.calls.Lock()
	return i.calls.Unlock
}

// Compute runs the function synchronously, warming it first if needed.
// Errors from the function are returned as is.
func (i *Instance) Compute(ctx context.Context, inputs value.Map, attrs value.Map) (value.Map, error) {
	if err := i.Warmup(ctx); err != nil {
		return nil, err
	}
	unlock := i.lock()
	defer unlock()
	return i.fn.Compute(ctx, inputs, i.attrs(attrs))
}

// ComputeAsync runs the function's asynchronous form. The future yields the
// same outputs Compute would.
func (i *Instance) ComputeAsync(ctx context.Context, inputs value.Map, attrs value.Map) *Future {
	return Async(ctx, func(ctx context.Context) (value.Map, error) {
		if err := i.Warmup(ctx); err != nil {
			return nil, err
		}
		unlock := i.lock()
		f := i.fn.ComputeAsync(ctx, inputs, i.attrs(attrs))
		if f == nil {
			unlock()
			return nil, fnnxerr.New(fnnxerr.ErrValidation, i.id, "ComputeAsync returned no future")
		}
		select {
		case <-f.Done():
			unlock()
			return f.out, f.err
		case <-ctx.Done():
			// The function keeps the instance until its own future completes.
			go func() {
				<-f.Done()
				unlock()
			}()
			return nil, ctx.Err()
		}
	})
}
