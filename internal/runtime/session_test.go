package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/loader"
	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/testutil"
	"github.com/specialistvlad/fnnxgo/internal/value"
	"github.com/specialistvlad/fnnxgo/modules/artifactsum"
	"github.com/specialistvlad/fnnxgo/modules/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// doubler stands in for an ONNX runtime: it doubles every number of its
// single input.
type doubler struct {
	warmups atomic.Int32
	mu      sync.Mutex
	attrs   []value.Map
	dir     string
	closed  bool
}

func (d *doubler) Warmup(ctx context.Context) error {
	d.warmups.Add(1)
	return nil
}

func (d *doubler) Compute(ctx context.Context, in []value.Value, attrs value.Map) ([]value.Value, error) {
	d.mu.Lock()
	d.attrs = append(d.attrs, attrs)
	d.mu.Unlock()

	items, ok := in[0].AsList()
	if !ok {
		return nil, errors.New("input is not a list")
	}
	out := make([]value.Value, len(items))
	for i, it := range items {
		f, _ := it.AsFloat()
		out[i] = value.Number(2 * f)
	}
	return []value.Value{value.List(out...)}, nil
}

func (d *doubler) Close() error {
	d.closed = true
	return nil
}

func onnxImpls(d *doubler) *Implementations {
	impls := NewImplementations()
	impls.Register(ops.KindONNXv1, func(inst *ops.OpInstance, artifactsDir string) (Op, error) {
		d.dir = artifactsDir
		return d, nil
	})
	return impls
}

func builtins() *pyfunc.Registry {
	r := pyfunc.NewRegistry()
	pyfunc.RegisterAll(r, &identity.Module{}, &artifactsum.Module{})
	return r
}

func openSession(t *testing.T, files map[string]string, impls *Implementations, plugins *pyfunc.Registry, opts Options) (context.Context, *Session) {
	t.Helper()
	ctx, _ := testutil.LogContext(t)
	pkg, err := loader.Open(ctx, testutil.WritePackage(t, files), loader.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pkg.Close() })

	s, err := NewSession(ctx, pkg, impls, plugins, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })
	return ctx, s
}

func TestSession_OnnxPlusPostProcessing(t *testing.T) {
	for _, opts := range []Options{{}, {ParallelNodes: true, MaxWorkers: 2}} {
		t.Run("parallel="+map[bool]string{true: "on", false: "off"}[opts.ParallelNodes], func(t *testing.T) {
			d := &doubler{}
			ctx, s := openSession(t, testutil.ScenarioPackage(), onnxImpls(d), builtins(), opts)

			require.NoError(t, s.Warmup(ctx))
			out, err := s.Compute(ctx, value.Map{"x": value.MustNative([]any{1, 2})}, value.Map{"threshold": value.String("0.9")})
			require.NoError(t, err)

			assert.Equal(t, []string{"y"}, out.Keys())
			assert.Equal(t, []any{2.0, 4.0}, out["y"].Native())
			assert.Equal(t, int32(1), d.warmups.Load(), "warmup must run once per session")
			assert.Contains(t, d.dir, "ops_artifacts")
			require.Len(t, d.attrs, 1)
			assert.Equal(t, "0.9", d.attrs[0]["threshold"].Native())
		})
	}
}

// recorder is registered under the identity class name to observe the
// attributes a pyfunc node receives.
type recorder struct {
	mu    sync.Mutex
	attrs value.Map
}

func (r *recorder) Warmup(ctx context.Context, c *pyfunc.Context) error { return nil }

func (r *recorder) Compute(ctx context.Context, in value.Map, attrs value.Map) (value.Map, error) {
	r.mu.Lock()
	r.attrs = attrs
	r.mu.Unlock()
	return in, nil
}

func (r *recorder) ComputeAsync(ctx context.Context, in value.Map, attrs value.Map) *pyfunc.Future {
	return pyfunc.Resolved(r.Compute(ctx, in, attrs))
}

func TestSession_DynamicAttributesReachPyFuncNodes(t *testing.T) {
	rec := &recorder{}
	plugins := pyfunc.NewRegistry()
	plugins.Register(identity.ClassName, func() any { return rec })

	testCases := []struct {
		name      string
		dynattrs  value.Map
		threshold string
	}{
		{name: "declared default", dynattrs: nil, threshold: "0.5"},
		{name: "caller value", dynattrs: value.Map{"threshold": value.String("0.7")}, threshold: "0.7"},
	}

	ctx, s := openSession(t, testutil.ScenarioPackage(), onnxImpls(&doubler{}), plugins, Options{})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Compute(ctx, value.Map{"x": value.MustNative([]any{1})}, tc.dynattrs)
			require.NoError(t, err)
			rec.mu.Lock()
			defer rec.mu.Unlock()
			assert.Equal(t, tc.threshold, rec.attrs["threshold"].Native())
			assert.Equal(t, "post", rec.attrs["stage"].Native())
		})
	}
}

func TestSession_RootPyFuncWithArtifacts(t *testing.T) {
	ctx, s := openSession(t, testutil.ArtifactSumPackage(), nil, builtins(), Options{})

	out, err := s.Compute(ctx, value.Map{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{111.0, 222.0, 333.0}, out["y"].Native())

	async, err := s.ComputeAsync(ctx, value.Map{}, nil).Wait(ctx)
	require.NoError(t, err)
	assert.True(t, out.Equal(async))
}

func TestSession_PipelineListedOutOfOrder(t *testing.T) {
	ctx, s := openSession(t, testutil.IdentityPipelinePackage(), nil, builtins(), Options{})

	assert.Equal(t, []string{"first", "second"}, s.Manifest().RootPlan().Order())
	out, err := s.ComputeAsync(ctx, value.Map{"x": value.String("hello")}, nil).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", out["y"].Native())
}

func TestSession_InputChecks(t *testing.T) {
	ctx, s := openSession(t, testutil.IdentityPipelinePackage(), nil, builtins(), Options{})

	testCases := []struct {
		name   string
		inputs value.Map
	}{
		{name: "missing input", inputs: value.Map{}},
		{name: "unknown input", inputs: value.Map{"x": value.Int(1), "z": value.Int(2)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Compute(ctx, tc.inputs, nil)
			assert.ErrorIs(t, err, fnnxerr.ErrValidation)

			_, err = s.ComputeAsync(ctx, tc.inputs, nil).Wait(ctx)
			assert.ErrorIs(t, err, fnnxerr.ErrValidation)
		})
	}
}

func TestNewSession_MissingImplementation(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	pkg, err := loader.Open(ctx, testutil.WritePackage(t, testutil.ScenarioPackage()), loader.Options{})
	require.NoError(t, err)
	defer pkg.Close()

	_, err = NewSession(ctx, pkg, NewImplementations(), builtins(), Options{})
	assert.ErrorIs(t, err, fnnxerr.ErrUnsupportedVariant)
}

func TestNewSession_OpaqueOpCannotRun(t *testing.T) {
	files := testutil.With(testutil.ScenarioPackage(), map[string]string{
		"ops.json": `[
  {"id": "onnx_node", "op": "TF_v9", "inputs": [], "outputs": [], "attributes": {"graph": "g"}},
  {"id": "post_node", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "fnnx.builtin.Identity"}}
]`,
	})
	ctx, _ := testutil.LogContext(t)
	pkg, err := loader.Open(ctx, testutil.WritePackage(t, files), loader.Options{AllowUnknownOps: true})
	require.NoError(t, err)
	defer pkg.Close()

	_, err = NewSession(ctx, pkg, onnxImpls(&doubler{}), builtins(), Options{})
	assert.ErrorIs(t, err, fnnxerr.ErrUnsupportedVariant)
}

func TestSession_UnknownClassFailsOnUse(t *testing.T) {
	ctx, s := openSession(t, testutil.IdentityPipelinePackage(), nil, pyfunc.NewRegistry(), Options{})

	_, err := s.Compute(ctx, value.Map{"x": value.Int(1)}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fnnxerr.ErrInstanceFailed)
	assert.ErrorIs(t, err, fnnxerr.ErrClassResolution)

	assert.ErrorIs(t, s.Warmup(ctx), fnnxerr.ErrInstanceFailed)
}

func TestSession_Close(t *testing.T) {
	d := &doubler{}
	ctx, s := openSession(t, testutil.ScenarioPackage(), onnxImpls(d), builtins(), Options{})

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	assert.True(t, d.closed)

	_, err := s.Compute(ctx, value.Map{"x": value.MustNative([]any{1})}, nil)
	assert.ErrorIs(t, err, fnnxerr.ErrNotReady)
	assert.ErrorIs(t, s.Warmup(ctx), fnnxerr.ErrNotReady)
}

func TestImplementations_Register(t *testing.T) {
	impls := NewImplementations()
	noop := func(*ops.OpInstance, string) (Op, error) { return &doubler{}, nil }
	impls.Register(ops.KindONNXv1, noop)
	assert.Equal(t, []ops.Kind{ops.KindONNXv1}, impls.Kinds())

	assert.Panics(t, func() { impls.Register(ops.KindONNXv1, noop) })
	assert.Panics(t, func() { impls.Register(ops.KindPyFunc, noop) })
	assert.Panics(t, func() { impls.Register(ops.KindPipeline, noop) })
}

func TestSession_ParallelTracksOverlap(t *testing.T) {
	sleepers := testutil.NewSleeperModule(100 * time.Millisecond)
	plugins := pyfunc.NewRegistry()
	pyfunc.RegisterAll(plugins, sleepers)

	ctx, s := openSession(t, testutil.TwoTrackPackage(), nil, plugins, Options{ParallelNodes: true})
	require.NoError(t, s.Warmup(ctx))

	out, err := s.Compute(ctx, value.Map{"x": value.String("go")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "go", out["y1"].Native())
	assert.Equal(t, "go", out["y2"].Native())

	records := sleepers.Records()
	require.Len(t, records, 4)
	track1A, track1B := records["1A"], records["1B"]
	track2A, track2B := records["2A"], records["2B"]

	assert.True(t, track2A.Start.Before(track1B.End), "independent tracks should run concurrently")
	assert.True(t, track1A.Start.Before(track2B.End), "independent tracks should run concurrently")
	assert.False(t, track1B.Start.Before(track1A.End), "1B must start after 1A finishes")
	assert.False(t, track2B.Start.Before(track2A.End), "2B must start after 2A finishes")
}

func TestSession_CloseWaitsForRunningCompute(t *testing.T) {
	sleepers := testutil.NewSleeperModule(50 * time.Millisecond)
	plugins := pyfunc.NewRegistry()
	pyfunc.RegisterAll(plugins, sleepers)
	ctx, s := openSession(t, testutil.TwoTrackPackage(), nil, plugins, Options{})

	type result struct {
		out value.Map
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.Compute(ctx, value.Map{"x": value.String("go")}, nil)
		done <- result{out, err}
	}()

	require.Eventually(t, func() bool { return sleepers.Started() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, s.Close(ctx))
	assert.Len(t, sleepers.Records(), 4, "Close must wait for the running compute")

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, "go", r.out["y2"].Native())
	case <-time.After(time.Second):
		t.Fatal("compute did not return")
	}

	_, err := s.Compute(ctx, value.Map{"x": value.String("go")}, nil)
	assert.ErrorIs(t, err, fnnxerr.ErrNotReady)
	assert.ErrorIs(t, s.Warmup(ctx), fnnxerr.ErrNotReady)
}

func TestSession_RootInputsRepeatingHeaderInputs(t *testing.T) {
	files := testutil.With(testutil.IdentityPipelinePackage(), map[string]string{"variant_config.json": `{"inputs": ["x"], "nodes": [
  {"op_instance_id": "second", "inputs": ["mid"], "outputs": ["y"], "extra_dynattrs": {}},
  {"op_instance_id": "first", "inputs": ["x"], "outputs": ["mid"], "extra_dynattrs": {}}
]}`})
	ctx, s := openSession(t, files, nil, builtins(), Options{})

	out, err := s.Compute(ctx, value.Map{"x": value.Int(3)}, nil)
	require.NoError(t, err)
	assert.True(t, out.Equal(value.Map{"y": value.Int(3)}))
}
