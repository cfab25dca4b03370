package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/pipeline"
	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipelineHeader() Header {
	return Header{
		Variant:      ops.KindPipeline,
		ProducerName: "tests",
		Inputs:       []IODecl{{Name: "x", ContentType: ContentNDJSON, DType: "Array[float32]", Shape: []ops.Dim{{Name: "batch"}, {Size: 4}}}},
		Outputs:      []IODecl{{Name: "y", ContentType: ContentJSON, DType: "ext::y"}},
	}
}

func onnxNode(t *testing.T) *ops.OpInstance {
	t.Helper()
	attrs, err := ops.DecodeONNX(json.RawMessage(`{"opsets":[{"domain":"","version":17}],"requires_ort_extensions":false,"has_external_data":false,"onnx_ir_version":8}`))
	require.NoError(t, err)
	return &ops.OpInstance{ID: "onnx_node", Op: ops.KindONNXv1, Attributes: attrs}
}

func postNode() *ops.OpInstance {
	return &ops.OpInstance{ID: "post_node", Op: ops.KindPyFunc, Attributes: &pyfunc.Variant{ClassName: "pkg.Post"}}
}

func twoNodePipeline() *pipeline.Variant {
	return &pipeline.Variant{Nodes: []pipeline.Node{
		{OpInstanceID: "onnx_node", Inputs: []string{"x"}, Outputs: []string{"logits"}},
		{OpInstanceID: "post_node", Inputs: []string{"logits"}, Outputs: []string{"y"}},
	}}
}

func scenarioBuilder(t *testing.T) *Builder {
	t.Helper()
	b := NewBuilder().SetHeader(pipelineHeader()).SetRoot(twoNodePipeline())
	require.NoError(t, b.AddOp(onnxNode(t)))
	require.NoError(t, b.AddOp(postNode()))
	return b
}

func TestBuild_OnnxPlusPostProcessing(t *testing.T) {
	b := scenarioBuilder(t)
	b.AddMeta(MetaEntry{ID: "m1", Producer: "tests", Payload: value.Map{"k": value.Int(1)}})
	b.AddEnv(EnvDescriptor{Name: EnvPythonCondaPip, Body: value.MustNative(map[string]any{"python_version": "3.11"})})

	m, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"onnx_node", "post_node"}, m.RootPlan().Order())
	assert.Equal(t, []string{"onnx_node", "post_node"}, m.OpIDs())
	assert.Len(t, m.ListByKind(ops.KindONNXv1), 1)
	assert.Len(t, m.ListByKind(ops.KindPyFunc), 1)
	assert.Empty(t, m.ListByKind(ops.KindPipeline))

	inst, err := m.Resolve("onnx_node")
	require.NoError(t, err)
	assert.Equal(t, int64(8), inst.Attributes.(*ops.ONNXAttributes).IRVersion)

	_, ok := m.Env(EnvPythonCondaPip)
	assert.True(t, ok)
	require.Len(t, m.Meta(), 1)
}

func TestBuild_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(t *testing.T, b *Builder)
		kind   error
	}{
		{
			name: "duplicate meta ids",
			mutate: func(t *testing.T, b *Builder) {
				b.AddMeta(MetaEntry{ID: "m1"}, MetaEntry{ID: "m1"})
			},
			kind: fnnxerr.ErrDuplicateID,
		},
		{
			name: "duplicate env names",
			mutate: func(t *testing.T, b *Builder) {
				b.AddEnv(EnvDescriptor{Name: "python3::conda_pip"}, EnvDescriptor{Name: "python3::conda_pip"})
			},
			kind: fnnxerr.ErrDuplicateID,
		},
		{
			name: "duplicate header input",
			mutate: func(t *testing.T, b *Builder) {
				h := pipelineHeader()
				h.Inputs = append(h.Inputs, h.Inputs[0])
				b.SetHeader(h)
			},
			kind: fnnxerr.ErrDuplicateID,
		},
		{
			name: "bad content type",
			mutate: func(t *testing.T, b *Builder) {
				h := pipelineHeader()
				h.Outputs[0].ContentType = "CSV"
				b.SetHeader(h)
			},
			kind: fnnxerr.ErrValidation,
		},
		{
			name: "unknown package variant",
			mutate: func(t *testing.T, b *Builder) {
				h := pipelineHeader()
				h.Variant = "graphdef"
				b.SetHeader(h)
			},
			kind: fnnxerr.ErrUnsupportedVariant,
		},
		{
			name: "root config of the wrong kind",
			mutate: func(t *testing.T, b *Builder) {
				b.SetRoot(&pyfunc.Variant{ClassName: "pkg.Model"})
			},
			kind: fnnxerr.ErrValidation,
		},
		{
			name: "root input not declared in the header",
			mutate: func(t *testing.T, b *Builder) {
				v := twoNodePipeline()
				v.Inputs = []string{"x", "extra"}
				b.SetRoot(v)
			},
			kind: fnnxerr.ErrValidation,
		},
		{
			name: "node references a missing instance",
			mutate: func(t *testing.T, b *Builder) {
				v := twoNodePipeline()
				v.Nodes[1].OpInstanceID = "ghost"
				b.SetRoot(v)
			},
			kind: fnnxerr.ErrUnknownReference,
		},
		{
			name: "dangling root input",
			mutate: func(t *testing.T, b *Builder) {
				v := twoNodePipeline()
				v.Nodes[0].Inputs = []string{"not_declared"}
				b.SetRoot(v)
			},
			kind: fnnxerr.ErrDanglingInput,
		},
		{
			name: "nested pipeline with a dangling reference",
			mutate: func(t *testing.T, b *Builder) {
				require.NoError(t, b.AddOp(&ops.OpInstance{ID: "inner", Op: ops.KindPipeline, Attributes: &pipeline.Variant{
					Inputs: []string{"a"},
					Nodes:  []pipeline.Node{{OpInstanceID: "missing", Inputs: []string{"a"}, Outputs: []string{"b"}}},
				}}))
			},
			kind: fnnxerr.ErrUnknownReference,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := scenarioBuilder(t)
			tc.mutate(t, b)
			m, err := b.Build(context.Background())
			require.Error(t, err)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestAddOp_DuplicateID(t *testing.T) {
	b := scenarioBuilder(t)
	err := b.AddOp(postNode())
	assert.ErrorIs(t, err, fnnxerr.ErrDuplicateID)
}

func TestBuild_NestedPipelines(t *testing.T) {
	inner := func(id, ref string) *ops.OpInstance {
		return &ops.OpInstance{ID: id, Op: ops.KindPipeline, Attributes: &pipeline.Variant{
			Inputs:  []string{"a"},
			Outputs: []string{"b"},
			Nodes:   []pipeline.Node{{OpInstanceID: ref, Inputs: []string{"a"}, Outputs: []string{"b"}}},
		}}
	}

	t.Run("acyclic nesting gets its own plan", func(t *testing.T) {
		b := scenarioBuilder(t)
		require.NoError(t, b.AddOp(inner("wrap", "post_node")))
		m, err := b.Build(context.Background())
		require.NoError(t, err)
		plan, err := m.Plan("wrap")
		require.NoError(t, err)
		assert.Equal(t, []string{"post_node"}, plan.Order())

		_, err = m.Plan("post_node")
		assert.ErrorIs(t, err, fnnxerr.ErrUnknownReference)
	})

	t.Run("pipelines containing each other", func(t *testing.T) {
		b := scenarioBuilder(t)
		require.NoError(t, b.AddOp(inner("p1", "p2")))
		require.NoError(t, b.AddOp(inner("p2", "p1")))
		_, err := b.Build(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, fnnxerr.ErrCyclicPipeline)

		var fe *fnnxerr.Error
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, []string{"p1", "p2", "p1"}, fe.Nodes)
	})

	t.Run("pipeline containing itself", func(t *testing.T) {
		b := scenarioBuilder(t)
		require.NoError(t, b.AddOp(inner("self", "self")))
		_, err := b.Build(context.Background())
		assert.ErrorIs(t, err, fnnxerr.ErrCyclicPipeline)
	})
}

func TestManifest_AccessorsReturnCopies(t *testing.T) {
	b := scenarioBuilder(t)
	b.AddMeta(MetaEntry{ID: "m1", ProducerTags: []string{"a"}, Payload: value.Map{"k": value.Int(1)}})
	m, err := b.Build(context.Background())
	require.NoError(t, err)

	meta := m.Meta()
	meta[0].ProducerTags[0] = "changed"
	meta[0].Payload["k"] = value.Int(2)
	assert.Equal(t, "a", m.Meta()[0].ProducerTags[0])
	assert.True(t, m.Meta()[0].Payload["k"].Equal(value.Int(1)))

	h := m.Header()
	h.Inputs[0].Name = "changed"
	assert.Equal(t, []string{"x"}, m.Header().InputNames())

	// Registering through the builder after Build leaves the manifest alone.
	require.NoError(t, b.AddOp(&ops.OpInstance{ID: "late", Op: ops.KindPyFunc, Attributes: &pyfunc.Variant{ClassName: "x"}}))
	_, err = m.Resolve("late")
	assert.ErrorIs(t, err, fnnxerr.ErrUnknownReference)
}

func TestDecodeRoot(t *testing.T) {
	attrs, err := DecodeRoot(ops.KindPyFunc, json.RawMessage(`{"pyfunc_classname":"pkg.Model","extra_values":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, ops.KindPyFunc, attrs.Kind())

	_, err = DecodeRoot(ops.KindPipeline, json.RawMessage(`{"nodes":"x"}`))
	assert.ErrorIs(t, err, fnnxerr.ErrValidation)

	_, err = DecodeRoot(ops.KindONNXv1, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, fnnxerr.ErrUnsupportedVariant)
}

func TestDefaultKinds(t *testing.T) {
	assert.Equal(t, []ops.Kind{ops.KindONNXv1, ops.KindPipeline, ops.KindPyFunc}, DefaultKinds().Known())
}
