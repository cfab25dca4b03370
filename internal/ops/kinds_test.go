package ops

import (
	"encoding/json"
	"testing"

	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onnxKinds() *Kinds {
	k := NewKinds()
	k.Register(KindONNXv1, DecodeONNX)
	return k
}

func TestDecodeONNX(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expectErr bool
		check     func(t *testing.T, a *ONNXAttributes)
	}{
		{
			name: "valid attributes",
			raw:  `{"opsets":[{"domain":"","version":17}],"requires_ort_extensions":false,"has_external_data":true,"onnx_ir_version":8}`,
			check: func(t *testing.T, a *ONNXAttributes) {
				assert.Equal(t, int64(8), a.IRVersion)
				assert.Equal(t, []Opset{{Domain: "", Version: 17}}, a.Opsets)
				assert.True(t, a.HasExternalData)
				assert.False(t, a.RequiresORTExtensions)
			},
		},
		{
			name:      "error - missing ir version",
			raw:       `{"opsets":[],"requires_ort_extensions":false,"has_external_data":false}`,
			expectErr: true,
		},
		{
			name:      "error - unknown key",
			raw:       `{"opsets":[],"requires_ort_extensions":false,"has_external_data":false,"onnx_ir_version":8,"extra":1}`,
			expectErr: true,
		},
		{
			name:      "error - negative opset version",
			raw:       `{"opsets":[{"domain":"","version":-1}],"requires_ort_extensions":false,"has_external_data":false,"onnx_ir_version":8}`,
			expectErr: true,
		},
		{
			name:      "error - fractional opset version",
			raw:       `{"opsets":[{"domain":"","version":1.5}],"requires_ort_extensions":false,"has_external_data":false,"onnx_ir_version":8}`,
			expectErr: true,
		},
		{
			name:      "error - opset missing domain",
			raw:       `{"opsets":[{"version":1}],"requires_ort_extensions":false,"has_external_data":false,"onnx_ir_version":8}`,
			expectErr: true,
		},
		{
			name:      "error - wrong type",
			raw:       `{"opsets":[],"requires_ort_extensions":"yes","has_external_data":false,"onnx_ir_version":8}`,
			expectErr: true,
		},
		{
			name:      "error - null attributes",
			raw:       `null`,
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			attrs, err := DecodeONNX(json.RawMessage(tc.raw))
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			onnx, ok := attrs.(*ONNXAttributes)
			require.True(t, ok)
			tc.check(t, onnx)
		})
	}
}

func TestKindsDecode_DispatchesOnDiscriminator(t *testing.T) {
	k := onnxKinds()
	inst, err := k.Decode(Entry{
		ID:         "onnx_node",
		Op:         KindONNXv1,
		Attributes: json.RawMessage(`{"opsets":[{"domain":"","version":17}],"requires_ort_extensions":false,"has_external_data":false,"onnx_ir_version":8}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "onnx_node", inst.ID)
	assert.Equal(t, KindONNXv1, inst.Attributes.Kind())
	assert.Equal(t, "ir=8 opsets=[ai.onnx:17]", inst.Summary())
}

func TestKindsDecode_UnknownKind(t *testing.T) {
	entry := Entry{ID: "x", Op: "TFLite_v1", Attributes: json.RawMessage(`{"a": 1}`)}

	_, err := onnxKinds().Decode(entry)
	require.Error(t, err)
	assert.ErrorIs(t, err, fnnxerr.ErrUnsupportedVariant)

	strict := onnxKinds()
	lenient := strict.WithLenient(true)
	assert.False(t, strict.Lenient)
	_, err = strict.Decode(entry)
	assert.ErrorIs(t, err, fnnxerr.ErrUnsupportedVariant)

	inst, err := lenient.Decode(entry)
	require.NoError(t, err)
	opaque, ok := inst.Attributes.(*Opaque)
	require.True(t, ok)
	assert.Equal(t, Kind("TFLite_v1"), opaque.Kind())
	assert.Equal(t, `{"a":1}`, opaque.Raw.String())
}

func TestKindsDecode_Validation(t *testing.T) {
	k := onnxKinds()

	_, err := k.Decode(Entry{ID: "bad-id", Op: KindONNXv1})
	assert.ErrorIs(t, err, fnnxerr.ErrValidation)

	_, err = k.Decode(Entry{ID: "ok"})
	assert.ErrorIs(t, err, fnnxerr.ErrValidation)

	_, err = k.Decode(Entry{ID: "ok", Op: KindONNXv1, Attributes: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, fnnxerr.ErrValidation)
}

func TestKindsRegister_DuplicatePanics(t *testing.T) {
	k := onnxKinds()
	assert.Panics(t, func() { k.Register(KindONNXv1, DecodeONNX) })
	assert.Equal(t, []Kind{KindONNXv1}, k.Known())
}

func TestExtractDynamic(t *testing.T) {
	inst := &OpInstance{
		ID: "op",
		DynamicAttributes: map[string]DynamicAttribute{
			"threshold": {Name: "global_threshold", DefaultValue: "0.5"},
			"mode":      {Name: "mode", DefaultValue: "fast"},
		},
	}
	got := inst.ExtractDynamic(value.Map{"global_threshold": value.String("0.9"), "unrelated": value.Int(1)})
	assert.True(t, got.Equal(value.Map{
		"threshold": value.String("0.9"),
		"mode":      value.String("fast"),
	}))
}

func TestDimJSON(t *testing.T) {
	var spec IOSpec
	require.NoError(t, json.Unmarshal([]byte(`{"dtype":"Array[float32]","shape":["batch",10]}`), &spec))
	assert.Equal(t, []Dim{{Name: "batch"}, {Size: 10}}, spec.Shape)

	out, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dtype":"Array[float32]","shape":["batch",10]}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"shape":[true]}`), &spec))
}
