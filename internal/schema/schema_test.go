package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Version(t *testing.T) {
	testCases := []struct {
		version string
		ok      bool
	}{
		{version: "0.0.1", ok: true},
		{version: "1.12.3", ok: true},
		{version: "1.2", ok: false},
		{version: "v1.2.3", ok: false},
		{version: "1.2.3-rc1", ok: false},
		{version: "01.2.3", ok: false},
		{version: "", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.version, func(t *testing.T) {
			b, err := Generate(tc.version)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.version, b.Version)
				return
			}
			assert.ErrorIs(t, err, fnnxerr.ErrValidation)
		})
	}
}

func TestGenerate_IsDeterministic(t *testing.T) {
	first, err := Generate("0.0.1")
	require.NoError(t, err)
	second, err := Generate("0.0.1")
	require.NoError(t, err)

	a, err := first.MarshalIndent()
	require.NoError(t, err)
	b, err := second.MarshalIndent()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestGenerate_Documents(t *testing.T) {
	b, err := Generate("0.0.1")
	require.NoError(t, err)

	m := b.Manifest
	assert.Equal(t, Draft, m.Version)
	assert.Equal(t, "Manifest", m.Title)
	assert.Equal(t, []any{"pipeline", "pyfunc"}, m.Properties.Value("variant").Enum)
	assert.Contains(t, m.Required, "inputs")
	assert.NotContains(t, m.Required, "name")
	inputs := m.Properties.Value("inputs").Items
	assert.Equal(t, []any{"NDJSON", "JSON"}, inputs.Properties.Value("content_type").Enum)
	require.Len(t, inputs.Properties.Value("shape").Items.AnyOf, 2)

	entry := b.OpsEntries.Items
	assert.Equal(t, "array", b.OpsEntries.Type)
	assert.Equal(t, `^[a-zA-Z0-9_]+$`, entry.Properties.Value("id").Pattern)
	assert.NotEmpty(t, entry.Properties.Value("op").Description)
	assert.Equal(t, "object", entry.Properties.Value("dynamic_attributes").Type)

	onnx := b.Ops["ONNX_v1"]
	assert.Equal(t, jsonschema.FalseSchema, onnx.AdditionalProperties)
	assert.Equal(t, "integer", onnx.Properties.Value("onnx_ir_version").Type)

	pipe := b.Variants["pipeline"]
	assert.Equal(t, "PipelineVariant", pipe.Title)
	assert.Equal(t, []string{"nodes"}, pipe.Required)
	assert.Equal(t, jsonschema.FalseSchema, pipe.AdditionalProperties)
	node := pipe.Properties.Value("nodes").Items
	assert.Equal(t, jsonschema.FalseSchema, node.AdditionalProperties)
	assert.Equal(t, "string", node.Properties.Value("extra_dynattrs").AdditionalProperties.Type)

	assert.Equal(t, []string{"pyfunc_classname", "extra_values"}, b.Variants["pyfunc"].Required)
	assert.Contains(t, b.Envs, "python3::conda_pip")
	assert.Nil(t, b.MetaEntry.AdditionalProperties)
}

func TestGenerate_PropertiesKeepFieldOrder(t *testing.T) {
	b, err := Generate("0.0.1")
	require.NoError(t, err)

	raw, err := json.Marshal(b.Variants["pyfunc"])
	require.NoError(t, err)
	assert.Less(t,
		strings.Index(string(raw), `"pyfunc_classname"`),
		strings.Index(string(raw), `"extra_values"`))
}

func TestWriteFiles(t *testing.T) {
	b, err := Generate("0.0.1")
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "schemas")
	require.NoError(t, b.WriteFiles(dir))

	files, err := fsutil.ListFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"combined.json",
		"env.json",
		"manifest.json",
		"meta_entry.json",
		"op_onnx_v1.json",
		"ops.json",
		"variant_pipeline.json",
		"variant_pyfunc.json",
	}, files)

	raw, err := os.ReadFile(filepath.Join(dir, "combined.json"))
	require.NoError(t, err)
	var combined map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &combined))
	assert.Equal(t, `"0.0.1"`, string(combined["version"]))
	for _, key := range []string{"manifest", "ops_entries", "meta_entry", "envs", "ops", "variants"} {
		assert.Contains(t, combined, key)
	}

	want, err := b.MarshalIndent()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(raw))
}
