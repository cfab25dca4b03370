package loader

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/manifest"
	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Directory(t *testing.T) {
	ctx, logs := testutil.LogContext(t)
	dir := testutil.WritePackage(t, testutil.ScenarioPackage())

	pkg, err := Open(ctx, dir, Options{})
	require.NoError(t, err)
	defer pkg.Close()

	m := pkg.Manifest
	assert.Equal(t, ops.KindPipeline, m.Variant())
	assert.Equal(t, []string{"onnx_node", "post_node"}, m.RootPlan().Order())
	assert.Equal(t, []string{"x"}, m.Header().InputNames())
	require.Len(t, m.Meta(), 1)
	assert.Equal(t, "m1", m.Meta()[0].ID)
	_, ok := m.Env(manifest.EnvPythonCondaPip)
	assert.True(t, ok)

	post, err := m.Resolve("post_node")
	require.NoError(t, err)
	assert.Equal(t, "fnnx.builtin.Identity", post.Attributes.(*pyfunc.Variant).ClassName)

	assert.Equal(t, dir, pkg.Dir)
	assert.Equal(t, filepath.Join(dir, "ops_artifacts", "onnx_node"), pkg.OpArtifactsDir("onnx_node"))
	assert.Equal(t, filepath.Join(dir, "variant_artifacts"), pkg.PyFuncScope(""))
	assert.Equal(t, filepath.Join(dir, "variant_artifacts", "post_node"), pkg.PyFuncScope("post_node"))

	require.NoError(t, pkg.Close())
	assert.DirExists(t, dir, "closing a directory package must not remove it")
	assert.Contains(t, logs.String(), "Package loaded.")
}

func TestOpen_Archives(t *testing.T) {
	testCases := []struct {
		name string
		c    testutil.Compression
	}{
		{name: "plain tar", c: testutil.Plain},
		{name: "gzip", c: testutil.Gzip},
		{name: "zstd", c: testutil.Zstd},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.LogContext(t)
			path := testutil.ArchivePackage(t, testutil.ArtifactSumPackage(), tc.c)

			pkg, err := Open(ctx, path, Options{})
			require.NoError(t, err)
			assert.Equal(t, ops.KindPyFunc, pkg.Manifest.Variant())
			assert.FileExists(t, filepath.Join(pkg.PyFuncScope(""), "subdir", "val2.json"))

			extracted := pkg.Dir
			require.NoError(t, pkg.Close())
			assert.NoDirExists(t, extracted)
		})
	}
}

func TestOpen_ArchiveEntriesMustStayInside(t *testing.T) {
	testCases := []struct {
		name    string
		headers []*tar.Header
	}{
		{
			name:    "parent traversal",
			headers: []*tar.Header{{Name: "../evil.json", Mode: 0o644, Size: 1, Typeflag: tar.TypeReg}},
		},
		{
			name:    "absolute path",
			headers: []*tar.Header{{Name: "/tmp/evil.json", Mode: 0o644, Size: 1, Typeflag: tar.TypeReg}},
		},
		{
			name:    "symlink",
			headers: []*tar.Header{{Name: "variant_artifacts/link", Linkname: "/etc/passwd", Typeflag: tar.TypeSymlink}},
		},
		{
			name:    "hard link",
			headers: []*tar.Header{{Name: "variant_artifacts/link", Linkname: "manifest.json", Typeflag: tar.TypeLink}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.LogContext(t)
			_, err := Open(ctx, testutil.ArchiveWithEntries(t, tc.headers), Options{})
			assert.ErrorIs(t, err, fnnxerr.ErrPathEscape)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	testCases := []struct {
		name      string
		overrides map[string]string
		kind      error
	}{
		{
			name:      "missing manifest",
			overrides: map[string]string{"manifest.json": ""},
			kind:      fnnxerr.ErrValidation,
		},
		{
			name:      "missing ops for a pipeline",
			overrides: map[string]string{"ops.json": ""},
			kind:      fnnxerr.ErrValidation,
		},
		{
			name:      "malformed manifest",
			overrides: map[string]string{"manifest.json": `{"variant": "pipeline",`},
			kind:      fnnxerr.ErrValidation,
		},
		{
			name:      "unknown field in variant config",
			overrides: map[string]string{"variant_config.json": `{"nodes": [], "edges": []}`},
			kind:      fnnxerr.ErrValidation,
		},
		{
			name: "unknown op kind",
			overrides: map[string]string{"ops.json": `[
  {"id": "onnx_node", "op": "TF_v9", "inputs": [], "outputs": [], "attributes": {}},
  {"id": "post_node", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "a.B"}}
]`},
			kind: fnnxerr.ErrUnsupportedVariant,
		},
		{
			name: "duplicate op ids",
			overrides: map[string]string{"ops.json": `[
  {"id": "post_node", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "a.B"}},
  {"id": "post_node", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "a.C"}}
]`},
			kind: fnnxerr.ErrDuplicateID,
		},
		{
			name:      "duplicate meta ids",
			overrides: map[string]string{"meta.json": `[{"id": "m1", "payload": {}}, {"id": "m1", "payload": {}}]`},
			kind:      fnnxerr.ErrDuplicateID,
		},
		{
			name:      "duplicate env names",
			overrides: map[string]string{"env.json": `{"python3::conda_pip": {}, "python3::conda_pip": {}}`},
			kind:      fnnxerr.ErrDuplicateID,
		},
		{
			name:      "env is not an object",
			overrides: map[string]string{"env.json": `[]`},
			kind:      fnnxerr.ErrValidation,
		},
		{
			name: "root pipeline input missing from the header",
			overrides: map[string]string{"variant_config.json": `{"inputs": ["extra"], "nodes": [
  {"op_instance_id": "onnx_node", "inputs": ["extra"], "outputs": ["logits"]},
  {"op_instance_id": "post_node", "inputs": ["logits"], "outputs": ["y"]}
]}`},
			kind: fnnxerr.ErrValidation,
		},
		{
			name: "cyclic pipeline",
			overrides: map[string]string{"variant_config.json": `{"nodes": [
  {"op_instance_id": "onnx_node", "inputs": ["y"], "outputs": ["logits"]},
  {"op_instance_id": "post_node", "inputs": ["logits"], "outputs": ["y"]}
]}`},
			kind: fnnxerr.ErrCyclicPipeline,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.LogContext(t)
			dir := testutil.WritePackage(t, testutil.With(testutil.ScenarioPackage(), tc.overrides))
			pkg, err := Open(ctx, dir, Options{})
			require.Error(t, err)
			assert.Nil(t, pkg)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestOpen_UnknownOpsKeptWhenAllowed(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	files := testutil.With(testutil.ScenarioPackage(), map[string]string{"ops.json": `[
  {"id": "onnx_node", "op": "TF_v9", "inputs": [], "outputs": [], "attributes": {"graph": "g"}},
  {"id": "post_node", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "a.B"}}
]`})

	pkg, err := Open(ctx, testutil.WritePackage(t, files), Options{AllowUnknownOps: true})
	require.NoError(t, err)
	defer pkg.Close()

	inst, err := pkg.Manifest.Resolve("onnx_node")
	require.NoError(t, err)
	opaque, ok := inst.Attributes.(*ops.Opaque)
	require.True(t, ok)
	assert.Equal(t, ops.Kind("TF_v9"), opaque.Tag)
}

func TestOpen_LeavesCallerKindsUntouched(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	files := testutil.With(testutil.ScenarioPackage(), map[string]string{"ops.json": `[
  {"id": "onnx_node", "op": "TF_v9", "inputs": [], "outputs": [], "attributes": {"graph": "g"}},
  {"id": "post_node", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "a.B"}}
]`})
	dir := testutil.WritePackage(t, files)
	kinds := manifest.DefaultKinds()

	pkg, err := Open(ctx, dir, Options{AllowUnknownOps: true, Kinds: kinds})
	require.NoError(t, err)
	require.NoError(t, pkg.Close())
	assert.False(t, kinds.Lenient)

	_, err = Open(ctx, dir, Options{Kinds: kinds})
	assert.ErrorIs(t, err, fnnxerr.ErrUnsupportedVariant)
}

func TestOpen_MissingPath(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	_, err := Open(ctx, filepath.Join(t.TempDir(), "nope.fnnx"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
