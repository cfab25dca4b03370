package testutil

import "maps"

// ScenarioPackage is a pipeline package: an ONNX_v1 instance followed by a
// pyfunc post-processing instance. Executing it needs an ONNX_v1
// implementation.
func ScenarioPackage() map[string]string {
	return map[string]string{
		"manifest.json": `{
  "variant": "pipeline",
  "name": "scenario",
  "producer_name": "tests",
  "producer_version": "0.0.1",
  "producer_tags": [],
  "inputs": [{"name": "x", "content_type": "NDJSON", "dtype": "Array[float32]", "shape": ["batch", 2]}],
  "outputs": [{"name": "y", "content_type": "NDJSON", "dtype": "Array[float32]", "shape": ["batch", 2]}],
  "dynamic_attributes": [{"name": "threshold", "description": "decision threshold"}],
  "env_vars": []
}`,
		"ops.json": `[
  {
    "id": "onnx_node",
    "op": "ONNX_v1",
    "inputs": [{"dtype": "Array[float32]", "shape": ["batch", 2]}],
    "outputs": [{"dtype": "Array[float32]", "shape": ["batch", 2]}],
    "attributes": {"opsets": [{"domain": "", "version": 17}], "requires_ort_extensions": false, "has_external_data": false, "onnx_ir_version": 8},
    "dynamic_attributes": {}
  },
  {
    "id": "post_node",
    "op": "pyfunc",
    "inputs": [],
    "outputs": [],
    "attributes": {"pyfunc_classname": "fnnx.builtin.Identity", "extra_values": null},
    "dynamic_attributes": {"threshold": {"name": "threshold", "default_value": "0.5"}}
  }
]`,
		"variant_config.json": `{"nodes": [
  {"op_instance_id": "onnx_node", "inputs": ["x"], "outputs": ["logits"], "extra_dynattrs": {}},
  {"op_instance_id": "post_node", "inputs": ["logits"], "outputs": ["y"], "extra_dynattrs": {"stage": "post"}}
]}`,
		"meta.json":                      `[{"id": "m1", "producer": "tests", "producer_version": "1", "producer_tags": ["a"], "payload": {"k": 1}}]`,
		"env.json":                       `{"python3::conda_pip": {"python_version": "3.11", "build_dependencies": [], "dependencies": []}}`,
		"dtypes.json":                    `{}`,
		"ops_artifacts/onnx_node/model.onnx": "onnx-bytes",
	}
}

// ArtifactSumPackage is a root pyfunc package whose function sums
// val1.json, subdir/val2.json and the val3 extra value.
func ArtifactSumPackage() map[string]string {
	return map[string]string{
		"manifest.json": `{
  "variant": "pyfunc",
  "producer_name": "tests",
  "producer_version": "0.0.1",
  "producer_tags": [],
  "inputs": [],
  "outputs": [{"name": "y", "content_type": "JSON", "dtype": "ext::y"}],
  "dynamic_attributes": [],
  "env_vars": []
}`,
		"variant_config.json":                `{"pyfunc_classname": "fnnx.builtin.ArtifactSum", "extra_values": {"val3": [100, 200, 300]}}`,
		"variant_artifacts/val1.json":        `[1, 2, 3]`,
		"variant_artifacts/subdir/val2.json": `[10, 20, 30]`,
	}
}

// IdentityPipelinePackage is a pipeline package made only of built-in
// pyfunc instances, so it runs without external implementations.
func IdentityPipelinePackage() map[string]string {
	return map[string]string{
		"manifest.json": `{
  "variant": "pipeline",
  "producer_name": "tests",
  "producer_version": "0.0.1",
  "producer_tags": [],
  "inputs": [{"name": "x", "content_type": "JSON", "dtype": "ext::x"}],
  "outputs": [{"name": "y", "content_type": "JSON", "dtype": "ext::y"}],
  "dynamic_attributes": [],
  "env_vars": []
}`,
		"ops.json": `[
  {"id": "first", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "fnnx.builtin.Identity"}},
  {"id": "second", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "fnnx.builtin.Identity"}}
]`,
		"variant_config.json": `{"nodes": [
  {"op_instance_id": "second", "inputs": ["mid"], "outputs": ["y"], "extra_dynattrs": {}},
  {"op_instance_id": "first", "inputs": ["x"], "outputs": ["mid"], "extra_dynattrs": {}}
]}`,
	}
}

// TwoTrackPackage is a pipeline of two independent chains of sleeper
// instances: x -> 1A -> 1B -> y1 and x -> 2A -> 2B -> y2. Executing it needs
// SleeperModule registered.
func TwoTrackPackage() map[string]string {
	return map[string]string{
		"manifest.json": `{
  "variant": "pipeline",
  "producer_name": "tests",
  "producer_version": "0.0.1",
  "producer_tags": [],
  "inputs": [{"name": "x", "content_type": "JSON", "dtype": "ext::x"}],
  "outputs": [
    {"name": "y1", "content_type": "JSON", "dtype": "ext::y"},
    {"name": "y2", "content_type": "JSON", "dtype": "ext::y"}
  ],
  "dynamic_attributes": [],
  "env_vars": []
}`,
		"ops.json": `[
  {"id": "track1_A", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "tests.Sleeper", "extra_values": {"id": "1A"}}},
  {"id": "track1_B", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "tests.Sleeper", "extra_values": {"id": "1B"}}},
  {"id": "track2_A", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "tests.Sleeper", "extra_values": {"id": "2A"}}},
  {"id": "track2_B", "op": "pyfunc", "inputs": [], "outputs": [], "attributes": {"pyfunc_classname": "tests.Sleeper", "extra_values": {"id": "2B"}}}
]`,
		"variant_config.json": `{"nodes": [
  {"op_instance_id": "track1_A", "inputs": ["x"], "outputs": ["a1"], "extra_dynattrs": {}},
  {"op_instance_id": "track1_B", "inputs": ["a1"], "outputs": ["y1"], "extra_dynattrs": {}},
  {"op_instance_id": "track2_A", "inputs": ["x"], "outputs": ["a2"], "extra_dynattrs": {}},
  {"op_instance_id": "track2_B", "inputs": ["a2"], "outputs": ["y2"], "extra_dynattrs": {}}
]}`,
	}
}

// With returns a copy of files with overrides applied. An empty override
// value removes the file.
func With(files map[string]string, overrides map[string]string) map[string]string {
	out := maps.Clone(files)
	for k, v := range overrides {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
