// Package schema generates the versioned JSON Schema bundle that describes
// the package file formats.
//
// Schemas are reflected from the same Go types the loader decodes, so the
// published documents cannot drift from what is actually accepted. The
// bundle has one document per file kind plus a combined document holding
// all of them under a version key.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/manifest"
	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/pipeline"
	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/value"
	"golang.org/x/mod/semver"
)

// Draft is the JSON Schema dialect of every generated document.
var Draft = jsonschema.Version

// Bundle is the full set of schemas for one format version.
type Bundle struct {
	Version    string                        `json:"version"`
	Manifest   *jsonschema.Schema            `json:"manifest"`
	OpsEntries *jsonschema.Schema            `json:"ops_entries"`
	MetaEntry  *jsonschema.Schema            `json:"meta_entry"`
	Envs       map[string]*jsonschema.Schema `json:"envs"`
	Ops        map[string]*jsonschema.Schema `json:"ops"`
	Variants   map[string]*jsonschema.Schema `json:"variants"`
}

var (
	dimType   = reflect.TypeOf(ops.Dim{})
	valueType = reflect.TypeOf(value.Value{})
)

// generator reflects documents from the model types. Field annotations come
// from the types' jsonschema tags; types with custom JSON forms and the types
// decoded with unknown fields rejected are handled by mapType.
type generator struct {
	r *jsonschema.Reflector
	// closed lists the types decoded with unknown fields rejected.
	closed    map[reflect.Type]bool
	expanding map[reflect.Type]bool
}

func newGenerator() *generator {
	g := &generator{
		closed: map[reflect.Type]bool{
			reflect.TypeOf(ops.ONNXAttributes{}): true,
			reflect.TypeOf(pipeline.Variant{}):   true,
			reflect.TypeOf(pipeline.Node{}):      true,
			reflect.TypeOf(pyfunc.Variant{}):     true,
		},
		expanding: make(map[reflect.Type]bool),
	}
	g.r = &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
		Mapper:                    g.mapType,
	}
	return g
}

func (g *generator) mapType(t reflect.Type) *jsonschema.Schema {
	switch t {
	case dimType:
		return &jsonschema.Schema{AnyOf: []*jsonschema.Schema{{Type: "integer"}, {Type: "string"}}}
	case valueType:
		return &jsonschema.Schema{}
	}
	if !g.closed[t] || g.expanding[t] {
		return nil
	}
	g.expanding[t] = true
	defer delete(g.expanding, t)
	s := g.r.ReflectFromType(t)
	s.Version = ""
	s.AdditionalProperties = jsonschema.FalseSchema
	return s
}

func (g *generator) document(title string, x any) (s *jsonschema.Schema, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("schema %s: %v", title, r)
		}
	}()
	s = g.r.Reflect(x)
	s.Version = Draft
	s.Title = title
	return s, nil
}

// Generate builds the bundle for version, which must be a MAJOR.MINOR.PATCH
// semantic version.
func Generate(version string) (*Bundle, error) {
	if v := "v" + version; !semver.IsValid(v) || semver.Canonical(v) != v || semver.Prerelease(v) != "" {
		return nil, fnnxerr.New(fnnxerr.ErrValidation, version, "schema version must be MAJOR.MINOR.PATCH")
	}

	g := newGenerator()
	doc := g.document

	b := &Bundle{
		Version:  version,
		Envs:     make(map[string]*jsonschema.Schema),
		Ops:      make(map[string]*jsonschema.Schema),
		Variants: make(map[string]*jsonschema.Schema),
	}
	var err error
	if b.Manifest, err = doc("Manifest", manifest.Header{}); err != nil {
		return nil, err
	}
	if b.OpsEntries, err = doc("OpInstances", []ops.Entry{}); err != nil {
		return nil, err
	}
	if b.MetaEntry, err = doc("MetaEntry", manifest.MetaEntry{}); err != nil {
		return nil, err
	}
	if b.Envs[manifest.EnvPythonCondaPip], err = doc("Python3_CondaPip", manifest.PythonCondaPip{}); err != nil {
		return nil, err
	}
	if b.Ops[string(ops.KindONNXv1)], err = doc("ONNX_v1", ops.ONNXAttributes{}); err != nil {
		return nil, err
	}
	if b.Variants[string(ops.KindPipeline)], err = doc("PipelineVariant", pipeline.Variant{}); err != nil {
		return nil, err
	}
	if b.Variants[string(ops.KindPyFunc)], err = doc("PyFuncVariant", pyfunc.Variant{}); err != nil {
		return nil, err
	}
	return b, nil
}

// MarshalIndent encodes the combined document. The output is identical for
// identical bundles.
func (b *Bundle) MarshalIndent() ([]byte, error) {
	return marshal(b)
}

// Files returns every document of the bundle keyed by file name.
func (b *Bundle) Files() map[string]any {
	return map[string]any{
		"manifest.json":         b.Manifest,
		"ops.json":              b.OpsEntries,
		"meta_entry.json":       b.MetaEntry,
		"env.json":              b.Envs,
		"op_onnx_v1.json":       b.Ops[string(ops.KindONNXv1)],
		"variant_pipeline.json": b.Variants[string(ops.KindPipeline)],
		"variant_pyfunc.json":   b.Variants[string(ops.KindPyFunc)],
		"combined.json":         b,
	}
}

// WriteFiles writes every document of the bundle into dir, creating it if
// needed.
func (b *Bundle) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, doc := range b.Files() {
		buf, err := marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), buf, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func marshal(x any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(x); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
