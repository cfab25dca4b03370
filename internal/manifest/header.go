package manifest

import (
	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/ops"
)

// Content types of package inputs and outputs.
const (
	ContentNDJSON = "NDJSON"
	ContentJSON   = "JSON"
)

// IODecl declares one package-level input or output.
type IODecl struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type" jsonschema:"enum=NDJSON,enum=JSON"`
	DType       string    `json:"dtype"`
	Shape       []ops.Dim `json:"shape,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// Var declares a dynamic attribute or environment variable the package
// understands.
type Var struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// Header is the content of manifest.json.
type Header struct {
	Variant           ops.Kind `json:"variant" jsonschema:"enum=pipeline,enum=pyfunc"`
	Name              string   `json:"name,omitempty"`
	Version           string   `json:"version,omitempty"`
	Description       string   `json:"description,omitempty"`
	ProducerName      string   `json:"producer_name"`
	ProducerVersion   string   `json:"producer_version"`
	ProducerTags      []string `json:"producer_tags"`
	Inputs            []IODecl `json:"inputs"`
	Outputs           []IODecl `json:"outputs"`
	DynamicAttributes []Var    `json:"dynamic_attributes"`
	EnvVars           []Var    `json:"env_vars"`
}

// InputNames returns the declared input names in order.
func (h Header) InputNames() []string { return ioNames(h.Inputs) }

// OutputNames returns the declared output names in order.
func (h Header) OutputNames() []string { return ioNames(h.Outputs) }

func ioNames(decls []IODecl) []string {
	out := make([]string, len(decls))
	for i, d := range decls {
		out[i] = d.Name
	}
	return out
}

func (h *Header) clone() Header {
	c := *h
	c.ProducerTags = append([]string(nil), h.ProducerTags...)
	c.Inputs = append([]IODecl(nil), h.Inputs...)
	c.Outputs = append([]IODecl(nil), h.Outputs...)
	c.DynamicAttributes = append([]Var(nil), h.DynamicAttributes...)
	c.EnvVars = append([]Var(nil), h.EnvVars...)
	return c
}

// validate checks the header on its own.
func (h *Header) validate() error {
	switch h.Variant {
	case ops.KindPipeline, ops.KindPyFunc:
	case "":
		return fnnxerr.New(fnnxerr.ErrValidation, "manifest.json", "variant is required")
	default:
		return fnnxerr.New(fnnxerr.ErrUnsupportedVariant, string(h.Variant), "package variant must be %q or %q", ops.KindPipeline, ops.KindPyFunc)
	}

	for _, group := range []struct {
		what  string
		decls []IODecl
	}{{"input", h.Inputs}, {"output", h.Outputs}} {
		seen := make(map[string]struct{}, len(group.decls))
		for _, d := range group.decls {
			if d.Name == "" {
				return fnnxerr.New(fnnxerr.ErrValidation, "manifest.json", "%s without a name", group.what)
			}
			if d.ContentType != ContentNDJSON && d.ContentType != ContentJSON {
				return fnnxerr.New(fnnxerr.ErrValidation, d.Name, "%s content_type must be %s or %s, got %q",
					group.what, ContentNDJSON, ContentJSON, d.ContentType)
			}
			if _, ok := seen[d.Name]; ok {
				return fnnxerr.New(fnnxerr.ErrDuplicateID, d.Name, "%s declared twice", group.what)
			}
			seen[d.Name] = struct{}{}
		}
	}
	return nil
}
