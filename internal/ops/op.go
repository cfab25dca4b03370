// Package ops defines the op instance data model: the Kind discriminator,
// the attribute payload contract every variant satisfies, and the Kinds
// registry that dispatches decoding on the discriminator.
//
// Op instances are created once while a package is loaded and are never
// mutated afterwards. New variant kinds are added by registering a decoder
// with Kinds; stored instances of existing kinds are unaffected.
package ops

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/specialistvlad/fnnxgo/internal/value"
)

// Kind is the `op` discriminator of an op instance.
type Kind string

// Built-in kinds.
const (
	KindONNXv1   Kind = "ONNX_v1"
	KindPipeline Kind = "pipeline"
	KindPyFunc   Kind = "pyfunc"
)

// Attributes is the payload selected by an op instance's Kind.
type Attributes interface {
	Kind() Kind
}

// Summarizer is implemented by attribute payloads that can describe
// themselves in a single line for tooling output.
type Summarizer interface {
	Summary() string
}

// idPattern constrains op instance ids.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidID reports whether id is a well-formed op instance id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Dim is one dimension of a tensor shape: either a fixed size or a symbolic
// name such as "batch".
type Dim struct {
	Size int64
	Name string
}

// MarshalJSON implements json.Marshaler.
func (d Dim) MarshalJSON() ([]byte, error) {
	if d.Name != "" {
		return json.Marshal(d.Name)
	}
	return []byte(strconv.FormatInt(d.Size, 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Dim) UnmarshalJSON(buf []byte) error {
	var name string
	if err := json.Unmarshal(buf, &name); err == nil {
		*d = Dim{Name: name}
		return nil
	}
	var size int64
	if err := json.Unmarshal(buf, &size); err != nil {
		return fmt.Errorf("shape dimension must be an integer or a string, got %s", buf)
	}
	*d = Dim{Size: size}
	return nil
}

// IOSpec describes one positional input or output of an op instance.
type IOSpec struct {
	DType string `json:"dtype"`
	Shape []Dim  `json:"shape"`
}

// DynamicAttribute binds an op attribute key to a caller-supplied dynamic
// attribute, with a fallback when the caller does not supply it.
type DynamicAttribute struct {
	Name         string `json:"name"`
	DefaultValue string `json:"default_value"`
}

// Entry is the wire form of one element of ops.json.
type Entry struct {
	ID                string                      `json:"id" jsonschema:"pattern=^[a-zA-Z0-9_]+$"`
	Op                Kind                        `json:"op" jsonschema_description:"Op kind; selects the schema of attributes."`
	Inputs            []IOSpec                    `json:"inputs"`
	Outputs           []IOSpec                    `json:"outputs"`
	Attributes        json.RawMessage             `json:"attributes"`
	DynamicAttributes map[string]DynamicAttribute `json:"dynamic_attributes,omitempty"`
}

// OpInstance is a single named, typed unit of computation inside a package.
type OpInstance struct {
	ID                string
	Op                Kind
	Inputs            []IOSpec
	Outputs           []IOSpec
	Attributes        Attributes
	DynamicAttributes map[string]DynamicAttribute
}

// ExtractDynamic returns the dynamic attribute view this op instance sees:
// for every declared key, the caller's attribute named by the binding, or the
// binding's default when the caller did not supply it.
func (o *OpInstance) ExtractDynamic(dynamic value.Map) value.Map {
	out := make(value.Map, len(o.DynamicAttributes))
	for key, binding := range o.DynamicAttributes {
		if v, ok := dynamic[binding.Name]; ok && binding.Name != "" {
			out[key] = v
			continue
		}
		out[key] = value.String(binding.DefaultValue)
	}
	return out
}

// Summary describes the instance in one line.
func (o *OpInstance) Summary() string {
	if s, ok := o.Attributes.(Summarizer); ok {
		return s.Summary()
	}
	return ""
}

// Opaque carries the raw payload of an op whose kind is not registered. It
// exists only when the loader is asked to keep unknown kinds; such instances
// can be inspected but never executed.
type Opaque struct {
	Tag Kind
	Raw value.Value
}

// Kind implements Attributes.
func (o *Opaque) Kind() Kind { return o.Tag }

// Summary implements Summarizer.
func (o *Opaque) Summary() string { return "opaque " + o.Raw.String() }
