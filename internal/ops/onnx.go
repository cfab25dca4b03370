package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Opset is one operator set import of an embedded ONNX graph.
type Opset struct {
	Domain  string `json:"domain"`
	Version int64  `json:"version"`
}

// ONNXAttributes describe an embedded ONNX sub-graph. The graph itself lives
// under ops_artifacts/<id>/ and is executed by an externally supplied
// implementation.
type ONNXAttributes struct {
	Opsets                []Opset `json:"opsets"`
	RequiresORTExtensions bool    `json:"requires_ort_extensions"`
	HasExternalData       bool    `json:"has_external_data"`
	IRVersion             int64   `json:"onnx_ir_version"`
}

// Kind implements Attributes.
func (a *ONNXAttributes) Kind() Kind { return KindONNXv1 }

// Summary implements Summarizer.
func (a *ONNXAttributes) Summary() string {
	sets := make([]string, len(a.Opsets))
	for i, o := range a.Opsets {
		domain := o.Domain
		if domain == "" {
			domain = "ai.onnx"
		}
		sets[i] = fmt.Sprintf("%s:%d", domain, o.Version)
	}
	s := fmt.Sprintf("ir=%d opsets=[%s]", a.IRVersion, strings.Join(sets, ","))
	if a.RequiresORTExtensions {
		s += " ort-extensions"
	}
	if a.HasExternalData {
		s += " external-data"
	}
	return s
}

// Validate checks the attribute invariants.
func (a *ONNXAttributes) Validate() error {
	if a.IRVersion < 0 {
		return fmt.Errorf("onnx_ir_version must be non-negative, got %d", a.IRVersion)
	}
	for i, o := range a.Opsets {
		if o.Version < 0 {
			return fmt.Errorf("opsets[%d] (%q): version must be non-negative, got %d", i, o.Domain, o.Version)
		}
	}
	return nil
}

var (
	onnxRequired  = []string{"opsets", "requires_ort_extensions", "has_external_data", "onnx_ir_version"}
	opsetRequired = []string{"domain", "version"}
)

// DecodeONNX decodes ONNX_v1 attributes. Every field is required and unknown
// keys are rejected.
func DecodeONNX(raw json.RawMessage) (Attributes, error) {
	generic, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	if err := requireKeys(generic, onnxRequired, ""); err != nil {
		return nil, err
	}
	if sets, ok := generic["opsets"].([]any); ok {
		for i, s := range sets {
			obj, ok := s.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("opsets[%d] must be an object", i)
			}
			if err := requireKeys(obj, opsetRequired, fmt.Sprintf("opsets[%d].", i)); err != nil {
				return nil, err
			}
		}
	}

	var attrs ONNXAttributes
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		Result:      &attrs,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(generic); err != nil {
		return nil, fmt.Errorf("invalid ONNX_v1 attributes: %w", err)
	}
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	return &attrs, nil
}

// decodeObject decodes a JSON object keeping numbers as json.Number, so the
// typed decode step can reject non-integral versions.
func decodeObject(raw json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, errors.New("attributes are required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("attributes must be a JSON object: %w", err)
	}
	return out, nil
}

func requireKeys(obj map[string]any, keys []string, prefix string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, prefix+k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
	}
	return nil
}
