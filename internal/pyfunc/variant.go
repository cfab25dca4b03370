// Package pyfunc implements the custom-function variant and the contract a
// runtime honours when executing it.
//
// A pyfunc names its entry point with a class name. The name is resolved
// through a Registry of factories when the instance is first used; the value a
// factory returns must implement Func. Each Instance warms its Func exactly
// once, then serves Compute and ComputeAsync calls. Calls into one instance
// are serialized unless its Func declares itself Reentrant.
//
// File access is only available through the Context handed to Warmup, which
// confines reads to the instance's artifacts directory.
package pyfunc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// Variant is the pyfunc attribute payload.
type Variant struct {
	ClassName   string    `json:"pyfunc_classname"`
	ExtraValues value.Map `json:"extra_values"`
}

// Kind implements ops.Attributes.
func (v *Variant) Kind() ops.Kind { return ops.KindPyFunc }

// Summary implements ops.Summarizer.
func (v *Variant) Summary() string {
	if len(v.ExtraValues) == 0 {
		return v.ClassName
	}
	return fmt.Sprintf("%s extra_values=%v", v.ClassName, v.ExtraValues.Keys())
}

// Decode decodes a pyfunc payload. Unknown keys are rejected and the class
// name is required.
func Decode(raw json.RawMessage) (ops.Attributes, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("pyfunc attributes are required")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	var v Variant
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid pyfunc attributes: %w", err)
	}
	if v.ClassName == "" {
		return nil, errors.New("pyfunc_classname is required")
	}
	return &v, nil
}
