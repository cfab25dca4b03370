// Package pipeline implements the pipeline variant: a directed acyclic graph
// of nodes, each binding an op instance to symbolic input and output names.
//
// # Validation
//
// Validate turns a Variant into a Plan. A directed edge runs from the node
// producing a name to every node consuming it; the plan is a topological order
// of those edges computed with Kahn's algorithm. Ties between nodes that are
// ready at the same time are broken by their position in the source sequence,
// so the same variant always yields the same plan.
//
// Validation rejects:
//   - a node referencing an op instance that does not exist (ErrUnknownReference),
//   - a name produced more than once, or produced while also being an external
//     input (ErrDuplicateOutput),
//   - a name consumed but never produced and not external (ErrDanglingInput),
//   - a cycle (ErrCyclicPipeline), reported with the nodes on one cycle.
//
// # Execution
//
// Execute walks a Plan in order. Each node sees the caller's dynamic
// attributes overlaid with its own extra_dynattrs; the overlay is a fresh map
// per node and never changes the referenced op instance. Cancellation is
// honoured between nodes only.
package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/specialistvlad/fnnxgo/internal/ops"
)

// Node is one step of a pipeline.
type Node struct {
	OpInstanceID  string            `json:"op_instance_id"`
	Inputs        []string          `json:"inputs"`
	Outputs       []string          `json:"outputs"`
	ExtraDynAttrs map[string]string `json:"extra_dynattrs"`
}

// Variant is the pipeline attribute payload.
type Variant struct {
	Nodes []Node `json:"nodes"`
	// Inputs declares external pipeline inputs. It is used by pipelines nested
	// as op instances; the root pipeline may only repeat the package inputs.
	Inputs []string `json:"inputs,omitempty"`
	// Outputs names what a nested pipeline hands back to its enclosing node,
	// positionally.
	Outputs []string `json:"outputs,omitempty"`
}

// Kind implements ops.Attributes.
func (v *Variant) Kind() ops.Kind { return ops.KindPipeline }

// Summary implements ops.Summarizer.
func (v *Variant) Summary() string {
	return fmt.Sprintf("%d node(s)", len(v.Nodes))
}

// References returns the op instance ids referenced by the nodes, in node
// order, without duplicates.
func (v *Variant) References() []string {
	seen := make(map[string]struct{}, len(v.Nodes))
	var out []string
	for _, n := range v.Nodes {
		if _, ok := seen[n.OpInstanceID]; ok {
			continue
		}
		seen[n.OpInstanceID] = struct{}{}
		out = append(out, n.OpInstanceID)
	}
	return out
}

// Decode decodes a pipeline payload. Unknown keys are rejected.
func Decode(raw json.RawMessage) (ops.Attributes, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("pipeline attributes are required")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	var v Variant
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid pipeline attributes: %w", err)
	}
	for i, n := range v.Nodes {
		if n.OpInstanceID == "" {
			return nil, fmt.Errorf("nodes[%d]: op_instance_id is required", i)
		}
	}
	return &v, nil
}
