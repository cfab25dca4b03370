package pipeline

import (
	"fmt"
	"strconv"

	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/ops"
)

// Resolver looks up op instances referenced by pipeline nodes.
type Resolver interface {
	Resolve(id string) (*ops.OpInstance, error)
}

// Step is one node of a validated pipeline, in execution position.
type Step struct {
	// Index is the node's position in the source sequence.
	Index int
	// Label names the step in errors and logs: the op instance id, or
	// id#index when several nodes reference the same op instance.
	Label string
	Node  Node
}

// Plan is a validated pipeline with its execution order.
type Plan struct {
	Steps    []Step
	External []string
	// Outputs are the names a nested pipeline returns, in order.
	Outputs []string

	produced map[string]int
}

// Order returns the step labels in execution order.
func (p *Plan) Order() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Label
	}
	return out
}

// Produced returns every name produced by some node, in execution order.
func (p *Plan) Produced() []string {
	var out []string
	for _, s := range p.Steps {
		out = append(out, s.Node.Outputs...)
	}
	return out
}

// Producer returns the source index of the node producing name.
func (p *Plan) Producer(name string) (int, bool) {
	i, ok := p.produced[name]
	return i, ok
}

// Validate checks a pipeline against the instances reachable through r and
// computes its execution order. external lists the names the pipeline may
// consume without producing them.
func Validate(v *Variant, external []string, r Resolver) (*Plan, error) {
	labels := nodeLabels(v.Nodes)

	for i, n := range v.Nodes {
		inst, err := r.Resolve(n.OpInstanceID)
		if err != nil {
			return nil, err
		}
		if err := checkArity(labels[i], n, inst); err != nil {
			return nil, err
		}
	}

	externals := make(map[string]struct{}, len(external))
	for _, name := range external {
		externals[name] = struct{}{}
	}

	// A node output may not shadow an external input; checked before the
	// graph exists so the shadowing node does not depend on itself.
	producers := make(map[string][]int)
	for i, n := range v.Nodes {
		for _, out := range n.Outputs {
			if _, ok := externals[out]; ok {
				return nil, fnnxerr.New(fnnxerr.ErrDuplicateOutput, out,
					"produced by node %s but also declared as an external input", labels[i])
			}
			producers[out] = append(producers[out], i)
		}
	}

	// Edges run from every producer of a name to every consumer, so a cycle is
	// reported even when it also produces a name twice.
	g := newGraph(len(v.Nodes))
	for i, n := range v.Nodes {
		for _, in := range n.Inputs {
			if from, ok := producers[in]; ok {
				for _, f := range from {
					g.addEdge(f, i)
				}
				continue
			}
			if _, ok := externals[in]; !ok {
				return nil, fnnxerr.New(fnnxerr.ErrDanglingInput, in,
					"consumed by node %s but never produced", labels[i])
			}
		}
	}

	order, residual := g.sort()
	if len(residual) > 0 {
		cycle := g.findCycle(residual)
		names := make([]string, len(cycle))
		for i, idx := range cycle {
			names[i] = labels[idx]
		}
		e := fnnxerr.New(fnnxerr.ErrCyclicPipeline, names[0],
			"%d node(s) never become ready", len(residual))
		e.Nodes = names
		return nil, e
	}

	producer := make(map[string]int, len(producers))
	for i, n := range v.Nodes {
		for _, out := range n.Outputs {
			if prev, ok := producer[out]; ok {
				return nil, fnnxerr.New(fnnxerr.ErrDuplicateOutput, out,
					"produced by nodes %s and %s", labels[prev], labels[i])
			}
			producer[out] = i
		}
	}

	for _, out := range v.Outputs {
		if _, ok := producer[out]; ok {
			continue
		}
		if _, ok := externals[out]; !ok {
			return nil, fnnxerr.New(fnnxerr.ErrDanglingInput, out, "declared as a pipeline output but never produced")
		}
	}

	plan := &Plan{
		Steps:    make([]Step, len(order)),
		External: append([]string(nil), external...),
		Outputs:  append([]string(nil), v.Outputs...),
		produced: producer,
	}
	for pos, idx := range order {
		plan.Steps[pos] = Step{Index: idx, Label: labels[idx], Node: v.Nodes[idx]}
	}
	return plan, nil
}

// checkArity compares a node's names with the instance's declared positional
// inputs and outputs. Instances that declare none accept any arity. A nested
// pipeline binds positionally to its own declared inputs and outputs.
func checkArity(label string, n Node, inst *ops.OpInstance) error {
	if nested, ok := inst.Attributes.(*Variant); ok {
		if len(nested.Inputs) != len(n.Inputs) || len(nested.Outputs) != len(n.Outputs) {
			return fnnxerr.New(fnnxerr.ErrValidation, label,
				"node binds %d input(s) and %d output(s), pipeline %q declares %d and %d",
				len(n.Inputs), len(n.Outputs), inst.ID, len(nested.Inputs), len(nested.Outputs))
		}
		return nil
	}
	if len(inst.Inputs) > 0 && len(inst.Inputs) != len(n.Inputs) {
		return fnnxerr.New(fnnxerr.ErrValidation, label,
			"node binds %d input(s), op instance %q declares %d", len(n.Inputs), inst.ID, len(inst.Inputs))
	}
	if len(inst.Outputs) > 0 && len(inst.Outputs) != len(n.Outputs) {
		return fnnxerr.New(fnnxerr.ErrValidation, label,
			"node binds %d output(s), op instance %q declares %d", len(n.Outputs), inst.ID, len(inst.Outputs))
	}
	return nil
}

func nodeLabels(nodes []Node) []string {
	uses := make(map[string]int, len(nodes))
	for _, n := range nodes {
		uses[n.OpInstanceID]++
	}
	labels := make([]string, len(nodes))
	for i, n := range nodes {
		if uses[n.OpInstanceID] > 1 {
			labels[i] = n.OpInstanceID + "#" + strconv.Itoa(i)
			continue
		}
		labels[i] = n.OpInstanceID
	}
	return labels
}

// String renders the plan as its execution order.
func (p *Plan) String() string {
	return fmt.Sprint(p.Order())
}
