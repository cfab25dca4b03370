package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// DecodeFunc decodes the raw `attributes` payload of one kind.
type DecodeFunc func(raw json.RawMessage) (Attributes, error)

// Kinds maps the `op` discriminator to the decoder of its attribute shape.
type Kinds struct {
	decoders map[Kind]DecodeFunc

	// Lenient keeps entries of unregistered kinds as *Opaque instead of
	// failing with ErrUnsupportedVariant.
	Lenient bool
}

// NewKinds creates an empty kind registry.
func NewKinds() *Kinds {
	return &Kinds{decoders: make(map[Kind]DecodeFunc)}
}

// Register adds the decoder for a kind. Registering a kind twice is a
// programming error and panics.
func (k *Kinds) Register(kind Kind, fn DecodeFunc) {
	if _, exists := k.decoders[kind]; exists {
		panic(fmt.Sprintf("op kind '%s' already registered", kind))
	}
	k.decoders[kind] = fn
}

// WithLenient returns a copy of k with Lenient set. The copy shares the
// registered decoders; k itself is not changed.
func (k *Kinds) WithLenient(lenient bool) *Kinds {
	c := *k
	c.Lenient = lenient
	return &c
}

// Known returns the registered kinds in sorted order.
func (k *Kinds) Known() []Kind {
	out := make([]Kind, 0, len(k.decoders))
	for kind := range k.decoders {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decode turns a wire entry into an OpInstance, dispatching on its `op` tag.
func (k *Kinds) Decode(e Entry) (*OpInstance, error) {
	if !ValidID(e.ID) {
		return nil, fnnxerr.New(fnnxerr.ErrValidation, e.ID, "op instance id must match %s", idPattern)
	}
	if e.Op == "" {
		return nil, fnnxerr.New(fnnxerr.ErrValidation, e.ID, "missing op discriminator")
	}

	inst := &OpInstance{
		ID:                e.ID,
		Op:                e.Op,
		Inputs:            e.Inputs,
		Outputs:           e.Outputs,
		DynamicAttributes: e.DynamicAttributes,
	}

	decode, ok := k.decoders[e.Op]
	if !ok {
		if !k.Lenient {
			return nil, fnnxerr.New(fnnxerr.ErrUnsupportedVariant, e.ID, "op kind '%s' is not registered", e.Op)
		}
		raw := value.Null()
		if len(bytes.TrimSpace(e.Attributes)) > 0 {
			v, err := value.FromJSON(e.Attributes)
			if err != nil {
				return nil, fnnxerr.Validation(e.ID, err)
			}
			raw = v
		}
		inst.Attributes = &Opaque{Tag: e.Op, Raw: raw}
		return inst, nil
	}

	attrs, err := decode(e.Attributes)
	if err != nil {
		var fe *fnnxerr.Error
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, fnnxerr.Validation(e.ID, err)
	}
	if attrs.Kind() != e.Op {
		return nil, fnnxerr.New(fnnxerr.ErrValidation, e.ID, "decoder for '%s' produced '%s' attributes", e.Op, attrs.Kind())
	}
	inst.Attributes = attrs
	return inst, nil
}

// DecodeAll decodes a list of wire entries in order, stopping at the first
// failure.
func (k *Kinds) DecodeAll(entries []Entry) ([]*OpInstance, error) {
	out := make([]*OpInstance, 0, len(entries))
	for _, e := range entries {
		inst, err := k.Decode(e)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
