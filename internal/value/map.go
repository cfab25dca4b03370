package value

import (
	"github.com/zclconf/go-cty/cty"
)

// Map is a string-keyed collection of values, used for inputs, outputs and
// attribute sets.
type Map map[string]Value

// MapFromNative converts a map of native Go values.
func MapFromNative(m map[string]any) (Map, error) {
	out := make(Map, len(m))
	for _, k := range sortedKeys(m) {
		v, err := FromNative(m[k])
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// MapFromCty converts an object or map cty.Value.
func MapFromCty(cv cty.Value) (Map, error) {
	v, err := FromCty(cv)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return Map{}, nil
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, cty.Path(nil).NewErrorf("expected an object, got %s", cv.Type().FriendlyName())
	}
	return m, nil
}

// Clone returns a shallow copy of m. Values are immutable, so a shallow copy
// is a full copy.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Overlay returns a new map holding m with every entry of top applied on top.
// Neither m nor top is modified.
func (m Map) Overlay(top Map) Map {
	out := make(Map, len(m)+len(top))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}

// Keys returns the keys of m in sorted order.
func (m Map) Keys() []string {
	return sortedKeys(m)
}

// Native converts every entry with Value.Native.
func (m Map) Native() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Native()
	}
	return out
}

// Equal reports whether both maps hold equal values under the same keys.
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		o, ok := other[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// Cty returns m as a cty object value.
func (m Map) Cty() cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(m))
	for k, v := range m {
		attrs[k] = v.Cty()
	}
	return cty.ObjectVal(attrs)
}
