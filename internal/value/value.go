// Package value provides the opaque, validated blob used for every untyped
// payload in a package: meta entry payloads, pyfunc extra_values, environment
// descriptors and dynamic attributes.
//
// A Value wraps a cty.Value restricted to the JSON data model (string, number,
// bool, null, sequences and string-keyed objects). Keeping the boundary typed
// means the rest of the runtime never handles bare interface{} values; plugins
// convert to native Go values explicitly with Native.
package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Value is an immutable JSON-like value. The zero Value is null.
type Value struct {
	v cty.Value
}

// Null returns the null value.
func Null() Value { return Value{v: cty.NullVal(cty.DynamicPseudoType)} }

// String returns a string value.
func String(s string) Value { return Value{v: cty.StringVal(s)} }

// ErrNonFinite is returned for NaN and infinite numbers, which JSON cannot
// represent.
var ErrNonFinite = errors.New("number is not finite")

// Number returns a number value. It panics if f is NaN or infinite; use Float
// for computed values.
func Number(f float64) Value {
	v, err := Float(f)
	if err != nil {
		panic(err)
	}
	return v
}

// Float returns a number value, or ErrNonFinite if f is NaN or infinite.
func Float(f float64) (Value, error) {
	cv, err := floatToCty(f)
	if err != nil {
		return Value{}, err
	}
	return Value{v: cv}, nil
}

func floatToCty(f float64) (cty.Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return cty.NilVal, fmt.Errorf("%w: %v", ErrNonFinite, f)
	}
	return cty.NumberFloatVal(f), nil
}

// Int returns an integral number value.
func Int(i int64) Value { return Value{v: cty.NumberIntVal(i)} }

// Bool returns a bool value.
func Bool(b bool) Value { return Value{v: cty.BoolVal(b)} }

// List returns a sequence value.
func List(items ...Value) Value {
	if len(items) == 0 {
		return Value{v: cty.EmptyTupleVal}
	}
	vals := make([]cty.Value, len(items))
	for i, it := range items {
		vals[i] = it.Cty()
	}
	return Value{v: cty.TupleVal(vals)}
}

// FromCty validates that cv is wholly known and built only from JSON-compatible
// types before wrapping it.
func FromCty(cv cty.Value) (Value, error) {
	if cv == cty.NilVal {
		return Null(), nil
	}
	if err := checkJSONCompatible(cv, nil); err != nil {
		return Value{}, err
	}
	return Value{v: cv}, nil
}

// FromJSON parses a JSON document into a Value.
func FromJSON(buf []byte) (Value, error) {
	buf = bytes.TrimSpace(buf)
	if len(buf) == 0 {
		return Value{}, errors.New("empty JSON document")
	}
	ty, err := ctyjson.ImpliedType(buf)
	if err != nil {
		return Value{}, fmt.Errorf("unable to infer type from JSON: %w", err)
	}
	cv, err := ctyjson.Unmarshal(buf, ty)
	if err != nil {
		return Value{}, fmt.Errorf("unable to decode JSON: %w", err)
	}
	return Value{v: cv}, nil
}

// FromNative converts a native Go value into a Value. Scalars, []any,
// map[string]any, json.Number and Value are handled directly; other types
// fall back to gocty's implied type.
func FromNative(x any) (Value, error) {
	cv, err := nativeToCty(x)
	if err != nil {
		return Value{}, err
	}
	return Value{v: cv}, nil
}

// MustNative is like FromNative but panics on error. Intended for literals in
// tests and plugin code.
func MustNative(x any) Value {
	v, err := FromNative(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Cty returns the underlying cty.Value.
func (v Value) Cty() cty.Value {
	if v.v == cty.NilVal {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	return v.v
}

// IsNull reports whether v is null.
func (v Value) IsNull() bool {
	return v.v == cty.NilVal || v.v.IsNull()
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	if v.IsNull() || v.v.Type() != cty.String {
		return "", false
	}
	return v.v.AsString(), true
}

// AsFloat returns the number held by v as a float64.
func (v Value) AsFloat() (float64, bool) {
	if v.IsNull() || v.v.Type() != cty.Number {
		return 0, false
	}
	f, _ := v.v.AsBigFloat().Float64()
	return f, true
}

// AsInt returns the number held by v if it is an exact int64.
func (v Value) AsInt() (int64, bool) {
	if v.IsNull() || v.v.Type() != cty.Number {
		return 0, false
	}
	i, acc := v.v.AsBigFloat().Int64()
	if acc != big.Exact {
		return 0, false
	}
	return i, true
}

// AsBool returns the bool held by v.
func (v Value) AsBool() (bool, bool) {
	if v.IsNull() || v.v.Type() != cty.Bool {
		return false, false
	}
	return v.v.True(), true
}

// AsList returns the elements of a sequence value.
func (v Value) AsList() ([]Value, bool) {
	if v.IsNull() {
		return nil, false
	}
	ty := v.v.Type()
	if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
		return nil, false
	}
	out := make([]Value, 0, v.v.LengthInt())
	it := v.v.ElementIterator()
	for it.Next() {
		_, el := it.Element()
		out = append(out, Value{v: el})
	}
	return out, true
}

// AsMap returns the attributes of an object value.
func (v Value) AsMap() (Map, bool) {
	if v.IsNull() {
		return nil, false
	}
	ty := v.v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, false
	}
	out := make(Map, v.v.LengthInt())
	it := v.v.ElementIterator()
	for it.Next() {
		k, el := it.Element()
		out[k.AsString()] = Value{v: el}
	}
	return out, true
}

// Native converts v into plain Go values: string, float64, bool, nil,
// []any and map[string]any.
func (v Value) Native() any {
	out, err := ctyToNative(v.Cty())
	if err != nil {
		// Values are validated on construction.
		panic(err)
	}
	return out
}

// Equal reports whether two values have the same JSON representation.
func (v Value) Equal(other Value) bool {
	a, errA := v.MarshalJSON()
	b, errB := other.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// MarshalJSON implements json.Marshaler. Object keys are emitted in sorted
// order, so the encoding is deterministic.
func (v Value) MarshalJSON() ([]byte, error) {
	j, err := ctyToJSONable(v.Cty())
	if err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(buf []byte) error {
	parsed, err := FromJSON(buf)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String returns the JSON text of v.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid value: %v>", err)
	}
	return string(b)
}

func checkJSONCompatible(cv cty.Value, path cty.Path) error {
	if !cv.IsWhollyKnown() {
		return path.NewErrorf("value must be wholly known")
	}
	if cv.IsNull() {
		return nil
	}
	ty := cv.Type()
	switch {
	case ty == cty.Number:
		if cv.AsBigFloat().IsInf() {
			return fmt.Errorf("%w: %s", ErrNonFinite, cv.AsBigFloat().String())
		}
		return nil
	case ty == cty.String, ty == cty.Bool:
		return nil
	case ty.IsListType(), ty.IsTupleType(), ty.IsSetType():
		it := cv.ElementIterator()
		for it.Next() {
			k, el := it.Element()
			if err := checkJSONCompatible(el, path.Index(k)); err != nil {
				return err
			}
		}
		return nil
	case ty.IsObjectType(), ty.IsMapType():
		it := cv.ElementIterator()
		for it.Next() {
			k, el := it.Element()
			if err := checkJSONCompatible(el, path.GetAttr(k.AsString())); err != nil {
				return err
			}
		}
		return nil
	default:
		return path.NewErrorf("unsupported type %s", ty.FriendlyName())
	}
}

// ctyToNative recursively converts a cty.Value to its most natural Go counterpart.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number to float64: %w", err)
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType(), ty.IsTupleType(), ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, el := it.Element()
			n, err := ctyToNative(el)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case ty.IsObjectType(), ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			k, el := it.Element()
			n, err := ctyToNative(el)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", k.AsString(), err)
			}
			out[k.AsString()] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported cty type for native conversion: %s", ty.FriendlyName())
	}
}

// ctyToJSONable is ctyToNative with numbers kept as json.Number so that
// integers and large values survive encoding untouched.
func ctyToJSONable(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.Number:
		return json.Number(v.AsBigFloat().Text('g', -1)), nil
	case ty.IsListType(), ty.IsTupleType(), ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, el := it.Element()
			n, err := ctyToJSONable(el)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case ty.IsObjectType(), ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			k, el := it.Element()
			n, err := ctyToJSONable(el)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = n
		}
		return out, nil
	default:
		return ctyToNative(v)
	}
}

func nativeToCty(x any) (cty.Value, error) {
	switch t := x.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case Value:
		return t.Cty(), nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int32:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case float32:
		return floatToCty(float64(t))
	case float64:
		return floatToCty(t)
	case json.Number:
		return cty.ParseNumberVal(string(t))
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal, nil
		}
		vals := make([]cty.Value, len(t))
		for i, el := range t {
			cv, err := nativeToCty(el)
			if err != nil {
				return cty.NilVal, fmt.Errorf("index %d: %w", i, err)
			}
			vals[i] = cv
		}
		return cty.TupleVal(vals), nil
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(t))
		for _, k := range sortedKeys(t) {
			cv, err := nativeToCty(t[k])
			if err != nil {
				return cty.NilVal, fmt.Errorf("attribute '%s': %w", k, err)
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	case Map:
		return t.Cty(), nil
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Slice {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return nativeToCty(items)
	}

	ty, err := gocty.ImpliedType(x)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type for %T: %w", x, err)
	}
	cv, err := impliedToCty(x, ty)
	if err != nil {
		return cty.NilVal, err
	}
	if err := checkJSONCompatible(cv, nil); err != nil {
		return cty.NilVal, err
	}
	return cv, nil
}

// impliedToCty is gocty.ToCtyValue with the panic cty raises for NaN turned
// into ErrNonFinite.
func impliedToCty(x any, ty cty.Type) (cv cty.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			cv, err = cty.NilVal, fmt.Errorf("%w: converting %T: %v", ErrNonFinite, x, r)
		}
	}()
	return gocty.ToCtyValue(x, ty)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
