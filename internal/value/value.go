// Package value implements the engine's dynamic parameter type: a tagged union
// carrying literals, references, and opaque artifacts between steps (spec §9).
package value

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Kind tags the active variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindRef
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindRef:
		return "ref"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Ref is a resolved reference identity: the (step, output) pair plus the stable
// hash computed over the reference string (spec §4.4/§9). Step/Output are kept
// even after resolution so diagnostics can name the source.
type Ref struct {
	Step   string
	Output string
	Hash   string
}

func (r Ref) String() string {
	return fmt.Sprintf("steps.%s.outputs.parameters.%s", r.Step, r.Output)
}

// Table is implemented by artifacts that carry tabular data (rows x columns).
// FingerprintFn (internal/fingerprint) special-cases values implementing Table;
// anything else falls through to the Sequence/Map/Other rules.
type Table interface {
	Shape() (rows, cols int)
	Columns() []string
	// RowSample returns up to k rows rendered as strings, in row order.
	RowSample(k int) [][]string
}

// Opaque carries an artifact (table, byte blob, or any other engine-specific
// payload) between steps. Only its fingerprint participates in step signatures;
// the handle itself is never serialized.
type Opaque struct {
	TypeTag string
	Handle  any
}

// Value is the tagged union used for step parameters, return values, and
// catalog entries.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	list   []Value
	m      map[string]Value
	ref    Ref
	opaque Opaque
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func List(items []Value) Value   { return Value{kind: KindList, list: items} }
func Map(m map[string]Value) Value {
	return Value{kind: KindMap, m: m}
}
func MakeRef(r Ref) Value { return Value{kind: KindRef, ref: r} }
func MakeOpaque(o Opaque) Value {
	return Value{kind: KindOpaque, opaque: o}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v Value) String_() (string, bool)  { return v.s, v.kind == KindString }
func (v Value) List() ([]Value, bool)    { return v.list, v.kind == KindList }
func (v Value) Map() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}
func (v Value) Ref() (Ref, bool)       { return v.ref, v.kind == KindRef }
func (v Value) Opaque() (Opaque, bool) { return v.opaque, v.kind == KindOpaque }

// FromAny lifts a plain Go value (as decoded from YAML/JSON) into a Value.
// Reference strings are NOT rewritten here; that is ReferenceResolver's job
// (internal/stepspec) since it needs the full reference table to compute hashes.
func FromAny(in any) Value {
	switch t := in.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, FromAny(item))
		}
		return List(items)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = FromAny(item)
		}
		return Map(m)
	case Value:
		return t
	default:
		return MakeOpaque(Opaque{TypeTag: fmt.Sprintf("%T", in), Handle: in})
	}
}

// Decode lowers a bound parameter map into a typed struct, letting an
// Invocable declare its own parameter shape instead of indexing args by hand.
func Decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "param",
	})
	if err != nil {
		return fmt.Errorf("value: build decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("value: decode parameters: %w", err)
	}
	return nil
}

// ToAny lowers a Value back to a plain Go value (opposite of FromAny), used
// when handing resolved parameters to an Invocable via Decode.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, 0, len(v.list))
		for _, item := range v.list {
			out = append(out, item.ToAny())
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.ToAny()
		}
		return out
	case KindRef:
		return v.ref
	case KindOpaque:
		return v.opaque.Handle
	default:
		return nil
	}
}

// CanonicalText renders a deterministic textual form of a Value for inclusion
// in a step signature (spec §4.4 "sorted_params"). Map keys are sorted so the
// text is stable regardless of map iteration order; references render as
// {__ref__, hash} rather than their resolved value, per spec.
func (v Value) CanonicalText() string {
	var b strings.Builder
	v.writeCanonical(&b)
	return b.String()
}

func (v Value) writeCanonical(b *strings.Builder) {
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		fmt.Fprintf(b, "%t", v.b)
	case KindInt:
		fmt.Fprintf(b, "%d", v.i)
	case KindFloat:
		fmt.Fprintf(b, "%g", v.f)
	case KindString:
		fmt.Fprintf(b, "%q", v.s)
	case KindList:
		b.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				b.WriteByte(',')
			}
			item.writeCanonical(b)
		}
		b.WriteByte(']')
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%q:", k)
			v.m[k].writeCanonical(b)
		}
		b.WriteByte('}')
	case KindRef:
		fmt.Fprintf(b, "{__ref__:%q,hash:%q}", v.ref.String(), v.ref.Hash)
	case KindOpaque:
		fmt.Fprintf(b, "opaque(%s)", v.opaque.TypeTag)
	}
}
