package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which member of the Value union is set.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "null"
	}
}

// Value is a dynamically typed configuration value.
// The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	list []Value
	m    map[string]Value
}

func IntValue(v int64) Value     { return Value{kind: KindInt, i: v} }
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }
func BoolValue(v bool) Value     { return Value{kind: KindBool, b: v} }
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

func ListValue(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

func MapValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInt returns the integer member. Floats are not narrowed.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the numeric member, widening integers.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// Equal reports deep equality. Int and float members never compare equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := other.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNull:
		return "null"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(data)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.native())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	parsed, err := fromJSON(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseValue decodes a JSON literal, falling back to a plain string when s
// is not valid JSON. Key/value backends that only carry strings use it.
func ParseValue(s string) Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return StringValue(s)
	}

	var v Value
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return StringValue(s)
	}
	return v
}

func (v Value) native() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.native()
		}
		return out
	default:
		return nil
	}
}

func fromJSON(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		return numberValue(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := fromJSON(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return ListValue(items...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := fromJSON(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return MapValue(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON type %T", raw)
	}
}

func numberValue(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IntValue(i), nil
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("invalid number %q", s)
	}
	return FloatValue(f), nil
}
