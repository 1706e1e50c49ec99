package feature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the shape of an attribute value.
type Kind uint8

const (
	KindRaw Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "raw"
	}
}

// Value is a tagged attribute value. Anything that is not a string, number,
// bool or list of strings is kept as raw JSON and passed through untouched.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	List []string
	Raw  json.RawMessage
}

func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value     { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func List(items ...string) Value { return Value{Kind: KindList, List: items} }

// Terms returns the value split into the individual terms a filter compares
// against. Lists yield their elements, strings are split on commas.
func (v Value) Terms() []string {
	switch v.Kind {
	case KindList:
		return v.List
	case KindString:
		if v.Str == "" {
			return nil
		}
		parts := strings.Split(v.Str, ",")
		terms := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				terms = append(terms, p)
			}
		}
		return terms
	case KindNumber:
		return []string{strconv.FormatFloat(v.Num, 'f', -1, 64)}
	case KindBool:
		return []string{strconv.FormatBool(v.Bool)}
	}
	return nil
}

// Interface returns the value as a plain Go value suitable for JSON encoding.
func (v Value) Interface() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindList:
		if v.List == nil {
			return []string{}
		}
		return v.List
	default:
		return v.Raw
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindRaw {
		if len(v.Raw) == 0 {
			return []byte("null"), nil
		}
		return v.Raw, nil
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty attribute value")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '[':
		var items []string
		if err := json.Unmarshal(trimmed, &items); err == nil {
			*v = List(items...)
			return nil
		}
	case 'n', '{':
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		*v = Number(n)
		return nil
	}

	*v = Value{Kind: KindRaw, Raw: append(json.RawMessage(nil), trimmed...)}
	return nil
}

// FromAny converts a decoded JSON value (as found in GeoJSON properties) to
// a tagged Value.
func FromAny(v any) Value {
	switch x := v.(type) {
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case int:
		return Number(float64(x))
	case []string:
		return List(x...)
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return raw(v)
			}
			items = append(items, s)
		}
		return List(items...)
	}
	return raw(v)
}

func raw(v any) Value {
	data, err := json.Marshal(v)
	if err != nil {
		return Value{Kind: KindRaw}
	}
	return Value{Kind: KindRaw, Raw: data}
}
