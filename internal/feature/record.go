// Package feature holds the immutable per-feature detail records shown when
// a point of interest is clicked.
package feature

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Well-known attribute names produced by the dataset builder.
const (
	AttrName            = "name"
	AttrAddress         = "address"
	AttrAmenities       = "amenities"
	AttrPublicSpaceType = "public_space_type"
)

// Attribute is a single named value.
type Attribute struct {
	Name  string
	Value Value
}

// Attributes is an ordered attribute mapping. Order is the order of the
// source document and is preserved through encoding.
type Attributes struct {
	order []string
	index map[string]Value
}

// NewAttributes builds an ordered mapping. Later duplicates replace the
// value but keep the first position.
func NewAttributes(attrs ...Attribute) Attributes {
	a := Attributes{index: make(map[string]Value, len(attrs))}
	for _, attr := range attrs {
		a.set(attr.Name, attr.Value)
	}
	return a
}

func (a *Attributes) set(name string, v Value) {
	if a.index == nil {
		a.index = make(map[string]Value)
	}
	if _, exists := a.index[name]; !exists {
		a.order = append(a.order, name)
	}
	a.index[name] = v
}

// Get returns the named value.
func (a Attributes) Get(name string) (Value, bool) {
	v, ok := a.index[name]
	return v, ok
}

// Len returns the number of attributes.
func (a Attributes) Len() int { return len(a.order) }

// Names returns attribute names in document order.
func (a Attributes) Names() []string {
	return append([]string(nil), a.order...)
}

// Each calls fn for every attribute in document order.
func (a Attributes) Each(fn func(name string, v Value)) {
	for _, name := range a.order {
		fn(name, a.index[name])
	}
}

// Terms returns the filterable terms of the named attribute.
func (a Attributes) Terms(name string) []string {
	v, ok := a.index[name]
	if !ok {
		return nil
	}
	return v.Terms()
}

// Flatten returns the attributes as a plain map, the shape handed to the
// details panel.
func (a Attributes) Flatten() map[string]any {
	out := make(map[string]any, len(a.order))
	for _, name := range a.order {
		out[name] = a.index[name].Interface()
	}
	return out
}

// MarshalJSON writes the attributes as a JSON object in document order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range a.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(a.index[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("attributes: expected object, got %v", tok)
	}

	*a = Attributes{index: make(map[string]Value)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("attributes: expected key, got %v", tok)
		}
		var v Value
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("attributes: %s: %w", name, err)
		}
		a.set(name, v)
	}
	_, err = dec.Token()
	return err
}

// Record is one feature's detail record.
type Record struct {
	ID         string     `json:"id"`
	Attributes Attributes `json:"attributes"`
}

// Name returns the display name, if present.
func (r Record) Name() string {
	v, _ := r.Attributes.Get(AttrName)
	return v.Str
}

// Address returns the street address, if present.
func (r Record) Address() string {
	v, _ := r.Attributes.Get(AttrAddress)
	return v.Str
}

// Amenities returns the amenity labels.
func (r Record) Amenities() []string {
	return r.Attributes.Terms(AttrAmenities)
}

// PublicSpaceTypes returns the public space type labels.
func (r Record) PublicSpaceTypes() []string {
	return r.Attributes.Terms(AttrPublicSpaceType)
}
