// Package filter keeps the active filter selections of a viewer session and
// compiles them into a single visibility predicate.
package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidCategory is returned when a toggle names a category that was
// never registered. It points at a UI binding mistake, not a user error.
var ErrInvalidCategory = errors.New("invalid filter category")

// Policy is how a category combines its selected values.
type Policy string

const (
	// Any matches a feature holding at least one selected value.
	Any Policy = "any"
	// All matches a feature holding every selected value.
	All Policy = "all"
)

// ParsePolicy parses a policy name, case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case Any:
		return Any, nil
	case All:
		return All, nil
	}
	return "", fmt.Errorf("unknown combination policy %q", s)
}

// Definition declares a category.
type Definition struct {
	ID        string
	Attribute string // feature attribute to test; defaults to ID
	Policy    Policy
}

func (d Definition) attribute() string {
	if d.Attribute != "" {
		return d.Attribute
	}
	return d.ID
}

type category struct {
	def      Definition
	selected map[string]struct{}
}

// Registry holds the selected values per category. It is owned by a single
// session and is not safe for concurrent use.
type Registry struct {
	order      []string
	categories map[string]*category
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{categories: make(map[string]*category)}
}

// Register discards all previous state and creates one empty selection per
// definition. Duplicate ids keep the first definition.
func (r *Registry) Register(defs []Definition) {
	r.order = r.order[:0]
	r.categories = make(map[string]*category, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			continue
		}
		if _, exists := r.categories[d.ID]; exists {
			continue
		}
		if d.Policy == "" {
			d.Policy = Any
		}
		r.order = append(r.order, d.ID)
		r.categories[d.ID] = &category{def: d, selected: make(map[string]struct{})}
	}
}

// Toggle flips membership of value in the category's selection and reports
// whether the value is now selected.
func (r *Registry) Toggle(categoryID, value string) (bool, error) {
	c, ok := r.categories[categoryID]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrInvalidCategory, categoryID)
	}
	if _, on := c.selected[value]; on {
		delete(c.selected, value)
		return false, nil
	}
	c.selected[value] = struct{}{}
	return true, nil
}

// Selected returns the category's selected values, sorted.
func (r *Registry) Selected(categoryID string) ([]string, error) {
	c, ok := r.categories[categoryID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, categoryID)
	}
	return c.values(), nil
}

// IsSelected reports whether value is selected in the category.
func (r *Registry) IsSelected(categoryID, value string) bool {
	c, ok := r.categories[categoryID]
	if !ok {
		return false
	}
	_, on := c.selected[value]
	return on
}

// Clear empties one category.
func (r *Registry) Clear(categoryID string) error {
	c, ok := r.categories[categoryID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, categoryID)
	}
	c.selected = make(map[string]struct{})
	return nil
}

// ClearAll empties every category.
func (r *Registry) ClearAll() {
	for _, c := range r.categories {
		c.selected = make(map[string]struct{})
	}
}

// Categories returns the registered definitions in registration order.
func (r *Registry) Categories() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		defs = append(defs, r.categories[id].def)
	}
	return defs
}

// Len returns the number of registered categories.
func (r *Registry) Len() int { return len(r.order) }

func (c *category) values() []string {
	vals := make([]string, 0, len(c.selected))
	for v := range c.selected {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return vals
}
