package filter

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// Subject is anything a predicate can be evaluated against.
type Subject interface {
	// Terms returns the filterable terms of an attribute, or nil if absent.
	Terms(attribute string) []string
}

// Clause is the constraint one non-empty category puts on a feature.
type Clause struct {
	Category  string   `json:"category"`
	Attribute string   `json:"attribute"`
	Policy    Policy   `json:"policy"`
	Values    []string `json:"values"`
}

func (c Clause) match(s Subject) bool {
	have := make(map[string]struct{})
	for _, t := range s.Terms(c.Attribute) {
		have[t] = struct{}{}
	}

	if c.Policy == All {
		for _, v := range c.Values {
			if _, ok := have[v]; !ok {
				return false
			}
		}
		return true
	}

	for _, v := range c.Values {
		if _, ok := have[v]; ok {
			return true
		}
	}
	return false
}

// expression renders the clause as a style filter expression. The attribute
// must hold an array of terms (see service.NormalizeFeatures); the "array"
// assertion makes any other shape fail the clause instead of falling back to
// a substring test.
func (c Clause) expression() []any {
	op := "any"
	if c.Policy == All {
		op = "all"
	}
	haystack := []any{"array", []any{"get", c.Attribute}}
	expr := []any{op}
	for _, v := range c.Values {
		expr = append(expr, []any{"in", v, haystack})
	}
	return expr
}

// Predicate is the conjunction of all clauses. The zero value matches
// every feature.
type Predicate struct {
	Clauses []Clause `json:"clauses"`
}

// Compile builds the combined predicate from the registry's full state.
// An empty or unregistered registry compiles to the match-everything
// predicate.
func Compile(r *Registry) Predicate {
	var p Predicate
	if r == nil {
		return p
	}
	for _, id := range r.order {
		c := r.categories[id]
		if len(c.selected) == 0 {
			continue
		}
		p.Clauses = append(p.Clauses, Clause{
			Category:  id,
			Attribute: c.def.attribute(),
			Policy:    c.def.Policy,
			Values:    c.values(),
		})
	}
	return p
}

// MatchesAll reports whether the predicate imposes no constraint.
func (p Predicate) MatchesAll() bool { return len(p.Clauses) == 0 }

// Match evaluates the predicate against s.
func (p Predicate) Match(s Subject) bool {
	for _, c := range p.Clauses {
		if !c.match(s) {
			return false
		}
	}
	return true
}

// Expression returns the predicate as a Mapbox/MapLibre style filter
// expression. A nil result clears the layer filter.
func (p Predicate) Expression() any {
	if p.MatchesAll() {
		return nil
	}
	expr := []any{"all"}
	for _, c := range p.Clauses {
		expr = append(expr, c.expression())
	}
	return expr
}

// Fingerprint returns a stable hash of the predicate. Equal registry
// contents always produce equal fingerprints.
func (p Predicate) Fingerprint() uint64 {
	if p.MatchesAll() {
		return 0
	}
	data, _ := json.Marshal(p.Clauses)
	return xxhash.Sum64(data)
}
