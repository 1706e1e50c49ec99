package session

import (
	"github.com/joeblew999/plat-poi/internal/filter"
	"github.com/joeblew999/plat-poi/internal/hover"
	"github.com/joeblew999/plat-poi/internal/interact"
)

// Effect is one outward command produced by a session event. Effects are
// returned in the order they were emitted and must be applied in that order.
type Effect interface {
	effect()
}

// Emphasis turns the hover emphasis of one rendered feature on or off.
type Emphasis struct {
	Key hover.Key
	On  bool
}

// Cursor switches the map cursor between pointer and default.
type Cursor struct {
	Pointer bool
}

// DetailsReady carries a clicked feature's details.
type DetailsReady struct {
	Details interact.Details
}

// ShowDetails brings the details panel forward.
type ShowDetails struct{}

// Selection reports a filter value changing state.
type Selection struct {
	Category string
	Value    string
	Selected bool
}

// Visibility carries the recompiled visibility predicate.
type Visibility struct {
	Predicate filter.Predicate
}

func (Emphasis) effect()     {}
func (Cursor) effect()       {}
func (DetailsReady) effect() {}
func (ShowDetails) effect()  {}
func (Selection) effect()    {}
func (Visibility) effect()   {}

// sink collects effects while a session event runs. It is the session's
// emphasizer and click observer.
type sink struct {
	effects []Effect
}

func (s *sink) SetEmphasis(key hover.Key, on bool) {
	s.effects = append(s.effects, Emphasis{Key: key, On: on})
}

func (s *sink) DetailsAvailable(d interact.Details) {
	s.effects = append(s.effects, DetailsReady{Details: d})
}

func (s *sink) ShowDetails() {
	s.effects = append(s.effects, ShowDetails{})
}

func (s *sink) emit(e Effect) {
	s.effects = append(s.effects, e)
}

func (s *sink) drain() []Effect {
	out := s.effects
	s.effects = nil
	return out
}
