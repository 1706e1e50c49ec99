// Package session owns the interaction state of one viewer: its hover slot,
// its filter selections and its click dispatcher. Events on a session are
// serialized and each returns the effects it produced. While a stream is
// attached, the same effects are queued for it in emission order.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-poi/internal/filter"
	"github.com/joeblew999/plat-poi/internal/hover"
	"github.com/joeblew999/plat-poi/internal/interact"
)

// ErrClosed is returned for events on a session that was torn down.
var ErrClosed = errors.New("session closed")

// ErrAttached is returned when a second stream attaches to a session.
var ErrAttached = errors.New("session already has a stream")

// Session is one viewer's interaction state.
type Session struct {
	ID      string
	Created time.Time

	mu         sync.Mutex
	out        *sink
	registry   *filter.Registry
	tracker    *hover.Tracker
	dispatcher *interact.Dispatcher
	predicate  filter.Predicate
	closed     bool

	attached bool
	pending  []Effect
	ready    chan struct{}
	done     chan struct{}
}

// New creates a session resolving clicks through lookup.
func New(id string, lookup interact.Lookup, log zerolog.Logger) *Session {
	out := &sink{}
	tracker := hover.NewTracker(out)
	return &Session{
		ID:         id,
		Created:    time.Now(),
		out:        out,
		registry:   filter.NewRegistry(),
		tracker:    tracker,
		dispatcher: interact.NewDispatcher(lookup, tracker, out, log.With().Str("session", id).Logger()),
		ready:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Attach routes the session's effects to a stream. The stream waits on the
// returned channel and collects queued effects with Pending. The current
// visibility is queued first so the stream starts from the session's state.
func (s *Session) Attach() (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.attached {
		return nil, ErrAttached
	}
	s.attached = true
	s.out.emit(Visibility{Predicate: s.predicate})
	s.flush()
	return s.ready, nil
}

// Detach stops queueing effects and drops any not yet collected.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.pending = nil
}

// Pending returns and clears the effects queued for the attached stream.
func (s *Session) Pending() []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// flush drains the effects of the running event, queueing them for the
// attached stream. Callers hold mu.
func (s *Session) flush() []Effect {
	effects := s.out.drain()
	if s.attached && len(effects) > 0 {
		s.pending = append(s.pending, effects...)
		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
	return effects
}

// Register replaces the filter categories and recompiles.
func (s *Session) Register(defs []filter.Definition) []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.registry.Register(defs)
	s.recompile()
	return s.flush()
}

// Hover handles the pointer moving over a rendered feature.
func (s *Session) Hover(key hover.Key) ([]Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	s.out.emit(Cursor{Pointer: true})
	s.dispatcher.HoverMove(key)
	return s.flush(), nil
}

// Leave handles the pointer leaving the rendered layer.
func (s *Session) Leave() ([]Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	s.out.emit(Cursor{Pointer: false})
	s.dispatcher.HoverLeave()
	return s.flush(), nil
}

// Click handles a click on a feature. Unknown ids produce no effects.
func (s *Session) Click(featureID string, at orb.Point) ([]Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	s.dispatcher.Click(featureID, at)
	return s.flush(), nil
}

// Toggle flips a filter value and recompiles the visibility predicate.
// Unregistered categories fail with filter.ErrInvalidCategory and change
// nothing.
func (s *Session) Toggle(categoryID, value string) ([]Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	on, err := s.registry.Toggle(categoryID, value)
	if err != nil {
		return nil, err
	}
	s.out.emit(Selection{Category: categoryID, Value: value, Selected: on})
	s.recompile()
	return s.flush(), nil
}

// ClearFilters empties every category and recompiles.
func (s *Session) ClearFilters() ([]Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	s.registry.ClearAll()
	s.recompile()
	return s.flush(), nil
}

// Predicate returns the current visibility predicate.
func (s *Session) Predicate() filter.Predicate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predicate
}

// IsSelected reports whether a filter value is selected.
func (s *Session) IsSelected(categoryID, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.IsSelected(categoryID, value)
}

// Hovered returns the currently emphasized feature, if any.
func (s *Session) Hovered() (hover.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Current()
}

// Close releases any held emphasis and marks the session closed.
func (s *Session) Close() []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.tracker.Leave()
	effects := s.flush()
	s.closed = true
	close(s.done)
	return effects
}

// recompile regenerates the predicate from the whole registry. Callers hold mu.
func (s *Session) recompile() {
	s.predicate = filter.Compile(s.registry)
	s.out.emit(Visibility{Predicate: s.predicate})
}
