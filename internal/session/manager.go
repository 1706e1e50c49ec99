package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-poi/internal/filter"
	"github.com/joeblew999/plat-poi/internal/interact"
)

// ErrUnknownSession is returned when a session id is not (or no longer) held.
var ErrUnknownSession = errors.New("unknown session")

// DefaultMaxSessions bounds the number of live sessions when unset.
const DefaultMaxSessions = 1024

// Manager creates sessions and keeps the most recently used ones. Evicted
// and removed sessions are closed and remembered, so late events for them
// fail with ErrClosed rather than ErrUnknownSession.
type Manager struct {
	lookup interact.Lookup
	log    zerolog.Logger

	// mu orders category changes against session creation.
	mu       sync.Mutex
	defs     []filter.Definition
	sessions *lru.Cache[string, *Session]
	gone     *lru.Cache[string, struct{}]
}

// NewManager creates a manager holding at most maxSessions sessions.
func NewManager(lookup interact.Lookup, maxSessions int, log zerolog.Logger) (*Manager, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	m := &Manager{lookup: lookup, log: log}

	gone, err := lru.New[string, struct{}](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("creating session tombstones: %w", err)
	}
	m.gone = gone

	cache, err := lru.NewWithEvict(maxSessions, func(id string, s *Session) {
		s.Close()
		m.gone.Add(id, struct{}{})
		m.log.Debug().Str("session", id).Msg("session closed")
	})
	if err != nil {
		return nil, fmt.Errorf("creating session cache: %w", err)
	}
	m.sessions = cache
	return m, nil
}

// Create starts a new session registered with the current categories.
func (m *Manager) Create() (*Session, []Effect) {
	s := New(uuid.NewString(), m.lookup, m.log)

	m.mu.Lock()
	defer m.mu.Unlock()

	effects := s.Register(m.defs)
	if evicted := m.sessions.Add(s.ID, s); evicted {
		m.log.Info().Int("max", m.sessions.Len()).Msg("session limit reached, oldest session evicted")
	}
	m.log.Debug().Str("session", s.ID).Msg("session created")
	return s, effects
}

// Get returns a live session. Sessions that were closed by eviction or
// removal fail with ErrClosed.
func (m *Manager) Get(id string) (*Session, error) {
	if s, ok := m.sessions.Get(id); ok {
		return s, nil
	}
	if m.gone.Contains(id) {
		return nil, fmt.Errorf("%w: %q", ErrClosed, id)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
}

// Remove closes and forgets a session.
func (m *Manager) Remove(id string) {
	m.sessions.Remove(id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// SetCategories installs new filter categories and re-registers every live
// session, discarding their selections.
func (m *Manager) SetCategories(defs []filter.Definition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.defs = append([]filter.Definition(nil), defs...)
	for _, id := range m.sessions.Keys() {
		if s, ok := m.sessions.Peek(id); ok {
			s.Register(defs)
		}
	}
}

// Categories returns the installed filter categories.
func (m *Manager) Categories() []filter.Definition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]filter.Definition(nil), m.defs...)
}

// Close closes every session.
func (m *Manager) Close() {
	m.sessions.Purge()
}
