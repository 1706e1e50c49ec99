// Package hover tracks the single feature currently emphasized under the
// pointer.
package hover

// Key identifies a rendered feature: the id the map assigned to it and the
// source it was drawn from.
type Key struct {
	FeatureID string `json:"id"`
	SourceID  string `json:"source"`
}

// Emphasizer applies or removes emphasis on one rendered feature.
type Emphasizer interface {
	SetEmphasis(key Key, on bool)
}

// EmphasizerFunc adapts a function to Emphasizer.
type EmphasizerFunc func(key Key, on bool)

func (f EmphasizerFunc) SetEmphasis(key Key, on bool) { f(key, on) }

// Tracker is a two-state machine: empty, or hovering one key. At most one
// key is emphasized at any time; the previous key is always released before
// the next one is set.
type Tracker struct {
	out     Emphasizer
	current Key
	active  bool
}

// NewTracker creates an empty tracker emitting to out.
func NewTracker(out Emphasizer) *Tracker {
	return &Tracker{out: out}
}

// Enter moves emphasis to key. Re-entering the held key is a no-op.
func (t *Tracker) Enter(key Key) {
	if t.active && t.current == key {
		return
	}
	if t.active {
		t.out.SetEmphasis(t.current, false)
	}
	t.current = key
	t.active = true
	t.out.SetEmphasis(key, true)
}

// Leave releases the held key, if any.
func (t *Tracker) Leave() {
	if !t.active {
		return
	}
	held := t.current
	t.current = Key{}
	t.active = false
	t.out.SetEmphasis(held, false)
}

// Current returns the held key and whether one is held.
func (t *Tracker) Current() (Key, bool) {
	return t.current, t.active
}
