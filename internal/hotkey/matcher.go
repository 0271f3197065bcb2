package hotkey

import (
	"sync"

	"go.klb.dev/clipring/internal/input"
)

// State is a binding's position in the chord state machine.
type State int

const (
	// Idle: none of the chord's keys are held.
	Idle State = iota
	// ChordPending: some but not all of the chord's keys are held.
	ChordPending
	// Matched: the full chord is held and has not fired yet.
	Matched
	// Cooldown: the chord fired, or lost to a longer chord, and waits for
	// all its keys to be released.
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ChordPending:
		return "pending"
	case Matched:
		return "matched"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// ChordState is the set of held keys per device. Queries see the union over
// all devices, so a chord split across two keyboards still matches.
type ChordState struct {
	devices map[string]map[uint16]struct{}
}

// NewChordState returns an empty ChordState.
func NewChordState() *ChordState {
	return &ChordState{devices: make(map[string]map[uint16]struct{})}
}

func (s *ChordState) Press(device string, code uint16) {
	keys, ok := s.devices[device]
	if !ok {
		keys = make(map[uint16]struct{})
		s.devices[device] = keys
	}
	keys[code] = struct{}{}
}

func (s *ChordState) Release(device string, code uint16) {
	if keys, ok := s.devices[device]; ok {
		delete(keys, code)
		if len(keys) == 0 {
			delete(s.devices, device)
		}
	}
}

// Reset forgets every key held on device.
func (s *ChordState) Reset(device string) {
	delete(s.devices, device)
}

// Held reports whether code is held on any device.
func (s *ChordState) Held(code uint16) bool {
	for _, keys := range s.devices {
		if _, ok := keys[code]; ok {
			return true
		}
	}
	return false
}

// Count returns the number of distinct held keys.
func (s *ChordState) Count() int {
	seen := make(map[uint16]struct{})
	for _, keys := range s.devices {
		for k := range keys {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}

// Matcher runs every binding's state machine over one merged ChordState.
// It is safe for concurrent use; events from many devices may be fed in any
// interleaving.
type Matcher struct {
	mu       sync.Mutex
	bindings []Binding
	states   []State
	held     *ChordState
}

// NewMatcher returns a Matcher for bindings. Earlier bindings win ties.
func NewMatcher(bindings []Binding) *Matcher {
	return &Matcher{
		bindings: bindings,
		states:   make([]State, len(bindings)),
		held:     NewChordState(),
	}
}

// Bindings returns the configured bindings.
func (m *Matcher) Bindings() []Binding { return m.bindings }

// Feed applies one key event and returns the binding that fired, if any.
// Autorepeat and non-key events are ignored. Disconnect events clear the
// device's keys.
func (m *Matcher) Feed(ev input.Event) (Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Disconnected() {
		m.held.Reset(ev.Device)
		m.update()
		return Binding{}, false
	}
	if ev.Type != input.EvKey {
		return Binding{}, false
	}
	switch ev.Value {
	case input.KeyPress:
		m.held.Press(ev.Device, ev.Code)
	case input.KeyRelease:
		m.held.Release(ev.Device, ev.Code)
		m.update()
		return Binding{}, false
	default:
		return Binding{}, false
	}

	m.update()
	winner := -1
	for i, b := range m.bindings {
		if m.states[i] != Matched {
			continue
		}
		if winner < 0 || better(b, m.bindings[winner], ev.Code) {
			winner = i
		}
	}
	if winner < 0 || !m.bindings[winner].Chord.Contains(ev.Code) {
		return Binding{}, false
	}
	// Every satisfied chord cools down, so a shorter chord sharing the
	// winner's prefix cannot fire on the same hold.
	for i := range m.states {
		if m.states[i] == Matched {
			m.states[i] = Cooldown
		}
	}
	return m.bindings[winner], true
}

// Disconnect clears every key held on device.
func (m *Matcher) Disconnect(device string) {
	m.Feed(input.Event{Device: device, Err: input.ErrDeviceDisconnected})
}

// better reports whether a should beat b: more key groups first, then the
// chord that includes the just-pressed key. Equal chords keep config order.
func better(a, b Binding, pressed uint16) bool {
	if a.Chord.Len() != b.Chord.Len() {
		return a.Chord.Len() > b.Chord.Len()
	}
	return a.Chord.Contains(pressed) && !b.Chord.Contains(pressed)
}

// update moves every binding to the state implied by the held keys.
func (m *Matcher) update() {
	for i, b := range m.bindings {
		full := b.Chord.satisfied(m.held.Held)
		some := b.Chord.anyHeld(m.held.Held)
		switch {
		case m.states[i] == Cooldown && some:
			// stays until every key is up
		case full:
			m.states[i] = Matched
		case some:
			m.states[i] = ChordPending
		default:
			m.states[i] = Idle
		}
	}
}

// States returns each binding's current state, in binding order.
func (m *Matcher) States() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.states))
	copy(out, m.states)
	return out
}

// HeldCount returns how many distinct keys are held across all devices.
func (m *Matcher) HeldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held.Count()
}
