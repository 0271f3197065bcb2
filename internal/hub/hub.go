// Package hub implements the in-process event bus.
// Subscribers register, receive events via a non-blocking Send, and may
// restrict themselves to a subset of event kinds. Events from a single source
// are delivered in publish order; there is no ordering across sources beyond
// the event timestamp.
package hub

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Kind identifies the type of event.
type Kind string

const (
	HistoryChanged   Kind = "history_changed"
	HotkeyActivated  Kind = "hotkey_activated"
	Degraded         Kind = "degraded"
	SensitiveSkipped Kind = "sensitive_skipped"
)

// Event is delivered to subscribers. Only the fields relevant to Kind are set.
type Event struct {
	Kind   Kind      `json:"kind"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`

	// HistoryChanged
	Reason  string `json:"reason,omitempty"`
	EntryID uint64 `json:"entry_id,omitempty"`

	// HotkeyActivated
	Action string `json:"action,omitempty"`
	Slot   int    `json:"slot,omitempty"`

	// Degraded
	Component string `json:"component,omitempty"`
	Message   string `json:"message,omitempty"`
	// Recovered marks the component healthy again and clears its sticky
	// state.
	Recovered bool `json:"recovered,omitempty"`
}

// Subscriber is anything that can receive events from the hub.
type Subscriber interface {
	ID() string
	// Kinds lists the event kinds wanted; empty means all.
	Kinds() []Kind
	// Send delivers an event to the subscriber. Must be non-blocking.
	Send(Event)
}

// Hub routes events between publishers and all registered subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]Subscriber
	sticky map[string]Event // component → last Degraded event
	now    func() time.Time
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		subs:   make(map[string]Subscriber),
		sticky: make(map[string]Event),
		now:    time.Now,
	}
}

// Register adds a subscriber and immediately replays the sticky Degraded
// events it is interested in.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	replay := make([]Event, 0, len(h.sticky))
	for _, ev := range h.sticky {
		replay = append(replay, ev)
	}
	total := len(h.subs)
	h.mu.Unlock()

	slog.Debug("subscriber registered", "subscriber", s.ID(), "total", total)

	for _, ev := range replay {
		if wants(s, ev.Kind) {
			s.Send(ev)
		}
	}
}

// Unregister removes a subscriber from the hub.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	delete(h.subs, s.ID())
	total := len(h.subs)
	h.mu.Unlock()

	slog.Debug("subscriber unregistered", "subscriber", s.ID(), "total", total)
}

// Publish stamps ev and fans it out to every subscriber that wants its kind.
// Degraded events are kept per component and replayed to late subscribers
// until a Recovered event for the same component arrives.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = h.now()
	}

	h.mu.Lock()
	if ev.Kind == Degraded {
		if ev.Recovered {
			delete(h.sticky, ev.Component)
		} else {
			h.sticky[ev.Component] = ev
		}
	}
	targets := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		if wants(s, ev.Kind) {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.Send(ev)
	}
}

// Degradations returns the current sticky Degraded events ordered by
// component.
func (h *Hub) Degradations() []Event {
	h.mu.RLock()
	out := make([]Event, 0, len(h.sticky))
	for _, ev := range h.sticky {
		out = append(out, ev)
	}
	h.mu.RUnlock()
	slices.SortFunc(out, func(a, b Event) int { return strings.Compare(a.Component, b.Component) })
	return out
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func wants(s Subscriber, k Kind) bool {
	kinds := s.Kinds()
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
