package engine

import (
	"context"
	"log/slog"
	"time"

	"go.klb.dev/clipring/internal/history"
	"go.klb.dev/clipring/internal/hub"
	"go.klb.dev/clipring/internal/inject"
)

// SubscriberBuffer is the event queue depth of each Subscribe call.
const SubscriberBuffer = 64

// Status is a snapshot of the daemon's health.
type Status struct {
	StartedAt   time.Time     `json:"started_at"`
	Backend     string        `json:"backend"`
	Entries     int           `json:"entries"`
	Pinned      int           `json:"pinned"`
	Capacity    int           `json:"capacity"`
	Devices     []string      `json:"devices"`
	Hotkeys     []HotkeyInfo  `json:"hotkeys"`
	Inject      bool          `json:"inject"`
	Subscribers int           `json:"subscribers"`
	Degraded    []Degradation `json:"degraded,omitempty"`
}

// HotkeyInfo describes one configured binding.
type HotkeyInfo struct {
	Chord  string `json:"chord"`
	Action string `json:"action"`
}

// Degradation names a component running with reduced function.
type Degradation struct {
	Component string `json:"component"`
	Message   string `json:"message"`
}

// ListHistory returns every entry, newest first.
func (e *Engine) ListHistory() []history.Entry { return e.store.List() }

// Get returns one entry with its full content.
func (e *Engine) Get(id uint64) (history.Entry, error) { return e.store.Get(id) }

// Paste writes the entry to the clipboard and types the paste chord. A
// returned inject.ErrInjectionFailed with Result.ClipboardWritten set is a
// partial success.
func (e *Engine) Paste(ctx context.Context, id uint64, targetHint string) (inject.Result, error) {
	return e.injector.Inject(ctx, inject.Request{EntryID: id, TargetHint: targetHint})
}

// Pin protects an entry from eviction.
func (e *Engine) Pin(id uint64) error {
	return e.mutate("pinned", id, e.store.Pin)
}

// Unpin makes an entry evictable again.
func (e *Engine) Unpin(id uint64) error {
	return e.mutate("unpinned", id, e.store.Unpin)
}

// Delete removes an entry.
func (e *Engine) Delete(id uint64) error {
	return e.mutate("deleted", id, e.store.Delete)
}

func (e *Engine) mutate(reason string, id uint64, fn func(uint64) error) error {
	if err := fn(id); err != nil {
		return err
	}
	slog.Info("history "+reason, "id", id)
	e.bus.Publish(hub.Event{Kind: hub.HistoryChanged, Source: source, Reason: reason, EntryID: id})
	return nil
}

// ClearHistory removes every entry, or every non-pinned one, and returns how
// many were removed.
func (e *Engine) ClearHistory(keepPinned bool) int {
	n := e.store.Clear(keepPinned)
	slog.Info("history cleared", "removed", n, "keep_pinned", keepPinned)
	if n > 0 {
		e.bus.Publish(hub.Event{Kind: hub.HistoryChanged, Source: source, Reason: "cleared"})
	}
	return n
}

// Subscribe registers for events of the given kinds (all when empty). The
// returned cancel function must be called to unregister.
func (e *Engine) Subscribe(kinds ...hub.Kind) (<-chan hub.Event, func()) {
	ch := hub.NewChannel(e.nextSubscriberID(), SubscriberBuffer, kinds...)
	e.bus.Register(ch)
	return ch.C(), func() { e.bus.Unregister(ch) }
}

// Bus exposes the event bus.
func (e *Engine) Bus() *hub.Hub { return e.bus }

// Status reports the live state of every component.
func (e *Engine) Status() Status {
	entries := e.store.List()
	st := Status{
		StartedAt:   e.started,
		Backend:     e.backendName(),
		Entries:     len(entries),
		Capacity:    e.store.Capacity(),
		Subscribers: e.bus.Subscribers(),
	}
	for _, en := range entries {
		if en.Pinned {
			st.Pinned++
		}
	}
	if e.listener != nil {
		for _, d := range e.listener.Devices() {
			name := d.Name
			if name == "" {
				name = d.Path
			}
			st.Devices = append(st.Devices, name)
		}
		for _, b := range e.listener.Matcher().Bindings() {
			st.Hotkeys = append(st.Hotkeys, HotkeyInfo{Chord: b.Chord.String(), Action: b.Action.String()})
		}
	}
	st.Inject, _ = e.injector.Available()
	for _, ev := range e.bus.Degradations() {
		st.Degraded = append(st.Degraded, Degradation{Component: ev.Component, Message: ev.Message})
	}
	return st
}
