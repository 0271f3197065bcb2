package hotkey

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"go.klb.dev/clipring/internal/input"
)

// Source produces raw key events. *input.Reader satisfies it.
type Source interface {
	Scan() (int, error)
	Run(ctx context.Context) error
	Events() <-chan input.Event
	Devices() []input.Device
}

// Intent is a fired binding.
type Intent struct {
	Binding Binding
	Device  string
	Time    time.Time
}

// Listener feeds a Source through a Matcher and emits Intents.
type Listener struct {
	src     Source
	matcher *Matcher
	intents chan Intent
}

// NewListener returns a Listener over src for bindings.
func NewListener(src Source, bindings []Binding) *Listener {
	return &Listener{
		src:     src,
		matcher: NewMatcher(bindings),
		intents: make(chan Intent, 8),
	}
}

// Intents returns the activation channel. It is closed when Run returns.
func (l *Listener) Intents() <-chan Intent { return l.intents }

// Matcher exposes the state machine for status reporting.
func (l *Listener) Matcher() *Matcher { return l.matcher }

// Devices lists the keyboards currently being read.
func (l *Listener) Devices() []input.Device { return l.src.Devices() }

// Open scans for keyboards and returns how many were opened. Zero devices is
// not fatal: the listener keeps waiting for hot-plugged ones.
func (l *Listener) Open() (int, error) {
	n, err := l.src.Scan()
	if err != nil {
		slog.Warn("some input devices could not be opened", "err", err)
	}
	return n, err
}

// Run reads events until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	defer close(l.intents)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.src.Run(ctx) })
	g.Go(func() error {
		for ev := range l.src.Events() {
			b, ok := l.matcher.Feed(ev)
			if !ok {
				continue
			}
			slog.Info("hotkey activated", "chord", b.Chord.String(), "action", b.Action.String(), "device", ev.Device)
			select {
			case l.intents <- Intent{Binding: b, Device: ev.Device, Time: ev.Time}:
			case <-ctx.Done():
			}
		}
		return nil
	})
	return g.Wait()
}
