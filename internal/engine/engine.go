// Package engine owns the clipboard history daemon: it wires the backend,
// monitor, history store, hotkey listener, paste injector and event bus
// together and runs them under one lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"go.klb.dev/clipring/internal/clip"
	"go.klb.dev/clipring/internal/config"
	"go.klb.dev/clipring/internal/content"
	"go.klb.dev/clipring/internal/history"
	"go.klb.dev/clipring/internal/hotkey"
	"go.klb.dev/clipring/internal/hub"
	"go.klb.dev/clipring/internal/inject"
	"go.klb.dev/clipring/internal/input"
	"go.klb.dev/clipring/internal/monitor"
)

// Components named in Degraded events and Status.
const (
	ComponentClipboard = "clipboard"
	ComponentHotkeys   = "hotkeys"
	ComponentInject    = "inject"
	ComponentSnapshot  = "snapshot"
)

const (
	source = "engine"

	// SnapshotDelay batches history changes into one snapshot write.
	SnapshotDelay = 2 * time.Second

	// releaseWait bounds how long a hotkey paste waits for the chord keys
	// to be let go, so the injected chord is not combined with them.
	releaseWait = time.Second
)

// deviceCheckInterval paces the hotkeys health check.
var deviceCheckInterval = time.Second

// Options replaces the real devices, mainly for tests.
type Options struct {
	// Backend skips probing when set.
	Backend clip.Backend
	// Clip configures backend probing.
	Clip clip.Options
	// Source replaces the evdev reader.
	Source hotkey.Source
	// Keyboard replaces the uinput virtual keyboard.
	Keyboard inject.Keyboard
}

// Engine is the running daemon core.
type Engine struct {
	cfg      config.Config
	store    *history.Store
	bus      *hub.Hub
	suppress *monitor.Suppressor
	backend  clip.Backend
	monitor  *monitor.Monitor
	listener *hotkey.Listener
	// noKeyboards is set while the hotkeys component is degraded for lack
	// of devices. Owned by watchDevices once Run starts.
	noKeyboards bool
	injector *inject.Injector
	started  time.Time

	dirty chan struct{}
	subs  atomic.Uint64
}

// New builds an Engine. Missing capabilities do not fail construction; they
// are recorded as Degraded events and show up in Status.
func New(ctx context.Context, cfg config.Config, opts Options) (*Engine, error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("engine: capacity must be at least 1")
	}
	e := &Engine{
		cfg:      cfg,
		store:    history.New(cfg.Capacity),
		bus:      hub.New(),
		suppress: monitor.NewSuppressor(cfg.SuppressWindow),
		started:  time.Now(),
		dirty:    make(chan struct{}, 1),
	}

	if cfg.Snapshot != "" {
		if err := e.store.Load(cfg.Snapshot); err != nil {
			slog.Warn("history snapshot unreadable, starting empty", "path", cfg.Snapshot, "err", err)
			e.degrade(ComponentSnapshot, err)
		} else if n := e.store.Len(); n > 0 {
			slog.Info("history restored", "path", cfg.Snapshot, "entries", n)
		}
		e.store.OnChange(e.markDirty)
	}

	e.backend = opts.Backend
	if e.backend == nil {
		b, err := clip.Open(ctx, cfg.Backends, opts.Clip)
		if err != nil {
			slog.Error("clipboard unavailable, history capture disabled", "err", err)
			e.degrade(ComponentClipboard, err)
		} else {
			e.backend = b
		}
	}
	var writer inject.ClipboardWriter = unavailable{}
	if e.backend != nil {
		writer = e.backend
		e.monitor = monitor.New(e.backend, e.store, e.suppress, e.bus, monitor.Config{
			PollInterval:    cfg.PollInterval,
			SkipSensitive:   cfg.SkipSensitive,
			NotifySensitive: cfg.NotifySensitive,
			MaxItemSize:     cfg.MaxItemSize,
		})
	}

	if !cfg.NoHotkeys && len(cfg.Bindings) > 0 {
		e.openListener(opts.Source)
	}

	var (
		kb    inject.Keyboard
		kbErr error
	)
	if !cfg.NoInject {
		kb = opts.Keyboard
		if kb == nil {
			kb, kbErr = inject.OpenKeyboard(cfg.UinputPath)
		}
		if kbErr != nil {
			slog.Warn("virtual keyboard unavailable, pastes will only set the clipboard", "err", kbErr)
			e.degrade(ComponentInject, kbErr)
		}
	}
	e.injector = inject.New(e.store, writer, e.suppress, kb, kbErr, inject.Config{
		SettleDelay: cfg.SettleDelay,
		Timeout:     cfg.InjectTimeout,
		PasteKeys:   cfg.PasteKeys,
		WriteOnly:   cfg.NoInject,
	})
	return e, nil
}

func (e *Engine) openListener(src hotkey.Source) {
	if src == nil {
		r, err := input.New(input.Config{
			Dir:          e.cfg.InputDir,
			ExcludeNames: []string{inject.VirtualKeyboardName},
		})
		if err != nil {
			slog.Error("hotkeys disabled", "err", err)
			e.degrade(ComponentHotkeys, err)
			return
		}
		src = r
	}
	e.listener = hotkey.NewListener(src, e.cfg.Bindings)
	n, err := e.listener.Open()
	if n == 0 {
		if err == nil {
			err = errors.New("no keyboard devices found")
		}
		slog.Warn("no input devices readable, waiting for hot-plug", "err", err)
		e.degrade(ComponentHotkeys, err)
		e.noKeyboards = true
	}
}

// Run drives every component until ctx is cancelled, then releases the
// virtual keyboard and backend and writes a final snapshot.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine started",
		"capacity", e.cfg.Capacity,
		"backend", e.backendName(),
		"hotkeys", e.listener != nil,
		"snapshot", e.cfg.Snapshot,
	)
	g, gctx := errgroup.WithContext(ctx)
	// Keeps the group alive when every component is disabled.
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if e.monitor != nil {
		g.Go(func() error { return e.monitor.Run(gctx) })
	}
	if e.listener != nil {
		g.Go(func() error { return e.listener.Run(gctx) })
		g.Go(func() error { return e.dispatch(gctx) })
		g.Go(func() error { return e.watchDevices(gctx) })
	}
	if e.cfg.Snapshot != "" {
		g.Go(func() error { return e.snapshots(gctx) })
	}
	err := g.Wait()

	if cerr := e.injector.Close(); cerr != nil {
		slog.Warn("closing virtual keyboard", "err", cerr)
	}
	if e.backend != nil {
		if cerr := e.backend.Close(); cerr != nil {
			slog.Warn("closing clipboard backend", "err", cerr)
		}
	}
	if e.cfg.Snapshot != "" {
		e.saveSnapshot()
	}
	slog.Info("engine stopped")
	return err
}

// dispatch turns hotkey intents into actions.
func (e *Engine) dispatch(ctx context.Context) error {
	for in := range e.listener.Intents() {
		a := in.Binding.Action
		ev := hub.Event{Kind: hub.HotkeyActivated, Source: "hotkey", Action: a.Kind.String(), Slot: a.Slot}
		if a.Kind != hotkey.QuickPaste {
			e.bus.Publish(ev)
			continue
		}
		list := e.store.List()
		if a.Slot < 1 || a.Slot > len(list) {
			slog.Info("quick paste slot empty", "slot", a.Slot, "entries", len(list))
			continue
		}
		ev.EntryID = list[a.Slot-1].ID
		e.bus.Publish(ev)
		e.waitReleased(ctx)
		// Failures are logged by the injector.
		_, _ = e.Paste(ctx, ev.EntryID, "")
	}
	return nil
}

// waitReleased blocks until no physical key is held, ctx ends, or
// releaseWait passes.
func (e *Engine) waitReleased(ctx context.Context) {
	m := e.listener.Matcher()
	deadline := time.Now().Add(releaseWait)
	for m.HeldCount() > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (e *Engine) markDirty() {
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

// snapshots writes the history file once changes have been quiet for
// SnapshotDelay.
func (e *Engine) snapshots(ctx context.Context) error {
	var (
		timer   *time.Timer
		timeout <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case <-e.dirty:
			if timer == nil {
				timer = time.NewTimer(SnapshotDelay)
			} else {
				timer.Reset(SnapshotDelay)
			}
			timeout = timer.C
		case <-timeout:
			timeout = nil
			e.saveSnapshot()
		}
	}
}

func (e *Engine) saveSnapshot() {
	if err := e.store.Save(e.cfg.Snapshot); err != nil {
		slog.Error("history snapshot failed", "path", e.cfg.Snapshot, "err", err)
		return
	}
	slog.Debug("history snapshot written", "path", e.cfg.Snapshot, "entries", e.store.Len())
}

// watchDevices keeps the hotkeys Degraded state in step with the keyboards
// the listener can read: it recovers once hot-plug brings one in and
// degrades again when the last one goes away.
func (e *Engine) watchDevices(ctx context.Context) error {
	t := time.NewTicker(deviceCheckInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		n := len(e.listener.Devices())
		switch {
		case e.noKeyboards && n > 0:
			e.noKeyboards = false
			slog.Info("keyboard available, hotkeys active", "devices", n)
			e.restore(ComponentHotkeys, fmt.Sprintf("%d keyboard(s) readable", n))
		case !e.noKeyboards && n == 0:
			e.noKeyboards = true
			slog.Warn("last keyboard gone, waiting for hot-plug")
			e.degrade(ComponentHotkeys, errors.New("no keyboard devices connected"))
		}
	}
}

func (e *Engine) restore(component, msg string) {
	e.bus.Publish(hub.Event{
		Kind:      hub.Degraded,
		Source:    source,
		Component: component,
		Message:   msg,
		Recovered: true,
	})
}

func (e *Engine) degrade(component string, err error) {
	e.bus.Publish(hub.Event{
		Kind:      hub.Degraded,
		Source:    source,
		Component: component,
		Message:   err.Error(),
	})
}

func (e *Engine) backendName() string {
	if e.backend == nil {
		return ""
	}
	return e.backend.Name()
}

func (e *Engine) nextSubscriberID() string {
	return "sub-" + strconv.FormatUint(e.subs.Add(1), 10)
}

// unavailable stands in for a backend when none could be opened.
type unavailable struct{}

func (unavailable) Write(context.Context, content.Content) error {
	return clip.ErrBackendUnavailable
}
