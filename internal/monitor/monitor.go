// Package monitor watches the clipboard and records genuine copies in the
// history store.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.klb.dev/clipring/internal/clip"
	"go.klb.dev/clipring/internal/content"
	"go.klb.dev/clipring/internal/history"
	"go.klb.dev/clipring/internal/hub"
)

const (
	MinPollInterval     = 100 * time.Millisecond
	MaxPollInterval     = 5 * time.Second
	DefaultPollInterval = 300 * time.Millisecond
)

// Publisher receives monitor events.
type Publisher interface {
	Publish(hub.Event)
}

// Config tunes the monitor.
type Config struct {
	PollInterval time.Duration
	// SkipSensitive drops content flagged by password managers.
	SkipSensitive bool
	// NotifySensitive publishes SensitiveSkipped when content is dropped.
	NotifySensitive bool
	// MaxItemSize drops payloads larger than this many bytes; 0 disables.
	MaxItemSize int
}

// Monitor observes one clipboard backend.
type Monitor struct {
	backend  clip.Backend
	store    *history.Store
	suppress *Suppressor
	bus      Publisher
	cfg      Config

	lastFP content.Fingerprint
}

// New returns a Monitor. The poll interval is clamped to
// [MinPollInterval, MaxPollInterval].
func New(b clip.Backend, store *history.Store, s *Suppressor, bus Publisher, cfg Config) *Monitor {
	cfg.PollInterval = ClampInterval(cfg.PollInterval)
	return &Monitor{backend: b, store: store, suppress: s, bus: bus, cfg: cfg}
}

// ClampInterval bounds d to the supported poll range; zero means default.
func ClampInterval(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultPollInterval
	}
	return min(max(d, MinPollInterval), MaxPollInterval)
}

// Run observes the clipboard until ctx is cancelled. Backends that push
// notifications are watched; when the watch ends the monitor falls back to
// polling.
func (m *Monitor) Run(ctx context.Context) error {
	if w, ok := m.backend.(clip.Watcher); ok {
		ch, err := w.Watch(ctx)
		if err != nil {
			slog.Warn("clipboard watch unavailable, polling", "backend", m.backend.Name(), "err", err)
		} else {
			slog.Info("clipboard monitor watching", "backend", m.backend.Name())
			m.check(ctx, true)
			for range ch {
				m.check(ctx, true)
			}
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("clipboard watch ended, polling", "backend", m.backend.Name())
		}
	}

	slog.Info("clipboard monitor polling", "backend", m.backend.Name(), "interval", m.cfg.PollInterval)
	m.check(ctx, false)
	t := time.NewTicker(m.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.check(ctx, false)
		}
	}
}

// check reads the clipboard once and applies the capture rules. notified
// is set when the backend signalled a selection change; polled reads of
// unchanged content are not copies.
func (m *Monitor) check(ctx context.Context, notified bool) {
	obs, err := m.backend.Read(ctx)
	if err != nil {
		if !errors.Is(err, clip.ErrEmpty) && ctx.Err() == nil {
			slog.Debug("clipboard read failed", "backend", m.backend.Name(), "err", err)
		}
		return
	}
	m.observe(obs, notified)
}

func (m *Monitor) observe(obs clip.Observation, notified bool) {
	fp := content.Sum(obs.Content)
	if !notified && fp == m.lastFP {
		// A write of what is already on the clipboard is invisible to
		// polling; its token must not outlive this read.
		if m.suppress != nil {
			m.suppress.Cancel(fp)
		}
		return
	}
	m.lastFP = fp

	if m.suppress != nil && m.suppress.Observe(fp) {
		slog.Debug("own clipboard write ignored", "fingerprint", fp.Short())
		return
	}
	if head, ok := m.store.Head(); ok && head.Fingerprint == fp {
		return
	}
	if obs.Sensitive && m.cfg.SkipSensitive {
		slog.Info("sensitive clipboard content skipped", "backend", m.backend.Name())
		if m.cfg.NotifySensitive {
			m.bus.Publish(hub.Event{Kind: hub.SensitiveSkipped, Source: "monitor"})
		}
		return
	}
	if m.cfg.MaxItemSize > 0 && len(obs.Content.Data) > m.cfg.MaxItemSize {
		slog.Info("clipboard content too large, skipped",
			"size_bytes", len(obs.Content.Data), "max_bytes", m.cfg.MaxItemSize)
		return
	}

	e, outcome := m.store.InsertOrBump(obs.Content, "")
	if outcome == history.Unchanged {
		return
	}
	hub.LogContent("clipboard captured", m.backend.Name(), e.ID, e.Content)
	m.bus.Publish(hub.Event{
		Kind:    hub.HistoryChanged,
		Source:  "monitor",
		Reason:  outcome.String(),
		EntryID: e.ID,
	})
}
