// Package inject pastes a history entry into the focused application: it puts
// the entry on the clipboard, waits for the selection to settle, then types
// the paste chord on a virtual keyboard.
package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.klb.dev/clipring/internal/content"
	"go.klb.dev/clipring/internal/history"
)

var (
	// ErrClipboardWriteFailed means nothing changed: the clipboard write
	// itself failed.
	ErrClipboardWriteFailed = errors.New("inject: clipboard write failed")

	// ErrInjectionFailed means the clipboard now holds the entry but the
	// paste keystroke could not be delivered. The user can paste by hand.
	ErrInjectionFailed = errors.New("inject: paste keystroke failed")
)

const (
	DefaultSettleDelay = 120 * time.Millisecond
	DefaultTimeout     = 2 * time.Second
)

// Entries looks up history entries. *history.Store satisfies it.
type Entries interface {
	Get(id uint64) (history.Entry, error)
}

// ClipboardWriter is the write half of a clipboard backend.
type ClipboardWriter interface {
	Write(ctx context.Context, c content.Content) error
}

// Suppressor marks writes the monitor must not record.
type Suppressor interface {
	Expect(fp content.Fingerprint)
	Cancel(fp content.Fingerprint)
}

// Request asks for one entry to be pasted. TargetHint is informational; the
// keystroke always goes to whatever window has focus.
type Request struct {
	EntryID    uint64
	TargetHint string
}

// Result reports how far an injection got. ClipboardWritten with Injected
// false is the partial-success case.
type Result struct {
	EntryID          uint64 `json:"entry_id"`
	ClipboardWritten bool   `json:"clipboard_written"`
	Injected         bool   `json:"injected"`
}

// Config tunes the injector.
type Config struct {
	// SettleDelay is the pause between the clipboard write and the keystroke.
	SettleDelay time.Duration
	// Timeout bounds the clipboard write, and separately the settle delay
	// plus keystroke. It must exceed SettleDelay.
	Timeout time.Duration
	// PasteKeys is pressed in order and released in reverse.
	PasteKeys []uint16
	// WriteOnly skips the keystroke entirely.
	WriteOnly bool
}

// Injector performs one injection at a time.
type Injector struct {
	mu sync.Mutex
	// typing is held while keys are down. A keystroke that outlived its
	// deadline keeps it until its keys are released.
	typing   sync.Mutex
	entries  Entries
	clip     ClipboardWriter
	suppress Suppressor
	kb       Keyboard
	kbErr    error
	cfg      Config
}

// New returns an Injector. kb may be nil, in which case kbErr explains why
// and every injection ends in ErrInjectionFailed after the clipboard write.
func New(entries Entries, w ClipboardWriter, s Suppressor, kb Keyboard, kbErr error, cfg Config) *Injector {
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if kb == nil && kbErr == nil && !cfg.WriteOnly {
		kbErr = errors.New("no virtual keyboard")
	}
	return &Injector{entries: entries, clip: w, suppress: s, kb: kb, kbErr: kbErr, cfg: cfg}
}

// Inject writes the entry to the clipboard and types the paste chord.
// Once the clipboard write starts the call ignores ctx cancellation, but
// every step is bounded by the configured timeout.
func (i *Injector) Inject(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	res := Result{EntryID: req.EntryID}
	e, err := i.entries.Get(req.EntryID)
	if err != nil {
		return res, err
	}

	i.suppress.Expect(e.Fingerprint)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.Timeout)
	err = i.clip.Write(wctx, e.Content)
	cancel()
	if err != nil {
		i.suppress.Cancel(e.Fingerprint)
		slog.Warn("paste: clipboard write failed", "id", e.ID, "err", err)
		return res, fmt.Errorf("%w: %w", ErrClipboardWriteFailed, err)
	}
	res.ClipboardWritten = true

	if i.cfg.WriteOnly {
		slog.Info("paste: clipboard set", "id", e.ID)
		return res, nil
	}
	if i.kb == nil {
		slog.Warn("paste: keystroke unavailable, clipboard set", "id", e.ID, "err", i.kbErr)
		return res, fmt.Errorf("%w: %w", ErrInjectionFailed, i.kbErr)
	}

	kctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.Timeout)
	defer cancel()
	kb, keys, settle := i.kb, i.cfg.PasteKeys, i.cfg.SettleDelay
	done := make(chan error, 1)
	go func() { done <- i.typeChord(kctx, kb, keys, settle) }()
	select {
	case err = <-done:
	case <-kctx.Done():
		select {
		case err = <-done:
		default:
			err = fmt.Errorf("timed out after %s", i.cfg.Timeout)
		}
	}
	if err != nil {
		slog.Warn("paste: keystroke failed, clipboard set", "id", e.ID, "err", err)
		return res, fmt.Errorf("%w: %w", ErrInjectionFailed, err)
	}
	res.Injected = true
	slog.Info("paste: injected", "id", e.ID, "target", req.TargetHint)
	return res, nil
}

// typeChord waits out the settle delay, then presses keys in order and
// releases them in reverse. No key goes down once ctx is done; keys already
// down are always released.
func (i *Injector) typeChord(ctx context.Context, kb Keyboard, keys []uint16, settle time.Duration) error {
	i.typing.Lock()
	defer i.typing.Unlock()

	t := time.NewTimer(settle)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}

	var errs []error
	pressed := 0
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := kb.KeyDown(int(k)); err != nil {
			errs = append(errs, fmt.Errorf("key %d down: %w", k, err))
			break
		}
		pressed++
	}
	for j := pressed - 1; j >= 0; j-- {
		k := keys[j]
		if err := kb.KeyUp(int(k)); err != nil {
			errs = append(errs, fmt.Errorf("key %d up: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the virtual keyboard.
func (i *Injector) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.kb == nil {
		return nil
	}
	err := i.kb.Close()
	i.kb = nil
	i.kbErr = errors.New("injector closed")
	return err
}

// Available reports whether keystrokes can be synthesized, and why not.
func (i *Injector) Available() (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cfg.WriteOnly {
		return false, nil
	}
	return i.kb != nil, i.kbErr
}
