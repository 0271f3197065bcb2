// Package clip provides a unified interface to the Linux clipboard across
// display protocols. Backends are tried in a configured order and the first
// that responds wins:
//
//	wayland  wl-clipboard subprocesses (wl-paste/wl-copy), push via wl-paste --watch
//	x11      in-process X11 selection client via golang.design/x/clipboard
//	xclip    xclip subprocess, typed reads via TARGETS
//	xsel     xsel subprocess, text only
//	memory   in-process clipboard for tests and dry runs
package clip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.klb.dev/clipring/internal/content"
)

var (
	// ErrBackendUnavailable is returned by Open when no configured backend
	// responds.
	ErrBackendUnavailable = errors.New("clip: no clipboard backend available")

	// ErrEmpty means the clipboard currently holds nothing.
	ErrEmpty = errors.New("clip: clipboard is empty")

	// ErrUnsupported means the clipboard offers no type we can store, or a
	// write was asked for content the backend cannot represent.
	ErrUnsupported = errors.New("clip: unsupported clipboard content")
)

// DefaultBackends is the order tried when none is configured.
var DefaultBackends = []string{"wayland", "x11", "xclip", "xsel"}

// Observation is one read of the clipboard, normalized to a single Content.
type Observation struct {
	Content content.Content
	// Types lists every MIME type (or X11 target) the owner offered.
	Types []string
	// Sensitive is set when the owner flagged the content as not to be kept.
	Sensitive bool
}

// Backend is the interface every clipboard mechanism satisfies.
type Backend interface {
	// Name returns the backend's short name.
	Name() string

	// Read returns the current clipboard contents. ErrEmpty when there is
	// nothing to read.
	Read(ctx context.Context) (Observation, error)

	// Write replaces the clipboard contents with c.
	Write(ctx context.Context, c content.Content) error

	// Close releases subprocesses and other resources held by the backend.
	Close() error
}

// Watcher is implemented by backends that can push change notifications.
// The returned channel receives a value after each change and is closed when
// the watch ends (ctx cancelled, subprocess died). Callers should Read after
// each signal and fall back to polling when the channel closes.
type Watcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Options configures backend construction.
type Options struct {
	// Runner starts helper subprocesses. Defaults to ExecRunner.
	Runner Runner
	// Getenv reads the environment. Defaults to os.Getenv.
	Getenv func(string) string
	// Timeout bounds every individual read or write. Defaults to 2s.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Runner == nil {
		o.Runner = ExecRunner{}
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	return o
}

type constructor func(ctx context.Context, o Options) (Backend, error)

var registry = map[string]constructor{
	"wayland": newWayland,
	"x11":     newX11,
	"xclip":   newXclip,
	"xsel":    newXsel,
	"memory":  func(context.Context, Options) (Backend, error) { return NewMemory(), nil },
}

// Known reports whether name is a registered backend.
func Known(name string) bool {
	_, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Open tries the named backends in order and returns the first that
// responds. The error wraps ErrBackendUnavailable when none does.
func Open(ctx context.Context, names []string, o Options) (Backend, error) {
	o = o.withDefaults()
	if len(names) == 0 {
		names = DefaultBackends
	}
	var tried []string
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		ctor, ok := registry[name]
		if !ok {
			slog.Warn("unknown clipboard backend, skipping", "backend", name)
			continue
		}
		b, err := ctor(ctx, o)
		if err != nil {
			slog.Debug("clipboard backend unavailable", "backend", name, "err", err)
			tried = append(tried, name)
			continue
		}
		slog.Info("clipboard backend selected", "backend", b.Name())
		return b, nil
	}
	return nil, fmt.Errorf("%w (tried %s)", ErrBackendUnavailable, strings.Join(tried, ", "))
}

// observe turns the offered types and a fetch function into an Observation.
func observe(types []string, fetch func(mime string) ([]byte, error)) (Observation, error) {
	if len(types) == 0 {
		return Observation{}, ErrEmpty
	}
	mime, ok := content.Preferred(types)
	if !ok {
		return Observation{Types: types}, fmt.Errorf("%w: offered %v", ErrUnsupported, types)
	}
	data, err := fetch(mime)
	if err != nil {
		return Observation{}, err
	}
	if len(data) == 0 {
		return Observation{}, ErrEmpty
	}
	c, err := content.New(mime, data)
	if err != nil {
		return Observation{Types: types}, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return Observation{Content: c, Types: types, Sensitive: content.IsSensitive(types)}, nil
}

func splitLines(b []byte) []string {
	var out []string
	for _, l := range strings.Split(string(b), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
