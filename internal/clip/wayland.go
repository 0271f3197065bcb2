package clip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.klb.dev/clipring/internal/content"
)

// wayland drives wl-clipboard, which speaks the compositor's data-control
// protocol and so sees every selection change without a focused surface.
type wayland struct {
	run     Runner
	timeout time.Duration

	mu      sync.Mutex
	streams []io.Closer
}

func newWayland(ctx context.Context, o Options) (Backend, error) {
	if o.Getenv("WAYLAND_DISPLAY") == "" {
		return nil, errors.New("WAYLAND_DISPLAY not set")
	}
	for _, tool := range []string{"wl-paste", "wl-copy"} {
		if _, err := o.Runner.LookPath(tool); err != nil {
			return nil, fmt.Errorf("%s not installed: %w", tool, err)
		}
	}
	b := &wayland{run: o.Runner, timeout: o.Timeout}
	if _, err := b.types(ctx); err != nil && !errors.Is(err, ErrEmpty) {
		return nil, err
	}
	return b, nil
}

func (b *wayland) Name() string { return "wayland" }

func (b *wayland) types(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	out, err := b.run.Output(ctx, "wl-paste", "--list-types")
	if err != nil {
		// wl-paste exits 1 with "No selection" when nothing is copied.
		if exitCode(err) == 1 {
			return nil, ErrEmpty
		}
		return nil, err
	}
	return splitLines(out), nil
}

func (b *wayland) Read(ctx context.Context) (Observation, error) {
	types, err := b.types(ctx)
	if err != nil {
		return Observation{}, err
	}
	return observe(types, func(mime string) ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		data, err := b.run.Output(ctx, "wl-paste", "--no-newline", "--type", mime)
		if exitCode(err) == 1 {
			return nil, ErrEmpty
		}
		return data, err
	})
}

func (b *wayland) Write(ctx context.Context, c content.Content) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.run.Input(ctx, c.Data, "wl-copy", "--type", c.MIME); err != nil {
		return fmt.Errorf("wl-copy: %w", err)
	}
	return nil
}

// Watch starts a long-lived wl-paste --watch which prints a line on every
// selection change.
func (b *wayland) Watch(ctx context.Context) (<-chan struct{}, error) {
	r, err := b.run.Stream(ctx, "wl-paste", "--watch", "echo")
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.streams = append(b.streams, r)
	b.mu.Unlock()
	return signalLines(r), nil
}

func (b *wayland) Close() error {
	b.mu.Lock()
	streams := b.streams
	b.streams = nil
	b.mu.Unlock()
	for _, s := range streams {
		_ = s.Close()
	}
	return nil
}
