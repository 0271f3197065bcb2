package clip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.design/x/clipboard"

	"go.klb.dev/clipring/internal/content"
)

// x11 is an in-process selection client. It only distinguishes text and PNG
// and cannot see the password-manager hint.
type x11 struct{}

func newX11(_ context.Context, o Options) (Backend, error) {
	if o.Getenv("DISPLAY") == "" {
		return nil, errors.New("DISPLAY not set")
	}
	// clipboard.Init is called here rather than in init() so that CLI
	// sub-commands that never open a backend don't touch the display.
	if err := clipboard.Init(); err != nil {
		return nil, err
	}
	slog.Warn("x11 backend cannot detect password-manager hints; sensitive content will be recorded")
	return x11{}, nil
}

func (x11) Name() string { return "x11" }

func (x11) Read(_ context.Context) (Observation, error) {
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		c, err := content.New("image/png", img)
		if err != nil {
			return Observation{}, err
		}
		return Observation{Content: c, Types: []string{"image/png"}}, nil
	}
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		c, err := content.New(content.MIMEText, text)
		if err != nil {
			return Observation{}, fmt.Errorf("%w: %w", ErrUnsupported, err)
		}
		return Observation{Content: c, Types: []string{content.MIMEText}}, nil
	}
	return Observation{}, ErrEmpty
}

func (x11) Write(_ context.Context, c content.Content) error {
	switch {
	case c.Kind == content.Text:
		clipboard.Write(clipboard.FmtText, c.Data)
	case c.MIME == "image/png":
		clipboard.Write(clipboard.FmtImage, c.Data)
	default:
		return fmt.Errorf("%w: x11 backend cannot write %s", ErrUnsupported, c.MIME)
	}
	return nil
}

// Watch merges the library's per-format change streams.
func (x11) Watch(ctx context.Context) (<-chan struct{}, error) {
	text := clipboard.Watch(ctx, clipboard.FmtText)
	img := clipboard.Watch(ctx, clipboard.FmtImage)
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for text != nil || img != nil {
			select {
			case _, ok := <-text:
				if !ok {
					text = nil
					continue
				}
			case _, ok := <-img:
				if !ok {
					img = nil
					continue
				}
			case <-ctx.Done():
				return
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return ch, nil
}

func (x11) Close() error { return nil }
