package clip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.klb.dev/clipring/internal/content"
)

// xclip reads the CLIPBOARD selection through the xclip tool. It lists the
// owner's TARGETS first so the richest type can be requested.
type xclip struct {
	run     Runner
	timeout time.Duration
}

func newXclip(ctx context.Context, o Options) (Backend, error) {
	if o.Getenv("DISPLAY") == "" {
		return nil, errors.New("DISPLAY not set")
	}
	if _, err := o.Runner.LookPath("xclip"); err != nil {
		return nil, fmt.Errorf("xclip not installed: %w", err)
	}
	b := &xclip{run: o.Runner, timeout: o.Timeout}
	if _, err := b.targets(ctx); err != nil && !errors.Is(err, ErrEmpty) {
		return nil, err
	}
	return b, nil
}

func (b *xclip) Name() string { return "xclip" }

func (b *xclip) targets(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	out, err := b.run.Output(ctx, "xclip", "-selection", "clipboard", "-o", "-t", "TARGETS")
	if err != nil {
		// "target TARGETS not available" when the selection has no owner.
		if exitCode(err) == 1 {
			return nil, ErrEmpty
		}
		return nil, err
	}
	return splitLines(out), nil
}

func (b *xclip) Read(ctx context.Context) (Observation, error) {
	targets, err := b.targets(ctx)
	if err != nil {
		return Observation{}, err
	}
	return observe(targets, func(mime string) ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		data, err := b.run.Output(ctx, "xclip", "-selection", "clipboard", "-o", "-t", mime)
		if exitCode(err) == 1 {
			return nil, ErrEmpty
		}
		return data, err
	})
}

func (b *xclip) Write(ctx context.Context, c content.Content) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	mime := c.MIME
	if c.Kind == content.Text {
		mime = "UTF8_STRING"
	}
	if err := b.run.Input(ctx, c.Data, "xclip", "-selection", "clipboard", "-i", "-t", mime); err != nil {
		return fmt.Errorf("xclip: %w", err)
	}
	return nil
}

func (b *xclip) Close() error { return nil }

// xsel only moves text.
type xsel struct {
	run     Runner
	timeout time.Duration
}

func newXsel(ctx context.Context, o Options) (Backend, error) {
	if o.Getenv("DISPLAY") == "" {
		return nil, errors.New("DISPLAY not set")
	}
	if _, err := o.Runner.LookPath("xsel"); err != nil {
		return nil, fmt.Errorf("xsel not installed: %w", err)
	}
	b := &xsel{run: o.Runner, timeout: o.Timeout}
	if _, err := b.Read(ctx); err != nil && !errors.Is(err, ErrEmpty) && !errors.Is(err, ErrUnsupported) {
		return nil, err
	}
	return b, nil
}

func (b *xsel) Name() string { return "xsel" }

func (b *xsel) Read(ctx context.Context) (Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	out, err := b.run.Output(ctx, "xsel", "--clipboard", "--output")
	if err != nil {
		return Observation{}, err
	}
	return observe([]string{content.MIMEText}, func(string) ([]byte, error) { return out, nil })
}

func (b *xsel) Write(ctx context.Context, c content.Content) error {
	if c.Kind != content.Text {
		return fmt.Errorf("%w: xsel only handles text", ErrUnsupported)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.run.Input(ctx, c.Data, "xsel", "--clipboard", "--input"); err != nil {
		return fmt.Errorf("xsel: %w", err)
	}
	return nil
}

func (b *xsel) Close() error { return nil }
