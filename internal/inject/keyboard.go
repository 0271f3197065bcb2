package inject

import (
	"errors"
	"fmt"

	"github.com/bendahl/uinput"
	"golang.org/x/sys/unix"

	"go.klb.dev/clipring/internal/input"
)

const (
	// VirtualKeyboardName is the name our uinput device registers under. The
	// input reader skips it so synthetic keystrokes never feed the matcher.
	VirtualKeyboardName = "clipring virtual keyboard"

	DefaultUinputPath = "/dev/uinput"
)

// Keyboard synthesizes key events.
type Keyboard interface {
	KeyDown(code int) error
	KeyUp(code int) error
	Close() error
}

// OpenKeyboard creates the uinput virtual keyboard at path. Permission
// problems wrap input.ErrPermissionDenied.
func OpenKeyboard(path string) (Keyboard, error) {
	if path == "" {
		path = DefaultUinputPath
	}
	// uinput reports every open failure the same way, so check access first
	// to give an actionable error.
	if err := unix.Access(path, unix.W_OK); err != nil {
		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
			return nil, fmt.Errorf("%w: %s (add yourself to the group owning it, or install a udev rule)",
				input.ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("inject: %s: %w", path, err)
	}
	kb, err := uinput.CreateKeyboard(path, []byte(VirtualKeyboardName))
	if err != nil {
		return nil, fmt.Errorf("inject: create virtual keyboard: %w", err)
	}
	return kb, nil
}
