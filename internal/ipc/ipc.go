// Package ipc locates and opens the local Unix socket the daemon serves its
// command interface on. CLI sub-commands and UI collaborators dial it.
package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// ErrAlreadyRunning is returned by Listen when another daemon answers on the
// socket.
var ErrAlreadyRunning = errors.New("ipc: daemon already running")

const socketName = "clipring.sock"

// SocketPath returns the IPC socket path:
//
//   - $CLIPRING_SOCKET when set
//   - $XDG_RUNTIME_DIR/clipring.sock
//   - $TMPDIR/clipring-<uid>.sock otherwise
func SocketPath() string {
	if s := os.Getenv("CLIPRING_SOCKET"); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, socketName)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("clipring-%d.sock", os.Getuid()))
}

// IsRunning reports whether a daemon appears to be listening at path. It
// does a cheap dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	c, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates the socket at path, readable by the owner only. A stale
// socket from a crashed run is removed; a live one is left alone.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, fmt.Errorf("%w at %s", ErrAlreadyRunning, path)
	}
	_ = os.Remove(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ipc: socket dir: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("ipc: chmod %s: %w", path, err)
	}
	return ln, nil
}
