package input

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultDir = "/dev/input"

	openRetries   = 5
	openBackoff   = 200 * time.Millisecond
	eventsBuffer  = 256
	shutdownGrace = time.Second
)

// Config selects which devices a Reader opens.
type Config struct {
	// Dir holds the event* nodes. Defaults to /dev/input.
	Dir string
	// ExcludeNames lists device names never read, e.g. the daemon's own
	// virtual keyboard.
	ExcludeNames []string
	// Open opens one node; defaults to OpenNode.
	Open func(path string) (Node, error)
	// IsKeyboard filters opened nodes; defaults to IsKeyboard.
	IsKeyboard func(Node) bool
}

type device struct {
	Device
	node    Node
	removed atomic.Bool
}

// Reader fans key events from every open keyboard into one channel.
type Reader struct {
	cfg Config
	out chan Event

	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	devices map[string]*device
	pending []*device // opened by Scan, started by Run
	wg      sync.WaitGroup
}

// New returns a Reader for the nodes in cfg.Dir.
func New(cfg Config) (*Reader, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.Open == nil {
		cfg.Open = OpenNode
	}
	if cfg.IsKeyboard == nil {
		cfg.IsKeyboard = IsKeyboard
	}
	if fi, err := os.Stat(cfg.Dir); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("input: %s is not a directory", cfg.Dir)
	}
	return &Reader{
		cfg:     cfg,
		out:     make(chan Event, eventsBuffer),
		done:    make(chan struct{}),
		devices: make(map[string]*device),
	}, nil
}

// Events returns the fan-in channel. It is closed when Run returns.
func (r *Reader) Events() <-chan Event { return r.out }

// Devices lists the currently open devices, sorted by path.
func (r *Reader) Devices() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.Device)
	}
	slices.SortFunc(out, func(a, b Device) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// Scan opens every keyboard currently present. It returns the number opened
// and the joined per-device failures; a failure never stops the scan.
func (r *Reader) Scan() (int, error) {
	paths, err := filepath.Glob(filepath.Join(r.cfg.Dir, "event*"))
	if err != nil {
		return 0, err
	}
	var errs []error
	opened := 0
	for _, path := range paths {
		d, err := r.open(path)
		if err != nil {
			slog.Warn("input device skipped", "device", path, "err", err)
			errs = append(errs, err)
			continue
		}
		if d == nil {
			continue
		}
		r.mu.Lock()
		r.pending = append(r.pending, d)
		r.mu.Unlock()
		opened++
	}
	return opened, errors.Join(errs...)
}

// open opens path if it is a keyboard we should read. It returns nil, nil
// for nodes that are filtered out or already open.
func (r *Reader) open(path string) (*device, error) {
	r.mu.Lock()
	_, dup := r.devices[path]
	r.mu.Unlock()
	if dup {
		return nil, nil
	}

	n, err := r.cfg.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("input: open %s: %w", path, err)
	}
	if !r.cfg.IsKeyboard(n) {
		n.Close()
		return nil, nil
	}
	name := nodeName(n, path)
	if slices.Contains(r.cfg.ExcludeNames, name) {
		slog.Debug("input device excluded", "device", path, "name", name)
		n.Close()
		return nil, nil
	}

	d := &device{Device: Device{Path: path, Name: name}, node: n}
	r.mu.Lock()
	r.devices[path] = d
	r.mu.Unlock()
	slog.Info("input device opened", "device", path, "name", name)
	return d, nil
}

// Run starts a reader per device and follows hot-plug until ctx is
// cancelled, then unblocks every reader and waits for them.
func (r *Reader) Run(ctx context.Context) error {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, d := range pending {
		r.start(d)
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(r.cfg.Dir)
	}
	if err != nil {
		slog.Warn("input hot-plug disabled", "dir", r.cfg.Dir, "err", err)
		<-ctx.Done()
	} else {
		r.watch(ctx, watcher)
	}
	if watcher != nil {
		watcher.Close()
	}

	r.shutdown()
	waited := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(shutdownGrace):
		slog.Warn("input readers still blocked at shutdown")
	}
	close(r.out)
	return nil
}

// shutdown revokes every open device so blocked reads return.
func (r *Reader) shutdown() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		devs := make([]*device, 0, len(r.devices))
		for _, d := range r.devices {
			devs = append(devs, d)
		}
		r.mu.Unlock()
		for _, d := range devs {
			if err := d.node.Revoke(); err != nil {
				slog.Debug("input device revoke failed", "device", d.Path, "err", err)
			}
		}
	})
}

func (r *Reader) watch(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				<-ctx.Done()
				return
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), "event") {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				r.wg.Add(1)
				go func() {
					defer r.wg.Done()
					r.attach(ctx, ev.Name)
				}()
			case ev.Has(fsnotify.Remove):
				r.detach(ev.Name)
			}
		case err, ok := <-w.Errors:
			if ok {
				slog.Warn("input hot-plug watch error", "err", err)
			}
		}
	}
}

// attach opens a newly created node, retrying while udev settles its
// permissions.
func (r *Reader) attach(ctx context.Context, path string) {
	for attempt := 1; ; attempt++ {
		d, err := r.open(path)
		if err == nil {
			if d != nil {
				r.start(d)
			}
			return
		}
		if attempt >= openRetries {
			slog.Warn("input device skipped", "device", path, "err", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(openBackoff):
		}
	}
}

// detach stops the reader of a removed node.
func (r *Reader) detach(path string) {
	r.mu.Lock()
	d, ok := r.devices[path]
	r.mu.Unlock()
	if !ok {
		return
	}
	d.removed.Store(true)
	// An unplugged device has usually failed the read already.
	_ = d.node.Revoke()
}

func (r *Reader) start(d *device) {
	select {
	case <-r.done:
		d.node.Close()
		r.forget(d)
		return
	default:
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.read(d)
	}()
}

// read owns d.node for its whole life and closes it on exit.
func (r *Reader) read(d *device) {
	defer func() {
		r.forget(d)
		d.node.Close()
	}()

	for {
		e, err := d.node.ReadOne()
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			if d.removed.Load() {
				err = fmt.Errorf("node removed: %w", err)
			}
			r.lost(d, err)
			return
		}
		if uint16(e.Type) != EvKey {
			continue
		}
		if !r.emit(fromEvdev(d.Path, e)) {
			return
		}
	}
}

func (r *Reader) forget(d *device) {
	r.mu.Lock()
	if r.devices[d.Path] == d {
		delete(r.devices, d.Path)
	}
	r.mu.Unlock()
}

func (r *Reader) lost(d *device, cause error) {
	slog.Info("input device disconnected", "device", d.Path, "name", d.Name, "err", cause)
	r.emit(Event{Device: d.Path, Err: fmt.Errorf("%w: %w", ErrDeviceDisconnected, cause)})
}

// emit never sends once shutdown has begun, so a reader released after
// Run returned cannot write to the closed channel.
func (r *Reader) emit(ev Event) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.out <- ev:
		return true
	case <-r.done:
		return false
	}
}
