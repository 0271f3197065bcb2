package clip

import (
	"context"
	"slices"
	"sync"

	"go.klb.dev/clipring/internal/content"
)

// Memory is an in-process clipboard. Set simulates another application
// copying; Write is what the daemon itself does.
type Memory struct {
	mu       sync.Mutex
	obs      Observation
	writes   []content.Content
	writeErr error
	watchers []chan struct{}
}

// NewMemory returns an empty in-memory clipboard.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Name() string { return "memory" }

// Set replaces the clipboard as an external application would.
func (m *Memory) Set(c content.Content, types ...string) {
	if len(types) == 0 {
		types = []string{c.MIME}
	}
	m.mu.Lock()
	m.obs = Observation{Content: c, Types: slices.Clone(types), Sensitive: content.IsSensitive(types)}
	m.mu.Unlock()
	m.notify()
}

// SetText is shorthand for Set(content.NewText(s)).
func (m *Memory) SetText(s string) { m.Set(content.NewText(s)) }

// FailWrites makes subsequent writes return err; nil restores them.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Writes returns everything written through Write, oldest first.
func (m *Memory) Writes() []content.Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.writes)
}

func (m *Memory) Read(ctx context.Context) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.obs.Content.IsZero() {
		return Observation{}, ErrEmpty
	}
	obs := m.obs
	obs.Types = slices.Clone(obs.Types)
	return obs, nil
}

func (m *Memory) Write(ctx context.Context, c content.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return err
	}
	m.writes = append(m.writes, c)
	m.obs = Observation{Content: c, Types: []string{c.MIME}}
	m.mu.Unlock()
	m.notify()
	return nil
}

// Watch signals after every Set or Write until ctx ends.
func (m *Memory) Watch(ctx context.Context) (<-chan struct{}, error) {
	in := make(chan struct{}, 1)
	m.mu.Lock()
	m.watchers = append(m.watchers, in)
	m.mu.Unlock()

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer m.dropWatcher(in)
		for {
			select {
			case <-ctx.Done():
				return
			case <-in:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

func (m *Memory) dropWatcher(ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = slices.DeleteFunc(m.watchers, func(w chan struct{}) bool { return w == ch })
}

func (m *Memory) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

func (m *Memory) Close() error { return nil }
