package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipring/internal/clip"
	"go.klb.dev/clipring/internal/config"
	"go.klb.dev/clipring/internal/content"
	"go.klb.dev/clipring/internal/history"
	"go.klb.dev/clipring/internal/hotkey"
	"go.klb.dev/clipring/internal/hub"
	"go.klb.dev/clipring/internal/inject"
	"go.klb.dev/clipring/internal/input"
)

const key2 = 3

var builtinKeyboard = input.Device{Path: "/dev/input/event3", Name: "AT Translated Set 2 keyboard"}

type fakeSource struct {
	events chan input.Event

	mu      sync.Mutex
	devices []input.Device
}

func newFakeSource(devices ...input.Device) *fakeSource {
	if devices == nil {
		devices = []input.Device{builtinKeyboard}
	}
	return &fakeSource{events: make(chan input.Event, 16), devices: devices}
}

func (f *fakeSource) Scan() (int, error)        { return len(f.Devices()), nil }
func (f *fakeSource) Events() <-chan input.Event { return f.events }
func (f *fakeSource) Devices() []input.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]input.Device(nil), f.devices...)
}

// plug replaces the set of connected keyboards.
func (f *fakeSource) plug(devices ...input.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = devices
}
func (f *fakeSource) Run(ctx context.Context) error {
	<-ctx.Done()
	close(f.events)
	return nil
}

func (f *fakeSource) tap(codes ...uint16) {
	for _, c := range codes {
		f.events <- input.Event{Device: "kbd", Type: input.EvKey, Code: c, Value: input.KeyPress}
	}
	for i := len(codes) - 1; i >= 0; i-- {
		f.events <- input.Event{Device: "kbd", Type: input.EvKey, Code: codes[i], Value: input.KeyRelease}
	}
}

type fakeKeyboard struct {
	mu     sync.Mutex
	downs  []int
	closed bool
}

func (k *fakeKeyboard) KeyDown(code int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.downs = append(k.downs, code)
	return nil
}
func (k *fakeKeyboard) KeyUp(int) error { return nil }
func (k *fakeKeyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	return nil
}

func (k *fakeKeyboard) isClosed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

func (k *fakeKeyboard) pressed() []int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]int(nil), k.downs...)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Capacity:       10,
		PollInterval:   100 * time.Millisecond,
		SuppressWindow: time.Second,
		SkipSensitive:  true,
		InjectTimeout:  time.Second,
		SettleDelay:    time.Millisecond,
		PasteKeys:      []uint16{hotkey.KeyLeftCtrl, hotkey.KeyV},
		Bindings: []hotkey.Binding{
			{Name: "open", Chord: hotkey.MustParseChord("super+v"), Action: hotkey.Action{Kind: hotkey.Open}},
			{Name: "quick-paste-2", Chord: hotkey.MustParseChord("super+2"), Action: hotkey.Action{Kind: hotkey.QuickPaste, Slot: 2}},
		},
		UinputPath: filepath.Join(t.TempDir(), "uinput"),
	}
}

// closingMemory is the in-memory backend with its Close recorded.
type closingMemory struct {
	*clip.Memory
	closed atomic.Bool
}

func (m *closingMemory) Close() error {
	m.closed.Store(true)
	return m.Memory.Close()
}

type harness struct {
	t      *testing.T
	eng    *Engine
	mem    *closingMemory
	src    *fakeSource
	kb     *fakeKeyboard
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func start(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	return startWith(t, cfg, newFakeSource())
}

func startWith(t *testing.T, cfg config.Config, src *fakeSource) *harness {
	t.Helper()
	h := &harness{t: t, mem: &closingMemory{Memory: clip.NewMemory()}, src: src, kb: &fakeKeyboard{}, done: make(chan error, 1)}
	eng, err := New(context.Background(), cfg, Options{Backend: h.mem, Source: h.src, Keyboard: h.kb})
	require.NoError(t, err)
	h.eng = eng

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- eng.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

// stop cancels Run and fails the test if it does not return.
func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		select {
		case err := <-h.done:
			assert.NoError(h.t, err)
		case <-time.After(2 * time.Second):
			h.t.Error("engine Run did not return after cancel")
		}
	})
}

func (h *harness) copyText(t *testing.T, s string) history.Entry {
	t.Helper()
	h.mem.SetText(s)
	var got history.Entry
	require.Eventually(t, func() bool {
		e, ok := h.eng.store.Head()
		got = e
		return ok && e.Content.Text() == s
	}, time.Second, 5*time.Millisecond)
	return got
}

func next(t *testing.T, ch <-chan hub.Event) hub.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return hub.Event{}
	}
}

// expect skips events until one with the given reason arrives.
func expect(t *testing.T, ch <-chan hub.Event, reason string) hub.Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Reason == reason {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", reason)
			return hub.Event{}
		}
	}
}

func TestCaptureAndList(t *testing.T) {
	h := start(t, testConfig(t))
	events, cancel := h.eng.Subscribe(hub.HistoryChanged)
	defer cancel()

	a := h.copyText(t, "alpha")
	ev := expect(t, events, "inserted")
	assert.Equal(t, a.ID, ev.EntryID)

	h.copyText(t, "beta")
	list := h.eng.ListHistory()
	require.Len(t, list, 2)
	assert.Equal(t, "beta", list[0].Content.Text())

	got, err := h.eng.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Content.Text())
}

func TestMutationsPublish(t *testing.T) {
	h := start(t, testConfig(t))
	a := h.copyText(t, "alpha")
	h.copyText(t, "beta")

	events, cancel := h.eng.Subscribe(hub.HistoryChanged)
	defer cancel()

	require.NoError(t, h.eng.Pin(a.ID))
	assert.Equal(t, a.ID, expect(t, events, "pinned").EntryID)
	require.NoError(t, h.eng.Unpin(a.ID))
	expect(t, events, "unpinned")
	require.NoError(t, h.eng.Delete(a.ID))
	ev := expect(t, events, "deleted")
	assert.Equal(t, hub.HistoryChanged, ev.Kind)
	assert.Equal(t, a.ID, ev.EntryID)

	assert.ErrorIs(t, h.eng.Pin(a.ID), history.ErrNotFound)
	assert.ErrorIs(t, h.eng.Delete(999), history.ErrNotFound)

	assert.Equal(t, 1, h.eng.ClearHistory(false))
	expect(t, events, "cleared")
	assert.Empty(t, h.eng.ListHistory())
	assert.Zero(t, h.eng.ClearHistory(false))
}

func TestPasteDoesNotReorder(t *testing.T) {
	h := start(t, testConfig(t))
	a := h.copyText(t, "alpha")
	h.copyText(t, "beta")
	before := h.eng.ListHistory()

	res, err := h.eng.Paste(context.Background(), a.ID, "")
	require.NoError(t, err)
	assert.True(t, res.ClipboardWritten)
	assert.True(t, res.Injected)
	assert.Equal(t, []int{hotkey.KeyLeftCtrl, hotkey.KeyV}, h.kb.pressed())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, before, h.eng.ListHistory())
}

func TestQuickPasteHotkey(t *testing.T) {
	h := start(t, testConfig(t))
	a := h.copyText(t, "alpha")
	h.copyText(t, "beta")

	events, cancel := h.eng.Subscribe(hub.HotkeyActivated)
	defer cancel()

	h.src.tap(hotkey.KeyLeftMeta, key2)
	ev := next(t, events)
	assert.Equal(t, "quick-paste", ev.Action)
	assert.Equal(t, 2, ev.Slot)
	assert.Equal(t, a.ID, ev.EntryID)

	require.Eventually(t, func() bool { return len(h.kb.pressed()) == 2 }, 2*time.Second, 5*time.Millisecond)
	obs, err := h.mem.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alpha", obs.Content.Text())
}

func TestOpenHotkeyPublishes(t *testing.T) {
	h := start(t, testConfig(t))
	events, cancel := h.eng.Subscribe(hub.HotkeyActivated)
	defer cancel()

	h.src.tap(hotkey.KeyLeftMeta, hotkey.KeyV)
	ev := next(t, events)
	assert.Equal(t, "open", ev.Action)
	assert.Equal(t, "hotkey", ev.Source)
	assert.Empty(t, h.kb.pressed())
}

func TestQuickPasteEmptySlot(t *testing.T) {
	h := start(t, testConfig(t))
	h.copyText(t, "only")
	h.src.tap(hotkey.KeyLeftMeta, key2)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, h.kb.pressed())
}

func TestDegradedWithoutKeyboard(t *testing.T) {
	mem := clip.NewMemory()
	eng, err := New(context.Background(), testConfig(t), Options{Backend: mem, Source: newFakeSource()})
	require.NoError(t, err)

	st := eng.Status()
	assert.False(t, st.Inject)
	require.Len(t, st.Degraded, 1)
	assert.Equal(t, ComponentInject, st.Degraded[0].Component)

	// Late subscribers still learn about it.
	events, cancel := eng.Subscribe(hub.Degraded)
	defer cancel()
	assert.Equal(t, ComponentInject, next(t, events).Component)
}

func TestNoBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backends = []string{"wayland"}
	cfg.NoHotkeys = true
	eng, err := New(context.Background(), cfg, Options{
		Clip:     clip.Options{Getenv: func(string) string { return "" }},
		Keyboard: &fakeKeyboard{},
	})
	require.NoError(t, err)

	st := eng.Status()
	assert.Empty(t, st.Backend)
	require.Len(t, st.Degraded, 1)
	assert.Equal(t, ComponentClipboard, st.Degraded[0].Component)
	assert.Nil(t, st.Hotkeys)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestPasteWithoutBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backends = []string{"wayland"}
	cfg.NoHotkeys = true
	eng, err := New(context.Background(), cfg, Options{
		Clip:     clip.Options{Getenv: func(string) string { return "" }},
		Keyboard: &fakeKeyboard{},
	})
	require.NoError(t, err)

	e, _ := eng.store.InsertOrBump(content.NewText("x"), "")
	_, err = eng.Paste(context.Background(), e.ID, "")
	assert.ErrorIs(t, err, inject.ErrClipboardWriteFailed)
	assert.ErrorIs(t, err, clip.ErrBackendUnavailable)
}

func TestStatus(t *testing.T) {
	h := start(t, testConfig(t))
	a := h.copyText(t, "alpha")
	require.NoError(t, h.eng.Pin(a.ID))

	st := h.eng.Status()
	assert.Equal(t, "memory", st.Backend)
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, 1, st.Pinned)
	assert.Equal(t, 10, st.Capacity)
	assert.True(t, st.Inject)
	assert.Equal(t, []string{"AT Translated Set 2 keyboard"}, st.Devices)
	assert.Equal(t, []HotkeyInfo{
		{Chord: "super+v", Action: "open"},
		{Chord: "super+2", Action: "quick-paste-2"},
	}, st.Hotkeys)
	assert.Empty(t, st.Degraded)
}

func TestRunReleasesKeyboardAndBackend(t *testing.T) {
	h := start(t, testConfig(t))
	h.copyText(t, "alpha")
	assert.False(t, h.kb.isClosed())
	assert.False(t, h.mem.closed.Load())

	h.stop()
	assert.True(t, h.kb.isClosed(), "virtual keyboard closed")
	assert.True(t, h.mem.closed.Load(), "clipboard backend closed")
}

func TestHotkeysRecoverOnHotplug(t *testing.T) {
	prev := deviceCheckInterval
	deviceCheckInterval = 10 * time.Millisecond
	t.Cleanup(func() { deviceCheckInterval = prev })

	src := newFakeSource()
	src.plug()
	h := startWith(t, testConfig(t), src)
	require.Len(t, h.eng.Status().Degraded, 1)
	assert.Equal(t, ComponentHotkeys, h.eng.Status().Degraded[0].Component)

	events, cancel := h.eng.Subscribe(hub.Degraded)
	defer cancel()
	assert.False(t, next(t, events).Recovered, "replayed degradation")

	src.plug(builtinKeyboard)
	ev := next(t, events)
	assert.Equal(t, ComponentHotkeys, ev.Component)
	assert.True(t, ev.Recovered)
	assert.Empty(t, h.eng.Status().Degraded)
	assert.Equal(t, []string{builtinKeyboard.Name}, h.eng.Status().Devices)

	src.plug()
	ev = next(t, events)
	assert.Equal(t, ComponentHotkeys, ev.Component)
	assert.False(t, ev.Recovered)
	require.Len(t, h.eng.Status().Degraded, 1)

	// The key chord still works after the keyboard comes back.
	src.plug(builtinKeyboard)
	assert.True(t, next(t, events).Recovered)
	hot, stopHot := h.eng.Subscribe(hub.HotkeyActivated)
	defer stopHot()
	src.tap(hotkey.KeyLeftMeta, hotkey.KeyV)
	assert.Equal(t, "open", next(t, hot).Action)
}

func TestSnapshotRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.Snapshot = filepath.Join(t.TempDir(), "state", "history.json")

	h := start(t, cfg)
	a := h.copyText(t, "alpha")
	h.copyText(t, "beta")
	require.NoError(t, h.eng.Pin(a.ID))
	h.stop()

	_, err := os.Stat(cfg.Snapshot)
	require.NoError(t, err)

	eng, err := New(context.Background(), cfg, Options{Backend: clip.NewMemory(), Source: newFakeSource(), Keyboard: &fakeKeyboard{}})
	require.NoError(t, err)
	list := eng.ListHistory()
	require.Len(t, list, 2)
	assert.Equal(t, "beta", list[0].Content.Text())
	assert.True(t, list[1].Pinned)
}

func TestCorruptSnapshotDegrades(t *testing.T) {
	cfg := testConfig(t)
	cfg.Snapshot = filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(cfg.Snapshot, []byte("{not json"), 0o600))

	eng, err := New(context.Background(), cfg, Options{Backend: clip.NewMemory(), Source: newFakeSource(), Keyboard: &fakeKeyboard{}})
	require.NoError(t, err)
	assert.Empty(t, eng.ListHistory())
	require.Len(t, eng.Status().Degraded, 1)
	assert.Equal(t, ComponentSnapshot, eng.Status().Degraded[0].Component)
}

func TestInvalidCapacity(t *testing.T) {
	_, err := New(context.Background(), config.Config{}, Options{})
	assert.Error(t, err)
}
