package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"go.klb.dev/clipring/internal/content"
	"go.klb.dev/clipring/internal/engine"
	"go.klb.dev/clipring/internal/history"
	"go.klb.dev/clipring/internal/hub"
	"go.klb.dev/clipring/internal/inject"
)

type fakeEngine struct {
	store *history.Store
	bus   *hub.Hub

	mu       sync.Mutex
	pasteRes inject.Result
	pasteErr error
	lastHint string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{store: history.New(10), bus: hub.New()}
}

func (f *fakeEngine) ListHistory() []history.Entry         { return f.store.List() }
func (f *fakeEngine) Get(id uint64) (history.Entry, error) { return f.store.Get(id) }
func (f *fakeEngine) Pin(id uint64) error                  { return f.store.Pin(id) }
func (f *fakeEngine) Unpin(id uint64) error                { return f.store.Unpin(id) }
func (f *fakeEngine) Delete(id uint64) error               { return f.store.Delete(id) }
func (f *fakeEngine) ClearHistory(keepPinned bool) int     { return f.store.Clear(keepPinned) }
func (f *fakeEngine) Status() engine.Status                { return engine.Status{Backend: "memory", Entries: f.store.Len()} }
func (f *fakeEngine) Paste(_ context.Context, id uint64, hint string) (inject.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastHint = hint
	if _, err := f.store.Get(id); err != nil {
		return inject.Result{EntryID: id}, err
	}
	res := f.pasteRes
	res.EntryID = id
	return res, f.pasteErr
}

func (f *fakeEngine) Subscribe(kinds ...hub.Kind) (<-chan hub.Event, func()) {
	ch := hub.NewChannel("test-sub", 8, kinds...)
	f.bus.Register(ch)
	return ch.C(), func() { f.bus.Unregister(ch) }
}

func (f *fakeEngine) setPaste(res inject.Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pasteRes, f.pasteErr = res, err
}

func setup(t *testing.T) (*fakeEngine, *Client, context.CancelFunc) {
	t.Helper()
	fe := newFakeEngine()
	lis := bufconn.Listen(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, lis, New(fe)) }()

	c, err := NewClient("passthrough:///bufnet", "test",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Error("server did not stop")
			}
		})
	}
	t.Cleanup(func() {
		_ = c.Close()
		stop()
	})
	return fe, c, stop
}

func TestListAndGet(t *testing.T) {
	fe, c, _ := setup(t)
	a, _ := fe.store.InsertOrBump(content.NewText("first line\nsecond line"), "kitty")
	fe.store.InsertOrBump(content.NewText("b"), "")

	ctx := context.Background()
	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Preview)
	assert.Equal(t, a.ID, entries[1].ID)
	assert.Equal(t, content.Text, entries[1].Kind)
	assert.Equal(t, "kitty", entries[1].SourceApp)
	assert.Nil(t, entries[1].Data, "list carries no payloads")

	got, err := c.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", string(got.Data))
	assert.Equal(t, a.Fingerprint.Short(), got.Fingerprint)
	assert.Equal(t, len(got.Data), got.Size)
}

func TestNotFound(t *testing.T) {
	_, c, _ := setup(t)
	ctx := context.Background()

	_, err := c.Get(ctx, 42)
	assert.ErrorIs(t, err, history.ErrNotFound)
	assert.ErrorIs(t, c.Pin(ctx, 42), history.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, 42), history.ErrNotFound)
	_, err = c.Paste(ctx, 42, "")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestMissingID(t *testing.T) {
	_, c, _ := setup(t)
	_, err := c.Get(context.Background(), 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPasteOutcomes(t *testing.T) {
	fe, c, _ := setup(t)
	e, _ := fe.store.InsertOrBump(content.NewText("x"), "")
	ctx := context.Background()

	fe.setPaste(inject.Result{ClipboardWritten: true, Injected: true}, nil)
	res, err := c.Paste(ctx, e.ID, "firefox")
	require.NoError(t, err)
	assert.True(t, res.Injected)
	assert.Equal(t, e.ID, res.EntryID)
	assert.Equal(t, "firefox", fe.lastHint)

	partial := errors.Join(inject.ErrInjectionFailed, errors.New("permission denied: /dev/uinput"))
	fe.setPaste(inject.Result{ClipboardWritten: true}, partial)
	res, err = c.Paste(ctx, e.ID, "")
	assert.ErrorIs(t, err, inject.ErrInjectionFailed)
	assert.ErrorContains(t, err, "/dev/uinput")
	assert.True(t, res.ClipboardWritten)
	assert.False(t, res.Injected)

	failed := errors.Join(inject.ErrClipboardWriteFailed, errors.New("wl-copy: exit 1"))
	fe.setPaste(inject.Result{}, failed)
	res, err = c.Paste(ctx, e.ID, "")
	assert.ErrorIs(t, err, inject.ErrClipboardWriteFailed)
	assert.NotErrorIs(t, err, inject.ErrInjectionFailed)
	assert.False(t, res.ClipboardWritten)
}

func TestMutations(t *testing.T) {
	fe, c, _ := setup(t)
	a, _ := fe.store.InsertOrBump(content.NewText("a"), "")
	b, _ := fe.store.InsertOrBump(content.NewText("b"), "")
	ctx := context.Background()

	require.NoError(t, c.Pin(ctx, a.ID))
	got, _ := fe.store.Get(a.ID)
	assert.True(t, got.Pinned)

	require.NoError(t, c.Unpin(ctx, a.ID))
	require.NoError(t, c.Pin(ctx, a.ID))
	require.NoError(t, c.Delete(ctx, b.ID))

	fe.store.InsertOrBump(content.NewText("c"), "")
	n, err := c.Clear(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, fe.store.Len())
}

func TestStatus(t *testing.T) {
	fe, c, _ := setup(t)
	fe.store.InsertOrBump(content.NewText("a"), "")
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory", st.Backend)
	assert.Equal(t, 1, st.Entries)
}

func TestSubscribe(t *testing.T) {
	fe, c, stop := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := c.Subscribe(ctx, hub.HistoryChanged)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fe.bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	fe.bus.Publish(hub.Event{Kind: hub.HotkeyActivated, Source: "hotkey", Action: "open"})
	fe.bus.Publish(hub.Event{Kind: hub.HistoryChanged, Source: "monitor", Reason: "inserted", EntryID: 7})

	ev, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, hub.HistoryChanged, ev.Kind)
	assert.Equal(t, uint64(7), ev.EntryID)
	assert.False(t, ev.Time.IsZero())

	// Server shutdown ends the stream cleanly.
	go stop()
	_, err = sub.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTransportUnavailableIsNotWriteFailure(t *testing.T) {
	err := fromStatus(status.Error(codes.Unavailable, "connection refused"))
	assert.NotErrorIs(t, err, inject.ErrClipboardWriteFailed)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	err = fromStatus(status.Error(codes.Unavailable, "inject: clipboard write failed: xsel: exit 1"))
	assert.ErrorIs(t, err, inject.ErrClipboardWriteFailed)
	assert.ErrorContains(t, err, "xsel: exit 1")
}
