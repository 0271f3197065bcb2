package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipring/internal/content"
)

func texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content.Text()
	}
	return out
}

func copyText(s *Store, text string) (Entry, Outcome) {
	return s.InsertOrBump(content.NewText(text), "")
}

func TestScenario(t *testing.T) {
	s := New(3)
	for _, x := range []string{"a", "b", "c", "d"} {
		copyText(s, x)
	}
	assert.Equal(t, []string{"d", "c", "b"}, texts(s.List()))

	c, ok := s.Lookup(content.Sum(content.NewText("c")))
	require.True(t, ok)
	require.NoError(t, s.Pin(c.ID))

	copyText(s, "e")
	list := s.List()
	assert.Equal(t, []string{"e", "d", "c"}, texts(list))
	assert.True(t, list[2].Pinned)

	d, ok := s.Lookup(content.Sum(content.NewText("d")))
	require.True(t, ok)
	require.NoError(t, s.Delete(d.ID))
	list = s.List()
	assert.Equal(t, []string{"e", "c"}, texts(list))
	assert.True(t, list[1].Pinned)
}

func TestCopyTwiceIsIdempotent(t *testing.T) {
	s := New(10)
	first, out := copyText(s, "x")
	assert.Equal(t, Inserted, out)
	again, out := copyText(s, "x")
	assert.Equal(t, Unchanged, out)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, s.Len())
}

func TestRecopyBumps(t *testing.T) {
	s := New(10)
	a, _ := copyText(s, "a")
	copyText(s, "b")
	copyText(s, "c")

	e, out := copyText(s, "a")
	assert.Equal(t, Bumped, out)
	assert.Equal(t, a.ID, e.ID)
	assert.Equal(t, []string{"a", "c", "b"}, texts(s.List()))
}

func TestCapacityEvictsOldestUnpinned(t *testing.T) {
	const capacity = 5
	s := New(capacity)
	for i := 0; i < 50; i++ {
		copyText(s, fmt.Sprint(i))
		unpinned := 0
		for _, e := range s.List() {
			if !e.Pinned {
				unpinned++
			}
		}
		require.LessOrEqual(t, unpinned, capacity)
	}
	assert.Equal(t, []string{"49", "48", "47", "46", "45"}, texts(s.List()))
}

func TestPinnedNotReorderedByRecopy(t *testing.T) {
	s := New(10)
	a, _ := copyText(s, "a")
	copyText(s, "b")
	require.NoError(t, s.Pin(a.ID))

	_, out := copyText(s, "a")
	assert.Equal(t, Unchanged, out)
	assert.Equal(t, []string{"b", "a"}, texts(s.List()))

	copyText(s, "c")
	assert.Equal(t, []string{"c", "b", "a"}, texts(s.List()))
}

func TestPinnedNeverEvicted(t *testing.T) {
	s := New(2)
	a, _ := copyText(s, "a")
	require.NoError(t, s.Pin(a.ID))
	for _, x := range []string{"b", "c", "d", "e"} {
		copyText(s, x)
	}
	list := s.List()
	assert.Equal(t, []string{"e", "a"}, texts(list))
	assert.True(t, list[1].Pinned)
}

func TestAllPinnedGrows(t *testing.T) {
	s := New(2)
	for _, x := range []string{"a", "b"} {
		e, _ := copyText(s, x)
		require.NoError(t, s.Pin(e.ID))
	}
	copyText(s, "c")
	assert.Equal(t, []string{"c", "b", "a"}, texts(s.List()))

	copyText(s, "d")
	assert.Equal(t, []string{"d", "b", "a"}, texts(s.List()))
}

func TestUnpinEvictsWhenOverCapacity(t *testing.T) {
	s := New(2)
	a, _ := copyText(s, "a")
	b, _ := copyText(s, "b")
	require.NoError(t, s.Pin(a.ID))
	require.NoError(t, s.Pin(b.ID))
	copyText(s, "c")
	require.Equal(t, 3, s.Len())

	require.NoError(t, s.Unpin(a.ID))
	assert.Equal(t, []string{"c", "b"}, texts(s.List()))
}

func TestUnknownIDs(t *testing.T) {
	s := New(3)
	copyText(s, "a")
	before := s.List()

	assert.ErrorIs(t, s.Pin(42), ErrNotFound)
	assert.ErrorIs(t, s.Unpin(42), ErrNotFound)
	assert.ErrorIs(t, s.Delete(42), ErrNotFound)
	_, err := s.Get(42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, before, s.List())
}

func TestClear(t *testing.T) {
	s := New(10)
	a, _ := copyText(s, "a")
	copyText(s, "b")
	require.NoError(t, s.Pin(a.ID))

	assert.Equal(t, 1, s.Clear(true))
	assert.Equal(t, []string{"a"}, texts(s.List()))

	assert.Equal(t, 1, s.Clear(false))
	assert.Zero(t, s.Len())

	// Cleared content is new again.
	_, out := copyText(s, "b")
	assert.Equal(t, Inserted, out)
}

func TestIDsMonotonic(t *testing.T) {
	s := New(2)
	var last uint64
	for i := 0; i < 10; i++ {
		e, _ := copyText(s, fmt.Sprint(i))
		assert.Greater(t, e.ID, last)
		last = e.ID
	}
}

func TestOnChange(t *testing.T) {
	s := New(3)
	calls := 0
	s.OnChange(func() { calls++ })

	a, _ := copyText(s, "a")
	copyText(s, "a")
	require.NoError(t, s.Pin(a.ID))
	require.NoError(t, s.Pin(a.ID))
	assert.ErrorIs(t, s.Delete(99), ErrNotFound)
	s.Clear(true)
	assert.Equal(t, 2, calls)
}

func TestConcurrentAccess(t *testing.T) {
	s := New(20)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				e, _ := copyText(s, fmt.Sprintf("%d-%d", w, i%30))
				if i%7 == 0 {
					_ = s.Pin(e.ID)
				}
				if i%11 == 0 {
					_ = s.Unpin(e.ID)
				}
				_ = s.List()
			}
		}(w)
	}
	wg.Wait()

	seen := map[content.Fingerprint]bool{}
	for _, e := range s.List() {
		require.False(t, seen[e.Fingerprint], "duplicate fingerprint")
		seen[e.Fingerprint] = true
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "history.json")

	s := New(5)
	a, _ := copyText(s, "a")
	copyText(s, "b")
	img := content.Content{Kind: content.Image, MIME: "image/png", Data: []byte{1, 2, 3}}
	s.InsertOrBump(img, "gimp")
	require.NoError(t, s.Pin(a.ID))
	require.NoError(t, s.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	r := New(5)
	require.NoError(t, r.Load(path))
	assert.Equal(t, s.List()[0].ID, r.List()[0].ID)
	assert.Equal(t, len(s.List()), len(r.List()))
	for i, e := range r.List() {
		assert.Equal(t, s.List()[i].Fingerprint, e.Fingerprint)
		assert.Equal(t, s.List()[i].Pinned, e.Pinned)
	}

	next, out := copyText(r, "c")
	assert.Equal(t, Inserted, out)
	assert.Greater(t, next.ID, s.List()[0].ID)

	_, out = copyText(r, "b")
	assert.Equal(t, Bumped, out)
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := New(3)
	require.NoError(t, s.Load(filepath.Join(dir, "nope.json")))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	assert.Error(t, s.Load(bad))

	old := filepath.Join(dir, "old.json")
	require.NoError(t, os.WriteFile(old, []byte(`{"version":99}`), 0o600))
	assert.Error(t, s.Load(old))
}
