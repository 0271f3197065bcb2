// Package history implements the ordered, deduplicated, capacity-bounded
// clipboard history.
//
// Entries are kept most-recent-first. When the store holds more than its
// capacity the oldest non-pinned entry is evicted. Pinned entries are never
// evicted, so when pinned entries alone fill the store it grows past capacity.
// Pinned entries also keep their position when their content is copied again.
package history

import (
	"errors"
	"sync"
	"time"

	"go.klb.dev/clipring/internal/content"
)

// ErrNotFound is returned for operations on an unknown entry id.
var ErrNotFound = errors.New("history: entry not found")

// Entry is an immutable history record. The store hands out copies.
type Entry struct {
	ID          uint64              `json:"id"`
	Content     content.Content     `json:"content"`
	Fingerprint content.Fingerprint `json:"fingerprint"`
	CreatedAt   time.Time           `json:"created_at"`
	Pinned      bool                `json:"pinned"`
	SourceApp   string              `json:"source_app,omitempty"`
}

// Outcome describes what InsertOrBump did.
type Outcome int

const (
	// Inserted means a new entry was created.
	Inserted Outcome = iota + 1
	// Bumped means an existing non-pinned entry moved to the head.
	Bumped
	// Unchanged means the content already exists and nothing moved: it is
	// the head already, or it is pinned.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Bumped:
		return "bumped"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Store is safe for concurrent use. Every mutation is atomic with respect to
// other mutations and to readers.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry // most recent first
	byFP     map[content.Fingerprint]uint64
	capacity int
	nextID   uint64
	now      func() time.Time

	onChange func()
}

// New returns an empty store. capacity < 1 is treated as 1.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		byFP:     make(map[content.Fingerprint]uint64),
		capacity: capacity,
		nextID:   1,
		now:      time.Now,
	}
}

// OnChange registers fn to be called after every successful mutation,
// outside the lock. Only one callback is kept.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Capacity returns the soft limit on the number of entries.
func (s *Store) Capacity() int { return s.capacity }

// InsertOrBump records c. New content is inserted at the head, evicting the
// oldest non-pinned entry if over capacity. Known content is moved to the
// head instead, unless pinned.
func (s *Store) InsertOrBump(c content.Content, sourceApp string) (Entry, Outcome) {
	fp := content.Sum(c)

	s.mu.Lock()
	if id, ok := s.byFP[fp]; ok {
		i := s.indexLocked(id)
		e := s.entries[i]
		if e.Pinned || i == 0 {
			s.mu.Unlock()
			return e, Unchanged
		}
		copy(s.entries[1:i+1], s.entries[:i])
		s.entries[0] = e
		cb := s.onChange
		s.mu.Unlock()
		notify(cb)
		return e, Bumped
	}

	e := Entry{
		ID:          s.nextID,
		Content:     c,
		Fingerprint: fp,
		CreatedAt:   s.now(),
		SourceApp:   sourceApp,
	}
	s.nextID++
	s.entries = append(s.entries, Entry{})
	copy(s.entries[1:], s.entries)
	s.entries[0] = e
	s.byFP[fp] = e.ID
	s.evictLocked(e.ID)
	cb := s.onChange
	s.mu.Unlock()
	notify(cb)
	return e, Inserted
}

// evictLocked drops the oldest non-pinned entries, other than keep, until the
// store is within capacity or only pinned entries are left to drop.
func (s *Store) evictLocked(keep uint64) {
	for i := len(s.entries) - 1; i >= 0 && len(s.entries) > s.capacity; i-- {
		if s.entries[i].Pinned || s.entries[i].ID == keep {
			continue
		}
		delete(s.byFP, s.entries[i].Fingerprint)
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
}

// Pin exempts an entry from eviction and from recency reordering.
func (s *Store) Pin(id uint64) error { return s.setPinned(id, true) }

// Unpin reverses Pin. The entry keeps its position; if the store is over
// capacity the oldest non-pinned entries are evicted, which may be this one.
func (s *Store) Unpin(id uint64) error { return s.setPinned(id, false) }

func (s *Store) setPinned(id uint64, pinned bool) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.entries[i].Pinned == pinned {
		s.mu.Unlock()
		return nil
	}
	s.entries[i].Pinned = pinned
	if !pinned {
		s.evictLocked(0)
	}
	cb := s.onChange
	s.mu.Unlock()
	notify(cb)
	return nil
}

// Delete removes an entry.
func (s *Store) Delete(id uint64) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.byFP, s.entries[i].Fingerprint)
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	cb := s.onChange
	s.mu.Unlock()
	notify(cb)
	return nil
}

// Clear removes all entries, or all non-pinned ones when keepPinned is set.
// It returns the number of entries removed.
func (s *Store) Clear(keepPinned bool) int {
	s.mu.Lock()
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if keepPinned && e.Pinned {
			kept = append(kept, e)
			continue
		}
		delete(s.byFP, e.Fingerprint)
		removed++
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	cb := s.onChange
	s.mu.Unlock()
	if removed > 0 {
		notify(cb)
	}
	return removed
}

// List returns a snapshot of all entries, most recent first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry with the given id.
func (s *Store) Get(id uint64) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Entry{}, ErrNotFound
	}
	return s.entries[i], nil
}

// Head returns the most recent entry, if any.
func (s *Store) Head() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[0], true
}

// Lookup returns the entry holding content with fingerprint fp.
func (s *Store) Lookup(fp content.Fingerprint) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFP[fp]
	if !ok {
		return Entry{}, false
	}
	return s.entries[s.indexLocked(id)], true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) indexLocked(id uint64) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}
