package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.klb.dev/clipring/internal/content"
)

const snapshotVersion = 1

type snapshot struct {
	Version int     `json:"version"`
	NextID  uint64  `json:"next_id"`
	Entries []Entry `json:"entries"`
}

// Save writes the store to path atomically. The file is readable by the
// owner only since it may hold anything that was ever copied.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	snap := snapshot{
		Version: snapshotVersion,
		NextID:  s.nextID,
		Entries: make([]Entry, len(s.entries)),
	}
	copy(snap.Entries, s.entries)
	s.mu.RUnlock()

	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".history-*.json")
	if err != nil {
		return fmt.Errorf("snapshot temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("snapshot rename: %w", err)
	}
	return nil
}

// Load replaces the store contents with the snapshot at path. A missing file
// leaves the store empty and is not an error. Entries beyond capacity are
// evicted with the usual policy, and fingerprints are recomputed.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("snapshot read: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("snapshot decode: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("snapshot version %d not supported", snap.Version)
	}

	entries := make([]Entry, 0, len(snap.Entries))
	byFP := make(map[content.Fingerprint]uint64, len(snap.Entries))
	next := snap.NextID
	for _, e := range snap.Entries {
		e.Fingerprint = content.Sum(e.Content)
		if _, dup := byFP[e.Fingerprint]; dup || e.ID == 0 {
			continue
		}
		byFP[e.Fingerprint] = e.ID
		entries = append(entries, e)
		if e.ID >= next {
			next = e.ID + 1
		}
	}

	s.mu.Lock()
	s.entries = entries
	s.byFP = byFP
	s.nextID = max(next, 1)
	s.evictLocked(0)
	s.mu.Unlock()
	return nil
}
