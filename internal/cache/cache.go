package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"claude-quota-alerts/internal/usage"
)

// Cache holds the last successfully fetched snapshot, or nothing. It is never
// emptied by a failed cycle: staleness is the engine's concern, not the
// cache's.
type Cache struct {
	mu   sync.RWMutex
	snap *usage.Snapshot
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{}
}

// Get returns the cached snapshot, if any.
func (c *Cache) Get() (usage.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return usage.Snapshot{}, false
	}
	return *c.snap, true
}

// Put replaces the cached snapshot unconditionally. The engine only calls it
// with freshly captured data in cycle order, so last-write-wins is correct.
func (c *Cache) Put(snap usage.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = &snap
}

// Entry is the on-disk mirror of the last snapshot.
type Entry struct {
	Snapshot  usage.Snapshot `json:"snapshot"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// IsFresh reports whether the entry is newer than ttl.
func (e *Entry) IsFresh(ttl time.Duration) bool {
	return time.Since(e.FetchedAt) < ttl
}

// FileStore mirrors the last snapshot to disk so the one-shot status command
// can serve it without a network call.
type FileStore struct {
	path string
}

// NewFileStore builds a store at path; empty resolves to the default cache
// location under the user cache dir.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("home dir: %w", err)
		}
		path = filepath.Join(dir, ".cache", "quotawatcher", "usage.json")
	}
	return &FileStore{path: path}, nil
}

// Read loads the last mirrored entry.
func (f *FileStore) Read() (*Entry, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse cache entry: %w", err)
	}
	return &entry, nil
}

// Write persists the snapshot via write-then-rename so readers never observe
// a torn file.
func (f *FileStore) Write(snap usage.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.Marshal(Entry{Snapshot: snap, FetchedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp cache: %w", err)
	}
	return os.Rename(tmp, f.path)
}
