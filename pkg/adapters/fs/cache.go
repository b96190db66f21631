package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/notekit/pkg/core"
)

const indexVersion = 2

// indexEntry is the decoded form of one note file, valid while the file's
// mtime matches LastModified.
type indexEntry struct {
	ID           string         `json:"id"`
	Fields       map[string]any `json:"fields,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	LastModified time.Time      `json:"lastModified"`
}

func (e *indexEntry) document() core.Document {
	doc := core.Document{
		ID:        e.ID,
		Fields:    core.Fields(e.Fields),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}.Clone()
	core.FillNoteDefaults(doc.Fields)
	return doc
}

func newIndexEntry(doc core.Document, mtime time.Time) *indexEntry {
	doc = doc.Clone()
	return &indexEntry{
		ID:           doc.ID,
		Fields:       doc.Fields,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		LastModified: mtime,
	}
}

type index struct {
	Version int                    `json:"version"`
	Entries map[string]*indexEntry `json:"entries"` // keyed by slash path, e.g. "notes/01H....md"
	dirty   bool
	mu      sync.RWMutex
}

// cache persists decoded note files in <vault>/<systemDir>/index.json so a
// list does not have to parse every file on every delivery.
type cache struct {
	Path  string
	index *index
}

func newCache(vaultPath, systemDir string) *cache {
	return &cache{
		Path: filepath.Join(vaultPath, systemDir, "index.json"),
		index: &index{
			Version: indexVersion,
			Entries: make(map[string]*indexEntry),
		},
	}
}

// Load reads the index from disk. A missing, corrupt or outdated index
// starts empty.
func (c *cache) Load() error {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}

	var loaded struct {
		Version int                    `json:"version"`
		Entries map[string]*indexEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &loaded); err != nil || loaded.Version != indexVersion {
		c.index.Entries = make(map[string]*indexEntry)
		c.index.dirty = true
		return nil
	}
	if loaded.Entries == nil {
		loaded.Entries = make(map[string]*indexEntry)
	}
	c.index.Entries = loaded.Entries
	c.index.dirty = false
	return nil
}

// Save writes the index if it changed since the last Load or Save.
func (c *cache) Save() error {
	c.index.mu.RLock()
	if !c.index.dirty {
		c.index.mu.RUnlock()
		return nil
	}
	data, err := json.MarshalIndent(c.index, "", "  ")
	c.index.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return err
	}
	if err := writeFileAtomic(c.Path, data, 0644); err != nil {
		return err
	}

	c.index.mu.Lock()
	c.index.dirty = false
	c.index.mu.Unlock()
	return nil
}

// Get returns the entry for relPath if it is still fresh.
func (c *cache) Get(relPath string, mtime time.Time) (*indexEntry, bool) {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()

	entry, ok := c.index.Entries[relPath]
	if !ok || !entry.LastModified.Equal(mtime) {
		return nil, false
	}
	return entry, true
}

func (c *cache) Set(relPath string, entry *indexEntry) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()
	c.index.Entries[relPath] = entry
	c.index.dirty = true
}

func (c *cache) Delete(relPath string) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()
	if _, ok := c.index.Entries[relPath]; ok {
		delete(c.index.Entries, relPath)
		c.index.dirty = true
	}
}

// Prune drops entries under prefix that are not in keep. An empty prefix
// prunes the whole index.
func (c *cache) Prune(prefix string, keep map[string]bool) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	for p := range c.index.Entries {
		if prefix != "" && filepath.ToSlash(filepath.Dir(p)) != prefix {
			continue
		}
		if !keep[p] {
			delete(c.index.Entries, p)
			c.index.dirty = true
		}
	}
}

func (c *cache) Len() int {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()
	return len(c.index.Entries)
}
