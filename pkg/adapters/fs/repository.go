package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/oklog/ulid/v2"

	"github.com/aretw0/notekit/internal/stream"
	"github.com/aretw0/notekit/pkg/core"
)

// Repository implements core.DocumentStore on a directory of Markdown files:
// one file per document at <vault>/<collection>/<id>.md.
//
// Writes from this process are serialized and checked against their
// preconditions under one lock. Changes made by other processes (another
// CLI invocation, a text editor) reach subscribers through the watcher.
type Repository struct {
	Path   string
	config Config
	clock  *core.Clock
	cache  *cache
	hub    *stream.Hub

	mu            sync.RWMutex
	writes        uint64
	watcherActive bool
	lastReconcile *time.Time

	watchOnce   sync.Once
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	MustExist bool
	Logger    *slog.Logger
	SystemDir string // e.g. ".notekit"
	// DisableWatch turns off the fsnotify watcher. Subscribers then only see
	// writes made through this Repository.
	DisableWatch bool
	// Debounce is the quiet period before a burst of file events triggers
	// re-evaluation. Zero means 50ms.
	Debounce time.Duration
	Now      func() time.Time
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.SystemDir == "" {
		config.SystemDir = ".notekit"
	}
	if config.Debounce <= 0 {
		config.Debounce = 50 * time.Millisecond
	}
	return &Repository{
		Path:   config.Path,
		config: config,
		clock:  core.NewClock(config.Now),
		cache:  newCache(config.Path, config.SystemDir),
		hub:    stream.NewHub(config.Logger),
	}
}

// Initialize creates the vault directory, loads the index and advances the
// clock past every timestamp already on disk.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.config.MustExist {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("vault path does not exist: %s", r.Path)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", r.Path)
		}
	}
	if err := os.MkdirAll(filepath.Join(r.Path, r.config.SystemDir), 0755); err != nil {
		return fmt.Errorf("%w: create vault: %v", core.ErrStoreUnavailable, err)
	}

	if err := r.cache.Load(); err != nil {
		r.config.Logger.Warn("index unreadable, rebuilding", "path", r.cache.Path, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	matches, err := doublestar.Glob(os.DirFS(r.Path), "*/*"+NoteExt)
	if err != nil {
		return fmt.Errorf("scan vault: %w", err)
	}
	keep := make(map[string]bool, len(matches))
	for _, rel := range matches {
		if r.ignored(rel) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := r.loadLocked(rel)
		if err != nil {
			r.config.Logger.Warn("skipping unreadable note", "path", rel, "error", err)
			continue
		}
		keep[rel] = true
		r.clock.Observe(doc.UpdatedAt)
	}
	r.cache.Prune("", keep)
	r.saveIndex()

	r.config.Logger.Debug("vault initialized", "path", r.Path, "documents", len(keep))
	return nil
}

// Create implements core.DocumentStore.
func (r *Repository) Create(ctx context.Context, collection string, fields core.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validName(collection); err != nil {
		return "", err
	}

	r.mu.Lock()
	id := ulid.Make().String()
	doc := core.NewDocument(id, fields, r.clock.Now())
	if err := os.MkdirAll(filepath.Join(r.Path, collection), 0755); err != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	err := r.storeLocked(collection, doc)
	if err == nil {
		r.writes++
	}
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	r.config.Logger.Debug("document created", "collection", collection, "id", id)
	r.hub.Notify(collection)
	return id, nil
}

// Get implements core.DocumentStore.
func (r *Repository) Get(ctx context.Context, collection, id string) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}
	rel, err := relPath(collection, id)
	if err != nil {
		return core.Document{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadLocked(rel)
}

// Update implements core.DocumentStore.
func (r *Repository) Update(ctx context.Context, collection, id string, fields core.Fields, preconds ...core.Precondition) error {
	return r.write(ctx, collection, id, preconds, func(doc core.Document) error {
		doc.Apply(fields, r.clock.Now())
		return r.storeLocked(collection, doc)
	})
}

// Delete implements core.DocumentStore.
func (r *Repository) Delete(ctx context.Context, collection, id string, preconds ...core.Precondition) error {
	return r.write(ctx, collection, id, preconds, func(_ core.Document) error {
		rel, _ := relPath(collection, id)
		if err := os.Remove(filepath.Join(r.Path, filepath.FromSlash(rel))); err != nil {
			return fmt.Errorf("%w: remove %s: %v", core.ErrStoreUnavailable, rel, err)
		}
		r.cache.Delete(rel)
		r.saveIndex()
		return nil
	})
}

func (r *Repository) write(ctx context.Context, collection, id string, preconds []core.Precondition, fn func(core.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := relPath(collection, id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	doc, err := r.loadLocked(rel)
	if err == nil && !core.Satisfies(doc, preconds) {
		err = core.ErrPreconditionFailed
	}
	if err == nil {
		err = fn(doc)
	}
	if err == nil {
		r.writes++
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}

	r.hub.Notify(collection)
	return nil
}

// Subscribe implements core.DocumentStore. The first subscription starts the
// watcher unless it is disabled.
func (r *Repository) Subscribe(ctx context.Context, q core.Query) (<-chan core.Snapshot, core.CancelFunc, error) {
	if err := q.Validate(); err != nil {
		return nil, nil, err
	}
	if err := validName(q.Collection); err != nil {
		return nil, nil, err
	}
	if !r.config.DisableWatch {
		if err := r.startWatcher(); err != nil {
			r.config.Logger.Warn("watcher unavailable, external changes will not be seen", "error", err)
		}
	}

	ch, cancel := r.hub.Subscribe(ctx, q, r.results)
	return ch, cancel, nil
}

// results evaluates q against the files of its collection.
func (r *Repository) results(ctx context.Context, q core.Query) ([]core.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := os.Stat(r.Path); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	entries, err := os.ReadDir(filepath.Join(r.Path, q.Collection))
	if errors.Is(err, fs.ErrNotExist) {
		return q.Apply(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", core.ErrStoreUnavailable, q.Collection, err)
	}

	docs := make([]core.Document, 0, len(entries))
	keep := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := q.Collection + "/" + entry.Name()
		if entry.IsDir() || r.ignored(rel) {
			continue
		}
		doc, err := r.loadLocked(rel)
		if errors.Is(err, core.ErrNotFound) {
			continue // removed between glob and read
		}
		if err != nil {
			r.config.Logger.Warn("skipping unreadable note", "path", rel, "error", err)
			continue
		}
		keep[rel] = true
		r.clock.Observe(doc.UpdatedAt)
		docs = append(docs, doc)
	}
	r.cache.Prune(q.Collection, keep)
	r.saveIndex()

	return q.Apply(docs), nil
}

// loadLocked reads one note file, going through the index when the file is
// unchanged since it was last decoded.
func (r *Repository) loadLocked(rel string) (core.Document, error) {
	full := filepath.Join(r.Path, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Document{}, fmt.Errorf("%w: %s", core.ErrNotFound, rel)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	if entry, ok := r.cache.Get(rel, info.ModTime()); ok {
		return entry.document(), nil
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Document{}, fmt.Errorf("%w: %s", core.ErrNotFound, rel)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	id := strings.TrimSuffix(path.Base(rel), NoteExt)
	doc, err := UnmarshalNote(id, data, info.ModTime())
	if err != nil {
		return core.Document{}, fmt.Errorf("decode %s: %w", rel, err)
	}
	r.cache.Set(rel, newIndexEntry(doc, info.ModTime()))
	return doc, nil
}

func (r *Repository) storeLocked(collection string, doc core.Document) error {
	rel, err := relPath(collection, doc.ID)
	if err != nil {
		return err
	}
	data, err := MarshalNote(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	full := filepath.Join(r.Path, filepath.FromSlash(rel))
	if err := writeFileAtomic(full, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if info, err := os.Stat(full); err == nil {
		r.cache.Set(rel, newIndexEntry(doc, info.ModTime()))
		r.saveIndex()
	}
	return nil
}

func (r *Repository) saveIndex() {
	if err := r.cache.Save(); err != nil {
		r.config.Logger.Warn("failed to save index", "path", r.cache.Path, "error", err)
	}
}

// ignored reports whether a slash path inside the vault is not a note file.
func (r *Repository) ignored(rel string) bool {
	first, _, _ := strings.Cut(rel, "/")
	if first == r.config.SystemDir || strings.HasPrefix(first, ".") {
		return true
	}
	if isTempFile(rel) {
		return true
	}
	ok, _ := doublestar.Match("*/*"+NoteExt, rel)
	return !ok
}

// Close stops the watcher and ends every subscription.
func (r *Repository) Close() error {
	r.mu.Lock()
	cancel, done := r.watchCancel, r.watchDone
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	r.hub.Close()
	return r.cache.Save()
}

func relPath(collection, id string) (string, error) {
	if err := validName(collection); err != nil {
		return "", err
	}
	if err := validName(id); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrNotFound, err)
	}
	return collection + "/" + id + NoteExt, nil
}

func validName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", core.ErrInvalidQuery)
	case name == "." || name == "..", strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: reserved name %q", core.ErrInvalidQuery, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: name %q contains a path separator", core.ErrInvalidQuery, name)
	}
	return nil
}

var _ core.DocumentStore = (*Repository)(nil)
