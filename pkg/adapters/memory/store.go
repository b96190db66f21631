// Package memory provides an in-process core.DocumentStore with a live
// change stream. It backs tests, demos and the "memory" adapter.
package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/oklog/ulid/v2"

	"github.com/aretw0/notekit/internal/stream"
	"github.com/aretw0/notekit/pkg/core"
)

// Store implements core.DocumentStore in memory.
type Store struct {
	mu          sync.RWMutex
	clock       *core.Clock
	logger      *slog.Logger
	collections map[string]map[string]core.Document
	hub         *stream.Hub
	offline     bool
	writes      uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source of the store clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.clock = core.NewClock(now)
	}
}

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:       core.NewClock(nil),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		collections: make(map[string]map[string]core.Document),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = stream.NewHub(s.logger)
	return s
}

// Initialize implements core.DocumentStore. There is nothing to prepare.
func (s *Store) Initialize(ctx context.Context) error {
	return nil
}

// SetOffline simulates a backend outage: while offline every read, write and
// new subscription fails with core.ErrStoreUnavailable, and open
// subscriptions receive a terminal error snapshot.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()

	if offline {
		s.hub.Fail(fmt.Errorf("%w: connection lost", core.ErrStoreUnavailable))
	}
}

// Put stores a raw document, bypassing the clock. It exists to seed
// documents written by other clients (other accounts, older app versions).
// Missing pinned and deleted fields are stored as false.
func (s *Store) Put(collection string, doc core.Document) {
	doc = doc.Clone()
	core.FillNoteDefaults(doc.Fields)

	s.mu.Lock()
	s.collectionLocked(collection)[doc.ID] = doc
	s.clock.Observe(doc.UpdatedAt)
	s.mu.Unlock()
	s.hub.Notify(collection)
}

// Create implements core.DocumentStore.
func (s *Store) Create(ctx context.Context, collection string, fields core.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.offline {
		s.mu.Unlock()
		return "", core.ErrStoreUnavailable
	}
	id := ulid.Make().String()
	s.collectionLocked(collection)[id] = core.NewDocument(id, fields, s.clock.Now())
	s.writes++
	s.mu.Unlock()

	s.logger.Debug("document created", "collection", collection, "id", id)
	s.hub.Notify(collection)
	return id, nil
}

// Get implements core.DocumentStore.
func (s *Store) Get(ctx context.Context, collection, id string) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.offline {
		return core.Document{}, core.ErrStoreUnavailable
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return core.Document{}, fmt.Errorf("%w: %s/%s", core.ErrNotFound, collection, id)
	}
	return doc.Clone(), nil
}

// Update implements core.DocumentStore.
func (s *Store) Update(ctx context.Context, collection, id string, fields core.Fields, preconds ...core.Precondition) error {
	return s.write(ctx, collection, id, preconds, func(docs map[string]core.Document, doc core.Document) {
		doc = doc.Clone()
		doc.Apply(fields, s.clock.Now())
		docs[id] = doc
	})
}

// Delete implements core.DocumentStore.
func (s *Store) Delete(ctx context.Context, collection, id string, preconds ...core.Precondition) error {
	return s.write(ctx, collection, id, preconds, func(docs map[string]core.Document, _ core.Document) {
		delete(docs, id)
	})
}

func (s *Store) write(ctx context.Context, collection, id string, preconds []core.Precondition, fn func(map[string]core.Document, core.Document)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.offline {
		s.mu.Unlock()
		return core.ErrStoreUnavailable
	}
	docs := s.collections[collection]
	doc, ok := docs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", core.ErrNotFound, collection, id)
	}
	if !core.Satisfies(doc, preconds) {
		s.mu.Unlock()
		return core.ErrPreconditionFailed
	}
	fn(docs, doc)
	s.writes++
	s.mu.Unlock()

	s.hub.Notify(collection)
	return nil
}

func (s *Store) collectionLocked(name string) map[string]core.Document {
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[string]core.Document)
		s.collections[name] = docs
	}
	return docs
}

// Subscribe implements core.DocumentStore.
func (s *Store) Subscribe(ctx context.Context, q core.Query) (<-chan core.Snapshot, core.CancelFunc, error) {
	if err := q.Validate(); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	offline := s.offline
	s.mu.RUnlock()
	if offline {
		return nil, nil, core.ErrStoreUnavailable
	}

	ch, cancel := s.hub.Subscribe(ctx, q, s.results)
	return ch, cancel, nil
}

// results evaluates q against the current contents.
func (s *Store) results(ctx context.Context, q core.Query) ([]core.Document, error) {
	s.mu.RLock()
	if s.offline {
		s.mu.RUnlock()
		return nil, core.ErrStoreUnavailable
	}
	docs := make([]core.Document, 0, len(s.collections[q.Collection]))
	for _, d := range s.collections[q.Collection] {
		docs = append(docs, d.Clone())
	}
	s.mu.RUnlock()
	return q.Apply(docs), nil
}

// Close ends every open subscription.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(s.collections))
	for name, docs := range s.collections {
		counts[name] = len(docs)
	}
	return StoreState{
		Collections:   counts,
		Subscriptions: s.hub.Len(),
		Writes:        s.writes,
		Offline:       s.offline,
	}
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Collections   map[string]int `json:"collections"`
	Subscriptions int            `json:"subscriptions"`
	Writes        uint64         `json:"writes"`
	Offline       bool           `json:"offline"`
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "memory-store"
}

var _ core.DocumentStore = (*Store)(nil)
var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
