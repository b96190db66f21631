package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Service is the lifecycle controller: it validates note intents, scopes
// them to the acting session and issues single atomic writes to the store.
// It never retries; failures go back to the caller as wrapped errors.
//
// Pin policy: toggling pinned does not refresh updatedAt. Edit, soft-delete
// and restore do.
type Service struct {
	store      DocumentStore
	logger     *slog.Logger
	collection string
	viewBuffer int

	mu    sync.RWMutex
	views map[*LiveView]struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for the service. Nil discards.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCollection overrides the collection notes are stored in.
func WithCollection(name string) ServiceOption {
	return func(s *Service) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithViewBuffer sets how many derived views a LiveView may queue for a slow
// reader. Older views are dropped first; zero means 1.
func WithViewBuffer(size int) ServiceOption {
	return func(s *Service) {
		if size > 0 {
			s.viewBuffer = size
		}
	}
}

// NewService creates a new Service.
func NewService(store DocumentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		collection: DefaultCollection,
		viewBuffer: 1,
		views:      make(map[*LiveView]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying document store.
func (s *Service) Store() DocumentStore {
	return s.store
}

// Create persists a new note and returns its id. Blank input returns
// ErrNoOpCreation and writes nothing.
func (s *Service) Create(ctx context.Context, sess Session, title, content string) (string, error) {
	if err := sess.require(); err != nil {
		return "", err
	}

	draft, err := NewDraft(title, content)
	if err != nil {
		s.logger.Debug("blank note discarded", "owner", sess.AccountID)
		return "", err
	}

	id, err := s.store.Create(ctx, s.collection, draft.Fields(sess.AccountID))
	if err != nil {
		s.logFailure("create", "", err)
		return "", fmt.Errorf("create note: %w", err)
	}

	s.logger.Info("note created", "id", id, "owner", sess.AccountID)
	return id, nil
}

// Get reads a single note owned by the session.
func (s *Service) Get(ctx context.Context, sess Session, id string) (Note, error) {
	doc, err := s.load(ctx, sess, id)
	if err != nil {
		return Note{}, fmt.Errorf("get note %s: %w", id, err)
	}
	return NoteFromDocument(doc)
}

// Edit overwrites title and content. The title follows the same
// normalization as Create; a blank edit leaves an "Untitled" empty note.
func (s *Service) Edit(ctx context.Context, sess Session, id, title, content string) error {
	patch := Fields{
		FieldTitle:     normalizeTitle(title),
		FieldContent:   content,
		FieldUpdatedAt: ServerTimestamp,
	}
	return s.mutate(ctx, sess, "edit", id, patch, false)
}

// TogglePin sets pinned to the opposite of currentPinned.
// It does not refresh updatedAt.
func (s *Service) TogglePin(ctx context.Context, sess Session, id string, currentPinned bool) error {
	return s.mutate(ctx, sess, "pin", id, Fields{FieldPinned: !currentPinned}, false)
}

// SoftDelete moves a note into the recycle view.
func (s *Service) SoftDelete(ctx context.Context, sess Session, id string) error {
	patch := Fields{
		FieldDeleted:   true,
		FieldUpdatedAt: ServerTimestamp,
	}
	return s.mutate(ctx, sess, "delete", id, patch, false)
}

// Restore moves a soft-deleted note back into the primary view.
func (s *Service) Restore(ctx context.Context, sess Session, id string) error {
	patch := Fields{
		FieldDeleted:   false,
		FieldUpdatedAt: ServerTimestamp,
	}
	return s.mutate(ctx, sess, "restore", id, patch, true)
}

// Purge irreversibly removes a soft-deleted note.
func (s *Service) Purge(ctx context.Context, sess Session, id string) error {
	if _, err := s.loadForWrite(ctx, sess, id, true); err != nil {
		s.logFailure("purge", id, err)
		return fmt.Errorf("purge note %s: %w", id, err)
	}

	err := s.store.Delete(ctx, s.collection, id, s.preconditions(sess, true)...)
	if errors.Is(err, ErrPreconditionFailed) {
		err = s.reclassify(ctx, sess, id, true, err)
	}
	if err != nil {
		s.logFailure("purge", id, err)
		return fmt.Errorf("purge note %s: %w", id, err)
	}

	s.logger.Info("note purged", "id", id, "owner", sess.AccountID)
	return nil
}

func (s *Service) mutate(ctx context.Context, sess Session, op, id string, patch Fields, inRecycle bool) error {
	if _, err := s.loadForWrite(ctx, sess, id, inRecycle); err != nil {
		s.logFailure(op, id, err)
		return fmt.Errorf("%s note %s: %w", op, id, err)
	}

	err := s.store.Update(ctx, s.collection, id, patch, s.preconditions(sess, inRecycle)...)
	if errors.Is(err, ErrPreconditionFailed) {
		// The note changed between the read and the write.
		err = s.reclassify(ctx, sess, id, inRecycle, err)
	}
	if err != nil {
		s.logFailure(op, id, err)
		return fmt.Errorf("%s note %s: %w", op, id, err)
	}

	s.logger.Debug("note updated", "op", op, "id", id, "owner", sess.AccountID)
	return nil
}

func (s *Service) preconditions(sess Session, inRecycle bool) []Precondition {
	pre := []Precondition{Where(FieldOwner, sess.AccountID)}
	if inRecycle {
		pre = append(pre, Where(FieldDeleted, true))
	}
	return pre
}

// load fetches a document and enforces ownership.
func (s *Service) load(ctx context.Context, sess Session, id string) (Document, error) {
	if err := sess.require(); err != nil {
		return Document{}, err
	}
	if id == "" {
		return Document{}, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	doc, err := s.store.Get(ctx, s.collection, id)
	if err != nil {
		return Document{}, err
	}
	if owner, _ := doc.Fields[FieldOwner].(string); owner != sess.AccountID {
		return Document{}, ErrPermissionDenied
	}
	return doc, nil
}

func (s *Service) loadForWrite(ctx context.Context, sess Session, id string, inRecycle bool) (Document, error) {
	doc, err := s.load(ctx, sess, id)
	if err != nil {
		return Document{}, err
	}
	if inRecycle {
		if deleted, _ := doc.Fields[FieldDeleted].(bool); !deleted {
			return Document{}, ErrNotInRecycleBin
		}
	}
	return doc, nil
}

func (s *Service) reclassify(ctx context.Context, sess Session, id string, inRecycle bool, cause error) error {
	if _, err := s.loadForWrite(ctx, sess, id, inRecycle); err != nil {
		return err
	}
	return cause
}

func (s *Service) logFailure(op, id string, err error) {
	kind := KindOf(err)
	level := slog.LevelWarn
	if kind == KindStoreUnavailable || kind == KindInternal {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "note operation failed",
		"op", op, "id", id, "kind", string(kind), "error", err)
}

func (s *Service) track(v *LiveView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[v] = struct{}{}
}

func (s *Service) untrack(v *LiveView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, v)
}

// CloseViews releases every open LiveView, e.g. on sign-out.
func (s *Service) CloseViews() {
	s.mu.RLock()
	open := make([]*LiveView, 0, len(s.views))
	for v := range s.views {
		open = append(open, v)
	}
	s.mu.RUnlock()

	for _, v := range open {
		v.Close()
	}
}
