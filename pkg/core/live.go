package core

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/lifecycle"
)

// LiveView keeps a continuously re-derived view of one account's notes.
//
// It owns one store subscription. Every snapshot delivery, search change and
// filter change triggers a full re-derivation; the latest result is pushed on
// Updates. Snapshots older than the last applied one are ignored, so
// repeated or out-of-order deliveries cannot roll the view back.
type LiveView struct {
	svc    *Service
	mode   ViewMode
	query  Query
	cancel CancelFunc

	mu      sync.Mutex
	opts    ViewOptions
	notes   []Note
	view    []Note
	seq     uint64
	ready   bool
	err     error
	closed  bool
	updates chan []Note

	once sync.Once
	done chan struct{}
}

// OpenView subscribes to the session's notes for the given mode.
// The caller must Close the view when it is torn down.
func (s *Service) OpenView(ctx context.Context, sess Session, mode ViewMode, opts ViewOptions) (*LiveView, error) {
	if err := sess.require(); err != nil {
		return nil, err
	}
	if opts.Filter == "" {
		opts.Filter = FilterAll
	}

	q, err := BuildQuery(sess.AccountID, s.collection, mode == ViewRecycle)
	if err != nil {
		return nil, err
	}

	snaps, cancel, err := s.store.Subscribe(ctx, q)
	if err != nil {
		s.logFailure("subscribe", "", err)
		return nil, fmt.Errorf("open %s view: %w", mode, err)
	}

	v := &LiveView{
		svc:     s,
		mode:    mode,
		query:   q,
		cancel:  cancel,
		opts:    opts,
		updates: make(chan []Note, s.viewBuffer),
		done:    make(chan struct{}),
	}
	s.track(v)
	s.logger.Debug("view opened", "mode", mode.String(), "owner", sess.AccountID, "query", q.String())

	lifecycle.Go(ctx, func(context.Context) error {
		v.run(snaps)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("view pump panic", "mode", mode.String(), "error", err)
	}))

	return v, nil
}

func (v *LiveView) run(snaps <-chan Snapshot) {
	defer close(v.done)
	defer v.finish()

	for snap := range snaps {
		if snap.Err != nil {
			v.mu.Lock()
			v.err = snap.Err
			v.mu.Unlock()
			v.svc.logFailure("subscribe", "", snap.Err)
			return
		}
		v.apply(snap)
	}
}

func (v *LiveView) apply(snap Snapshot) {
	notes := make([]Note, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		n, err := NoteFromDocument(doc)
		if err != nil {
			v.svc.logger.Warn("skipping malformed document", "id", doc.ID, "error", err)
			continue
		}
		notes = append(notes, n)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.ready && snap.Seq <= v.seq {
		v.svc.logger.Debug("stale snapshot ignored", "seq", snap.Seq, "applied", v.seq)
		return
	}
	v.notes = notes
	v.seq = snap.Seq
	v.ready = true
	v.publishLocked()
}

// publishLocked re-derives and queues the view, dropping the oldest queued
// view when the reader is behind.
func (v *LiveView) publishLocked() {
	v.view = Derive(v.mode, v.notes, v.opts)
	out := slices.Clone(v.view)
	for {
		select {
		case v.updates <- out:
			return
		default:
		}
		select {
		case <-v.updates:
		default:
		}
	}
}

func (v *LiveView) finish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.closed = true
		close(v.updates)
	}
}

// Updates delivers each newly derived view. It is closed when the view is
// closed or the subscription fails.
func (v *LiveView) Updates() <-chan []Note {
	return v.updates
}

// Mode returns the view's mode.
func (v *LiveView) Mode() ViewMode {
	return v.mode
}

// Current returns the latest derived view and whether a snapshot has been
// applied yet.
func (v *LiveView) Current() ([]Note, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.view), v.ready
}

// Lookup finds a note in the latest snapshot, ignoring search and filter.
func (v *LiveView) Lookup(id string) (Note, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, n := range v.notes {
		if n.ID == id {
			return n, true
		}
	}
	return Note{}, false
}

// Options returns the current search and filter.
func (v *LiveView) Options() ViewOptions {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.opts
}

// SetSearch changes the search term and re-derives.
func (v *LiveView) SetSearch(term string) {
	v.update(func(o *ViewOptions) { o.Search = term })
}

// SetFilter changes the filter mode and re-derives.
func (v *LiveView) SetFilter(mode FilterMode) {
	v.update(func(o *ViewOptions) { o.Filter = mode })
}

func (v *LiveView) update(fn func(*ViewOptions)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn(&v.opts)
	if v.closed || !v.ready {
		return
	}
	v.publishLocked()
}

// Err returns the terminal subscription error, if any.
func (v *LiveView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Done is closed once the subscription has been fully released.
func (v *LiveView) Done() <-chan struct{} {
	return v.done
}

// Close releases the subscription and waits for the pump to exit.
// It is safe to call more than once.
func (v *LiveView) Close() {
	v.once.Do(func() {
		v.cancel()
		v.svc.untrack(v)
		<-v.done
		v.svc.logger.Debug("view closed", "mode", v.mode.String())
	})
}
