// Package stream implements the subscription side of a document store:
// each subscriber gets a pump that re-evaluates its query and delivers a
// full snapshot whenever its collection is notified.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notekit/pkg/core"
)

// Evaluator computes the current result set of a query.
type Evaluator func(ctx context.Context, q core.Query) ([]core.Document, error)

// Hub tracks live subscriptions and wakes them on change.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	logger *slog.Logger
}

type subscription struct {
	hub   *Hub
	query core.Query
	eval  Evaluator
	out   chan core.Snapshot
	kick  chan struct{}
	fail  chan error
	done  chan struct{}
	once  sync.Once
}

// NewHub creates an empty Hub. Nil logger discards.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		subs:   make(map[*subscription]struct{}),
		logger: logger,
	}
}

// Subscribe starts a pump for q. The first snapshot is evaluated right away.
func (h *Hub) Subscribe(ctx context.Context, q core.Query, eval Evaluator) (<-chan core.Snapshot, core.CancelFunc) {
	s := &subscription{
		hub:   h,
		query: q,
		eval:  eval,
		out:   make(chan core.Snapshot),
		kick:  make(chan struct{}, 1),
		fail:  make(chan error, 1),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		s.run(ctx)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		h.logger.Error("subscription panic", "query", q.String(), "error", err)
	}))

	return s.out, s.cancel
}

// Notify wakes every subscription on collection. Bursts coalesce into a
// single re-evaluation.
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.query.Collection != collection {
			continue
		}
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// NotifyAll wakes every subscription.
func (h *Hub) NotifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// Fail ends every subscription with a terminal error snapshot.
func (h *Hub) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.fail <- err:
		default:
		}
	}
}

// Close cancels every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.cancel()
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func (s *subscription) cancel() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.out)
	defer s.hub.remove(s)

	var seq uint64
	for {
		docs, err := s.eval(ctx, s.query)
		select {
		case <-s.done:
			return
		default:
		}
		seq++
		snap := core.Snapshot{Seq: seq, Documents: docs}
		if err != nil {
			snap = core.Snapshot{Seq: seq, Err: fmt.Errorf("evaluate %s: %w", s.query.String(), err)}
		}
		if !s.send(ctx, snap) || err != nil {
			return
		}

		select {
		case <-s.kick:
		case err := <-s.fail:
			s.send(ctx, core.Snapshot{Seq: seq + 1, Err: err})
			return
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *subscription) send(ctx context.Context, snap core.Snapshot) bool {
	select {
	case s.out <- snap:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}
