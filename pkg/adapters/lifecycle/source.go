// Package lifecycle exposes live note views as lifecycle event sources.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notekit/pkg/core"
)

// ViewEvent is emitted every time a live view re-derives.
type ViewEvent struct {
	Mode  core.ViewMode
	Notes []core.Note
}

// String implements lifecycle.Event.
func (e ViewEvent) String() string {
	pinned := 0
	for _, n := range e.Notes {
		if n.Pinned {
			pinned++
		}
	}
	return fmt.Sprintf("%s view: %d notes (%d pinned)", e.Mode, len(e.Notes), pinned)
}

type viewSource struct {
	view *core.LiveView
	out  chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits a ViewEvent for every
// update of view. The event channel closes when the view closes or the
// source's context ends.
func NewSource(view *core.LiveView) lifecycle.Source {
	return &viewSource{
		view: view,
		out:  make(chan lifecycle.Event),
	}
}

func (s *viewSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *viewSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		updates := s.view.Updates()
		for {
			select {
			case <-ctx.Done():
				return nil
			case notes, ok := <-updates:
				if !ok {
					return s.view.Err()
				}
				select {
				case s.out <- ViewEvent{Mode: s.view.Mode(), Notes: notes}:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
