// Package presenter binds the note lifecycle and the live views of one
// signed-in session into the surface a user interface drives: intents go in
// and come back as core.Result, ordered note views come out.
package presenter

import (
	"context"
	"io"
	"log/slog"

	"github.com/aretw0/notekit/pkg/core"
)

// Presenter is the presentation surface of one session.
type Presenter struct {
	svc     *core.Service
	sess    core.Session
	logger  *slog.Logger
	primary *core.LiveView
	recycle *core.LiveView
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithLogger sets the logger for the presenter.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Presenter) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New opens the primary and recycle views of sess. Close releases both.
func New(ctx context.Context, svc *core.Service, sess core.Session, opts ...Option) (*Presenter, error) {
	p := &Presenter{
		svc:    svc,
		sess:   sess,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}

	primary, err := svc.OpenView(ctx, sess, core.ViewPrimary, core.ViewOptions{})
	if err != nil {
		return nil, err
	}
	recycle, err := svc.OpenView(ctx, sess, core.ViewRecycle, core.ViewOptions{})
	if err != nil {
		primary.Close()
		return nil, err
	}
	p.primary, p.recycle = primary, recycle
	return p, nil
}

// Session returns the session the presenter acts for.
func (p *Presenter) Session() core.Session {
	return p.sess
}

// CreateNote persists a new note. Blank input reports OK with NoOp set.
func (p *Presenter) CreateNote(ctx context.Context, title, content string) core.Result {
	id, err := p.svc.Create(ctx, p.sess, title, content)
	return p.result("create", id, err)
}

// EditNote replaces the title and content of a note.
func (p *Presenter) EditNote(ctx context.Context, id, title, content string) core.Result {
	return p.result("edit", id, p.svc.Edit(ctx, p.sess, id, title, content))
}

// TogglePin flips the pin flag. The current value comes from the latest
// delivered view, or from the store when no view has delivered the note yet.
func (p *Presenter) TogglePin(ctx context.Context, id string) core.Result {
	n, ok := p.primary.Lookup(id)
	if !ok {
		n, ok = p.recycle.Lookup(id)
	}
	if !ok {
		var err error
		if n, err = p.svc.Get(ctx, p.sess, id); err != nil {
			return p.result("pin", id, err)
		}
	}
	return p.result("pin", id, p.svc.TogglePin(ctx, p.sess, id, n.Pinned))
}

// SoftDelete moves a note to the recycle bin.
func (p *Presenter) SoftDelete(ctx context.Context, id string) core.Result {
	return p.result("delete", id, p.svc.SoftDelete(ctx, p.sess, id))
}

// Restore brings a note back from the recycle bin.
func (p *Presenter) Restore(ctx context.Context, id string) core.Result {
	return p.result("restore", id, p.svc.Restore(ctx, p.sess, id))
}

// Purge removes a recycled note permanently.
func (p *Presenter) Purge(ctx context.Context, id string) core.Result {
	return p.result("purge", id, p.svc.Purge(ctx, p.sess, id))
}

// SetSearch narrows both views to notes containing term.
func (p *Presenter) SetSearch(term string) {
	p.primary.SetSearch(term)
	p.recycle.SetSearch(term)
}

// SetFilter switches the primary view between all and pinned notes.
func (p *Presenter) SetFilter(mode core.FilterMode) {
	p.primary.SetFilter(mode)
}

// Primary returns the latest ordered primary view.
func (p *Presenter) Primary() []core.Note {
	notes, _ := p.primary.Current()
	return notes
}

// Recycle returns the latest ordered recycle view.
func (p *Presenter) Recycle() []core.Note {
	notes, _ := p.recycle.Current()
	return notes
}

// PrimaryView exposes the primary LiveView for callers that follow its
// updates.
func (p *Presenter) PrimaryView() *core.LiveView {
	return p.primary
}

// RecycleView exposes the recycle LiveView.
func (p *Presenter) RecycleView() *core.LiveView {
	return p.recycle
}

// Close releases both views.
func (p *Presenter) Close() {
	p.primary.Close()
	p.recycle.Close()
}

func (p *Presenter) result(op, id string, err error) core.Result {
	res := core.ResultOf(id, err)
	if !res.OK {
		p.logger.Debug("intent failed", "op", op, "id", id, "kind", string(res.Kind), "error", err)
	}
	return res
}
