package platform

import (
	"context"
	"io"

	"github.com/aretw0/notekit/pkg/core"
)

// New opens the configured store and wires the note service on top of it.
//
//	svc, err := notekit.New(ctx, "./vault", notekit.WithAdapter("fs"))
//
// Release it with Close.
func New(ctx context.Context, uri string, opts ...Option) (*core.Service, error) {
	o := buildOptions(opts)

	store, err := openStore(ctx, uri, o)
	if err != nil {
		return nil, err
	}

	var sopts []core.ServiceOption
	if o.logger != nil {
		sopts = append(sopts, core.WithLogger(o.logger))
	}
	if o.collection != "" {
		sopts = append(sopts, core.WithCollection(o.collection))
	}
	if o.eventBuffer > 0 {
		sopts = append(sopts, core.WithViewBuffer(o.eventBuffer))
	}
	return core.NewService(store, sopts...), nil
}

// Close closes every open view of svc and then its store, if the store
// holds resources.
func Close(svc *core.Service) error {
	svc.CloseViews()
	return closeStore(svc.Store())
}

func closeStore(store core.DocumentStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
