package platform

import (
	"context"
	"fmt"

	"github.com/aretw0/notekit/pkg/adapters/fs"
	"github.com/aretw0/notekit/pkg/adapters/memory"
	"github.com/aretw0/notekit/pkg/adapters/postgres"
	"github.com/aretw0/notekit/pkg/core"
)

// Open builds and initializes the document store selected by opts.
// The 'uri' argument is adapter-specific: the vault path for 'fs', the
// connection string for 'postgres' (unless WithDatabaseURL is set), and
// ignored for 'memory'.
func Open(ctx context.Context, uri string, opts ...Option) (core.DocumentStore, error) {
	return openStore(ctx, uri, buildOptions(opts))
}

func openStore(ctx context.Context, uri string, o *options) (core.DocumentStore, error) {
	store := o.store
	if store == nil {
		var err error
		switch o.adapter {
		case AdapterFS, "":
			store = openFS(uri, o)
		case AdapterMemory:
			store = openMemory(o)
		case AdapterPostgres:
			store, err = openPostgres(ctx, uri, o)
		default:
			return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := store.Initialize(ctx); err != nil {
		closeStore(store)
		return nil, err
	}
	return store, nil
}

// openFS resolves the vault path through the dev sandbox and builds the
// filesystem repository.
func openFS(path string, o *options) *fs.Repository {
	useTemp := o.forceTemp || (IsDevRun() && o.devSafety)
	resolved := ResolveVaultPath(path, useTemp)

	if o.logger != nil && IsDevRun() {
		if o.devSafety {
			o.logger.Debug("running in SAFE mode (dev sandbox enabled)", "path", resolved)
		} else {
			o.logger.Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", resolved)
		}
	}
	if o.logger != nil && useTemp && resolved != path {
		o.logger.Warn("vault re-rooted into temp dir", "original_path", path, "resolved_path", resolved)
	}

	return fs.NewRepository(fs.Config{
		Path:         resolved,
		MustExist:    o.mustExist,
		Logger:       o.logger,
		SystemDir:    o.systemDir,
		DisableWatch: !o.watch,
		Debounce:     o.debounce,
		Now:          o.now,
	})
}

func openMemory(o *options) *memory.Store {
	var mopts []memory.Option
	if o.logger != nil {
		mopts = append(mopts, memory.WithLogger(o.logger))
	}
	if o.now != nil {
		mopts = append(mopts, memory.WithClock(o.now))
	}
	return memory.New(mopts...)
}

func openPostgres(ctx context.Context, uri string, o *options) (*postgres.Store, error) {
	url := o.databaseURL
	if url == "" {
		url = uri
	}
	if o.now != nil && o.logger != nil {
		o.logger.Debug("postgres adapter ignores the injected clock")
	}
	return postgres.Open(ctx, url, postgres.WithLogger(o.logger))
}
