package notekit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/notekit/internal/platform"
	"github.com/aretw0/notekit/pkg/core"
)

// --- Types ---

// Session is the signed-in account context every intent is scoped to.
type Session = core.Session

// Note is the note entity as views and reads return it.
type Note = core.Note

// Result is the structured outcome of an intent.
type Result = core.Result

// --- Configuration ---

// Option defines a functional option for configuring notekit.
type Option = platform.Option

// Adapter names.
const (
	AdapterFS       = platform.AdapterFS
	AdapterMemory   = platform.AdapterMemory
	AdapterPostgres = platform.AdapterPostgres
)

// WithLogger sets the logger for the service and its store.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithStore injects a custom document store.
func WithStore(store core.DocumentStore) Option {
	return platform.WithStore(store)
}

// WithAdapter selects the store adapter by name.
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithDatabaseURL sets the connection string of the postgres adapter.
func WithDatabaseURL(url string) Option {
	return platform.WithDatabaseURL(url)
}

// WithEventBuffer sets how many derived views a live view queues.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithClock replaces the time source of the store clock.
func WithClock(now func() time.Time) Option {
	return platform.WithClock(now)
}

// WithCollection overrides the collection notes are stored in.
func WithCollection(name string) Option {
	return platform.WithCollection(name)
}

// WithSystemDir sets the hidden directory of an fs vault.
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithMustExist requires the vault directory to exist already.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithForceTemp re-roots the vault into the system temp directory.
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the sandbox applied under `go run` and `go test`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithWatch enables or disables the fs watcher.
func WithWatch(enabled bool) Option {
	return platform.WithWatch(enabled)
}

// --- Factory ---

// New creates a note service on the configured store.
func New(ctx context.Context, uri string, opts ...Option) (*core.Service, error) {
	return platform.New(ctx, uri, opts...)
}

// Open initializes the configured document store without a service.
func Open(ctx context.Context, uri string, opts ...Option) (core.DocumentStore, error) {
	return platform.Open(ctx, uri, opts...)
}

// Close releases the views and the store of a service created by New.
func Close(svc *core.Service) error {
	return platform.Close(svc)
}

// FindRoot looks upwards from dir for a vault.
func FindRoot(dir string) (string, error) {
	return platform.FindRoot(dir)
}
