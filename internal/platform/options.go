package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/notekit/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterFS       = "fs"
	AdapterMemory   = "memory"
	AdapterPostgres = "postgres"
)

// options holds the internal configuration for a notekit service.
type options struct {
	store       core.DocumentStore
	logger      *slog.Logger
	adapter     string
	databaseURL string
	systemDir   string
	collection  string
	eventBuffer int
	now         func() time.Time
	mustExist   bool
	forceTemp   bool
	devSafety   bool
	watch       bool
	debounce    time.Duration
}

// Option defines a functional option for configuring notekit.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter:   AdapterFS,
		devSafety: true,
		watch:     true,
	}
}

func buildOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger for the service and its store.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStore injects a ready document store. The adapter setting is ignored
// and the store is still initialized.
func WithStore(store core.DocumentStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithAdapter selects the store adapter by name ("fs", "memory" or
// "postgres"). Defaults to "fs".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithDatabaseURL sets the connection string of the postgres adapter. When
// unset, the URI passed to New is used.
func WithDatabaseURL(url string) Option {
	return func(o *options) {
		o.databaseURL = url
	}
}

// WithSystemDir sets the hidden directory of an fs vault (default ".notekit").
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.systemDir = name
	}
}

// WithCollection overrides the collection notes are stored in.
func WithCollection(name string) Option {
	return func(o *options) {
		o.collection = name
	}
}

// WithEventBuffer sets how many derived views a live view queues for a slow
// reader. Zero means 1.
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.eventBuffer = size
	}
}

// WithClock replaces the time source of the store clock. The postgres
// adapter always uses the database clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithMustExist requires the vault directory to exist already.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.mustExist = must
	}
}

// WithForceTemp re-roots the vault into the system temp directory.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.forceTemp = force
	}
}

// WithDevSafety controls the sandbox applied under `go run` and `go test`:
// by default a vault outside the temp directory is re-rooted into it so a
// development run cannot touch real notes.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}

// WithWatch enables or disables the fs watcher that picks up changes made by
// other processes. Enabled by default.
func WithWatch(enabled bool) Option {
	return func(o *options) {
		o.watch = enabled
	}
}

// WithDebounce sets the quiet period of the fs watcher.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}
