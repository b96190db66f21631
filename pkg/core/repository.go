package core

import "context"

// DocumentStore defines the contract for the backend that persists notes and
// pushes live result sets. Adhering to this interface keeps the core
// independent of the storage mechanism (memory, filesystem, Postgres).
//
// Every write is a single atomic document operation; the store is the only
// concurrency-safety mechanism for shared notes.
type DocumentStore interface {
	// Initialize ensures the underlying storage is ready (directories, schema).
	Initialize(ctx context.Context) error

	// Create persists a new document and returns its store-assigned id.
	// The store sets createdAt and updatedAt from its own clock.
	Create(ctx context.Context, collection string, fields Fields) (string, error)

	// Get retrieves a document by id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Update merges fields into an existing document. A ServerTimestamp on
	// FieldUpdatedAt refreshes it. Returns ErrNotFound if absent and
	// ErrPreconditionFailed if any precondition does not hold.
	Update(ctx context.Context, collection, id string, fields Fields, preconds ...Precondition) error

	// Delete hard-deletes a document. Same error contract as Update.
	Delete(ctx context.Context, collection, id string, preconds ...Precondition) error

	// Subscribe opens a change stream for q. The current result set is
	// delivered first, then a new full snapshot after every relevant change.
	// The channel is closed once cancel is called or ctx ends.
	Subscribe(ctx context.Context, q Query) (<-chan Snapshot, CancelFunc, error)
}

// CancelFunc releases a subscription. It is safe to call more than once.
type CancelFunc func()

// Snapshot is a full result set pushed by a subscription.
// Seq increases with every delivery on the same subscription.
// A snapshot carrying Err is the last one delivered.
type Snapshot struct {
	Seq       uint64
	Documents []Document
	Err       error
}
