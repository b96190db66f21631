// Package core holds the note domain: the entity rules, the lifecycle
// operations that mutate notes, and the live views derived from the
// document store's change stream.
//
// Persistence is delegated to a DocumentStore adapter (memory, fs, postgres)
// and identity to an AccountService adapter. The core never talks to a
// concrete backend.
package core

import (
	"maps"
	"time"
)

// DefaultCollection is the logical collection holding one document per note.
const DefaultCollection = "notes"

// Field names of a note document.
const (
	FieldOwner     = "uid"
	FieldTitle     = "title"
	FieldContent   = "content"
	FieldPinned    = "pinned"
	FieldDeleted   = "deleted"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Fields is the raw key-value payload of a stored document.
type Fields map[string]any

// Document is a record as the document store sees it.
// Timestamps are managed by the store and are not part of Fields.
type Document struct {
	ID        string
	Fields    Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

type serverTimestamp struct{}

// ServerTimestamp is a placeholder value asking the store to stamp the field
// with its own clock. Only FieldUpdatedAt honours it.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp placeholder.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Value resolves a field by name, including the store-managed timestamps.
func (d Document) Value(field string) (any, bool) {
	switch field {
	case FieldCreatedAt:
		return d.CreatedAt, true
	case FieldUpdatedAt:
		return d.UpdatedAt, true
	}
	v, ok := d.Fields[field]
	return v, ok
}

// Clone returns a copy whose Fields map can be mutated independently.
func (d Document) Clone() Document {
	d.Fields = maps.Clone(d.Fields)
	if d.Fields == nil {
		d.Fields = make(Fields)
	}
	return d
}

// Apply merges a partial update into the document.
// Timestamp keys are never copied into Fields: a ServerTimestamp on
// FieldUpdatedAt refreshes UpdatedAt to now, anything else on them is ignored.
func (d *Document) Apply(patch Fields, now time.Time) {
	if d.Fields == nil {
		d.Fields = make(Fields)
	}
	for k, v := range patch {
		switch k {
		case FieldCreatedAt:
			continue
		case FieldUpdatedAt:
			if IsServerTimestamp(v) {
				d.UpdatedAt = now
			}
			continue
		}
		d.Fields[k] = v
	}
}

// NewDocument builds a freshly created document: both timestamps are set to
// now and timestamp keys in fields are dropped.
func NewDocument(id string, fields Fields, now time.Time) Document {
	doc := Document{ID: id, CreatedAt: now, UpdatedAt: now, Fields: make(Fields, len(fields))}
	doc.Apply(fields, now)
	doc.UpdatedAt = now
	return doc
}
