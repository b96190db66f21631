package core

import (
	"fmt"
	"strings"
	"time"
)

// UntitledTitle replaces a blank title at save time.
const UntitledTitle = "Untitled"

// Note is the central entity of the domain: a short text note owned by
// exactly one account.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WordCount counts whitespace-separated words in the content.
func (n Note) WordCount() int {
	return len(strings.Fields(n.Content))
}

// Draft is a normalized title/content pair ready to be persisted.
type Draft struct {
	Title   string
	Content string
}

// NewDraft trims both inputs and defaults a blank title to UntitledTitle.
// If both are blank it returns ErrNoOpCreation and no draft.
func NewDraft(title, content string) (Draft, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" && content == "" {
		return Draft{}, ErrNoOpCreation
	}
	return Draft{Title: normalizeTitle(title), Content: content}, nil
}

func normalizeTitle(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return UntitledTitle
}

// Fields returns the document fields of a new note owned by ownerID.
func (d Draft) Fields(ownerID string) Fields {
	return Fields{
		FieldOwner:   ownerID,
		FieldTitle:   d.Title,
		FieldContent: d.Content,
		FieldPinned:  false,
		FieldDeleted: false,
	}
}

// NoteDefaults are the values a store writes for note fields that a
// document omits, so equality filters on them see what readers see.
var NoteDefaults = Fields{FieldPinned: false, FieldDeleted: false}

// FillNoteDefaults sets every field of NoteDefaults that f lacks.
func FillNoteDefaults(f Fields) {
	for k, v := range NoteDefaults {
		if _, ok := f[k]; !ok {
			f[k] = v
		}
	}
}

// NoteFromDocument converts a stored document into a Note. Missing optional
// fields take their defaults here, once, at the store boundary: pinned and
// deleted default to false, title and content to "".
func NoteFromDocument(doc Document) (Note, error) {
	n := Note{
		ID:        doc.ID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	owner, ok := doc.Fields[FieldOwner].(string)
	if !ok || owner == "" {
		return Note{}, fmt.Errorf("document %s: missing %q", doc.ID, FieldOwner)
	}
	n.OwnerID = owner

	var err error
	if n.Title, err = stringField(doc, FieldTitle); err != nil {
		return Note{}, err
	}
	if n.Content, err = stringField(doc, FieldContent); err != nil {
		return Note{}, err
	}
	if n.Pinned, err = boolField(doc, FieldPinned); err != nil {
		return Note{}, err
	}
	if n.Deleted, err = boolField(doc, FieldDeleted); err != nil {
		return Note{}, err
	}
	return n, nil
}

func stringField(doc Document, key string) (string, error) {
	switch v := doc.Fields[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("document %s: field %q is %T, want string", doc.ID, key, v)
	}
}

func boolField(doc Document, key string) (bool, error) {
	switch v := doc.Fields[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("document %s: field %q is %T, want bool", doc.ID, key, v)
	}
}
