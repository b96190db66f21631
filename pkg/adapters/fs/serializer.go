package fs

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/notekit/pkg/core"
)

// NoteExt is the extension of note files.
const NoteExt = ".md"

var (
	delimLF   = []byte("---\n")
	delimCRLF = []byte("---\r\n")
)

// frontmatter is the YAML header of a note file. The note body (the content
// field) lives below the header; every other field is inlined.
type frontmatter struct {
	CreatedAt time.Time      `yaml:"createdAt,omitempty"`
	UpdatedAt time.Time      `yaml:"updatedAt,omitempty"`
	Fields    map[string]any `yaml:",inline"`
}

// MarshalNote renders a document as Markdown with YAML frontmatter.
func MarshalNote(doc core.Document) ([]byte, error) {
	fm := frontmatter{
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
		Fields:    make(map[string]any, len(doc.Fields)),
	}
	var body string
	for k, v := range doc.Fields {
		switch k {
		case core.FieldContent:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("field %q is %T, want string", k, v)
			}
			body = s
		case core.FieldCreatedAt, core.FieldUpdatedAt:
		default:
			fm.Fields[k] = v
		}
	}

	var buf bytes.Buffer
	buf.Write(delimLF)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.Write(delimLF)
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// UnmarshalNote parses a note file. Files without frontmatter are accepted
// as plain content; missing timestamps fall back to mtime and missing
// pinned and deleted flags to false.
func UnmarshalNote(id string, data []byte, mtime time.Time) (core.Document, error) {
	doc := core.Document{ID: id, Fields: make(core.Fields)}
	mtime = mtime.UTC()

	header, body, err := splitFrontmatter(data)
	if err != nil {
		return core.Document{}, err
	}

	if header != nil {
		var fm frontmatter
		if err := yaml.Unmarshal(header, &fm); err != nil {
			return core.Document{}, fmt.Errorf("parse frontmatter: %w", err)
		}
		for k, v := range fm.Fields {
			doc.Fields[k] = v
		}
		doc.CreatedAt = fm.CreatedAt.UTC()
		doc.UpdatedAt = fm.UpdatedAt.UTC()
	}
	doc.Fields[core.FieldContent] = string(body)
	core.FillNoteDefaults(doc.Fields)

	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = mtime
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}
	return doc, nil
}

func splitFrontmatter(data []byte) (header, body []byte, err error) {
	var rest []byte
	switch {
	case bytes.HasPrefix(data, delimLF):
		rest = data[len(delimLF):]
	case bytes.HasPrefix(data, delimCRLF):
		rest = data[len(delimCRLF):]
	default:
		return nil, data, nil
	}

	// The closing delimiter is a line of its own.
	for offset := 0; ; {
		i := bytes.Index(rest[offset:], []byte("---"))
		if i < 0 {
			return nil, nil, errors.New("frontmatter started but no closing delimiter found")
		}
		i += offset
		atLineStart := i == 0 || rest[i-1] == '\n'
		after := rest[i+3:]
		switch {
		case atLineStart && bytes.HasPrefix(after, []byte("\n")):
			return rest[:i], after[1:], nil
		case atLineStart && bytes.HasPrefix(after, []byte("\r\n")):
			return rest[:i], after[2:], nil
		case atLineStart && len(after) == 0:
			return rest[:i], nil, nil
		}
		offset = i + 3
	}
}
