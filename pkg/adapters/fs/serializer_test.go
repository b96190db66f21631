package fs_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aretw0/notekit/pkg/adapters/fs"
	"github.com/aretw0/notekit/pkg/core"
)

func TestMarkdownRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 123456000, time.UTC)
	updated := created.Add(time.Hour)
	doc := core.Document{
		ID: "01HX",
		Fields: core.Fields{
			core.FieldOwner:   "google:42",
			core.FieldTitle:   "Grocery List",
			core.FieldContent: "milk\n---\neggs",
			core.FieldPinned:  true,
			core.FieldDeleted: false,
		},
		CreatedAt: created,
		UpdatedAt: updated,
	}

	data, err := fs.MarshalNote(doc)
	if err != nil {
		t.Fatalf("MarshalNote failed: %v", err)
	}
	if !strings.HasPrefix(string(data), "---\n") {
		t.Fatalf("Expected frontmatter, got:\n%s", data)
	}
	if !strings.HasSuffix(string(data), "milk\n---\neggs") {
		t.Errorf("Expected content as the body, got:\n%s", data)
	}

	parsed, err := fs.UnmarshalNote("01HX", data, time.Now())
	if err != nil {
		t.Fatalf("UnmarshalNote failed: %v", err)
	}
	if parsed.ID != "01HX" {
		t.Errorf("ID mismatch: %s", parsed.ID)
	}
	if !parsed.CreatedAt.Equal(created) || !parsed.UpdatedAt.Equal(updated) {
		t.Errorf("Timestamps mismatch: %v %v", parsed.CreatedAt, parsed.UpdatedAt)
	}
	for k, want := range doc.Fields {
		if parsed.Fields[k] != want {
			t.Errorf("Field %s: expected %v (%T), got %v (%T)", k, want, want, parsed.Fields[k], parsed.Fields[k])
		}
	}
	if _, ok := parsed.Fields[core.FieldUpdatedAt]; ok {
		t.Error("Timestamps must not leak into fields")
	}
}

func TestUnmarshalNote_PlainFile(t *testing.T) {
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc, err := fs.UnmarshalNote("hand-written", []byte("just some text\n"), mtime)
	if err != nil {
		t.Fatalf("UnmarshalNote failed: %v", err)
	}
	if doc.Fields[core.FieldContent] != "just some text\n" {
		t.Errorf("Unexpected content: %q", doc.Fields[core.FieldContent])
	}
	if !doc.UpdatedAt.Equal(mtime) || !doc.CreatedAt.Equal(mtime) {
		t.Errorf("Expected mtime fallback, got %v / %v", doc.CreatedAt, doc.UpdatedAt)
	}
	if _, err := core.NoteFromDocument(doc); err == nil {
		t.Error("A note without owner must not decode")
	}
}

func TestUnmarshalNote_CRLF(t *testing.T) {
	data := "---\r\nuid: alice\r\ntitle: Windows\r\n---\r\nbody"
	doc, err := fs.UnmarshalNote("crlf", []byte(data), time.Now())
	if err != nil {
		t.Fatalf("UnmarshalNote failed: %v", err)
	}
	if doc.Fields[core.FieldTitle] != "Windows" {
		t.Errorf("Unexpected title: %v", doc.Fields[core.FieldTitle])
	}
	if doc.Fields[core.FieldContent] != "body" {
		t.Errorf("Unexpected content: %q", doc.Fields[core.FieldContent])
	}
}

func TestUnmarshalNote_DefaultsFlags(t *testing.T) {
	doc, err := fs.UnmarshalNote("hand-edited", []byte("---
uid: alice
title: Old
---
"), time.Now())
	if err != nil {
		t.Fatalf("UnmarshalNote failed: %v", err)
	}
	q, err := core.BuildQuery("alice", "", false)
	if err != nil {
		t.Fatalf("BuildQuery failed: %v", err)
	}
	if !q.Matches(doc) {
		t.Errorf("Expected a note without flags to match the primary query, fields: %v", doc.Fields)
	}
}

func TestUnmarshalNote_Unterminated(t *testing.T) {
	_, err := fs.UnmarshalNote("broken", []byte("---\ntitle: x\nno end"), time.Now())
	if err == nil {
		t.Fatal("Expected error for unterminated frontmatter")
	}
}

func TestMarshalNote_RejectsNonStringContent(t *testing.T) {
	_, err := fs.MarshalNote(core.Document{ID: "x", Fields: core.Fields{core.FieldContent: 42}})
	if err == nil {
		t.Fatal("Expected error for non-string content")
	}
}
