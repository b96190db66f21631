package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notekit/pkg/core"
)

func TestNewDraft(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		content string
		want    core.Draft
		wantErr error
	}{
		{name: "both set", title: " Todo ", content: " buy milk\n", want: core.Draft{Title: "Todo", Content: "buy milk"}},
		{name: "blank title", title: "\t", content: "body", want: core.Draft{Title: core.UntitledTitle, Content: "body"}},
		{name: "blank content", title: "Only title", want: core.Draft{Title: "Only title"}},
		{name: "both blank", title: "  ", content: "\n", wantErr: core.ErrNoOpCreation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.NewDraft(tt.title, tt.content)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNoteFromDocument(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		n, err := core.NoteFromDocument(core.Document{ID: "1", Fields: core.Fields{core.FieldOwner: "alice"}})
		require.NoError(t, err)
		assert.Equal(t, core.Note{ID: "1", OwnerID: "alice"}, n)
	})

	t.Run("missing owner", func(t *testing.T) {
		_, err := core.NoteFromDocument(core.Document{ID: "1", Fields: core.Fields{core.FieldTitle: "x"}})
		assert.Error(t, err)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := core.NoteFromDocument(core.Document{ID: "1", Fields: core.Fields{
			core.FieldOwner:  "alice",
			core.FieldPinned: "yes",
		}})
		assert.ErrorContains(t, err, "pinned")
	})
}

func TestNote_WordCount(t *testing.T) {
	assert.Equal(t, 0, core.Note{}.WordCount())
	assert.Equal(t, 3, core.Note{Content: " milk,  eggs\nbread "}.WordCount())
}
