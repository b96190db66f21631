package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notekit/pkg/adapters/memory"
	"github.com/aretw0/notekit/pkg/core"
)

func session(id string) core.Session {
	return core.Session{AccountID: id, Provider: "password", IssuedAt: time.Now()}
}

func setupService(t *testing.T) (*core.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.Initialize(context.Background()))
	return core.NewService(store), store
}

func TestService_CreateNormalizes(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	id, err := svc.Create(ctx, alice, "   ", "  hello  ")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	note, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, core.UntitledTitle, note.Title)
	assert.Equal(t, "hello", note.Content)
	assert.Equal(t, "alice", note.OwnerID)
	assert.False(t, note.Pinned)
	assert.False(t, note.Deleted)
	assert.Equal(t, note.CreatedAt, note.UpdatedAt)
}

func TestService_CreateBlankIsNoOp(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	for _, tc := range []struct{ title, content string }{
		{"", ""},
		{"   ", "\n\t"},
		{" ", ""},
	} {
		id, err := svc.Create(ctx, session("alice"), tc.title, tc.content)
		assert.ErrorIs(t, err, core.ErrNoOpCreation)
		assert.Empty(t, id)
	}

	state := store.State().(memory.StoreState)
	assert.Zero(t, state.Writes, "blank notes must never be persisted")
}

func TestService_RequiresSession(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, core.Session{}, "title", "body")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)

	expired := session("alice")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	err = svc.SoftDelete(ctx, expired, "whatever")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	assert.Equal(t, core.KindAuthError, core.KindOf(err))
}

func TestService_EditRefreshesUpdatedAt(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	id, err := svc.Create(ctx, alice, "Draft", "first")
	require.NoError(t, err)
	before, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)

	require.NoError(t, svc.Edit(ctx, alice, id, "Final", "second"))

	after, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, "Final", after.Title)
	assert.Equal(t, "second", after.Content)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
}

func TestService_EditBlankTitleBecomesUntitled(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	id, err := svc.Create(ctx, alice, "Title", "body")
	require.NoError(t, err)
	require.NoError(t, svc.Edit(ctx, alice, id, "  ", "body"))

	note, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, core.UntitledTitle, note.Title)
}

func TestService_TogglePinKeepsUpdatedAt(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	id, err := svc.Create(ctx, alice, "Pin me", "")
	require.NoError(t, err)
	before, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)

	require.NoError(t, svc.TogglePin(ctx, alice, id, before.Pinned))
	pinned, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.True(t, pinned.Pinned)
	assert.Equal(t, before.UpdatedAt, pinned.UpdatedAt)

	require.NoError(t, svc.TogglePin(ctx, alice, id, pinned.Pinned))
	unpinned, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.False(t, unpinned.Pinned)
}

func TestService_RestoreRoundTrip(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	id, err := svc.Create(ctx, alice, "Grocery List", "milk, eggs")
	require.NoError(t, err)
	require.NoError(t, svc.TogglePin(ctx, alice, id, false))
	original, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, alice, id))
	deleted, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.True(t, deleted.Pinned, "pin state is orthogonal to delete state")

	require.NoError(t, svc.Restore(ctx, alice, id))
	restored, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.False(t, restored.Deleted)
	assert.True(t, restored.Pinned)
	assert.Equal(t, original.Title, restored.Title)
	assert.Equal(t, original.Content, restored.Content)
	assert.True(t, restored.UpdatedAt.After(original.UpdatedAt))
	assert.True(t, restored.UpdatedAt.After(deleted.UpdatedAt))
}

func TestService_RestoreRequiresRecycleBin(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	id, err := svc.Create(ctx, alice, "Active", "")
	require.NoError(t, err)

	err = svc.Restore(ctx, alice, id)
	assert.ErrorIs(t, err, core.ErrNotInRecycleBin)
	assert.Equal(t, core.KindInvalidState, core.KindOf(err))

	err = svc.Purge(ctx, alice, id)
	assert.ErrorIs(t, err, core.ErrNotInRecycleBin)

	_, err = svc.Get(ctx, alice, id)
	assert.NoError(t, err, "a rejected purge must not remove the note")
}

func TestService_PurgeIsIrreversible(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	id, err := svc.Create(ctx, alice, "Temporary", "gone soon")
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, alice, id))
	require.NoError(t, svc.Purge(ctx, alice, id))

	ops := map[string]func() error{
		"edit":    func() error { return svc.Edit(ctx, alice, id, "x", "y") },
		"restore": func() error { return svc.Restore(ctx, alice, id) },
		"delete":  func() error { return svc.SoftDelete(ctx, alice, id) },
		"purge":   func() error { return svc.Purge(ctx, alice, id) },
		"pin":     func() error { return svc.TogglePin(ctx, alice, id, false) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			assert.ErrorIs(t, err, core.ErrNotFound)
			assert.Equal(t, core.KindNotFound, core.KindOf(err))
		})
	}
}

func TestService_OwnershipIsolation(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()
	alice, mallory := session("alice"), session("mallory")

	id, err := svc.Create(ctx, alice, "Private", "secret")
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, alice, id))
	writes := store.State().(memory.StoreState).Writes

	ops := map[string]func() error{
		"edit":    func() error { return svc.Edit(ctx, mallory, id, "x", "y") },
		"pin":     func() error { return svc.TogglePin(ctx, mallory, id, false) },
		"delete":  func() error { return svc.SoftDelete(ctx, mallory, id) },
		"restore": func() error { return svc.Restore(ctx, mallory, id) },
		"purge":   func() error { return svc.Purge(ctx, mallory, id) },
		"get": func() error {
			_, err := svc.Get(ctx, mallory, id)
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			assert.ErrorIs(t, err, core.ErrPermissionDenied)
			assert.Equal(t, core.KindPermissionDenied, core.KindOf(err))
		})
	}

	assert.Equal(t, writes, store.State().(memory.StoreState).Writes, "denied operations must not write")
	note, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, "Private", note.Title)
	assert.True(t, note.Deleted)
}

func TestService_StoreUnavailable(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	id, err := svc.Create(ctx, alice, "Before outage", "")
	require.NoError(t, err)

	store.SetOffline(true)
	_, err = svc.Create(ctx, alice, "During outage", "")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	err = svc.Edit(ctx, alice, id, "changed", "")
	assert.Equal(t, core.KindStoreUnavailable, core.KindOf(err))

	store.SetOffline(false)
	note, err := svc.Get(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, "Before outage", note.Title, "failed writes leave the note unchanged")
}

func TestService_DefaultsMissingFieldsAtBoundary(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Written by an older client that never set pinned/deleted.
	store.Put(core.DefaultCollection, core.Document{
		ID:        "legacy",
		Fields:    core.Fields{core.FieldOwner: "alice", core.FieldTitle: "Old"},
		CreatedAt: now,
		UpdatedAt: now,
	})

	note, err := svc.Get(ctx, session("alice"), "legacy")
	require.NoError(t, err)
	assert.False(t, note.Pinned)
	assert.False(t, note.Deleted)
	assert.Equal(t, "", note.Content)

	primary, err := svc.OpenView(ctx, session("alice"), core.ViewPrimary, core.ViewOptions{})
	require.NoError(t, err)
	defer primary.Close()
	recycle, err := svc.OpenView(ctx, session("alice"), core.ViewRecycle, core.ViewOptions{})
	require.NoError(t, err)
	defer recycle.Close()

	notes := <-primary.Updates()
	require.Len(t, notes, 1)
	assert.Equal(t, "legacy", notes[0].ID)
	assert.Empty(t, <-recycle.Updates())
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, core.Result{OK: true, ID: "n1"}, core.ResultOf("n1", nil))
	assert.Equal(t, core.Result{OK: true, NoOp: true}, core.ResultOf("", core.ErrNoOpCreation))

	res := core.ResultOf("n1", core.ErrPermissionDenied)
	assert.False(t, res.OK)
	assert.Equal(t, core.KindPermissionDenied, res.Kind)
	assert.Equal(t, "permission denied", res.Message)

	assert.Equal(t, core.KindStoreUnavailable, core.KindOf(context.DeadlineExceeded))
	assert.Equal(t, core.KindInternal, core.KindOf(assert.AnError))
}
