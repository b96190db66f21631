package fs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/notekit/pkg/adapters/fs"
	"github.com/aretw0/notekit/pkg/core"
)

// setupRepo creates an initialized repository in a temp vault.
func setupRepo(t *testing.T, opts ...func(*fs.Config)) (*fs.Repository, string) {
	t.Helper()

	vaultPath := filepath.Join(t.TempDir(), "vault")
	cfg := fs.Config{
		Path:     vaultPath,
		Debounce: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	repo := fs.NewRepository(cfg)
	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo, vaultPath
}

func noteFields(owner, title string) core.Fields {
	return core.Fields{
		core.FieldOwner:   owner,
		core.FieldTitle:   title,
		core.FieldContent: "",
		core.FieldPinned:  false,
		core.FieldDeleted: false,
	}
}

func TestInitialize(t *testing.T) {
	t.Run("Creates Vault and System Dir", func(t *testing.T) {
		_, path := setupRepo(t)
		if _, err := os.Stat(filepath.Join(path, ".notekit")); err != nil {
			t.Errorf("expected system dir: %v", err)
		}
	})

	t.Run("Fails if MustExist and Missing", func(t *testing.T) {
		repo := fs.NewRepository(fs.Config{
			Path:      filepath.Join(t.TempDir(), "missing"),
			MustExist: true,
		})
		if err := repo.Initialize(context.Background()); err == nil {
			t.Error("expected error for missing vault")
		}
	})

	t.Run("Clock Continues After Restart", func(t *testing.T) {
		future := time.Now().Add(24 * time.Hour).UTC()
		path := filepath.Join(t.TempDir(), "vault")

		first := fs.NewRepository(fs.Config{Path: path, Now: func() time.Time { return future }})
		if err := first.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
		id, err := first.Create(context.Background(), "notes", noteFields("alice", "from the future"))
		if err != nil {
			t.Fatal(err)
		}
		first.Close()

		second, _ := setupRepo(t, func(c *fs.Config) { c.Path = path })
		if err := second.Update(context.Background(), "notes", id, core.Fields{core.FieldUpdatedAt: core.ServerTimestamp}); err != nil {
			t.Fatal(err)
		}
		doc, err := second.Get(context.Background(), "notes", id)
		if err != nil {
			t.Fatal(err)
		}
		if !doc.UpdatedAt.After(future.Truncate(time.Microsecond)) {
			t.Errorf("updatedAt went backwards: %v <= %v", doc.UpdatedAt, future)
		}
	})
}

func TestCreateWritesMarkdown(t *testing.T) {
	repo, path := setupRepo(t)
	ctx := context.Background()

	fields := noteFields("alice", "Grocery List")
	fields[core.FieldContent] = "milk, eggs"
	id, err := repo.Create(ctx, "notes", fields)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(path, "notes", id+".md"))
	if err != nil {
		t.Fatalf("note file missing: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, "title: Grocery List") || !strings.HasSuffix(s, "milk, eggs") {
		t.Errorf("unexpected file content:\n%s", s)
	}

	doc, err := repo.Get(ctx, "notes", id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc.Fields[core.FieldContent] != "milk, eggs" {
		t.Errorf("content mismatch: %v", doc.Fields[core.FieldContent])
	}
	if !doc.CreatedAt.Equal(doc.UpdatedAt) {
		t.Errorf("new document timestamps differ: %v %v", doc.CreatedAt, doc.UpdatedAt)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	repo, path := setupRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, "notes", noteFields("alice", "Draft"))
	if err != nil {
		t.Fatal(err)
	}
	before, _ := repo.Get(ctx, "notes", id)

	t.Run("Precondition Mismatch Writes Nothing", func(t *testing.T) {
		err := repo.Update(ctx, "notes", id, core.Fields{core.FieldTitle: "stolen"}, core.Where(core.FieldOwner, "mallory"))
		if !errors.Is(err, core.ErrPreconditionFailed) {
			t.Fatalf("expected ErrPreconditionFailed, got %v", err)
		}
		doc, _ := repo.Get(ctx, "notes", id)
		if doc.Fields[core.FieldTitle] != "Draft" {
			t.Errorf("title changed despite failed precondition")
		}
	})

	t.Run("Update Refreshes Timestamp", func(t *testing.T) {
		err := repo.Update(ctx, "notes", id, core.Fields{
			core.FieldTitle:     "Final",
			core.FieldUpdatedAt: core.ServerTimestamp,
		}, core.Where(core.FieldOwner, "alice"))
		if err != nil {
			t.Fatal(err)
		}
		doc, _ := repo.Get(ctx, "notes", id)
		if doc.Fields[core.FieldTitle] != "Final" {
			t.Errorf("title not updated")
		}
		if !doc.UpdatedAt.After(before.UpdatedAt) {
			t.Errorf("updatedAt not refreshed")
		}
		if !doc.CreatedAt.Equal(before.CreatedAt) {
			t.Errorf("createdAt changed")
		}
	})

	t.Run("Delete Requires Precondition", func(t *testing.T) {
		err := repo.Delete(ctx, "notes", id, core.Where(core.FieldDeleted, true))
		if !errors.Is(err, core.ErrPreconditionFailed) {
			t.Fatalf("expected ErrPreconditionFailed, got %v", err)
		}
		if err := repo.Delete(ctx, "notes", id, core.Where(core.FieldDeleted, false)); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(path, "notes", id+".md")); !os.IsNotExist(err) {
			t.Errorf("note file still exists")
		}
		if _, err := repo.Get(ctx, "notes", id); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestGetRejectsPathTraversal(t *testing.T) {
	repo, _ := setupRepo(t)
	for _, id := range []string{"../secret", "a/b", ".hidden", ""} {
		if _, err := repo.Get(context.Background(), "notes", id); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("id %q: expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestSubscribeFiltersAndOrders(t *testing.T) {
	repo, _ := setupRepo(t, func(c *fs.Config) { c.DisableWatch = true })
	ctx := context.Background()

	a, _ := repo.Create(ctx, "notes", noteFields("alice", "A"))
	b, _ := repo.Create(ctx, "notes", noteFields("alice", "B"))
	repo.Create(ctx, "notes", noteFields("bob", "C"))

	q, _ := core.BuildQuery("alice", "notes", false)
	snaps, cancel, err := repo.Subscribe(ctx, q)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	snap := receive(t, snaps)
	if len(snap.Documents) != 2 || snap.Documents[0].ID != b || snap.Documents[1].ID != a {
		t.Fatalf("expected [%s %s], got %v", b, a, docIDs(snap.Documents))
	}

	if err := repo.Update(ctx, "notes", a, core.Fields{core.FieldUpdatedAt: core.ServerTimestamp}); err != nil {
		t.Fatal(err)
	}
	snap = receive(t, snaps)
	if snap.Documents[0].ID != a {
		t.Errorf("expected %s first after update, got %v", a, docIDs(snap.Documents))
	}
}

func TestWatcherSeesExternalChanges(t *testing.T) {
	repo, path := setupRepo(t)
	ctx := context.Background()
	if err := os.MkdirAll(filepath.Join(path, "notes"), 0755); err != nil {
		t.Fatal(err)
	}

	// The primary query: the external note carries no pinned/deleted flags.
	q, err := core.BuildQuery("alice", "notes", false)
	if err != nil {
		t.Fatal(err)
	}
	snaps, cancel, err := repo.Subscribe(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	if snap := receive(t, snaps); len(snap.Documents) != 0 {
		t.Fatalf("expected empty vault, got %v", docIDs(snap.Documents))
	}
	waitForWatcher(t, repo, true)

	// Another process drops a note into the vault.
	external := "---\nuid: alice\ntitle: From an editor\n---\nhello"
	if err := os.WriteFile(filepath.Join(path, "notes", "external.md"), []byte(external), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				t.Fatal("stream closed")
			}
			if len(snap.Documents) == 1 && snap.Documents[0].ID == "external" {
				if snap.Documents[0].Fields[core.FieldContent] != "hello" {
					t.Errorf("unexpected content %v", snap.Documents[0].Fields[core.FieldContent])
				}
				return
			}
		case <-deadline:
			t.Fatal("external change not delivered")
		}
	}
}

func TestIndexIsPersisted(t *testing.T) {
	repo, path := setupRepo(t, func(c *fs.Config) { c.DisableWatch = true })
	if _, err := repo.Create(context.Background(), "notes", noteFields("alice", "cached")); err != nil {
		t.Fatal(err)
	}
	if err := repo.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(path, ".notekit", "index.json")); err != nil {
		t.Errorf("index not written: %v", err)
	}
	state := repo.State().(fs.RepositoryState)
	if state.CacheSize != 1 || state.Writes != 1 {
		t.Errorf("unexpected state: %+v", state)
	}
}

func receive(t *testing.T, ch <-chan core.Snapshot) core.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("stream closed")
		}
		if snap.Err != nil {
			t.Fatalf("snapshot error: %v", snap.Err)
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
		return core.Snapshot{}
	}
}

func waitForWatcher(t *testing.T, repo *fs.Repository, expected bool) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		state, ok := repo.State().(fs.RepositoryState)
		if ok && state.WatcherActive == expected {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for watcher state = %v", expected)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func docIDs(docs []core.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
