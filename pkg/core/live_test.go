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

// waitFor drains view updates until cond holds or the timeout expires.
func waitFor(t *testing.T, v *core.LiveView, cond func([]core.Note) bool) []core.Note {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case notes, ok := <-v.Updates():
			if !ok {
				t.Fatalf("view closed while waiting (err=%v)", v.Err())
			}
			if cond(notes) {
				return notes
			}
		case <-timeout:
			current, _ := v.Current()
			t.Fatalf("condition not met, last view %v", ids(current))
			return nil
		}
	}
}

func hasIDs(want ...string) func([]core.Note) bool {
	return func(notes []core.Note) bool {
		got := ids(notes)
		if len(got) != len(want) {
			return false
		}
		for i := range want {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
}

func TestLiveView_TracksLifecycle(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	primary, err := svc.OpenView(ctx, alice, core.ViewPrimary, core.ViewOptions{})
	require.NoError(t, err)
	defer primary.Close()
	recycle, err := svc.OpenView(ctx, alice, core.ViewRecycle, core.ViewOptions{})
	require.NoError(t, err)
	defer recycle.Close()

	waitFor(t, primary, hasIDs())

	a, err := svc.Create(ctx, alice, "A", "")
	require.NoError(t, err)
	b, err := svc.Create(ctx, alice, "B", "")
	require.NoError(t, err)
	waitFor(t, primary, hasIDs(b, a))

	require.NoError(t, svc.TogglePin(ctx, alice, a, false))
	waitFor(t, primary, hasIDs(a, b))

	require.NoError(t, svc.SoftDelete(ctx, alice, a))
	waitFor(t, primary, hasIDs(b))
	waitFor(t, recycle, hasIDs(a))

	require.NoError(t, svc.Restore(ctx, alice, a))
	waitFor(t, recycle, hasIDs())
	got := waitFor(t, primary, hasIDs(a, b))
	assert.True(t, got[0].Pinned)
}

func TestLiveView_SearchAndFilter(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	milk, err := svc.Create(ctx, alice, "Grocery", "buy milk")
	require.NoError(t, err)
	work, err := svc.Create(ctx, alice, "Work", "slides")
	require.NoError(t, err)

	v, err := svc.OpenView(ctx, alice, core.ViewPrimary, core.ViewOptions{Search: "MILK"})
	require.NoError(t, err)
	defer v.Close()

	waitFor(t, v, hasIDs(milk))

	v.SetSearch("")
	waitFor(t, v, hasIDs(work, milk))

	v.SetFilter(core.FilterPinned)
	waitFor(t, v, hasIDs())

	note, ok := v.Lookup(work)
	require.True(t, ok, "lookup ignores search and filter")
	require.NoError(t, svc.TogglePin(ctx, alice, work, note.Pinned))
	waitFor(t, v, hasIDs(work))

	assert.Equal(t, core.ViewOptions{Filter: core.FilterPinned}, v.Options())
}

func TestLiveView_OnlyOwnNotes(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	mine, err := svc.Create(ctx, session("alice"), "Mine", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, session("bob"), "Theirs", "")
	require.NoError(t, err)

	v, err := svc.OpenView(ctx, session("alice"), core.ViewPrimary, core.ViewOptions{})
	require.NoError(t, err)
	defer v.Close()

	waitFor(t, v, hasIDs(mine))
}

func TestLiveView_CloseReleasesSubscription(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	v, err := svc.OpenView(ctx, session("alice"), core.ViewPrimary, core.ViewOptions{})
	require.NoError(t, err)
	waitFor(t, v, hasIDs())

	v.Close()
	v.Close()

	select {
	case <-v.Done():
	case <-time.After(time.Second):
		t.Fatal("view pump did not exit")
	}
	_, ok := <-v.Updates()
	assert.False(t, ok, "updates is closed after Close")

	assert.Eventually(t, func() bool {
		return store.State().(memory.StoreState).Subscriptions == 0 &&
			svc.State().(core.ServiceState).OpenViews == 0
	}, time.Second, 10*time.Millisecond)
}

func TestLiveView_CloseViewsOnSignOut(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := session("alice")

	p, err := svc.OpenView(ctx, alice, core.ViewPrimary, core.ViewOptions{})
	require.NoError(t, err)
	r, err := svc.OpenView(ctx, alice, core.ViewRecycle, core.ViewOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, svc.State().(core.ServiceState).OpenViews)

	svc.CloseViews()

	<-p.Done()
	<-r.Done()
	assert.Equal(t, 0, svc.State().(core.ServiceState).OpenViews)
}

func TestLiveView_StoreOutage(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	v, err := svc.OpenView(ctx, session("alice"), core.ViewPrimary, core.ViewOptions{})
	require.NoError(t, err)
	defer v.Close()
	waitFor(t, v, hasIDs())

	store.SetOffline(true)

	select {
	case <-v.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("view did not stop after outage")
	}
	assert.ErrorIs(t, v.Err(), core.ErrStoreUnavailable)
	assert.Equal(t, core.KindStoreUnavailable, core.KindOf(v.Err()))

	_, err = svc.OpenView(ctx, session("alice"), core.ViewPrimary, core.ViewOptions{})
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestOpenView_RequiresSession(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.OpenView(context.Background(), core.Session{}, core.ViewPrimary, core.ViewOptions{})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}
