package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notekit/pkg/core"
)

func TestBuildQuery(t *testing.T) {
	primary, err := core.BuildQuery("alice", "", false)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultCollection, primary.Collection)
	assert.Equal(t, []core.Filter{
		core.Where(core.FieldOwner, "alice"),
		core.Where(core.FieldDeleted, false),
	}, primary.Filters)
	require.NotNil(t, primary.Order)
	assert.Equal(t, core.OrderBy{Field: core.FieldUpdatedAt, Direction: core.Descending}, *primary.Order)

	recycle, err := core.BuildQuery("alice", "notes", true)
	require.NoError(t, err)
	assert.Equal(t, []core.Filter{
		core.Where(core.FieldOwner, "alice"),
		core.Where(core.FieldDeleted, true),
	}, recycle.Filters)
	assert.Nil(t, recycle.Order, "the recycle view is ordered client-side")

	_, err = core.BuildQuery("", "notes", false)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestQuery_Validate(t *testing.T) {
	assert.ErrorIs(t, core.Query{}.Validate(), core.ErrInvalidQuery)
	assert.ErrorIs(t, core.Query{Collection: "c", Filters: []core.Filter{{}}}.Validate(), core.ErrInvalidQuery)
	assert.ErrorIs(t, core.Query{Collection: "c", Order: &core.OrderBy{}}.Validate(), core.ErrInvalidQuery)
	assert.NoError(t, core.Query{Collection: "c"}.Validate())
}

func TestQuery_Apply(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := func(id, owner string, minute int) core.Document {
		return core.Document{
			ID:        id,
			Fields:    core.Fields{core.FieldOwner: owner, core.FieldDeleted: false},
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(minute) * time.Minute),
		}
	}
	docs := []core.Document{
		doc("c", "alice", 1),
		doc("a", "alice", 5),
		doc("b", "bob", 9),
		doc("d", "alice", 5),
	}

	q, err := core.BuildQuery("alice", "notes", false)
	require.NoError(t, err)
	got := q.Apply(docs)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID, "ties on updatedAt keep ascending id")
	assert.Equal(t, "d", got[1].ID)
	assert.Equal(t, "c", got[2].ID)

	unordered := core.Query{Collection: "notes"}
	assert.Equal(t, "a", unordered.Apply(docs)[0].ID)
}

func TestSatisfies_NumericAndTime(t *testing.T) {
	now := time.Now().UTC()
	doc := core.Document{
		ID:        "x",
		Fields:    core.Fields{"count": float64(3), core.FieldPinned: true},
		UpdatedAt: now,
	}

	assert.True(t, core.Satisfies(doc, []core.Filter{core.Where("count", 3)}))
	assert.True(t, core.Satisfies(doc, []core.Filter{core.Where(core.FieldUpdatedAt, now.In(time.Local))}))
	assert.False(t, core.Satisfies(doc, []core.Filter{core.Where(core.FieldPinned, false)}))
	assert.False(t, core.Satisfies(doc, []core.Filter{core.Where("missing", nil)}))
}

func TestDocument_Apply(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)
	doc := core.NewDocument("n1", core.Fields{core.FieldTitle: "t", core.FieldCreatedAt: "ignored"}, created)
	assert.NotContains(t, doc.Fields, core.FieldCreatedAt)

	doc.Apply(core.Fields{core.FieldPinned: true}, later)
	assert.Equal(t, created, doc.UpdatedAt, "plain patches leave updatedAt alone")

	doc.Apply(core.Fields{core.FieldUpdatedAt: core.ServerTimestamp}, later)
	assert.Equal(t, later, doc.UpdatedAt)
	assert.Equal(t, created, doc.CreatedAt)
}

func TestClock_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := core.NewClock(func() time.Time { return fixed })

	a := clock.Now()
	b := clock.Now()
	assert.True(t, b.After(a))
	assert.Equal(t, time.Microsecond, b.Sub(a))

	clock.Observe(fixed.Add(time.Hour))
	assert.True(t, clock.Now().After(fixed.Add(time.Hour)))
}
