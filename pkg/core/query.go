package core

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
)

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Filter is an equality constraint on a document field.
type Filter struct {
	Field string
	Value any
}

// Where builds an equality Filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Precondition is an equality check a store evaluates atomically with a
// write. A failed check aborts the write with ErrPreconditionFailed.
type Precondition = Filter

// OrderBy sorts a result set by a single field.
type OrderBy struct {
	Field     string
	Direction Direction
}

// Query describes a live result set: a collection, equality filters and an
// optional order. Without an order, stores deliver documents by ascending id.
type Query struct {
	Collection string
	Filters    []Filter
	Order      *OrderBy
}

// Validate checks the query is well formed.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("%w: filter without field", ErrInvalidQuery)
		}
	}
	if q.Order != nil && q.Order.Field == "" {
		return fmt.Errorf("%w: order without field", ErrInvalidQuery)
	}
	return nil
}

// Matches reports whether doc satisfies every filter.
func (q Query) Matches(doc Document) bool {
	return Satisfies(doc, q.Filters)
}

// Satisfies reports whether doc satisfies every equality check.
func Satisfies(doc Document, checks []Filter) bool {
	for _, f := range checks {
		v, ok := doc.Value(f.Field)
		if !ok || !valuesEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// Apply filters and orders docs the way a store would, returning a new slice.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			out = append(out, d)
		}
	}
	slices.SortStableFunc(out, func(a, b Document) int { return cmp.Compare(a.ID, b.ID) })
	if q.Order != nil {
		field, dir := q.Order.Field, q.Order.Direction
		slices.SortStableFunc(out, func(a, b Document) int {
			av, _ := a.Value(field)
			bv, _ := b.Value(field)
			c := compareValues(av, bv)
			if dir == Descending {
				return -c
			}
			return c
		})
	}
	return out
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " %s==%v", f.Field, f.Value)
	}
	if q.Order != nil {
		fmt.Fprintf(&b, " order:%s %s", q.Order.Field, q.Order.Direction)
	}
	return b.String()
}

// BuildQuery translates a view request into store query parameters.
//
// The primary view filters on owner and deleted=false and delegates ordering
// (updatedAt descending) to the store. The recycle view filters on owner and
// deleted=true only; it is ordered client-side after delivery so the store
// never needs a composite index for it.
func BuildQuery(ownerID, collection string, deletedOnly bool) (Query, error) {
	if ownerID == "" {
		return Query{}, ErrUnauthenticated
	}
	if collection == "" {
		collection = DefaultCollection
	}
	q := Query{
		Collection: collection,
		Filters: []Filter{
			Where(FieldOwner, ownerID),
			Where(FieldDeleted, deletedOnly),
		},
	}
	if !deletedOnly {
		q.Order = &OrderBy{Field: FieldUpdatedAt, Direction: Descending}
	}
	return q, nil
}

func valuesEqual(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return cmp.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return cmp.Compare(af, bf)
		}
	}
	// Missing or mismatched values sort first.
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
