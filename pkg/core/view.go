package core

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// ViewMode selects which side of the soft-delete partition a view shows.
type ViewMode int

const (
	// ViewPrimary shows notes with deleted = false.
	ViewPrimary ViewMode = iota
	// ViewRecycle shows notes with deleted = true.
	ViewRecycle
)

func (m ViewMode) String() string {
	if m == ViewRecycle {
		return "recycle"
	}
	return "primary"
}

// FilterMode narrows the primary view.
type FilterMode string

const (
	FilterAll    FilterMode = "all"
	FilterPinned FilterMode = "pinned"
)

// ParseFilterMode accepts "all", "pinned" or "" (all).
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterPinned:
		return FilterPinned, nil
	}
	return "", fmt.Errorf("unknown filter mode %q (want all or pinned)", s)
}

// ViewOptions is the local, user-controlled part of a view.
type ViewOptions struct {
	Search string
	Filter FilterMode
}

// Visible reports whether n belongs to a view of the given mode.
func (n Note) Visible(mode ViewMode) bool {
	return n.Deleted == (mode == ViewRecycle)
}

// MatchesSearch reports whether term is a case-insensitive substring of the
// title or the content. An empty term matches everything.
func (n Note) MatchesSearch(term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(n.Title), term) ||
		strings.Contains(strings.ToLower(n.Content), term)
}

// DeriveSeq is the lazy form of Derive. The sequence holds no state of its
// own and can be ranged over any number of times.
//
// Primary: drop deleted notes, apply the pinned filter, apply search, then
// yield pinned notes followed by unpinned notes, each group in delivered
// order. Recycle: keep deleted notes only, apply search, and order by
// updatedAt descending (ties keep delivered order).
func DeriveSeq(mode ViewMode, notes []Note, opts ViewOptions) iter.Seq[Note] {
	keep := func(n Note) bool {
		if !n.Visible(mode) {
			return false
		}
		if mode == ViewPrimary && opts.Filter == FilterPinned && !n.Pinned {
			return false
		}
		return n.MatchesSearch(opts.Search)
	}

	if mode == ViewRecycle {
		return func(yield func(Note) bool) {
			kept := make([]Note, 0, len(notes))
			for _, n := range notes {
				if keep(n) {
					kept = append(kept, n)
				}
			}
			slices.SortStableFunc(kept, func(a, b Note) int {
				return b.UpdatedAt.Compare(a.UpdatedAt)
			})
			for _, n := range kept {
				if !yield(n) {
					return
				}
			}
		}
	}

	return func(yield func(Note) bool) {
		for _, pinned := range []bool{true, false} {
			for _, n := range notes {
				if n.Pinned != pinned || !keep(n) {
					continue
				}
				if !yield(n) {
					return
				}
			}
		}
	}
}

// Derive computes the ordered view of notes. It is a pure function of its
// inputs: repeated calls with the same snapshot give the same result.
func Derive(mode ViewMode, notes []Note, opts ViewOptions) []Note {
	out := slices.Collect(DeriveSeq(mode, notes, opts))
	if out == nil {
		out = []Note{}
	}
	return out
}
