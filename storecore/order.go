package storecore

import "sort"

// NullsPolicy says where a null/undefined value sorts relative to non-null
// values for a given key.
type NullsPolicy string

const (
	NullsFirst NullsPolicy = "first"
	NullsLast  NullsPolicy = "last"
)

// OrderBy is one priority key in a multi-key sort (§4.5).
type OrderBy[E any] struct {
	Key   string
	Get   Getter[E] // optional override of Key-based field access
	Desc  bool
	Nulls NullsPolicy
}

// NewOrderBy builds a descriptor with the documented defaults: ascending,
// nulls last.
func NewOrderBy[E any](key string, desc bool, nulls NullsPolicy) OrderBy[E] {
	if nulls == "" {
		nulls = NullsLast
	}
	return OrderBy[E]{Key: key, Desc: desc, Nulls: nulls}
}

// PrimitiveComparator compares two non-null values of the same key. The
// default, compareOrdered, handles strings, numbers, and time.Time.
type PrimitiveComparator func(a, b any) int

// Comparator orders two entities; it is what CollectionQuery sorts items
// with.
type Comparator[E any] func(a, b *E) int

// BuildComparator compiles a priority list of OrderBy descriptors into a
// single comparator. An empty priority list always returns 0 (stable,
// no reorder).
func BuildComparator[E any](primitive PrimitiveComparator, priority []OrderBy[E]) Comparator[E] {
	if primitive == nil {
		primitive = compareOrdered
	}

	type compiled struct {
		get   Getter[E]
		desc  bool
		nulls NullsPolicy
	}
	keys := make([]compiled, len(priority))
	for i, p := range priority {
		keys[i] = compiled{
			get:   CompileGetter(GetterSpec[E]{Key: p.Key, Get: p.Get}),
			desc:  p.Desc,
			nulls: p.Nulls,
		}
	}

	return func(a, b *E) int {
		for _, k := range keys {
			va, vb := k.get(a), k.get(b)
			aNil, bNil := isNil(va), isNil(vb)

			if aNil || bNil {
				cmp := 0
				switch {
				case aNil && bNil:
					cmp = 0
				case aNil:
					if k.nulls == NullsFirst {
						cmp = -1
					} else {
						cmp = 1
					}
				default: // bNil
					if k.nulls == NullsFirst {
						cmp = 1
					} else {
						cmp = -1
					}
				}
				if cmp != 0 {
					return cmp
				}
				continue
			}

			cmp := primitive(va, vb)
			if k.desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp
			}
		}
		return 0
	}
}

// SortItems sorts items in place by cmp, stable so ties preserve relative
// insertion order unless the caller's priority includes an explicit
// tiebreaker.
func SortItems[E any](items []*E, cmp Comparator[E]) {
	sort.SliceStable(items, func(i, j int) bool {
		return cmp(items[i], items[j]) < 0
	})
}

// SimplifiedOrderBy is the canonical, JSON-friendly shape used in the
// collection query key (§3).
type SimplifiedOrderBy struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
	Nulls string `json:"nulls"`
}

// SimplifyOrderBy returns the canonical list used to build a collection's key.
func SimplifyOrderBy[E any](priority []OrderBy[E]) []SimplifiedOrderBy {
	out := make([]SimplifiedOrderBy, len(priority))
	for i, p := range priority {
		nulls := p.Nulls
		if nulls == "" {
			nulls = NullsLast
		}
		field := p.Key
		if field == "" {
			field = "<func>"
		}
		out[i] = SimplifiedOrderBy{Field: field, Desc: p.Desc, Nulls: string(nulls)}
	}
	return out
}
