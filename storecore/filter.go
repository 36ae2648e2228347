package storecore

import (
	"encoding/json"
	"sort"
	"strings"
)

// FilterKind tags the shape of a Filter node.
type FilterKind string

const (
	FilterOperator FilterKind = "operator"
	FilterAnd      FilterKind = "and"
	FilterOr       FilterKind = "or"
	FilterNot      FilterKind = "not"
)

// OperatorFunc implements a named filter operator: given the value read off
// the entity and the operator's test value, report whether it matches.
type OperatorFunc func(value, test any) bool

// Filter is a declarative predicate descriptor over entities of type E. A
// nil *Filter matches every entity (see CompileFilter / IsFilterSubset).
type Filter[E any] struct {
	Kind FilterKind

	// Operator node fields.
	Key  string
	Op   string
	Test any
	Get  Getter[E] // optional override of Key-based field access

	// Conjunction node fields (And/Or: 1+ children; Not: exactly 1).
	Children []*Filter[E]
}

// Op builds an operator node over a top-level field.
func Op[E any](key, op string, test any) *Filter[E] {
	return &Filter[E]{Kind: FilterOperator, Key: key, Op: op, Test: test}
}

// OpFunc builds an operator node whose value is read through a custom getter.
func OpFunc[E any](key, op string, test any, get Getter[E]) *Filter[E] {
	return &Filter[E]{Kind: FilterOperator, Key: key, Op: op, Test: test, Get: get}
}

// And builds a conjunction node requiring every non-nil child to match.
func And[E any](children ...*Filter[E]) *Filter[E] {
	return &Filter[E]{Kind: FilterAnd, Children: children}
}

// Or builds a conjunction node requiring any non-nil child to match.
func Or[E any](children ...*Filter[E]) *Filter[E] {
	return &Filter[E]{Kind: FilterOr, Children: children}
}

// Not negates a single child.
func Not[E any](child *Filter[E]) *Filter[E] {
	return &Filter[E]{Kind: FilterNot, Children: []*Filter[E]{child}}
}

// FilterConfig supplies the operator implementations a Filter tree compiles
// against. Operator names are open: callers own the map.
type FilterConfig[E any] struct {
	Operators map[string]OperatorFunc
}

// DefaultOperators returns the eleven recommended operators (§6): eq, neq,
// gt, gte, lt, lte, contains, startsWith, endsWith, in, notIn.
func DefaultOperators() map[string]OperatorFunc {
	return map[string]OperatorFunc{
		"eq":  func(v, t any) bool { return compareOrdered(v, t) == 0 },
		"neq": func(v, t any) bool { return compareOrdered(v, t) != 0 },
		"gt":  func(v, t any) bool { return compareOrdered(v, t) > 0 },
		"gte": func(v, t any) bool { return compareOrdered(v, t) >= 0 },
		"lt":  func(v, t any) bool { return compareOrdered(v, t) < 0 },
		"lte": func(v, t any) bool { return compareOrdered(v, t) <= 0 },
		"contains": func(v, t any) bool {
			s, ts := asString(v), asString(t)
			return strings.Contains(s, ts)
		},
		"startsWith": func(v, t any) bool {
			return strings.HasPrefix(asString(v), asString(t))
		},
		"endsWith": func(v, t any) bool {
			return strings.HasSuffix(asString(v), asString(t))
		},
		"in": func(v, t any) bool {
			list, ok := t.([]any)
			if !ok {
				return false
			}
			for _, item := range list {
				if compareOrdered(v, item) == 0 {
					return true
				}
			}
			return false
		},
		"notIn": func(v, t any) bool {
			list, ok := t.([]any)
			if !ok {
				return true
			}
			for _, item := range list {
				if compareOrdered(v, item) == 0 {
					return false
				}
			}
			return true
		},
	}
}

// CompileFilter produces a predicate from a Filter tree. A nil descriptor
// always matches. Unknown operators panic with KindFilterOperatorNotFound —
// this is a configuration bug, discovered at compile time, not runtime data.
func CompileFilter[E any](config FilterConfig[E], f *Filter[E]) func(*E) bool {
	if f == nil {
		return func(*E) bool { return true }
	}

	switch f.Kind {
	case FilterOperator:
		fn, ok := config.Operators[f.Op]
		if !ok {
			panic(newErr(KindFilterOperatorNotFound, "unknown filter operator: "+f.Op))
		}
		getter := CompileGetter(GetterSpec[E]{Key: f.Key, Get: f.Get})
		test := f.Test
		return func(e *E) bool { return fn(getter(e), test) }

	case FilterAnd:
		preds := compileChildren(config, f.Children)
		return func(e *E) bool {
			for _, p := range preds {
				if !p(e) {
					return false
				}
			}
			return true
		}

	case FilterOr:
		preds := compileChildren(config, f.Children)
		return func(e *E) bool {
			for _, p := range preds {
				if p(e) {
					return true
				}
			}
			return len(preds) == 0
		}

	case FilterNot:
		if len(f.Children) == 0 || f.Children[0] == nil {
			return func(*E) bool { return true }
		}
		inner := CompileFilter(config, f.Children[0])
		return func(e *E) bool { return !inner(e) }

	default:
		panic(newErr(KindInternal, "unknown filter node kind"))
	}
}

// compileChildren filters out nil (falsy) children before compiling, per §4.4.
func compileChildren[E any](config FilterConfig[E], children []*Filter[E]) []func(*E) bool {
	preds := make([]func(*E) bool, 0, len(children))
	for _, c := range children {
		if c == nil {
			continue
		}
		preds = append(preds, CompileFilter(config, c))
	}
	return preds
}

// SimplifyFilter returns the canonical form of a Filter tree: operator and
// conjunction children sorted into a deterministic order so that two
// descriptors differing only in child order produce identical keys.
// SimplifyFilter(SimplifyFilter(x)) ≡ SimplifyFilter(x).
func SimplifyFilter[E any](f *Filter[E]) *Filter[E] {
	if f == nil {
		return nil
	}

	switch f.Kind {
	case FilterOperator:
		return &Filter[E]{Kind: FilterOperator, Key: f.Key, Op: f.Op, Test: f.Test, Get: f.Get}

	case FilterNot:
		var child *Filter[E]
		if len(f.Children) > 0 {
			child = SimplifyFilter(f.Children[0])
		}
		return &Filter[E]{Kind: FilterNot, Children: []*Filter[E]{child}}

	case FilterAnd, FilterOr:
		simplified := make([]*Filter[E], 0, len(f.Children))
		for _, c := range f.Children {
			if sc := SimplifyFilter(c); sc != nil {
				simplified = append(simplified, sc)
			}
		}
		sortFilterSiblings(simplified)
		return &Filter[E]{Kind: f.Kind, Children: simplified}

	default:
		return f
	}
}

// sortFilterSiblings orders operator nodes before conjunction nodes; within
// each group, operators sort by (key, op, JSON(test)) and conjunctions by
// (kind, recursively-sorted children's filter key).
func sortFilterSiblings[E any](nodes []*Filter[E]) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		aIsOp := a.Kind == FilterOperator
		bIsOp := b.Kind == FilterOperator
		if aIsOp != bIsOp {
			return aIsOp
		}
		return filterSortKey(a) < filterSortKey(b)
	})
}

func filterSortKey[E any](f *Filter[E]) string {
	if f.Kind == FilterOperator {
		return f.Key + "\x00" + f.Op + "\x00" + jsonKey(f.Test)
	}
	parts := make([]string, len(f.Children))
	for i, c := range f.Children {
		parts[i] = filterSortKey(c)
	}
	return string(f.Kind) + "\x00" + strings.Join(parts, "\x00")
}

func jsonKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(wrapErr(KindInternal, "filter test value is not JSON-representable", err))
	}
	return string(b)
}

// GetOperatorKey canonicalizes an operator node's test value for subset
// comparison. The default policy is JSON serialization; callers with
// non-JSON-representable test values supply their own.
type GetOperatorKey[E any] func(f *Filter[E]) string

func defaultOperatorKey[E any](f *Filter[E]) string { return jsonKey(f.Test) }

// IsFilterSubset reports whether every entity satisfying candidate also
// satisfies target (§4.4). This is a conservative, structural approximation:
// it does not reason about value ranges, only node equivalence.
func IsFilterSubset[E any](candidate, target *Filter[E], getKey GetOperatorKey[E]) bool {
	if getKey == nil {
		getKey = defaultOperatorKey[E]
	}

	if target == nil {
		return true
	}
	if candidate == nil {
		return false
	}

	return isFilterSubsetNode(candidate, target, getKey)
}

func isFilterSubsetNode[E any](candidate, target *Filter[E], getKey GetOperatorKey[E]) bool {
	if candidate.Kind == FilterOperator && target.Kind == FilterOperator {
		return operatorEquivalent(candidate, target, getKey)
	}

	// A bare node (operator or not) is equivalent to a one-child AND/OR of
	// itself, so "a=1" can be compared directly against "(a=1 and b=2)"
	// without the caller having to wrap the plain side explicitly.
	if candidate.Kind != FilterAnd && candidate.Kind != FilterOr && (target.Kind == FilterAnd || target.Kind == FilterOr) {
		wrapped := &Filter[E]{Kind: target.Kind, Children: []*Filter[E]{candidate}}
		return isFilterSubsetNode(wrapped, target, getKey)
	}
	if target.Kind != FilterAnd && target.Kind != FilterOr && (candidate.Kind == FilterAnd || candidate.Kind == FilterOr) {
		wrapped := &Filter[E]{Kind: candidate.Kind, Children: []*Filter[E]{target}}
		return isFilterSubsetNode(candidate, wrapped, getKey)
	}

	if candidate.Kind != target.Kind {
		return false
	}

	switch candidate.Kind {
	case FilterAnd:
		// S(candidate) = ∩S(ai); S(target) = ∩S(bj). candidate ⊆ target holds
		// whenever every target conjunct is already one of candidate's own
		// conjuncts — extra candidate conjuncts only narrow further.
		for _, t := range target.Children {
			if !anyEquivalent(t, candidate.Children, getKey) {
				return false
			}
		}
		return true

	case FilterOr:
		// S(candidate) = ∪S(ai); S(target) = ∪S(bj). candidate ⊆ target holds
		// whenever every candidate disjunct is already one of target's own
		// disjuncts — extra target disjuncts only widen further.
		for _, c := range candidate.Children {
			if !anyEquivalent(c, target.Children, getKey) {
				return false
			}
		}
		return true

	case FilterNot:
		if len(candidate.Children) != 1 || len(target.Children) != 1 {
			return false
		}
		return isFilterSubsetNode(candidate.Children[0], target.Children[0], getKey)

	default:
		return false
	}
}

// anyEquivalent reports whether node is operator-subset-equivalent to any
// member of pool (used by And/Or subset checks, which compare per-child
// rather than recursing structurally).
func anyEquivalent[E any](node *Filter[E], pool []*Filter[E], getKey GetOperatorKey[E]) bool {
	for _, p := range pool {
		if node.Kind == FilterOperator && p.Kind == FilterOperator {
			if operatorEquivalent(node, p, getKey) {
				return true
			}
			continue
		}
		if isFilterSubsetNode(node, p, getKey) && isFilterSubsetNode(p, node, getKey) {
			return true
		}
	}
	return false
}

func operatorEquivalent[E any](a, b *Filter[E], getKey GetOperatorKey[E]) bool {
	return a.Key == b.Key && a.Op == b.Op && getKey(a) == getKey(b)
}
