package storecore

import (
	"context"
	"encoding/json"
	"log/slog"
)

// ID is an entity identity: a string or a number. Both are comparable, which
// is all the weak-value indices require.
type ID = any

// RequestParams is passed to every fetcher/mutator call. Ctx carries
// cancellation for the in-flight operation it backs (§5): a fetcher should
// select on ctx.Done() alongside its own I/O.
type RequestParams struct {
	Ctx  context.Context
	Meta map[string]any
}

// FetchCollectionParams is what collectionFetcher receives.
type FetchCollectionParams[E any] struct {
	Filter *Filter[E]
	Order  []OrderBy[E]
	Meta   map[string]any
}

// FetchItemParams is what itemFetcher receives.
type FetchItemParams struct {
	ID   ID
	Meta map[string]any
}

// DataResult wraps a single fetched/created/updated entity.
type DataResult[E any] struct {
	Data *E
}

// CollectionDataResult wraps a fetched collection.
type CollectionDataResult[E any] struct {
	Data []*E
}

// DeleteOutcome is the result of a delete call: the id acted on and whether
// the server actually removed it.
type DeleteOutcome struct {
	ID      ID
	Success bool
}

// DeleteResult wraps a DeleteOutcome.
type DeleteResult struct {
	Result DeleteOutcome
}

// CollectionFetcher fetches the entities matching filter/order.
type CollectionFetcher[E any] func(ctx context.Context, params FetchCollectionParams[E], req RequestParams) (CollectionDataResult[E], error)

// ItemFetcher fetches a single entity by id.
type ItemFetcher[E any] func(ctx context.Context, params FetchItemParams, req RequestParams) (DataResult[E], error)

// ItemCreator creates an entity from a partial value, returning the
// server-assigned result (including its final id).
type ItemCreator[E any] func(ctx context.Context, partial *E, req RequestParams) (DataResult[E], error)

// ItemUpdater sends a full entity update.
type ItemUpdater[E any] func(ctx context.Context, item *E, req RequestParams) (DataResult[E], error)

// ItemDeleter deletes an entity by id.
type ItemDeleter[E any] func(ctx context.Context, id ID, req RequestParams) (DeleteResult, error)

// BatchedCreator/Updater/Deleter are optional variants over iterables.
type BatchedCreator[E any] func(ctx context.Context, partials []*E, req RequestParams) (CollectionDataResult[E], error)
type BatchedUpdater[E any] func(ctx context.Context, items []*E, req RequestParams) (CollectionDataResult[E], error)
type BatchedDeleter[E any] func(ctx context.Context, ids []ID, req RequestParams) ([]DeleteOutcome, error)

// DebugLevel is the opaque three-value log-level enum from the debug config
// section (§9 Open Question). It is resolved onto each EntityConfig; the
// store's own log calls do not consult it, so what gets printed is decided
// by the Logger's handler level alone.
type DebugLevel string

const (
	DebugOff   DebugLevel = "off"
	DebugInfo  DebugLevel = "info"
	DebugDebug DebugLevel = "debug"
)

// EntityConfig declares everything the store needs to manage one entity
// type: identity, the five fetcher/mutator callbacks, and the behavioral
// knobs from §6.
type EntityConfig[E any] struct {
	Name string

	// IDKey/IDGet extract an entity's identity. Exactly one of them is set;
	// IDGet is checked first.
	IDKey string
	IDGet func(*E) ID

	CollectionFetcher CollectionFetcher[E]
	ItemFetcher       ItemFetcher[E]
	ItemCreator       ItemCreator[E]
	ItemUpdater       ItemUpdater[E]
	ItemDeleter       ItemDeleter[E]

	BatchedCreator BatchedCreator[E]
	BatchedUpdater BatchedUpdater[E]
	BatchedDeleter BatchedDeleter[E]

	Operators map[string]OperatorFunc
	Primitive PrimitiveComparator

	// TrustQuery, when true, skips client-side re-filter/re-sort and
	// id-mismatch validation on server responses (§6).
	TrustQuery bool

	// DevMode, when TrustQuery is on, logs the trust/id mismatches that
	// TrustQuery otherwise accepts silently.
	DevMode bool

	// UpdateDebounceTimeout is the minimum interval, in milliseconds,
	// between self-initiated mutations being coalesced; 0 disables
	// debouncing. Resolved policy: drop-prior (§9) — a mutation requested
	// while one is already pending for the same query replaces it rather
	// than queuing behind it.
	UpdateDebounceTimeout int

	DebugLevel DebugLevel

	// Logger receives this entity's query-lifecycle log lines (§4.10). Nil
	// means DefaultLogger, so a consumer never has to wire logging before
	// anything will run.
	Logger *slog.Logger
}

// logger returns cfg.Logger if the root store injected one, else the
// package-level DefaultLogger.
func (cfg EntityConfig[E]) logger() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return DefaultLogger
}

// idOf extracts an entity's id per its EntityConfig.
func idOf[E any](cfg EntityConfig[E], e *E) ID {
	if cfg.IDGet != nil {
		return cfg.IDGet(e)
	}
	return fieldByName(e, cfg.IDKey)
}

func (cfg EntityConfig[E]) filterConfig() FilterConfig[E] {
	ops := cfg.Operators
	if ops == nil {
		ops = DefaultOperators()
	}
	return FilterConfig[E]{Operators: ops}
}

func (cfg EntityConfig[E]) comparator(order []OrderBy[E]) Comparator[E] {
	base := BuildComparator(cfg.Primitive, order)
	idKey := cfg.IDKey
	return func(a, b *E) int {
		if c := base(a, b); c != 0 {
			return c
		}
		if idKey == "" {
			return 0
		}
		av, bv := fieldByName(a, idKey), fieldByName(b, idKey)
		return compareOrdered(av, bv)
	}
}

// collectionKey derives the canonical "ORDER<…>:FILTER<…>" string used to
// dedupe and look up collection queries (§3, §4.8).
func collectionKey[E any](filter *Filter[E], order []OrderBy[E]) string {
	simplifiedFilter := SimplifyFilter(filter)
	orderKey, err := json.Marshal(SimplifyOrderBy(order))
	if err != nil {
		panic(wrapErr(KindInternal, "order priority is not JSON-representable", err))
	}
	filterKey, err := json.Marshal(canonicalFilterJSON(simplifiedFilter))
	if err != nil {
		panic(wrapErr(KindInternal, "filter is not JSON-representable", err))
	}
	return "ORDER<" + string(orderKey) + ">:FILTER<" + string(filterKey) + ">"
}

// canonicalFilterJSON converts a simplified Filter tree into a
// JSON-marshalable value (Filter itself carries a Getter func, which cannot
// be marshaled).
func canonicalFilterJSON[E any](f *Filter[E]) any {
	if f == nil {
		return nil
	}
	switch f.Kind {
	case FilterOperator:
		return map[string]any{"kind": "operator", "key": f.Key, "op": f.Op, "test": f.Test}
	default:
		children := make([]any, len(f.Children))
		for i, c := range f.Children {
			children[i] = canonicalFilterJSON(c)
		}
		return map[string]any{"kind": "conjunction", "type": string(f.Kind), "operations": children}
	}
}
