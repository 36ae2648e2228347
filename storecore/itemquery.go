package storecore

import (
	"context"
	"sync"
	"time"

	"github.com/shashiranjanraj/kashvi/pkg/metrics"
)

// QueryState is a point in an ItemQuery's or CollectionQuery's lifecycle (§3).
type QueryState string

const (
	StateInitialized QueryState = "initialized"
	StatePrefetched  QueryState = "prefetched"
	StateCreating    QueryState = "creating"
	StateFetching    QueryState = "fetching"
	StateRefetching  QueryState = "refetching"
	StateUpdating    QueryState = "updating"
	StateDeleting    QueryState = "deleting"
	StateFetched     QueryState = "fetched"
	StateActualized  QueryState = "actualized"
	StateErrored     QueryState = "errored"
	StateReErrored   QueryState = "reErrored"
	StateDeleted     QueryState = "deleted"
)

// inFlight tracks the network operation currently owned by a query so a
// second caller can await it (refetch-without-force) or preempt it
// (force=true), per §5's cancellation-token model.
type inFlight struct {
	kind   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (f *inFlight) wait(ctx context.Context) error {
	if f == nil {
		return nil
	}
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ItemQuery is a single-entity live handle (§4.6).
type ItemQuery[E any] struct {
	mu  sync.Mutex
	cfg EntityConfig[E]
	bus *Bus

	id      ID
	state   QueryState
	item    *E
	mutable *E
	lastErr error
	op      *inFlight

	// debounce coalesces self-initiated Update/Commit/Mutate dispatches per
	// the entity's resolved updateDebounceTimeout (§6, §9).
	debounce *Debouncer[struct{}]
}

// NewPrefetchedItemQuery builds a query whose value is already known —
// state starts at Prefetched, no fetcher call is made.
func NewPrefetchedItemQuery[E any](cfg EntityConfig[E], bus *Bus, item *E) *ItemQuery[E] {
	q := &ItemQuery[E]{cfg: cfg, bus: bus, state: StatePrefetched, debounce: NewDebouncer[struct{}](cfg.UpdateDebounceTimeout)}
	q.installLocked(item, false)
	q.id = idOf(cfg, item)
	return q
}

// NewFetchingItemQuery builds a query that immediately calls itemFetcher.
func NewFetchingItemQuery[E any](ctx context.Context, cfg EntityConfig[E], bus *Bus, id ID, meta map[string]any) *ItemQuery[E] {
	q := &ItemQuery[E]{cfg: cfg, bus: bus, state: StateFetching, id: id, debounce: NewDebouncer[struct{}](cfg.UpdateDebounceTimeout)}
	q.startFetch(ctx, meta)
	return q
}

// NewCreatingItemQuery builds a query that immediately calls itemCreator.
func NewCreatingItemQuery[E any](ctx context.Context, cfg EntityConfig[E], bus *Bus, partial *E) *ItemQuery[E] {
	q := &ItemQuery[E]{cfg: cfg, bus: bus, state: StateCreating, debounce: NewDebouncer[struct{}](cfg.UpdateDebounceTimeout)}
	q.startCreate(ctx, partial)
	return q
}

// ─────────────────────────────────────────────
// Reactive properties
// ─────────────────────────────────────────────

func (q *ItemQuery[E]) State() QueryState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *ItemQuery[E]) InProgress() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.op != nil
}

// Ready reports whether the query currently holds a displayable item.
func (q *ItemQuery[E]) Ready() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.item != nil && q.state != StateDeleted
}

// Data returns the current item, or NotReady if none has arrived yet.
func (q *ItemQuery[E]) Data() (*E, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.item == nil {
		return nil, newErr(KindNotReady, "item query has no data yet")
	}
	return q.item, nil
}

// Mutable returns the editable draft, or an error if not ready / deleted.
func (q *ItemQuery[E]) Mutable() (*E, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateDeleted {
		return nil, newErr(KindDeletedItem, "item was deleted")
	}
	if q.item == nil {
		return nil, newErr(KindNotReady, "item query has no data yet")
	}
	return q.mutable, nil
}

func (q *ItemQuery[E]) ID() ID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.id
}

func (q *ItemQuery[E]) LastError() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

// Progress blocks until the current in-flight operation settles (success,
// failure, or cancellation). It returns immediately if nothing is in flight.
func (q *ItemQuery[E]) Progress(ctx context.Context) error {
	q.mu.Lock()
	op := q.op
	q.mu.Unlock()
	return op.wait(ctx)
}

// ─────────────────────────────────────────────
// Operations
// ─────────────────────────────────────────────

// Refetch re-requests the server copy. With force=false it returns (waits
// for) the existing in-flight fetch/refetch if one is running, and fails with
// NotCreated/AlreadyRunning while a create, update, or delete is in flight.
// With force=true it cancels whatever is running and starts a refetch.
func (q *ItemQuery[E]) Refetch(ctx context.Context, force bool) error {
	q.mu.Lock()
	if !force && q.op != nil && (q.state == StateFetching || q.state == StateRefetching) {
		op := q.op
		q.mu.Unlock()
		return op.wait(ctx)
	}
	if !force {
		if err := q.checkCanStartLocked("refetch"); err != nil {
			q.mu.Unlock()
			return err
		}
	}
	q.cancelLocked()
	q.state = StateRefetching
	q.mu.Unlock()

	q.startFetch(ctx, nil)
	return q.Progress(ctx)
}

// Commit sends the current mutable draft as a server update.
func (q *ItemQuery[E]) Commit(ctx context.Context, force bool) error {
	q.mu.Lock()
	mutable := q.mutable
	q.mu.Unlock()
	return q.Update(ctx, mutable, force)
}

// Mutate clones the item, applies fn, and sends the result as a server
// update. fn may mutate its argument in place or return a replacement.
func (q *ItemQuery[E]) Mutate(ctx context.Context, fn func(*E) *E, force bool) error {
	q.mu.Lock()
	if q.item == nil {
		q.mu.Unlock()
		return newErr(KindNotReady, "cannot mutate: item query has no data yet")
	}
	clone := cloneEntity(q.item)
	q.mu.Unlock()

	result := fn(clone)
	if result == nil {
		result = clone
	}
	return q.Update(ctx, result, force)
}

// Update requests a server update with newItem. If newItem's id differs
// from the tracked id and TrustQuery is off, it fails with IdMismatch and
// the mutable draft is reset.
func (q *ItemQuery[E]) Update(ctx context.Context, newItem *E, force bool) error {
	q.mu.Lock()
	if !q.cfg.TrustQuery && newItem != nil {
		if newID := idOf(q.cfg, newItem); !idsEqual(newID, q.id) {
			q.mutable = cloneEntity(q.item)
			q.mu.Unlock()
			return newErr(KindIDMismatch, "updated item id does not match tracked id")
		}
	}
	if !force {
		if err := q.checkCanStartLocked("update"); err != nil {
			q.mu.Unlock()
			return err
		}
	}
	q.cancelLocked()
	q.state = StateUpdating
	q.mu.Unlock()

	resultCh := q.debounce.Run(func() (struct{}, error) {
		q.startUpdate(ctx, newItem)
		return struct{}{}, q.Progress(ctx)
	})
	return (<-resultCh).Err
}

// Delete requests server deletion of the tracked id.
func (q *ItemQuery[E]) Delete(ctx context.Context, force bool) error {
	q.mu.Lock()
	if !force {
		if err := q.checkCanStartLocked("delete"); err != nil {
			q.mu.Unlock()
			return err
		}
	}
	q.cancelLocked()
	q.state = StateDeleting
	id := q.id
	q.mu.Unlock()

	q.startDelete(ctx, id)
	return q.Progress(ctx)
}

// checkCanStartLocked implements the concurrency rules of §4.6 for
// non-forced operations. Caller holds q.mu.
func (q *ItemQuery[E]) checkCanStartLocked(op string) error {
	switch q.state {
	case StateCreating:
		return newErr(KindNotCreated, "item query is still creating")
	case StateDeleting:
		if op != "delete" {
			return newErr(KindAlreadyRunning, "a delete is already in flight")
		}
	case StateFetching, StateRefetching, StateUpdating:
		return newErr(KindAlreadyRunning, "a conflicting operation is already in flight")
	}
	return nil
}

func (q *ItemQuery[E]) cancelLocked() {
	if q.op != nil && q.op.cancel != nil {
		q.op.cancel()
	}
	q.op = nil
}

// ─────────────────────────────────────────────
// Fetcher/mutator execution
// ─────────────────────────────────────────────

func (q *ItemQuery[E]) startFetch(ctx context.Context, meta map[string]any) {
	opCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	op := &inFlight{kind: "fetch", cancel: cancel, done: done}

	q.mu.Lock()
	q.op = op
	id := q.id
	q.mu.Unlock()

	go func() {
		defer close(done)
		start := time.Now()
		result, err := q.cfg.ItemFetcher(opCtx, FetchItemParams{ID: id, Meta: meta}, RequestParams{Ctx: opCtx, Meta: meta})
		metrics.ObserveFetch(q.cfg.Name, "item", start)
		if opCtx.Err() != nil {
			return // cancelled: no state transition, no error event (§5)
		}
		op.err = q.handleFetchResult(result, err, false)
	}()
}

func (q *ItemQuery[E]) startCreate(ctx context.Context, partial *E) {
	opCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	op := &inFlight{kind: "create", cancel: cancel, done: done}

	q.mu.Lock()
	q.op = op
	q.mu.Unlock()

	go func() {
		defer close(done)
		start := time.Now()
		result, err := q.cfg.ItemCreator(opCtx, partial, RequestParams{Ctx: opCtx})
		metrics.ObserveFetch(q.cfg.Name, "item", start)
		if opCtx.Err() != nil {
			return
		}
		op.err = q.handleFetchResult(result, err, true)
	}()
}

func (q *ItemQuery[E]) startUpdate(ctx context.Context, newItem *E) {
	opCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	op := &inFlight{kind: "update", cancel: cancel, done: done}

	q.mu.Lock()
	q.op = op
	q.mu.Unlock()

	go func() {
		defer close(done)
		start := time.Now()
		result, err := q.cfg.ItemUpdater(opCtx, newItem, RequestParams{Ctx: opCtx})
		metrics.ObserveFetch(q.cfg.Name, "item", start)
		if opCtx.Err() != nil {
			return
		}
		op.err = q.handleFetchResult(result, err, false)
	}()
}

func (q *ItemQuery[E]) startDelete(ctx context.Context, id ID) {
	opCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	op := &inFlight{kind: "delete", cancel: cancel, done: done}

	q.mu.Lock()
	q.op = op
	q.mu.Unlock()

	go func() {
		defer close(done)
		start := time.Now()
		result, err := q.cfg.ItemDeleter(opCtx, id, RequestParams{Ctx: opCtx})
		metrics.ObserveFetch(q.cfg.Name, "item", start)
		if opCtx.Err() != nil {
			return
		}
		op.err = q.handleDeleteResult(result, err)
	}()
}

// handleFetchResult applies a successful/failed fetch, create, or update
// response and returns the error (if any) to hand back to Progress waiters.
func (q *ItemQuery[E]) handleFetchResult(result DataResult[E], err error, wasCreate bool) error {
	q.mu.Lock()

	if err != nil {
		wrapped := wrapErr(fetchErrKind(q.state), "fetcher/mutator call failed", err)
		q.lastErr = wrapped
		if q.item != nil {
			q.state = StateReErrored
		} else {
			q.state = StateErrored
		}
		q.op = nil
		q.mu.Unlock()
		q.emit(EvError, Event{Instance: q, Err: wrapped})
		return wrapped
	}

	newID := idOf(q.cfg, result.Data)
	if wasCreate {
		q.id = newID
		q.mu.Unlock()
		q.emit(EvCreated, Event{Instance: q, Item: result.Data, ID: newID})
		q.mu.Lock()
	} else if !q.cfg.TrustQuery {
		if !idsEqual(newID, q.id) {
			wrapped := newErr(KindTrustIDMismatch, "server returned an item with a different id than requested")
			q.lastErr = wrapped
			if q.item != nil {
				q.state = StateReErrored
			} else {
				q.state = StateErrored
			}
			q.op = nil
			q.mu.Unlock()
			q.emit(EvError, Event{Instance: q, Err: wrapped})
			return wrapped
		}
	} else if q.cfg.DevMode {
		if !idsEqual(newID, q.id) {
			q.cfg.logger().Debug("storecore: trust-mode id mismatch accepted", "entity", q.cfg.Name, "tracked", q.id, "server", newID)
			q.id = newID
		}
	}

	firstArrival := q.item == nil
	q.installLocked(result.Data, true)
	q.state = StateFetched
	q.op = nil
	item := q.item
	q.mu.Unlock()

	if firstArrival {
		q.emit(EvReady, Event{Instance: q, Item: item})
	}
	q.emit(EvUpdated, Event{Instance: q, Item: item})
	q.emit(EvSelfUpdated, Event{Instance: q, Item: item})
	return nil
}

func (q *ItemQuery[E]) handleDeleteResult(result DeleteResult, err error) error {
	q.mu.Lock()

	if err != nil {
		wrapped := wrapErr(KindDeleting, "deleter call failed", err)
		q.lastErr = wrapped
		q.state = StateReErrored
		q.op = nil
		q.mu.Unlock()
		q.emit(EvError, Event{Instance: q, Err: wrapped})
		return wrapped
	}

	if !result.Result.Success {
		wrapped := newErr(KindUnsuccessfulDeletion, "server reported deletion failure")
		q.lastErr = wrapped
		q.state = StateReErrored
		q.op = nil
		q.mu.Unlock()
		q.emit(EvError, Event{Instance: q, Err: wrapped})
		return wrapped
	}

	q.state = StateDeleted
	q.op = nil
	id := q.id
	q.mu.Unlock()

	q.emit(EvDeleted, Event{Instance: q, ID: id})
	q.emit(EvSelfDeleted, Event{Instance: q, ID: id})
	return nil
}

func fetchErrKind(prior QueryState) Kind {
	if prior == StateUpdating {
		return KindUpdating
	}
	return KindFetching
}

// ─────────────────────────────────────────────
// External ingestion (entity-store fan-out, §4.6)
// ─────────────────────────────────────────────

// setOne accepts an update pushed from a sibling query or the root store.
// It emits updated only (no selfUpdated); if nothing is in flight, the
// query settles into Actualized.
func (q *ItemQuery[E]) setOne(item *E) {
	q.mu.Lock()
	q.installLocked(item, true)
	if q.op == nil {
		q.state = StateActualized
	}
	current := q.item
	q.mu.Unlock()

	q.emit(EvUpdated, Event{Instance: q, Item: current})
}

// deleteOne cancels any in-flight operation and transitions to Deleted if id
// matches the tracked id.
func (q *ItemQuery[E]) deleteOne(id ID) {
	q.mu.Lock()
	if !idsEqual(id, q.id) {
		q.mu.Unlock()
		return
	}
	q.cancelLocked()
	q.state = StateDeleted
	q.mu.Unlock()

	q.emit(EvDeleted, Event{Instance: q, ID: id})
}

// installLocked replaces the held item (and resets the mutable draft).
// Caller holds q.mu.
func (q *ItemQuery[E]) installLocked(item *E, reset bool) {
	q.item = item
	if reset || q.mutable == nil {
		q.mutable = cloneEntity(item)
	}
}

func (q *ItemQuery[E]) emit(name string, ev Event) {
	if q.bus == nil {
		return
	}
	q.bus.dispatch(name, ev)
}

func idsEqual(a, b ID) bool { return a == b }

// cloneEntity makes a shallow copy of *E. Entities are plain record types,
// so a field-for-field copy is sufficient to give callers an independent
// mutable draft.
func cloneEntity[E any](item *E) *E {
	if item == nil {
		return nil
	}
	cp := *item
	return &cp
}
