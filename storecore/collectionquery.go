package storecore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shashiranjanraj/kashvi/pkg/metrics"
)

// CollectionQuery is a filtered, ordered live list (§4.7).
type CollectionQuery[E any] struct {
	mu  sync.Mutex
	cfg EntityConfig[E]
	bus *Bus

	key       string
	filter    *Filter[E]
	order     []OrderBy[E]
	predicate func(*E) bool
	comparator Comparator[E]

	items []*E
	index map[ID]int // id -> position in items, kept in sync with items

	state   QueryState
	lastErr error
	op      *inFlight

	// debounce coalesces self-initiated Create/Update/Delete dispatches per
	// the entity's resolved updateDebounceTimeout (§6, §9).
	debounce *Debouncer[*E]
}

// NewCollectionQuery builds a collection query for filter/order. If parent
// is non-nil and ready, and its simplified filter is a superset of this
// query's, the collection is seeded from the parent's items without a
// network call (§4.7 mode 1). Otherwise collectionFetcher is called.
func NewCollectionQuery[E any](ctx context.Context, cfg EntityConfig[E], bus *Bus, filter *Filter[E], order []OrderBy[E], meta map[string]any, parent *CollectionQuery[E]) *CollectionQuery[E] {
	fc := cfg.filterConfig()
	c := &CollectionQuery[E]{
		cfg:        cfg,
		bus:        bus,
		key:        collectionKey(filter, order),
		filter:     filter,
		order:      order,
		predicate:  CompileFilter(fc, filter),
		comparator: cfg.comparator(order),
		index:      make(map[ID]int),
		debounce:   NewDebouncer[*E](cfg.UpdateDebounceTimeout),
	}

	if parent != nil {
		if seeded, ok := c.seedFromParent(parent); ok {
			c.applyItemsLocked(seeded)
			c.state = StatePrefetched
			c.emit(EvReady, Event{Instance: c, Items: c.itemsSnapshot()})
			return c
		}
	}

	c.state = StateFetching
	c.startFetch(ctx, meta)
	return c
}

func (c *CollectionQuery[E]) seedFromParent(parent *CollectionQuery[E]) ([]*E, bool) {
	parent.mu.Lock()
	ready := parent.state == StateFetched || parent.state == StateActualized || parent.state == StatePrefetched
	parentFilter := parent.filter
	parentItems := append([]*E(nil), parent.items...)
	parent.mu.Unlock()

	if !ready {
		return nil, false
	}
	if !IsFilterSubset(c.filter, parentFilter, nil) {
		return nil, false
	}

	out := make([]*E, 0, len(parentItems))
	for _, it := range parentItems {
		if c.predicate(it) {
			out = append(out, it)
		}
	}
	SortItems(out, c.comparator)
	return out, true
}

// ─────────────────────────────────────────────
// Reactive properties
// ─────────────────────────────────────────────

func (c *CollectionQuery[E]) State() QueryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CollectionQuery[E]) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateFetched || c.state == StateActualized || c.state == StatePrefetched
}

func (c *CollectionQuery[E]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *CollectionQuery[E]) Progress(ctx context.Context) error {
	c.mu.Lock()
	op := c.op
	c.mu.Unlock()
	return op.wait(ctx)
}

// Key returns the canonical "ORDER<…>:FILTER<…>" dedup key (§3, §4.8).
func (c *CollectionQuery[E]) Key() string { return c.key }

// ─────────────────────────────────────────────
// Iteration API
// ─────────────────────────────────────────────

func (c *CollectionQuery[E]) itemsSnapshot() []*E {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*E(nil), c.items...)
}

func (c *CollectionQuery[E]) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *CollectionQuery[E]) At(i int) (*E, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.items) {
		return nil, false
	}
	return c.items[i], true
}

func (c *CollectionQuery[E]) GetByID(id ID) (*E, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.items[pos], true
}

func (c *CollectionQuery[E]) Values() []*E { return c.itemsSnapshot() }

func (c *CollectionQuery[E]) Keys() []ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]ID, len(c.items))
	for i, it := range c.items {
		keys[i] = idOf(c.cfg, it)
	}
	return keys
}

func (c *CollectionQuery[E]) Entries() [][2]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][2]any, len(c.items))
	for i, it := range c.items {
		out[i] = [2]any{idOf(c.cfg, it), it}
	}
	return out
}

func (c *CollectionQuery[E]) Map(fn func(*E) any) []any {
	items := c.itemsSnapshot()
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = fn(it)
	}
	return out
}

func (c *CollectionQuery[E]) Filter(fn func(*E) bool) []*E {
	items := c.itemsSnapshot()
	out := make([]*E, 0, len(items))
	for _, it := range items {
		if fn(it) {
			out = append(out, it)
		}
	}
	return out
}

func (c *CollectionQuery[E]) Find(fn func(*E) bool) (*E, bool) {
	for _, it := range c.itemsSnapshot() {
		if fn(it) {
			return it, true
		}
	}
	return nil, false
}

func (c *CollectionQuery[E]) ForEach(fn func(*E)) {
	for _, it := range c.itemsSnapshot() {
		fn(it)
	}
}

// ─────────────────────────────────────────────
// Refetch
// ─────────────────────────────────────────────

func (c *CollectionQuery[E]) Refetch(ctx context.Context, force bool) error {
	c.mu.Lock()
	if !force && c.op != nil {
		op := c.op
		c.mu.Unlock()
		return op.wait(ctx)
	}
	if c.op != nil && c.op.cancel != nil {
		c.op.cancel()
	}
	c.state = StateRefetching
	c.mu.Unlock()

	c.startFetch(ctx, nil)
	return c.Progress(ctx)
}

func (c *CollectionQuery[E]) startFetch(ctx context.Context, meta map[string]any) {
	opCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	op := &inFlight{kind: "fetch", cancel: cancel, done: done}

	c.mu.Lock()
	c.op = op
	filter, order := c.filter, c.order
	c.mu.Unlock()

	go func() {
		defer close(done)
		start := time.Now()
		result, err := c.cfg.CollectionFetcher(opCtx, FetchCollectionParams[E]{Filter: filter, Order: order, Meta: meta}, RequestParams{Ctx: opCtx, Meta: meta})
		metrics.ObserveFetch(c.cfg.Name, "collection", start)
		if opCtx.Err() != nil {
			return
		}
		op.err = c.handleFetchResult(result, err)
	}()
}

func (c *CollectionQuery[E]) handleFetchResult(result CollectionDataResult[E], err error) error {
	if err != nil {
		c.mu.Lock()
		wrapped := wrapErr(KindFetching, "collection fetcher call failed", err)
		c.lastErr = wrapped
		if len(c.items) > 0 {
			c.state = StateReErrored
		} else {
			c.state = StateErrored
		}
		c.op = nil
		c.mu.Unlock()
		c.emit(EvError, Event{Instance: c, Err: wrapped})
		return wrapped
	}

	data := result.Data
	c.mu.Lock()
	if !c.cfg.TrustQuery {
		filtered := make([]*E, 0, len(data))
		for _, it := range data {
			if c.predicate(it) {
				filtered = append(filtered, it)
			}
		}
		SortItems(filtered, c.comparator)
		data = filtered
	} else if c.cfg.DevMode {
		log := c.cfg.logger()
		for _, it := range data {
			if !c.predicate(it) {
				log.Debug("storecore: server returned item not matching filter", "entity", c.cfg.Name)
			}
		}
		if !sort.SliceIsSorted(data, func(i, j int) bool { return c.comparator(data[i], data[j]) < 0 }) {
			log.Debug("storecore: server response is not sorted per comparator", "entity", c.cfg.Name)
		}
	}

	firstArrival := c.state != StateFetched && c.state != StateActualized
	c.applyItemsLocked(data)
	c.state = StateFetched
	c.op = nil
	snapshot := c.itemsSnapshotLocked()
	c.mu.Unlock()

	if firstArrival {
		c.emit(EvReady, Event{Instance: c, Items: snapshot})
	}
	c.emit(EvUpdated, Event{Instance: c, Items: snapshot})
	c.emit(EvSelfUpdated, Event{Instance: c, Items: snapshot})
	return nil
}

func (c *CollectionQuery[E]) itemsSnapshotLocked() []*E {
	return append([]*E(nil), c.items...)
}

// applyItemsLocked replaces items atomically and rebuilds the id index.
// Caller holds c.mu.
func (c *CollectionQuery[E]) applyItemsLocked(items []*E) {
	c.items = items
	c.index = make(map[ID]int, len(items))
	for i, it := range items {
		c.index[idOf(c.cfg, it)] = i
	}
}

// ─────────────────────────────────────────────
// Incremental application (entity-store fan-out, §4.7)
// ─────────────────────────────────────────────

// SetOne inserts, repositions, replaces, or removes item depending on
// whether it satisfies the predicate and whether it is already present.
func (c *CollectionQuery[E]) SetOne(item *E) {
	c.mu.Lock()
	id := idOf(c.cfg, item)
	_, present := c.index[id]
	matches := c.predicate(item)

	var emitAdd, emitDel bool
	switch {
	case matches && !present:
		c.insertSortedLocked(item)
		emitAdd = true
	case matches && present:
		c.replaceLocked(id, item)
	case !matches && present:
		c.removeLocked(id)
		emitDel = true
	}
	snapshot := c.itemsSnapshotLocked()
	c.mu.Unlock()

	if emitAdd {
		c.emit(EvItemAdded, Event{Instance: c, Item: item, Items: snapshot})
	} else if emitDel {
		c.emit(EvItemDeleted, Event{Instance: c, ID: id, Items: snapshot})
	} else if matches && present {
		c.emit(EvItemUpdated, Event{Instance: c, Item: item, Items: snapshot})
	}
}

// DeleteOne removes id if present.
func (c *CollectionQuery[E]) DeleteOne(id ID) {
	c.mu.Lock()
	_, present := c.index[id]
	if !present {
		c.mu.Unlock()
		return
	}
	c.removeLocked(id)
	snapshot := c.itemsSnapshotLocked()
	c.mu.Unlock()

	c.emit(EvItemDeleted, Event{Instance: c, ID: id, Items: snapshot})
}

// SetMany applies every item via the same rules as SetOne, atomically, and
// emits a single updated event for the batch.
func (c *CollectionQuery[E]) SetMany(items []*E) {
	c.mu.Lock()
	for _, item := range items {
		id := idOf(c.cfg, item)
		_, present := c.index[id]
		matches := c.predicate(item)
		switch {
		case matches && !present:
			c.insertSortedLocked(item)
		case matches && present:
			c.replaceLocked(id, item)
		case !matches && present:
			c.removeLocked(id)
		}
	}
	snapshot := c.itemsSnapshotLocked()
	c.mu.Unlock()

	c.emit(EvUpdated, Event{Instance: c, Items: snapshot})
}

// DeleteMany removes every id present, atomically, emitting one updated event.
func (c *CollectionQuery[E]) DeleteMany(ids []ID) {
	c.mu.Lock()
	for _, id := range ids {
		if _, present := c.index[id]; present {
			c.removeLocked(id)
		}
	}
	snapshot := c.itemsSnapshotLocked()
	c.mu.Unlock()

	c.emit(EvUpdated, Event{Instance: c, Items: snapshot})
}

// UpdateMixed applies a batch of sets and deletes atomically, emitting one
// updated event.
func (c *CollectionQuery[E]) UpdateMixed(add []*E, del []ID) {
	c.mu.Lock()
	for _, item := range add {
		id := idOf(c.cfg, item)
		_, present := c.index[id]
		matches := c.predicate(item)
		switch {
		case matches && !present:
			c.insertSortedLocked(item)
		case matches && present:
			c.replaceLocked(id, item)
		case !matches && present:
			c.removeLocked(id)
		}
	}
	for _, id := range del {
		if _, present := c.index[id]; present {
			c.removeLocked(id)
		}
	}
	snapshot := c.itemsSnapshotLocked()
	c.mu.Unlock()

	c.emit(EvUpdated, Event{Instance: c, Items: snapshot})
}

// insertSortedLocked inserts item at the position the comparator dictates,
// breaking ties by id ascending. Caller holds c.mu.
func (c *CollectionQuery[E]) insertSortedLocked(item *E) {
	pos := sort.Search(len(c.items), func(i int) bool {
		return c.comparator(c.items[i], item) >= 0
	})
	c.items = append(c.items, nil)
	copy(c.items[pos+1:], c.items[pos:])
	c.items[pos] = item
	c.reindexLocked()
}

func (c *CollectionQuery[E]) replaceLocked(id ID, item *E) {
	pos, ok := c.index[id]
	if !ok {
		return
	}
	c.items = append(c.items[:pos], append([]*E{}, c.items[pos+1:]...)...)
	c.insertSortedLocked(item)
}

func (c *CollectionQuery[E]) removeLocked(id ID) {
	pos, ok := c.index[id]
	if !ok {
		return
	}
	c.items = append(c.items[:pos], c.items[pos+1:]...)
	c.reindexLocked()
}

func (c *CollectionQuery[E]) reindexLocked() {
	c.index = make(map[ID]int, len(c.items))
	for i, it := range c.items {
		c.index[idOf(c.cfg, it)] = i
	}
}

// ─────────────────────────────────────────────
// Self-initiated mutations (§4.7)
// ─────────────────────────────────────────────

// Create invokes itemCreator; on success the new item is inserted into this
// collection (if it matches the predicate) and selfItemCreated is emitted.
func (c *CollectionQuery[E]) Create(ctx context.Context, partial *E) (*E, error) {
	start := time.Now()
	result, err := c.cfg.ItemCreator(ctx, partial, RequestParams{Ctx: ctx})
	metrics.ObserveFetch(c.cfg.Name, "collection", start)
	if err != nil {
		wrapped := wrapErr(KindUpdating, "itemCreator call failed", err)
		c.mu.Lock()
		c.lastErr = wrapped
		c.mu.Unlock()
		c.emit(EvError, Event{Instance: c, Err: wrapped})
		return nil, wrapped
	}

	c.SetOne(result.Data)
	c.emit(EvSelfItemCreated, Event{Instance: c, Item: result.Data})
	return result.Data, nil
}

// Update invokes itemUpdater; on success the item is applied into this
// collection and selfItemUpdated is emitted. Repeated calls within the
// entity's updateDebounceTimeout window coalesce per the drop-prior policy
// (§9): only the most recently requested item is actually sent.
func (c *CollectionQuery[E]) Update(ctx context.Context, item *E) (*E, error) {
	resultCh := c.debounce.Run(func() (*E, error) {
		start := time.Now()
		result, err := c.cfg.ItemUpdater(ctx, item, RequestParams{Ctx: ctx})
		metrics.ObserveFetch(c.cfg.Name, "collection", start)
		if err != nil {
			wrapped := wrapErr(KindUpdating, "itemUpdater call failed", err)
			c.mu.Lock()
			c.lastErr = wrapped
			c.mu.Unlock()
			c.emit(EvError, Event{Instance: c, Err: wrapped})
			return nil, wrapped
		}

		c.SetOne(result.Data)
		c.emit(EvSelfItemUpdated, Event{Instance: c, Item: result.Data})
		return result.Data, nil
	})

	res := <-resultCh
	return res.Value, res.Err
}

// Delete invokes itemDeleter; on success the item is removed from this
// collection and selfItemDeleted is emitted.
func (c *CollectionQuery[E]) Delete(ctx context.Context, id ID) error {
	start := time.Now()
	result, err := c.cfg.ItemDeleter(ctx, id, RequestParams{Ctx: ctx})
	metrics.ObserveFetch(c.cfg.Name, "collection", start)
	if err != nil {
		wrapped := wrapErr(KindDeleting, "itemDeleter call failed", err)
		c.mu.Lock()
		c.lastErr = wrapped
		c.mu.Unlock()
		c.emit(EvError, Event{Instance: c, Err: wrapped})
		return wrapped
	}
	if !result.Result.Success {
		wrapped := newErr(KindUnsuccessfulDeletion, "server reported deletion failure")
		c.mu.Lock()
		c.lastErr = wrapped
		c.mu.Unlock()
		c.emit(EvError, Event{Instance: c, Err: wrapped})
		return wrapped
	}

	c.DeleteOne(id)
	c.emit(EvSelfItemDeleted, Event{Instance: c, ID: id})
	return nil
}

func (c *CollectionQuery[E]) emit(name string, ev Event) {
	if c.bus == nil {
		return
	}
	c.bus.dispatch(name, ev)
}
