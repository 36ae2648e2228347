package storecore

import (
	"runtime"
	"sync"
	"weak"

	"github.com/shashiranjanraj/kashvi/pkg/metrics"
)

// WeakIndex deduplicates values of type V by key K without keeping them
// alive: once nothing outside the index holds a *V, the runtime reclaims it
// and the index drops its entry automatically. This is how the store avoids
// pinning every ItemQuery/CollectionQuery that has ever been created for the
// lifetime of the process — queries nobody is observing anymore are free to
// be garbage collected, and the index notices and cleans up after itself.
//
// entity/kind label the finalization metric; bus, if non-nil, receives
// set/delete/finalize/clear events (§2) as the index's contents change.
type WeakIndex[K comparable, V any] struct {
	mu     sync.Mutex
	values map[K]weak.Pointer[V]
	entity string
	kind   string
	bus    *Bus
}

// NewWeakIndex creates an empty index. entity/kind label the
// storecore_finalizations_total metric emitted on reclamation. bus may be
// nil, in which case the index never emits events (used by isolated tests).
func NewWeakIndex[K comparable, V any](entity, kind string, bus *Bus) *WeakIndex[K, V] {
	return &WeakIndex[K, V]{
		values: make(map[K]weak.Pointer[V]),
		entity: entity,
		kind:   kind,
		bus:    bus,
	}
}

// Get returns the live value for key, or nil/false if absent or already
// reclaimed.
func (w *WeakIndex[K, V]) Get(key K) (*V, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wp, ok := w.values[key]
	if !ok {
		return nil, false
	}
	v := wp.Value()
	if v == nil {
		delete(w.values, key)
		if w.isQueryKind() {
			metrics.QueriesActive.WithLabelValues(w.entity, w.kind).Dec()
		}
		w.emitFinalize(key)
		return nil, false
	}
	return v, true
}

// GetOrSet returns the existing live value for key if one exists, otherwise
// stores and returns newly created value. The create func is only invoked
// when no live value is present, so callers can pass a lazily-built query.
func (w *WeakIndex[K, V]) GetOrSet(key K, create func() *V) (v *V, loaded bool) {
	w.mu.Lock()
	if wp, ok := w.values[key]; ok {
		if existing := wp.Value(); existing != nil {
			w.mu.Unlock()
			return existing, true
		}
		delete(w.values, key)
		if w.isQueryKind() {
			metrics.QueriesActive.WithLabelValues(w.entity, w.kind).Dec()
		}
		w.emitFinalize(key)
	}
	w.mu.Unlock()

	created := create()

	w.mu.Lock()
	defer w.mu.Unlock()

	if wp, ok := w.values[key]; ok {
		if existing := wp.Value(); existing != nil {
			return existing, true
		}
	}
	w.set(key, created)
	return created, false
}

// Set stores value under key, replacing whatever was previously there.
func (w *WeakIndex[K, V]) Set(key K, value *V) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.set(key, value)
}

func (w *WeakIndex[K, V]) set(key K, value *V) {
	w.values[key] = weak.Make(value)
	runtime.AddCleanup(value, w.finalize, key)
	w.emitSet(key, value)
	if w.isQueryKind() {
		metrics.QueriesActive.WithLabelValues(w.entity, w.kind).Inc()
	}
}

// finalize runs when the runtime has determined a value is unreachable
// except through this index's weak pointer. It removes the now-dangling
// entry, records a reclamation, and emits finalize for the key.
func (w *WeakIndex[K, V]) finalize(key K) {
	w.mu.Lock()
	dangling := false
	if wp, ok := w.values[key]; ok && wp.Value() == nil {
		delete(w.values, key)
		dangling = true
	}
	w.mu.Unlock()

	metrics.FinalizationsTotal.WithLabelValues(w.entity, w.kind).Inc()
	if dangling && w.isQueryKind() {
		metrics.QueriesActive.WithLabelValues(w.entity, w.kind).Dec()
	}
	w.emitFinalize(key)
}

// Delete removes key unconditionally and emits delete.
func (w *WeakIndex[K, V]) Delete(key K) {
	w.mu.Lock()
	_, existed := w.values[key]
	delete(w.values, key)
	w.mu.Unlock()

	if existed && w.isQueryKind() {
		metrics.QueriesActive.WithLabelValues(w.entity, w.kind).Dec()
	}
	w.emitDelete(key)
}

// isQueryKind reports whether this index's entries correspond to live
// ItemQuery/CollectionQuery instances, as opposed to the plain id→item
// index — only the former two are "queries" for storecore_queries_active
// (§4.12).
func (w *WeakIndex[K, V]) isQueryKind() bool {
	return w.kind == "item" || w.kind == "collection"
}

// emitSet/emitDelete/emitFinalize/emitClear dispatch the index's public
// event surface (§2) when a bus is wired. No-ops otherwise.
func (w *WeakIndex[K, V]) emitSet(key K, value *V) {
	if w.bus != nil {
		w.bus.dispatch(EvIndexSet, Event{ID: key, Item: value})
	}
}

func (w *WeakIndex[K, V]) emitDelete(key K) {
	if w.bus != nil {
		w.bus.dispatch(EvIndexDelete, Event{ID: key})
	}
}

func (w *WeakIndex[K, V]) emitFinalize(key K) {
	if w.bus != nil {
		w.bus.dispatch(EvIndexFinalize, Event{ID: key})
	}
}

func (w *WeakIndex[K, V]) emitClear() {
	if w.bus != nil {
		w.bus.dispatch(EvIndexClear, Event{})
	}
}

// Has reports whether key currently maps to a live value.
func (w *WeakIndex[K, V]) Has(key K) bool {
	_, ok := w.Get(key)
	return ok
}

// Len returns the number of entries that still resolve to a live value.
// Dangling entries encountered during the scan are dropped as a side effect,
// mirroring how Get/GetOrSet opportunistically compact the index.
func (w *WeakIndex[K, V]) Len() int {
	w.mu.Lock()
	var dangling []K
	n := 0
	for k, wp := range w.values {
		if wp.Value() == nil {
			delete(w.values, k)
			dangling = append(dangling, k)
			continue
		}
		n++
	}
	w.mu.Unlock()

	if w.isQueryKind() && len(dangling) > 0 {
		metrics.QueriesActive.WithLabelValues(w.entity, w.kind).Sub(float64(len(dangling)))
	}
	for _, k := range dangling {
		w.emitFinalize(k)
	}
	return n
}

// Each calls fn for every key currently resolving to a live value. fn must
// not mutate the index. Entries found dangling during the scan are dropped
// and reported via finalize, same as Get/Len.
func (w *WeakIndex[K, V]) Each(fn func(K, *V)) {
	w.mu.Lock()
	snapshot := make(map[K]*V, len(w.values))
	var dangling []K
	for k, wp := range w.values {
		if v := wp.Value(); v != nil {
			snapshot[k] = v
		} else {
			delete(w.values, k)
			dangling = append(dangling, k)
		}
	}
	w.mu.Unlock()

	if w.isQueryKind() && len(dangling) > 0 {
		metrics.QueriesActive.WithLabelValues(w.entity, w.kind).Sub(float64(len(dangling)))
	}
	for _, k := range dangling {
		w.emitFinalize(k)
	}

	for k, v := range snapshot {
		fn(k, v)
	}
}

// Clear removes every entry and emits clear.
func (w *WeakIndex[K, V]) Clear() {
	w.mu.Lock()
	w.values = make(map[K]weak.Pointer[V])
	w.mu.Unlock()
	if w.isQueryKind() {
		metrics.QueriesActive.WithLabelValues(w.entity, w.kind).Set(0)
	}
	w.emitClear()
}
