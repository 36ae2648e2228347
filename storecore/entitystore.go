package storecore

import "context"

// EntityStore is the per-entity facade (§4.8): it deduplicates queries via
// weak-value indices, fans out self-initiated changes between item
// queries, collection queries, and its own id→item index, and forwards
// externally pushed mutations from the root store.
type EntityStore[E any] struct {
	cfg EntityConfig[E]
	bus *Bus

	items       *WeakIndex[ID, E]
	itemQueries *WeakIndex[ID, ItemQuery[E]]
	collections *WeakIndex[string, CollectionQuery[E]]
}

// NewEntityStore wires a fresh entity store and its fan-out subscriptions.
func NewEntityStore[E any](cfg EntityConfig[E]) *EntityStore[E] {
	bus := NewBus()
	s := &EntityStore[E]{
		cfg:         cfg,
		bus:         bus,
		items:       NewWeakIndex[ID, E](cfg.Name, "item-index", bus),
		itemQueries: NewWeakIndex[ID, ItemQuery[E]](cfg.Name, "item", bus),
		collections: NewWeakIndex[string, CollectionQuery[E]](cfg.Name, "collection", bus),
	}
	s.wireFanOut()
	s.bus.dispatch(EvInitialized, Event{Instance: s})
	return s
}

// Bus exposes the shared event bus so queries constructed directly (tests,
// advanced callers) can be wired to the same dispatch loop.
func (s *EntityStore[E]) Bus() *Bus { return s.bus }

func (s *EntityStore[E]) wireFanOut() {
	s.bus.On(EvSelfUpdated, func(ev Event) {
		iq, ok := ev.Instance.(*ItemQuery[E])
		if !ok {
			return
		}
		item, ok := ev.Item.(*E)
		if !ok {
			return
		}
		s.applyFromItem(item, iq, nil)
	})

	s.bus.On(EvSelfDeleted, func(ev Event) {
		iq, ok := ev.Instance.(*ItemQuery[E])
		if !ok {
			return
		}
		s.applyDelete(ev.ID, iq, nil)
	})

	s.bus.On(EvSelfItemCreated, func(ev Event) {
		cq, ok := ev.Instance.(*CollectionQuery[E])
		if !ok {
			return
		}
		item, ok := ev.Item.(*E)
		if !ok {
			return
		}
		s.applyFromItem(item, nil, cq)
	})

	s.bus.On(EvSelfItemUpdated, func(ev Event) {
		cq, ok := ev.Instance.(*CollectionQuery[E])
		if !ok {
			return
		}
		item, ok := ev.Item.(*E)
		if !ok {
			return
		}
		s.applyFromItem(item, nil, cq)
	})

	s.bus.On(EvSelfItemDeleted, func(ev Event) {
		cq, ok := ev.Instance.(*CollectionQuery[E])
		if !ok {
			return
		}
		s.applyDelete(ev.ID, nil, cq)
	})
}

// applyFromItem updates the entity index and fans item into every sibling
// query except the originating skipItem/skipCollection (§4.8).
func (s *EntityStore[E]) applyFromItem(item *E, skipItem *ItemQuery[E], skipCollection *CollectionQuery[E]) {
	id := idOf(s.cfg, item)
	_, existed := s.items.Get(id)
	s.items.Set(id, item)

	if iq, ok := s.itemQueries.Get(id); ok && iq != skipItem {
		iq.setOne(item)
	}
	s.collections.Each(func(_ string, cq *CollectionQuery[E]) {
		if cq == skipCollection {
			return
		}
		cq.SetOne(item)
	})

	if existed {
		s.bus.dispatch(EvItemUpdated, Event{Instance: s, Item: item, ID: id})
	} else {
		s.bus.dispatch(EvItemAdded, Event{Instance: s, Item: item, ID: id})
	}
	s.bus.dispatch(EvUpdated, Event{Instance: s, Item: item, ID: id})
}

func (s *EntityStore[E]) applyDelete(id ID, skipItem *ItemQuery[E], skipCollection *CollectionQuery[E]) {
	s.items.Delete(id)

	if iq, ok := s.itemQueries.Get(id); ok && iq != skipItem {
		iq.deleteOne(id)
	}
	s.collections.Each(func(_ string, cq *CollectionQuery[E]) {
		if cq == skipCollection {
			return
		}
		cq.DeleteOne(id)
	})

	s.bus.dispatch(EvItemDeleted, Event{Instance: s, ID: id})
	s.bus.dispatch(EvDeleted, Event{Instance: s, ID: id})
}

// ─────────────────────────────────────────────
// Public operations
// ─────────────────────────────────────────────

// GetItem returns the existing item query for id if one is still retained,
// or constructs a new one, seeded from the entity index when the id is
// already known.
func (s *EntityStore[E]) GetItem(ctx context.Context, id ID, meta map[string]any) *ItemQuery[E] {
	created, _ := s.itemQueries.GetOrSet(id, func() *ItemQuery[E] {
		if seed, ok := s.items.Get(id); ok {
			return NewPrefetchedItemQuery(s.cfg, s.bus, seed)
		}
		return NewFetchingItemQuery(ctx, s.cfg, s.bus, id, meta)
	})
	return created
}

// CreateItem starts a new item query in the Creating state.
func (s *EntityStore[E]) CreateItem(ctx context.Context, partial *E) *ItemQuery[E] {
	return NewCreatingItemQuery(ctx, s.cfg, s.bus, partial)
}

// GetCollection returns the existing collection query for filter/order if
// one is still retained, or constructs a new one. New queries are seeded
// from the first ready collection whose filter is a superset of the
// requested one (parent-query lookup, §4.8), avoiding a network call when
// possible.
func (s *EntityStore[E]) GetCollection(ctx context.Context, filter *Filter[E], order []OrderBy[E], meta map[string]any) *CollectionQuery[E] {
	key := collectionKey(filter, order)
	created, _ := s.collections.GetOrSet(key, func() *CollectionQuery[E] {
		parent := s.findParentCollection(filter)
		return NewCollectionQuery(ctx, s.cfg, s.bus, filter, order, meta, parent)
	})
	return created
}

func (s *EntityStore[E]) findParentCollection(filter *Filter[E]) *CollectionQuery[E] {
	var found *CollectionQuery[E]
	s.collections.Each(func(_ string, cq *CollectionQuery[E]) {
		if found != nil || !cq.Ready() {
			return
		}
		if IsFilterSubset(filter, cq.filter, nil) {
			found = cq
		}
	})
	return found
}

// ─────────────────────────────────────────────
// External push operations (from the root store, §4.9)
// ─────────────────────────────────────────────

// UpdateOne pushes an externally-sourced update. External pushes skip
// nothing: every sibling query is updated.
func (s *EntityStore[E]) UpdateOne(item *E) { s.applyFromItem(item, nil, nil) }

// DeleteOne pushes an externally-sourced deletion.
func (s *EntityStore[E]) DeleteOne(id ID) { s.applyDelete(id, nil, nil) }

// UpdateMany pushes a batch of externally-sourced updates.
func (s *EntityStore[E]) UpdateMany(items []*E) {
	for _, item := range items {
		s.applyFromItem(item, nil, nil)
	}
}

// DeleteMany pushes a batch of externally-sourced deletions.
func (s *EntityStore[E]) DeleteMany(ids []ID) {
	for _, id := range ids {
		s.applyDelete(id, nil, nil)
	}
}

// UpdateMixed pushes a combined batch of sets and deletes.
func (s *EntityStore[E]) UpdateMixed(add []*E, del []ID) {
	for _, item := range add {
		s.applyFromItem(item, nil, nil)
	}
	for _, id := range del {
		s.applyDelete(id, nil, nil)
	}
}
