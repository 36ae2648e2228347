package storecore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 1 (§8): a self-initiated item update is reflected, exactly once,
// in a sibling collection query that already held the item.
func TestEntityStoreFanOutAppliesSelfUpdateToSiblingCollection(t *testing.T) {
	fetchers := &testFetchers{
		Item: func(ctx context.Context, id ID) (DataResult[Item], error) {
			return DataResult[Item]{Data: &Item{ID: id.(string), Name: "original"}}, nil
		},
		Collection: func(ctx context.Context, params FetchCollectionParams[Item]) (CollectionDataResult[Item], error) {
			return CollectionDataResult[Item]{Data: []*Item{{ID: "1"}, {ID: "2"}}}, nil
		},
		Update: func(ctx context.Context, item *Item) (DataResult[Item], error) {
			return DataResult[Item]{Data: item}, nil
		},
	}
	store := NewEntityStore(itemConfig(fetchers))

	collection := store.GetCollection(context.Background(), nil, nil, nil)
	waitForCollectionState(t, collection, StateFetched)

	itemUpdated := make(chan Event, 4)
	// Collection queries share the store's bus; keep only the store's events.
	store.Bus().On(EvItemUpdated, func(ev Event) {
		if ev.Instance == store {
			itemUpdated <- ev
		}
	})

	item := store.GetItem(context.Background(), "2", nil)
	waitForState(t, item.State, StateFetched)

	require.NoError(t, item.Update(context.Background(), &Item{ID: "2", Name: "renamed"}, false))

	select {
	case <-itemUpdated:
	case <-time.After(time.Second):
		t.Fatal("entity store never dispatched itemUpdated")
	}

	// itemUpdated is dispatched after the fan-out into the collection, so the
	// collection holds the new value by now.
	got, ok := collection.GetByID("2")
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Name)

	select {
	case <-itemUpdated:
		t.Fatal("exactly one itemUpdated was expected for a single update")
	case <-time.After(50 * time.Millisecond):
	}
}

// Scenario 2 (§8): deleting through an item query removes the entity from a
// sibling collection and settles the item query into Deleted.
func TestEntityStoreFanOutAppliesSelfDeleteToSiblingCollection(t *testing.T) {
	fetchers := &testFetchers{
		Item: func(ctx context.Context, id ID) (DataResult[Item], error) {
			return DataResult[Item]{Data: &Item{ID: id.(string)}}, nil
		},
		Collection: func(ctx context.Context, params FetchCollectionParams[Item]) (CollectionDataResult[Item], error) {
			return CollectionDataResult[Item]{Data: []*Item{{ID: "1"}, {ID: "2"}}}, nil
		},
		Delete: func(ctx context.Context, id ID) (DeleteResult, error) {
			return DeleteResult{Result: DeleteOutcome{ID: id, Success: true}}, nil
		},
	}
	store := NewEntityStore(itemConfig(fetchers))

	collection := store.GetCollection(context.Background(), nil, nil, nil)
	waitForCollectionState(t, collection, StateFetched)

	itemDeleted := make(chan Event, 4)
	store.Bus().On(EvItemDeleted, func(ev Event) { itemDeleted <- ev })

	item := store.GetItem(context.Background(), "1", nil)
	waitForState(t, item.State, StateFetched)

	require.NoError(t, item.Delete(context.Background(), false))
	assert.Equal(t, StateDeleted, item.State())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && collection.Length() == 2 {
		time.Sleep(time.Millisecond)
	}
	_, ok := collection.GetByID("1")
	assert.False(t, ok)

	select {
	case <-itemDeleted:
	case <-time.After(time.Second):
		t.Fatal("entity store never dispatched itemDeleted")
	}
}

// Scenario 3 (§8): an externally-pushed UpdateMixed reaches a ready
// collection and leaves it sorted by id.
func TestEntityStoreUpdateMixedPushesIntoCollectionSorted(t *testing.T) {
	fetchers := &testFetchers{
		Collection: func(ctx context.Context, params FetchCollectionParams[Item]) (CollectionDataResult[Item], error) {
			return CollectionDataResult[Item]{Data: []*Item{{ID: "1"}, {ID: "2"}}}, nil
		},
	}
	cfg := itemConfig(fetchers)
	cfg.IDKey = "ID"
	store := NewEntityStore(cfg)

	order := []OrderBy[Item]{NewOrderBy[Item]("ID", false, NullsLast)}
	collection := store.GetCollection(context.Background(), nil, order, nil)
	waitForCollectionState(t, collection, StateFetched)

	store.UpdateMixed([]*Item{{ID: "3"}}, []ID{"1"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && collection.Length() != 2 {
		time.Sleep(time.Millisecond)
	}

	keys := collection.Keys()
	assert.Equal(t, []ID{"2", "3"}, keys)
}

// Scenario 5 (§8): a collection seeded from a ready parent never calls
// collectionFetcher.
func TestEntityStoreSeedsCollectionFromParentWithoutNetworkCall(t *testing.T) {
	calls := 0
	fetchers := &testFetchers{
		Collection: func(ctx context.Context, params FetchCollectionParams[Item]) (CollectionDataResult[Item], error) {
			calls++
			return CollectionDataResult[Item]{Data: []*Item{
				{ID: "1", Name: "x", Value: 1},
				{ID: "2", Name: "y", Value: 2},
			}}, nil
		},
	}
	store := NewEntityStore(itemConfig(fetchers))

	parent := store.GetCollection(context.Background(), Op[Item]("Value", "gte", 0), nil, nil)
	waitForCollectionState(t, parent, StateFetched)
	require.Equal(t, 1, calls)

	childFilter := And(Op[Item]("Value", "gte", 0), Op[Item]("Name", "eq", "x"))
	child := store.GetCollection(context.Background(), childFilter, nil, nil)

	assert.Equal(t, StatePrefetched, child.State())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, child.Length())
}
