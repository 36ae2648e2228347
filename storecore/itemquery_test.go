package storecore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForState(t *testing.T, get func() QueryState, want QueryState) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if get() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %q, last was %q", want, get())
}

func TestNewFetchingItemQueryTransitionsToFetched(t *testing.T) {
	fetchers := &testFetchers{
		Item: func(ctx context.Context, id ID) (DataResult[Item], error) {
			return DataResult[Item]{Data: &Item{ID: "1", Name: "first"}}, nil
		},
	}
	bus := NewBus()
	defer bus.Close()

	q := NewFetchingItemQuery(context.Background(), itemConfig(fetchers), bus, "1", nil)
	waitForState(t, q.State, StateFetched)

	item, err := q.Data()
	require.NoError(t, err)
	assert.Equal(t, "first", item.Name)
}

func TestNewPrefetchedItemQueryStartsReady(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	q := NewPrefetchedItemQuery(itemConfig(&testFetchers{}), bus, &Item{ID: "1", Name: "seed"})

	assert.Equal(t, StatePrefetched, q.State())
	assert.True(t, q.Ready())
}

func TestItemQueryFetchErrorSetsErrored(t *testing.T) {
	fetchers := &testFetchers{
		Item: func(ctx context.Context, id ID) (DataResult[Item], error) {
			return DataResult[Item]{}, assert.AnError
		},
	}
	bus := NewBus()
	defer bus.Close()

	q := NewFetchingItemQuery(context.Background(), itemConfig(fetchers), bus, "1", nil)
	waitForState(t, q.State, StateErrored)

	_, err := q.Data()
	require.Error(t, err)
	var storeErr *StoreError
	require.ErrorAs(t, q.LastError(), &storeErr)
	assert.Equal(t, KindFetching, storeErr.Kind)
}

func TestItemQueryUpdateIDMismatchResetsMutable(t *testing.T) {
	fetchers := &testFetchers{
		Item: func(ctx context.Context, id ID) (DataResult[Item], error) {
			return DataResult[Item]{Data: &Item{ID: "1", Name: "original"}}, nil
		},
	}
	bus := NewBus()
	defer bus.Close()
	q := NewFetchingItemQuery(context.Background(), itemConfig(fetchers), bus, "1", nil)
	waitForState(t, q.State, StateFetched)

	err := q.Update(context.Background(), &Item{ID: "2", Name: "mismatch"}, false)
	require.Error(t, err)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, KindIDMismatch, storeErr.Kind)
}

func TestItemQueryUpdateSucceedsAndEmitsSelfUpdated(t *testing.T) {
	fetchers := &testFetchers{
		Item: func(ctx context.Context, id ID) (DataResult[Item], error) {
			return DataResult[Item]{Data: &Item{ID: "1", Name: "original"}}, nil
		},
		Update: func(ctx context.Context, item *Item) (DataResult[Item], error) {
			return DataResult[Item]{Data: item}, nil
		},
	}
	bus := NewBus()
	defer bus.Close()
	q := NewFetchingItemQuery(context.Background(), itemConfig(fetchers), bus, "1", nil)
	waitForState(t, q.State, StateFetched)

	selfUpdated := make(chan Event, 1)
	bus.On(EvSelfUpdated, func(ev Event) { selfUpdated <- ev })

	err := q.Update(context.Background(), &Item{ID: "1", Name: "changed"}, false)
	require.NoError(t, err)

	select {
	case ev := <-selfUpdated:
		item := ev.Item.(*Item)
		assert.Equal(t, "changed", item.Name)
	case <-time.After(time.Second):
		t.Fatal("selfUpdated was never emitted")
	}
}

func TestItemQueryDeleteTransitionsToDeleted(t *testing.T) {
	fetchers := &testFetchers{
		Item: func(ctx context.Context, id ID) (DataResult[Item], error) {
			return DataResult[Item]{Data: &Item{ID: "1"}}, nil
		},
		Delete: func(ctx context.Context, id ID) (DeleteResult, error) {
			return DeleteResult{Result: DeleteOutcome{ID: id, Success: true}}, nil
		},
	}
	bus := NewBus()
	defer bus.Close()
	q := NewFetchingItemQuery(context.Background(), itemConfig(fetchers), bus, "1", nil)
	waitForState(t, q.State, StateFetched)

	err := q.Delete(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StateDeleted, q.State())

	_, err = q.Mutable()
	require.Error(t, err)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, KindDeletedItem, storeErr.Kind)
}

func TestItemQueryUnsuccessfulDeletionReErrors(t *testing.T) {
	fetchers := &testFetchers{
		Item: func(ctx context.Context, id ID) (DataResult[Item], error) {
			return DataResult[Item]{Data: &Item{ID: "1"}}, nil
		},
		Delete: func(ctx context.Context, id ID) (DeleteResult, error) {
			return DeleteResult{Result: DeleteOutcome{ID: id, Success: false}}, nil
		},
	}
	bus := NewBus()
	defer bus.Close()
	q := NewFetchingItemQuery(context.Background(), itemConfig(fetchers), bus, "1", nil)
	waitForState(t, q.State, StateFetched)

	err := q.Delete(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, StateReErrored, q.State())
}

func TestItemQueryCheckCanStartLockedRejectsConcurrentUpdate(t *testing.T) {
	blockCh := make(chan struct{})
	fetchers := &testFetchers{
		Item: func(ctx context.Context, id ID) (DataResult[Item], error) {
			return DataResult[Item]{Data: &Item{ID: "1"}}, nil
		},
		Update: func(ctx context.Context, item *Item) (DataResult[Item], error) {
			<-blockCh
			return DataResult[Item]{Data: item}, nil
		},
	}
	bus := NewBus()
	defer bus.Close()
	q := NewFetchingItemQuery(context.Background(), itemConfig(fetchers), bus, "1", nil)
	waitForState(t, q.State, StateFetched)

	cfg := itemConfig(fetchers)
	cfg.UpdateDebounceTimeout = 0
	q.cfg = cfg

	go q.Update(context.Background(), &Item{ID: "1", Name: "a"}, false)
	waitForState(t, q.State, StateUpdating)

	err := q.Update(context.Background(), &Item{ID: "1", Name: "b"}, false)
	require.Error(t, err)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, KindAlreadyRunning, storeErr.Kind)

	close(blockCh)
}
