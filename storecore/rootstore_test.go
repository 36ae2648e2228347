package storecore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterEntityResolvesDefaults(t *testing.T) {
	root := NewRootStore(
		DefaultsConfig{TrustQuery: true, UpdateDebounceTimeout: 25, DebugLevel: DebugInfo},
		DebugConfig{Name: "test", DevMode: true},
	)

	store := RegisterEntity(root, itemConfig(&testFetchers{}))
	assert.NotNil(t, store)
	assert.True(t, store.cfg.TrustQuery)
	assert.True(t, store.cfg.DevMode)
	assert.Equal(t, 25, store.cfg.UpdateDebounceTimeout)
	assert.Equal(t, DebugInfo, store.cfg.DebugLevel)

	found, ok := From[Item](root, "item")
	require.True(t, ok)
	assert.Same(t, store, found)
}

func TestFromReportsMissingEntity(t *testing.T) {
	root := NewRootStore(DefaultsConfig{}, DebugConfig{})
	_, ok := From[Item](root, "missing")
	assert.False(t, ok)
}

func TestPushUpdateOneRoutesToRegisteredStore(t *testing.T) {
	root := NewRootStore(DefaultsConfig{}, DebugConfig{})
	fetchers := &testFetchers{
		Collection: func(ctx context.Context, params FetchCollectionParams[Item]) (CollectionDataResult[Item], error) {
			return CollectionDataResult[Item]{Data: []*Item{{ID: "1"}}}, nil
		},
	}
	store := RegisterEntity(root, itemConfig(fetchers))
	collection := store.GetCollection(context.Background(), nil, nil, nil)
	waitForCollectionState(t, collection, StateFetched)

	require.NoError(t, PushUpdateOne(root, "item", &Item{ID: "2", Name: "pushed"}))
	waitForCollectionLen(t, collection, 2)

	got, ok := collection.GetByID("2")
	require.True(t, ok)
	assert.Equal(t, "pushed", got.Name)
}

func TestPushUpdateOneUnregisteredEntityErrors(t *testing.T) {
	root := NewRootStore(DefaultsConfig{}, DebugConfig{})
	err := PushUpdateOne(root, "item", &Item{ID: "1"})
	require.Error(t, err)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, KindInternal, storeErr.Kind)
}
