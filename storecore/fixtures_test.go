package storecore

import "context"

// Item is the shared fixture entity used across item/collection/entity-store
// and end-to-end scenario tests.
type Item struct {
	ID    string
	Name  string
	Value int
}

func itemConfig(t *testFetchers) EntityConfig[Item] {
	return EntityConfig[Item]{
		Name:              "item",
		IDKey:             "ID",
		CollectionFetcher: t.collectionFetcher(),
		ItemFetcher:       t.itemFetcher(),
		ItemCreator:       t.itemCreator(),
		ItemUpdater:       t.itemUpdater(),
		ItemDeleter:       t.itemDeleter(),
	}
}

// testFetchers lets each test script its fetcher/mutator responses without
// standing up a real backend.
type testFetchers struct {
	Collection func(ctx context.Context, params FetchCollectionParams[Item]) (CollectionDataResult[Item], error)
	Item       func(ctx context.Context, id ID) (DataResult[Item], error)
	Create     func(ctx context.Context, partial *Item) (DataResult[Item], error)
	Update     func(ctx context.Context, item *Item) (DataResult[Item], error)
	Delete     func(ctx context.Context, id ID) (DeleteResult, error)
}

func (t *testFetchers) collectionFetcher() CollectionFetcher[Item] {
	return func(ctx context.Context, params FetchCollectionParams[Item], _ RequestParams) (CollectionDataResult[Item], error) {
		if t.Collection == nil {
			return CollectionDataResult[Item]{}, nil
		}
		return t.Collection(ctx, params)
	}
}

func (t *testFetchers) itemFetcher() ItemFetcher[Item] {
	return func(ctx context.Context, params FetchItemParams, _ RequestParams) (DataResult[Item], error) {
		return t.Item(ctx, params.ID)
	}
}

func (t *testFetchers) itemCreator() ItemCreator[Item] {
	return func(ctx context.Context, partial *Item, _ RequestParams) (DataResult[Item], error) {
		return t.Create(ctx, partial)
	}
}

func (t *testFetchers) itemUpdater() ItemUpdater[Item] {
	return func(ctx context.Context, item *Item, _ RequestParams) (DataResult[Item], error) {
		return t.Update(ctx, item)
	}
}

func (t *testFetchers) itemDeleter() ItemDeleter[Item] {
	return func(ctx context.Context, id ID, _ RequestParams) (DeleteResult, error) {
		return t.Delete(ctx, id)
	}
}
