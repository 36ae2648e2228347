// Package taskstore wires a Task entity to the domain stack end-to-end: GORM
// (sqlite for tests) as the backing table, Redis as an optional read-through
// cache in front of it, and pkg/orm's Query builder for access patterns. It
// exists to exercise the fetcher/mutator contract against a real backing
// store; it is not a CRUD application (no UI, no HTTP surface).
package taskstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shashiranjanraj/kashvi/pkg/cache"
	"github.com/shashiranjanraj/kashvi/pkg/metrics"
	"github.com/shashiranjanraj/kashvi/pkg/orm"
	"github.com/shashiranjanraj/kashvi/storecore"
	"gorm.io/gorm"
)

// Task is the example entity: a to-do item assigned to a user.
type Task struct {
	ID         string `gorm:"primaryKey"`
	Title      string
	Priority   int
	Done       bool
	AssigneeID string
}

const cacheTTL = 30 * time.Second

// Store backs a storecore.EntityConfig[Task] with gorm + an optional
// read-through redis cache, both reached through pkg/orm's Query builder.
type Store struct {
	db *gorm.DB
}

// NewStore builds a Store over an already-open *gorm.DB (sqlite in tests,
// whatever pkg/database.Connect resolved in a real deployment).
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// NewStoreFromGlobalConnection builds a Store over the process-wide
// connection opened by pkg/database.Connect, instead of an explicit *gorm.DB.
// Callers must invoke database.Connect before using the returned Store.
func NewStoreFromGlobalConnection() *Store {
	return &Store{}
}

// Config builds the storecore.EntityConfig wiring this Store's methods as
// the five fetcher/mutator callbacks for the "task" entity.
func (s *Store) Config() storecore.EntityConfig[Task] {
	return storecore.EntityConfig[Task]{
		Name:              "task",
		IDKey:             "ID",
		CollectionFetcher: s.fetchCollection,
		ItemFetcher:       s.fetchItem,
		ItemCreator:       s.create,
		ItemUpdater:       s.update,
		ItemDeleter:       s.delete,
	}
}

// query builds the Query for this Store's table: FromDB(s.db) when the
// Store was opened against an explicit connection, or the global orm.DB()
// (pkg/database.DB) when it was built via NewStoreFromGlobalConnection.
func (s *Store) query() *orm.Query {
	if s.db != nil {
		return orm.FromDB(s.db).Model(&Task{})
	}
	return orm.DB().Model(&Task{})
}

func (s *Store) fetchCollection(ctx context.Context, params storecore.FetchCollectionParams[Task], _ storecore.RequestParams) (storecore.CollectionDataResult[Task], error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("select", start)

	var tasks []*Task
	q := s.query()
	if assignee, ok := assigneeEquality(params.Filter); ok {
		q = q.Where("assignee_id = ?", assignee)
	}
	if err := q.Get(&tasks); err != nil {
		metrics.FetchesTotal.WithLabelValues("task", "collection", "error").Inc()
		return storecore.CollectionDataResult[Task]{}, fmt.Errorf("taskstore: list tasks: %w", err)
	}
	metrics.FetchesTotal.WithLabelValues("task", "collection", "success").Inc()
	return storecore.CollectionDataResult[Task]{Data: tasks}, nil
}

// assigneeEquality recognizes the single-key "AssigneeID eq X" shape so the
// collection fetcher can push it down as a WHERE clause; any other filter
// shape is left to the core's own re-filtering.
func assigneeEquality(f *storecore.Filter[Task]) (string, bool) {
	if f == nil || f.Kind != storecore.FilterOperator || f.Op != "eq" || f.Key != "AssigneeID" {
		return "", false
	}
	s, ok := f.Test.(string)
	return s, ok
}

func (s *Store) fetchItem(ctx context.Context, params storecore.FetchItemParams, _ storecore.RequestParams) (storecore.DataResult[Task], error) {
	id, _ := params.ID.(string)
	key := "task:" + id

	start := time.Now()
	var task Task
	hit, err := s.query().Where("id = ?", id).Cache(key, cacheTTL, &task)
	if hit {
		metrics.CacheHits.WithLabelValues("redis").Inc()
	} else {
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		metrics.ObserveDBQuery("select", start)
	}
	if err != nil {
		metrics.FetchesTotal.WithLabelValues("task", "item", "error").Inc()
		return storecore.DataResult[Task]{}, fmt.Errorf("taskstore: get task %s: %w", id, err)
	}

	metrics.FetchesTotal.WithLabelValues("task", "item", "success").Inc()
	return storecore.DataResult[Task]{Data: &task}, nil
}

func (s *Store) create(ctx context.Context, partial *Task, _ storecore.RequestParams) (storecore.DataResult[Task], error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("insert", start)

	if err := s.query().Create(partial); err != nil {
		return storecore.DataResult[Task]{}, fmt.Errorf("taskstore: create task: %w", err)
	}
	return storecore.DataResult[Task]{Data: partial}, nil
}

func (s *Store) update(ctx context.Context, task *Task, _ storecore.RequestParams) (storecore.DataResult[Task], error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("update", start)

	if err := s.query().Save(task); err != nil {
		return storecore.DataResult[Task]{}, fmt.Errorf("taskstore: save task %s: %w", task.ID, err)
	}
	_ = cache.Del("task:" + task.ID)
	return storecore.DataResult[Task]{Data: task}, nil
}

func (s *Store) delete(ctx context.Context, id storecore.ID, _ storecore.RequestParams) (storecore.DeleteResult, error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("delete", start)

	strID, _ := id.(string)
	if err := s.query().Delete(&Task{}, "id = ?", strID); err != nil {
		return storecore.DeleteResult{}, fmt.Errorf("taskstore: delete task %s: %w", strID, err)
	}
	_ = cache.Del("task:" + strID)
	return storecore.DeleteResult{Result: storecore.DeleteOutcome{ID: id, Success: true}}, nil
}
