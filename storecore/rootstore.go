package storecore

import (
	"log/slog"
	"sync"
)

// DefaultsConfig is the root store's "defaults" section (§4.9): values
// merged into every EntityConfig that doesn't set its own.
type DefaultsConfig struct {
	TrustQuery            bool
	DevMode               bool
	UpdateDebounceTimeout int
	DebugLevel            DebugLevel
}

// DebugConfig is the root store's "debug" section: a name for logs, a
// devMode flag, and a log-level enum (§9 Open Question — resolved as the
// three-value DebugLevel enum, with a bare disabled debug config treated
// as DebugOff).
type DebugConfig struct {
	Name    string
	DevMode bool
	Level   DebugLevel

	// Logger, when set, is injected into every entity registered on this
	// root store that doesn't set its own EntityConfig.Logger (§4.10, §6).
	// Nil means every entity falls back to DefaultLogger.
	Logger *slog.Logger
}

// RootStore holds one EntityStore per declared entity name. Because each
// entity type has its own Go type parameter, stores are held type-erased
// (as any) and recovered through the generic From/RegisterEntity functions,
// which the caller parameterizes with the entity's concrete type.
type RootStore struct {
	mu       sync.RWMutex
	stores   map[string]any
	defaults DefaultsConfig
	debug    DebugConfig
}

// NewRootStore creates an empty registry with the given defaults/debug
// sections.
func NewRootStore(defaults DefaultsConfig, debug DebugConfig) *RootStore {
	return &RootStore{
		stores:   make(map[string]any),
		defaults: defaults,
		debug:    debug,
	}
}

// resolveEntityConfig merges the root store's defaults/debug sections into
// an EntityConfig that hasn't set the corresponding field explicitly.
func resolveEntityConfig[E any](r *RootStore, cfg EntityConfig[E]) EntityConfig[E] {
	if cfg.DebugLevel == "" {
		cfg.DebugLevel = r.debug.Level
		if cfg.DebugLevel == "" {
			cfg.DebugLevel = r.defaults.DebugLevel
		}
		if cfg.DebugLevel == "" {
			cfg.DebugLevel = DebugOff
		}
	}
	if !cfg.DevMode {
		cfg.DevMode = r.debug.DevMode || r.defaults.DevMode
	}
	if !cfg.TrustQuery {
		cfg.TrustQuery = r.defaults.TrustQuery
	}
	if cfg.UpdateDebounceTimeout == 0 {
		cfg.UpdateDebounceTimeout = r.defaults.UpdateDebounceTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = r.debug.Logger
	}
	return cfg
}

// RegisterEntity declares an entity type under name, resolving its config
// against the root store's defaults/debug sections, and returns its
// EntityStore.
func RegisterEntity[E any](r *RootStore, cfg EntityConfig[E]) *EntityStore[E] {
	resolved := resolveEntityConfig(r, cfg)
	store := NewEntityStore(resolved)

	r.mu.Lock()
	r.stores[resolved.Name] = store
	r.mu.Unlock()

	return store
}

// From recovers the EntityStore registered under name. The caller must
// parameterize the call with the entity's concrete type; a mismatched type
// parameter reports ok=false rather than panicking.
func From[E any](r *RootStore, name string) (*EntityStore[E], bool) {
	r.mu.RLock()
	v, found := r.stores[name]
	r.mu.RUnlock()
	if !found {
		return nil, false
	}
	store, ok := v.(*EntityStore[E])
	return store, ok
}

// ─────────────────────────────────────────────
// Pass-through push mutators
// ─────────────────────────────────────────────

// PushUpdateOne routes an externally-sourced update to the named entity
// store's UpdateOne.
func PushUpdateOne[E any](r *RootStore, name string, item *E) error {
	store, ok := From[E](r, name)
	if !ok {
		return newErr(KindInternal, "no entity store registered for "+name)
	}
	store.UpdateOne(item)
	return nil
}

// PushDeleteOne routes an externally-sourced deletion.
func PushDeleteOne[E any](r *RootStore, name string, id ID) error {
	store, ok := From[E](r, name)
	if !ok {
		return newErr(KindInternal, "no entity store registered for "+name)
	}
	store.DeleteOne(id)
	return nil
}

// PushUpdateMany routes a batch of externally-sourced updates.
func PushUpdateMany[E any](r *RootStore, name string, items []*E) error {
	store, ok := From[E](r, name)
	if !ok {
		return newErr(KindInternal, "no entity store registered for "+name)
	}
	store.UpdateMany(items)
	return nil
}

// PushDeleteMany routes a batch of externally-sourced deletions.
func PushDeleteMany[E any](r *RootStore, name string, ids []ID) error {
	store, ok := From[E](r, name)
	if !ok {
		return newErr(KindInternal, "no entity store registered for "+name)
	}
	store.DeleteMany(ids)
	return nil
}

// PushUpdateMixed routes a combined batch of sets and deletes.
func PushUpdateMixed[E any](r *RootStore, name string, add []*E, del []ID) error {
	store, ok := From[E](r, name)
	if !ok {
		return newErr(KindInternal, "no entity store registered for "+name)
	}
	store.UpdateMixed(add, del)
	return nil
}
