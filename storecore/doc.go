// Package storecore implements a reactive, normalized entity cache.
//
// For each declared entity type, a RootStore serves two kinds of live
// queries through a per-entity EntityStore — a single-item ItemQuery and a
// filtered, ordered CollectionQuery — and keeps them coherent with one
// another as mutations, server refreshes, and externally pushed events
// arrive. The store owns no transport: fetchers and mutators are supplied
// per entity in an EntityConfig, and everything network-shaped is modeled
// as a callback that returns a result or an error.
//
// The coherence engine is built from a handful of small, independently
// testable pieces: an Bus event bus that defers every internal emission to
// a dispatch-loop goroutine so observers never re-enter half-updated state,
// a WeakIndex that deduplicates queries by key without pinning them in
// memory, a filter algebra that compiles, canonicalizes, and compares
// declarative predicates, an order algebra that compiles multi-key
// priorities into comparators, and the ItemQuery/CollectionQuery state
// machines themselves.
package storecore
