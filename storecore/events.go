package storecore

// Event names, grouped by the surface that emits them (§6).
const (
	EvInitialized = "initialized"

	// Item query.
	EvCreated     = "created"
	EvReady       = "ready"
	EvUpdated     = "updated"
	EvSelfUpdated = "selfUpdated"
	EvDeleted     = "deleted"
	EvSelfDeleted = "selfDeleted"
	EvError       = "error"

	// Collection query.
	EvSelfItemCreated = "selfItemCreated"
	EvItemAdded       = "itemAdded"
	EvItemUpdated     = "itemUpdated"
	EvSelfItemUpdated = "selfItemUpdated"
	EvItemDeleted     = "itemDeleted"
	EvSelfItemDeleted = "selfItemDeleted"

	// Weak-value index (§2).
	EvIndexSet      = "set"
	EvIndexDelete   = "delete"
	EvIndexFinalize = "finalize"
	EvIndexClear    = "clear"
)
