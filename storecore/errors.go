package storecore

import "fmt"

// Kind names the category of a StoreError, mirroring the error taxonomy the
// coherence engine is specified against.
type Kind string

const (
	KindNotReady             Kind = "not_ready"
	KindDeletedItem          Kind = "deleted_item"
	KindFetching             Kind = "fetching"
	KindUpdating             Kind = "updating"
	KindDeleting             Kind = "deleting"
	KindUnsuccessfulDeletion Kind = "unsuccessful_deletion"
	KindIDMismatch           Kind = "id_mismatch"
	KindTrustIDMismatch      Kind = "trust_id_mismatch"
	KindAlreadyRunning       Kind = "already_running"
	KindNotCreated           Kind = "not_created"
	KindFilterOperatorNotFound Kind = "filter_operator_not_found"
	KindOrderTypeComparison  Kind = "order_type_comparison"
	KindInternal             Kind = "internal"
)

// StoreError is the single error type raised by the coherence engine. It
// wraps an optional underlying cause so callers can still use errors.Is /
// errors.As against the original fetcher/mutator error.
type StoreError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storecore: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("storecore: %s: %s", e.Kind, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &StoreError{Kind: KindNotReady}) match by Kind alone.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind Kind, message string) *StoreError {
	return &StoreError{Kind: kind, Message: message}
}

func wrapErr(kind Kind, message string, cause error) *StoreError {
	return &StoreError{Kind: kind, Message: message, Cause: cause}
}
