package eventstore

import (
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

// Sentinel errors for event store operations. Returned errors match them
// with errors.Is and carry the underlying cause.
var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.NewError(errors.CategoryEventStore, "could not open event store database").Build()

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = errors.NewError(errors.CategoryEventStore, "failed to initialize event store schema").Build()

	// ErrEventAppendFailed indicates appending an event failed.
	ErrEventAppendFailed = errors.NewError(errors.CategoryEventStore, "failed to append event to store").Build()

	// ErrEventQueryFailed indicates querying events failed.
	ErrEventQueryFailed = errors.NewError(errors.CategoryEventStore, "failed to query events from store").Build()

	// ErrEventPruneFailed indicates deleting old runs failed.
	ErrEventPruneFailed = errors.NewError(errors.CategoryEventStore, "failed to prune events").Build()

	// ErrMarshalPayloadFailed indicates JSON marshaling of an event payload failed.
	ErrMarshalPayloadFailed = errors.NewError(errors.CategoryEventStore, "failed to marshal event payload").Build()
)

func wrap(sentinel *errors.ClassifiedError, err error) *errors.ClassifiedError {
	return errors.WrapError(err, sentinel.Category(), sentinel.Message()).Build()
}
