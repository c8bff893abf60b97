// Package store persists event documents. Stores are interface-driven so
// the domain service can run against in-memory persistence in tests and
// Postgres in production without rewiring business code.
package store

import (
	"context"

	"registrar/internal/event/models"
	id "registrar/pkg/domain"
)

// EventStore is the append-only repository contract. Implementations must
// serialize concurrent appends to the same event: Append carries the version
// (action count) the caller observed, and returns sentinel.ErrVersionConflict
// when the stored document has moved on, so check-then-append sequences stay
// atomic under races.
type EventStore interface {
	// Create stores a brand-new document. sentinel.ErrAlreadyExists when the
	// id is taken.
	Create(ctx context.Context, doc *models.EventDocument) error

	// Get returns the full document. sentinel.ErrNotFound when absent.
	Get(ctx context.Context, eventID id.EventID) (*models.EventDocument, error)

	// Append atomically adds actions to the document if and only if its
	// current version equals expectedVersion. A correction commit appends
	// the correction action and its automatic UNASSIGN in one call so the
	// pair is never split by a concurrent writer.
	Append(ctx context.Context, eventID id.EventID, expectedVersion int, actions ...models.Action) error

	// FindActionByTransaction returns the recorded action carrying the given
	// idempotency key. sentinel.ErrNotFound when no such action exists.
	FindActionByTransaction(ctx context.Context, eventID id.EventID, transactionID string) (models.Action, error)
}
