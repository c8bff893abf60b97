// Package indexer publishes committed event snapshots to the search/read
// index. The index is an external collaborator: the core calls it
// synchronously, exactly once per committed state-changing action, and
// treats failures as non-fatal since the action is already durable.
package indexer

import (
	"context"

	"registrar/internal/event/models"
)

// Indexer refreshes the external search index for one event.
type Indexer interface {
	IndexEvent(ctx context.Context, doc *models.EventDocument) error
}

// Noop discards index calls. Used when no index backend is configured.
type Noop struct{}

func (Noop) IndexEvent(context.Context, *models.EventDocument) error { return nil }
