package store

import (
	"context"
	"sync"
	"time"

	"registrar/internal/event/models"
	id "registrar/pkg/domain"
	"registrar/pkg/platform/sentinel"
)

// InMemory keeps documents in a map guarded by a mutex. The mutex plays the
// role Postgres' guarded update plays in production: appends observe a
// version and fail with ErrVersionConflict when it is stale. Favors clarity
// over performance.
type InMemory struct {
	mu     sync.RWMutex
	events map[id.EventID]*models.EventDocument
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[id.EventID]*models.EventDocument)}
}

func (s *InMemory) Create(_ context.Context, doc *models.EventDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[doc.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.events[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *InMemory) Get(_ context.Context, eventID id.EventID) (*models.EventDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *InMemory) Append(_ context.Context, eventID id.EventID, expectedVersion int, actions ...models.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.events[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if doc.Version() != expectedVersion {
		return sentinel.ErrVersionConflict
	}
	doc.Actions = append(doc.Actions, cloneActions(actions)...)
	doc.UpdatedAt = lastCreatedAt(actions, doc.UpdatedAt)
	return nil
}

func (s *InMemory) FindActionByTransaction(_ context.Context, eventID id.EventID, transactionID string) (models.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.events[eventID]
	if !ok {
		return models.Action{}, sentinel.ErrNotFound
	}
	action, ok := doc.FindActionByTransaction(transactionID)
	if !ok {
		return models.Action{}, sentinel.ErrNotFound
	}
	return *action, nil
}

// cloneDocument copies deeply enough that callers can never alias stored
// state through returned documents.
func cloneDocument(doc *models.EventDocument) *models.EventDocument {
	clone := *doc
	clone.Actions = cloneActions(doc.Actions)
	return &clone
}

func cloneActions(actions []models.Action) []models.Action {
	cloned := make([]models.Action, len(actions))
	for i, a := range actions {
		if a.Declaration != nil {
			a.Declaration = a.Declaration.Merge(nil)
		}
		cloned[i] = a
	}
	return cloned
}

func lastCreatedAt(actions []models.Action, fallback time.Time) time.Time {
	latest := fallback
	for _, a := range actions {
		if a.CreatedAt.After(latest) {
			latest = a.CreatedAt
		}
	}
	return latest
}
