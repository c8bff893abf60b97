// Package idempotency caches recorded responses by (eventId, transactionId)
// so retried calls replay the prior result verbatim instead of re-applying
// their effect. The cache is consulted after the scope check and before the
// append lock: replays never re-run the state machine, never re-append, and
// never re-trigger indexing.
package idempotency

import (
	"context"
	"sync"

	id "registrar/pkg/domain"
)

// Key addresses one recorded result. Create calls have no event id yet and
// are keyed by transaction id alone.
type Key struct {
	EventID       string
	TransactionID string
}

// KeyFor builds the key for a mutating action on an existing event.
func KeyFor(eventID id.EventID, transactionID string) Key {
	return Key{EventID: eventID.String(), TransactionID: transactionID}
}

// CreateKey builds the key for an event.create call.
func CreateKey(transactionID string) Key {
	return Key{TransactionID: transactionID}
}

// Store is the durable (eventId, transactionId) -> recorded-result map.
type Store interface {
	// Get returns the recorded response bytes, or ok=false on a miss.
	Get(ctx context.Context, key Key) (response []byte, ok bool, err error)
	// Put records the response produced by a freshly committed action.
	Put(ctx context.Context, key Key, response []byte) error
}

// InMemory is the map-backed store used in tests and standalone deployments.
type InMemory struct {
	mu      sync.RWMutex
	results map[Key][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{results: make(map[Key][]byte)}
}

func (s *InMemory) Get(_ context.Context, key Key) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	response, ok := s.results[key]
	return response, ok, nil
}

func (s *InMemory) Put(_ context.Context, key Key, response []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(response))
	copy(stored, response)
	s.results[key] = stored
	return nil
}
