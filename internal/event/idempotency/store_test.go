package idempotency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "registrar/pkg/domain"
)

func TestInMemory_GetPut(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	key := KeyFor(id.NewEventID(), "txn-1")

	t.Run("miss before put", func(t *testing.T) {
		_, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hit after put", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, key, []byte(`{"id":"a"}`)))

		response, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte(`{"id":"a"}`), response)
	})

	t.Run("stored bytes are isolated from the caller's slice", func(t *testing.T) {
		payload := []byte(`{"id":"b"}`)
		require.NoError(t, s.Put(ctx, key, payload))
		payload[2] = 'X'

		response, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte(`{"id":"b"}`), response)
	})
}

func TestKeys(t *testing.T) {
	eventID := id.NewEventID()

	t.Run("same transaction on different events never collides", func(t *testing.T) {
		assert.NotEqual(t, KeyFor(eventID, "txn-1"), KeyFor(id.NewEventID(), "txn-1"))
	})

	t.Run("create keys have no event id", func(t *testing.T) {
		key := CreateKey("txn-1")
		assert.Empty(t, key.EventID)
		assert.Equal(t, "txn-1", key.TransactionID)
		assert.NotEqual(t, key, KeyFor(eventID, "txn-1"))
	})
}
