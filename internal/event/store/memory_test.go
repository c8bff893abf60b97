package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/event/models"
	id "registrar/pkg/domain"
	"registrar/pkg/platform/sentinel"
)

func testDocument() *models.EventDocument {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return &models.EventDocument{
		ID:        id.NewEventID(),
		Type:      "birth",
		CreatedAt: now,
		UpdatedAt: now,
		Actions: []models.Action{{
			ID:            id.NewActionID(),
			Type:          models.ActionCreate,
			Status:        models.ActionStatusAccepted,
			CreatedBy:     id.UserID(uuid.New()),
			CreatedAt:     now,
			TransactionID: "txn-create",
			Origin:        models.OriginUser,
		}},
	}
}

func declareAction(txn string, at time.Time) models.Action {
	return models.Action{
		ID:            id.NewActionID(),
		Type:          models.ActionDeclare,
		Status:        models.ActionStatusAccepted,
		Declaration:   models.Declaration{"applicant.firstname": "Ada"},
		CreatedBy:     id.UserID(uuid.New()),
		CreatedAt:     at,
		TransactionID: txn,
		Origin:        models.OriginUser,
	}
}

func TestInMemory_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	doc := testDocument()

	require.NoError(t, s.Create(ctx, doc))

	t.Run("get returns the stored document", func(t *testing.T) {
		got, err := s.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, got.ID)
		assert.Equal(t, 1, got.Version())
	})

	t.Run("duplicate create is rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.Create(ctx, doc), sentinel.ErrAlreadyExists)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := s.Get(ctx, id.NewEventID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestInMemory_Append(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	doc := testDocument()
	require.NoError(t, s.Create(ctx, doc))

	t.Run("append at the observed version", func(t *testing.T) {
		at := doc.CreatedAt.Add(time.Minute)
		require.NoError(t, s.Append(ctx, doc.ID, 1, declareAction("txn-declare", at)))

		got, err := s.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version())
		assert.Equal(t, at, got.UpdatedAt)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		err := s.Append(ctx, doc.ID, 1, declareAction("txn-stale", time.Now()))
		assert.ErrorIs(t, err, sentinel.ErrVersionConflict)
	})

	t.Run("append to unknown event", func(t *testing.T) {
		err := s.Append(ctx, id.NewEventID(), 0, declareAction("txn-x", time.Now()))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("multiple actions land atomically", func(t *testing.T) {
		pair := []models.Action{
			declareAction("txn-pair", time.Now()),
			{ID: id.NewActionID(), Type: models.ActionUnassign, Status: models.ActionStatusAccepted, Origin: models.OriginSystem},
		}
		require.NoError(t, s.Append(ctx, doc.ID, 2, pair...))

		got, err := s.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, got.Version())
	})
}

func TestInMemory_FindActionByTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	doc := testDocument()
	require.NoError(t, s.Create(ctx, doc))

	t.Run("found", func(t *testing.T) {
		action, err := s.FindActionByTransaction(ctx, doc.ID, "txn-create")
		require.NoError(t, err)
		assert.Equal(t, models.ActionCreate, action.Type)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := s.FindActionByTransaction(ctx, doc.ID, "txn-missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

// TestInMemory_NoAliasing guards the deep-copy contract: mutating a returned
// document must not leak into stored state.
func TestInMemory_NoAliasing(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	doc := testDocument()
	require.NoError(t, s.Create(ctx, doc))
	require.NoError(t, s.Append(ctx, doc.ID, 1, declareAction("txn-d", time.Now())))

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	got.Actions[1].Declaration["applicant.firstname"] = "Mallory"
	got.Actions = got.Actions[:0]

	fresh, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, 2, fresh.Version())
	assert.Equal(t, "Ada", fresh.Actions[1].Declaration["applicant.firstname"])
}

// TestInMemory_ConcurrentAppends races many writers at the same observed
// version; exactly one append may win.
func TestInMemory_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	doc := testDocument()
	require.NoError(t, s.Create(ctx, doc))

	const writers = 32
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := s.Append(ctx, doc.ID, 1, declareAction("", time.Now()))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrVersionConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version())
}
