package assignment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/event/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

func assignedDoc(holder id.UserID) *models.EventDocument {
	return &models.EventDocument{
		ID:   id.NewEventID(),
		Type: "birth",
		Actions: []models.Action{{
			ID:        id.NewActionID(),
			Type:      models.ActionCreate,
			Status:    models.ActionStatusAccepted,
			CreatedBy: holder,
		}},
	}
}

func unassignedDoc(holder id.UserID) *models.EventDocument {
	doc := assignedDoc(holder)
	doc.Actions = append(doc.Actions, models.Action{
		ID:        id.NewActionID(),
		Type:      models.ActionUnassign,
		Status:    models.ActionStatusAccepted,
		CreatedBy: holder,
	})
	return doc
}

func TestCheckMutation(t *testing.T) {
	holder := id.UserID(uuid.New())
	other := id.UserID(uuid.New())

	t.Run("holder may mutate", func(t *testing.T) {
		assert.NoError(t, CheckMutation(assignedDoc(holder), holder))
	})

	t.Run("non-holder is rejected", func(t *testing.T) {
		err := CheckMutation(assignedDoc(holder), other)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unassigned event rejects everyone", func(t *testing.T) {
		err := CheckMutation(unassignedDoc(holder), holder)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func TestCheckAssign(t *testing.T) {
	holder := id.UserID(uuid.New())
	other := id.UserID(uuid.New())

	t.Run("unassigned event may be assigned", func(t *testing.T) {
		noop, err := CheckAssign(unassignedDoc(holder), other)
		require.NoError(t, err)
		assert.False(t, noop)
	})

	t.Run("reassigning the holder is a no-op", func(t *testing.T) {
		noop, err := CheckAssign(assignedDoc(holder), holder)
		require.NoError(t, err)
		assert.True(t, noop)
	})

	t.Run("assigning over another holder conflicts", func(t *testing.T) {
		_, err := CheckAssign(assignedDoc(holder), other)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestCheckUnassign(t *testing.T) {
	holder := id.UserID(uuid.New())
	other := id.UserID(uuid.New())

	t.Run("holder releases the assignment", func(t *testing.T) {
		noop, err := CheckUnassign(assignedDoc(holder), holder)
		require.NoError(t, err)
		assert.False(t, noop)
	})

	t.Run("already unassigned is a no-op", func(t *testing.T) {
		noop, err := CheckUnassign(unassignedDoc(holder), holder)
		require.NoError(t, err)
		assert.True(t, noop)
	})

	t.Run("non-holder may not release", func(t *testing.T) {
		_, err := CheckUnassign(assignedDoc(holder), other)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
