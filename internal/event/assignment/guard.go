// Package assignment enforces single-writer semantics per event. The
// assignment is a cooperative lock token: every mutating action except
// ASSIGN requires the acting user to hold it. The repository's optimistic
// append is the actual concurrency-safety mechanism; this guard is the
// business rule layered on top, re-checked against the current persisted
// state at write time.
package assignment

import (
	"registrar/internal/event/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

// CheckMutation verifies the acting user holds the event's assignment.
// Called for every mutating action type except ASSIGN and READ.
func CheckMutation(doc *models.EventDocument, actingUser id.UserID) error {
	holder, assigned := doc.AssignedTo()
	if !assigned {
		return dErrors.New(dErrors.CodeForbidden, "not assigned")
	}
	if holder != actingUser {
		return dErrors.New(dErrors.CodeForbidden, "not assigned")
	}
	return nil
}

// CheckAssign decides an ASSIGN attempt. Assigning an unassigned event
// succeeds; reassigning to the current holder is an idempotent no-op
// (noop=true, nothing is appended); assigning over a different holder is a
// conflict.
func CheckAssign(doc *models.EventDocument, target id.UserID) (noop bool, err error) {
	holder, assigned := doc.AssignedTo()
	if !assigned {
		return false, nil
	}
	if holder == target {
		return true, nil
	}
	return false, dErrors.New(dErrors.CodeConflict, "event is assigned to another user")
}

// CheckUnassign decides an UNASSIGN attempt by the current holder. An
// already-unassigned event makes the call an idempotent no-op.
func CheckUnassign(doc *models.EventDocument, actingUser id.UserID) (noop bool, err error) {
	holder, assigned := doc.AssignedTo()
	if !assigned {
		return true, nil
	}
	if holder != actingUser {
		return false, dErrors.New(dErrors.CodeForbidden, "not assigned")
	}
	return false, nil
}
