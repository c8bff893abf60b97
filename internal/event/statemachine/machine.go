// Package statemachine decides which action types are legal given an event's
// derived status and correction state. Decisions are pure and synchronous;
// the service re-runs them against a freshly loaded document inside the
// append retry loop so they are never stale at commit time.
package statemachine

import (
	"registrar/internal/event/models"
	dErrors "registrar/pkg/domain-errors"
)

// ErrCorrectionOutstanding is the message raised when a second correction
// request arrives while one is still unresolved. Callers match on the
// CONFLICT code; the message is part of the public contract.
const ErrCorrectionOutstanding = "Event is waiting for correction"

// legalFrom maps an action type to the statuses it may be applied from.
// Types absent from this table are handled by explicit rules in Check.
var legalFrom = map[models.ActionType][]models.EventStatus{
	models.ActionNotify:           {models.StatusCreated},
	models.ActionDeclare:          {models.StatusCreated, models.StatusNotified, models.StatusRejected},
	models.ActionValidate:         {models.StatusDeclared},
	models.ActionRegister:         {models.StatusValidated},
	models.ActionReject:           {models.StatusDeclared, models.StatusValidated},
	models.ActionArchive:          {models.StatusDeclared, models.StatusValidated, models.StatusRejected},
	models.ActionPrintCertificate: {models.StatusRegistered},
}

// Check reports whether the proposed action type is legal for the document
// in its current derived state. Illegal transitions are business-rule
// conflicts, not validation errors.
func Check(doc *models.EventDocument, actionType models.ActionType) error {
	switch actionType {
	case models.ActionCreate:
		// CREATE is only ever the first action; the service never routes it
		// through an existing document.
		return dErrors.New(dErrors.CodeConflict, "event already exists")
	case models.ActionAssign, models.ActionUnassign, models.ActionRead:
		return nil
	case models.ActionRequestCorrection:
		return checkRequestCorrection(doc)
	case models.ActionApproveCorrection, models.ActionRejectCorrection:
		return checkResolveCorrection(doc)
	}

	status := doc.Status()
	for _, from := range legalFrom[actionType] {
		if status == from {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeConflict,
		"action %s is not allowed while the event is %s", actionType, status)
}

func checkRequestCorrection(doc *models.EventDocument) error {
	if _, outstanding := doc.OutstandingCorrection(); outstanding {
		return dErrors.New(dErrors.CodeConflict, ErrCorrectionOutstanding)
	}
	if status := doc.Status(); status != models.StatusRegistered {
		return dErrors.Newf(dErrors.CodeConflict,
			"action %s is not allowed while the event is %s", models.ActionRequestCorrection, status)
	}
	return nil
}

func checkResolveCorrection(doc *models.EventDocument) error {
	if _, outstanding := doc.OutstandingCorrection(); !outstanding {
		return dErrors.New(dErrors.CodeConflict, "no correction request is outstanding")
	}
	return nil
}
