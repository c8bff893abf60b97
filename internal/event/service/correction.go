package service

import (
	"context"
	"encoding/json"

	"registrar/internal/event/assignment"
	"registrar/internal/event/idempotency"
	"registrar/internal/event/models"
	"registrar/internal/event/statemachine"
	"registrar/internal/event/validation"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/requestcontext"
)

// RequestCorrection opens the two-phase correction workflow on a registered
// event. The delta is validated against the combined declaration, recorded
// as a Requested action, and the caller's assignment is released in the same
// commit unless keepAssignment asks otherwise.
func (s *Service) RequestCorrection(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	if err := s.auth.Require(ctx, requestcontext.UserID(ctx), ScopeCorrect); err != nil {
		return nil, err
	}
	if in.TransactionID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "transactionId is required")
	}
	if len(in.Declaration) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "a correction request needs a declaration delta")
	}
	key := idempotency.KeyFor(in.EventID, in.TransactionID)
	if response, ok := s.replay(ctx, key); ok {
		return response, nil
	}

	return s.commit(ctx, key, in.EventID, func(doc *models.EventDocument) ([]models.Action, error) {
		if err := assignment.CheckMutation(doc, requestcontext.UserID(ctx)); err != nil {
			return nil, err
		}
		if err := statemachine.Check(doc, models.ActionRequestCorrection); err != nil {
			return nil, err
		}

		form, err := s.formFor(doc.Type)
		if err != nil {
			return nil, err
		}
		opts := validation.Options{Now: requestcontext.Now(ctx)}
		if errs := form.ValidateDelta(doc.Declaration(), in.Declaration, opts); len(errs) > 0 {
			if s.metrics != nil {
				s.metrics.ValidationFailures.Inc()
			}
			return nil, dErrors.NewValidation("correction delta is invalid", errs)
		}

		request := s.newAction(ctx, models.ActionRequestCorrection, in)
		request.Status = models.ActionStatusRequested
		request.KeepAssignment = in.KeepAssignment

		actions := []models.Action{request}
		if !in.KeepAssignment {
			actions = append(actions, s.systemUnassign(ctx))
		}
		return actions, nil
	})
}

// ApproveCorrection resolves the outstanding correction request named by
// requestId and merges its delta into the effective declaration.
func (s *Service) ApproveCorrection(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	return s.resolveCorrection(ctx, in, models.ActionApproveCorrection)
}

// RejectCorrection resolves the outstanding correction request named by
// requestId without applying its delta.
func (s *Service) RejectCorrection(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	return s.resolveCorrection(ctx, in, models.ActionRejectCorrection)
}

func (s *Service) resolveCorrection(ctx context.Context, in ActionInput, actionType models.ActionType) (json.RawMessage, error) {
	if err := s.auth.Require(ctx, requestcontext.UserID(ctx), ScopeCorrect); err != nil {
		return nil, err
	}
	if in.TransactionID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "transactionId is required")
	}
	if in.RequestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "requestId is required")
	}
	key := idempotency.KeyFor(in.EventID, in.TransactionID)
	if response, ok := s.replay(ctx, key); ok {
		return response, nil
	}

	return s.commit(ctx, key, in.EventID, func(doc *models.EventDocument) ([]models.Action, error) {
		if err := assignment.CheckMutation(doc, requestcontext.UserID(ctx)); err != nil {
			return nil, err
		}
		if err := statemachine.Check(doc, actionType); err != nil {
			return nil, err
		}
		if err := matchOutstandingRequest(doc, in.RequestID); err != nil {
			return nil, err
		}

		resolution := s.newAction(ctx, actionType, in)
		resolution.Declaration = nil // the delta lives on the request action
		resolution.RequestID = in.RequestID

		actions := []models.Action{resolution}
		if !in.KeepAssignment {
			actions = append(actions, s.systemUnassign(ctx))
		}
		return actions, nil
	})
}

// matchOutstandingRequest verifies requestId names the one unresolved
// correction request. A known but already-resolved request is a conflict; an
// unknown id is not found. Never silently ignored.
func matchOutstandingRequest(doc *models.EventDocument, requestID id.ActionID) error {
	outstanding, ok := doc.OutstandingCorrection()
	if ok && outstanding.ID == requestID {
		return nil
	}
	if request, found := doc.FindAction(requestID); found && request.Type == models.ActionRequestCorrection {
		return dErrors.New(dErrors.CodeConflict, "correction request is already resolved")
	}
	return dErrors.New(dErrors.CodeNotFound, "correction request not found")
}

// systemUnassign is the automatic release appended in the same atomic commit
// as a correction action. It carries no transaction id and does not trigger
// its own index refresh.
func (s *Service) systemUnassign(ctx context.Context) models.Action {
	return models.Action{
		ID:                id.NewActionID(),
		Type:              models.ActionUnassign,
		Status:            models.ActionStatusAccepted,
		CreatedBy:         requestcontext.UserID(ctx),
		CreatedAtLocation: requestcontext.Location(ctx),
		CreatedAt:         requestcontext.Now(ctx).UTC(),
		Origin:            models.OriginSystem,
	}
}
