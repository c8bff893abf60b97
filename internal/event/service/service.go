// Package service orchestrates the event action lifecycle. Every operation
// follows the same shape: capability check, idempotent replay lookup,
// document load, assignment guard, state-machine check, declaration
// validation, optimistic append, then a single index refresh. The checks run
// against a freshly loaded document and are re-run whenever an append loses
// a version race.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"registrar/internal/event/assignment"
	"registrar/internal/event/idempotency"
	"registrar/internal/event/indexer"
	"registrar/internal/event/models"
	"registrar/internal/event/statemachine"
	"registrar/internal/event/store"
	"registrar/internal/event/validation"
	"registrar/internal/platform/metrics"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
	"registrar/pkg/requestcontext"
)

// maxAppendRetries bounds the optimistic append loop. Conflicts on a single
// event are rare enough that losing three races in a row means the caller
// should back off and retry the whole call.
const maxAppendRetries = 3

// Service coordinates stores, the validator, and the index collaborator.
type Service struct {
	store   store.EventStore
	results idempotency.Store
	index   indexer.Indexer
	forms   map[string]*validation.Form
	auth    Authorizer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuthorizer(auth Authorizer) Option {
	return func(s *Service) {
		s.auth = auth
	}
}

// New constructs a Service. Forms are registered by event type; creating an
// event of a type with no registered form is rejected up front.
func New(events store.EventStore, results idempotency.Store, index indexer.Indexer, forms []*validation.Form, opts ...Option) *Service {
	s := &Service{
		store:   events,
		results: results,
		index:   index,
		forms:   make(map[string]*validation.Form, len(forms)),
		auth:    ScopeAuthorizer{},
		logger:  slog.Default(),
	}
	for _, form := range forms {
		s.forms[form.EventType] = form
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput starts a new event document.
type CreateInput struct {
	Type          string
	TransactionID string
}

// ActionInput carries the common fields of every mutating action call.
// RequestID is only meaningful for correction resolutions, AssignedTo only
// for ASSIGN.
type ActionInput struct {
	EventID        id.EventID
	TransactionID  string
	Declaration    models.Declaration
	KeepAssignment bool
	Reason         string
	RequestID      id.ActionID
	AssignedTo     id.UserID
}

// Create opens a new event document with its CREATE action. CREATE is never
// checked against prior state (there is none) and never triggers indexing.
func (s *Service) Create(ctx context.Context, in CreateInput) (json.RawMessage, error) {
	if err := s.auth.Require(ctx, requestcontext.UserID(ctx), ScopeCreate); err != nil {
		return nil, err
	}
	if in.TransactionID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "transactionId is required")
	}
	if _, ok := s.forms[in.Type]; !ok {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown event type %q", in.Type)
	}

	key := idempotency.CreateKey(in.TransactionID)
	if response, ok := s.replay(ctx, key); ok {
		return response, nil
	}

	now := requestcontext.Now(ctx).UTC()
	doc := &models.EventDocument{
		ID:        id.NewEventID(),
		Type:      in.Type,
		CreatedAt: now,
		UpdatedAt: now,
		Actions: []models.Action{{
			ID:                id.NewActionID(),
			Type:              models.ActionCreate,
			Status:            models.ActionStatusAccepted,
			CreatedBy:         requestcontext.UserID(ctx),
			CreatedAtLocation: requestcontext.Location(ctx),
			CreatedAt:         now,
			TransactionID:     in.TransactionID,
			Origin:            models.OriginUser,
		}},
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create event")
	}
	return s.finish(ctx, key, doc, doc.Actions)
}

// GetInput selects the view of an event read. IncludeReads switches from the
// public (READ-filtered) action view to the full access history.
type GetInput struct {
	EventID      id.EventID
	IncludeReads bool
}

// Get returns the event and records the access as a READ action. READ
// appends skip the idempotency cache and never trigger indexing.
func (s *Service) Get(ctx context.Context, in GetInput) (json.RawMessage, error) {
	if err := s.auth.Require(ctx, requestcontext.UserID(ctx), ScopeRead); err != nil {
		return nil, err
	}
	eventID := in.EventID

	for attempt := 0; ; attempt++ {
		doc, err := s.load(ctx, eventID)
		if err != nil {
			return nil, err
		}

		read := models.Action{
			ID:                id.NewActionID(),
			Type:              models.ActionRead,
			Status:            models.ActionStatusAccepted,
			CreatedBy:         requestcontext.UserID(ctx),
			CreatedAtLocation: requestcontext.Location(ctx),
			CreatedAt:         requestcontext.Now(ctx).UTC(),
			Origin:            models.OriginUser,
		}
		err = s.store.Append(ctx, eventID, doc.Version(), read)
		if errors.Is(err, sentinel.ErrVersionConflict) {
			if s.metrics != nil {
				s.metrics.AppendConflicts.Inc()
			}
			if attempt+1 < maxAppendRetries {
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "event was modified concurrently")
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record read")
		}

		doc.Actions = append(doc.Actions, read)
		s.metrics.ActionCommitted(string(models.ActionRead))

		view := doc.Public()
		if in.IncludeReads {
			view = doc
		}
		response, err := json.Marshal(view)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to serialize event")
		}
		return response, nil
	}
}

func (s *Service) Declare(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	return s.stateAction(ctx, in, models.ActionDeclare, ScopeDeclare)
}

func (s *Service) Validate(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	return s.stateAction(ctx, in, models.ActionValidate, ScopeValidate)
}

func (s *Service) Register(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	return s.stateAction(ctx, in, models.ActionRegister, ScopeRegister)
}

func (s *Service) Reject(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	return s.stateAction(ctx, in, models.ActionReject, ScopeReject)
}

func (s *Service) Archive(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	return s.stateAction(ctx, in, models.ActionArchive, ScopeArchive)
}

// Notify records an incomplete submission. Present fields are fully
// validated, requiredness is relaxed.
func (s *Service) Notify(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	return s.stateAction(ctx, in, models.ActionNotify, ScopeNotifyIncomplete)
}

func (s *Service) PrintCertificate(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	return s.stateAction(ctx, in, models.ActionPrintCertificate, ScopePrintCertificate)
}

// Assign hands the event's assignment to the target user (the caller when no
// target is given). Re-assigning to the current holder is an idempotent
// no-op: nothing is appended and nothing is indexed.
func (s *Service) Assign(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	if err := s.auth.Require(ctx, requestcontext.UserID(ctx), ScopeAssign); err != nil {
		return nil, err
	}
	if in.TransactionID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "transactionId is required")
	}
	key := idempotency.KeyFor(in.EventID, in.TransactionID)
	if response, ok := s.replay(ctx, key); ok {
		return response, nil
	}

	target := in.AssignedTo
	if target.IsNil() {
		target = requestcontext.UserID(ctx)
	}
	return s.commit(ctx, key, in.EventID, func(doc *models.EventDocument) ([]models.Action, error) {
		noop, err := assignment.CheckAssign(doc, target)
		if err != nil {
			return nil, err
		}
		if noop {
			return nil, nil
		}
		action := s.newAction(ctx, models.ActionAssign, in)
		action.AssignedTo = target
		return []models.Action{action}, nil
	})
}

// Unassign releases the assignment held by the caller. An already-unassigned
// event makes the call an idempotent no-op.
func (s *Service) Unassign(ctx context.Context, in ActionInput) (json.RawMessage, error) {
	if err := s.auth.Require(ctx, requestcontext.UserID(ctx), ScopeAssign); err != nil {
		return nil, err
	}
	if in.TransactionID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "transactionId is required")
	}
	key := idempotency.KeyFor(in.EventID, in.TransactionID)
	if response, ok := s.replay(ctx, key); ok {
		return response, nil
	}

	return s.commit(ctx, key, in.EventID, func(doc *models.EventDocument) ([]models.Action, error) {
		noop, err := assignment.CheckUnassign(doc, requestcontext.UserID(ctx))
		if err != nil {
			return nil, err
		}
		if noop {
			return nil, nil
		}
		return []models.Action{s.newAction(ctx, models.ActionUnassign, in)}, nil
	})
}

// stateAction is the shared path for the plain lifecycle transitions.
func (s *Service) stateAction(ctx context.Context, in ActionInput, actionType models.ActionType, scope string) (json.RawMessage, error) {
	if err := s.auth.Require(ctx, requestcontext.UserID(ctx), scope); err != nil {
		return nil, err
	}
	if in.TransactionID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "transactionId is required")
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
		if err := s.validateDeclaration(ctx, doc, actionType, in.Declaration); err != nil {
			return nil, err
		}
		return []models.Action{s.newAction(ctx, actionType, in)}, nil
	})
}

// buildActions runs the business checks against a freshly loaded document
// and returns the actions to append. It is re-invoked on every optimistic
// retry so decisions are never stale at commit time. An empty result commits
// nothing (idempotent no-op) but still records the response for replay.
type buildActions func(doc *models.EventDocument) ([]models.Action, error)

func (s *Service) commit(ctx context.Context, key idempotency.Key, eventID id.EventID, build buildActions) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		doc, err := s.load(ctx, eventID)
		if err != nil {
			return nil, err
		}

		actions, err := build(doc)
		if err != nil {
			return nil, err
		}
		if len(actions) == 0 {
			return s.finish(ctx, key, doc, nil)
		}

		err = s.store.Append(ctx, eventID, doc.Version(), actions...)
		switch {
		case err == nil:
		case errors.Is(err, sentinel.ErrVersionConflict):
			if s.metrics != nil {
				s.metrics.AppendConflicts.Inc()
			}
			if attempt+1 < maxAppendRetries {
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "event was modified concurrently")
		case errors.Is(err, sentinel.ErrDuplicateTransaction):
			// Lost a race against a concurrent retry of the same call; its
			// recorded result is now authoritative.
			if response, ok := s.replay(ctx, key); ok {
				return response, nil
			}
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "transaction already recorded")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append actions")
		}

		doc.Actions = append(doc.Actions, actions...)
		doc.UpdatedAt = actions[len(actions)-1].CreatedAt
		return s.finish(ctx, key, doc, actions)
	}
}

// finish serializes the response, counts the committed actions, triggers at
// most one index refresh, and records the result for idempotent replay.
func (s *Service) finish(ctx context.Context, key idempotency.Key, doc *models.EventDocument, committed []models.Action) (json.RawMessage, error) {
	response, err := json.Marshal(doc.Public())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to serialize event")
	}

	for _, action := range committed {
		s.metrics.ActionCommitted(string(action.Type))
	}
	s.indexCommit(ctx, doc, committed)

	if key.TransactionID != "" {
		if err := s.results.Put(ctx, key, response); err != nil {
			s.logger.WarnContext(ctx, "failed to record idempotency result",
				"event_id", doc.ID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err)
		}
	}
	return response, nil
}

// indexCommit triggers one index refresh per commit when any committed
// caller-submitted action is index-relevant. The automatic UNASSIGN embedded
// in a correction commit rides along with the correction's single call. A
// failed refresh is logged and counted but never rolls back the committed
// append.
func (s *Service) indexCommit(ctx context.Context, doc *models.EventDocument, committed []models.Action) {
	relevant := false
	for _, action := range committed {
		if action.Origin != models.OriginSystem && action.Type.Indexes() {
			relevant = true
		}
	}
	if !relevant {
		return
	}

	if s.metrics != nil {
		s.metrics.IndexCalls.Inc()
	}
	if err := s.index.IndexEvent(ctx, doc); err != nil {
		if s.metrics != nil {
			s.metrics.IndexFailures.Inc()
		}
		s.logger.ErrorContext(ctx, "index refresh failed",
			"event_id", doc.ID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err)
	}
}

func (s *Service) replay(ctx context.Context, key idempotency.Key) (json.RawMessage, bool) {
	response, ok, err := s.results.Get(ctx, key)
	if err != nil {
		// A degraded cache falls through to the store, whose transaction
		// uniqueness still prevents double application.
		s.logger.WarnContext(ctx, "idempotency lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.IdempotentReplays.Inc()
	}
	return response, true
}

func (s *Service) load(ctx context.Context, eventID id.EventID) (*models.EventDocument, error) {
	doc, err := s.store.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	return doc, nil
}

func (s *Service) validateDeclaration(ctx context.Context, doc *models.EventDocument, actionType models.ActionType, decl models.Declaration) error {
	switch actionType {
	case models.ActionDeclare, models.ActionNotify, models.ActionValidate, models.ActionRegister:
	default:
		return nil
	}
	// VALIDATE and REGISTER may confirm the existing declaration without
	// amending it.
	if len(decl) == 0 && actionType != models.ActionDeclare && actionType != models.ActionNotify {
		return nil
	}

	form, err := s.formFor(doc.Type)
	if err != nil {
		return err
	}
	opts := validation.Options{
		Now:          requestcontext.Now(ctx),
		SkipRequired: actionType == models.ActionNotify,
	}
	combined := doc.Declaration().Merge(decl)
	if errs := form.Validate(combined, opts); len(errs) > 0 {
		if s.metrics != nil {
			s.metrics.ValidationFailures.Inc()
		}
		return dErrors.NewValidation("declaration is invalid", errs)
	}
	return nil
}

func (s *Service) formFor(eventType string) (*validation.Form, error) {
	form, ok := s.forms[eventType]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "no form registered for event type %q", eventType)
	}
	return form, nil
}

func (s *Service) newAction(ctx context.Context, actionType models.ActionType, in ActionInput) models.Action {
	return models.Action{
		ID:                id.NewActionID(),
		Type:              actionType,
		Status:            models.ActionStatusAccepted,
		Declaration:       in.Declaration,
		CreatedBy:         requestcontext.UserID(ctx),
		CreatedAtLocation: requestcontext.Location(ctx),
		CreatedAt:         requestcontext.Now(ctx).UTC(),
		TransactionID:     in.TransactionID,
		Reason:            in.Reason,
		Origin:            models.OriginUser,
	}
}
