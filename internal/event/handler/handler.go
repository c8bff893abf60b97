// Package handler exposes the event action API over HTTP. Routes are
// RPC-style: one POST per action type, so capability scopes and audit logs
// line up one-to-one with operations.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"registrar/internal/event/models"
	"registrar/internal/event/service"
	"registrar/internal/platform/metrics"
	"registrar/internal/platform/middleware"
	"registrar/internal/transport/http/shared"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/requestcontext"
)

// Service defines the event operations the handler delegates to. Responses
// are pre-serialized JSON so idempotent replays reach the wire byte-for-byte.
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (json.RawMessage, error)
	Get(ctx context.Context, in service.GetInput) (json.RawMessage, error)
	Declare(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	Validate(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	Register(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	Reject(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	Archive(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	Notify(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	PrintCertificate(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	Assign(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	Unassign(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	RequestCorrection(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	ApproveCorrection(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
	RejectCorrection(ctx context.Context, in service.ActionInput) (json.RawMessage, error)
}

// Handler handles the /events endpoints.
type Handler struct {
	logger    *slog.Logger
	events    Service
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

// New creates a new event Handler.
func New(events Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		events:    events,
		metrics:   m,
		validator: validator,
	}
}

// Register registers the event routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	events := chi.NewRouter()
	events.Use(middleware.Recovery(h.logger))
	events.Use(middleware.RequestID)
	events.Use(middleware.RequestTime)
	events.Use(middleware.Logger(h.logger))
	events.Use(middleware.Timeout(30 * time.Second))
	events.Use(middleware.ContentTypeJSON)
	events.Use(middleware.Latency(h.metrics))
	events.Use(middleware.RequireAuth(h.validator, h.logger))

	events.Post("/events", h.handleCreate)
	events.Get("/events/{eventID}", h.handleGet)
	events.Route("/events/{eventID}/actions", func(r chi.Router) {
		r.Post("/declare", h.action(h.events.Declare))
		r.Post("/validate", h.action(h.events.Validate))
		r.Post("/register", h.action(h.events.Register))
		r.Post("/reject", h.action(h.events.Reject))
		r.Post("/archive", h.action(h.events.Archive))
		r.Post("/notify", h.action(h.events.Notify))
		r.Post("/print-certificate", h.action(h.events.PrintCertificate))
		r.Post("/assign", h.action(h.events.Assign))
		r.Post("/unassign", h.action(h.events.Unassign))
		r.Post("/correction/request", h.action(h.events.RequestCorrection))
		r.Post("/correction/approve", h.action(h.events.ApproveCorrection))
		r.Post("/correction/reject", h.action(h.events.RejectCorrection))
	})

	r.Mount("/", events)
}

type createRequest struct {
	Type          string `json:"type"`
	TransactionID string `json:"transactionId"`
}

type actionRequest struct {
	TransactionID  string             `json:"transactionId"`
	Declaration    models.Declaration `json:"declaration,omitempty"`
	KeepAssignment bool               `json:"keepAssignment,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	RequestID      string             `json:"requestId,omitempty"`
	AssignedTo     string             `json:"assignedTo,omitempty"`
}

func (req actionRequest) toInput(eventID id.EventID) (service.ActionInput, error) {
	in := service.ActionInput{
		EventID:        eventID,
		TransactionID:  req.TransactionID,
		Declaration:    req.Declaration,
		KeepAssignment: req.KeepAssignment,
		Reason:         req.Reason,
	}
	if req.RequestID != "" {
		requestID, err := id.ParseActionID(req.RequestID)
		if err != nil {
			return service.ActionInput{}, err
		}
		in.RequestID = requestID
	}
	if req.AssignedTo != "" {
		assignedTo, err := id.ParseUserID(req.AssignedTo)
		if err != nil {
			return service.ActionInput{}, err
		}
		in.AssignedTo = assignedTo
	}
	return in, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid create request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error())
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	body, err := h.events.Create(ctx, service.CreateInput{
		Type:          req.Type,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		h.logFailure(ctx, "event.create", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteRaw(w, http.StatusCreated, body)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	body, err := h.events.Get(ctx, service.GetInput{
		EventID:      eventID,
		IncludeReads: r.URL.Query().Get("includeReads") == "true",
	})
	if err != nil {
		h.logFailure(ctx, "event.get", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteRaw(w, http.StatusOK, body)
}

// action adapts one service action method into an HTTP handler. All action
// routes share the same request shape and response behavior.
func (h *Handler) action(call func(context.Context, service.ActionInput) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
		if err != nil {
			shared.WriteError(w, err)
			return
		}

		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.WarnContext(ctx, "invalid action request",
				"request_id", requestcontext.RequestID(ctx),
				"event_id", eventID,
				"error", err.Error())
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}

		in, err := req.toInput(eventID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}

		body, err := call(ctx, in)
		if err != nil {
			h.logFailure(ctx, r.URL.Path, err)
			shared.WriteError(w, err)
			return
		}
		shared.WriteRaw(w, http.StatusOK, body)
	}
}

// logFailure logs rejected calls. Business rejections are expected traffic
// and log at warn; everything else is an infrastructure failure.
func (h *Handler) logFailure(ctx context.Context, operation string, err error) {
	attrs := []any{
		"operation", operation,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	}
	if dErrors.Is(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, "event operation failed", attrs...)
		return
	}
	h.logger.WarnContext(ctx, "event operation rejected", attrs...)
}
