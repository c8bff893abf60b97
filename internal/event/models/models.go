// Package models defines the action-sourced event aggregate. An event is the
// full record of a single civil-registration case: an append-only ordered
// action log from which current status, assignment, and the effective
// declaration are derived by folding. Past actions are never mutated.
package models

import (
	"time"

	id "registrar/pkg/domain"
)

// ActionType is the closed enumeration of recordable state transitions.
type ActionType string

const (
	ActionCreate            ActionType = "CREATE"
	ActionDeclare           ActionType = "DECLARE"
	ActionValidate          ActionType = "VALIDATE"
	ActionRegister          ActionType = "REGISTER"
	ActionReject            ActionType = "REJECT"
	ActionArchive           ActionType = "ARCHIVE"
	ActionNotify            ActionType = "NOTIFY"
	ActionAssign            ActionType = "ASSIGN"
	ActionUnassign          ActionType = "UNASSIGN"
	ActionPrintCertificate  ActionType = "PRINT_CERTIFICATE"
	ActionRequestCorrection ActionType = "REQUEST_CORRECTION"
	ActionApproveCorrection ActionType = "APPROVE_CORRECTION"
	ActionRejectCorrection  ActionType = "REJECT_CORRECTION"
	ActionRead              ActionType = "READ"
)

// Valid reports whether t is a member of the closed enumeration.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCreate, ActionDeclare, ActionValidate, ActionRegister,
		ActionReject, ActionArchive, ActionNotify, ActionAssign,
		ActionUnassign, ActionPrintCertificate, ActionRequestCorrection,
		ActionApproveCorrection, ActionRejectCorrection, ActionRead:
		return true
	}
	return false
}

// Indexes reports whether a committed action of this type triggers a search
// index refresh. CREATE and READ never index; everything else does. The
// automatic UNASSIGN embedded in a correction commit is folded into the
// correction's single index call and is excluded at commit time, not here.
func (t ActionType) Indexes() bool {
	switch t {
	case ActionCreate, ActionRead:
		return false
	}
	return true
}

// RequiresAssignment reports whether the guard demands the acting user hold
// the event's assignment before this action type may commit.
func (t ActionType) RequiresAssignment() bool {
	switch t {
	case ActionCreate, ActionAssign, ActionRead:
		return false
	}
	return true
}

// ActionStatus tracks resolution of a recorded action. Only correction
// requests meaningfully stay Requested pending a later decision; every other
// accepted action is recorded as Accepted.
type ActionStatus string

const (
	ActionStatusRequested ActionStatus = "Requested"
	ActionStatusAccepted  ActionStatus = "Accepted"
	ActionStatusRejected  ActionStatus = "Rejected"
)

// ActionOrigin distinguishes caller-submitted actions from ones the service
// appends on the caller's behalf (the automatic UNASSIGN after a correction).
type ActionOrigin string

const (
	OriginUser   ActionOrigin = "user"
	OriginSystem ActionOrigin = "system"
)

// Declaration is the flat field-path to value mapping of a form payload.
type Declaration map[string]any

// Merge returns a new Declaration with delta applied over d. Neither input
// is modified.
func (d Declaration) Merge(delta Declaration) Declaration {
	merged := make(Declaration, len(d)+len(delta))
	for k, v := range d {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}
	return merged
}

// Action is one immutable recorded attempt to transition an event's state.
type Action struct {
	ID                id.ActionID   `json:"id"`
	Type              ActionType    `json:"type"`
	Status            ActionStatus  `json:"status"`
	Declaration       Declaration   `json:"declaration,omitempty"`
	CreatedBy         id.UserID     `json:"createdBy"`
	CreatedAtLocation id.LocationID `json:"createdAtLocation,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	TransactionID     string        `json:"transactionId,omitempty"`
	RequestID         id.ActionID   `json:"requestId,omitempty"`
	AssignedTo        id.UserID     `json:"assignedTo,omitempty"`
	KeepAssignment    bool          `json:"keepAssignment,omitempty"`
	Reason            string        `json:"reason,omitempty"`
	Origin            ActionOrigin  `json:"origin,omitempty"`
}

// EventStatus is the derived lifecycle status of an event document.
type EventStatus string

const (
	StatusCreated    EventStatus = "CREATED"
	StatusNotified   EventStatus = "NOTIFIED"
	StatusDeclared   EventStatus = "DECLARED"
	StatusValidated  EventStatus = "VALIDATED"
	StatusRegistered EventStatus = "REGISTERED"
	StatusRejected   EventStatus = "REJECTED"
	StatusArchived   EventStatus = "ARCHIVED"
)

// EventDocument is the aggregate of an ordered, append-only action list.
// Status, assignment, and declaration are derived from the log, never stored.
type EventDocument struct {
	ID        id.EventID `json:"id"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Actions   []Action   `json:"actions"`
}

// Version is the optimistic-concurrency token: the number of recorded
// actions. Appends carry the version observed at read time and lose the race
// if the stored count has moved on.
func (e *EventDocument) Version() int { return len(e.Actions) }

// Status folds the action log into the current lifecycle status. Only
// accepted actions of status-relevant types participate; assignment, reads,
// printing, and the correction workflow leave the status untouched.
func (e *EventDocument) Status() EventStatus {
	status := StatusCreated
	for _, a := range e.Actions {
		if a.Status != ActionStatusAccepted {
			continue
		}
		switch a.Type {
		case ActionNotify:
			status = StatusNotified
		case ActionDeclare:
			status = StatusDeclared
		case ActionValidate:
			status = StatusValidated
		case ActionRegister:
			status = StatusRegistered
		case ActionReject:
			status = StatusRejected
		case ActionArchive:
			status = StatusArchived
		}
	}
	return status
}

// AssignedTo folds the log into the current assignment holder. Creating a
// record hands the assignment to its creator; afterwards only ASSIGN and
// UNASSIGN move it.
func (e *EventDocument) AssignedTo() (id.UserID, bool) {
	var holder id.UserID
	for _, a := range e.Actions {
		if a.Status != ActionStatusAccepted && a.Status != ActionStatusRequested {
			continue
		}
		switch a.Type {
		case ActionCreate:
			holder = a.CreatedBy
		case ActionAssign:
			holder = a.AssignedTo
		case ActionUnassign:
			holder = id.UserID{}
		}
	}
	return holder, !holder.IsNil()
}

// OutstandingCorrection returns the unresolved correction request, if one
// exists. A request is resolved by a later APPROVE_CORRECTION or
// REJECT_CORRECTION referencing its action id; the request action itself is
// never rewritten.
func (e *EventDocument) OutstandingCorrection() (*Action, bool) {
	var outstanding *Action
	for i := range e.Actions {
		a := &e.Actions[i]
		switch a.Type {
		case ActionRequestCorrection:
			if a.Status == ActionStatusRequested {
				outstanding = a
			}
		case ActionApproveCorrection, ActionRejectCorrection:
			if outstanding != nil && a.RequestID == outstanding.ID {
				outstanding = nil
			}
		}
	}
	return outstanding, outstanding != nil
}

// FindAction returns the action with the given id.
func (e *EventDocument) FindAction(actionID id.ActionID) (*Action, bool) {
	for i := range e.Actions {
		if e.Actions[i].ID == actionID {
			return &e.Actions[i], true
		}
	}
	return nil, false
}

// FindActionByTransaction returns the recorded action carrying the given
// idempotency key. READ actions never carry one.
func (e *EventDocument) FindActionByTransaction(transactionID string) (*Action, bool) {
	if transactionID == "" {
		return nil, false
	}
	for i := range e.Actions {
		if e.Actions[i].TransactionID == transactionID {
			return &e.Actions[i], true
		}
	}
	return nil, false
}

// Declaration folds the effective declaration: declaration payloads of
// accepted actions merged in order, with an approved correction merging the
// delta of the request it resolves.
func (e *EventDocument) Declaration() Declaration {
	effective := Declaration{}
	for i := range e.Actions {
		a := &e.Actions[i]
		switch a.Type {
		case ActionDeclare, ActionNotify, ActionValidate, ActionRegister:
			if a.Status == ActionStatusAccepted && len(a.Declaration) > 0 {
				effective = effective.Merge(a.Declaration)
			}
		case ActionApproveCorrection:
			if a.Status != ActionStatusAccepted {
				continue
			}
			if request, ok := e.FindAction(a.RequestID); ok {
				effective = effective.Merge(request.Declaration)
			}
		}
	}
	return effective
}

// Public returns a shallow copy of the document with READ actions filtered
// out. Reads are an access log, not part of the public history, unless a
// caller asks for them explicitly.
func (e *EventDocument) Public() *EventDocument {
	actions := make([]Action, 0, len(e.Actions))
	for _, a := range e.Actions {
		if a.Type == ActionRead {
			continue
		}
		actions = append(actions, a)
	}
	clone := *e
	clone.Actions = actions
	return &clone
}
