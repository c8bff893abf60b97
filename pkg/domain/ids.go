// Package domain holds typed identifiers shared across the service. Distinct
// types keep event, action, and user identifiers from being swapped at
// compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "registrar/pkg/domain-errors"
)

// EventID identifies a civil-registration event document.
type EventID uuid.UUID

// ActionID identifies a single recorded action within an event.
type ActionID uuid.UUID

// UserID identifies the acting user as asserted by the authorization layer.
type UserID uuid.UUID

// LocationID identifies the office or facility an action originated from.
// It is provenance only and carries no parsing invariants.
type LocationID string

// NewEventID returns a fresh random event identifier.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewActionID returns a fresh random action identifier.
func NewActionID() ActionID { return ActionID(uuid.New()) }

func (id EventID) String() string  { return uuid.UUID(id).String() }
func (id ActionID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string   { return uuid.UUID(id).String() }

func (id EventID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// MarshalText implementations keep the IDs JSON-friendly as plain strings.
// Nil IDs serialize as the empty string so optional references stay readable
// on the wire.
func (id EventID) MarshalText() ([]byte, error)  { return marshalID(uuid.UUID(id)) }
func (id ActionID) MarshalText() ([]byte, error) { return marshalID(uuid.UUID(id)) }
func (id UserID) MarshalText() ([]byte, error)   { return marshalID(uuid.UUID(id)) }

func marshalID(u uuid.UUID) ([]byte, error) {
	if u == uuid.Nil {
		return []byte(""), nil
	}
	return []byte(u.String()), nil
}

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := unmarshalID(b)
	if err != nil {
		return err
	}
	*id = EventID(parsed)
	return nil
}

func (id *ActionID) UnmarshalText(b []byte) error {
	parsed, err := unmarshalID(b)
	if err != nil {
		return err
	}
	*id = ActionID(parsed)
	return nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := unmarshalID(b)
	if err != nil {
		return err
	}
	*id = UserID(parsed)
	return nil
}

func unmarshalID(b []byte) (uuid.UUID, error) {
	if len(b) == 0 {
		return uuid.Nil, nil
	}
	return parseUUID(string(b))
}

// ParseEventID validates and returns an EventID. IDs must be valid,
// non-empty, non-nil UUIDs; this is enforced at trust boundaries so stores
// never see malformed keys.
func ParseEventID(s string) (EventID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return EventID{}, err
	}
	return EventID(parsed), nil
}

// ParseActionID validates and returns an ActionID.
func ParseActionID(s string) (ActionID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return ActionID{}, err
	}
	return ActionID(parsed), nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is too long")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}
