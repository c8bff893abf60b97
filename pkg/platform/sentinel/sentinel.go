package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrAlreadyExists: entity with the same identity already stored
// - ErrVersionConflict: optimistic append lost the race, caller must reload
// - ErrDuplicateTransaction: an action with this transaction key is already recorded
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrVersionConflict      = errors.New("version conflict")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrUnavailable          = errors.New("unavailable")
)
