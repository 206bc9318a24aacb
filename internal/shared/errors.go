package shared

import "errors"

var (
	// ErrNotFound indicates the entity is absent in both cache and store.
	ErrNotFound = errors.New("not found")
	// ErrPoolExhausted indicates no pooled connection became available in time.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrStoreUnavailable indicates a durable read or write failed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStaleWrite indicates an event carried a sequence number not newer
	// than the last one applied for its origin and entity.
	ErrStaleWrite = errors.New("stale write")
	// ErrConflictingSession indicates a disconnect referenced a session that
	// has already been superseded by a newer connect.
	ErrConflictingSession = errors.New("conflicting session")
	// ErrUnauthorized indicates a missing or invalid service token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation indicates a request payload failed validation.
	ErrValidation = errors.New("validation failed")
)
