package domain

import "errors"

var (
	// ErrNotFound means the pointer record or blob is absent. Expected on
	// lookups, never counted as a store failure.
	ErrNotFound = errors.New("not_found")

	// ErrStoreUnavailable wraps network, auth or backend faults. Retryable
	// by the caller.
	ErrStoreUnavailable = errors.New("store_unavailable")

	// ErrMalformedPayload means a stored blob could not be decoded. Not
	// retried.
	ErrMalformedPayload = errors.New("malformed_payload")

	// ErrInvalidRecord rejects writes with missing identifiers.
	ErrInvalidRecord = errors.New("invalid_record")
)
