package domain

import "errors"

// Sentinel errors shared across the storage, oracle, and lifecycle layers.
// Callers match them with errors.Is; wrapping sites attach context via
// fmt.Errorf("...: %w", err).
var (
	// ErrValidation rejects malformed or contradictory position terms.
	// Surfaced to the caller as a rejection, never retried.
	ErrValidation = errors.New("invalid position terms")

	// ErrNotFound means no position exists for the requested id.
	ErrNotFound = errors.New("position not found")

	// ErrNoData means the oracle has no trading data for a ticker/date
	// (market holiday, delisting, bad ticker).
	ErrNoData = errors.New("no trading data")

	// ErrQuoteNotFound means the strike/expiration combination is absent
	// from the option chain.
	ErrQuoteNotFound = errors.New("option quote not found")

	// ErrInvalidField rejects a store update touching a field outside the
	// allow-list.
	ErrInvalidField = errors.New("field not updatable")

	// ErrPersistence wraps a failed store operation. Fatal to the lifecycle
	// batch step it occurs in.
	ErrPersistence = errors.New("store operation failed")
)
