package pipeline

import "errors"

// Failure classes surfaced by the pipeline and its adapters. Everything
// else is wrapped as a persistence failure so callers can always map an
// error to one retry policy.
var (
	// ErrRecipientUnresolvable means no adapter could recover a routing
	// address for the message. Not retryable.
	ErrRecipientUnresolvable = errors.New("recipient unresolvable")

	// ErrUnauthorizedSender means the guard rejected the sender. Not
	// retryable.
	ErrUnauthorizedSender = errors.New("sender not authorized")

	// ErrExtractionServiceFailure means the provider chain failed and the
	// heuristic fallback produced the candidates instead. Advisory only:
	// it accompanies a created outcome, never an error outcome.
	ErrExtractionServiceFailure = errors.New("extraction service failure")

	// ErrPersistenceFailure wraps storage errors. Retryable; the ledger
	// record is left in error state and TryBegin reclaims it, so a
	// redelivery is re-examined instead of collapsing as a duplicate.
	ErrPersistenceFailure = errors.New("persistence failure")
)
