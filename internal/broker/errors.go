package broker

import "errors"

var (
	// ErrConfigurationMissing means no gas budget exists for the model. Not
	// retryable until an administrator sets one.
	ErrConfigurationMissing = errors.New("no gas budget configured for model")

	// ErrUpstreamUnavailable means the oracle call or query failed. Retryable
	// by the caller; no local state was changed.
	ErrUpstreamUnavailable = errors.New("oracle request failed")

	// ErrUnauthorized means the caller identity failed the callback or admin
	// gate. Never retried; state is untouched.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnknownRequest means a resolution referenced an id with no record.
	// Signals a protocol violation by the oracle or a forged callback.
	ErrUnknownRequest = errors.New("unknown request")

	// ErrDuplicateRequestId means the oracle handed out an id that already has
	// a record. Fatal internal-consistency failure, never retried.
	ErrDuplicateRequestId = errors.New("duplicate request id")
)
