package domain

import "errors"

// Sentinel faults shared across layers. Callers match them with errors.Is.
var (
	// ErrNotFound means a referenced user or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamOverloaded marks a transient capacity failure reported by
	// the completion backend. It is retried.
	ErrUpstreamOverloaded = errors.New("upstream overloaded")

	// ErrServiceUnavailable is raised once overload retries are exhausted.
	ErrServiceUnavailable = errors.New("ai service unavailable")

	// ErrUpstreamMalformed marks a nominally successful response with no
	// usable candidate text. It is not retried.
	ErrUpstreamMalformed = errors.New("upstream response malformed")
)
