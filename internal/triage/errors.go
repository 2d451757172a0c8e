package triage

import "errors"

var (
	// ErrUnauthorized marks a provider failure caused by bad credentials or
	// missing permissions. It is never retried and aborts the run.
	ErrUnauthorized = errors.New("classifier unauthorized")

	// ErrTransient marks a provider failure worth retrying: rate limits,
	// timeouts, connection errors and overloaded upstreams.
	ErrTransient = errors.New("classifier transient failure")

	// ErrMalformedResponse marks a provider answer that could not be parsed
	// into a category and confidence.
	ErrMalformedResponse = errors.New("classifier malformed response")

	// ErrInvalidPolicy marks a triage policy that fails validation.
	ErrInvalidPolicy = errors.New("invalid triage policy")
)
