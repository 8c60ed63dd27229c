package domain

import "errors"

var (
	// ErrValidation marks bad input shape or values; never retried.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown project, step or result.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition marks a state machine contract violation.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAlreadyInitiated is returned when a project already has Progress rows.
	ErrAlreadyInitiated = errors.New("workflow already initiated")
	// ErrUpstreamAgent marks a failure reported by, or while reaching, the AI agent.
	ErrUpstreamAgent = errors.New("upstream agent failure")
	// ErrPersistence marks an unavailable or failing store.
	ErrPersistence = errors.New("persistence error")
	// ErrNotificationDelivery is logged and never surfaced to callers.
	ErrNotificationDelivery = errors.New("notification delivery failure")
	// ErrStaleTransition is returned by the Progress store when a
	// compare-and-swap finds a status other than the expected one.
	ErrStaleTransition = errors.New("stale progress transition")
	// ErrActivationInFlight is returned by the Trigger Gateway when the same
	// activation is already being handed to the agent.
	ErrActivationInFlight = errors.New("activation already in flight")
)
