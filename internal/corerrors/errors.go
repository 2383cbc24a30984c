// Package corerrors defines the error kinds shared across the research
// orchestration engine. Components return these instead of panicking;
// only the HTTP layer (internal/api's writeServiceError) translates them to
// status codes.
package corerrors

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", ErrX) or use
// the typed structs below when extra detail needs to travel with the error.
var (
	ErrValidation              = errors.New("validation_error")
	ErrAuthorization           = errors.New("authorization_error")
	ErrNotFound                = errors.New("not_found")
	ErrExternalProviderConfig  = errors.New("external_provider_config_error")
	ErrUpstream                = errors.New("upstream_error")
	ErrConflict                = errors.New("conflict_error")
	ErrLimitExceeded           = errors.New("limit_exceeded")
	ErrTransient               = errors.New("transient_error")
)

// ValidationError carries the offending field for a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AuthorizationError records a tenant mismatch.
type AuthorizationError struct {
	Tenant      string
	RequestedID string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("tenant %q may not access %q", e.Tenant, e.RequestedID)
}

func (e *AuthorizationError) Unwrap() error { return ErrAuthorization }

// NotFoundError records a missing tenant-scoped entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ExternalProviderConfigError records why a provider cannot call out right now.
type ExternalProviderConfigError struct {
	Provider string
	Missing  []string
	Message  string
}

func (e *ExternalProviderConfigError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: missing config %v", e.Provider, e.Missing)
}

func (e *ExternalProviderConfigError) Unwrap() error { return ErrExternalProviderConfig }

// UpstreamError captures a non-2xx response from a provider or fetcher.
type UpstreamError struct {
	Source     string
	StatusCode int
	Headers    map[string]string
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Source, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// ConflictError records an illegal state transition.
type ConflictError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.From == "" && e.To == "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s: illegal transition %s -> %s: %s", e.Entity, e.From, e.To, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// LimitExceededError is returned as an envelope, never retried.
type LimitExceededError struct {
	Code    string
	Details map[string]any
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Details)
}

func (e *LimitExceededError) Unwrap() error { return ErrLimitExceeded }

// TransientError wraps a retryable internal failure (deadlock, lease contention).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return ErrTransient }
