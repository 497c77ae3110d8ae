package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionUnavailable is returned when no panel session can be obtained
	ErrSessionUnavailable = errors.New("panel session unavailable")
	// ErrClientExists is returned when the panel already holds a client with the same email
	ErrClientExists = errors.New("client already exists")
	// ErrUnauthorized is matched by panel errors with status 401
	ErrUnauthorized = errors.New("panel session rejected")
	// ErrMalformedResponse is matched by panel errors caused by an unparseable body
	ErrMalformedResponse = errors.New("malformed panel response")
	// ErrUnknownService is returned for a service key missing from the catalog
	ErrUnknownService = errors.New("unknown service")
	// ErrNoEntitlement is returned when a user has no client record in the requested service
	ErrNoEntitlement = errors.New("no entitlement")
	// ErrPanelUnreachable is matched by transport failures (dial errors, timeouts) of panel calls
	ErrPanelUnreachable = errors.New("panel unreachable")
	// ErrReconcileInProgress is returned when a reconciliation pass is already running
	ErrReconcileInProgress = errors.New("reconciliation already in progress")
)

// PanelAPIError represents an error from the panel API
type PanelAPIError struct {
	Operation string
	Status    int
	Message   string
	Err       error
}

// Error returns the error message
func (e *PanelAPIError) Error() string {
	return fmt.Sprintf("panel API error during %s (status %d): %s", e.Operation, e.Status, e.Message)
}

// Unwrap exposes the classified cause
func (e *PanelAPIError) Unwrap() error {
	return e.Err
}

// Is lets a 401 match ErrUnauthorized even when no cause was attached
func (e *PanelAPIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// ValidationError represents an error when validation fails
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// ConfigError represents an error related to configuration
type ConfigError struct {
	Section string
	Message string
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Message)
}

// IsUnavailable reports whether err means the panel could not be reached or authenticated
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrSessionUnavailable) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrPanelUnreachable)
}
