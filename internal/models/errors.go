package models

import (
	"fmt"
)

// ValidationError is returned for malformed or out-of-range input
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

// NewValidationError creates a ValidationError for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AuthorizationError is returned when the caller is not authenticated (Forbidden=false)
// or lacks the required role (Forbidden=true)
type AuthorizationError struct {
	Forbidden bool
	Message   string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// NotFoundError is returned when a resource does not exist or is not visible to the caller
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// CapacityExceededError is returned when a session cannot fit the requested guests
type CapacityExceededError struct {
	SessionID string
	Requested int
	Available int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("session %s has %d spots available, %d requested", e.SessionID, e.Available, e.Requested)
}

// IllegalTransitionError is returned when the booking state machine rejects a move
type IllegalTransitionError struct {
	From   BookingStatus
	To     BookingStatus
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot move booking from %s to %s: %s", e.From, e.To, e.Reason)
}

// ProviderConfigurationError means a payment provider is missing credentials
// or is misconfigured. It is never retried.
type ProviderConfigurationError struct {
	Provider PaymentProvider
	Field    string
	Message  string
}

func (e *ProviderConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("payment provider %s is not configured: missing %s", e.Provider, e.Field)
	}
	return fmt.Sprintf("payment provider %s is not configured: %s", e.Provider, e.Message)
}

// ProviderCommunicationError wraps a network or HTTP failure talking to a provider
type ProviderCommunicationError struct {
	Provider   PaymentProvider
	StatusCode int
	Err        error
}

func (e *ProviderCommunicationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment provider %s request failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("payment provider %s request failed: %v", e.Provider, e.Err)
}

func (e *ProviderCommunicationError) Unwrap() error {
	return e.Err
}

// ReconciliationAmbiguityError means a provider confirmation could not be
// mapped back to a local booking and payment
type ReconciliationAmbiguityError struct {
	Provider          PaymentProvider
	ProviderPaymentID string
	Reason            string
}

func (e *ReconciliationAmbiguityError) Error() string {
	return fmt.Sprintf("cannot reconcile %s confirmation %q: %s", e.Provider, e.ProviderPaymentID, e.Reason)
}
