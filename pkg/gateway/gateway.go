package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
)

// Provider names as stored in payments.provider
const (
	ProviderStripe  = "STRIPE"
	ProviderPayPal  = "PAYPAL"
	ProviderCMI     = "CMI"
	ProviderPayzone = "PAYZONE"
	ProviderCash    = "CASH"
)

// Gateway defines the provider-neutral payment contract
type Gateway interface {
	// Provider returns the provider name, e.g. "STRIPE"
	Provider() string

	// CreateCheckout starts a hosted payment and returns where to send the payer
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)

	// CreateRefund returns money for a settled payment.
	// Returns ErrNotSupported when the provider has no refund API.
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)

	// ParseCallback verifies and interprets a browser return or a server webhook
	ParseCallback(ctx context.Context, cb Callback) (*Settlement, error)

	// Capture completes an authorized payment.
	// Returns ErrNotSupported for providers that capture automatically.
	Capture(ctx context.Context, providerPaymentID string) (*Settlement, error)
}

// CheckoutRequest describes one payment attempt
type CheckoutRequest struct {
	BookingID     string
	PaymentID     string
	Amount        float64
	Currency      string
	Description   string
	CustomerEmail string
	// SuccessURL and CancelURL point back at our return endpoint
	SuccessURL string
	CancelURL  string
	// CallbackURL is the server-to-server notification endpoint
	CallbackURL string
}

// Checkout is a created provider session
type Checkout struct {
	ProviderPaymentID string
	RedirectURL       string
	// Offline is true when no money moves through the provider (pay on arrival)
	Offline bool
}

// RefundRequest asks for a full or partial refund
type RefundRequest struct {
	ProviderPaymentID string
	Amount            float64
	Currency          string
	Reason            string
}

// Refund is the provider's refund reference
type Refund struct {
	ProviderRefundID string
	Status           string
}

// CallbackKind distinguishes browser returns from server notifications
type CallbackKind string

const (
	CallbackReturn  CallbackKind = "RETURN"
	CallbackWebhook CallbackKind = "WEBHOOK"
)

// Callback is the raw inbound request from a provider
type Callback struct {
	Kind   CallbackKind
	Query  url.Values
	Body   []byte
	Header http.Header
}

// Outcome is what the provider says happened to the payment
type Outcome string

const (
	OutcomeSucceeded       Outcome = "SUCCEEDED"
	OutcomeFailed          Outcome = "FAILED"
	OutcomeAbandoned       Outcome = "ABANDONED"
	OutcomePending         Outcome = "PENDING"
	OutcomeRequiresCapture Outcome = "REQUIRES_CAPTURE"
)

// Settlement is a parsed provider confirmation. BookingID and PaymentID are
// filled when the provider echoes them back.
type Settlement struct {
	ProviderPaymentID string
	BookingID         string
	PaymentID         string
	Outcome           Outcome
	ErrorCode         string
	ErrorMessage      string
	// Ack is the body the provider expects in answer to a webhook
	Ack string
	// Ignored is true for webhook events that carry no payment outcome
	Ignored bool
}

// ============================================================================
// ERRORS
// ============================================================================

// ErrNotSupported is returned for operations the provider does not offer
var ErrNotSupported = errors.New("operation not supported by payment provider")

// ErrInvalidSignature is returned when a callback fails verification
var ErrInvalidSignature = errors.New("invalid callback signature")

// ConfigError means the adapter cannot run with the credentials it was given
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s gateway misconfigured (%s): %s", e.Provider, e.Field, e.Message)
	}
	return fmt.Sprintf("%s gateway misconfigured: %s", e.Provider, e.Message)
}

// CommunicationError wraps a transport or non-2xx failure
type CommunicationError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *CommunicationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// ============================================================================
// HELPERS
// ============================================================================

// minorUnits converts an amount to cents
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// formatAmount renders an amount with two decimals
func formatAmount(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}

func requireField(provider, field, value string) error {
	if value == "" {
		return &ConfigError{Provider: provider, Field: field, Message: "value is empty"}
	}
	return nil
}
