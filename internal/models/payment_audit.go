package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventCheckoutCreated         PaymentEventType = "checkout_created"
	PaymentEventCheckoutFailed          PaymentEventType = "checkout_failed"
	PaymentEventCallbackReceived        PaymentEventType = "callback_received"
	PaymentEventSucceeded               PaymentEventType = "payment_succeeded"
	PaymentEventFailed                  PaymentEventType = "payment_failed"
	PaymentEventAbandoned               PaymentEventType = "payment_abandoned"
	PaymentEventDuplicate               PaymentEventType = "duplicate_confirmation"
	PaymentEventReconciliationAmbiguous PaymentEventType = "reconciliation_ambiguous"
	PaymentEventRefundIssued            PaymentEventType = "refund_issued"
	PaymentEventAutoRefunded            PaymentEventType = "auto_refunded"
	PaymentEventAutoRefundFailed        PaymentEventType = "auto_refund_failed"
	PaymentEventDuplicateCapture        PaymentEventType = "duplicate_capture"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend  PaymentEventSource = "backend"
	PaymentSourceReturn   PaymentEventSource = "provider_return"
	PaymentSourceWebhook  PaymentEventSource = "provider_webhook"
	PaymentSourceProvider PaymentEventSource = "provider_api"
	PaymentSourceUser     PaymentEventSource = "user"
	PaymentSourceSystem   PaymentEventSource = "system"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	PaymentID         *uuid.UUID `json:"payment_id,omitempty" db:"payment_id"`
	BookingID         *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	Provider          *string    `json:"provider,omitempty" db:"provider"`
	ProviderPaymentID *string    `json:"provider_payment_id,omitempty" db:"provider_payment_id"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	Amount   *float64 `json:"amount,omitempty" db:"amount"`
	Currency *string  `json:"currency,omitempty" db:"currency"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	ErrorCode    *string `json:"error_code,omitempty" db:"error_code"`

	IPAddress  *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo JSONB   `json:"device_info,omitempty" db:"device_info"`
	Details    JSONB   `json:"details,omitempty" db:"details"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetPayment links the audit to a local payment
func (pa *PaymentAudit) SetPayment(p *Payment) *PaymentAudit {
	if p == nil {
		return pa
	}
	pa.PaymentID = &p.ID
	pa.BookingID = &p.BookingID
	provider := string(p.Provider)
	pa.Provider = &provider
	if p.ProviderPaymentID != nil {
		pa.ProviderPaymentID = p.ProviderPaymentID
	}
	pa.Amount = &p.Amount
	pa.Currency = &p.Currency
	return pa
}

// SetProvider sets the provider and its payment reference
func (pa *PaymentAudit) SetProvider(provider PaymentProvider, providerPaymentID string) *PaymentAudit {
	p := string(provider)
	pa.Provider = &p
	if providerPaymentID != "" {
		pa.ProviderPaymentID = &providerPaymentID
	}
	return pa
}

// SetBooking sets the booking id
func (pa *PaymentAudit) SetBooking(bookingID uuid.UUID) *PaymentAudit {
	if bookingID != uuid.Nil {
		pa.BookingID = &bookingID
	}
	return pa
}

// SetAmount records an amount other than the payment's own (e.g. a refund)
func (pa *PaymentAudit) SetAmount(amount float64, currency string) *PaymentAudit {
	pa.Amount = &amount
	if currency != "" {
		pa.Currency = &currency
	}
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string, code string) *PaymentAudit {
	if message != "" {
		pa.ErrorMessage = &message
	}
	if code != "" {
		pa.ErrorCode = &code
	}
	return pa
}

// SetClient records where the request came from
func (pa *PaymentAudit) SetClient(ip, userAgent string, device map[string]interface{}) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if device != nil {
		pa.DeviceInfo = JSONB(device)
	}
	return pa
}

// AddDetail attaches a free-form detail
func (pa *PaymentAudit) AddDetail(key string, value interface{}) *PaymentAudit {
	if pa.Details == nil {
		pa.Details = JSONB{}
	}
	pa.Details[key] = value
	return pa
}
