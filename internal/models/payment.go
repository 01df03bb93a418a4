package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentProvider identifies an external payment provider
type PaymentProvider string

const (
	ProviderStripe  PaymentProvider = "STRIPE"
	ProviderPayPal  PaymentProvider = "PAYPAL"
	ProviderCMI     PaymentProvider = "CMI"
	ProviderPayzone PaymentProvider = "PAYZONE"
	ProviderCash    PaymentProvider = "CASH"
)

// AllProviders lists every supported provider
var AllProviders = []PaymentProvider{ProviderStripe, ProviderPayPal, ProviderCMI, ProviderPayzone, ProviderCash}

// ParseProvider normalizes a provider name (case-insensitive)
func ParseProvider(s string) (PaymentProvider, bool) {
	p := PaymentProvider(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllProviders {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// PaymentStatus is the state of one payment attempt, mirrored onto its booking
type PaymentStatus string

const (
	PaymentStatusRequiresPaymentMethod PaymentStatus = "REQUIRES_PAYMENT_METHOD"
	PaymentStatusRequiresAction        PaymentStatus = "REQUIRES_ACTION"
	PaymentStatusProcessing            PaymentStatus = "PROCESSING"
	PaymentStatusSucceeded             PaymentStatus = "SUCCEEDED"
	PaymentStatusCancelled             PaymentStatus = "CANCELLED"
	PaymentStatusRefunded              PaymentStatus = "REFUNDED"
)

// IsSettled reports whether money has been captured for the payment
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusRefunded
}

// IsOpen reports whether the payment can still be completed by the payer
func (s PaymentStatus) IsOpen() bool {
	switch s {
	case PaymentStatusRequiresPaymentMethod, PaymentStatusRequiresAction, PaymentStatusProcessing:
		return true
	}
	return false
}

// Payment is one external payment attempt for a booking
type Payment struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	BookingID         uuid.UUID       `json:"booking_id" db:"booking_id"`
	Provider          PaymentProvider `json:"provider" db:"provider"`
	ProviderPaymentID *string         `json:"provider_payment_id,omitempty" db:"provider_payment_id"`
	Status            PaymentStatus   `json:"status" db:"status"`
	Amount            float64         `json:"amount" db:"amount"`
	Currency          string          `json:"currency" db:"currency"`
	CapturedAt        *time.Time      `json:"captured_at,omitempty" db:"captured_at"`
	RefundedAt        *time.Time      `json:"refunded_at,omitempty" db:"refunded_at"`
	RefundedAmount    float64         `json:"refunded_amount" db:"refunded_amount"`
	ErrorCode         *string         `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage      *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// RefundableAmount is what can still be refunded
func (p *Payment) RefundableAmount() float64 {
	if !p.Status.IsSettled() {
		return 0
	}
	return RoundMoney(p.Amount - p.RefundedAmount)
}

// CheckoutResult is returned when a checkout has been created at the provider
type CheckoutResult struct {
	PaymentID         uuid.UUID       `json:"paymentId"`
	Provider          PaymentProvider `json:"provider"`
	ProviderPaymentID string          `json:"providerPaymentId"`
	RedirectURL       string          `json:"redirectUrl"`
	Status            PaymentStatus   `json:"status"`
}

// RefundRequest asks a provider to return money for a settled payment
type RefundRequest struct {
	PaymentProviderID string  `json:"paymentProviderId" binding:"required"`
	Amount            float64 `json:"amount"`
	Reason            *string `json:"reason,omitempty"`
}

// RefundResponse carries the provider's refund reference
type RefundResponse struct {
	ProviderRefundID string `json:"providerRefundId"`
}
