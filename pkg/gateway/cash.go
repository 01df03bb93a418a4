package gateway

import (
	"context"
)

// CashGateway is the pay-on-arrival provider. Nothing is collected online;
// the organizer confirms the booking once the money is received.
type CashGateway struct{}

// NewCashGateway creates the cash adapter
func NewCashGateway() *CashGateway {
	return &CashGateway{}
}

// Provider returns the provider name
func (g *CashGateway) Provider() string {
	return ProviderCash
}

// CreateCheckout sends the payer straight to the success page
func (g *CashGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	return &Checkout{
		ProviderPaymentID: "cash_" + req.PaymentID,
		RedirectURL:       req.SuccessURL,
		Offline:           true,
	}, nil
}

// CreateRefund is not possible for money that never went through us
func (g *CashGateway) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	return nil, ErrNotSupported
}

// ParseCallback reports the payment as pending collection
func (g *CashGateway) ParseCallback(ctx context.Context, cb Callback) (*Settlement, error) {
	if cb.Kind == CallbackWebhook {
		return &Settlement{Ignored: true}, nil
	}
	if cb.Query.Get("cancelled") != "" {
		return &Settlement{Outcome: OutcomeAbandoned, ErrorCode: "cancelled"}, nil
	}
	return &Settlement{Outcome: OutcomePending}, nil
}

// Capture is not supported
func (g *CashGateway) Capture(ctx context.Context, providerPaymentID string) (*Settlement, error) {
	return nil, ErrNotSupported
}
