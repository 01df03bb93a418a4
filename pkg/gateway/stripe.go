package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds resolved credentials for Stripe Checkout
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	TestMode      bool
	// Backends overrides the API endpoints, used in tests
	Backends *stripe.Backends
}

// StripeGateway implements Gateway with Stripe Checkout Sessions.
// Stripe captures automatically, so Capture is never needed.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway validates the key family against the mode flag and builds the client
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if err := requireField(ProviderStripe, "secretKey", cfg.SecretKey); err != nil {
		return nil, err
	}

	isTestKey := strings.HasPrefix(cfg.SecretKey, "sk_test_") || strings.HasPrefix(cfg.SecretKey, "rk_test_")
	if cfg.TestMode && !isTestKey {
		return nil, &ConfigError{Provider: ProviderStripe, Field: "secretKey", Message: "test mode requires a test secret key"}
	}
	if !cfg.TestMode && isTestKey {
		return nil, &ConfigError{Provider: ProviderStripe, Field: "secretKey", Message: "live mode cannot use a test secret key"}
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, cfg.Backends)

	return &StripeGateway{api: api, webhookSecret: cfg.WebhookSecret}, nil
}

// Provider returns the provider name
func (g *StripeGateway) Provider() string {
	return ProviderStripe
}

// CreateCheckout creates a hosted Checkout Session for the booking
func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	metadata := map[string]string{
		"booking_id": req.BookingID,
		"payment_id": req.PaymentID,
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(req.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(appendRawQuery(req.SuccessURL, "session_id={CHECKOUT_SESSION_ID}")),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.BookingID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, stripeError(err)
	}

	return &Checkout{ProviderPaymentID: session.ID, RedirectURL: session.URL}, nil
}

// CreateRefund refunds the payment intent behind a Checkout Session
func (g *StripeGateway) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	paymentIntentID := req.ProviderPaymentID
	if strings.HasPrefix(paymentIntentID, "cs_") {
		session, err := g.getSession(ctx, paymentIntentID)
		if err != nil {
			return nil, err
		}
		if session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
			return nil, fmt.Errorf("stripe session %s has no payment intent", session.ID)
		}
		paymentIntentID = session.PaymentIntent.ID
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(minorUnits(req.Amount))
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	params.Context = ctx

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, stripeError(err)
	}
	return &Refund{ProviderRefundID: refund.ID, Status: string(refund.Status)}, nil
}

// ParseCallback retrieves the session on browser return and verifies webhook signatures
func (g *StripeGateway) ParseCallback(ctx context.Context, cb Callback) (*Settlement, error) {
	if cb.Kind == CallbackWebhook {
		return g.parseWebhook(cb)
	}

	if cb.Query.Get("cancelled") != "" {
		return &Settlement{Outcome: OutcomeAbandoned, ErrorCode: "cancelled"}, nil
	}

	sessionID := cb.Query.Get("session_id")
	if sessionID == "" {
		return &Settlement{Outcome: OutcomePending}, nil
	}

	session, err := g.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return settlementFromSession(session), nil
}

// Capture is not needed for Checkout Sessions
func (g *StripeGateway) Capture(ctx context.Context, providerPaymentID string) (*Settlement, error) {
	return nil, ErrNotSupported
}

func (g *StripeGateway) getSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("payment_intent")
	params.Context = ctx
	session, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, stripeError(err)
	}
	return session, nil
}

func (g *StripeGateway) parseWebhook(cb Callback) (*Settlement, error) {
	if g.webhookSecret == "" {
		return nil, &ConfigError{Provider: ProviderStripe, Field: "webhookSecret", Message: "value is empty"}
	}

	event, err := webhook.ConstructEventWithOptions(cb.Body, cb.Header.Get("Stripe-Signature"), g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.expired", "checkout.session.async_payment_failed":
	default:
		return &Settlement{Ignored: true}, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode stripe session: %w", err)
	}

	s := settlementFromSession(&session)
	if string(event.Type) == "checkout.session.async_payment_failed" {
		s.Outcome = OutcomeFailed
		s.ErrorCode = "async_payment_failed"
	}
	return s, nil
}

func settlementFromSession(session *stripe.CheckoutSession) *Settlement {
	s := &Settlement{
		ProviderPaymentID: session.ID,
		BookingID:         session.Metadata["booking_id"],
		PaymentID:         session.Metadata["payment_id"],
	}
	if s.BookingID == "" {
		s.BookingID = session.ClientReferenceID
	}

	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		s.Outcome = OutcomeSucceeded
	case session.Status == stripe.CheckoutSessionStatusExpired:
		s.Outcome = OutcomeAbandoned
		s.ErrorCode = "session_expired"
	default:
		s.Outcome = OutcomePending
	}
	return s
}

func stripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &CommunicationError{Provider: ProviderStripe, StatusCode: stripeErr.HTTPStatusCode, Err: err}
	}
	return &CommunicationError{Provider: ProviderStripe, Err: err}
}

// appendRawQuery appends an already-encoded query fragment
func appendRawQuery(base, fragment string) string {
	if strings.Contains(base, "?") {
		return base + "&" + fragment
	}
	return base + "?" + fragment
}
