package services

import (
	"context"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuditService writes the payment audit trail. Write failures are logged
// and never returned to the caller.
type AuditService struct {
	store  PaymentAuditStore
	logger *logrus.Logger
	now    Clock
}

// NewAuditService creates a new audit service
func NewAuditService(store PaymentAuditStore, logger *logrus.Logger, now Clock) *AuditService {
	return &AuditService{store: store, logger: logger, now: now}
}

// AuditEvent represents a payment event to be logged
type AuditEvent struct {
	Type   models.PaymentEventType
	Source models.PaymentEventSource

	// Payment is nil when the confirmation could not be matched;
	// BookingID and Provider are used instead
	Payment           *models.Payment
	BookingID         uuid.UUID
	Provider          models.PaymentProvider
	ProviderPaymentID string

	// Amount overrides the payment amount (refunds)
	Amount       *float64
	ErrorCode    string
	ErrorMessage string
	Client       ClientInfo
	Details      map[string]interface{}
}

// LogCheckoutCreated logs a checkout handshake that returned a redirect
func (s *AuditService) LogCheckoutCreated(ctx context.Context, p *models.Payment, redirectURL string, client ClientInfo) {
	s.logEvent(ctx, AuditEvent{
		Type:    models.PaymentEventCheckoutCreated,
		Source:  models.PaymentSourceUser,
		Payment: p,
		Client:  client,
		Details: map[string]interface{}{"redirect_url": redirectURL},
	})
}

// LogCheckoutFailed logs a checkout that could not be created at the provider
func (s *AuditService) LogCheckoutFailed(ctx context.Context, p *models.Payment, code string, err error, client ClientInfo) {
	s.logEvent(ctx, AuditEvent{
		Type:         models.PaymentEventCheckoutFailed,
		Source:       models.PaymentSourceProvider,
		Payment:      p,
		ErrorCode:    code,
		ErrorMessage: err.Error(),
		Client:       client,
	})
}

// LogCallback logs a provider callback as received, before it is applied
func (s *AuditService) LogCallback(ctx context.Context, provider models.PaymentProvider, source models.PaymentEventSource, p *models.Payment, providerPaymentID, outcome string, client ClientInfo) {
	s.logEvent(ctx, AuditEvent{
		Type:              models.PaymentEventCallbackReceived,
		Source:            source,
		Payment:           p,
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		Client:            client,
		Details:           map[string]interface{}{"outcome": outcome},
	})
}

// LogOutcome logs the settled result of a callback
func (s *AuditService) LogOutcome(ctx context.Context, eventType models.PaymentEventType, source models.PaymentEventSource, p *models.Payment, code, message string, details map[string]interface{}) {
	s.logEvent(ctx, AuditEvent{
		Type:         eventType,
		Source:       source,
		Payment:      p,
		ErrorCode:    code,
		ErrorMessage: message,
		Details:      details,
	})
}

// LogAmbiguous logs a confirmation that matched no local payment
func (s *AuditService) LogAmbiguous(ctx context.Context, provider models.PaymentProvider, source models.PaymentEventSource, providerPaymentID, reason string, client ClientInfo) {
	s.logEvent(ctx, AuditEvent{
		Type:              models.PaymentEventReconciliationAmbiguous,
		Source:            source,
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		ErrorCode:         "reconciliation_ambiguous",
		ErrorMessage:      reason,
		Client:            client,
	})
}

// LogRefund logs a refund issued at the provider
func (s *AuditService) LogRefund(ctx context.Context, eventType models.PaymentEventType, source models.PaymentEventSource, p *models.Payment, amount float64, providerRefundID string, client ClientInfo) {
	s.logEvent(ctx, AuditEvent{
		Type:    eventType,
		Source:  source,
		Payment: p,
		Amount:  &amount,
		Client:  client,
		Details: map[string]interface{}{"provider_refund_id": providerRefundID},
	})
}

// logEvent is the internal method that writes to the payment_audits table
func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) {
	if s == nil || s.store == nil {
		return
	}

	audit := models.NewPaymentAudit(event.Type, event.Source)
	if s.now != nil {
		audit.CreatedAt = s.now()
	}
	if event.Payment != nil {
		audit.SetPayment(event.Payment)
	} else {
		audit.SetBooking(event.BookingID)
		if event.Provider != "" {
			audit.SetProvider(event.Provider, event.ProviderPaymentID)
		}
	}
	if event.Payment != nil && event.ProviderPaymentID != "" {
		audit.ProviderPaymentID = &event.ProviderPaymentID
	}
	if event.Amount != nil {
		currency := ""
		if event.Payment != nil {
			currency = event.Payment.Currency
		}
		audit.SetAmount(*event.Amount, currency)
	}
	audit.SetError(event.ErrorMessage, event.ErrorCode)

	var device map[string]interface{}
	if event.Client.UserAgent != "" {
		device = utils.ParseUserAgent(event.Client.UserAgent).AuditFields()
	}
	audit.SetClient(event.Client.IP, event.Client.UserAgent, device)

	for k, v := range event.Details {
		audit.AddDetail(k, v)
	}

	if err := s.store.Log(ctx, audit); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": event.Type,
			"payment_id": audit.PaymentID,
		}).Warn("Payment audit not recorded")
	}
}
