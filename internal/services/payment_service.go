package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/experiencehub/booking-engine/internal/metrics"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/pkg/gateway"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PaymentServiceConfig holds checkout URL settings
type PaymentServiceConfig struct {
	PublicBaseURL string // base of the return/webhook endpoints handed to providers
}

// PaymentService creates checkouts and refunds at the providers
type PaymentService struct {
	payments    PaymentStore
	bookings    BookingStore
	experiences ExperienceStore
	gateways    GatewayResolver
	notifier    Notifier
	audit       *AuditService
	config      PaymentServiceConfig
	logger      *logrus.Logger
	now         Clock
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	payments PaymentStore,
	bookings BookingStore,
	experiences ExperienceStore,
	gateways GatewayResolver,
	notifier Notifier,
	audit *AuditService,
	config PaymentServiceConfig,
	logger *logrus.Logger,
	now Clock,
) *PaymentService {
	if now == nil {
		now = time.Now
	}
	config.PublicBaseURL = strings.TrimRight(config.PublicBaseURL, "/")
	return &PaymentService{
		payments:    payments,
		bookings:    bookings,
		experiences: experiences,
		gateways:    gateways,
		notifier:    notifier,
		audit:       audit,
		config:      config,
		logger:      logger,
		now:         now,
	}
}

// ============================================================================
// CHECKOUT
// ============================================================================

// ReturnURL is the endpoint a provider sends the payer's browser back to
func (s *PaymentService) ReturnURL(provider models.PaymentProvider, bookingID, paymentID uuid.UUID, cancelled bool) string {
	q := url.Values{}
	q.Set("booking_id", bookingID.String())
	q.Set("payment_id", paymentID.String())
	if cancelled {
		q.Set("cancelled", "1")
	}
	return fmt.Sprintf("%s/api/v1/payments/%s/return?%s", s.config.PublicBaseURL, strings.ToLower(string(provider)), q.Encode())
}

// WebhookURL is the server-to-server endpoint of a provider
func (s *PaymentService) WebhookURL(provider models.PaymentProvider) string {
	return fmt.Sprintf("%s/api/v1/payments/%s/webhook", s.config.PublicBaseURL, strings.ToLower(string(provider)))
}

// StartCheckout opens a new payment attempt for a pending booking and returns
// the provider redirect. Earlier open attempts of the booking are superseded.
func (s *PaymentService) StartCheckout(ctx context.Context, booking *models.Booking, provider models.PaymentProvider, customerEmail string, client ClientInfo) (*models.CheckoutResult, error) {
	now := s.now()
	if booking.Status != models.BookingStatusPending {
		return nil, &models.IllegalTransitionError{From: booking.Status, To: models.BookingStatusConfirmed, Reason: "only pending bookings can be paid"}
	}
	if booking.IsExpired(now) {
		return nil, &models.IllegalTransitionError{From: booking.Status, To: models.BookingStatusConfirmed, Reason: "reservation hold has expired"}
	}

	log := s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"provider":   provider,
	})

	if _, err := s.payments.CancelOpenForBooking(ctx, booking.ID, "superseded", now); err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Provider:  provider,
		Status:    models.PaymentStatusRequiresPaymentMethod,
		Amount:    booking.TotalPrice,
		Currency:  booking.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	log = log.WithField("payment_id", payment.ID)

	gw, err := s.gateways.Resolve(ctx, provider)
	if err != nil {
		return nil, s.failCheckout(ctx, payment, err, client, log)
	}

	checkout, err := gw.CreateCheckout(ctx, gateway.CheckoutRequest{
		BookingID:     booking.ID.String(),
		PaymentID:     payment.ID.String(),
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Description:   fmt.Sprintf("Booking %s (%d guests)", booking.ID, booking.Guests),
		CustomerEmail: customerEmail,
		SuccessURL:    s.ReturnURL(provider, booking.ID, payment.ID, false),
		CancelURL:     s.ReturnURL(provider, booking.ID, payment.ID, true),
		CallbackURL:   s.WebhookURL(provider),
	})
	if err != nil {
		return nil, s.failCheckout(ctx, payment, translateGatewayError(provider, err), client, log)
	}

	status := models.PaymentStatusRequiresAction
	if checkout.Offline {
		status = models.PaymentStatusProcessing
	}
	if err := s.payments.SetCheckoutCreated(ctx, payment.ID, checkout.ProviderPaymentID, status, s.now()); err != nil {
		return nil, err
	}
	if err := s.bookings.UpdatePaymentStatus(ctx, booking.ID, status, s.now()); err != nil {
		return nil, err
	}
	payment.Status = status
	payment.ProviderPaymentID = &checkout.ProviderPaymentID

	s.audit.LogCheckoutCreated(ctx, payment, checkout.RedirectURL, client)
	metrics.IncCheckout(string(provider), "created")
	log.WithField("provider_payment_id", checkout.ProviderPaymentID).Info("Checkout created")

	return &models.CheckoutResult{
		PaymentID:         payment.ID,
		Provider:          provider,
		ProviderPaymentID: checkout.ProviderPaymentID,
		RedirectURL:       checkout.RedirectURL,
		Status:            status,
	}, nil
}

// failCheckout cancels the attempt so the explorer can retry, and returns err
func (s *PaymentService) failCheckout(ctx context.Context, payment *models.Payment, err error, client ClientInfo, log *logrus.Entry) error {
	code := "checkout_failed"
	var cfgErr *models.ProviderConfigurationError
	var commErr *models.ProviderCommunicationError
	switch {
	case errors.As(err, &cfgErr):
		code = "provider_configuration"
		log.WithError(err).Error("Checkout failed: provider misconfigured")
	case errors.As(err, &commErr):
		code = "provider_communication"
		log.WithError(err).WithField("status_code", commErr.StatusCode).Warn("Checkout failed: provider unreachable")
	default:
		log.WithError(err).Error("Checkout failed")
	}

	if _, cancelErr := s.payments.MarkCancelled(ctx, payment.ID, code, err.Error(), s.now()); cancelErr != nil {
		log.WithError(cancelErr).Error("Failed to cancel payment after checkout failure")
	}
	payment.Status = models.PaymentStatusCancelled

	s.audit.LogCheckoutFailed(ctx, payment, code, err, client)
	metrics.IncCheckout(string(payment.Provider), "failed")
	return err
}

// ============================================================================
// REFUNDS
// ============================================================================

// Refund returns money for a settled payment. The actor must own the
// experience of the booking or be an admin.
func (s *PaymentService) Refund(ctx context.Context, actor Actor, req *models.RefundRequest, client ClientInfo) (*models.RefundResponse, error) {
	if strings.TrimSpace(req.PaymentProviderID) == "" {
		return nil, models.NewValidationError("paymentProviderId", "is required")
	}
	amount := models.RoundMoney(req.Amount)
	if amount <= 0 {
		return nil, models.NewValidationError("amount", "must be greater than zero")
	}

	payment, err := s.payments.GetByProviderPaymentID(ctx, req.PaymentProviderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, &models.NotFoundError{Resource: "payment", ID: req.PaymentProviderID}
	}

	if !actor.IsAdmin() {
		owned, err := s.ownsPayment(ctx, actor.UserID, payment)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, &models.NotFoundError{Resource: "payment", ID: req.PaymentProviderID}
		}
	}

	reason := ""
	if req.Reason != nil {
		reason = *req.Reason
	}
	refund, err := s.issueRefund(ctx, payment, amount, reason)
	if err != nil {
		return nil, err
	}

	s.audit.LogRefund(ctx, models.PaymentEventRefundIssued, models.PaymentSourceUser, payment, amount, refund.ProviderRefundID, client)
	s.notifyRefund(ctx, payment, amount)

	return &models.RefundResponse{ProviderRefundID: refund.ProviderRefundID}, nil
}

// AutoRefund returns the full captured amount of a payment whose booking
// could not be confirmed
func (s *PaymentService) AutoRefund(ctx context.Context, payment *models.Payment) (*gateway.Refund, error) {
	amount := payment.RefundableAmount()
	refund, err := s.issueRefund(ctx, payment, amount, "booking could not be confirmed")
	if err != nil {
		s.audit.LogOutcome(ctx, models.PaymentEventAutoRefundFailed, models.PaymentSourceSystem, payment, "auto_refund_failed", err.Error(), nil)
		return nil, err
	}
	s.audit.LogRefund(ctx, models.PaymentEventAutoRefunded, models.PaymentSourceSystem, payment, amount, refund.ProviderRefundID, ClientInfo{})
	s.notifyRefund(ctx, payment, amount)
	return refund, nil
}

func (s *PaymentService) issueRefund(ctx context.Context, payment *models.Payment, amount float64, reason string) (*gateway.Refund, error) {
	log := s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"booking_id": payment.BookingID,
		"provider":   payment.Provider,
	})

	if !payment.Status.IsSettled() {
		return nil, &models.ValidationError{Field: "paymentProviderId", Message: "payment has not been captured"}
	}
	if amount <= 0 || amount > payment.RefundableAmount() {
		return nil, models.NewValidationError("amount", fmt.Sprintf("must not exceed the refundable %.2f", payment.RefundableAmount()))
	}
	if payment.ProviderPaymentID == nil || *payment.ProviderPaymentID == "" {
		return nil, &models.ReconciliationAmbiguityError{Provider: payment.Provider, Reason: "payment has no provider reference"}
	}

	gw, err := s.gateways.Resolve(ctx, payment.Provider)
	if err != nil {
		return nil, err
	}

	refund, err := gw.CreateRefund(ctx, gateway.RefundRequest{
		ProviderPaymentID: *payment.ProviderPaymentID,
		Amount:            amount,
		Currency:          payment.Currency,
		Reason:            reason,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrNotSupported) {
			log.Warn("Provider does not support refunds")
			return nil, err
		}
		return nil, translateGatewayError(payment.Provider, err)
	}

	recorded, err := s.payments.RecordRefund(ctx, payment.ID, amount, s.now())
	if err != nil {
		return nil, err
	}
	if !recorded {
		// the provider accepted it, so only the local bookkeeping is off
		log.WithField("provider_refund_id", refund.ProviderRefundID).Error("Refund issued but exceeds locally recorded amount")
	}
	payment.Status = models.PaymentStatusRefunded
	payment.RefundedAmount = models.RoundMoney(payment.RefundedAmount + amount)

	if err := s.bookings.UpdatePaymentStatus(ctx, payment.BookingID, models.PaymentStatusRefunded, s.now()); err != nil {
		log.WithError(err).Warn("Failed to mirror refund onto booking")
	}

	log.WithFields(logrus.Fields{
		"amount":             amount,
		"provider_refund_id": refund.ProviderRefundID,
	}).Info("Refund issued")
	return refund, nil
}

func (s *PaymentService) ownsPayment(ctx context.Context, organizerID uuid.UUID, payment *models.Payment) (bool, error) {
	booking, err := s.bookings.GetByID(ctx, payment.BookingID)
	if err != nil || booking == nil {
		return false, err
	}
	exp, err := s.experiences.GetExperience(ctx, booking.ExperienceID)
	if err != nil || exp == nil {
		return false, err
	}
	return exp.OrganizerID == organizerID, nil
}

func (s *PaymentService) notifyRefund(ctx context.Context, payment *models.Payment, amount float64) {
	booking, err := s.bookings.GetByID(ctx, payment.BookingID)
	if err != nil || booking == nil {
		s.logger.WithError(err).WithField("booking_id", payment.BookingID).Warn("Cannot notify refund: booking not loaded")
		return
	}
	href := fmt.Sprintf("/bookings/%s", booking.ID)
	_, err = s.notifier.CreateNotification(ctx, CreateNotificationInput{
		UserID:    booking.ExplorerID,
		Title:     "Payment refunded",
		Message:   fmt.Sprintf("%.2f %s has been refunded to you.", amount, payment.Currency),
		Priority:  models.PriorityHigh,
		EventType: models.EventPaymentRefunded,
		Channels:  models.AllChannels,
		Href:      &href,
		Metadata: map[string]interface{}{
			"bookingId": booking.ID.String(),
			"paymentId": payment.ID.String(),
			"amount":    amount,
		},
	})
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to create refund notification")
	}
}
