package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/experiencehub/booking-engine/internal/metrics"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/pkg/gateway"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Confirmer runs the post-confirmation pipeline of a booking
type Confirmer interface {
	RunBookingConfirmationSideEffects(ctx context.Context, bookingID uuid.UUID, origin string) (bool, error)
}

// AutoRefunder returns the captured money of a payment whose booking was lost
type AutoRefunder interface {
	AutoRefund(ctx context.Context, payment *models.Payment) (*gateway.Refund, error)
}

// SettlementResult describes what a provider callback did locally
type SettlementResult struct {
	BookingID    uuid.UUID
	PaymentID    uuid.UUID
	Outcome      gateway.Outcome
	Confirmation models.ConfirmationOutcome
	Duplicate    bool
	Ignored      bool
	// DuplicateCapture is true when another attempt had already paid the booking
	DuplicateCapture bool
	// SideEffectsRun is true when this call ran the confirmation pipeline
	SideEffectsRun bool
	// Ack is the body the provider expects in the webhook response
	Ack string
}

// Succeeded reports whether the payer should land on the success page
func (r *SettlementResult) Succeeded() bool {
	if r == nil {
		return false
	}
	switch r.Outcome {
	case gateway.OutcomeSucceeded:
		return r.Confirmation != models.ConfirmationRejected
	case gateway.OutcomePending:
		return true
	}
	return false
}

// SettlementService maps provider confirmations back onto local payments
// and bookings. Every step is a conditional update so duplicate deliveries
// are harmless.
type SettlementService struct {
	payments  PaymentStore
	bookings  BookingStore
	gateways  GatewayResolver
	confirmer Confirmer
	refunder  AutoRefunder
	audit     *AuditService
	logger    *logrus.Logger
	now       Clock
}

// NewSettlementService creates a new settlement service
func NewSettlementService(
	payments PaymentStore,
	bookings BookingStore,
	gateways GatewayResolver,
	confirmer Confirmer,
	refunder AutoRefunder,
	audit *AuditService,
	logger *logrus.Logger,
	now Clock,
) *SettlementService {
	if now == nil {
		now = time.Now
	}
	return &SettlementService{
		payments:  payments,
		bookings:  bookings,
		gateways:  gateways,
		confirmer: confirmer,
		refunder:  refunder,
		audit:     audit,
		logger:    logger,
		now:       now,
	}
}

// Reconcile applies one provider return or webhook
func (s *SettlementService) Reconcile(ctx context.Context, provider models.PaymentProvider, cb gateway.Callback, client ClientInfo) (*SettlementResult, error) {
	source := models.PaymentSourceWebhook
	if cb.Kind == gateway.CallbackReturn {
		source = models.PaymentSourceReturn
	}
	log := s.logger.WithFields(logrus.Fields{
		"provider": provider,
		"source":   source,
	})

	gw, err := s.gateways.Resolve(ctx, provider)
	if err != nil {
		return nil, err
	}

	settlement, err := gw.ParseCallback(ctx, cb)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			log.WithError(err).Warn("Rejected callback with invalid signature")
			return nil, err
		}
		return nil, translateGatewayError(provider, err)
	}
	if settlement.Ignored {
		log.Debug("Callback carries no payment outcome")
		return &SettlementResult{Ignored: true, Ack: settlement.Ack}, nil
	}

	payment, reason, err := s.resolvePayment(ctx, provider, settlement, cb)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		log.WithFields(logrus.Fields{
			"provider_payment_id": settlement.ProviderPaymentID,
			"payload_booking_id":  settlement.BookingID,
			"payload_payment_id":  settlement.PaymentID,
			"query_booking_id":    cb.Query.Get("booking_id"),
			"query_payment_id":    cb.Query.Get("payment_id"),
			"outcome":             settlement.Outcome,
		}).Error("Cannot reconcile provider confirmation")
		s.audit.LogAmbiguous(ctx, provider, source, settlement.ProviderPaymentID, reason, client)
		metrics.IncSettlement(string(provider), "ambiguous")
		result := &SettlementResult{Outcome: settlement.Outcome, Ack: settlement.Ack}
		if id, err := uuid.Parse(cb.Query.Get("booking_id")); err == nil {
			result.BookingID = id
		}
		return result, &models.ReconciliationAmbiguityError{
			Provider:          provider,
			ProviderPaymentID: settlement.ProviderPaymentID,
			Reason:            reason,
		}
	}

	log = log.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"booking_id": payment.BookingID,
	})
	s.audit.LogCallback(ctx, provider, source, payment, settlement.ProviderPaymentID, string(settlement.Outcome), client)

	if settlement.Outcome == gateway.OutcomeRequiresCapture {
		ref := settlement.ProviderPaymentID
		if ref == "" && payment.ProviderPaymentID != nil {
			ref = *payment.ProviderPaymentID
		}
		captured, err := gw.Capture(ctx, ref)
		if err != nil {
			log.WithError(err).Error("Failed to capture payment")
			return nil, translateGatewayError(provider, err)
		}
		if captured.Ack == "" {
			captured.Ack = settlement.Ack
		}
		settlement = captured
	}

	result := &SettlementResult{
		BookingID: payment.BookingID,
		PaymentID: payment.ID,
		Outcome:   settlement.Outcome,
		Ack:       settlement.Ack,
	}

	if err := s.apply(ctx, payment, settlement, source, result, log); err != nil {
		return nil, err
	}
	metrics.IncSettlement(string(provider), string(result.Outcome))
	return result, nil
}

// resolvePayment finds the local payment of a confirmation. It tries the ids
// carried in the payload, then the return URL, then the provider reference.
// A nil payment comes with the reason it could not be matched.
func (s *SettlementService) resolvePayment(ctx context.Context, provider models.PaymentProvider, st *gateway.Settlement, cb gateway.Callback) (*models.Payment, string, error) {
	paymentRef := firstNonEmpty(st.PaymentID, cb.Query.Get("payment_id"))
	bookingRef := firstNonEmpty(st.BookingID, cb.Query.Get("booking_id"))

	var payment *models.Payment
	if id, err := uuid.Parse(paymentRef); err == nil {
		payment, err = s.payments.GetByID(ctx, id)
		if err != nil {
			return nil, "", err
		}
	}
	if payment == nil && st.ProviderPaymentID != "" {
		var err error
		payment, err = s.payments.GetByProviderPaymentID(ctx, st.ProviderPaymentID)
		if err != nil {
			return nil, "", err
		}
	}
	if payment == nil {
		return nil, "no payment matches the confirmation", nil
	}

	if payment.Provider != provider {
		return nil, fmt.Sprintf("payment belongs to provider %s", payment.Provider), nil
	}
	if bookingID, err := uuid.Parse(bookingRef); err == nil && bookingID != payment.BookingID {
		return nil, "booking id does not match the payment", nil
	}
	if st.ProviderPaymentID != "" && payment.ProviderPaymentID != nil && *payment.ProviderPaymentID != "" &&
		*payment.ProviderPaymentID != st.ProviderPaymentID {
		return nil, "provider reference does not match the payment", nil
	}
	return payment, "", nil
}

func (s *SettlementService) apply(ctx context.Context, payment *models.Payment, st *gateway.Settlement, source models.PaymentEventSource, result *SettlementResult, log *logrus.Entry) error {
	now := s.now()

	switch st.Outcome {
	case gateway.OutcomeSucceeded:
		applied, err := s.payments.MarkSucceeded(ctx, payment.ID, st.ProviderPaymentID, now)
		if err != nil {
			return err
		}
		if !applied {
			result.Duplicate = true
			s.audit.LogOutcome(ctx, models.PaymentEventDuplicate, source, payment, "", "", nil)

			current, err := s.payments.GetByID(ctx, payment.ID)
			if err != nil {
				return err
			}
			if current == nil || current.Status != models.PaymentStatusSucceeded {
				log.Info("Duplicate payment confirmation ignored")
				return nil
			}
			// an earlier delivery recorded the payment but may have stopped
			// before the booking caught up
			log.Info("Duplicate payment confirmation, re-checking booking")
			return s.settleBooking(ctx, current, result, log)
		}
		payment.Status = models.PaymentStatusSucceeded
		payment.CapturedAt = &now
		if st.ProviderPaymentID != "" {
			payment.ProviderPaymentID = &st.ProviderPaymentID
		}
		s.audit.LogOutcome(ctx, models.PaymentEventSucceeded, source, payment, "", "", nil)

		booking, err := s.bookings.GetByID(ctx, payment.BookingID)
		if err != nil {
			return fmt.Errorf("payment recorded but booking not loaded: %w", err)
		}
		if booking.PaidByAnotherAttempt() {
			s.refundDuplicateCapture(ctx, payment, source, result, log)
			return nil
		}
		return s.settleBooking(ctx, payment, result, log)

	case gateway.OutcomeFailed:
		if _, err := s.payments.MarkCancelled(ctx, payment.ID, st.ErrorCode, st.ErrorMessage, now); err != nil {
			return err
		}
		s.audit.LogOutcome(ctx, models.PaymentEventFailed, source, payment, st.ErrorCode, st.ErrorMessage, nil)
		log.WithField("error_code", st.ErrorCode).Info("Payment failed")

	case gateway.OutcomeAbandoned:
		changed, err := s.payments.MarkCancelled(ctx, payment.ID, st.ErrorCode, st.ErrorMessage, now)
		if err != nil {
			return err
		}
		if changed {
			if err := s.bookings.UpdatePaymentStatus(ctx, payment.BookingID, models.PaymentStatusCancelled, now); err != nil {
				return err
			}
		}
		s.audit.LogOutcome(ctx, models.PaymentEventAbandoned, source, payment, st.ErrorCode, st.ErrorMessage, nil)
		log.Info("Payment abandoned")

	case gateway.OutcomePending:
		changed, err := s.payments.MarkProcessing(ctx, payment.ID, now)
		if err != nil {
			return err
		}
		if changed {
			if err := s.bookings.UpdatePaymentStatus(ctx, payment.BookingID, models.PaymentStatusProcessing, now); err != nil {
				return err
			}
		}

	default:
		log.WithField("outcome", st.Outcome).Warn("Unhandled settlement outcome")
	}
	return nil
}

// settleBooking applies a recorded SUCCEEDED payment to its booking. Both
// steps are idempotent, so it runs again on every repeated delivery.
func (s *SettlementService) settleBooking(ctx context.Context, payment *models.Payment, result *SettlementResult, log *logrus.Entry) error {
	confirmation, err := s.bookings.ConfirmPaid(ctx, payment.BookingID, s.now())
	if err != nil {
		return fmt.Errorf("payment recorded but booking not confirmed: %w", err)
	}
	result.Confirmation = confirmation
	log = log.WithField("confirmation", confirmation)

	switch confirmation {
	case models.ConfirmationApplied, models.ConfirmationAlreadyConfirmed:
		ran, err := s.confirmer.RunBookingConfirmationSideEffects(ctx, payment.BookingID, OriginPayment)
		if err != nil {
			log.WithError(err).Error("Confirmation side effects failed")
		}
		result.SideEffectsRun = ran
		if confirmation == models.ConfirmationApplied {
			log.Info("Booking confirmed by payment")
		} else if ran {
			log.Info("Confirmation side effects completed on a repeated delivery")
		}
	case models.ConfirmationRejected:
		log.Warn("Payment captured for a cancelled booking, refunding")
		if _, err := s.refunder.AutoRefund(ctx, payment); err != nil {
			log.WithError(err).Error("Automatic refund failed, manual handling required")
		}
	}
	return nil
}

// refundDuplicateCapture returns a second successful payment for a booking
// that another attempt already paid. The booking keeps its SUCCEEDED mirror.
func (s *SettlementService) refundDuplicateCapture(ctx context.Context, payment *models.Payment, source models.PaymentEventSource, result *SettlementResult, log *logrus.Entry) {
	result.Confirmation = models.ConfirmationAlreadyConfirmed
	result.DuplicateCapture = true
	s.audit.LogOutcome(ctx, models.PaymentEventDuplicateCapture, source, payment,
		"duplicate_capture", "booking already paid by another attempt", nil)
	log.Warn("Booking already paid by another attempt, refunding")

	if _, err := s.refunder.AutoRefund(ctx, payment); err != nil {
		log.WithError(err).Error("Automatic refund failed, manual handling required")
		return
	}
	if err := s.bookings.UpdatePaymentStatus(ctx, payment.BookingID, models.PaymentStatusSucceeded, s.now()); err != nil {
		log.WithError(err).Warn("Failed to restore booking payment status")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
