package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/internal/services"
	"github.com/experiencehub/booking-engine/pkg/gateway"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxCallbackBody bounds provider callback payloads
const maxCallbackBody = 1 << 20

// Refunder issues refunds on settled payments
type Refunder interface {
	Refund(ctx context.Context, actor services.Actor, req *models.RefundRequest, client services.ClientInfo) (*models.RefundResponse, error)
}

// Reconciler applies provider returns and webhooks
type Reconciler interface {
	Reconcile(ctx context.Context, provider models.PaymentProvider, cb gateway.Callback, client services.ClientInfo) (*services.SettlementResult, error)
}

// PaymentHandler handles refunds and provider callbacks
type PaymentHandler struct {
	refunds    Refunder
	settlement Reconciler
	successURL string
	cancelURL  string
	logger     *logrus.Logger
}

// NewPaymentHandler creates a new payment handler. successURL and cancelURL
// are the front-end pages a returning payer is redirected to.
func NewPaymentHandler(refunds Refunder, settlement Reconciler, successURL, cancelURL string, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		refunds:    refunds,
		settlement: settlement,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger,
	}
}

// Refund handles POST /api/v1/payments/refunds
// @Summary Refund a payment
// @Description Refund all or part of a settled payment. Organizers may refund payments on their own experiences.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body models.RefundRequest true "Refund request"
// @Success 200 {object} models.RefundResponse
// @Failure 400 {object} ErrorResponse "Invalid amount"
// @Failure 404 {object} ErrorResponse "Payment not found"
// @Failure 422 {object} ErrorResponse "Provider has no refund API"
// @Failure 502 {object} ErrorResponse "Provider unreachable"
// @Router /api/v1/payments/refunds [post]
func (h *PaymentHandler) Refund(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.RefundRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.refunds.Refund(c.Request.Context(), actor, &req, clientInfo(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Return handles GET|POST /api/v1/payments/:provider/return
// @Summary Provider return URL
// @Description The payer's browser lands here after checkout. Always redirects to the front end.
// @Tags Payments
// @Param provider path string true "Provider (stripe, paypal, cmi, payzone, cash)"
// @Param booking_id query string false "Booking ID"
// @Param payment_id query string false "Payment ID"
// @Success 302
// @Router /api/v1/payments/{provider}/return [get]
func (h *PaymentHandler) Return(c *gin.Context) {
	bookingID := c.Query("booking_id")

	provider, ok := models.ParseProvider(c.Param("provider"))
	if !ok {
		h.redirect(c, h.cancelURL, bookingID)
		return
	}

	cb, err := readCallback(c, gateway.CallbackReturn)
	if err != nil {
		h.logger.WithError(err).WithField("provider", provider).Warn("Failed to read return payload")
		h.redirect(c, h.cancelURL, bookingID)
		return
	}

	result, err := h.settlement.Reconcile(c.Request.Context(), provider, cb, clientInfo(c))
	if result != nil && result.BookingID != uuid.Nil && bookingID == "" {
		bookingID = result.BookingID.String()
	}
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"provider":   provider,
			"booking_id": bookingID,
		}).Warn("Payment return not settled")
		h.redirect(c, h.cancelURL, bookingID)
		return
	}

	if result.Succeeded() {
		h.redirect(c, h.successURL, bookingID)
		return
	}
	h.redirect(c, h.cancelURL, bookingID)
}

// Webhook handles POST /api/v1/payments/:provider/webhook
// @Summary Provider webhook
// @Description Server-to-server payment notification. Answers with the acknowledgement the provider expects.
// @Tags Payments
// @Param provider path string true "Provider"
// @Success 200
// @Failure 400 {object} ErrorResponse "Invalid signature"
// @Failure 500 {object} ErrorResponse "Could not apply the notification"
// @Router /api/v1/payments/{provider}/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	provider, ok := models.ParseProvider(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Unknown payment provider"})
		return
	}

	cb, err := readCallback(c, gateway.CallbackWebhook)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Failed to read body"})
		return
	}

	result, err := h.settlement.Reconcile(c.Request.Context(), provider, cb, clientInfo(c))
	if err != nil {
		var ambiguous *models.ReconciliationAmbiguityError
		switch {
		case errors.Is(err, gateway.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_signature", Message: err.Error()})
		case errors.As(err, &ambiguous):
			h.ack(c, result)
		default:
			respondError(c, h.logger, err)
		}
		return
	}

	h.ack(c, result)
}

func (h *PaymentHandler) ack(c *gin.Context, result *services.SettlementResult) {
	if result != nil && result.Ack != "" {
		c.String(http.StatusOK, result.Ack)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *PaymentHandler) redirect(c *gin.Context, target, bookingID string) {
	if bookingID != "" {
		if u, err := url.Parse(target); err == nil {
			q := u.Query()
			q.Set("booking_id", bookingID)
			u.RawQuery = q.Encode()
			target = u.String()
		}
	}
	c.Redirect(http.StatusFound, target)
}

func readCallback(c *gin.Context, kind gateway.CallbackKind) (gateway.Callback, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		return gateway.Callback{}, err
	}
	return gateway.Callback{
		Kind:   kind,
		Query:  c.Request.URL.Query(),
		Body:   body,
		Header: c.Request.Header,
	}, nil
}
