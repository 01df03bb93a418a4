package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	payzoneSandboxURL = "https://payment-sandbox.payzone.ma/pwthree/launch"
	payzoneLiveURL    = "https://payment.payzone.ma/pwthree/launch"

	// PayzoneSignatureHeader carries the HMAC of the callback body
	PayzoneSignatureHeader = "X-Callback-Signature"
)

// PayzoneConfig holds resolved paywall credentials
type PayzoneConfig struct {
	MerchantAccount string
	SecretKey       string
	NotificationKey string
	TestMode        bool
	// PaywallURL overrides the sandbox/live host, used in tests
	PaywallURL string
}

// PayzoneGateway implements Gateway with the Payzone paywall
type PayzoneGateway struct {
	merchantAccount string
	secretKey       string
	notificationKey string
	paywallURL      string
	now             func() time.Time
}

// NewPayzoneGateway creates a Payzone adapter
func NewPayzoneGateway(cfg PayzoneConfig) (*PayzoneGateway, error) {
	if err := requireField(ProviderPayzone, "merchantAccount", cfg.MerchantAccount); err != nil {
		return nil, err
	}
	if err := requireField(ProviderPayzone, "secretKey", cfg.SecretKey); err != nil {
		return nil, err
	}
	if err := requireField(ProviderPayzone, "notificationKey", cfg.NotificationKey); err != nil {
		return nil, err
	}

	paywallURL := cfg.PaywallURL
	if paywallURL == "" {
		paywallURL = payzoneLiveURL
		if cfg.TestMode {
			paywallURL = payzoneSandboxURL
		}
	}

	return &PayzoneGateway{
		merchantAccount: cfg.MerchantAccount,
		secretKey:       cfg.SecretKey,
		notificationKey: cfg.NotificationKey,
		paywallURL:      paywallURL,
		now:             time.Now,
	}, nil
}

// Provider returns the provider name
func (g *PayzoneGateway) Provider() string {
	return ProviderPayzone
}

type payzonePayload struct {
	MerchantAccount     string `json:"merchantAccount"`
	Timestamp           int64  `json:"timestamp"`
	Skin                string `json:"skin"`
	CustomerID          string `json:"customerId"`
	CustomerCountry     string `json:"customerCountry"`
	CustomerLocale      string `json:"customerLocale"`
	CustomerEmail       string `json:"customerEmail,omitempty"`
	ChargeID            string `json:"chargeId"`
	OrderID             string `json:"orderId"`
	Price               string `json:"price"`
	Currency            string `json:"currency"`
	Description         string `json:"description"`
	Mode                string `json:"mode"`
	PaymentMethod       string `json:"paymentMethod"`
	ShowPaymentProfiles string `json:"showPaymentProfiles"`
	CallbackURL         string `json:"callbackUrl"`
	SuccessURL          string `json:"successUrl"`
	FailureURL          string `json:"failureUrl"`
	CancelURL           string `json:"cancelUrl"`
}

type payzoneCallback struct {
	ID           string `json:"id"`
	OrderID      string `json:"orderId"`
	Status       string `json:"status"`
	CustomerID   string `json:"customerId"`
	Transactions []struct {
		ID         string `json:"id"`
		State      string `json:"state"`
		ResultCode string `json:"resultCode"`
		ResultMsg  string `json:"resultMessage"`
	} `json:"transactions"`
}

// CreateCheckout builds a signed paywall link. The payment id is the order id.
func (g *PayzoneGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	payload := payzonePayload{
		MerchantAccount:     g.merchantAccount,
		Timestamp:           g.now().Unix(),
		Skin:                "vps-1-vue",
		CustomerID:          req.BookingID,
		CustomerCountry:     "MA",
		CustomerLocale:      "fr_FR",
		CustomerEmail:       req.CustomerEmail,
		ChargeID:            req.PaymentID,
		OrderID:             req.PaymentID,
		Price:               formatAmount(req.Amount),
		Currency:            strings.ToUpper(req.Currency),
		Description:         req.Description,
		Mode:                "DEEP_LINK",
		PaymentMethod:       "CREDIT_CARD",
		ShowPaymentProfiles: "false",
		CallbackURL:         req.CallbackURL,
		SuccessURL:          req.SuccessURL,
		FailureURL:          req.CancelURL,
		CancelURL:           req.CancelURL,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payzone payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	q := url.Values{}
	q.Set("payload", encoded)
	q.Set("signature", PayzonePayloadSignature(g.secretKey, encoded))

	return &Checkout{
		ProviderPaymentID: req.PaymentID,
		RedirectURL:       g.paywallURL + "?" + q.Encode(),
	}, nil
}

// CreateRefund is handled in the Payzone back office
func (g *PayzoneGateway) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	return nil, ErrNotSupported
}

// ParseCallback verifies the notification HMAC. Browser returns carry no
// outcome and settle through the notification.
func (g *PayzoneGateway) ParseCallback(ctx context.Context, cb Callback) (*Settlement, error) {
	if cb.Kind == CallbackReturn {
		if cb.Query.Get("cancelled") != "" {
			return &Settlement{Outcome: OutcomeAbandoned, ErrorCode: "cancelled"}, nil
		}
		return &Settlement{Outcome: OutcomePending}, nil
	}

	expected := PayzoneCallbackSignature(g.notificationKey, cb.Body)
	received := strings.ToLower(strings.TrimSpace(cb.Header.Get(PayzoneSignatureHeader)))
	if !hmac.Equal([]byte(expected), []byte(received)) {
		return nil, ErrInvalidSignature
	}

	var body payzoneCallback
	if err := json.Unmarshal(cb.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode payzone callback: %w", err)
	}

	s := &Settlement{
		ProviderPaymentID: body.OrderID,
		PaymentID:         body.OrderID,
		Ack:               `{"status":"OK","message":"Status recorded"}`,
	}
	switch strings.ToUpper(body.Status) {
	case "CHARGED":
		s.Outcome = OutcomeSucceeded
	case "DECLINED", "FAILED":
		s.Outcome = OutcomeFailed
		s.ErrorCode = strings.ToLower(body.Status)
		for _, t := range body.Transactions {
			if t.ResultCode != "" {
				s.ErrorCode = t.ResultCode
				s.ErrorMessage = t.ResultMsg
			}
		}
	case "CANCELLED", "EXPIRED":
		s.Outcome = OutcomeAbandoned
		s.ErrorCode = strings.ToLower(body.Status)
	default:
		s.Outcome = OutcomePending
	}
	return s, nil
}

// Capture is not offered; Payzone charges immediately
func (g *PayzoneGateway) Capture(ctx context.Context, providerPaymentID string) (*Settlement, error) {
	return nil, ErrNotSupported
}

// PayzonePayloadSignature is hex(SHA-256(secretKey + payload))
func PayzonePayloadSignature(secretKey, payload string) string {
	sum := sha256.Sum256([]byte(secretKey + payload))
	return hex.EncodeToString(sum[:])
}

// PayzoneCallbackSignature is hex(HMAC-SHA256(notificationKey, body))
func PayzoneCallbackSignature(notificationKey string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(notificationKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
