package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	cmiTestURL = "https://testpayment.cmi.co.ma/fim/est3Dgate"
	cmiLiveURL = "https://payment.cmi.co.ma/fim/est3Dgate"
)

// ISO 4217 numeric codes accepted by CMI
var cmiCurrencyCodes = map[string]string{
	"MAD": "504",
	"EUR": "978",
	"USD": "840",
}

// CMIConfig holds resolved merchant credentials
type CMIConfig struct {
	ClientID string
	StoreKey string
	TestMode bool
	// GatewayURL overrides the test/live host, used in tests
	GatewayURL string
}

// CMIGateway implements Gateway with the CMI 3D Pay Hosting form
type CMIGateway struct {
	clientID   string
	storeKey   string
	gatewayURL string
}

// NewCMIGateway creates a CMI adapter
func NewCMIGateway(cfg CMIConfig) (*CMIGateway, error) {
	if err := requireField(ProviderCMI, "clientId", cfg.ClientID); err != nil {
		return nil, err
	}
	if err := requireField(ProviderCMI, "storeKey", cfg.StoreKey); err != nil {
		return nil, err
	}

	gatewayURL := cfg.GatewayURL
	if gatewayURL == "" {
		gatewayURL = cmiLiveURL
		if cfg.TestMode {
			gatewayURL = cmiTestURL
		}
	}
	return &CMIGateway{clientID: cfg.ClientID, storeKey: cfg.StoreKey, gatewayURL: gatewayURL}, nil
}

// Provider returns the provider name
func (g *CMIGateway) Provider() string {
	return ProviderCMI
}

// CreateCheckout signs the payment form and returns it as a redirect URL.
// The payment id travels as the order id.
func (g *CMIGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	currency, ok := cmiCurrencyCodes[strings.ToUpper(req.Currency)]
	if !ok {
		return nil, &ConfigError{Provider: ProviderCMI, Field: "currency", Message: fmt.Sprintf("unsupported currency %s", req.Currency)}
	}

	fields := url.Values{}
	fields.Set("clientid", g.clientID)
	fields.Set("oid", req.PaymentID)
	fields.Set("amount", formatAmount(req.Amount))
	fields.Set("currency", currency)
	fields.Set("okUrl", req.SuccessURL)
	fields.Set("failUrl", req.CancelURL)
	fields.Set("callbackUrl", req.CallbackURL)
	fields.Set("shopurl", req.CancelURL)
	fields.Set("TranType", "PreAuth")
	fields.Set("storetype", "3D_PAY_HOSTING")
	fields.Set("hashAlgorithm", "ver3")
	fields.Set("CallbackResponse", "true")
	fields.Set("AutoRedirect", "true")
	fields.Set("lang", "fr")
	fields.Set("rnd", uuid.NewString())
	fields.Set("encoding", "UTF-8")
	if req.CustomerEmail != "" {
		fields.Set("email", req.CustomerEmail)
	}
	fields.Set("HASH", CMIHash(fields, g.storeKey))

	return &Checkout{
		ProviderPaymentID: req.PaymentID,
		RedirectURL:       g.gatewayURL + "?" + fields.Encode(),
	}, nil
}

// CreateRefund is not offered by the hosted integration
func (g *CMIGateway) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	return nil, ErrNotSupported
}

// ParseCallback verifies the HASH of the posted fields
func (g *CMIGateway) ParseCallback(ctx context.Context, cb Callback) (*Settlement, error) {
	fields, err := url.ParseQuery(string(cb.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cmi callback: %w", err)
	}

	if fields.Get("HASH") == "" {
		if cb.Kind == CallbackWebhook {
			return nil, fmt.Errorf("%w: missing HASH", ErrInvalidSignature)
		}
		// browser came back without a signed form
		if cb.Query.Get("cancelled") != "" {
			return &Settlement{Outcome: OutcomeAbandoned, ErrorCode: "cancelled"}, nil
		}
		return &Settlement{Outcome: OutcomePending}, nil
	}

	expected := CMIHash(fields, g.storeKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(fields.Get("HASH"))) != 1 {
		return nil, ErrInvalidSignature
	}

	s := &Settlement{
		ProviderPaymentID: fields.Get("oid"),
		PaymentID:         fields.Get("oid"),
	}

	if fields.Get("ProcReturnCode") == "00" && strings.EqualFold(fields.Get("Response"), "Approved") {
		s.Outcome = OutcomeSucceeded
		s.Ack = "ACTION=POSTAUTH"
	} else {
		s.Outcome = OutcomeFailed
		s.ErrorCode = fields.Get("ProcReturnCode")
		s.ErrorMessage = fields.Get("ErrMsg")
		s.Ack = "FAILURE"
	}
	return s, nil
}

// Capture is requested by the POSTAUTH acknowledgement, not by an API call
func (g *CMIGateway) Capture(ctx context.Context, providerPaymentID string) (*Settlement, error) {
	return nil, ErrNotSupported
}

// CMIHash computes the ver3 hash: every field except HASH and encoding, sorted
// by name case-insensitively, values escaped and joined with "|", followed by
// the store key, then SHA-512 and base64
func CMIHash(fields url.Values, storeKey string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		lower := strings.ToLower(name)
		if lower == "hash" || lower == "encoding" {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	var b strings.Builder
	for _, name := range names {
		b.WriteString(escapeCMIValue(strings.TrimSpace(fields.Get(name))))
		b.WriteString("|")
	}
	b.WriteString(escapeCMIValue(storeKey))

	sum := sha512.Sum512([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func escapeCMIValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, "|", `\|`)
}
