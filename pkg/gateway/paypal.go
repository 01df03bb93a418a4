package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	payPalSandboxURL = "https://api-m.sandbox.paypal.com"
	payPalLiveURL    = "https://api-m.paypal.com"
)

// PayPalConfig holds resolved REST app credentials
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	TestMode     bool
	// BaseURL overrides the sandbox/live host, used in tests
	BaseURL string
}

// PayPalGateway implements Gateway with PayPal Orders v2 (intent CAPTURE).
// Approved orders must be captured explicitly.
type PayPalGateway struct {
	baseURL string
	client  *http.Client
}

// NewPayPalGateway builds a client whose token source refreshes automatically
func NewPayPalGateway(cfg PayPalConfig) (*PayPalGateway, error) {
	if err := requireField(ProviderPayPal, "clientId", cfg.ClientID); err != nil {
		return nil, err
	}
	if err := requireField(ProviderPayPal, "clientSecret", cfg.ClientSecret); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = payPalLiveURL
		if cfg.TestMode {
			baseURL = payPalSandboxURL
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 30 * time.Second})
	httpClient := oauthCfg.Client(tokenCtx)
	httpClient.Timeout = 30 * time.Second

	return &PayPalGateway{baseURL: baseURL, client: httpClient}, nil
}

// Provider returns the provider name
func (g *PayPalGateway) Provider() string {
	return ProviderPayPal
}

type payPalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type payPalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type payPalCapture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type payPalPurchaseUnit struct {
	ReferenceID string        `json:"reference_id,omitempty"`
	CustomID    string        `json:"custom_id,omitempty"`
	Description string        `json:"description,omitempty"`
	Amount      *payPalAmount `json:"amount,omitempty"`
	Payments    *struct {
		Captures []payPalCapture `json:"captures"`
	} `json:"payments,omitempty"`
}

type payPalOrder struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	PurchaseUnits []payPalPurchaseUnit `json:"purchase_units"`
	Links         []payPalLink         `json:"links"`
}

type payPalCreateOrderRequest struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []payPalPurchaseUnit `json:"purchase_units"`
	ApplicationContext struct {
		ReturnURL          string `json:"return_url"`
		CancelURL          string `json:"cancel_url"`
		UserAction         string `json:"user_action"`
		ShippingPreference string `json:"shipping_preference"`
	} `json:"application_context"`
}

type payPalWebhookEvent struct {
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// CreateCheckout creates an order and returns its approve link
func (g *PayPalGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	body := payPalCreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []payPalPurchaseUnit{
			{
				ReferenceID: req.BookingID,
				CustomID:    req.BookingID + ":" + req.PaymentID,
				Description: req.Description,
				Amount: &payPalAmount{
					CurrencyCode: strings.ToUpper(req.Currency),
					Value:        formatAmount(req.Amount),
				},
			},
		},
	}
	body.ApplicationContext.ReturnURL = req.SuccessURL
	body.ApplicationContext.CancelURL = req.CancelURL
	body.ApplicationContext.UserAction = "PAY_NOW"
	body.ApplicationContext.ShippingPreference = "NO_SHIPPING"

	var order payPalOrder
	if _, err := g.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &order); err != nil {
		return nil, err
	}

	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return &Checkout{ProviderPaymentID: order.ID, RedirectURL: link.Href}, nil
		}
	}
	return nil, &CommunicationError{Provider: ProviderPayPal, Err: fmt.Errorf("order %s has no approve link", order.ID)}
}

// CreateRefund refunds the first capture of the order
func (g *PayPalGateway) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	order, err := g.getOrder(ctx, req.ProviderPaymentID)
	if err != nil {
		return nil, err
	}
	captureID := firstCaptureID(order)
	if captureID == "" {
		return nil, fmt.Errorf("paypal order %s has no capture to refund", order.ID)
	}

	body := map[string]interface{}{}
	if req.Amount > 0 {
		body["amount"] = payPalAmount{CurrencyCode: strings.ToUpper(req.Currency), Value: formatAmount(req.Amount)}
	}
	if req.Reason != "" {
		body["note_to_payer"] = req.Reason
	}

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if _, err := g.do(ctx, http.MethodPost, "/v2/payments/captures/"+captureID+"/refund", body, &refund); err != nil {
		return nil, err
	}
	return &Refund{ProviderRefundID: refund.ID, Status: refund.Status}, nil
}

// ParseCallback re-reads the order from the API, so neither browser returns
// nor webhook bodies are trusted on their own
func (g *PayPalGateway) ParseCallback(ctx context.Context, cb Callback) (*Settlement, error) {
	var orderID string

	if cb.Kind == CallbackWebhook {
		var event payPalWebhookEvent
		if err := json.Unmarshal(cb.Body, &event); err != nil {
			return nil, fmt.Errorf("failed to decode paypal webhook: %w", err)
		}
		switch event.EventType {
		case "CHECKOUT.ORDER.APPROVED", "CHECKOUT.ORDER.COMPLETED":
			var resource struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(event.Resource, &resource)
			orderID = resource.ID
		case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED":
			var resource struct {
				SupplementaryData struct {
					RelatedIDs struct {
						OrderID string `json:"order_id"`
					} `json:"related_ids"`
				} `json:"supplementary_data"`
			}
			_ = json.Unmarshal(event.Resource, &resource)
			orderID = resource.SupplementaryData.RelatedIDs.OrderID
		default:
			return &Settlement{Ignored: true}, nil
		}
		if orderID == "" {
			return &Settlement{Ignored: true}, nil
		}
	} else {
		orderID = cb.Query.Get("token")
		if cb.Query.Get("cancelled") != "" {
			return &Settlement{ProviderPaymentID: orderID, Outcome: OutcomeAbandoned, ErrorCode: "cancelled"}, nil
		}
		if orderID == "" {
			return &Settlement{Outcome: OutcomePending}, nil
		}
	}

	order, err := g.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return settlementFromOrder(order), nil
}

// Capture captures an approved order. An order captured concurrently is re-read.
func (g *PayPalGateway) Capture(ctx context.Context, providerPaymentID string) (*Settlement, error) {
	var order payPalOrder
	status, err := g.do(ctx, http.MethodPost, "/v2/checkout/orders/"+providerPaymentID+"/capture", struct{}{}, &order)
	if err != nil {
		if status == http.StatusUnprocessableEntity && strings.Contains(err.Error(), "ORDER_ALREADY_CAPTURED") {
			existing, getErr := g.getOrder(ctx, providerPaymentID)
			if getErr != nil {
				return nil, getErr
			}
			return settlementFromOrder(existing), nil
		}
		return nil, err
	}
	return settlementFromOrder(&order), nil
}

func (g *PayPalGateway) getOrder(ctx context.Context, orderID string) (*payPalOrder, error) {
	var order payPalOrder
	if _, err := g.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// do sends a JSON request and decodes a 2xx response into out. It returns the
// HTTP status code alongside any error.
func (g *PayPalGateway) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal paypal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create paypal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, &CommunicationError{Provider: ProviderPayPal, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &CommunicationError{Provider: ProviderPayPal, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &CommunicationError{
			Provider:   ProviderPayPal,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(body))),
		}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode paypal response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func settlementFromOrder(order *payPalOrder) *Settlement {
	s := &Settlement{ProviderPaymentID: order.ID}
	if len(order.PurchaseUnits) > 0 {
		if parts := strings.SplitN(order.PurchaseUnits[0].CustomID, ":", 2); len(parts) == 2 {
			s.BookingID, s.PaymentID = parts[0], parts[1]
		} else {
			s.BookingID = order.PurchaseUnits[0].ReferenceID
		}
	}

	switch order.Status {
	case "COMPLETED":
		s.Outcome = OutcomeSucceeded
		for _, unit := range order.PurchaseUnits {
			if unit.Payments == nil {
				continue
			}
			for _, c := range unit.Payments.Captures {
				if c.Status == "DECLINED" || c.Status == "FAILED" {
					s.Outcome = OutcomeFailed
					s.ErrorCode = "capture_" + strings.ToLower(c.Status)
				}
			}
		}
	case "APPROVED":
		s.Outcome = OutcomeRequiresCapture
	case "VOIDED":
		s.Outcome = OutcomeAbandoned
		s.ErrorCode = "order_voided"
	default:
		s.Outcome = OutcomePending
	}
	return s
}

func firstCaptureID(order *payPalOrder) string {
	for _, unit := range order.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, c := range unit.Payments.Captures {
			if c.ID != "" {
				return c.ID
			}
		}
	}
	return ""
}
