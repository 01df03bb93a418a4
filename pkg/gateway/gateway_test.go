package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCheckoutRequest() CheckoutRequest {
	return CheckoutRequest{
		BookingID:     "3f1e2d4c-0000-4000-8000-000000000001",
		PaymentID:     "3f1e2d4c-0000-4000-8000-000000000002",
		Amount:        240,
		Currency:      "MAD",
		Description:   "Atlas sunrise hike x2",
		CustomerEmail: "explorer@example.com",
		SuccessURL:    "https://api.example.com/api/v1/payments/X/return?booking_id=b&payment_id=p",
		CancelURL:     "https://api.example.com/api/v1/payments/X/return?booking_id=b&payment_id=p&cancelled=1",
		CallbackURL:   "https://api.example.com/api/v1/payments/X/webhook",
	}
}

// ============================================================================
// CMI
// ============================================================================

func sha512Sum(plain string) string {
	sum := sha512.Sum512([]byte(plain))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func TestCMIHash(t *testing.T) {
	fields := url.Values{}
	fields.Set("clientid", "600000001")
	fields.Set("amount", "10.00")
	fields.Set("Oid", "a|b")
	fields.Set("encoding", "UTF-8")
	fields.Set("HASH", "ignored")

	// sorted case-insensitively: amount, clientid, Oid
	plain := `10.00|600000001|a\|b|store\\key`
	sum := sha512Sum(plain)

	assert.Equal(t, sum, CMIHash(fields, `store\key`))
}

func TestCMIGateway_CheckoutAndCallback(t *testing.T) {
	g, err := NewCMIGateway(CMIConfig{ClientID: "600000001", StoreKey: "TEST1234", TestMode: true})
	require.NoError(t, err)
	ctx := context.Background()
	req := testCheckoutRequest()

	checkout, err := g.CreateCheckout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, req.PaymentID, checkout.ProviderPaymentID)
	assert.True(t, strings.HasPrefix(checkout.RedirectURL, cmiTestURL+"?"))

	redirect, err := url.Parse(checkout.RedirectURL)
	require.NoError(t, err)
	sent := redirect.Query()
	assert.Equal(t, "504", sent.Get("currency"))
	assert.Equal(t, "240.00", sent.Get("amount"))
	assert.Equal(t, CMIHash(sent, "TEST1234"), sent.Get("HASH"))

	t.Run("Approved Callback", func(t *testing.T) {
		fields := url.Values{}
		fields.Set("oid", req.PaymentID)
		fields.Set("ProcReturnCode", "00")
		fields.Set("Response", "Approved")
		fields.Set("amount", "240.00")
		fields.Set("HASH", CMIHash(fields, "TEST1234"))

		s, err := g.ParseCallback(ctx, Callback{Kind: CallbackWebhook, Body: []byte(fields.Encode())})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSucceeded, s.Outcome)
		assert.Equal(t, req.PaymentID, s.PaymentID)
		assert.Equal(t, "ACTION=POSTAUTH", s.Ack)
	})

	t.Run("Declined Callback", func(t *testing.T) {
		fields := url.Values{}
		fields.Set("oid", req.PaymentID)
		fields.Set("ProcReturnCode", "05")
		fields.Set("Response", "Declined")
		fields.Set("ErrMsg", "Do not honour")
		fields.Set("HASH", CMIHash(fields, "TEST1234"))

		s, err := g.ParseCallback(ctx, Callback{Kind: CallbackWebhook, Body: []byte(fields.Encode())})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, s.Outcome)
		assert.Equal(t, "05", s.ErrorCode)
		assert.Equal(t, "FAILURE", s.Ack)
	})

	t.Run("Tampered Callback", func(t *testing.T) {
		fields := url.Values{}
		fields.Set("oid", req.PaymentID)
		fields.Set("ProcReturnCode", "05")
		fields.Set("HASH", CMIHash(fields, "TEST1234"))
		fields.Set("ProcReturnCode", "00")

		_, err := g.ParseCallback(ctx, Callback{Kind: CallbackWebhook, Body: []byte(fields.Encode())})
		assert.True(t, errors.Is(err, ErrInvalidSignature))
	})

	t.Run("Refund Not Supported", func(t *testing.T) {
		_, err := g.CreateRefund(ctx, RefundRequest{ProviderPaymentID: req.PaymentID, Amount: 10})
		assert.True(t, errors.Is(err, ErrNotSupported))
	})
}

func TestNewCMIGateway_MissingStoreKey(t *testing.T) {
	_, err := NewCMIGateway(CMIConfig{ClientID: "600000001"})
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "storeKey", cfgErr.Field)
}

// ============================================================================
// PAYZONE
// ============================================================================

func TestPayzoneGateway(t *testing.T) {
	g, err := NewPayzoneGateway(PayzoneConfig{
		MerchantAccount: "merchant-1",
		SecretKey:       "secret",
		NotificationKey: "notify",
		TestMode:        true,
	})
	require.NoError(t, err)
	g.now = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()
	req := testCheckoutRequest()

	t.Run("Checkout Is Signed", func(t *testing.T) {
		checkout, err := g.CreateCheckout(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, req.PaymentID, checkout.ProviderPaymentID)

		redirect, err := url.Parse(checkout.RedirectURL)
		require.NoError(t, err)
		assert.Equal(t, "payment-sandbox.payzone.ma", redirect.Host)

		payload := redirect.Query().Get("payload")
		assert.Equal(t, PayzonePayloadSignature("secret", payload), redirect.Query().Get("signature"))

		raw, err := base64.StdEncoding.DecodeString(payload)
		require.NoError(t, err)
		var decoded payzonePayload
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, req.PaymentID, decoded.OrderID)
		assert.Equal(t, "240.00", decoded.Price)
		assert.Equal(t, int64(1700000000), decoded.Timestamp)
	})

	t.Run("Charged Callback", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"id":"tx-1","orderId":"%s","status":"CHARGED"}`, req.PaymentID))
		header := http.Header{}
		header.Set(PayzoneSignatureHeader, PayzoneCallbackSignature("notify", body))

		s, err := g.ParseCallback(ctx, Callback{Kind: CallbackWebhook, Body: body, Header: header})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSucceeded, s.Outcome)
		assert.Equal(t, req.PaymentID, s.ProviderPaymentID)
		assert.NotEmpty(t, s.Ack)
	})

	t.Run("Declined Callback", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"orderId":"%s","status":"DECLINED","transactions":[{"resultCode":"51","resultMessage":"Insufficient funds"}]}`, req.PaymentID))
		header := http.Header{}
		header.Set(PayzoneSignatureHeader, strings.ToUpper(PayzoneCallbackSignature("notify", body)))

		s, err := g.ParseCallback(ctx, Callback{Kind: CallbackWebhook, Body: body, Header: header})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, s.Outcome)
		assert.Equal(t, "51", s.ErrorCode)
	})

	t.Run("Bad Signature", func(t *testing.T) {
		header := http.Header{}
		header.Set(PayzoneSignatureHeader, "deadbeef")
		_, err := g.ParseCallback(ctx, Callback{Kind: CallbackWebhook, Body: []byte(`{}`), Header: header})
		assert.True(t, errors.Is(err, ErrInvalidSignature))
	})

	t.Run("Browser Return Is Pending", func(t *testing.T) {
		s, err := g.ParseCallback(ctx, Callback{Kind: CallbackReturn, Query: url.Values{}})
		require.NoError(t, err)
		assert.Equal(t, OutcomePending, s.Outcome)
	})
}

// ============================================================================
// CASH
// ============================================================================

func TestCashGateway(t *testing.T) {
	g := NewCashGateway()
	ctx := context.Background()
	req := testCheckoutRequest()

	checkout, err := g.CreateCheckout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "cash_"+req.PaymentID, checkout.ProviderPaymentID)
	assert.Equal(t, req.SuccessURL, checkout.RedirectURL)
	assert.True(t, checkout.Offline)

	_, err = g.CreateRefund(ctx, RefundRequest{ProviderPaymentID: checkout.ProviderPaymentID})
	assert.ErrorIs(t, err, ErrNotSupported)

	_, err = g.Capture(ctx, checkout.ProviderPaymentID)
	assert.ErrorIs(t, err, ErrNotSupported)
}

// ============================================================================
// STRIPE
// ============================================================================

func TestNewStripeGateway_ModeMustMatchKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		testMode  bool
		expectErr bool
	}{
		{name: "test key in test mode", key: "sk_test_123", testMode: true},
		{name: "live key in live mode", key: "sk_live_123", testMode: false},
		{name: "live key in test mode", key: "sk_live_123", testMode: true, expectErr: true},
		{name: "test key in live mode", key: "sk_test_123", testMode: false, expectErr: true},
		{name: "missing key", key: "", testMode: true, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStripeGateway(StripeConfig{SecretKey: tt.key, TestMode: tt.testMode})
			if tt.expectErr {
				var cfgErr *ConfigError
				assert.True(t, errors.As(err, &cfgErr))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func stripeSignatureHeader(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeGateway_Webhook(t *testing.T) {
	g, err := NewStripeGateway(StripeConfig{SecretKey: "sk_test_123", WebhookSecret: "whsec_test", TestMode: true})
	require.NoError(t, err)
	ctx := context.Background()

	event := func(eventType, paymentStatus, status string) []byte {
		return []byte(fmt.Sprintf(`{
			"id": "evt_1",
			"object": "event",
			"type": %q,
			"data": {"object": {
				"id": "cs_test_1",
				"object": "checkout.session",
				"client_reference_id": "booking-1",
				"payment_status": %q,
				"status": %q,
				"metadata": {"booking_id": "booking-1", "payment_id": "payment-1"}
			}}
		}`, eventType, paymentStatus, status))
	}

	t.Run("Completed", func(t *testing.T) {
		body := event("checkout.session.completed", "paid", "complete")
		header := http.Header{}
		header.Set("Stripe-Signature", stripeSignatureHeader("whsec_test", body, time.Now()))

		s, err := g.ParseCallback(ctx, Callback{Kind: CallbackWebhook, Body: body, Header: header})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSucceeded, s.Outcome)
		assert.Equal(t, "cs_test_1", s.ProviderPaymentID)
		assert.Equal(t, "booking-1", s.BookingID)
		assert.Equal(t, "payment-1", s.PaymentID)
	})

	t.Run("Expired", func(t *testing.T) {
		body := event("checkout.session.expired", "unpaid", "expired")
		header := http.Header{}
		header.Set("Stripe-Signature", stripeSignatureHeader("whsec_test", body, time.Now()))

		s, err := g.ParseCallback(ctx, Callback{Kind: CallbackWebhook, Body: body, Header: header})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAbandoned, s.Outcome)
	})

	t.Run("Unrelated Event Ignored", func(t *testing.T) {
		body := event("customer.created", "unpaid", "open")
		header := http.Header{}
		header.Set("Stripe-Signature", stripeSignatureHeader("whsec_test", body, time.Now()))

		s, err := g.ParseCallback(ctx, Callback{Kind: CallbackWebhook, Body: body, Header: header})
		require.NoError(t, err)
		assert.True(t, s.Ignored)
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		body := event("checkout.session.completed", "paid", "complete")
		header := http.Header{}
		header.Set("Stripe-Signature", stripeSignatureHeader("whsec_other", body, time.Now()))

		_, err := g.ParseCallback(ctx, Callback{Kind: CallbackWebhook, Body: body, Header: header})
		assert.True(t, errors.Is(err, ErrInvalidSignature))
	})

	t.Run("Cancel Return", func(t *testing.T) {
		s, err := g.ParseCallback(ctx, Callback{Kind: CallbackReturn, Query: url.Values{"cancelled": {"1"}}})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAbandoned, s.Outcome)
	})
}

// ============================================================================
// PAYPAL
// ============================================================================

func newPayPalServer(t *testing.T, orderStatus *string) *httptest.Server {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	order := func() map[string]interface{} {
		return map[string]interface{}{
			"id":     "ORDER-1",
			"status": *orderStatus,
			"purchase_units": []map[string]interface{}{{
				"reference_id": "booking-1",
				"custom_id":    "booking-1:payment-1",
				"payments": map[string]interface{}{
					"captures": []map[string]string{{"id": "CAP-1", "status": "COMPLETED"}},
				},
			}},
		}
	}

	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body payPalCreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body.Intent)
		assert.Equal(t, "240.00", body.PurchaseUnits[0].Amount.Value)
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id":     "ORDER-1",
			"status": "CREATED",
			"links":  []map[string]string{{"rel": "approve", "href": "https://www.sandbox.paypal.com/checkoutnow?token=ORDER-1"}},
		})
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, order())
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		if *orderStatus == "COMPLETED" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"name":    "UNPROCESSABLE_ENTITY",
				"details": []map[string]string{{"issue": "ORDER_ALREADY_CAPTURED"}},
			})
			return
		}
		*orderStatus = "COMPLETED"
		writeJSON(w, http.StatusCreated, order())
	})
	mux.HandleFunc("/v2/payments/captures/CAP-1/refund", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"id": "REF-1", "status": "COMPLETED"})
	})

	return httptest.NewServer(mux)
}

func TestPayPalGateway(t *testing.T) {
	status := "APPROVED"
	server := newPayPalServer(t, &status)
	defer server.Close()

	g, err := NewPayPalGateway(PayPalConfig{ClientID: "client", ClientSecret: "secret", TestMode: true, BaseURL: server.URL})
	require.NoError(t, err)
	ctx := context.Background()

	checkout, err := g.CreateCheckout(ctx, testCheckoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", checkout.ProviderPaymentID)
	assert.Contains(t, checkout.RedirectURL, "token=ORDER-1")

	s, err := g.ParseCallback(ctx, Callback{Kind: CallbackReturn, Query: url.Values{"token": {"ORDER-1"}}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRequiresCapture, s.Outcome)
	assert.Equal(t, "booking-1", s.BookingID)
	assert.Equal(t, "payment-1", s.PaymentID)

	captured, err := g.Capture(ctx, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, captured.Outcome)

	again, err := g.Capture(ctx, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, again.Outcome)

	refund, err := g.CreateRefund(ctx, RefundRequest{ProviderPaymentID: "ORDER-1", Amount: 40, Currency: "MAD"})
	require.NoError(t, err)
	assert.Equal(t, "REF-1", refund.ProviderRefundID)
}

func TestPayPalGateway_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g, err := NewPayPalGateway(PayPalConfig{ClientID: "client", ClientSecret: "secret", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = g.CreateCheckout(context.Background(), testCheckoutRequest())
	var commErr *CommunicationError
	require.True(t, errors.As(err, &commErr))
	assert.Equal(t, http.StatusServiceUnavailable, commErr.StatusCode)
}
