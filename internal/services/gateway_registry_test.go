package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/experiencehub/booking-engine/internal/config"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/pkg/gateway"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGatewayConfigs map[models.PaymentProvider]*models.PaymentGatewayConfig

func (f fakeGatewayConfigs) GetEnabled(ctx context.Context, provider models.PaymentProvider) (*models.PaymentGatewayConfig, error) {
	return f[provider], nil
}

func mapLookup(vars map[string]string) models.EnvLookup {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func stripeEnv() map[string]config.ProviderEnv {
	return map[string]config.ProviderEnv{
		"STRIPE": {TestMode: true, Vars: map[string]string{"secretKey": "STRIPE_SECRET_KEY", "webhookSecret": "STRIPE_WEBHOOK_SECRET"}},
		"PAYPAL": {TestMode: true, Vars: map[string]string{"clientId": "PAYPAL_CLIENT_ID", "clientSecret": "PAYPAL_CLIENT_SECRET"}},
	}
}

func TestGatewayRegistry_DatabaseRowWithLiteralSecrets(t *testing.T) {
	configs := fakeGatewayConfigs{
		models.ProviderStripe: {
			Provider:  models.ProviderStripe,
			Config:    types.JSONText(`{"secretKey":"sk_test_123","webhookSecret":"whsec_1"}`),
			TestMode:  true,
			IsEnabled: true,
		},
	}
	registry := NewGatewayRegistry(configs, nil, mapLookup(nil), testLogger())

	gw, err := registry.Resolve(context.Background(), models.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, gateway.ProviderStripe, gw.Provider())
}

func TestGatewayRegistry_DatabaseRowWithEnvReference(t *testing.T) {
	configs := fakeGatewayConfigs{
		models.ProviderPayPal: {
			Provider: models.ProviderPayPal,
			Config:   types.JSONText(`{"clientId":"env:PP_ID","clientSecret":{"env":"PP_SECRET"}}`),
			TestMode: true,
		},
	}

	registry := NewGatewayRegistry(configs, nil, mapLookup(map[string]string{"PP_ID": "client"}), testLogger())
	_, err := registry.Resolve(context.Background(), models.ProviderPayPal)
	var cfgErr *models.ProviderConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "clientSecret", cfgErr.Field)
	assert.Contains(t, cfgErr.Message, "PP_SECRET")

	registry = NewGatewayRegistry(configs, nil, mapLookup(map[string]string{"PP_ID": "client", "PP_SECRET": "secret"}), testLogger())
	gw, err := registry.Resolve(context.Background(), models.ProviderPayPal)
	require.NoError(t, err)
	assert.Equal(t, gateway.ProviderPayPal, gw.Provider())
}

func TestGatewayRegistry_EnvironmentFallback(t *testing.T) {
	lookup := mapLookup(map[string]string{"STRIPE_SECRET_KEY": "sk_test_abc"})
	registry := NewGatewayRegistry(fakeGatewayConfigs{}, stripeEnv(), lookup, testLogger())

	gw, err := registry.Resolve(context.Background(), models.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, gateway.ProviderStripe, gw.Provider())
}

func TestGatewayRegistry_MissingCredentialNamesField(t *testing.T) {
	registry := NewGatewayRegistry(fakeGatewayConfigs{}, stripeEnv(), mapLookup(nil), testLogger())

	_, err := registry.Resolve(context.Background(), models.ProviderStripe)
	var cfgErr *models.ProviderConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, models.ProviderStripe, cfgErr.Provider)
	assert.Equal(t, "secretKey", cfgErr.Field)
	assert.Contains(t, cfgErr.Message, "STRIPE_SECRET_KEY")
}

func TestGatewayRegistry_LiveKeyInTestMode(t *testing.T) {
	lookup := mapLookup(map[string]string{"STRIPE_SECRET_KEY": "sk_live_abc"})
	registry := NewGatewayRegistry(fakeGatewayConfigs{}, stripeEnv(), lookup, testLogger())

	_, err := registry.Resolve(context.Background(), models.ProviderStripe)
	var cfgErr *models.ProviderConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "secretKey", cfgErr.Field)
}

func TestGatewayRegistry_UnconfiguredProvider(t *testing.T) {
	registry := NewGatewayRegistry(fakeGatewayConfigs{}, stripeEnv(), mapLookup(nil), testLogger())

	_, err := registry.Resolve(context.Background(), models.ProviderCMI)
	var cfgErr *models.ProviderConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, models.ProviderCMI, cfgErr.Provider)
}

func TestGatewayRegistry_MalformedRow(t *testing.T) {
	configs := fakeGatewayConfigs{
		models.ProviderCMI: {Provider: models.ProviderCMI, Config: types.JSONText(`{"clientId": 42}`)},
	}
	registry := NewGatewayRegistry(configs, nil, mapLookup(nil), testLogger())

	_, err := registry.Resolve(context.Background(), models.ProviderCMI)
	var cfgErr *models.ProviderConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestGatewayRegistry_CashNeedsNoCredentials(t *testing.T) {
	env := map[string]config.ProviderEnv{"CASH": {}}
	registry := NewGatewayRegistry(fakeGatewayConfigs{}, env, mapLookup(nil), testLogger())

	gw, err := registry.Resolve(context.Background(), models.ProviderCash)
	require.NoError(t, err)

	_, err = gw.CreateRefund(context.Background(), gateway.RefundRequest{ProviderPaymentID: "cash_1", Amount: 10})
	assert.ErrorIs(t, err, gateway.ErrNotSupported)
}

func TestGatewayRegistry_UnknownProvider(t *testing.T) {
	env := map[string]config.ProviderEnv{"BITCOIN": {}}
	registry := NewGatewayRegistry(fakeGatewayConfigs{}, env, mapLookup(nil), testLogger())

	_, err := registry.Resolve(context.Background(), models.PaymentProvider("BITCOIN"))
	var vErr *models.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestTranslateGatewayError(t *testing.T) {
	err := translateGatewayError(models.ProviderPayzone, &gateway.CommunicationError{Provider: gateway.ProviderPayzone, StatusCode: 500, Err: errors.New("boom")})
	var commErr *models.ProviderCommunicationError
	require.True(t, errors.As(err, &commErr))
	assert.Equal(t, models.ProviderPayzone, commErr.Provider)
	assert.Equal(t, 500, commErr.StatusCode)

	assert.ErrorIs(t, translateGatewayError(models.ProviderCash, gateway.ErrNotSupported), gateway.ErrNotSupported)
	assert.Nil(t, translateGatewayError(models.ProviderCash, nil))
}

func TestGatewayRegistry_EndpointOverride(t *testing.T) {
	configs := fakeGatewayConfigs{
		models.ProviderCMI: {
			Provider: models.ProviderCMI,
			Config:   types.JSONText(`{"clientId":"600001","storeKey":"store-key"}`),
			TestMode: true,
		},
	}
	registry := NewGatewayRegistry(configs, nil, mapLookup(nil), testLogger()).
		WithEndpoints(GatewayEndpoints{CMIGatewayURL: "https://cmi.sandbox.test/fim/est3Dgate"})

	gw, err := registry.Resolve(context.Background(), models.ProviderCMI)
	require.NoError(t, err)

	checkout, err := gw.CreateCheckout(context.Background(), gateway.CheckoutRequest{
		BookingID:  "b-1",
		PaymentID:  "p-1",
		Amount:     150,
		Currency:   "MAD",
		SuccessURL: "https://api.test/return?ok=1",
		CancelURL:  "https://api.test/return?ok=0",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(checkout.RedirectURL, "https://cmi.sandbox.test/fim/est3Dgate?"))
}
