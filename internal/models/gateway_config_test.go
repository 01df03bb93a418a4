package models

import (
	"encoding/json"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) EnvLookup {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestParseSecretRef(t *testing.T) {
	lookup := lookupFrom(map[string]string{"STRIPE_SECRET_KEY": "sk_test_123"})

	literal := ParseSecretRef("sk_live_abc")
	assert.False(t, literal.IsEnv())
	v, ok := literal.Resolve(lookup)
	assert.True(t, ok)
	assert.Equal(t, "sk_live_abc", v)

	ref := ParseSecretRef("env:STRIPE_SECRET_KEY")
	assert.True(t, ref.IsEnv())
	assert.Equal(t, "STRIPE_SECRET_KEY", ref.EnvName())
	v, ok = ref.Resolve(lookup)
	assert.True(t, ok)
	assert.Equal(t, "sk_test_123", v)

	missing := ParseSecretRef("env:NOPE")
	_, ok = missing.Resolve(lookup)
	assert.False(t, ok)

	empty := ParseSecretRef("   ")
	assert.False(t, empty.IsSet())
}

func TestSecretRef_UnmarshalJSON(t *testing.T) {
	var creds PayPalCredentials
	err := json.Unmarshal([]byte(`{"clientId":"env:PAYPAL_ID","clientSecret":{"value":"shh"}}`), &creds)
	require.NoError(t, err)

	assert.Equal(t, "PAYPAL_ID", creds.ClientID.EnvName())
	v, ok := creds.ClientSecret.Resolve(nil)
	assert.True(t, ok)
	assert.Equal(t, "shh", v)

	var obj SecretRef
	require.NoError(t, json.Unmarshal([]byte(`{"env":"CMI_STORE_KEY"}`), &obj))
	assert.Equal(t, "env:CMI_STORE_KEY", obj.String())

	var bad SecretRef
	assert.Error(t, json.Unmarshal([]byte(`{"env":"A","value":"b"}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestSecretRef_StringRedactsLiterals(t *testing.T) {
	assert.NotContains(t, LiteralSecret("sk_live_secret").String(), "sk_live_secret")
}

func TestPaymentGatewayConfig_Decode(t *testing.T) {
	cfg := &PaymentGatewayConfig{
		Provider: ProviderStripe,
		Config:   types.JSONText(`{"secretKey":"env:STRIPE_SECRET_KEY","webhookSecret":"whsec_1"}`),
	}

	var creds StripeCredentials
	require.NoError(t, cfg.Decode(&creds))
	assert.True(t, creds.SecretKey.IsEnv())
	assert.True(t, creds.WebhookSecret.IsSet())

	broken := &PaymentGatewayConfig{Provider: ProviderCMI, Config: types.JSONText(`{"clientId":`)}
	assert.Error(t, broken.Decode(&CMICredentials{}))
}
