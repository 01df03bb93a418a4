package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/experiencehub/booking-engine/internal/config"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/pkg/gateway"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
)

// GatewayResolver builds the gateway adapter of a provider
type GatewayResolver interface {
	Resolve(ctx context.Context, provider models.PaymentProvider) (gateway.Gateway, error)
}

// GatewayEndpoints overrides provider endpoints, used against sandboxes and in tests
type GatewayEndpoints struct {
	StripeBackends    *stripe.Backends
	PayPalBaseURL     string
	CMIGatewayURL     string
	PayzonePaywallURL string
}

// GatewayRegistry resolves provider credentials from the enabled
// payment_gateway_configs row, falling back to environment variables.
// A gateway is built on every call so configuration changes apply without restart.
type GatewayRegistry struct {
	configs   GatewayConfigStore
	env       map[string]config.ProviderEnv
	lookup    models.EnvLookup
	endpoints GatewayEndpoints
	logger    *logrus.Logger
}

// NewGatewayRegistry creates a registry. lookup defaults to os.LookupEnv.
func NewGatewayRegistry(configs GatewayConfigStore, env map[string]config.ProviderEnv, lookup models.EnvLookup, logger *logrus.Logger) *GatewayRegistry {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &GatewayRegistry{configs: configs, env: env, lookup: lookup, logger: logger}
}

// WithEndpoints sets endpoint overrides
func (r *GatewayRegistry) WithEndpoints(e GatewayEndpoints) *GatewayRegistry {
	r.endpoints = e
	return r
}

// providerSettings is the source-independent view of one provider's configuration
type providerSettings struct {
	testMode bool
	source   string
	row      *models.PaymentGatewayConfig
}

// Resolve returns a ready gateway for the provider
func (r *GatewayRegistry) Resolve(ctx context.Context, provider models.PaymentProvider) (gateway.Gateway, error) {
	settings, err := r.settings(ctx, provider)
	if err != nil {
		return nil, err
	}

	gw, err := r.build(provider, settings)
	if err != nil {
		var cfgErr *models.ProviderConfigurationError
		if errors.As(err, &cfgErr) {
			r.logger.WithFields(logrus.Fields{
				"provider": provider,
				"field":    cfgErr.Field,
				"source":   settings.source,
			}).Error("Payment provider is not configured")
		}
		return nil, err
	}
	return gw, nil
}

func (r *GatewayRegistry) settings(ctx context.Context, provider models.PaymentProvider) (*providerSettings, error) {
	row, err := r.configs.GetEnabled(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load gateway config: %w", err)
	}
	if row != nil {
		return &providerSettings{testMode: row.TestMode, source: "database", row: row}, nil
	}

	envCfg, ok := r.env[string(provider)]
	if !ok {
		return nil, &models.ProviderConfigurationError{Provider: provider, Message: "no enabled configuration"}
	}
	return &providerSettings{testMode: envCfg.TestMode, source: "environment"}, nil
}

// decode fills creds from the stored row, or from the default env variables
func (r *GatewayRegistry) decode(provider models.PaymentProvider, s *providerSettings, creds interface{}, fields map[string]*models.SecretRef) error {
	if s.row != nil {
		if err := s.row.Decode(creds); err != nil {
			return &models.ProviderConfigurationError{Provider: provider, Message: err.Error()}
		}
		return nil
	}
	vars := r.env[string(provider)].Vars
	for field, ref := range fields {
		if name, ok := vars[field]; ok {
			*ref = models.EnvSecret(name)
		}
	}
	return nil
}

// secret resolves a required credential
func (r *GatewayRegistry) secret(provider models.PaymentProvider, field string, ref models.SecretRef) (string, error) {
	value, ok := ref.Resolve(r.lookup)
	if !ok {
		msg := "value is empty"
		if ref.IsEnv() {
			msg = fmt.Sprintf("environment variable %s is not set", ref.EnvName())
		}
		return "", &models.ProviderConfigurationError{Provider: provider, Field: field, Message: msg}
	}
	return value, nil
}

// optionalSecret resolves a credential only some callbacks need
func (r *GatewayRegistry) optionalSecret(ref models.SecretRef) string {
	value, _ := ref.Resolve(r.lookup)
	return value
}

func (r *GatewayRegistry) build(provider models.PaymentProvider, s *providerSettings) (gateway.Gateway, error) {
	var gw gateway.Gateway
	var err error

	switch provider {
	case models.ProviderStripe:
		var c models.StripeCredentials
		if err = r.decode(provider, s, &c, map[string]*models.SecretRef{"secretKey": &c.SecretKey, "webhookSecret": &c.WebhookSecret}); err != nil {
			break
		}
		var key string
		if key, err = r.secret(provider, "secretKey", c.SecretKey); err != nil {
			break
		}
		gw, err = gateway.NewStripeGateway(gateway.StripeConfig{
			SecretKey:     key,
			WebhookSecret: r.optionalSecret(c.WebhookSecret),
			TestMode:      s.testMode,
			Backends:      r.endpoints.StripeBackends,
		})

	case models.ProviderPayPal:
		var c models.PayPalCredentials
		if err = r.decode(provider, s, &c, map[string]*models.SecretRef{"clientId": &c.ClientID, "clientSecret": &c.ClientSecret}); err != nil {
			break
		}
		var id, secret string
		if id, err = r.secret(provider, "clientId", c.ClientID); err != nil {
			break
		}
		if secret, err = r.secret(provider, "clientSecret", c.ClientSecret); err != nil {
			break
		}
		gw, err = gateway.NewPayPalGateway(gateway.PayPalConfig{
			ClientID:     id,
			ClientSecret: secret,
			TestMode:     s.testMode,
			BaseURL:      r.endpoints.PayPalBaseURL,
		})

	case models.ProviderCMI:
		var c models.CMICredentials
		if err = r.decode(provider, s, &c, map[string]*models.SecretRef{"clientId": &c.ClientID, "storeKey": &c.StoreKey}); err != nil {
			break
		}
		var id, storeKey string
		if id, err = r.secret(provider, "clientId", c.ClientID); err != nil {
			break
		}
		if storeKey, err = r.secret(provider, "storeKey", c.StoreKey); err != nil {
			break
		}
		gw, err = gateway.NewCMIGateway(gateway.CMIConfig{
			ClientID:   id,
			StoreKey:   storeKey,
			TestMode:   s.testMode,
			GatewayURL: r.endpoints.CMIGatewayURL,
		})

	case models.ProviderPayzone:
		var c models.PayzoneCredentials
		if err = r.decode(provider, s, &c, map[string]*models.SecretRef{
			"merchantAccount": &c.MerchantAccount,
			"secretKey":       &c.SecretKey,
			"notificationKey": &c.NotificationKey,
		}); err != nil {
			break
		}
		var merchant, secretKey, notificationKey string
		if merchant, err = r.secret(provider, "merchantAccount", c.MerchantAccount); err != nil {
			break
		}
		if secretKey, err = r.secret(provider, "secretKey", c.SecretKey); err != nil {
			break
		}
		if notificationKey, err = r.secret(provider, "notificationKey", c.NotificationKey); err != nil {
			break
		}
		gw, err = gateway.NewPayzoneGateway(gateway.PayzoneConfig{
			MerchantAccount: merchant,
			SecretKey:       secretKey,
			NotificationKey: notificationKey,
			TestMode:        s.testMode,
			PaywallURL:      r.endpoints.PayzonePaywallURL,
		})

	case models.ProviderCash:
		gw = gateway.NewCashGateway()

	default:
		return nil, models.NewValidationError("provider", fmt.Sprintf("unknown payment provider %q", provider))
	}

	if err != nil {
		var cfgErr *models.ProviderConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, translateGatewayError(provider, err)
	}
	return gw, nil
}

// translateGatewayError maps adapter errors onto the domain taxonomy.
// ErrNotSupported and ErrInvalidSignature pass through unchanged.
func translateGatewayError(provider models.PaymentProvider, err error) error {
	if err == nil {
		return nil
	}

	var cfgErr *gateway.ConfigError
	if errors.As(err, &cfgErr) {
		return &models.ProviderConfigurationError{Provider: provider, Field: cfgErr.Field, Message: cfgErr.Message}
	}

	var commErr *gateway.CommunicationError
	if errors.As(err, &commErr) {
		return &models.ProviderCommunicationError{Provider: provider, StatusCode: commErr.StatusCode, Err: commErr.Err}
	}

	return err
}
