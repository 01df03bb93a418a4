package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// EnvLookup resolves an environment variable; os.LookupEnv in production
type EnvLookup func(name string) (string, bool)

type secretKind int

const (
	secretUnset secretKind = iota
	secretLiteral
	secretEnv
)

const envPrefix = "env:"

// SecretRef is a credential value stored in gateway configuration. It is either
// a literal secret or a reference to an environment variable.
type SecretRef struct {
	kind  secretKind
	value string
}

// LiteralSecret wraps a plaintext secret
func LiteralSecret(value string) SecretRef {
	return SecretRef{kind: secretLiteral, value: value}
}

// EnvSecret references an environment variable by name
func EnvSecret(name string) SecretRef {
	return SecretRef{kind: secretEnv, value: name}
}

// ParseSecretRef interprets the stored string form, where "env:NAME" is an
// environment reference and anything else is a literal
func ParseSecretRef(raw string) SecretRef {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SecretRef{}
	}
	if strings.HasPrefix(raw, envPrefix) {
		return EnvSecret(strings.TrimSpace(strings.TrimPrefix(raw, envPrefix)))
	}
	return LiteralSecret(raw)
}

// IsSet reports whether the reference carries any value
func (s SecretRef) IsSet() bool {
	return s.kind != secretUnset && s.value != ""
}

// IsEnv reports whether the reference points at an environment variable
func (s SecretRef) IsEnv() bool {
	return s.kind == secretEnv
}

// EnvName returns the referenced variable name, or "" for literals
func (s SecretRef) EnvName() string {
	if s.kind == secretEnv {
		return s.value
	}
	return ""
}

// Resolve returns the secret value. Env references are looked up at call time.
func (s SecretRef) Resolve(lookup EnvLookup) (string, bool) {
	switch s.kind {
	case secretLiteral:
		return s.value, s.value != ""
	case secretEnv:
		if lookup == nil || s.value == "" {
			return "", false
		}
		v, ok := lookup(s.value)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	return "", false
}

// String never prints literal secret material
func (s SecretRef) String() string {
	switch s.kind {
	case secretLiteral:
		return "literal(****)"
	case secretEnv:
		return envPrefix + s.value
	}
	return "unset"
}

// UnmarshalJSON accepts "value", "env:NAME", {"env":"NAME"} or {"value":"..."}
func (s *SecretRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = SecretRef{}
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*s = ParseSecretRef(raw)
		return nil
	}
	var obj struct {
		Env   *string `json:"env"`
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("secret must be a string or an object: %w", err)
	}
	switch {
	case obj.Env != nil && obj.Value != nil:
		return fmt.Errorf("secret cannot set both env and value")
	case obj.Env != nil:
		*s = EnvSecret(strings.TrimSpace(*obj.Env))
	case obj.Value != nil:
		*s = LiteralSecret(*obj.Value)
	default:
		*s = SecretRef{}
	}
	return nil
}

// StripeCredentials configures the card provider
type StripeCredentials struct {
	SecretKey     SecretRef `json:"secretKey"`
	WebhookSecret SecretRef `json:"webhookSecret"`
}

// PayPalCredentials configures the wallet provider
type PayPalCredentials struct {
	ClientID     SecretRef `json:"clientId"`
	ClientSecret SecretRef `json:"clientSecret"`
}

// CMICredentials configures the CMI bank gateway
type CMICredentials struct {
	ClientID SecretRef `json:"clientId"`
	StoreKey SecretRef `json:"storeKey"`
}

// PayzoneCredentials configures the Payzone bank gateway
type PayzoneCredentials struct {
	MerchantAccount SecretRef `json:"merchantAccount"`
	SecretKey       SecretRef `json:"secretKey"`
	NotificationKey SecretRef `json:"notificationKey"`
}

// PaymentGatewayConfig is the persisted per-provider configuration
type PaymentGatewayConfig struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Provider  PaymentProvider `json:"provider" db:"provider"`
	Name      string          `json:"name" db:"name"`
	Type      string          `json:"type" db:"type"`
	Config    types.JSONText  `json:"-" db:"config"`
	TestMode  bool            `json:"testMode" db:"test_mode"`
	IsEnabled bool            `json:"isEnabled" db:"is_enabled"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// Decode unmarshals the opaque config blob into a typed credential struct
func (c *PaymentGatewayConfig) Decode(into interface{}) error {
	if len(c.Config) == 0 {
		return nil
	}
	if err := c.Config.Unmarshal(into); err != nil {
		return fmt.Errorf("invalid %s gateway config: %w", c.Provider, err)
	}
	return nil
}
