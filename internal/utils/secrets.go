package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret returns n random bytes hex encoded
func GenerateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Secrets is the set of values the server expects in its environment
type Secrets struct {
	JWTAccessSecret string
	// CMIStoreKey and PayzoneNotificationKey are only useful in sandbox;
	// live values come from the provider back office
	CMIStoreKey            string
	PayzoneNotificationKey string
}

// GenerateSecrets generates 256-bit values for every secret
func GenerateSecrets() (*Secrets, error) {
	var s Secrets
	for name, dst := range map[string]*string{
		"JWT access":           &s.JWTAccessSecret,
		"CMI store key":        &s.CMIStoreKey,
		"Payzone notification": &s.PayzoneNotificationKey,
	} {
		v, err := GenerateSecret(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s secret: %w", name, err)
		}
		*dst = v
	}
	return &s, nil
}
