package crypto

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/kenneth/c2c-secure-channel/internal/config"
)

// KeyMaterial holds the three plaintext secrets a security context needs:
// the TE secret (V1 tag only), the AES-128 encryption key, and the HMAC key
// (V2 tag only, empty for V1). It must never be logged or persisted.
type KeyMaterial struct {
	TESecret      []byte
	EncryptionKey []byte
	HMACKey       []byte
}

// Zero overwrites every field of m with zero bytes.
func (m *KeyMaterial) Zero() {
	if m == nil {
		return
	}
	zero(m.TESecret)
	zero(m.EncryptionKey)
	zero(m.HMACKey)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// KeyProvisioner resolves a ProvisioningRecord's wrapped key envelopes into
// plaintext KeyMaterial via an underlying KeyManager, never generating or
// deriving key material itself — the spec's "keys are provisioned
// externally" Non-goal given a concrete shape (SPEC_FULL §2.2, §3.1).
type KeyProvisioner struct {
	manager KeyManager
}

// NewKeyProvisioner wraps a KeyManager (e.g. a CosmianKMIPManager) as a
// KeyProvisioner.
func NewKeyProvisioner(manager KeyManager) *KeyProvisioner {
	return &KeyProvisioner{manager: manager}
}

// Provision unwraps every key envelope named by rec and returns the
// resulting KeyMaterial. For a V1 record, HMACKey is left nil.
func (p *KeyProvisioner) Provision(ctx context.Context, rec config.ProvisioningRecord) (*KeyMaterial, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	teSecret, err := p.unwrap(ctx, rec.TESecret, "te_secret")
	if err != nil {
		return nil, err
	}
	encKey, err := p.unwrap(ctx, rec.EncryptionKey, "encryption_key")
	if err != nil {
		return nil, err
	}

	var hmacKey []byte
	if rec.Scheme == config.SchemeV2 {
		hmacKey, err = p.unwrap(ctx, rec.HMACKey, "hmac_key")
		if err != nil {
			return nil, err
		}
	}

	return &KeyMaterial{
		TESecret:      teSecret,
		EncryptionKey: encKey,
		HMACKey:       hmacKey,
	}, nil
}

func (p *KeyProvisioner) unwrap(ctx context.Context, ref config.KeyEnvelopeRef, label string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ref.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: provision %s: decode envelope ciphertext: %w", label, err)
	}
	envelope := &KeyEnvelope{
		KeyID:      ref.KeyID,
		KeyVersion: ref.KeyVersion,
		Provider:   p.manager.Provider(),
		Ciphertext: ciphertext,
	}
	plaintext, err := p.manager.UnwrapKey(ctx, envelope, map[string]string{"purpose": label})
	if err != nil {
		return nil, fmt.Errorf("crypto: provision %s: %w", label, err)
	}
	if len(plaintext) != KeySize {
		return nil, fmt.Errorf("crypto: provision %s: unwrapped key must be %d bytes, got %d", label, KeySize, len(plaintext))
	}
	return plaintext, nil
}

// HealthCheck delegates to the underlying KeyManager.
func (p *KeyProvisioner) HealthCheck(ctx context.Context) error {
	return p.manager.HealthCheck(ctx)
}

// Close delegates to the underlying KeyManager.
func (p *KeyProvisioner) Close(ctx context.Context) error {
	return p.manager.Close(ctx)
}
