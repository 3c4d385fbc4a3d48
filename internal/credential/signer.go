package credential

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gatepass/internal/status"
)

// Signer signs and verifies credential payload bytes. Key material comes from
// the deployment environment; a Signer never generates or persists keys.
type Signer interface {
	// Sign returns the signature over payload. ErrKeyUnavailable when the
	// instance holds verification material only.
	Sign(payload []byte) ([]byte, error)

	// Verify reports whether sig is a valid signature over payload. It must
	// be constant-time with respect to secret material.
	Verify(payload, sig []byte) bool
}

// Ed25519Signer is the preferred mode: the issuance path holds the private
// key, gate devices are configured with the public key only.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer builds a signer from hex-encoded key material. seedHex may
// be empty for verify-only deployments; publicHex may be empty when the seed
// is present (the public key is derived from it).
func NewEd25519Signer(seedHex, publicHex string) (*Ed25519Signer, error) {
	s := &Ed25519Signer{}

	if seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("decode signing seed: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
		}
		s.priv = ed25519.NewKeyFromSeed(seed)
		s.pub = s.priv.Public().(ed25519.PublicKey)
	}

	if publicHex != "" {
		pub, err := hex.DecodeString(publicHex)
		if err != nil {
			return nil, fmt.Errorf("decode public key: %w", err)
		}
		if len(pub) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
		}
		s.pub = ed25519.PublicKey(pub)
	}

	if s.pub == nil {
		return nil, status.ErrKeyUnavailable
	}
	return s, nil
}

func (s *Ed25519Signer) Sign(payload []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, status.ErrKeyUnavailable
	}
	return ed25519.Sign(s.priv, payload), nil
}

func (s *Ed25519Signer) Verify(payload, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.pub, payload, sig)
}

// HMACSigner is the shared-secret fallback for single-process deployments
// where issuer and verifier are the same service.
type HMACSigner struct {
	key []byte
}

func NewHMACSigner(secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, status.ErrKeyUnavailable
	}
	return &HMACSigner{key: []byte(secret)}, nil
}

func (s *HMACSigner) Sign(payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil), nil
}

func (s *HMACSigner) Verify(payload, sig []byte) bool {
	want, _ := s.Sign(payload)
	return hmac.Equal(sig, want)
}
