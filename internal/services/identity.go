package services

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"gatepass/internal/status"
	"gatepass/models"
)

// IdentityVerifier checks that a submitted escrow secret belongs to the
// expected party on an agreement.
type IdentityVerifier interface {
	Verify(ctx context.Context, agreementID string, party models.Party, secret string) error
}

// AddressLookup resolves the registered on-chain address of a party on an
// agreement. The addresses live with the surrounding event records.
type AddressLookup func(ctx context.Context, agreementID string, party models.Party) (string, error)

// KeypairIdentity verifies Ed25519-keypair secrets. The secret format is
// "<hex public key>.<hex signature>" where the signature covers
// "<agreementID>|<party>". The public key's derived address must match the
// party's registered address.
type KeypairIdentity struct {
	Lookup AddressLookup
}

func NewKeypairIdentity(lookup AddressLookup) *KeypairIdentity {
	return &KeypairIdentity{Lookup: lookup}
}

func (v *KeypairIdentity) Verify(ctx context.Context, agreementID string, party models.Party, secret string) error {
	pubHex, sigHex, found := strings.Cut(secret, ".")
	if !found {
		return status.ErrIdentityMismatch
	}

	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return status.ErrIdentityMismatch
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return status.ErrIdentityMismatch
	}

	msg := SubmissionMessage(agreementID, party)
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return status.ErrIdentityMismatch
	}

	expected, err := v.Lookup(ctx, agreementID, party)
	if err != nil {
		return fmt.Errorf("lookup %s address: %w", party, err)
	}
	if !strings.EqualFold(DeriveAddress(pub), expected) {
		return status.ErrIdentityMismatch
	}
	return nil
}

// SubmissionMessage is the byte sequence a party signs to prove identity.
func SubmissionMessage(agreementID string, party models.Party) []byte {
	return []byte(agreementID + "|" + string(party))
}

// DeriveAddress maps a public key to its account address: the last 20 bytes
// of the Keccak-256 digest, 0x-prefixed hex.
func DeriveAddress(pub []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}
