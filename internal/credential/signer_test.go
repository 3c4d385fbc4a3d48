package credential

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatepass/internal/status"
)

const testSeedHex = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func TestEd25519Signer_SignVerify(t *testing.T) {
	signer, err := NewEd25519Signer(testSeedHex, "")
	require.NoError(t, err)

	payload := []byte("GP1|ticket-42|owner-7|event-3|1|2|nonce")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)
	require.Len(t, sig, ed25519.SignatureSize)

	assert.True(t, signer.Verify(payload, sig))
}

func TestEd25519Signer_BitFlipFailsVerify(t *testing.T) {
	signer, err := NewEd25519Signer(testSeedHex, "")
	require.NoError(t, err)

	payload := []byte("GP1|ticket-42|owner-7|event-3|1|2|nonce")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	tampered := make([]byte, len(payload))
	copy(tampered, payload)
	tampered[4] ^= 0x01

	assert.False(t, signer.Verify(tampered, sig))
}

func TestEd25519Signer_VerifyOnlyCannotSign(t *testing.T) {
	full, err := NewEd25519Signer(testSeedHex, "")
	require.NoError(t, err)
	pubHex := hex.EncodeToString(full.pub)

	gate, err := NewEd25519Signer("", pubHex)
	require.NoError(t, err)

	payload := []byte("payload")
	sig, err := full.Sign(payload)
	require.NoError(t, err)

	assert.True(t, gate.Verify(payload, sig))

	_, err = gate.Sign(payload)
	assert.ErrorIs(t, err, status.ErrKeyUnavailable)
}

func TestEd25519Signer_WrongKeyFailsVerify(t *testing.T) {
	signer, err := NewEd25519Signer(testSeedHex, "")
	require.NoError(t, err)

	otherSeed := strings.Repeat("ab", 32)
	other, err := NewEd25519Signer(otherSeed, "")
	require.NoError(t, err)

	payload := []byte("payload")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	assert.False(t, other.Verify(payload, sig))
}

func TestEd25519Signer_NoKeyMaterial(t *testing.T) {
	_, err := NewEd25519Signer("", "")
	assert.ErrorIs(t, err, status.ErrKeyUnavailable)
}

func TestEd25519Signer_BadSeed(t *testing.T) {
	_, err := NewEd25519Signer("zz", "")
	assert.Error(t, err)

	_, err = NewEd25519Signer("abcd", "")
	assert.Error(t, err)
}

func TestHMACSigner_SignVerify(t *testing.T) {
	signer, err := NewHMACSigner("shared-secret")
	require.NoError(t, err)

	payload := []byte("payload")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	assert.True(t, signer.Verify(payload, sig))
	assert.False(t, signer.Verify([]byte("other payload"), sig))
}

func TestHMACSigner_DifferentSecretsDisagree(t *testing.T) {
	a, err := NewHMACSigner("secret-a")
	require.NoError(t, err)
	b, err := NewHMACSigner("secret-b")
	require.NoError(t, err)

	payload := []byte("payload")
	sig, err := a.Sign(payload)
	require.NoError(t, err)

	assert.False(t, b.Verify(payload, sig))
}

func TestHMACSigner_EmptySecret(t *testing.T) {
	_, err := NewHMACSigner("")
	assert.ErrorIs(t, err, status.ErrKeyUnavailable)
}
