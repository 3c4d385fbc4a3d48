package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatepass/internal/credential"
	"gatepass/internal/status"
)

const testSeedHex = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func testSigner(t *testing.T) credential.Signer {
	t.Helper()
	signer, err := credential.NewEd25519Signer(testSeedHex, "")
	require.NoError(t, err)
	return signer
}

func TestCredentialService_Issue(t *testing.T) {
	service := NewCredentialService(testSigner(t), 24*time.Hour)
	issued := time.Date(2025, 8, 31, 10, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return issued }

	cred, err := service.Issue(context.Background(), "ticket-42", "owner-7", "event-3", 0)
	require.NoError(t, err)

	assert.Equal(t, "ticket-42", cred.TicketID)
	assert.Equal(t, "owner-7", cred.OwnerID)
	assert.Equal(t, "event-3", cred.EventID)
	assert.Equal(t, issued, cred.IssuedAt)
	assert.Equal(t, issued.Add(24*time.Hour), cred.ExpiresAt)
	assert.Len(t, cred.Nonce, 32) // 128 bits as hex
	assert.NotEmpty(t, cred.Token)
}

func TestCredentialService_IssueTokenVerifies(t *testing.T) {
	signer := testSigner(t)
	service := NewCredentialService(signer, 24*time.Hour)

	cred, err := service.Issue(context.Background(), "ticket-42", "owner-7", "event-3", 0)
	require.NoError(t, err)

	payload, sig, err := credential.SplitToken(cred.Token)
	require.NoError(t, err)

	fields, err := credential.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, cred.CredentialFields, fields)
	assert.True(t, signer.Verify(payload, sig))
}

func TestCredentialService_IssueCustomTTL(t *testing.T) {
	service := NewCredentialService(testSigner(t), 24*time.Hour)

	cred, err := service.Issue(context.Background(), "ticket-42", "owner-7", "event-3", 2*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, cred.IssuedAt.Add(2*time.Hour), cred.ExpiresAt)
}

func TestCredentialService_NoncesAreUnique(t *testing.T) {
	service := NewCredentialService(testSigner(t), 24*time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		cred, err := service.Issue(context.Background(), "ticket-42", "owner-7", "event-3", 0)
		require.NoError(t, err)
		assert.False(t, seen[cred.Nonce], "nonce reused: %s", cred.Nonce)
		seen[cred.Nonce] = true
	}
}

func TestCredentialService_NoSigner(t *testing.T) {
	service := NewCredentialService(nil, 24*time.Hour)

	_, err := service.Issue(context.Background(), "ticket-42", "owner-7", "event-3", 0)
	assert.ErrorIs(t, err, status.ErrKeyUnavailable)
}

func TestCredentialService_VerifyOnlySignerCannotIssue(t *testing.T) {
	gate, err := credential.NewEd25519Signer("", "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a")
	require.NoError(t, err)

	service := NewCredentialService(gate, 24*time.Hour)
	_, err = service.Issue(context.Background(), "ticket-42", "owner-7", "event-3", 0)
	assert.ErrorIs(t, err, status.ErrKeyUnavailable)
}
