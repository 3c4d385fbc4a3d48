package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatepass/internal/status"
	"gatepass/models"
)

func TestMemoryScanLedger_InsertOnce(t *testing.T) {
	ledger := NewMemoryScanLedger()
	ctx := context.Background()

	rec := &models.ScanRecord{
		TicketID:  "ticket-42",
		Nonce:     "nonce-1",
		EventID:   "event-3",
		ScannedBy: "gate-a",
		ScannedAt: time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC),
	}

	inserted, existing, err := ledger.Insert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Nil(t, existing)

	later := *rec
	later.ScannedBy = "gate-b"
	inserted, existing, err = ledger.Insert(ctx, &later)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NotNil(t, existing)
	assert.Equal(t, "gate-a", existing.ScannedBy, "losing insert must see the original record")
}

func TestMemoryScanLedger_ConcurrentInserts(t *testing.T) {
	ledger := NewMemoryScanLedger()
	ctx := context.Background()

	const workers = 100

	var wins atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			inserted, _, err := ledger.Insert(ctx, &models.ScanRecord{
				TicketID:  "ticket-42",
				Nonce:     "nonce-1",
				EventID:   "event-3",
				ScannedBy: fmt.Sprintf("gate-%d", i),
				ScannedAt: time.Now(),
			})
			if err == nil && inserted {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.Equal(t, 1, ledger.Len())
}

func TestMemoryScanLedger_DistinctNoncesAreIndependent(t *testing.T) {
	ledger := NewMemoryScanLedger()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		inserted, _, err := ledger.Insert(ctx, &models.ScanRecord{
			TicketID: "ticket-42",
			Nonce:    fmt.Sprintf("nonce-%d", i),
			EventID:  "event-3",
		})
		require.NoError(t, err)
		assert.True(t, inserted)
	}
	assert.Equal(t, 3, ledger.Len())
}

func TestMemoryAgreementStore_MarkCreatesLazily(t *testing.T) {
	agreements := NewMemoryAgreementStore()
	ctx := context.Background()

	_, err := agreements.Get(ctx, "escrow_event-3")
	assert.ErrorIs(t, err, status.ErrAgreementNotFound)

	ag, err := agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyArtist)
	require.NoError(t, err)
	assert.Equal(t, "event-3", ag.EventID)
	assert.True(t, ag.ArtistSecretSubmitted)
	assert.False(t, ag.OrganizerSecretSubmitted)
	assert.Equal(t, models.ContractRefEmpty, ag.ContractRef.State)
}

func TestMemoryAgreementStore_ClaimRequiresBothSecrets(t *testing.T) {
	agreements := NewMemoryAgreementStore()
	ctx := context.Background()
	now := time.Now()

	_, err := agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyArtist)
	require.NoError(t, err)

	claimed, err := agreements.ClaimRelease(ctx, "escrow_event-3", "tok", now, now.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMemoryAgreementStore_ClaimIsExclusive(t *testing.T) {
	agreements := NewMemoryAgreementStore()
	ctx := context.Background()

	_, err := agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyArtist)
	require.NoError(t, err)
	_, err = agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyOrganizer)
	require.NoError(t, err)

	const workers = 50

	var wins atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			now := time.Now()
			claimed, err := agreements.ClaimRelease(ctx, "escrow_event-3", fmt.Sprintf("tok-%d", i), now, now.Add(-2*time.Minute))
			if err == nil && claimed {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}

func TestMemoryAgreementStore_CompleteRequiresOwnToken(t *testing.T) {
	agreements := NewMemoryAgreementStore()
	ctx := context.Background()
	now := time.Now()

	_, err := agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyArtist)
	require.NoError(t, err)
	_, err = agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyOrganizer)
	require.NoError(t, err)

	claimed, err := agreements.ClaimRelease(ctx, "escrow_event-3", "mine", now, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	err = agreements.CompleteRelease(ctx, "escrow_event-3", "theirs", "contract-1", "tx-1")
	assert.Error(t, err, "completion with a stranger's token must fail")

	err = agreements.CompleteRelease(ctx, "escrow_event-3", "mine", "contract-1", "tx-1")
	require.NoError(t, err)

	ag, err := agreements.Get(ctx, "escrow_event-3")
	require.NoError(t, err)
	assert.True(t, ag.ReleaseTriggered)
	assert.Equal(t, "contract-1", ag.ContractRef.Reference)
	assert.Equal(t, "tx-1", ag.ReleaseTxRef)
}

func TestMemoryAgreementStore_RevertOnlyOwnClaim(t *testing.T) {
	agreements := NewMemoryAgreementStore()
	ctx := context.Background()
	now := time.Now()

	_, err := agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyArtist)
	require.NoError(t, err)
	_, err = agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyOrganizer)
	require.NoError(t, err)

	claimed, err := agreements.ClaimRelease(ctx, "escrow_event-3", "mine", now, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	// Someone else's revert leaves the claim in place.
	require.NoError(t, agreements.RevertClaim(ctx, "escrow_event-3", "theirs"))
	ag, err := agreements.Get(ctx, "escrow_event-3")
	require.NoError(t, err)
	assert.Equal(t, models.ContractRefClaiming, ag.ContractRef.State)

	require.NoError(t, agreements.RevertClaim(ctx, "escrow_event-3", "mine"))
	ag, err = agreements.Get(ctx, "escrow_event-3")
	require.NoError(t, err)
	assert.Equal(t, models.ContractRefEmpty, ag.ContractRef.State)
}

func TestMemoryAgreementStore_StaleClaimReclaim(t *testing.T) {
	agreements := NewMemoryAgreementStore()
	ctx := context.Background()

	_, err := agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyArtist)
	require.NoError(t, err)
	_, err = agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyOrganizer)
	require.NoError(t, err)

	agreements.SetClaim("escrow_event-3", "dead", time.Now().Add(-10*time.Minute))

	now := time.Now()
	claimed, err := agreements.ClaimRelease(ctx, "escrow_event-3", "fresh", now, now.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)

	// The dead claimer's revert must not clear the fresh claim.
	require.NoError(t, agreements.RevertClaim(ctx, "escrow_event-3", "dead"))
	ag, err := agreements.Get(ctx, "escrow_event-3")
	require.NoError(t, err)
	assert.Equal(t, models.ContractRefClaiming, ag.ContractRef.State)
}

func TestMemoryAgreementStore_ConfirmRequiresTriggered(t *testing.T) {
	agreements := NewMemoryAgreementStore()
	ctx := context.Background()
	at := time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC)

	_, err := agreements.MarkSecretSubmitted(ctx, "escrow_event-3", models.PartyArtist)
	require.NoError(t, err)

	require.NoError(t, agreements.ConfirmRelease(ctx, "escrow_event-3", "tx-1", at))
	ag, err := agreements.Get(ctx, "escrow_event-3")
	require.NoError(t, err)
	assert.Nil(t, ag.ReleaseConfirmedAt, "confirmation before release must be ignored")
}
