package store

import (
	"context"
	"sync"
	"time"

	"gatepass/internal/status"
	"gatepass/models"
)

// MemoryScanLedger is a process-local ScanLedger for tests and single-node
// development. Atomicity comes from the mutex; it is not durable and must not
// back a multi-process gate deployment.
type MemoryScanLedger struct {
	mu      sync.Mutex
	records map[[2]string]*models.ScanRecord
}

func NewMemoryScanLedger() *MemoryScanLedger {
	return &MemoryScanLedger{records: make(map[[2]string]*models.ScanRecord)}
}

func (l *MemoryScanLedger) Insert(_ context.Context, rec *models.ScanRecord) (bool, *models.ScanRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := [2]string{rec.TicketID, rec.Nonce}
	if existing, ok := l.records[key]; ok {
		cp := *existing
		return false, &cp, nil
	}

	cp := *rec
	l.records[key] = &cp
	return true, nil, nil
}

func (l *MemoryScanLedger) Find(_ context.Context, ticketID, nonce string) (*models.ScanRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.records[[2]string{ticketID, nonce}]; ok {
		cp := *existing
		return &cp, nil
	}
	return nil, nil
}

// Len reports the number of consumed credentials.
func (l *MemoryScanLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

type memoryAgreement struct {
	models.EscrowAgreement
	rawRef    string
	claimedAt time.Time
}

// MemoryAgreementStore is a process-local AgreementStore with the same
// compare-and-swap semantics as the SQLite implementation.
type MemoryAgreementStore struct {
	mu         sync.Mutex
	agreements map[string]*memoryAgreement
}

func NewMemoryAgreementStore() *MemoryAgreementStore {
	return &MemoryAgreementStore{agreements: make(map[string]*memoryAgreement)}
}

func (s *MemoryAgreementStore) toModel(a *memoryAgreement) *models.EscrowAgreement {
	m := a.EscrowAgreement
	m.ContractRef = models.ParseContractRef(a.rawRef, a.claimedAt)
	if a.ReleaseConfirmedAt != nil {
		t := *a.ReleaseConfirmedAt
		m.ReleaseConfirmedAt = &t
	}
	return &m
}

func (s *MemoryAgreementStore) Get(_ context.Context, agreementID string) (*models.EscrowAgreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[agreementID]
	if !ok {
		return nil, status.ErrAgreementNotFound
	}
	return s.toModel(a), nil
}

func (s *MemoryAgreementStore) MarkSecretSubmitted(_ context.Context, agreementID string, party models.Party) (*models.EscrowAgreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[agreementID]
	if !ok {
		a = &memoryAgreement{
			EscrowAgreement: models.EscrowAgreement{
				AgreementID: agreementID,
				EventID:     models.EventIDForAgreement(agreementID),
			},
		}
		s.agreements[agreementID] = a
	}

	switch party {
	case models.PartyOrganizer:
		a.OrganizerSecretSubmitted = true
	case models.PartyArtist:
		a.ArtistSecretSubmitted = true
	}
	return s.toModel(a), nil
}

func (s *MemoryAgreementStore) ClaimRelease(_ context.Context, agreementID, token string, now, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[agreementID]
	if !ok {
		return false, status.ErrAgreementNotFound
	}
	if !a.OrganizerSecretSubmitted || !a.ArtistSecretSubmitted || a.ReleaseTriggered {
		return false, nil
	}

	claimable := a.rawRef == "" ||
		(models.IsClaimPlaceholder(a.rawRef) && a.claimedAt.Before(staleBefore))
	if !claimable {
		return false, nil
	}

	a.rawRef = models.ClaimPlaceholder(token)
	a.claimedAt = now
	return true, nil
}

func (s *MemoryAgreementStore) CompleteRelease(_ context.Context, agreementID, token, contractRef, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[agreementID]
	if !ok {
		return status.ErrAgreementNotFound
	}
	if a.rawRef != models.ClaimPlaceholder(token) {
		return status.ErrChainSubmission
	}

	a.rawRef = contractRef
	a.ReleaseTxRef = txRef
	a.ReleaseTriggered = true
	a.claimedAt = time.Time{}
	return nil
}

func (s *MemoryAgreementStore) RevertClaim(_ context.Context, agreementID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[agreementID]
	if !ok {
		return status.ErrAgreementNotFound
	}
	if a.rawRef == models.ClaimPlaceholder(token) {
		a.rawRef = ""
		a.claimedAt = time.Time{}
	}
	return nil
}

func (s *MemoryAgreementStore) ConfirmRelease(_ context.Context, agreementID, txRef string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[agreementID]
	if !ok {
		return status.ErrAgreementNotFound
	}
	if a.ReleaseTriggered {
		a.ReleaseTxRef = txRef
		a.ReleaseConfirmedAt = &at
	}
	return nil
}

// SetClaim force-sets a claim placeholder, bypassing the CAS. Test helper for
// stale-claim scenarios.
func (s *MemoryAgreementStore) SetClaim(agreementID, token string, claimedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.agreements[agreementID]; ok {
		a.rawRef = models.ClaimPlaceholder(token)
		a.claimedAt = claimedAt
	}
}
