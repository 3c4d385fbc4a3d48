package services

import (
	"context"
	"fmt"
	"time"

	"gatepass/internal/credential"
	"gatepass/internal/status"
	"gatepass/models"
	"gatepass/monitoring"
	"gatepass/utils"
)

// CredentialService issues signed, expiring QR credentials for purchased
// tickets. Issuance is stateless: the signature plus the not-yet-created scan
// record are the only state.
type CredentialService struct {
	signer     credential.Signer
	defaultTTL time.Duration

	now func() time.Time
}

func NewCredentialService(signer credential.Signer, defaultTTL time.Duration) *CredentialService {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &CredentialService{
		signer:     signer,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Issue builds a credential for the ticket and returns it with the assembled
// token. ttl <= 0 uses the configured default.
func (s *CredentialService) Issue(ctx context.Context, ticketID, ownerID, eventID string, ttl time.Duration) (*models.TicketCredential, error) {
	if s.signer == nil {
		return nil, status.ErrKeyUnavailable
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	nonce, err := utils.GenerateNonce()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	issuedAt := s.now().Truncate(time.Second).UTC()
	fields := models.CredentialFields{
		Version:   credential.PayloadVersion,
		TicketID:  ticketID,
		OwnerID:   ownerID,
		EventID:   eventID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
		Nonce:     nonce,
	}

	payload, err := credential.Encode(fields)
	if err != nil {
		return nil, err
	}

	sig, err := s.signer.Sign(payload)
	if err != nil {
		return nil, err
	}

	monitoring.TrackIssued(eventID)

	return &models.TicketCredential{
		CredentialFields: fields,
		Token:            credential.AssembleToken(payload, sig),
	}, nil
}
