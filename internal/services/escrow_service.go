package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go"

	"gatepass/internal/services/chain"
	"gatepass/internal/status"
	"gatepass/internal/store"
	"gatepass/models"
	"gatepass/monitoring"
	"gatepass/utils"
)

// EscrowService coordinates the dual-key release workflow: each party submits
// a secret, and the first submission that finds both flags set claims the
// release and drives the chain calls. The claim is a compare-and-swap on the
// agreement's contract reference, so the chain submitter is invoked at most
// once per agreement no matter how submissions race.
type EscrowService struct {
	Store  store.AgreementStore
	Chain  chain.Submitter
	PubNub *pubnub.PubNub

	identity   IdentityVerifier
	addresses  AddressLookup
	staleAfter time.Duration

	now func() time.Time
}

func NewEscrowService(agreements store.AgreementStore, submitter chain.Submitter, pn *pubnub.PubNub, identity IdentityVerifier, addresses AddressLookup, staleAfter time.Duration) *EscrowService {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return &EscrowService{
		Store:      agreements,
		Chain:      submitter,
		PubNub:     pn,
		identity:   identity,
		addresses:  addresses,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Agreement returns the current agreement state.
func (s *EscrowService) Agreement(ctx context.Context, agreementID string) (*models.EscrowAgreement, error) {
	return s.Store.Get(ctx, agreementID)
}

// SubmitSecret records one party's secret and, when it completes the pair,
// triggers the fund release exactly once. Re-submitting the same party's
// secret is a no-op, not an error.
func (s *EscrowService) SubmitSecret(ctx context.Context, agreementID string, party models.Party, secret string) (*models.SubmissionResult, error) {
	if err := s.identity.Verify(ctx, agreementID, party, secret); err != nil {
		if errors.Is(err, status.ErrIdentityMismatch) {
			return &models.SubmissionResult{
				Status:  models.SubmissionIdentityMismatch,
				Message: "secret does not match the registered identity for " + string(party),
			}, nil
		}
		return nil, err
	}

	ag, err := s.Store.MarkSecretSubmitted(ctx, agreementID, party)
	if err != nil {
		return nil, err
	}

	if !ag.BothSecretsSubmitted() {
		return &models.SubmissionResult{Status: models.SubmissionAccepted, Agreement: ag}, nil
	}

	if ag.ReleaseTriggered || ag.ContractRef.State == models.ContractRefSet {
		return &models.SubmissionResult{
			Status:      models.SubmissionAccepted,
			Agreement:   ag,
			Released:    true,
			ContractRef: ag.ContractRef.Reference,
		}, nil
	}

	return s.tryRelease(ctx, ag)
}

// tryRelease claims the release slot and drives the chain submission. Losing
// the claim race is a success for the caller: someone else is releasing.
func (s *EscrowService) tryRelease(ctx context.Context, ag *models.EscrowAgreement) (*models.SubmissionResult, error) {
	// No gateway configured: report a retryable failure without taking the
	// claim, so nothing is left in the claiming state.
	if s.Chain == nil {
		slog.Error("release requested but no chain gateway is configured",
			"agreementID", ag.AgreementID,
		)
		monitoring.TrackEscrowRelease("failed")
		return &models.SubmissionResult{
			Status:    models.SubmissionRetryableFailure,
			Agreement: ag,
			Message:   "chain gateway not configured",
		}, nil
	}

	token, err := utils.GenerateCode(8)
	if err != nil {
		return nil, err
	}

	now := s.now()
	claimed, err := s.Store.ClaimRelease(ctx, ag.AgreementID, token, now, now.Add(-s.staleAfter))
	if err != nil {
		return nil, err
	}
	if !claimed {
		return &models.SubmissionResult{
			Status:    models.SubmissionAccepted,
			Agreement: ag,
			Message:   "release already in progress",
		}, nil
	}

	contractRef, txRef, err := s.submitToChain(ctx, ag)
	if err != nil {
		// Give the claim back so any party can retry.
		if rerr := s.Store.RevertClaim(ctx, ag.AgreementID, token); rerr != nil {
			slog.Error("failed to revert release claim",
				"agreementID", ag.AgreementID,
				"error", rerr,
			)
		}
		slog.Error("chain submission failed",
			"agreementID", ag.AgreementID,
			"error", err,
		)
		monitoring.TrackEscrowRelease("failed")
		return &models.SubmissionResult{
			Status:    models.SubmissionRetryableFailure,
			Agreement: ag,
			Message:   err.Error(),
		}, nil
	}

	if err := s.Store.CompleteRelease(ctx, ag.AgreementID, token, contractRef, txRef); err != nil {
		// The claim went stale and was reclaimed while the chain call ran;
		// the reclaimer owns the outcome now. Log for ops reconciliation:
		// the chain holds a contract this row does not reference.
		slog.Error("release completed on chain but claim was lost",
			"agreementID", ag.AgreementID,
			"contractRef", contractRef,
			"error", err,
		)
		return nil, err
	}

	monitoring.TrackEscrowRelease("released")
	s.notifyReleased(ag, contractRef)

	updated, err := s.Store.Get(ctx, ag.AgreementID)
	if err != nil {
		updated = ag
	}
	return &models.SubmissionResult{
		Status:      models.SubmissionAccepted,
		Agreement:   updated,
		Released:    true,
		ContractRef: contractRef,
	}, nil
}

func (s *EscrowService) submitToChain(ctx context.Context, ag *models.EscrowAgreement) (contractRef, txRef string, err error) {
	organizer, err := s.addresses(ctx, ag.AgreementID, models.PartyOrganizer)
	if err != nil {
		return "", "", err
	}
	artist, err := s.addresses(ctx, ag.AgreementID, models.PartyArtist)
	if err != nil {
		return "", "", err
	}

	created, err := s.Chain.CreateAgreement(ctx, &chain.AgreementRequest{
		AgreementID:      ag.AgreementID,
		EventID:          ag.EventID,
		OrganizerAddress: organizer,
		ArtistAddress:    artist,
		Amount:           ag.ReleaseAmount,
		Currency:         ag.Currency,
	})
	if err != nil {
		return "", "", err
	}
	if !created.Success {
		return "", "", fmt.Errorf("%w: create agreement: %s", status.ErrChainSubmission, created.Message)
	}

	released, err := s.Chain.ReleasePayments(ctx, &chain.ReleaseRequest{
		AgreementID: ag.AgreementID,
		ContractRef: created.ContractRef,
	})
	if err != nil {
		return "", "", err
	}
	if !released.Success {
		return "", "", fmt.Errorf("%w: release payments: %s", status.ErrChainSubmission, released.Message)
	}

	return created.ContractRef, released.TxRef, nil
}

// HandleConfirmation stamps an asynchronous release confirmation from the
// chain gateway onto the agreement.
func (s *EscrowService) HandleConfirmation(ctx context.Context, conf *status.Confirmation) error {
	if err := s.Store.ConfirmRelease(ctx, conf.AgreementID, conf.TxRef, conf.ConfirmedAt); err != nil {
		return err
	}
	slog.Info("escrow release confirmed on chain",
		"agreementID", conf.AgreementID,
		"txRef", conf.TxRef,
	)
	return nil
}

func (s *EscrowService) notifyReleased(ag *models.EscrowAgreement, contractRef string) {
	if s.PubNub == nil {
		return
	}

	for _, party := range []models.Party{models.PartyOrganizer, models.PartyArtist} {
		channel := fmt.Sprintf("escrow-%s-%s", ag.EventID, party)
		s.PubNub.Publish().
			Channel(channel).
			Message(map[string]any{
				"type":         "escrow_released",
				"agreement_id": ag.AgreementID,
				"contract_ref": contractRef,
			}).
			Execute()
	}
}
