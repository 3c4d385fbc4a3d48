package store

import (
	"context"
	"time"

	"gatepass/models"
)

// ScanLedger is the durable replay ledger. The storage layer's uniqueness
// constraint on (ticket_id, nonce) is the authoritative one-time-use guard;
// any cache in front of it is an optimization only.
type ScanLedger interface {
	// Insert atomically records the first use of (ticketID, nonce). When the
	// pair already exists the stored record is returned and inserted is
	// false. Implementations must use an atomic insert-if-absent primitive,
	// not a read-then-write.
	Insert(ctx context.Context, rec *models.ScanRecord) (inserted bool, existing *models.ScanRecord, err error)

	// Find returns the stored record for (ticketID, nonce), or nil.
	Find(ctx context.Context, ticketID, nonce string) (*models.ScanRecord, error)
}

// AgreementStore owns EscrowAgreement rows. All transitions go through it;
// no other component writes these fields.
type AgreementStore interface {
	// Get returns the agreement, or ErrAgreementNotFound.
	Get(ctx context.Context, agreementID string) (*models.EscrowAgreement, error)

	// MarkSecretSubmitted sets the given party's flag, creating the row if
	// absent. Idempotent: re-submitting is a no-op. Returns a fresh read of
	// the agreement after the write.
	MarkSecretSubmitted(ctx context.Context, agreementID string, party models.Party) (*models.EscrowAgreement, error)

	// ClaimRelease compare-and-swaps contract_reference from empty (or from
	// a stale claim older than staleBefore) to the claim placeholder for
	// token. Only succeeds when both secret flags are set and the release
	// has not been triggered. Exactly one concurrent caller wins.
	ClaimRelease(ctx context.Context, agreementID, token string, now, staleBefore time.Time) (claimed bool, err error)

	// CompleteRelease swaps the claim placeholder for token to the real
	// contract reference and marks the release triggered.
	CompleteRelease(ctx context.Context, agreementID, token, contractRef, txRef string) error

	// RevertClaim swaps the claim placeholder for token back to empty so a
	// later submission can retry. A placeholder owned by another token is
	// left alone.
	RevertClaim(ctx context.Context, agreementID, token string) error

	// ConfirmRelease stamps the asynchronous chain confirmation.
	ConfirmRelease(ctx context.Context, agreementID, txRef string, at time.Time) error
}
