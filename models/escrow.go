package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Party string

const (
	PartyArtist    Party = "artist"
	PartyOrganizer Party = "organizer"
)

func ParseParty(s string) (Party, bool) {
	switch Party(strings.ToLower(s)) {
	case PartyArtist:
		return PartyArtist, true
	case PartyOrganizer:
		return PartyOrganizer, true
	}
	return "", false
}

const agreementPrefix = "escrow_"

// AgreementID derives the escrow agreement id for an event.
func AgreementID(eventID string) string {
	return agreementPrefix + eventID
}

// EventIDForAgreement is the inverse of AgreementID.
func EventIDForAgreement(agreementID string) string {
	return strings.TrimPrefix(agreementID, agreementPrefix)
}

type ContractRefState string

const (
	ContractRefEmpty    ContractRefState = "empty"
	ContractRefClaiming ContractRefState = "claiming"
	ContractRefSet      ContractRefState = "set"
)

const claimPrefix = "claiming:"

// ClaimPlaceholder builds the transient contract_reference value that marks an
// in-flight release attempt. The token ties the placeholder to the claiming
// caller so a revert cannot clobber a newer reclaim.
func ClaimPlaceholder(token string) string {
	return claimPrefix + token
}

func IsClaimPlaceholder(raw string) bool {
	return strings.HasPrefix(raw, claimPrefix)
}

// ContractRef is the tagged state of an agreement's on-chain reference:
// not yet created, claimed by an in-flight release attempt, or created.
type ContractRef struct {
	State     ContractRefState `json:"state"`
	Reference string           `json:"reference,omitempty"`  // set
	ClaimedAt time.Time        `json:"claimed_at,omitzero"` // claiming
}

// ParseContractRef maps the stored contract_reference column (plus claimed_at)
// back to the tagged form.
func ParseContractRef(raw string, claimedAt time.Time) ContractRef {
	switch {
	case raw == "":
		return ContractRef{State: ContractRefEmpty}
	case IsClaimPlaceholder(raw):
		return ContractRef{State: ContractRefClaiming, ClaimedAt: claimedAt}
	default:
		return ContractRef{State: ContractRefSet, Reference: raw}
	}
}

// EscrowAgreement tracks the dual-secret release workflow for one event.
// release_triggered flips false->true exactly once, only when both secret
// flags are set and the contract reference was still empty.
type EscrowAgreement struct {
	AgreementID              string          `db:"agreement_id" json:"agreement_id"`
	EventID                  string          `db:"event_id" json:"event_id"`
	OrganizerSecretSubmitted bool            `db:"organizer_secret_submitted" json:"organizer_secret_submitted"`
	ArtistSecretSubmitted    bool            `db:"artist_secret_submitted" json:"artist_secret_submitted"`
	ReleaseTriggered         bool            `db:"release_triggered" json:"release_triggered"`
	ContractRef              ContractRef     `json:"contract_ref"`
	ReleaseAmount            decimal.Decimal `db:"release_amount" json:"release_amount"`
	Currency                 string          `db:"currency" json:"currency"`
	ReleaseTxRef             string          `db:"release_tx_ref" json:"release_tx_ref,omitempty"`
	ReleaseConfirmedAt       *time.Time      `db:"release_confirmed_at" json:"release_confirmed_at,omitempty"`
}

// BothSecretsSubmitted reports whether the agreement is ready for release.
func (a *EscrowAgreement) BothSecretsSubmitted() bool {
	return a.OrganizerSecretSubmitted && a.ArtistSecretSubmitted
}

type SubmissionStatus string

const (
	SubmissionAccepted         SubmissionStatus = "accepted"
	SubmissionIdentityMismatch SubmissionStatus = "identity_mismatch"
	SubmissionRetryableFailure SubmissionStatus = "retryable_failure"
)

// SubmissionResult is the tagged outcome of a party's secret submission.
type SubmissionResult struct {
	Status      SubmissionStatus `json:"status"`
	Agreement   *EscrowAgreement `json:"agreement,omitempty"`
	Released    bool             `json:"released"`
	ContractRef string           `json:"contract_ref,omitempty"`
	Message     string           `json:"message,omitempty"`
}
