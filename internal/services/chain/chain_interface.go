package chain

import (
	"context"

	"github.com/shopspring/decimal"

	"gatepass/internal/status"
)

// AgreementRequest asks the chain gateway to create the escrow agreement
// contract for an event once both parties have confirmed.
type AgreementRequest struct {
	AgreementID      string          `json:"agreement_id"`
	EventID          string          `json:"event_id"`
	OrganizerAddress string          `json:"organizer_address"`
	ArtistAddress    string          `json:"artist_address"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

type AgreementResult struct {
	Success     bool   `json:"success"`
	ContractRef string `json:"contract_ref"`
	Message     string `json:"message"`
}

type ReleaseRequest struct {
	AgreementID string `json:"agreement_id"`
	ContractRef string `json:"contract_ref"`
}

type ReleaseResult struct {
	Success bool   `json:"success"`
	TxRef   string `json:"tx_ref"`
	Message string `json:"message"`
}

// Submitter is the opaque chain-submission collaborator. The escrow
// coordinator only cares about success/failure plus the returned references;
// transaction construction and signing live behind the gateway.
type Submitter interface {
	CreateAgreement(ctx context.Context, req *AgreementRequest) (*AgreementResult, error)

	ReleasePayments(ctx context.Context, req *ReleaseRequest) (*ReleaseResult, error)

	// SetConfirmationChannel sets the channel for receiving asynchronous
	// release confirmations pushed by the gateway.
	SetConfirmationChannel(ch chan *status.Confirmation)

	// Close gracefully closes any connections.
	Close(ctx context.Context) error
}
