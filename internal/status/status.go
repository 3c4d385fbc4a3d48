package status

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrKeyUnavailable     = errors.New("credential: signing key material not configured")
	ErrMalformedPayload   = errors.New("credential: malformed payload")
	ErrUnsupportedVersion = errors.New("credential: unsupported payload version")
	ErrIdentityMismatch   = errors.New("escrow: secret does not match party identity")
	ErrAgreementNotFound  = errors.New("escrow: agreement not found")
	ErrChainSubmission    = errors.New("escrow: chain submission failed")
)

// Confirmation is an asynchronous fund-release confirmation pushed by the
// chain gateway after the release transaction is mined.
type Confirmation struct {
	AgreementID string          `json:"agreement_id"`
	ContractRef string          `json:"contract_ref"`
	TxRef       string          `json:"tx_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}
