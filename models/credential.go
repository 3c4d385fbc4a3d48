package models

import (
	"time"
)

// CredentialFields is the signed portion of a ticket credential. The codec
// serializes exactly these fields in a fixed order; the signature covers that
// byte sequence.
type CredentialFields struct {
	Version   string    `json:"version"`
	TicketID  string    `json:"ticket_id"`
	OwnerID   string    `json:"owner_id"`
	EventID   string    `json:"event_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Nonce     string    `json:"nonce"` // lowercase hex, 128 bits
}

// TicketCredential is the issued credential. Token is the transportable form
// handed to the QR renderer; nothing else is persisted at issuance time.
type TicketCredential struct {
	CredentialFields
	Token string `json:"token"`
}

// ScanRecord is one row of the replay ledger, created exactly once at the
// first successful verification of a credential. Never mutated or deleted.
type ScanRecord struct {
	TicketID  string    `db:"ticket_id" json:"ticket_id"`
	Nonce     string    `db:"nonce" json:"nonce"`
	EventID   string    `db:"event_id" json:"event_id"`
	ScannedBy string    `db:"scanned_by" json:"scanned_by"`
	ScannedAt time.Time `db:"scanned_at" json:"scanned_at"`
}

type VerificationStatus string

const (
	ScanAccepted    VerificationStatus = "accepted"
	ScanExpired     VerificationStatus = "expired"
	ScanForged      VerificationStatus = "forged"
	ScanInvalid     VerificationStatus = "invalid"
	ScanAlreadyUsed VerificationStatus = "already_used"
)

// VerificationResult is the tagged outcome of a scan attempt.
type VerificationResult struct {
	Status VerificationStatus `json:"status"`

	// Ticket metadata for the gate display, set on Accepted and AlreadyUsed.
	TicketID string `json:"ticket_id,omitempty"`
	OwnerID  string `json:"owner_id,omitempty"`
	EventID  string `json:"event_id,omitempty"`

	// ScannedAt is the time this scan was recorded (Accepted).
	ScannedAt time.Time `json:"scanned_at,omitzero"`

	// FirstScan is the original ledger entry (AlreadyUsed), so the operator
	// can see when and where the credential was first consumed.
	FirstScan *ScanRecord `json:"first_scan,omitempty"`

	Reason string `json:"reason,omitempty"`
}
