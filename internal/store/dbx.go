package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"gatepass/internal/status"
	"gatepass/models"
	"gatepass/utils"
)

// timeLayout matches PocketBase's stored datetime format so raw queries stay
// comparable with values written through the collection API.
const timeLayout = "2006-01-02 15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func recordID() string {
	id, _ := utils.GenerateCode(8)
	return strings.ToLower(id)
}

// DBXScanLedger is the SQLite-backed replay ledger. The unique index on
// (ticket_id, nonce) created by the scan_records migration makes Insert an
// atomic insert-if-absent across processes.
type DBXScanLedger struct {
	app core.App
}

func NewDBXScanLedger(app core.App) *DBXScanLedger {
	return &DBXScanLedger{app: app}
}

type scanRow struct {
	TicketID  string `db:"ticket_id"`
	Nonce     string `db:"nonce"`
	EventID   string `db:"event_id"`
	ScannedBy string `db:"scanned_by"`
	ScannedAt string `db:"scanned_at"`
}

func (r *scanRow) toModel() *models.ScanRecord {
	return &models.ScanRecord{
		TicketID:  r.TicketID,
		Nonce:     r.Nonce,
		EventID:   r.EventID,
		ScannedBy: r.ScannedBy,
		ScannedAt: parseTime(r.ScannedAt),
	}
}

func (l *DBXScanLedger) Insert(ctx context.Context, rec *models.ScanRecord) (bool, *models.ScanRecord, error) {
	_, err := l.app.DB().Insert("scan_records", dbx.Params{
		"id":         recordID(),
		"ticket_id":  rec.TicketID,
		"nonce":      rec.Nonce,
		"event_id":   rec.EventID,
		"scanned_by": rec.ScannedBy,
		"scanned_at": formatTime(rec.ScannedAt),
	}).WithContext(ctx).Execute()
	if err == nil {
		return true, nil, nil
	}

	if !isUniqueViolation(err) {
		return false, nil, fmt.Errorf("insert scan record: %w", err)
	}

	existing, ferr := l.Find(ctx, rec.TicketID, rec.Nonce)
	if ferr != nil {
		return false, nil, ferr
	}
	return false, existing, nil
}

func (l *DBXScanLedger) Find(ctx context.Context, ticketID, nonce string) (*models.ScanRecord, error) {
	var row scanRow
	err := l.app.DB().NewQuery(
		"SELECT ticket_id, nonce, event_id, scanned_by, scanned_at FROM scan_records WHERE ticket_id = {:ticket} AND nonce = {:nonce}",
	).Bind(dbx.Params{"ticket": ticketID, "nonce": nonce}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find scan record: %w", err)
	}
	return row.toModel(), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// DBXAgreementStore is the SQLite-backed escrow agreement store. Mutual
// exclusion for the release trigger comes from conditional UPDATEs checked by
// rows-affected, never from read-then-write.
type DBXAgreementStore struct {
	app core.App
}

func NewDBXAgreementStore(app core.App) *DBXAgreementStore {
	return &DBXAgreementStore{app: app}
}

type agreementRow struct {
	AgreementID        string `db:"agreement_id"`
	EventID            string `db:"event_id"`
	OrganizerSubmitted bool   `db:"organizer_secret_submitted"`
	ArtistSubmitted    bool   `db:"artist_secret_submitted"`
	ReleaseTriggered   bool   `db:"release_triggered"`
	ContractReference  string `db:"contract_reference"`
	ClaimedAt          string `db:"claimed_at"`
	ReleaseAmount      string `db:"release_amount"`
	Currency           string `db:"currency"`
	ReleaseTxRef       string `db:"release_tx_ref"`
	ReleaseConfirmedAt string `db:"release_confirmed_at"`
}

const agreementColumns = "agreement_id, event_id, organizer_secret_submitted, artist_secret_submitted, release_triggered, contract_reference, claimed_at, release_amount, currency, release_tx_ref, release_confirmed_at"

func (r *agreementRow) toModel() *models.EscrowAgreement {
	amount, _ := decimal.NewFromString(r.ReleaseAmount)
	a := &models.EscrowAgreement{
		AgreementID:              r.AgreementID,
		EventID:                  r.EventID,
		OrganizerSecretSubmitted: r.OrganizerSubmitted,
		ArtistSecretSubmitted:    r.ArtistSubmitted,
		ReleaseTriggered:         r.ReleaseTriggered,
		ContractRef:              models.ParseContractRef(r.ContractReference, parseTime(r.ClaimedAt)),
		ReleaseAmount:            amount,
		Currency:                 r.Currency,
		ReleaseTxRef:             r.ReleaseTxRef,
	}
	if r.ReleaseConfirmedAt != "" {
		t := parseTime(r.ReleaseConfirmedAt)
		a.ReleaseConfirmedAt = &t
	}
	return a
}

func (s *DBXAgreementStore) Get(ctx context.Context, agreementID string) (*models.EscrowAgreement, error) {
	var row agreementRow
	err := s.app.DB().NewQuery(
		"SELECT "+agreementColumns+" FROM escrow_agreements WHERE agreement_id = {:id}",
	).Bind(dbx.Params{"id": agreementID}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrAgreementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agreement: %w", err)
	}
	return row.toModel(), nil
}

func (s *DBXAgreementStore) MarkSecretSubmitted(ctx context.Context, agreementID string, party models.Party) (*models.EscrowAgreement, error) {
	org, art := 0, 0
	switch party {
	case models.PartyOrganizer:
		org = 1
	case models.PartyArtist:
		art = 1
	default:
		return nil, fmt.Errorf("unknown party %q", party)
	}

	// Upsert keyed on the unique agreement_id index; OR keeps an already set
	// flag set so repeated submissions are no-ops.
	_, err := s.app.DB().NewQuery(`
		INSERT INTO escrow_agreements
			(id, agreement_id, event_id, organizer_secret_submitted, artist_secret_submitted,
			 release_triggered, contract_reference, claimed_at, release_amount, currency,
			 release_tx_ref, release_confirmed_at)
		VALUES
			({:rid}, {:id}, {:event}, {:org}, {:art}, 0, '', '', '0', '', '', '')
		ON CONFLICT(agreement_id) DO UPDATE SET
			organizer_secret_submitted = organizer_secret_submitted OR {:org},
			artist_secret_submitted = artist_secret_submitted OR {:art}
	`).Bind(dbx.Params{
		"rid":   recordID(),
		"id":    agreementID,
		"event": models.EventIDForAgreement(agreementID),
		"org":   org,
		"art":   art,
	}).WithContext(ctx).Execute()
	if err != nil {
		return nil, fmt.Errorf("mark secret submitted: %w", err)
	}

	return s.Get(ctx, agreementID)
}

func (s *DBXAgreementStore) ClaimRelease(ctx context.Context, agreementID, token string, now, staleBefore time.Time) (bool, error) {
	res, err := s.app.DB().NewQuery(`
		UPDATE escrow_agreements
		SET contract_reference = {:ph}, claimed_at = {:now}
		WHERE agreement_id = {:id}
		  AND organizer_secret_submitted = 1
		  AND artist_secret_submitted = 1
		  AND release_triggered = 0
		  AND (contract_reference = ''
		       OR (contract_reference LIKE 'claiming:%' AND claimed_at < {:stale}))
	`).Bind(dbx.Params{
		"ph":    models.ClaimPlaceholder(token),
		"now":   formatTime(now),
		"id":    agreementID,
		"stale": formatTime(staleBefore),
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("claim release: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *DBXAgreementStore) CompleteRelease(ctx context.Context, agreementID, token, contractRef, txRef string) error {
	res, err := s.app.DB().NewQuery(`
		UPDATE escrow_agreements
		SET contract_reference = {:ref}, release_tx_ref = {:tx}, release_triggered = 1, claimed_at = ''
		WHERE agreement_id = {:id} AND contract_reference = {:ph}
	`).Bind(dbx.Params{
		"ref": contractRef,
		"tx":  txRef,
		"id":  agreementID,
		"ph":  models.ClaimPlaceholder(token),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("complete release: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		// The claim was reclaimed as stale while the chain call ran. The
		// reclaimer owns the agreement now.
		return fmt.Errorf("complete release: claim for %s no longer held", agreementID)
	}
	return nil
}

func (s *DBXAgreementStore) RevertClaim(ctx context.Context, agreementID, token string) error {
	_, err := s.app.DB().NewQuery(`
		UPDATE escrow_agreements
		SET contract_reference = '', claimed_at = ''
		WHERE agreement_id = {:id} AND contract_reference = {:ph}
	`).Bind(dbx.Params{
		"id": agreementID,
		"ph": models.ClaimPlaceholder(token),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("revert claim: %w", err)
	}
	return nil
}

func (s *DBXAgreementStore) ConfirmRelease(ctx context.Context, agreementID, txRef string, at time.Time) error {
	_, err := s.app.DB().NewQuery(`
		UPDATE escrow_agreements
		SET release_tx_ref = {:tx}, release_confirmed_at = {:at}
		WHERE agreement_id = {:id} AND release_triggered = 1
	`).Bind(dbx.Params{
		"tx": txRef,
		"at": formatTime(at),
		"id": agreementID,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("confirm release: %w", err)
	}
	return nil
}
