package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"gatepass/internal/credential"
	"gatepass/internal/status"
	"gatepass/internal/store"
	"gatepass/models"
	"gatepass/monitoring"
)

// ScanService validates scanned credentials at the venue gate. The durable
// ledger's unique constraint is the replay guard; the Redis entries it writes
// are a read-side shortcut and a source for the ops dashboard, never the
// authority.
type ScanService struct {
	Redis  *redis.Client
	PubNub *pubnub.PubNub

	signer   credential.Signer
	ledger   store.ScanLedger
	cacheTTL time.Duration

	now func() time.Time
}

func NewScanService(redisClient *redis.Client, pn *pubnub.PubNub, signer credential.Signer, ledger store.ScanLedger, cacheTTL time.Duration) *ScanService {
	return &ScanService{
		Redis:    redisClient,
		PubNub:   pn,
		signer:   signer,
		ledger:   ledger,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func scanCacheKey(ticketID, nonce string) string {
	return fmt.Sprintf("scan:%s:%s", ticketID, nonce)
}

// Scan runs the verification state machine for one scanned token: decode,
// verify signature, check expiry, then atomically consume the (ticket, nonce)
// pair. Exactly one concurrent scan of the same credential gets Accepted;
// the rest get AlreadyUsed with the original scan time.
func (s *ScanService) Scan(ctx context.Context, token, scannedBy string) (*models.VerificationResult, error) {
	started := s.now()

	result, err := s.scan(ctx, token, scannedBy)
	if err != nil {
		return nil, err
	}

	monitoring.TrackScan(result.EventID, string(result.Status), s.now().Sub(started))
	return result, nil
}

func (s *ScanService) scan(ctx context.Context, token, scannedBy string) (*models.VerificationResult, error) {
	payload, sig, err := credential.SplitToken(token)
	if err != nil {
		return invalidResult(err), nil
	}

	fields, err := credential.Decode(payload)
	if err != nil {
		if errors.Is(err, status.ErrUnsupportedVersion) {
			return &models.VerificationResult{Status: models.ScanInvalid, Reason: "unsupported credential version"}, nil
		}
		return invalidResult(err), nil
	}

	if !s.signer.Verify(payload, sig) {
		slog.Warn("forged credential rejected",
			"ticketID", fields.TicketID,
			"eventID", fields.EventID,
			"scannedBy", scannedBy,
		)
		return &models.VerificationResult{
			Status:   models.ScanForged,
			TicketID: fields.TicketID,
			EventID:  fields.EventID,
			Reason:   "signature mismatch",
		}, nil
	}

	now := s.now()
	if now.After(fields.ExpiresAt) {
		return &models.VerificationResult{
			Status:   models.ScanExpired,
			TicketID: fields.TicketID,
			OwnerID:  fields.OwnerID,
			EventID:  fields.EventID,
			Reason:   "credential expired, re-issue required",
		}, nil
	}

	// Fast path: a cached consumption means we can answer AlreadyUsed
	// without touching the ledger. Cache misses and Redis errors fall
	// through to the authoritative insert.
	if cached := s.cachedRecord(ctx, fields.TicketID, fields.Nonce); cached != nil {
		return alreadyUsedResult(fields, cached), nil
	}

	rec := &models.ScanRecord{
		TicketID:  fields.TicketID,
		Nonce:     fields.Nonce,
		EventID:   fields.EventID,
		ScannedBy: scannedBy,
		ScannedAt: now.Truncate(time.Second).UTC(),
	}

	inserted, existing, err := s.ledger.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}

	if !inserted {
		s.cacheRecord(ctx, existing)
		return alreadyUsedResult(fields, existing), nil
	}

	s.cacheRecord(ctx, rec)
	s.countAccepted(ctx, fields.EventID)
	s.notifyScanned(fields, rec)

	return &models.VerificationResult{
		Status:    models.ScanAccepted,
		TicketID:  fields.TicketID,
		OwnerID:   fields.OwnerID,
		EventID:   fields.EventID,
		ScannedAt: rec.ScannedAt,
	}, nil
}

func invalidResult(err error) *models.VerificationResult {
	return &models.VerificationResult{Status: models.ScanInvalid, Reason: err.Error()}
}

func alreadyUsedResult(fields models.CredentialFields, first *models.ScanRecord) *models.VerificationResult {
	return &models.VerificationResult{
		Status:    models.ScanAlreadyUsed,
		TicketID:  fields.TicketID,
		OwnerID:   fields.OwnerID,
		EventID:   fields.EventID,
		FirstScan: first,
		Reason:    "credential already consumed",
	}
}

func (s *ScanService) cachedRecord(ctx context.Context, ticketID, nonce string) *models.ScanRecord {
	if s.Redis == nil {
		return nil
	}

	data, err := s.Redis.HGetAll(ctx, scanCacheKey(ticketID, nonce)).Result()
	if err != nil || len(data) == 0 {
		return nil
	}

	scannedAt, err := time.Parse(time.RFC3339, data["scanned_at"])
	if err != nil {
		return nil
	}

	return &models.ScanRecord{
		TicketID:  ticketID,
		Nonce:     nonce,
		EventID:   data["event_id"],
		ScannedBy: data["scanned_by"],
		ScannedAt: scannedAt,
	}
}

func (s *ScanService) cacheRecord(ctx context.Context, rec *models.ScanRecord) {
	if s.Redis == nil || rec == nil {
		return
	}

	key := scanCacheKey(rec.TicketID, rec.Nonce)
	s.Redis.HSet(ctx, key, map[string]any{
		"event_id":   rec.EventID,
		"scanned_by": rec.ScannedBy,
		"scanned_at": rec.ScannedAt.Format(time.RFC3339),
	})
	s.Redis.Expire(ctx, key, s.cacheTTL)
}

func (s *ScanService) countAccepted(ctx context.Context, eventID string) {
	if s.Redis == nil {
		return
	}
	s.Redis.Incr(ctx, fmt.Sprintf("scans:accepted:%s", eventID))
}

func (s *ScanService) notifyScanned(fields models.CredentialFields, rec *models.ScanRecord) {
	if s.PubNub == nil {
		return
	}

	channel := fmt.Sprintf("event-%s", fields.EventID)
	s.PubNub.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":       "ticket_scanned",
			"ticket_id":  fields.TicketID,
			"scanned_by": rec.ScannedBy,
			"scanned_at": rec.ScannedAt.Format(time.RFC3339),
		}).
		Execute()
}
