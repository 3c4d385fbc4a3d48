package credential

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gatepass/internal/status"
	"gatepass/models"
)

// PayloadVersion tags the canonical payload format. Old scans keep verifying
// across format migrations because the tag travels inside the signed bytes.
const PayloadVersion = "GP1"

const fieldSep = "|"

const payloadFields = 7

// Encode produces the canonical byte serialization of the credential fields:
// version|ticket|owner|event|issuedUnix|expiresUnix|nonce. The order and the
// textual form are fixed; the signature covers these exact bytes.
func Encode(f models.CredentialFields) ([]byte, error) {
	if f.Version == "" {
		f.Version = PayloadVersion
	}
	for name, v := range map[string]string{
		"ticket_id": f.TicketID,
		"owner_id":  f.OwnerID,
		"event_id":  f.EventID,
		"nonce":     f.Nonce,
	} {
		if v == "" {
			return nil, fmt.Errorf("%w: empty %s", status.ErrMalformedPayload, name)
		}
		if strings.Contains(v, fieldSep) {
			return nil, fmt.Errorf("%w: %s contains separator", status.ErrMalformedPayload, name)
		}
	}
	if f.IssuedAt.IsZero() || f.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamps", status.ErrMalformedPayload)
	}

	parts := []string{
		f.Version,
		f.TicketID,
		f.OwnerID,
		f.EventID,
		strconv.FormatInt(f.IssuedAt.Unix(), 10),
		strconv.FormatInt(f.ExpiresAt.Unix(), 10),
		f.Nonce,
	}
	return []byte(strings.Join(parts, fieldSep)), nil
}

// Decode parses canonical payload bytes back into credential fields. It
// returns ErrUnsupportedVersion for a recognizable but unknown version tag and
// ErrMalformedPayload for anything else it cannot parse. Decode performs no
// cryptographic checks.
func Decode(b []byte) (models.CredentialFields, error) {
	var f models.CredentialFields

	parts := strings.Split(string(b), fieldSep)
	if len(parts) == 0 || parts[0] == "" {
		return f, fmt.Errorf("%w: empty payload", status.ErrMalformedPayload)
	}
	if parts[0] != PayloadVersion {
		if strings.HasPrefix(parts[0], "GP") {
			return f, fmt.Errorf("%w: %q", status.ErrUnsupportedVersion, parts[0])
		}
		return f, fmt.Errorf("%w: missing version tag", status.ErrMalformedPayload)
	}
	if len(parts) != payloadFields {
		return f, fmt.Errorf("%w: expected %d fields, got %d", status.ErrMalformedPayload, payloadFields, len(parts))
	}

	issued, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return f, fmt.Errorf("%w: bad issued_at", status.ErrMalformedPayload)
	}
	expires, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil {
		return f, fmt.Errorf("%w: bad expires_at", status.ErrMalformedPayload)
	}

	f = models.CredentialFields{
		Version:   parts[0],
		TicketID:  parts[1],
		OwnerID:   parts[2],
		EventID:   parts[3],
		IssuedAt:  time.Unix(issued, 0).UTC(),
		ExpiresAt: time.Unix(expires, 0).UTC(),
		Nonce:     parts[6],
	}
	if f.TicketID == "" || f.OwnerID == "" || f.EventID == "" || f.Nonce == "" {
		return models.CredentialFields{}, fmt.Errorf("%w: empty field", status.ErrMalformedPayload)
	}
	return f, nil
}
