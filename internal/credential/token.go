package credential

import (
	"encoding/base64"
	"fmt"
	"strings"

	"gatepass/internal/status"
)

const tokenSep = "."

// AssembleToken packs canonical payload bytes and their signature into the
// compact string embedded in the QR image: base64url(payload).base64url(sig).
func AssembleToken(payload, sig []byte) string {
	return base64.RawURLEncoding.EncodeToString(payload) +
		tokenSep +
		base64.RawURLEncoding.EncodeToString(sig)
}

// SplitToken is the inverse of AssembleToken. It only unwraps the transport
// encoding; payload parsing and signature verification happen elsewhere.
func SplitToken(token string) (payload, sig []byte, err error) {
	head, tail, found := strings.Cut(token, tokenSep)
	if !found {
		return nil, nil, fmt.Errorf("%w: missing signature segment", status.ErrMalformedPayload)
	}
	payload, err = base64.RawURLEncoding.DecodeString(head)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: payload segment: %v", status.ErrMalformedPayload, err)
	}
	sig, err = base64.RawURLEncoding.DecodeString(tail)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: signature segment: %v", status.ErrMalformedPayload, err)
	}
	return payload, sig, nil
}
