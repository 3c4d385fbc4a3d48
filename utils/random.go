package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// NonceBytes is the size of a credential nonce: 128 bits of entropy, enough
// to make precomputed replay infeasible even for the same ticket.
const NonceBytes = 16

// GenerateNonce returns a fresh credential nonce as lowercase hex.
func GenerateNonce() (string, error) {
	byt := make([]byte, NonceBytes)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return hex.EncodeToString(byt), nil
}

// GenerateCode returns n random bytes as an uppercase hex reference code,
// used for chain request references and claim tokens.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}
