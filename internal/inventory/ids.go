package inventory

import (
	"github.com/google/uuid"
)

const (
	codeLength   = 8
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// maxCodeAttempts bounds regeneration on primary-key collisions.
	maxCodeAttempts = 5
)

// NewCode mints an 8-character uppercase alphanumeric identifier.
func NewCode() string {
	// bytes 6 and 8 carry the version and variant bits
	u := uuid.New()
	src := [codeLength]byte{u[0], u[1], u[2], u[3], u[4], u[5], u[10], u[11]}
	var out [codeLength]byte
	for i, b := range src {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out[:])
}
