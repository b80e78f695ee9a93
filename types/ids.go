package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NewTaskID returns an id of the form "bd-" followed by an 8-hex-digit
// nonce.
func NewTaskID() string {
	return "bd-" + hexNonce(4)
}

// NewMemoryID returns an id of the form "mem-" followed by a 16-hex-digit
// nonce.
func NewMemoryID() string {
	return "mem-" + hexNonce(8)
}

// NewToken returns a collision-resistant token suitable for message and
// quality-snapshot ids, which carry no fixed format.
func NewToken() string {
	return uuid.New().String()
}

// hexNonce returns n random bytes hex-encoded. It falls back to a
// uuid-derived nonce if the system RNG is unavailable, which in practice
// never happens but keeps id generation total.
func hexNonce(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		u := uuid.New()
		return fmt.Sprintf("%x", u[:n])
	}
	return hex.EncodeToString(buf)
}
