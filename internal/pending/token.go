package pending

import (
	"crypto/rand"
	"encoding/hex"
)

// newToken returns an unguessable lookup token. 16 random bytes hex-encoded
// gives 128 bits, which is plenty for a short-lived single-use link.
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
