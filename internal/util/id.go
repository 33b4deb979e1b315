package util

import (
	"crypto/rand"
	"encoding/hex"
)

// SessionID returns a 128-bit random identifier for browser sessions.
func SessionID() string {
	return "sess_" + randomHex(16)
}

// RequestID returns a short random identifier for request correlation.
func RequestID() string {
	return randomHex(8)
}

func randomHex(n int) string {
	bytes := make([]byte, n)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
