// Package session provides storage backends for browser sessions. A session
// remembers which coder the browser acts as and carries flash messages
// across the redirect after a form post.
package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found or expired")

// Flash is a one-shot notice rendered on the next page load.
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Data holds the state stored for each session
type Data struct {
	CoderID   string    `json:"coder_id"`
	Flashes   []Flash   `json:"flashes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
