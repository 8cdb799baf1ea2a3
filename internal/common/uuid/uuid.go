// Package uuid wraps github.com/google/uuid with UUIDv7 as the default
// version. Time-ordered ids keep request logs sortable.
package uuid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UUID is an alias of github.com/google/uuid.UUID.
type UUID = uuid.UUID

// New returns a new UUIDv7. Panics if the random source fails.
func New() UUID {
	u, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return u
}

// NewRandom returns a new UUIDv7 and any error from the random source.
func NewRandom() (UUID, error) {
	return uuid.NewV7()
}

// Parse parses s into a UUID.
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// NewRequestID returns a string id for correlating one logical request
// across log lines. Falls back to a timestamp id if UUID generation fails.
func NewRequestID() string {
	u, err := NewRandom()
	if err == nil {
		return u.String()
	}
	return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
}
