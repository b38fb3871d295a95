package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns a caller-generated primary key of the form
// "<prefix>-<unix-ms>", e.g. "sale-1735689600000".
func NewID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixMilli())
}

// NewChildID appends a random fragment for keys minted in a loop, where
// millisecond timestamps alone would collide.
func NewChildID(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}
