package cabinet

import (
	"fmt"

	"github.com/google/uuid"
)

// newDocumentID returns a fresh globally unique identifier for a
// document inserted without one. UUIDv7 embeds a millisecond timestamp
// in its most significant bits, so generated keys sort roughly by
// creation time and keep writes clustered at the tail of the ordered
// keyspace.
func newDocumentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source does; nothing sensible
		// to do without entropy.
		panic(fmt.Errorf("generating document id: %w", err))
	}
	return id.String()
}
