// Package idx generates sortable identifiers for stored records.
package idx

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	once    sync.Once
	entropy *ulid.MonotonicEntropy
)

// New returns a new ULID string for the current UTC time. IDs created in the
// same millisecond are strictly increasing.
func New() string {
	return NewAt(time.Now().UTC())
}

// NewAt returns a new ULID string with the given timestamp.
func NewAt(t time.Time) string {
	once.Do(func() {
		entropy = ulid.Monotonic(rand.Reader, 0)
	})

	mu.Lock()
	defer mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
