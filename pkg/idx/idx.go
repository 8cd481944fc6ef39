// Package idx mints ULID row identifiers. IDs are lexicographically sortable
// by creation time, which keeps index pages warm for the recently issued
// codes and tokens that dominate lookups.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh ULID using the current UTC time and a process-wide
// monotonic entropy source, safe for concurrent use.
func New() string {
	return NewAt(time.Now().UTC())
}

// NewAt mints a ULID for the given time. Exposed for tests and cursors.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Parse validates s as a canonical ULID and returns it trimmed.
func Parse(s string) (string, error) {
	s = strings.TrimSpace(s)
	if _, err := ulid.ParseStrict(s); err != nil {
		return "", ErrInvalid
	}
	return s, nil
}
