package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier for entity keys.
// ULIDs sort by creation time, which keeps index pages warm on insert.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IsValid reports whether s parses as a ULID. Handlers use it to reject
// malformed path identifiers before touching the store.
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
