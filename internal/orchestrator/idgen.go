package orchestrator

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator generates unique job ids.
// Interface allows fixed ids in tests.
type IDGenerator interface {
	Generate() string
}

// ULIDGenerator generates ULIDs: 128-bit, time-ordered, URL-safe.
// Sorting job ids sorts them by creation time, which is convenient
// when eyeballing the store.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator creates a ULID generator with monotonic entropy, so
// ids generated within the same millisecond still sort in order.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID string.
// The entropy source is not safe for concurrent use, hence the lock:
// submissions arrive on arbitrary request goroutines.
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}
