package clock

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// Real returns the actual current time.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Millis converts t to Unix epoch milliseconds, the unit of every entity timestamp.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// NowMillis reads c in epoch milliseconds.
func NowMillis(c Clock) int64 { return Millis(c.Now()) }

// Stub is a manually advanced clock for tests.
type Stub struct {
	mu  sync.Mutex
	now time.Time
}

// NewStub starts a stub clock at the given epoch milliseconds.
func NewStub(ms int64) *Stub { return &Stub{now: time.UnixMilli(ms)} }

func (s *Stub) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the clock forward by d.
func (s *Stub) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// ULIDGenerator produces lexically sortable ids. Used for connection sessions.
type ULIDGenerator struct{}

func (ULIDGenerator) New() string { return ulid.MustNew(ulid.Now(), rand.Reader).String() }

// UUIDGenerator produces random UUIDs. Used for client-side entity ids.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
