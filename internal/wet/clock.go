package wet

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so export output is deterministic in tests.
// Everything time-dependent in a published bundle (header export time, the
// render-time suffix of the base name) must come from a Clock, never from
// time.Now directly.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation (run IDs, staging directory
// names, backup suffixes) so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
