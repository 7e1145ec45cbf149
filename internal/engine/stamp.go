package engine

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator generates query ids for log correlation.
// Implemented by UUIDv7Generator (production) and
// testutil.FixedIDGenerator (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 query ids, so ids in
// logs sort by the time their query started.
type UUIDv7Generator struct{}

// NewID returns a hyphenated UUIDv7. It panics only if the system's
// random source fails.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Clock hands out the logical sequence numbers the engine stamps on
// every Select, Exec and Load. The first stamp is 1. Safe for concurrent
// use.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock that has issued nothing yet.
func NewClock() *Clock {
	return &Clock{}
}

// Next issues the next sequence number.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current returns the last number issued, or 0.
func (c *Clock) Current() int64 {
	return c.last.Load()
}

// Stamp identifies one engine operation: a query id for correlation and
// its position on the engine's clock.
type Stamp struct {
	QueryID string
	Seq     int64
}

// attrs prefixes kv with the stamp's slog attributes.
func (s Stamp) attrs(kv ...any) []any {
	return append([]any{"query_id", s.QueryID, "seq", s.Seq}, kv...)
}

func (e *Engine) stamp() Stamp {
	return Stamp{QueryID: e.ids.NewID(), Seq: e.clock.Next()}
}
