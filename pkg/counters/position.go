package counters

import "github.com/aeroipc/aeroipc-go/pkg/buffers"

// Position is a single-writer 64-bit counter slot in the values buffer,
// used for subscriber positions and publication limits. Writes are release
// ordered so the peer process observes monotonic progress.
type Position struct {
	buffer *buffers.AtomicBuffer
	offset int32
	id     int32
}

// NewPosition wraps counter id in valuesBuffer.
func NewPosition(valuesBuffer *buffers.AtomicBuffer, counterID int32) *Position {
	return &Position{
		buffer: valuesBuffer,
		offset: CounterOffset(counterID),
		id:     counterID,
	}
}

// ID returns the counter id.
func (p *Position) ID() int32 { return p.id }

// Get reads the counter with plain ordering; only the owning writer should
// use this.
func (p *Position) Get() int64 { return p.buffer.GetInt64(p.offset) }

// GetVolatile reads the counter with acquire ordering.
func (p *Position) GetVolatile() int64 { return p.buffer.GetInt64Volatile(p.offset) }

// SetOrdered publishes a new value with release ordering.
func (p *Position) SetOrdered(value int64) { p.buffer.PutInt64Ordered(p.offset, value) }
