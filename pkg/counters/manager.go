package counters

import (
	"fmt"

	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// Manager allocates counters in the metadata and values buffers. In
// production the media driver owns allocation; the client library carries a
// Manager for its driver harnesses and tests.
type Manager struct {
	Reader
	highWaterMark int32
	freeList      []int32
}

// NewManager creates a Manager over the two counter buffers.
func NewManager(metadataBuffer, valuesBuffer *buffers.AtomicBuffer) *Manager {
	return &Manager{Reader: Reader{metadataBuffer: metadataBuffer, valuesBuffer: valuesBuffer}}
}

// Allocate claims a counter with the given label and type id, returning its
// id.
func (m *Manager) Allocate(label string, typeID int32) (int32, error) {
	id := m.nextCounterID()
	offset := MetadataOffset(id)
	if offset+MetadataLength > m.metadataBuffer.Capacity() {
		return 0, fmt.Errorf("unable to allocate counter, metadata buffer is full")
	}
	if len(label) > MaxLabelLength {
		return 0, fmt.Errorf("label length %d exceeds max %d", len(label), MaxLabelLength)
	}

	m.metadataBuffer.PutInt32(offset+TypeIDOffset, typeID)
	m.metadataBuffer.SetMemory(offset+KeyOffset, KeyLength, 0)
	m.metadataBuffer.PutStringUTF8(offset+LabelLengthOffset, label)
	m.metadataBuffer.PutInt32Ordered(offset, RecordAllocated)

	return id, nil
}

// Free reclaims a counter id for reuse and zeroes its value slot.
func (m *Manager) Free(counterID int32) {
	m.metadataBuffer.PutInt32Ordered(MetadataOffset(counterID), RecordReclaimed)
	m.valuesBuffer.PutInt64Ordered(CounterOffset(counterID), 0)
	m.freeList = append(m.freeList, counterID)
}

// SetCounterValue publishes a counter value with release ordering.
func (m *Manager) SetCounterValue(counterID int32, value int64) {
	m.valuesBuffer.PutInt64Ordered(CounterOffset(counterID), value)
}

func (m *Manager) nextCounterID() int32 {
	if n := len(m.freeList); n > 0 {
		id := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return id
	}
	id := m.highWaterMark
	m.highWaterMark++
	return id
}
