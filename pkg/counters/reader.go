package counters

import (
	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// Record states in the metadata buffer.
const (
	RecordUnused    int32 = 0
	RecordAllocated int32 = 1
	RecordReclaimed int32 = -1
)

// Layout constants. A value slot is an int64 padded to a cache-line pair; a
// metadata record is state, type id, key, and a length-prefixed label.
const (
	CounterLength = 2 * bits.CacheLineLength

	TypeIDOffset      = 4
	KeyOffset         = 8
	KeyLength         = 2*bits.CacheLineLength - 2*4
	LabelLengthOffset = KeyOffset + KeyLength
	MaxLabelLength    = 2*bits.CacheLineLength - 4

	MetadataLength = LabelLengthOffset + 4 + MaxLabelLength
)

// MetadataFunc receives each allocated counter's id, type, key view, and
// label.
type MetadataFunc func(counterID, typeID int32, key *buffers.AtomicBuffer, label string)

// Reader iterates the counters metadata and values buffers. It is safe to
// use across threads.
type Reader struct {
	metadataBuffer *buffers.AtomicBuffer
	valuesBuffer   *buffers.AtomicBuffer
}

// NewReader creates a Reader over the two counter buffers.
func NewReader(metadataBuffer, valuesBuffer *buffers.AtomicBuffer) *Reader {
	return &Reader{metadataBuffer: metadataBuffer, valuesBuffer: valuesBuffer}
}

// ForEach walks the allocated counters in id order, stopping at the first
// unused record.
func (r *Reader) ForEach(fn MetadataFunc) {
	var id int32

	for i := int32(0); i+MetadataLength <= r.metadataBuffer.Capacity(); i += MetadataLength {
		recordStatus := r.metadataBuffer.GetInt32Volatile(i)
		if recordStatus == RecordUnused {
			break
		}

		if recordStatus == RecordAllocated {
			typeID := r.metadataBuffer.GetInt32(i + TypeIDOffset)
			label := r.metadataBuffer.GetStringUTF8(i + LabelLengthOffset)
			key := r.metadataBuffer.Slice(i+KeyOffset, KeyLength)
			fn(id, typeID, key, label)
		}

		id++
	}
}

// CounterValue reads the value of counter id with acquire ordering.
func (r *Reader) CounterValue(id int32) int64 {
	return r.valuesBuffer.GetInt64Volatile(CounterOffset(id))
}

// ValuesBuffer returns the values buffer.
func (r *Reader) ValuesBuffer() *buffers.AtomicBuffer { return r.valuesBuffer }

// CounterOffset returns the byte offset of counter id in the values buffer.
func CounterOffset(counterID int32) int32 { return counterID * CounterLength }

// MetadataOffset returns the byte offset of counter id in the metadata
// buffer.
func MetadataOffset(counterID int32) int32 { return counterID * MetadataLength }
