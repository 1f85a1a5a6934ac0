package broadcast

import (
	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// Receiver is one consumer's cursor over the broadcast stream. It is not
// safe for concurrent use.
type Receiver struct {
	buffer       *buffers.AtomicBuffer
	capacity     int32
	mask         int64
	recordOffset int32
	cursor       int64
	nextRecord   int64
	lappedCount  int64
}

// NewReceiver wraps buffer, whose data region length must be a power of
// two. The cursor starts at the current tail.
func NewReceiver(buffer *buffers.AtomicBuffer) (*Receiver, error) {
	capacity, err := checkCapacity(buffer)
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		buffer:   buffer,
		capacity: capacity,
		mask:     int64(capacity) - 1,
	}
	r.cursor = buffer.GetInt64Volatile(capacity + TailCounterOffset)
	r.nextRecord = r.cursor
	r.recordOffset = int32(r.cursor & r.mask)
	return r, nil
}

// Capacity returns the data region length in bytes.
func (r *Receiver) Capacity() int32 { return r.capacity }

// LappedCount returns how many times the transmitter has overrun this
// receiver since creation.
func (r *Receiver) LappedCount() int64 { return r.lappedCount }

// TypeID returns the message type of the record under the cursor.
func (r *Receiver) TypeID() int32 { return r.buffer.GetInt32(typeOffset(r.recordOffset)) }

// Offset returns the payload offset of the record under the cursor.
func (r *Receiver) Offset() int32 { return msgOffset(r.recordOffset) }

// Length returns the payload length of the record under the cursor.
func (r *Receiver) Length() int32 {
	return r.buffer.GetInt32(lengthOffset(r.recordOffset)) - RecordHeaderLength
}

// Buffer returns the underlying broadcast buffer.
func (r *Receiver) Buffer() *buffers.AtomicBuffer { return r.buffer }

// ReceiveNext advances the cursor to the next record, reporting whether one
// is available. When the receiver has been lapped it jumps to the latest
// record and increments LappedCount.
func (r *Receiver) ReceiveNext() bool {
	isAvailable := false
	tail := r.buffer.GetInt64Volatile(r.capacity + TailCounterOffset)
	cursor := r.nextRecord

	if tail > cursor {
		recordOffset := int32(cursor & r.mask)

		if !r.Validate(cursor) {
			r.lappedCount++
			cursor = r.buffer.GetInt64(r.capacity + LatestCounterOffset)
			recordOffset = int32(cursor & r.mask)
		}

		r.cursor = cursor
		r.nextRecord = cursor + int64(bits.Align(r.buffer.GetInt32(lengthOffset(recordOffset)), RecordAlignment))

		if PaddingMsgTypeID == r.buffer.GetInt32(typeOffset(recordOffset)) {
			r.recordOffset = 0
			r.cursor = r.nextRecord
			r.nextRecord += int64(bits.Align(r.buffer.GetInt32(lengthOffset(0)), RecordAlignment))
		} else {
			r.recordOffset = recordOffset
		}

		isAvailable = true
	}

	return isAvailable
}

// Validate confirms that the record read at cursor was not overwritten while
// being consumed. It acquire-loads the tail intent so the check orders after
// the payload copy.
func (r *Receiver) Validate(cursor int64) bool {
	return cursor+int64(r.capacity) > r.buffer.GetInt64Volatile(r.capacity+TailIntentCounterOffset)
}
