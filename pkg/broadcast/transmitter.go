package broadcast

import (
	"fmt"

	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// Transmitter is the single-producer side of the broadcast stream. In
// production the media driver owns it; the client library carries it for its
// driver harnesses and tests.
type Transmitter struct {
	buffer       *buffers.AtomicBuffer
	capacity     int32
	mask         int64
	maxMsgLength int32
}

// NewTransmitter wraps buffer, whose data region length must be a power of
// two.
func NewTransmitter(buffer *buffers.AtomicBuffer) (*Transmitter, error) {
	capacity, err := checkCapacity(buffer)
	if err != nil {
		return nil, err
	}
	return &Transmitter{
		buffer:       buffer,
		capacity:     capacity,
		mask:         int64(capacity) - 1,
		maxMsgLength: capacity / 8,
	}, nil
}

// Capacity returns the data region length in bytes.
func (t *Transmitter) Capacity() int32 { return t.capacity }

// Transmit appends one record to the stream. Older records are overwritten
// unconditionally; slow receivers detect the lap themselves.
func (t *Transmitter) Transmit(msgTypeID int32, srcBuffer *buffers.AtomicBuffer, srcOffset, length int32) error {
	if msgTypeID < 1 {
		return fmt.Errorf("message type id must be positive: %d", msgTypeID)
	}
	if length > t.maxMsgLength {
		return fmt.Errorf("message exceeds max message length: length=%d max=%d", length, t.maxMsgLength)
	}

	currentTail := t.buffer.GetInt64(t.capacity + TailCounterOffset)
	recordOffset := int32(currentTail & t.mask)
	recordLength := length + RecordHeaderLength
	alignedRecordLength := bits.Align(recordLength, RecordAlignment)
	newTail := currentTail + int64(alignedRecordLength)
	toEndOfBuffer := t.capacity - recordOffset

	if toEndOfBuffer < alignedRecordLength {
		t.signalTailIntent(newTail + int64(toEndOfBuffer))
		t.insertPaddingRecord(recordOffset, toEndOfBuffer)

		currentTail += int64(toEndOfBuffer)
		recordOffset = 0
	} else {
		t.signalTailIntent(newTail)
	}

	t.buffer.PutInt32(lengthOffset(recordOffset), recordLength)
	t.buffer.PutInt32(typeOffset(recordOffset), msgTypeID)
	t.buffer.PutBytes(msgOffset(recordOffset), srcBuffer.Data()[srcOffset:srcOffset+length])

	t.buffer.PutInt64(t.capacity+LatestCounterOffset, currentTail)
	t.buffer.PutInt64Ordered(t.capacity+TailCounterOffset, currentTail+int64(alignedRecordLength))

	return nil
}

func (t *Transmitter) signalTailIntent(newTail int64) {
	t.buffer.PutInt64Ordered(t.capacity+TailIntentCounterOffset, newTail)
}

func (t *Transmitter) insertPaddingRecord(recordOffset, length int32) {
	t.buffer.PutInt32(lengthOffset(recordOffset), length)
	t.buffer.PutInt32(typeOffset(recordOffset), PaddingMsgTypeID)
}
