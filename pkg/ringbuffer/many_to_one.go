package ringbuffer

import (
	"errors"
	"fmt"

	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// Trailer slot offsets relative to the end of the data region. Each hot slot
// sits on its own cache-line pair to avoid false sharing between producers
// and the consumer.
const (
	TailPositionOffset       = 2 * bits.CacheLineLength
	HeadCachePositionOffset  = 4 * bits.CacheLineLength
	HeadPositionOffset       = 6 * bits.CacheLineLength
	CorrelationCounterOffset = 8 * bits.CacheLineLength
	ConsumerHeartbeatOffset  = 10 * bits.CacheLineLength

	// TrailerLength is the space reserved after the data region.
	TrailerLength = 12 * bits.CacheLineLength
)

// Record layout: [length i32 | typeId i32 | payload | padding to alignment].
// The two header words are read and written together as one 64-bit value.
const (
	RecordHeaderLength = 8
	RecordAlignment    = RecordHeaderLength

	// PaddingMsgTypeID marks a record inserted to skip the buffer tail.
	PaddingMsgTypeID int32 = -1
)

// InsufficientCapacity is returned by the claim when the ring cannot hold
// the record without overrunning the consumer.
const InsufficientCapacity int32 = -2

// ErrMessageTooLarge reports a write exceeding the ring's maximum message
// length (capacity/8). This is a caller bug.
var ErrMessageTooLarge = errors.New("message exceeds max message length")

// ErrInvalidMsgTypeID reports a non-positive message type id.
var ErrInvalidMsgTypeID = errors.New("message type id must be positive")

func makeHeader(length, msgTypeID int32) int64 {
	return int64(msgTypeID)<<32 | int64(uint32(length))
}

func recordLengthFromHeader(header int64) int32 { return int32(header) }

func messageTypeIDFromHeader(header int64) int32 { return int32(header >> 32) }

// MessageHandler consumes one record from the ring.
type MessageHandler func(msgTypeID int32, buffer *buffers.AtomicBuffer, offset, length int32)

// ManyToOneRingBuffer is a lock-free multi-producer single-consumer ring
// over an AtomicBuffer whose data region length is a power of two.
type ManyToOneRingBuffer struct {
	buffer           *buffers.AtomicBuffer
	capacity         int32
	maxMsgLength     int32
	tailPositionIdx  int32
	headCacheIdx     int32
	headPositionIdx  int32
	correlationIdx   int32
	consumerHeartIdx int32
}

// NewManyToOneRingBuffer wraps buffer, whose length must be a power of two
// plus TrailerLength.
func NewManyToOneRingBuffer(buffer *buffers.AtomicBuffer) (*ManyToOneRingBuffer, error) {
	capacity := buffer.Capacity() - TrailerLength
	if !bits.IsPowerOfTwo(int64(capacity)) {
		return nil, fmt.Errorf("ring capacity must be a power of two: %d", capacity)
	}

	return &ManyToOneRingBuffer{
		buffer:           buffer,
		capacity:         capacity,
		maxMsgLength:     capacity / 8,
		tailPositionIdx:  capacity + TailPositionOffset,
		headCacheIdx:     capacity + HeadCachePositionOffset,
		headPositionIdx:  capacity + HeadPositionOffset,
		correlationIdx:   capacity + CorrelationCounterOffset,
		consumerHeartIdx: capacity + ConsumerHeartbeatOffset,
	}, nil
}

// Capacity returns the data region length in bytes.
func (r *ManyToOneRingBuffer) Capacity() int32 { return r.capacity }

// MaxMsgLength returns the largest payload accepted by Write.
func (r *ManyToOneRingBuffer) MaxMsgLength() int32 { return r.maxMsgLength }

// Write copies a record onto the ring. It returns false when there is
// insufficient capacity (back pressure from the consumer) and an error only
// for caller bugs.
func (r *ManyToOneRingBuffer) Write(msgTypeID int32, srcBuffer *buffers.AtomicBuffer, srcOffset, length int32) (bool, error) {
	if msgTypeID < 1 {
		return false, ErrInvalidMsgTypeID
	}
	if length > r.maxMsgLength {
		return false, fmt.Errorf("%w: length=%d max=%d", ErrMessageTooLarge, length, r.maxMsgLength)
	}

	recordLength := length + RecordHeaderLength
	requiredCapacity := bits.Align(recordLength, RecordAlignment)
	recordIndex := r.claimCapacity(requiredCapacity)
	if recordIndex == InsufficientCapacity {
		return false, nil
	}

	r.buffer.PutInt64Ordered(recordIndex, makeHeader(-recordLength, msgTypeID))
	r.buffer.PutBytes(encodedMsgOffset(recordIndex), srcBuffer.Data()[srcOffset:srcOffset+length])
	r.buffer.PutInt32Ordered(recordIndex, recordLength)

	return true, nil
}

// Read consumes up to messageCountLimit records, invoking handler for each.
// Consumed bytes are zeroed and the head is published with a release store.
func (r *ManyToOneRingBuffer) Read(handler MessageHandler, messageCountLimit int) int {
	head := r.buffer.GetInt64(r.headPositionIdx)
	headIndex := int32(head) & (r.capacity - 1)
	contiguousBlockLength := r.capacity - headIndex

	messagesRead := 0
	bytesRead := int32(0)

	defer func() {
		if bytesRead != 0 {
			r.buffer.SetMemory(headIndex, bytesRead, 0)
			r.buffer.PutInt64Ordered(r.headPositionIdx, head+int64(bytesRead))
		}
	}()

	for bytesRead < contiguousBlockLength && messagesRead < messageCountLimit {
		recordIndex := headIndex + bytesRead
		header := r.buffer.GetInt64Volatile(recordIndex)

		recordLength := recordLengthFromHeader(header)
		if recordLength <= 0 {
			break
		}

		bytesRead += bits.Align(recordLength, RecordAlignment)

		msgTypeID := messageTypeIDFromHeader(header)
		if msgTypeID == PaddingMsgTypeID {
			continue
		}

		messagesRead++
		handler(msgTypeID, r.buffer, encodedMsgOffset(recordIndex), recordLength-RecordHeaderLength)
	}

	return messagesRead
}

// NextCorrelationID atomically draws the next correlation id from the
// trailer counter shared by all clients of the driver.
func (r *ManyToOneRingBuffer) NextCorrelationID() int64 {
	return r.buffer.GetAndAddInt64(r.correlationIdx, 1)
}

// ConsumerHeartbeatTime reads the consumer heartbeat timestamp written by
// the driver.
func (r *ManyToOneRingBuffer) ConsumerHeartbeatTime() int64 {
	return r.buffer.GetInt64Volatile(r.consumerHeartIdx)
}

// SetConsumerHeartbeatTime publishes the consumer heartbeat timestamp. Only
// the consumer side calls this.
func (r *ManyToOneRingBuffer) SetConsumerHeartbeatTime(value int64) {
	r.buffer.PutInt64Ordered(r.consumerHeartIdx, value)
}

func encodedMsgOffset(recordIndex int32) int32 { return recordIndex + RecordHeaderLength }

// claimCapacity reserves requiredCapacity bytes by CAS on the tail,
// inserting a padding record when the claim would straddle the buffer end.
func (r *ManyToOneRingBuffer) claimCapacity(requiredCapacity int32) int32 {
	mask := r.capacity - 1
	head := r.buffer.GetInt64Volatile(r.headCacheIdx)

	var tail int64
	var tailIndex int32
	var padding int32

	for {
		tail = r.buffer.GetInt64Volatile(r.tailPositionIdx)
		availableCapacity := r.capacity - int32(tail-head)

		if requiredCapacity > availableCapacity {
			head = r.buffer.GetInt64Volatile(r.headPositionIdx)
			if requiredCapacity > r.capacity-int32(tail-head) {
				return InsufficientCapacity
			}
			r.buffer.PutInt64Ordered(r.headCacheIdx, head)
		}

		padding = 0
		tailIndex = int32(tail) & mask
		toBufferEndLength := r.capacity - tailIndex

		if requiredCapacity > toBufferEndLength {
			headIndex := int32(head) & mask

			if requiredCapacity > headIndex {
				head = r.buffer.GetInt64Volatile(r.headPositionIdx)
				headIndex = int32(head) & mask
				if requiredCapacity > headIndex {
					return InsufficientCapacity
				}
				r.buffer.PutInt64Ordered(r.headCacheIdx, head)
			}

			padding = toBufferEndLength
		}

		if r.buffer.CompareAndSetInt64(r.tailPositionIdx, tail, tail+int64(requiredCapacity)+int64(padding)) {
			break
		}
	}

	if padding != 0 {
		r.buffer.PutInt64Ordered(tailIndex, makeHeader(padding, PaddingMsgTypeID))
		tailIndex = 0
	}

	return tailIndex
}
