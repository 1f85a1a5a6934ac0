package broadcast

import (
	"fmt"

	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// Trailer slot offsets relative to the end of the data region. The tail
// intent counter is advanced before a record is written and the tail counter
// after, bracketing the write so receivers can detect being lapped.
const (
	TailIntentCounterOffset = 0
	TailCounterOffset       = 8
	LatestCounterOffset     = 16

	// TrailerLength is the space reserved after the data region.
	TrailerLength = 2 * bits.CacheLineLength
)

// Record layout: [length i32 | typeId i32 | payload | padding to alignment].
const (
	RecordHeaderLength = 8
	RecordAlignment    = RecordHeaderLength

	// PaddingMsgTypeID marks a record inserted to skip the buffer tail.
	PaddingMsgTypeID int32 = -1
)

func lengthOffset(recordOffset int32) int32 { return recordOffset }

func typeOffset(recordOffset int32) int32 { return recordOffset + 4 }

func msgOffset(recordOffset int32) int32 { return recordOffset + RecordHeaderLength }

func checkCapacity(buffer *buffers.AtomicBuffer) (int32, error) {
	capacity := buffer.Capacity() - TrailerLength
	if !bits.IsPowerOfTwo(int64(capacity)) {
		return 0, fmt.Errorf("broadcast capacity must be a power of two: %d", capacity)
	}
	return capacity, nil
}
