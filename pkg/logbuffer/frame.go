package logbuffer

import (
	"fmt"

	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// Data frame header layout. All fields little-endian, the full header is 32
// bytes and frames are aligned to FrameAlignment.
//
//	0                   1                   2                   3
//	+---------------------------------------------------------------+
//	|                         Frame Length                          |
//	+---------------+---------------+-------------------------------+
//	|    Version    |     Flags     |             Type              |
//	+---------------+---------------+-------------------------------+
//	|                          Term Offset                          |
//	+---------------------------------------------------------------+
//	|                          Session ID                           |
//	+---------------------------------------------------------------+
//	|                          Stream ID                            |
//	+---------------------------------------------------------------+
//	|                           Term ID                             |
//	+---------------------------------------------------------------+
//	|                        Reserved Value                         |
//	|                                                               |
//	+---------------------------------------------------------------+
const (
	FrameLengthFieldOffset   = 0
	VersionFieldOffset       = 4
	FlagsFieldOffset         = 5
	TypeFieldOffset          = 6
	TermOffsetFieldOffset    = 8
	SessionIDFieldOffset     = 12
	StreamIDFieldOffset      = 16
	TermIDFieldOffset        = 20
	ReservedValueFieldOffset = 24

	// DataFrameHeaderLength is the full length of a data frame header.
	DataFrameHeaderLength = 32

	// FrameAlignment is the byte alignment of every frame in a term.
	FrameAlignment = 32

	CurrentVersion = 0
)

// Frame types.
const (
	FrameTypePadding = 0x00
	FrameTypeData    = 0x01
	FrameTypeSetup   = 0x05
)

// Frame flags.
const (
	BeginFragFlag    = 0x80
	EndFragFlag      = 0x40
	UnfragmentedFlag = BeginFragFlag | EndFragFlag
)

// FrameLengthVolatile reads the frame length at frameOffset with acquire
// ordering. A non-positive result means the frame has not been committed.
func FrameLengthVolatile(termBuffer *buffers.AtomicBuffer, frameOffset int32) int32 {
	return termBuffer.GetInt32Volatile(frameOffset + FrameLengthFieldOffset)
}

// FrameLengthOrdered commits a frame by writing its length with release
// ordering. This must be the last store of the frame.
func FrameLengthOrdered(termBuffer *buffers.AtomicBuffer, frameOffset, frameLength int32) {
	termBuffer.PutInt32Ordered(frameOffset+FrameLengthFieldOffset, frameLength)
}

// FrameType returns the type field of the frame at frameOffset.
func FrameType(termBuffer *buffers.AtomicBuffer, frameOffset int32) uint16 {
	return termBuffer.GetUInt16(frameOffset + TypeFieldOffset)
}

// SetFrameType writes the type field of the frame at frameOffset.
func SetFrameType(termBuffer *buffers.AtomicBuffer, frameOffset int32, frameType uint16) {
	termBuffer.PutUInt16(frameOffset+TypeFieldOffset, frameType)
}

// IsPaddingFrame reports whether the frame at frameOffset is padding.
func IsPaddingFrame(termBuffer *buffers.AtomicBuffer, frameOffset int32) bool {
	return FrameType(termBuffer, frameOffset) == FrameTypePadding
}

// FrameFlags returns the flags byte of the frame at frameOffset.
func FrameFlags(termBuffer *buffers.AtomicBuffer, frameOffset int32) uint8 {
	return termBuffer.GetUInt8(frameOffset + FlagsFieldOffset)
}

// SetFrameFlags writes the flags byte of the frame at frameOffset.
func SetFrameFlags(termBuffer *buffers.AtomicBuffer, frameOffset int32, flags uint8) {
	termBuffer.PutUInt8(frameOffset+FlagsFieldOffset, flags)
}

// ComputeMaxMessageLength returns the largest message that may be offered for
// the given term length.
func ComputeMaxMessageLength(termLength int32) int32 {
	return termLength / 8
}

// CheckFrame validates a committed frame's invariants against the term it
// lives in.
func CheckFrame(termBuffer *buffers.AtomicBuffer, frameOffset int32) error {
	frameLength := FrameLengthVolatile(termBuffer, frameOffset)
	if frameLength < DataFrameHeaderLength {
		return fmt.Errorf("frame length %d below header length at offset %d", frameLength, frameOffset)
	}
	if frameLength > termBuffer.Capacity()-frameOffset {
		return fmt.Errorf("frame length %d overruns term at offset %d", frameLength, frameOffset)
	}
	return nil
}

// align is a convenience over bits.Align for frame lengths.
func align(length int32) int32 {
	return bits.Align(length, FrameAlignment)
}
