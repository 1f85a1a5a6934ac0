package logbuffer

import (
	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// Header is the metadata view over the frame currently being delivered to a
// fragment handler. A single Header is reused across fragments of a poll
// pass; handlers must not retain it.
type Header struct {
	buffer              *buffers.AtomicBuffer
	offset              int32
	initialTermID       int32
	positionBitsToShift int32
}

// NewHeader creates a Header for a stream with the given initial term id and
// term length.
func NewHeader(initialTermID, termLength int32) *Header {
	return &Header{
		initialTermID:       initialTermID,
		positionBitsToShift: bits.TrailingZeroes(termLength),
	}
}

// Wrap points the header at the frame starting at offset in buffer.
func (h *Header) Wrap(buffer *buffers.AtomicBuffer, offset int32) {
	h.buffer = buffer
	h.offset = offset
}

// Buffer returns the term buffer containing the frame.
func (h *Header) Buffer() *buffers.AtomicBuffer { return h.buffer }

// Offset returns the frame start offset within the term buffer.
func (h *Header) Offset() int32 { return h.offset }

// InitialTermID returns the initial term id of the stream.
func (h *Header) InitialTermID() int32 { return h.initialTermID }

// FrameLength returns the committed frame length.
func (h *Header) FrameLength() int32 {
	return h.buffer.GetInt32(h.offset + FrameLengthFieldOffset)
}

// SessionID returns the frame's session id.
func (h *Header) SessionID() int32 {
	return h.buffer.GetInt32(h.offset + SessionIDFieldOffset)
}

// StreamID returns the frame's stream id.
func (h *Header) StreamID() int32 {
	return h.buffer.GetInt32(h.offset + StreamIDFieldOffset)
}

// TermID returns the frame's term id.
func (h *Header) TermID() int32 {
	return h.buffer.GetInt32(h.offset + TermIDFieldOffset)
}

// TermOffset returns the frame start offset within the term.
func (h *Header) TermOffset() int32 { return h.offset }

// Flags returns the frame's flags byte.
func (h *Header) Flags() uint8 {
	return h.buffer.GetUInt8(h.offset + FlagsFieldOffset)
}

// ReservedValue returns the frame's reserved value field.
func (h *Header) ReservedValue() int64 {
	return h.buffer.GetInt64(h.offset + ReservedValueFieldOffset)
}

// Position returns the stream position at the end of the frame.
func (h *Header) Position() int64 {
	resultingOffset := int64(align(h.FrameLength())) + int64(h.offset)
	return ComputePosition(h.TermID(), 0, h.positionBitsToShift, h.initialTermID) + resultingOffset
}
