package logbuffer

import "github.com/aeroipc/aeroipc-go/pkg/buffers"

// BufferClaim represents a claimed range in a term into which a message can
// be written directly. Commit publishes the frame; Abort turns the claimed
// range into padding so the stream stays scannable.
type BufferClaim struct {
	buffer      *buffers.AtomicBuffer
	frameOffset int32
	frameLength int32
}

// Wrap points the claim at a freshly claimed frame.
func (c *BufferClaim) Wrap(termBuffer *buffers.AtomicBuffer, frameOffset, frameLength int32) {
	c.buffer = termBuffer
	c.frameOffset = frameOffset
	c.frameLength = frameLength
}

// Buffer returns the term buffer holding the claimed frame.
func (c *BufferClaim) Buffer() *buffers.AtomicBuffer { return c.buffer }

// Offset returns the offset at which the message payload begins.
func (c *BufferClaim) Offset() int32 { return c.frameOffset + DataFrameHeaderLength }

// Length returns the payload length of the claimed range.
func (c *BufferClaim) Length() int32 { return c.frameLength - DataFrameHeaderLength }

// Commit publishes the claimed frame with a release store on its length.
func (c *BufferClaim) Commit() {
	FrameLengthOrdered(c.buffer, c.frameOffset, c.frameLength)
}

// Abort marks the claimed range as padding and publishes it, so consumers
// skip over the unused frame.
func (c *BufferClaim) Abort() {
	SetFrameType(c.buffer, c.frameOffset, FrameTypePadding)
	FrameLengthOrdered(c.buffer, c.frameOffset, c.frameLength)
}
