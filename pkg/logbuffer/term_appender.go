package logbuffer

import "github.com/aeroipc/aeroipc-go/pkg/buffers"

// Appender outcomes reported via AppendResult.TermOffset.
const (
	// AppenderTripped means the claim crossed the term end and the term must
	// be rotated before retrying.
	AppenderTripped int64 = -1

	// AppenderFailed means the claim landed wholly beyond the term end; a
	// concurrent appender already tripped the rotation.
	AppenderFailed int64 = -2
)

// ReservedValueSupplier fills the reserved value field of a frame header. It
// runs after the payload is written and before the frame is committed.
type ReservedValueSupplier func(termBuffer *buffers.AtomicBuffer, termOffset, length int32) int64

// DefaultReservedValueSupplier writes a zero reserved value.
func DefaultReservedValueSupplier(*buffers.AtomicBuffer, int32, int32) int64 { return 0 }

// AppendResult reports where an append landed.
type AppendResult struct {
	TermOffset int64
	TermID     int32
}

// HeaderWriter stamps frame headers from the log's default header template.
type HeaderWriter struct {
	sessionID int32
	streamID  int32
	flags     uint8
	frameType uint16
	version   uint8
}

// NewHeaderWriter captures the fields of the default frame header template.
func NewHeaderWriter(defaultHeader *buffers.AtomicBuffer) *HeaderWriter {
	return &HeaderWriter{
		sessionID: defaultHeader.GetInt32(SessionIDFieldOffset),
		streamID:  defaultHeader.GetInt32(StreamIDFieldOffset),
		flags:     defaultHeader.GetUInt8(FlagsFieldOffset),
		frameType: defaultHeader.GetUInt16(TypeFieldOffset),
		version:   defaultHeader.GetUInt8(VersionFieldOffset),
	}
}

// Write stamps a header at offset with the frame length negated, claiming
// the range ahead of the payload write. The negative length is release
// stored so a concurrent reader never observes a partially written header.
func (w *HeaderWriter) Write(termBuffer *buffers.AtomicBuffer, offset, length, termID int32) {
	termBuffer.PutInt32Ordered(offset+FrameLengthFieldOffset, -length)
	termBuffer.PutUInt8(offset+VersionFieldOffset, w.version)
	termBuffer.PutUInt8(offset+FlagsFieldOffset, w.flags)
	termBuffer.PutUInt16(offset+TypeFieldOffset, w.frameType)
	termBuffer.PutInt32(offset+TermOffsetFieldOffset, offset)
	termBuffer.PutInt32(offset+SessionIDFieldOffset, w.sessionID)
	termBuffer.PutInt32(offset+StreamIDFieldOffset, w.streamID)
	termBuffer.PutInt32(offset+TermIDFieldOffset, termID)
}

// TermAppender writes frames into one term partition, claiming space by a
// wait-free atomic add on the partition's raw tail counter in the log
// metadata.
type TermAppender struct {
	termBuffer     *buffers.AtomicBuffer
	metaDataBuffer *buffers.AtomicBuffer
	tailOffset     int32
}

// NewTermAppender creates an appender over one partition of a log.
func NewTermAppender(termBuffer, metaDataBuffer *buffers.AtomicBuffer, partitionIndex int32) *TermAppender {
	return &TermAppender{
		termBuffer:     termBuffer,
		metaDataBuffer: metaDataBuffer,
		tailOffset:     TailCounterOffset(partitionIndex),
	}
}

// TermBuffer returns the term partition this appender writes into.
func (a *TermAppender) TermBuffer() *buffers.AtomicBuffer { return a.termBuffer }

// RawTailVolatile reads the partition's raw tail with acquire ordering.
func (a *TermAppender) RawTailVolatile() int64 {
	return a.metaDataBuffer.GetInt64Volatile(a.tailOffset)
}

// SetTailTermID resets the partition tail to the start of the given term.
// Used when rotating a clean partition in for reuse.
func (a *TermAppender) SetTailTermID(termID int32) {
	a.metaDataBuffer.PutInt64(a.tailOffset, int64(termID)<<32)
}

// Claim reserves space for a message of the given payload length and wraps
// bufferClaim around it. The caller commits or aborts the claim.
func (a *TermAppender) Claim(
	result *AppendResult, header *HeaderWriter, length int32, bufferClaim *BufferClaim,
) {
	frameLength := length + DataFrameHeaderLength
	alignedLength := align(frameLength)
	rawTail := a.getAndAddRawTail(alignedLength)
	termOffset := rawTail & 0xFFFFFFFF
	termLength := a.termBuffer.Capacity()

	result.TermID = TermID(rawTail)
	result.TermOffset = termOffset + int64(alignedLength)
	if result.TermOffset > int64(termLength) {
		a.handleEndOfLog(result, int32(termOffset), header, termLength)
		return
	}

	offset := int32(termOffset)
	header.Write(a.termBuffer, offset, frameLength, result.TermID)
	bufferClaim.Wrap(a.termBuffer, offset, frameLength)
}

// AppendUnfragmented writes a whole message as a single frame.
func (a *TermAppender) AppendUnfragmented(
	result *AppendResult,
	header *HeaderWriter,
	srcBuffer *buffers.AtomicBuffer,
	srcOffset, length int32,
	reservedValueSupplier ReservedValueSupplier,
) {
	frameLength := length + DataFrameHeaderLength
	alignedLength := align(frameLength)
	rawTail := a.getAndAddRawTail(alignedLength)
	termOffset := rawTail & 0xFFFFFFFF
	termLength := a.termBuffer.Capacity()

	result.TermID = TermID(rawTail)
	result.TermOffset = termOffset + int64(alignedLength)
	if result.TermOffset > int64(termLength) {
		a.handleEndOfLog(result, int32(termOffset), header, termLength)
		return
	}

	offset := int32(termOffset)
	header.Write(a.termBuffer, offset, frameLength, result.TermID)
	a.termBuffer.PutBytes(offset+DataFrameHeaderLength, srcBuffer.Data()[srcOffset:srcOffset+length])

	reservedValue := reservedValueSupplier(a.termBuffer, offset, frameLength)
	a.termBuffer.PutInt64(offset+ReservedValueFieldOffset, reservedValue)

	FrameLengthOrdered(a.termBuffer, offset, frameLength)
}

// AppendFragmented writes a message larger than maxPayloadLength as a chain
// of BEGIN/END flagged fragments.
func (a *TermAppender) AppendFragmented(
	result *AppendResult,
	header *HeaderWriter,
	srcBuffer *buffers.AtomicBuffer,
	srcOffset, length, maxPayloadLength int32,
	reservedValueSupplier ReservedValueSupplier,
) {
	numMaxPayloads := length / maxPayloadLength
	remainingPayload := length % maxPayloadLength
	lastFrameLength := int32(0)
	if remainingPayload > 0 {
		lastFrameLength = align(remainingPayload + DataFrameHeaderLength)
	}
	requiredLength := numMaxPayloads*(maxPayloadLength+DataFrameHeaderLength) + lastFrameLength

	rawTail := a.getAndAddRawTail(requiredLength)
	termOffset := rawTail & 0xFFFFFFFF
	termLength := a.termBuffer.Capacity()

	result.TermID = TermID(rawTail)
	result.TermOffset = termOffset + int64(requiredLength)
	if result.TermOffset > int64(termLength) {
		a.handleEndOfLog(result, int32(termOffset), header, termLength)
		return
	}

	flags := uint8(BeginFragFlag)
	remaining := length
	offset := int32(termOffset)

	for remaining > 0 {
		bytesToWrite := min(remaining, maxPayloadLength)
		frameLength := bytesToWrite + DataFrameHeaderLength
		alignedLength := align(frameLength)

		header.Write(a.termBuffer, offset, frameLength, result.TermID)
		a.termBuffer.PutBytes(
			offset+DataFrameHeaderLength,
			srcBuffer.Data()[srcOffset+(length-remaining):srcOffset+(length-remaining)+bytesToWrite])

		if remaining <= maxPayloadLength {
			flags |= EndFragFlag
		}
		SetFrameFlags(a.termBuffer, offset, flags)

		reservedValue := reservedValueSupplier(a.termBuffer, offset, frameLength)
		a.termBuffer.PutInt64(offset+ReservedValueFieldOffset, reservedValue)

		FrameLengthOrdered(a.termBuffer, offset, frameLength)

		flags = 0
		offset += alignedLength
		remaining -= bytesToWrite
	}
}

// handleEndOfLog writes the padding frame that fills the term tail when a
// claim trips over the end. Only the appender whose claim straddled the
// boundary writes padding; later claims observe Failed.
func (a *TermAppender) handleEndOfLog(
	result *AppendResult, termOffset int32, header *HeaderWriter, termLength int32,
) {
	result.TermOffset = AppenderFailed

	if termOffset <= termLength {
		result.TermOffset = AppenderTripped

		if termOffset < termLength {
			paddingLength := termLength - termOffset
			header.Write(a.termBuffer, termOffset, paddingLength, result.TermID)
			SetFrameType(a.termBuffer, termOffset, FrameTypePadding)
			FrameLengthOrdered(a.termBuffer, termOffset, paddingLength)
		}
	}
}

func (a *TermAppender) getAndAddRawTail(alignedLength int32) int64 {
	return a.metaDataBuffer.GetAndAddInt64(a.tailOffset, int64(alignedLength))
}
