package aero

import (
	"fmt"
	"sync/atomic"

	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/counters"
	"github.com/aeroipc/aeroipc-go/pkg/logbuffer"
)

// ControlledPollAction is returned by a ControlledFragmentHandler to steer
// the poll.
type ControlledPollAction int

const (
	// ActionAbort aborts the poll and does not advance the position for the
	// current fragment.
	ActionAbort ControlledPollAction = iota + 1

	// ActionBreak stops the poll after committing the position at the end of
	// the current fragment.
	ActionBreak

	// ActionCommit continues the poll, publishing the position at the end of
	// the current fragment immediately for fine-grained flow control.
	ActionCommit

	// ActionContinue continues the poll, committing the position only at the
	// end of the pass.
	ActionContinue
)

// ControlledFragmentHandler consumes one fragment and returns the action to
// take with regard to the stream position.
type ControlledFragmentHandler func(buffer *buffers.AtomicBuffer, offset, length int32, header *logbuffer.Header) ControlledPollAction

// BlockHandler consumes a contiguous range of committed frames.
type BlockHandler func(buffer *buffers.AtomicBuffer, offset, length, sessionID, termID int32)

// Image is the consumer-side view of one publisher's stream within a
// subscription. It reads committed frames directly from the shared term
// buffers and publishes its progress through the subscriber position
// counter so the driver can observe it.
//
// At most one poll may be in progress on an Image at a time; sharing an
// Image across goroutines requires external coordination.
type Image struct {
	termBuffers         [logbuffer.PartitionCount]*buffers.AtomicBuffer
	header              *logbuffer.Header
	subscriberPosition  *counters.Position
	logBuffers          *LogBuffers
	sourceIdentity      string
	errorHandler        logbuffer.ErrorHandler
	correlationID       int64
	subscriptionRegID   int64
	sessionID           int32
	termLengthMask      int32
	positionBitsToShift int32
	isClosed            atomic.Bool
}

// newImage wires an Image over a mapped log. The subscriber position
// counter already carries the joining position written by the driver.
func newImage(
	sessionID int32,
	correlationID int64,
	subscriptionRegistrationID int64,
	sourceIdentity string,
	subscriberPosition *counters.Position,
	logBuffers *LogBuffers,
	errorHandler logbuffer.ErrorHandler,
) *Image {
	img := &Image{
		subscriberPosition: subscriberPosition,
		logBuffers:         logBuffers,
		sourceIdentity:     sourceIdentity,
		errorHandler:       errorHandler,
		correlationID:      correlationID,
		subscriptionRegID:  subscriptionRegistrationID,
		sessionID:          sessionID,
	}

	for i := int32(0); i < logbuffer.PartitionCount; i++ {
		img.termBuffers[i] = logBuffers.TermBuffer(i)
	}

	capacity := img.termBuffers[0].Capacity()
	img.termLengthMask = capacity - 1
	img.positionBitsToShift = bits.TrailingZeroes(capacity)
	img.header = logbuffer.NewHeader(
		logbuffer.InitialTermID(logBuffers.MetaDataBuffer()), capacity)

	return img
}

// SessionID identifies the publisher of this stream.
func (i *Image) SessionID() int32 { return i.sessionID }

// CorrelationID is the driver-assigned identity of this image.
func (i *Image) CorrelationID() int64 { return i.correlationID }

// SubscriptionRegistrationID identifies the owning subscription.
func (i *Image) SubscriptionRegistrationID() int64 { return i.subscriptionRegID }

// SourceIdentity describes the sending publisher in media-specific terms.
func (i *Image) SourceIdentity() string { return i.sourceIdentity }

// TermBufferLength returns the length of each term partition.
func (i *Image) TermBufferLength() int32 { return i.termLengthMask + 1 }

// InitialTermID returns the term id at which the stream started.
func (i *Image) InitialTermID() int32 { return i.header.InitialTermID() }

// IsClosed reports whether the image has been closed.
func (i *Image) IsClosed() bool { return i.isClosed.Load() }

// Position returns the position this image has been consumed to, or Closed.
func (i *Image) Position() int64 {
	if i.IsClosed() {
		return int64(Closed)
	}
	return i.subscriberPosition.Get()
}

// Poll delivers up to fragmentLimit committed fragments to handler and
// advances the subscriber position at the end of the pass. Returns the
// number of fragments consumed, or Closed.
func (i *Image) Poll(handler logbuffer.FragmentHandler, fragmentLimit int) int {
	if i.IsClosed() {
		return Closed
	}

	position := i.subscriberPosition.Get()
	termOffset := int32(position) & i.termLengthMask
	termBuffer := i.termBuffers[logbuffer.IndexByPosition(position, i.positionBitsToShift)]

	var outcome logbuffer.ReadOutcome
	logbuffer.TermRead(&outcome, termBuffer, termOffset, handler, fragmentLimit, i.header, i.errorHandler)

	newPosition := position + int64(outcome.Offset-termOffset)
	if newPosition > position {
		i.subscriberPosition.SetOrdered(newPosition)
	}

	return outcome.FragmentsRead
}

// ControlledPoll delivers up to fragmentLimit committed fragments, letting
// the handler steer position commits per fragment. Returns the number of
// fragments consumed, or Closed.
//
// A handler panic is routed to the error handler and the position still
// advances past the faulting frame, matching the basic poll's liveness
// guarantee.
func (i *Image) ControlledPoll(handler ControlledFragmentHandler, fragmentLimit int) int {
	if i.IsClosed() {
		return Closed
	}

	position := i.subscriberPosition.Get()
	termOffset := int32(position) & i.termLengthMask
	termBuffer := i.termBuffers[logbuffer.IndexByPosition(position, i.positionBitsToShift)]
	capacity := termBuffer.Capacity()

	fragmentsRead := 0
	offset := termOffset

	for fragmentsRead < fragmentLimit && offset < capacity {
		frameLength := logbuffer.FrameLengthVolatile(termBuffer, offset)
		if frameLength <= 0 {
			break
		}

		frameOffset := offset
		alignedLength := bits.Align(frameLength, logbuffer.FrameAlignment)
		offset += alignedLength

		if logbuffer.IsPaddingFrame(termBuffer, frameOffset) {
			continue
		}

		action := i.invokeControlledHandler(handler, termBuffer, frameOffset, frameLength)
		fragmentsRead++

		if action == ActionBreak {
			break
		}
		if action == ActionAbort {
			fragmentsRead--
			offset = frameOffset
			break
		}
		if action == ActionCommit {
			position += int64(offset - termOffset)
			termOffset = offset
			i.subscriberPosition.SetOrdered(position)
		}
	}

	newPosition := position + int64(offset-termOffset)
	if newPosition > position {
		i.subscriberPosition.SetOrdered(newPosition)
	}

	return fragmentsRead
}

// invokeControlledHandler wraps the handler so a panic is reported and the
// faulting frame is treated as consumed.
func (i *Image) invokeControlledHandler(
	handler ControlledFragmentHandler,
	termBuffer *buffers.AtomicBuffer,
	frameOffset, frameLength int32,
) (action ControlledPollAction) {
	action = ActionContinue
	defer func() {
		if r := recover(); r != nil {
			i.errorHandler(fmt.Errorf("controlled fragment handler: %v", r))
		}
	}()

	i.header.Wrap(termBuffer, frameOffset)
	return handler(termBuffer, frameOffset+logbuffer.DataFrameHeaderLength,
		frameLength-logbuffer.DataFrameHeaderLength, i.header)
}

// BlockPoll delivers one contiguous range of committed frames ending on a
// frame boundary, never spanning partitions or padding. The subscriber
// position advances by exactly the consumed byte count; a leading padding
// frame is consumed silently so the poll rotates to the next partition.
// Returns the number of bytes consumed, or Closed.
func (i *Image) BlockPoll(handler BlockHandler, blockLengthLimit int32) int {
	if i.IsClosed() {
		return Closed
	}

	position := i.subscriberPosition.Get()
	termOffset := int32(position) & i.termLengthMask
	termBuffer := i.termBuffers[logbuffer.IndexByPosition(position, i.positionBitsToShift)]
	limit := min(termOffset+blockLengthLimit, termBuffer.Capacity())

	resultingOffset := logbuffer.BlockScan(termBuffer, termOffset, limit)
	bytesConsumed := resultingOffset - termOffset

	if resultingOffset > termOffset {
		if !logbuffer.IsPaddingFrame(termBuffer, termOffset) {
			termID := termBuffer.GetInt32(termOffset + logbuffer.TermIDFieldOffset)
			i.invokeBlockHandler(handler, termBuffer, termOffset, bytesConsumed, termID)
		}
		i.subscriberPosition.SetOrdered(position + int64(bytesConsumed))
	}

	return int(bytesConsumed)
}

func (i *Image) invokeBlockHandler(
	handler BlockHandler,
	termBuffer *buffers.AtomicBuffer,
	offset, length, termID int32,
) {
	defer func() {
		if r := recover(); r != nil {
			i.errorHandler(fmt.Errorf("block handler: %v", r))
		}
	}()
	handler(termBuffer, offset, length, i.sessionID, termID)
}

// close marks the image closed with a release store. Idempotent; invoked
// only by the conductor.
func (i *Image) close() {
	i.isClosed.Store(true)
}
