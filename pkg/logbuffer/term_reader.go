package logbuffer

import (
	"fmt"

	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// FragmentHandler is called for each message fragment delivered by a poll.
// The buffer is only valid for the duration of the call.
type FragmentHandler func(buffer *buffers.AtomicBuffer, offset, length int32, header *Header)

// ErrorHandler receives faults raised by fragment handlers so that the poll
// loop can keep its liveness.
type ErrorHandler func(err error)

// ReadOutcome carries the result of a TermRead pass.
type ReadOutcome struct {
	FragmentsRead int
	Offset        int32
}

// TermRead consumes committed fragments from termBuffer starting at
// termOffset until fragmentLimit fragments have been delivered, an
// uncommitted frame is reached, or the term end is hit. Padding frames
// advance the offset without being delivered.
//
// A panic raised by the handler is recovered and routed to errorHandler; the
// offset still advances past the faulting frame.
func TermRead(
	outcome *ReadOutcome,
	termBuffer *buffers.AtomicBuffer,
	termOffset int32,
	handler FragmentHandler,
	fragmentLimit int,
	header *Header,
	errorHandler ErrorHandler,
) {
	outcome.FragmentsRead = 0
	outcome.Offset = termOffset
	capacity := termBuffer.Capacity()

	for outcome.FragmentsRead < fragmentLimit && termOffset < capacity {
		frameLength := FrameLengthVolatile(termBuffer, termOffset)
		if frameLength <= 0 {
			break
		}

		frameOffset := termOffset
		termOffset += align(frameLength)
		outcome.Offset = termOffset

		if !IsPaddingFrame(termBuffer, frameOffset) {
			header.Wrap(termBuffer, frameOffset)
			invokeFragmentHandler(handler, termBuffer, frameOffset+DataFrameHeaderLength,
				frameLength-DataFrameHeaderLength, header, errorHandler)
			outcome.FragmentsRead++
		}
	}
}

func invokeFragmentHandler(
	handler FragmentHandler,
	termBuffer *buffers.AtomicBuffer,
	offset, length int32,
	header *Header,
	errorHandler ErrorHandler,
) {
	defer func() {
		if r := recover(); r != nil {
			errorHandler(fmt.Errorf("fragment handler: %v", r))
		}
	}()
	handler(termBuffer, offset, length, header)
}
