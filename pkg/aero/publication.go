package aero

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aeroipc/aeroipc-go/pkg/bits"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/counters"
	"github.com/aeroipc/aeroipc-go/pkg/logbuffer"
)

// Publication is the sending handle for one (channel, streamId) endpoint.
// Offers claim space in the active term with a wait-free atomic add on the
// term tail, write the payload, and commit the frame with a release store on
// its length.
//
// Publications are safe to share between offering goroutines.
type Publication struct {
	conductor           *ClientConductor
	logBuffers          *LogBuffers
	logMetaDataBuffer   *buffers.AtomicBuffer
	channel             string
	registrationID      int64
	maxPossiblePosition int64
	streamID            int32
	sessionID           int32
	initialTermID       int32
	maxPayloadLength    int32
	maxMessageLength    int32
	positionBitsToShift int32
	publicationLimit    *counters.Position
	appenders           [logbuffer.PartitionCount]*logbuffer.TermAppender
	headerWriter        *logbuffer.HeaderWriter
	isClosed            atomic.Bool
}

func newPublication(
	conductor *ClientConductor,
	channel string,
	registrationID int64,
	streamID, sessionID int32,
	publicationLimit *counters.Position,
	logBuffers *LogBuffers,
) *Publication {
	metaData := logBuffers.MetaDataBuffer()
	termLength := logBuffers.TermLength()

	p := &Publication{
		conductor:           conductor,
		logBuffers:          logBuffers,
		logMetaDataBuffer:   metaData,
		channel:             channel,
		registrationID:      registrationID,
		streamID:            streamID,
		sessionID:           sessionID,
		initialTermID:       logbuffer.InitialTermID(metaData),
		maxPayloadLength:    logbuffer.MTULength(metaData) - logbuffer.DataFrameHeaderLength,
		maxMessageLength:    logbuffer.ComputeMaxMessageLength(termLength),
		positionBitsToShift: bits.TrailingZeroes(termLength),
		publicationLimit:    publicationLimit,
		headerWriter:        logbuffer.NewHeaderWriter(logbuffer.DefaultFrameHeader(metaData)),
		maxPossiblePosition: int64(termLength) << 31,
	}

	for i := int32(0); i < logbuffer.PartitionCount; i++ {
		p.appenders[i] = logbuffer.NewTermAppender(logBuffers.TermBuffer(i), metaData, i)
	}

	return p
}

// Channel returns the media address of this publication.
func (p *Publication) Channel() string { return p.channel }

// StreamID returns the stream identity within the channel.
func (p *Publication) StreamID() int32 { return p.streamID }

// SessionID identifies this publication instance among publishers of the
// stream.
func (p *Publication) SessionID() int32 { return p.sessionID }

// RegistrationID is the id returned by AddPublication.
func (p *Publication) RegistrationID() int64 { return p.registrationID }

// InitialTermID returns the term id assigned at creation.
func (p *Publication) InitialTermID() int32 { return p.initialTermID }

// TermBufferLength returns the length of each term partition.
func (p *Publication) TermBufferLength() int32 {
	return p.appenders[0].TermBuffer().Capacity()
}

// MaxMessageLength returns the largest message Offer accepts.
func (p *Publication) MaxMessageLength() int32 { return p.maxMessageLength }

// MaxPayloadLength returns the largest payload that fits one fragment.
func (p *Publication) MaxPayloadLength() int32 { return p.maxPayloadLength }

// IsClosed reports whether this publication has been closed.
func (p *Publication) IsClosed() bool { return p.isClosed.Load() }

// IsConnected reports whether a subscriber has been seen recently.
func (p *Publication) IsConnected() bool {
	return !p.IsClosed() &&
		p.conductor.isPublicationConnected(logbuffer.TimeOfLastStatusMessage(p.logMetaDataBuffer))
}

// Position returns the position this publication has advanced to, or
// PublicationClosed.
func (p *Publication) Position() int64 {
	if p.IsClosed() {
		return PublicationClosed
	}

	rawTail := p.appenders[logbuffer.ActivePartitionIndex(p.logMetaDataBuffer)].RawTailVolatile()
	termOffset := logbuffer.TermOffset(rawTail, int64(p.TermBufferLength()))

	return logbuffer.ComputePosition(
		logbuffer.TermID(rawTail), termOffset, p.positionBitsToShift, p.initialTermID)
}

// PositionLimit returns the position beyond which offers are back pressured.
func (p *Publication) PositionLimit() int64 {
	if p.IsClosed() {
		return PublicationClosed
	}
	return p.publicationLimit.GetVolatile()
}

// Offer publishes the message in buffer[offset:offset+length] without
// blocking. On success the new stream position is returned; otherwise one
// of NotConnected, BackPressured, AdminAction, PublicationClosed, or
// MaxPositionExceeded.
func (p *Publication) Offer(buffer *buffers.AtomicBuffer, offset, length int32) int64 {
	return p.OfferReserved(buffer, offset, length, logbuffer.DefaultReservedValueSupplier)
}

// OfferReserved is Offer with a supplier for the frame's reserved value.
func (p *Publication) OfferReserved(
	buffer *buffers.AtomicBuffer, offset, length int32,
	reservedValueSupplier logbuffer.ReservedValueSupplier,
) int64 {
	if p.IsClosed() {
		return PublicationClosed
	}

	limit := p.publicationLimit.GetVolatile()
	partitionIndex := logbuffer.ActivePartitionIndex(p.logMetaDataBuffer)
	appender := p.appenders[partitionIndex]
	rawTail := appender.RawTailVolatile()
	termOffset := rawTail & 0xFFFFFFFF
	position := logbuffer.ComputeTermBeginPosition(
		logbuffer.TermID(rawTail), p.positionBitsToShift, p.initialTermID) + termOffset

	if position >= p.maxPossiblePosition {
		return MaxPositionExceeded
	}

	if position < limit {
		var result logbuffer.AppendResult
		if length <= p.maxPayloadLength {
			appender.AppendUnfragmented(&result, p.headerWriter, buffer, offset, length, reservedValueSupplier)
		} else {
			p.checkMaxMessageLength(length)
			appender.AppendFragmented(&result, p.headerWriter, buffer, offset, length,
				p.maxPayloadLength, reservedValueSupplier)
		}
		return p.newPosition(partitionIndex, int32(termOffset), position, &result)
	}

	if p.conductor.isPublicationConnected(logbuffer.TimeOfLastStatusMessage(p.logMetaDataBuffer)) {
		return BackPressured
	}
	return NotConnected
}

// TryClaim reserves space for a message of the given length for zero-copy
// writing. On success the claim is wrapped and the new stream position
// returned; the caller must Commit or Abort the claim promptly. Sentinels
// as for Offer. The length must fit a single fragment.
func (p *Publication) TryClaim(length int32, bufferClaim *logbuffer.BufferClaim) int64 {
	if p.IsClosed() {
		return PublicationClosed
	}

	limit := p.publicationLimit.GetVolatile()
	partitionIndex := logbuffer.ActivePartitionIndex(p.logMetaDataBuffer)
	appender := p.appenders[partitionIndex]
	rawTail := appender.RawTailVolatile()
	termOffset := rawTail & 0xFFFFFFFF
	position := logbuffer.ComputeTermBeginPosition(
		logbuffer.TermID(rawTail), p.positionBitsToShift, p.initialTermID) + termOffset

	if position >= p.maxPossiblePosition {
		return MaxPositionExceeded
	}

	if position < limit {
		if length > p.maxPayloadLength {
			panic(fmt.Sprintf("claim length %d exceeds max payload length %d", length, p.maxPayloadLength))
		}
		var result logbuffer.AppendResult
		appender.Claim(&result, p.headerWriter, length, bufferClaim)
		return p.newPosition(partitionIndex, int32(termOffset), position, &result)
	}

	if p.conductor.isPublicationConnected(logbuffer.TimeOfLastStatusMessage(p.logMetaDataBuffer)) {
		return BackPressured
	}
	return NotConnected
}

// newPosition resolves an append result into a stream position, rotating
// the log when the appender tripped the term end.
func (p *Publication) newPosition(index, currentTail int32, position int64, result *logbuffer.AppendResult) int64 {
	if result.TermOffset > 0 {
		return (position - int64(currentTail)) + result.TermOffset
	}

	if result.TermOffset == logbuffer.AppenderTripped {
		nextIndex := logbuffer.NextPartitionIndex(index)
		p.appenders[nextIndex].SetTailTermID(result.TermID + 1)
		logbuffer.SetActivePartitionIndex(p.logMetaDataBuffer, nextIndex)
	}

	return AdminAction
}

// Close marks the publication closed and asks the conductor to release it.
// Idempotent; subsequent offers return PublicationClosed.
func (p *Publication) Close() error {
	if p.isClosed.CompareAndSwap(false, true) {
		return p.conductor.releasePublication(p.registrationID)
	}
	return nil
}

// checkMaxMessageLength fails fast on a message no term could ever hold.
func (p *Publication) checkMaxMessageLength(length int32) {
	if length > p.maxMessageLength {
		panic(fmt.Sprintf("message length %d exceeds max message length %d", length, p.maxMessageLength))
	}
}

// timeNowMs is the epoch-millisecond clock used by connection checks.
func timeNowMs() int64 {
	return time.Now().UnixMilli()
}
