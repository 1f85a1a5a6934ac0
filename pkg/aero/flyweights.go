package aero

import "github.com/aeroipc/aeroipc-go/pkg/buffers"

// Control protocol message type ids on the to-driver ring.
const (
	AddPublicationCmd     int32 = 0x01
	RemovePublicationCmd  int32 = 0x02
	AddSubscriptionCmd    int32 = 0x04
	RemoveSubscriptionCmd int32 = 0x05
	ClientKeepaliveCmd    int32 = 0x06
	AddDestinationCmd     int32 = 0x07
	RemoveDestinationCmd  int32 = 0x08
)

// Driver event type ids on the to-clients broadcast.
const (
	OnErrorEvent             int32 = 0x0F01
	OnAvailableImageEvent    int32 = 0x0F02
	OnPublicationReadyEvent  int32 = 0x0F03
	OnOperationSuccessEvent  int32 = 0x0F04
	OnUnavailableImageEvent  int32 = 0x0F05
	OnSubscriptionReadyEvent int32 = 0x0F06
)

// Every command starts with the correlated header: clientId then
// correlationId, both int64.
const (
	correlatedClientIDOffset      = 0
	correlatedCorrelationIDOffset = 8

	// CorrelatedMessageLength is the length of a bare correlated command
	// such as a keepalive.
	CorrelatedMessageLength = 16
)

// encodeCorrelated writes the common command header.
func encodeCorrelated(buf *buffers.AtomicBuffer, clientID, correlationID int64) {
	buf.PutInt64(correlatedClientIDOffset, clientID)
	buf.PutInt64(correlatedCorrelationIDOffset, correlationID)
}

// encodePublicationMessage appends streamId, channel length and channel
// bytes after the correlated header. Returns the full command length.
func encodePublicationMessage(buf *buffers.AtomicBuffer, clientID, correlationID int64, channel string, streamID int32) int32 {
	encodeCorrelated(buf, clientID, correlationID)
	buf.PutInt32(16, streamID)
	return 20 + buf.PutStringUTF8(20, channel)
}

// encodeSubscriptionMessage additionally carries the correlation id of a
// related registration, -1 when none. Returns the full command length.
func encodeSubscriptionMessage(buf *buffers.AtomicBuffer, clientID, correlationID, registrationCorrelationID int64, channel string, streamID int32) int32 {
	encodeCorrelated(buf, clientID, correlationID)
	buf.PutInt64(16, registrationCorrelationID)
	buf.PutInt32(24, streamID)
	return 28 + buf.PutStringUTF8(28, channel)
}

// encodeRemoveMessage appends the registration id being removed. Returns
// the full command length.
func encodeRemoveMessage(buf *buffers.AtomicBuffer, clientID, correlationID, registrationID int64) int32 {
	encodeCorrelated(buf, clientID, correlationID)
	buf.PutInt64(16, registrationID)
	return 24
}

// publicationReady decodes an ON_PUBLICATION_READY event.
type publicationReady struct {
	correlationID   int64
	sessionID       int32
	streamID        int32
	positionLimitID int32
	logFileName     string
}

func decodePublicationReady(buf *buffers.AtomicBuffer, offset int32) publicationReady {
	return publicationReady{
		correlationID:   buf.GetInt64(offset),
		sessionID:       buf.GetInt32(offset + 8),
		streamID:        buf.GetInt32(offset + 12),
		positionLimitID: buf.GetInt32(offset + 16),
		logFileName:     buf.GetStringUTF8(offset + 20),
	}
}

// EncodePublicationReady writes an ON_PUBLICATION_READY event body. Driver
// harnesses and tests use this.
func EncodePublicationReady(buf *buffers.AtomicBuffer, correlationID int64, sessionID, streamID, positionLimitID int32, logFileName string) int32 {
	buf.PutInt64(0, correlationID)
	buf.PutInt32(8, sessionID)
	buf.PutInt32(12, streamID)
	buf.PutInt32(16, positionLimitID)
	return 20 + buf.PutStringUTF8(20, logFileName)
}

// subscriptionReady decodes an ON_SUBSCRIPTION_READY event.
type subscriptionReady struct {
	correlationID   int64
	channelStatusID int32
}

func decodeSubscriptionReady(buf *buffers.AtomicBuffer, offset int32) subscriptionReady {
	return subscriptionReady{
		correlationID:   buf.GetInt64(offset),
		channelStatusID: buf.GetInt32(offset + 8),
	}
}

// EncodeSubscriptionReady writes an ON_SUBSCRIPTION_READY event body.
func EncodeSubscriptionReady(buf *buffers.AtomicBuffer, correlationID int64, channelStatusID int32) int32 {
	buf.PutInt64(0, correlationID)
	buf.PutInt32(8, channelStatusID)
	return 12
}

// subscriberPosition is one entry of the position block in an
// ON_AVAILABLE_IMAGE event: the position counter id and the registration id
// of the subscription it belongs to.
type subscriberPosition struct {
	indicatorID    int32
	registrationID int64
}

const subscriberPositionBlockLength = 12

// imageReady decodes an ON_AVAILABLE_IMAGE event.
type imageReady struct {
	correlationID       int64
	sessionID           int32
	streamID            int32
	subscriberPositions []subscriberPosition
	logFileName         string
	sourceIdentity      string
}

func decodeImageReady(buf *buffers.AtomicBuffer, offset int32) imageReady {
	ev := imageReady{
		correlationID: buf.GetInt64(offset),
		sessionID:     buf.GetInt32(offset + 8),
		streamID:      buf.GetInt32(offset + 12),
	}

	count := buf.GetInt32(offset + 20)
	cursor := offset + 24
	ev.subscriberPositions = make([]subscriberPosition, 0, count)
	for i := int32(0); i < count; i++ {
		ev.subscriberPositions = append(ev.subscriberPositions, subscriberPosition{
			indicatorID:    buf.GetInt32(cursor),
			registrationID: buf.GetInt64(cursor + 4),
		})
		cursor += subscriberPositionBlockLength
	}

	ev.logFileName = buf.GetStringUTF8(cursor)
	cursor += 4 + int32(len(ev.logFileName))
	ev.sourceIdentity = buf.GetStringUTF8(cursor)
	return ev
}

// EncodeImageReady writes an ON_AVAILABLE_IMAGE event body.
func EncodeImageReady(
	buf *buffers.AtomicBuffer,
	correlationID int64,
	sessionID, streamID int32,
	positionIndicatorIDs []int32,
	registrationIDs []int64,
	logFileName, sourceIdentity string,
) int32 {
	buf.PutInt64(0, correlationID)
	buf.PutInt32(8, sessionID)
	buf.PutInt32(12, streamID)
	buf.PutInt32(16, subscriberPositionBlockLength)
	buf.PutInt32(20, int32(len(positionIndicatorIDs)))

	cursor := int32(24)
	for i := range positionIndicatorIDs {
		buf.PutInt32(cursor, positionIndicatorIDs[i])
		buf.PutInt64(cursor+4, registrationIDs[i])
		cursor += subscriberPositionBlockLength
	}

	cursor += buf.PutStringUTF8(cursor, logFileName)
	cursor += buf.PutStringUTF8(cursor, sourceIdentity)
	return cursor
}

// imageMessage decodes an ON_UNAVAILABLE_IMAGE event.
type imageMessage struct {
	correlationID              int64
	subscriptionRegistrationID int64
	streamID                   int32
}

func decodeImageMessage(buf *buffers.AtomicBuffer, offset int32) imageMessage {
	return imageMessage{
		correlationID:              buf.GetInt64(offset),
		subscriptionRegistrationID: buf.GetInt64(offset + 8),
		streamID:                   buf.GetInt32(offset + 16),
	}
}

// EncodeImageMessage writes an ON_UNAVAILABLE_IMAGE event body.
func EncodeImageMessage(buf *buffers.AtomicBuffer, correlationID, subscriptionRegistrationID int64, streamID int32) int32 {
	buf.PutInt64(0, correlationID)
	buf.PutInt64(8, subscriptionRegistrationID)
	buf.PutInt32(16, streamID)
	return 20
}

// errorResponse decodes an ON_ERROR event.
type errorResponse struct {
	offendingCorrelationID int64
	errorCode              int32
	errorMessage           string
}

func decodeErrorResponse(buf *buffers.AtomicBuffer, offset int32) errorResponse {
	return errorResponse{
		offendingCorrelationID: buf.GetInt64(offset),
		errorCode:              buf.GetInt32(offset + 8),
		errorMessage:           buf.GetStringUTF8(offset + 12),
	}
}

// EncodeErrorResponse writes an ON_ERROR event body.
func EncodeErrorResponse(buf *buffers.AtomicBuffer, offendingCorrelationID int64, errorCode int32, message string) int32 {
	buf.PutInt64(0, offendingCorrelationID)
	buf.PutInt32(8, errorCode)
	return 12 + buf.PutStringUTF8(12, message)
}

// decodeOperationSuccess decodes an ON_OPERATION_SUCCESS event, which reuses the
// correlated header layout.
func decodeOperationSuccess(buf *buffers.AtomicBuffer, offset int32) int64 {
	return buf.GetInt64(offset + correlatedCorrelationIDOffset)
}

// EncodeOperationSuccess writes an ON_OPERATION_SUCCESS event body.
func EncodeOperationSuccess(buf *buffers.AtomicBuffer, correlationID int64) int32 {
	buf.PutInt64(correlatedClientIDOffset, 0)
	buf.PutInt64(correlatedCorrelationIDOffset, correlationID)
	return CorrelatedMessageLength
}
