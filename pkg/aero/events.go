package aero

import (
	"github.com/aeroipc/aeroipc-go/pkg/broadcast"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// driverListener is implemented by the conductor to receive decoded driver
// events.
type driverListener interface {
	onPublicationReady(correlationID int64, sessionID, streamID, positionLimitID int32, logFileName string)
	onSubscriptionReady(correlationID int64, channelStatusID int32)
	onAvailableImage(correlationID int64, sessionID, streamID int32,
		positions []subscriberPosition, logFileName, sourceIdentity string)
	onUnavailableImage(correlationID, subscriptionRegistrationID int64)
	onOperationSuccess(correlationID int64)
	onErrorResponse(offendingCorrelationID int64, errorCode int32, errorMessage string)
	onBroadcastLapped(err *broadcast.LappedError)
}

// driverEventsAdapter drains the to-clients broadcast and dispatches typed
// events to the listener.
type driverEventsAdapter struct {
	receiver *broadcast.CopyReceiver
	listener driverListener
}

func newDriverEventsAdapter(receiver *broadcast.CopyReceiver, listener driverListener) *driverEventsAdapter {
	return &driverEventsAdapter{receiver: receiver, listener: listener}
}

// receiveMessages drains available events, returning the count consumed.
func (a *driverEventsAdapter) receiveMessages() int {
	workCount := 0

	for {
		n, err := a.receiver.Receive(a.dispatch)
		if lapped, ok := err.(*broadcast.LappedError); ok {
			a.listener.onBroadcastLapped(lapped)
		}
		workCount += n
		if n == 0 {
			break
		}
	}

	return workCount
}

func (a *driverEventsAdapter) dispatch(msgTypeID int32, buffer *buffers.AtomicBuffer, offset, length int32) {
	switch msgTypeID {
	case OnPublicationReadyEvent:
		ev := decodePublicationReady(buffer, offset)
		a.listener.onPublicationReady(ev.correlationID, ev.sessionID, ev.streamID, ev.positionLimitID, ev.logFileName)

	case OnSubscriptionReadyEvent:
		ev := decodeSubscriptionReady(buffer, offset)
		a.listener.onSubscriptionReady(ev.correlationID, ev.channelStatusID)

	case OnAvailableImageEvent:
		ev := decodeImageReady(buffer, offset)
		a.listener.onAvailableImage(ev.correlationID, ev.sessionID, ev.streamID,
			ev.subscriberPositions, ev.logFileName, ev.sourceIdentity)

	case OnUnavailableImageEvent:
		ev := decodeImageMessage(buffer, offset)
		a.listener.onUnavailableImage(ev.correlationID, ev.subscriptionRegistrationID)

	case OnOperationSuccessEvent:
		a.listener.onOperationSuccess(decodeOperationSuccess(buffer, offset))

	case OnErrorEvent:
		ev := decodeErrorResponse(buffer, offset)
		a.listener.onErrorResponse(ev.offendingCorrelationID, ev.errorCode, ev.errorMessage)
	}
}
