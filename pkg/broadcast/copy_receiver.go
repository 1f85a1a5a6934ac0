package broadcast

import (
	"fmt"

	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

// Handler consumes one event copied out of the broadcast stream.
type Handler func(msgTypeID int32, buffer *buffers.AtomicBuffer, offset, length int32)

// LappedError reports that the transmitter overran this receiver and the
// cursor has been resynchronized at the latest record. Events between the
// old and new cursor were lost; the condition is recoverable.
type LappedError struct {
	Laps int64
}

func (e *LappedError) Error() string {
	return fmt.Sprintf("broadcast receiver lapped %d time(s), events lost", e.Laps)
}

// CopyReceiver drains the broadcast stream into a private scratch buffer so
// handlers observe stable bytes even while the transmitter keeps writing.
type CopyReceiver struct {
	receiver *Receiver
	scratch  *buffers.AtomicBuffer
}

// NewCopyReceiver creates a CopyReceiver over receiver. Any records already
// in the stream are skipped so consumption starts at the live tail.
func NewCopyReceiver(receiver *Receiver) *CopyReceiver {
	c := &CopyReceiver{
		receiver: receiver,
		scratch:  buffers.MakeAtomicBuffer(make([]byte, 4096)),
	}
	for c.receiver.ReceiveNext() {
	}
	return c
}

// Receive copies the next event, if any, and hands it to handler. It returns
// the number of events consumed (0 or 1). A *LappedError is returned
// alongside the consumed count when the receiver was overrun; the event
// delivered is then the latest record in the stream.
func (c *CopyReceiver) Receive(handler Handler) (int, error) {
	messagesReceived := 0
	lastSeenLappedCount := c.receiver.LappedCount()

	if c.receiver.ReceiveNext() {
		length := c.receiver.Length()
		if length > c.scratch.Capacity() {
			return 0, fmt.Errorf("broadcast event length %d exceeds scratch capacity %d", length, c.scratch.Capacity())
		}

		msgTypeID := c.receiver.TypeID()
		c.scratch.PutBytes(0, c.receiver.Buffer().Data()[c.receiver.Offset():c.receiver.Offset()+length])

		if !c.receiver.Validate(c.receiver.cursor) {
			// The record was overwritten mid-copy; drop it and let the next
			// pass resynchronize.
			return 0, &LappedError{Laps: c.receiver.LappedCount() + 1 - lastSeenLappedCount}
		}

		handler(msgTypeID, c.scratch, 0, length)
		messagesReceived = 1
	}

	if lapped := c.receiver.LappedCount() - lastSeenLappedCount; lapped > 0 {
		return messagesReceived, &LappedError{Laps: lapped}
	}

	return messagesReceived, nil
}
