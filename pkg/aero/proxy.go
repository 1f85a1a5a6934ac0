package aero

import (
	"errors"

	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/ringbuffer"
)

// ErrBackPressured reports that the to-driver ring had no capacity for a
// command. Retry policy belongs to the caller.
var ErrBackPressured = errors.New("to-driver ring back pressured")

const proxyScratchLength = 512

// DriverProxy encodes typed commands onto the to-driver ring. The client id
// is drawn from the shared correlation counter at construction.
type DriverProxy struct {
	ring     *ringbuffer.ManyToOneRingBuffer
	clientID int64
}

// NewDriverProxy creates a proxy over the to-driver ring, consuming one
// correlation id as this client's identity.
func NewDriverProxy(ring *ringbuffer.ManyToOneRingBuffer) *DriverProxy {
	return &DriverProxy{ring: ring, clientID: ring.NextCorrelationID()}
}

// ClientID returns the driver-visible identity of this client.
func (p *DriverProxy) ClientID() int64 { return p.clientID }

// TimeOfLastDriverKeepalive reads the driver's heartbeat timestamp in
// epoch milliseconds.
func (p *DriverProxy) TimeOfLastDriverKeepalive() int64 {
	return p.ring.ConsumerHeartbeatTime()
}

// AddPublication asks the driver to add a publication, returning the
// correlation id of the command.
func (p *DriverProxy) AddPublication(channel string, streamID int32) (int64, error) {
	correlationID := p.ring.NextCorrelationID()
	var scratch [proxyScratchLength]byte
	buf := buffers.MakeAtomicBuffer(scratch[:])

	length := encodePublicationMessage(buf, p.clientID, correlationID, channel, streamID)
	if err := p.write(AddPublicationCmd, buf, length); err != nil {
		return 0, err
	}
	return correlationID, nil
}

// RemovePublication asks the driver to remove a previously added
// publication.
func (p *DriverProxy) RemovePublication(registrationID int64) (int64, error) {
	correlationID := p.ring.NextCorrelationID()
	var scratch [proxyScratchLength]byte
	buf := buffers.MakeAtomicBuffer(scratch[:])

	length := encodeRemoveMessage(buf, p.clientID, correlationID, registrationID)
	if err := p.write(RemovePublicationCmd, buf, length); err != nil {
		return 0, err
	}
	return correlationID, nil
}

// AddSubscription asks the driver to add a subscription, returning the
// correlation id of the command.
func (p *DriverProxy) AddSubscription(channel string, streamID int32) (int64, error) {
	correlationID := p.ring.NextCorrelationID()
	var scratch [proxyScratchLength]byte
	buf := buffers.MakeAtomicBuffer(scratch[:])

	length := encodeSubscriptionMessage(buf, p.clientID, correlationID, -1, channel, streamID)
	if err := p.write(AddSubscriptionCmd, buf, length); err != nil {
		return 0, err
	}
	return correlationID, nil
}

// RemoveSubscription asks the driver to remove a previously added
// subscription.
func (p *DriverProxy) RemoveSubscription(registrationID int64) (int64, error) {
	correlationID := p.ring.NextCorrelationID()
	var scratch [proxyScratchLength]byte
	buf := buffers.MakeAtomicBuffer(scratch[:])

	length := encodeRemoveMessage(buf, p.clientID, correlationID, registrationID)
	if err := p.write(RemoveSubscriptionCmd, buf, length); err != nil {
		return 0, err
	}
	return correlationID, nil
}

// SendClientKeepalive signals liveness of this client to the driver.
func (p *DriverProxy) SendClientKeepalive() error {
	var scratch [proxyScratchLength]byte
	buf := buffers.MakeAtomicBuffer(scratch[:])

	encodeCorrelated(buf, p.clientID, 0)
	return p.write(ClientKeepaliveCmd, buf, CorrelatedMessageLength)
}

func (p *DriverProxy) write(msgTypeID int32, buf *buffers.AtomicBuffer, length int32) error {
	ok, err := p.ring.Write(msgTypeID, buf, 0, length)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBackPressured
	}
	return nil
}
