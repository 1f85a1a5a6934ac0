package aero

import (
	"errors"
	"fmt"
)

// Sentinel return values for offers and polls. Negative values never
// collide with stream positions or fragment counts.
const (
	// NotConnected means no subscriber has been seen recently.
	NotConnected int64 = -1

	// BackPressured means the publication limit has been reached; retry
	// later.
	BackPressured int64 = -2

	// AdminAction means an administrative action such as a term rotation was
	// in progress; retry immediately.
	AdminAction int64 = -3

	// PublicationClosed means the publication has been closed.
	PublicationClosed int64 = -4

	// MaxPositionExceeded means the stream has reached the end of its
	// addressable position space.
	MaxPositionExceeded int64 = -5
)

// Closed is returned by all Image and Subscription polls after close.
const Closed = -1

// ErrCncVersionMismatch reports a CnC file whose version does not match
// this implementation. Fatal at startup.
var ErrCncVersionMismatch = errors.New("CnC file version mismatch")

// ErrDriverTimeout reports loss of media driver liveness. Fatal: all handles
// are closed and the conductor terminates.
var ErrDriverTimeout = errors.New("media driver timeout")

// ErrClientTimeout reports that the conductor duty cycle was starved beyond
// the inter-service timeout. Fatal.
var ErrClientTimeout = errors.New("client conductor service interval exceeded")

// ErrClientClosed reports use of a closed client.
var ErrClientClosed = errors.New("client is closed")

// RegistrationError carries a driver-reported failure for an add command,
// surfaced by FindPublication or FindSubscription.
type RegistrationError struct {
	CorrelationID int64
	Code          int32
	Message       string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration %d failed: code=%d %s", e.CorrelationID, e.Code, e.Message)
}

// IllegalStateError reports a protocol violation such as a driver response
// that contradicts the pending registration it correlates with. Fail-fast.
type IllegalStateError struct {
	Detail string
}

func (e *IllegalStateError) Error() string {
	return "illegal state: " + e.Detail
}
