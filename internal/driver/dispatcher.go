// Package driver models the driver-side session admission state machine and
// network address handling that the client protocol is defined against. The
// media driver process owns the real thing; this mirror keeps the
// transitions testable from the client repository.
package driver

import "time"

// SessionStatus is the admission state of one (sessionId, streamId) source.
type SessionStatus int

const (
	// PendingSetup means first data arrived from an unknown source and a
	// setup frame has been elicited.
	PendingSetup SessionStatus = iota + 1

	// InitInProgress means the setup frame arrived and image buffers are
	// being prepared.
	InitInProgress

	// Active means the image is installed and data flows.
	Active

	// OnCoolDown means the image was removed; the source is ignored until
	// the cool-down expires so late packets cannot resurrect it.
	OnCoolDown
)

type sessionKey struct {
	sessionID int32
	streamID  int32
}

type sessionState struct {
	status           SessionStatus
	coolDownDeadline time.Time
}

// Dispatcher tracks per-source admission for one receive endpoint.
type Dispatcher struct {
	sessions map[sessionKey]*sessionState
	coolDown time.Duration
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher with the given cool-down period.
func NewDispatcher(coolDown time.Duration) *Dispatcher {
	return &Dispatcher{
		sessions: make(map[sessionKey]*sessionState),
		coolDown: coolDown,
		now:      time.Now,
	}
}

// Status returns the current state of a source, or 0 when unknown.
func (d *Dispatcher) Status(sessionID, streamID int32) SessionStatus {
	state, ok := d.sessions[sessionKey{sessionID, streamID}]
	if !ok {
		return 0
	}
	return state.status
}

// OnDataPacket admits a data packet. It returns true when the packet should
// be inserted into an active image, and false when it was consumed by the
// admission machinery (setup elicited, or source ignored).
func (d *Dispatcher) OnDataPacket(sessionID, streamID int32) bool {
	key := sessionKey{sessionID, streamID}
	state, ok := d.sessions[key]

	if !ok {
		d.sessions[key] = &sessionState{status: PendingSetup}
		return false
	}

	switch state.status {
	case Active:
		return true
	case OnCoolDown:
		d.expireCoolDown(key, state)
		return false
	default:
		return false
	}
}

// OnSetupMessage records a setup frame from a source. Only a source in
// PendingSetup moves to InitInProgress; setups from sources in progress or
// cooling down are ignored.
func (d *Dispatcher) OnSetupMessage(sessionID, streamID int32) bool {
	key := sessionKey{sessionID, streamID}
	state, ok := d.sessions[key]
	if !ok || state.status != PendingSetup {
		return false
	}

	state.status = InitInProgress
	return true
}

// OnImageInstalled marks a source active once its image is in place.
func (d *Dispatcher) OnImageInstalled(sessionID, streamID int32) bool {
	key := sessionKey{sessionID, streamID}
	state, ok := d.sessions[key]
	if !ok || state.status != InitInProgress {
		return false
	}

	state.status = Active
	return true
}

// OnImageRemoved puts a source on cool-down after its image is torn down.
func (d *Dispatcher) OnImageRemoved(sessionID, streamID int32) bool {
	key := sessionKey{sessionID, streamID}
	state, ok := d.sessions[key]
	if !ok || state.status != Active {
		return false
	}

	state.status = OnCoolDown
	state.coolDownDeadline = d.now().Add(d.coolDown)
	return true
}

// expireCoolDown forgets a cooled-down source once its timer has passed, so
// fresh data from it restarts admission.
func (d *Dispatcher) expireCoolDown(key sessionKey, state *sessionState) {
	if !d.now().Before(state.coolDownDeadline) {
		delete(d.sessions, key)
	}
}
