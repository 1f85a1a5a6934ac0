package aero

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aeroipc/aeroipc-go/pkg/broadcast"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/counters"
	"github.com/aeroipc/aeroipc-go/pkg/logbuffer"
)

// Handlers invoked by the conductor. All run on the conductor goroutine and
// must not block.
type (
	// NewPublicationHandler is invoked when the driver confirms an added
	// publication.
	NewPublicationHandler func(channel string, streamID, sessionID int32, registrationID int64)

	// NewSubscriptionHandler is invoked when the driver confirms an added
	// subscription.
	NewSubscriptionHandler func(channel string, streamID int32, registrationID int64)

	// AvailableImageHandler is invoked when a new image joins a
	// subscription.
	AvailableImageHandler func(image *Image)

	// UnavailableImageHandler is invoked when an image leaves a
	// subscription.
	UnavailableImageHandler func(image *Image)
)

const (
	resourceCheckIntervalMs = 1000
)

type registrationKind int

const (
	publicationRegistration registrationKind = iota
	subscriptionRegistration
)

// Registration states, published with a release store after the result
// fields are written so application-thread finds read them safely.
const (
	registrationAwaiting int32 = iota
	registrationReady
	registrationErrored
)

// registration tracks one pending or completed add command.
type registration struct {
	correlationID  int64
	kind           registrationKind
	channel        string
	streamID       int32
	registeredAtMs int64

	// Written by the conductor before the state transition below.
	publication  *Publication
	subscription *Subscription
	err          *RegistrationError

	state atomic.Int32
}

// lingeringLog is a log mapping queued for release after its linger
// deadline, giving in-flight polls time to drain.
type lingeringLog struct {
	deadlineMs int64
	logBuffers *LogBuffers
}

// ClientConductor is the single-threaded agent that reconciles application
// requests, driver responses, image liveness, and keepalives. All mutation
// of registrations, publications, subscriptions, and images happens on its
// duty cycle; application threads communicate through the registration map,
// the command queue, and atomic handle state.
type ClientConductor struct {
	driverProxy   *DriverProxy
	adapter       *driverEventsAdapter
	counterValues *buffers.AtomicBuffer

	newPublicationHandler   NewPublicationHandler
	newSubscriptionHandler  NewSubscriptionHandler
	availableImageHandler   AvailableImageHandler
	unavailableImageHandler UnavailableImageHandler
	errorHandler            ErrorHandler
	epochClock              func() int64

	// Cross-thread state.
	registrations sync.Map // correlationID → *registration
	commandsMu    sync.Mutex
	commands      []func()

	// Conductor-thread state.
	publications  map[int64]*Publication
	subscriptions map[int64]*Subscription
	lingering     []lingeringLog

	timeOfLastKeepaliveMs     int64
	timeOfLastResourceCheckMs int64
	timeOfLastDoWorkMs        int64

	keepaliveIntervalMs     int64
	driverTimeoutMs         int64
	interServiceTimeoutMs   int64
	resourceLingerMs        int64
	publicationConnectionMs int64

	driverActive atomic.Bool
	terminated   atomic.Bool
}

// ErrorHandler receives conductor faults. Non-fatal faults resume the duty
// cycle after the handler returns.
type ErrorHandler func(err error)

func newClientConductor(
	driverProxy *DriverProxy,
	receiver *broadcast.CopyReceiver,
	counterValues *buffers.AtomicBuffer,
	ctx *Context,
) *ClientConductor {
	now := time.Now().UnixMilli()
	c := &ClientConductor{
		driverProxy:               driverProxy,
		counterValues:             counterValues,
		newPublicationHandler:     ctx.newPublicationHandler,
		newSubscriptionHandler:    ctx.newSubscriptionHandler,
		availableImageHandler:     ctx.availableImageHandler,
		unavailableImageHandler:   ctx.unavailableImageHandler,
		errorHandler:              ctx.errorHandler,
		epochClock:                timeNowMs,
		publications:              make(map[int64]*Publication),
		subscriptions:             make(map[int64]*Subscription),
		timeOfLastKeepaliveMs:     now,
		timeOfLastResourceCheckMs: now,
		timeOfLastDoWorkMs:        now,
		keepaliveIntervalMs:       ctx.KeepaliveInterval.Milliseconds(),
		driverTimeoutMs:           ctx.DriverTimeout.Milliseconds(),
		interServiceTimeoutMs:     ctx.InterServiceTimeout.Milliseconds(),
		resourceLingerMs:          ctx.ResourceLinger.Milliseconds(),
		publicationConnectionMs:   ctx.PublicationConnectionTimeout.Milliseconds(),
	}
	c.adapter = newDriverEventsAdapter(receiver, c)
	c.driverActive.Store(true)
	return c
}

// DoWork performs one duty-cycle pass: drain driver events, run queued
// commands, then service keepalives and timeouts, which also releases
// lingering resources.
func (c *ClientConductor) DoWork() int {
	if c.terminated.Load() {
		return 0
	}

	workCount := c.adapter.receiveMessages()
	workCount += c.runCommands()
	workCount += c.onHeartbeatCheckTimeouts()
	return workCount
}

// OnClose releases all handles and mapped resources.
func (c *ClientConductor) OnClose() {
	c.closeAllHandles()
	for _, item := range c.lingering {
		item.logBuffers.decRef()
	}
	c.lingering = nil
}

// AddPublication asks the driver for a publication on (channel, streamID)
// and returns the registration id to poll with FindPublication.
func (c *ClientConductor) AddPublication(channel string, streamID int32) (int64, error) {
	if err := c.verifyDriverActive(); err != nil {
		return 0, err
	}
	if err := ValidateChannel(channel); err != nil {
		return 0, err
	}

	correlationID, err := c.driverProxy.AddPublication(channel, streamID)
	if err != nil {
		return 0, err
	}

	c.registrations.Store(correlationID, &registration{
		correlationID:  correlationID,
		kind:           publicationRegistration,
		channel:        channel,
		streamID:       streamID,
		registeredAtMs: c.epochClock(),
	})

	return correlationID, nil
}

// FindPublication resolves a registration id from AddPublication.
// It returns (nil, nil) while the driver has not yet answered, the handle
// once ready, and the driver's error if the command failed.
func (c *ClientConductor) FindPublication(registrationID int64) (*Publication, error) {
	if err := c.verifyDriverActive(); err != nil {
		return nil, err
	}

	value, ok := c.registrations.Load(registrationID)
	if !ok {
		return nil, nil
	}
	reg := value.(*registration)
	if reg.kind != publicationRegistration {
		return nil, &IllegalStateError{Detail: fmt.Sprintf("registration %d is not a publication", registrationID)}
	}

	switch reg.state.Load() {
	case registrationReady:
		return reg.publication, nil
	case registrationErrored:
		c.registrations.Delete(registrationID)
		return nil, reg.err
	default:
		return nil, nil
	}
}

// AddSubscription asks the driver for a subscription on (channel, streamID)
// and returns the registration id to poll with FindSubscription.
func (c *ClientConductor) AddSubscription(channel string, streamID int32) (int64, error) {
	if err := c.verifyDriverActive(); err != nil {
		return 0, err
	}
	if err := ValidateChannel(channel); err != nil {
		return 0, err
	}

	correlationID, err := c.driverProxy.AddSubscription(channel, streamID)
	if err != nil {
		return 0, err
	}

	c.registrations.Store(correlationID, &registration{
		correlationID:  correlationID,
		kind:           subscriptionRegistration,
		channel:        channel,
		streamID:       streamID,
		registeredAtMs: c.epochClock(),
	})

	return correlationID, nil
}

// FindSubscription resolves a registration id from AddSubscription with the
// same non-blocking contract as FindPublication.
func (c *ClientConductor) FindSubscription(registrationID int64) (*Subscription, error) {
	if err := c.verifyDriverActive(); err != nil {
		return nil, err
	}

	value, ok := c.registrations.Load(registrationID)
	if !ok {
		return nil, nil
	}
	reg := value.(*registration)
	if reg.kind != subscriptionRegistration {
		return nil, &IllegalStateError{Detail: fmt.Sprintf("registration %d is not a subscription", registrationID)}
	}

	switch reg.state.Load() {
	case registrationReady:
		return reg.subscription, nil
	case registrationErrored:
		c.registrations.Delete(registrationID)
		return nil, reg.err
	default:
		return nil, nil
	}
}

// releasePublication queues removal of a closed publication onto the
// conductor thread.
func (c *ClientConductor) releasePublication(registrationID int64) error {
	c.enqueue(func() {
		c.registrations.Delete(registrationID)
		if pub, ok := c.publications[registrationID]; ok {
			delete(c.publications, registrationID)
			c.lingerLog(pub.logBuffers)
		}
		if _, err := c.driverProxy.RemovePublication(registrationID); err != nil {
			c.errorHandler(fmt.Errorf("remove publication %d: %w", registrationID, err))
		}
	})
	return nil
}

// releaseSubscription queues removal of a closed subscription and its
// images onto the conductor thread.
func (c *ClientConductor) releaseSubscription(registrationID int64) error {
	c.enqueue(func() {
		c.registrations.Delete(registrationID)
		if sub, ok := c.subscriptions[registrationID]; ok {
			delete(c.subscriptions, registrationID)
			for _, image := range sub.removeAndCloseAllImages() {
				c.lingerLog(image.logBuffers)
				c.notifyUnavailableImage(image)
			}
		}
		if _, err := c.driverProxy.RemoveSubscription(registrationID); err != nil {
			c.errorHandler(fmt.Errorf("remove subscription %d: %w", registrationID, err))
		}
	})
	return nil
}

// --- driver event callbacks (driverListener) ---

func (c *ClientConductor) onPublicationReady(correlationID int64, sessionID, streamID, positionLimitID int32, logFileName string) {
	value, ok := c.registrations.Load(correlationID)
	if !ok {
		return // another client's response
	}
	reg := value.(*registration)
	if reg.kind != publicationRegistration {
		c.errorHandler(&IllegalStateError{
			Detail: fmt.Sprintf("publication ready for non-publication registration %d", correlationID)})
		return
	}
	if reg.state.Load() != registrationAwaiting {
		return
	}

	logBuffers, err := MapLogBuffers(logFileName)
	if err != nil {
		reg.err = &RegistrationError{CorrelationID: correlationID, Message: err.Error()}
		reg.state.Store(registrationErrored)
		return
	}

	limit := counters.NewPosition(c.counterValues, positionLimitID)
	pub := newPublication(c, reg.channel, correlationID, streamID, sessionID, limit, logBuffers)

	c.publications[correlationID] = pub
	reg.publication = pub
	reg.state.Store(registrationReady)

	if c.newPublicationHandler != nil {
		c.newPublicationHandler(reg.channel, streamID, sessionID, correlationID)
	}
}

func (c *ClientConductor) onSubscriptionReady(correlationID int64, channelStatusID int32) {
	value, ok := c.registrations.Load(correlationID)
	if !ok {
		return
	}
	reg := value.(*registration)
	if reg.kind != subscriptionRegistration {
		c.errorHandler(&IllegalStateError{
			Detail: fmt.Sprintf("subscription ready for non-subscription registration %d", correlationID)})
		return
	}
	if reg.state.Load() != registrationAwaiting {
		return
	}

	sub := newSubscription(c, correlationID, reg.channel, reg.streamID, channelStatusID)
	c.subscriptions[correlationID] = sub
	reg.subscription = sub
	reg.state.Store(registrationReady)

	if c.newSubscriptionHandler != nil {
		c.newSubscriptionHandler(reg.channel, reg.streamID, correlationID)
	}
}

func (c *ClientConductor) onAvailableImage(
	correlationID int64, sessionID, streamID int32,
	positions []subscriberPosition, logFileName, sourceIdentity string,
) {
	for _, pos := range positions {
		sub, ok := c.subscriptions[pos.registrationID]
		if !ok || sub.IsClosed() || sub.hasImage(correlationID) {
			continue
		}

		logBuffers, err := MapLogBuffers(logFileName)
		if err != nil {
			c.errorHandler(fmt.Errorf("image %d: %w", correlationID, err))
			continue
		}

		position := counters.NewPosition(c.counterValues, pos.indicatorID)
		image := newImage(sessionID, correlationID, pos.registrationID, sourceIdentity,
			position, logBuffers, logbuffer.ErrorHandler(c.errorHandler))

		sub.addImage(image)

		if c.availableImageHandler != nil {
			c.availableImageHandler(image)
		}
	}
}

func (c *ClientConductor) onUnavailableImage(correlationID, subscriptionRegistrationID int64) {
	sub, ok := c.subscriptions[subscriptionRegistrationID]
	if !ok {
		return
	}

	image := sub.removeImage(correlationID)
	if image == nil {
		return // at-most-once per (subscription, correlationId)
	}

	image.close()
	c.lingerLog(image.logBuffers)
	c.notifyUnavailableImage(image)
}

func (c *ClientConductor) onOperationSuccess(correlationID int64) {
	// Acknowledgement of a remove command; nothing is tracked for these.
}

func (c *ClientConductor) onErrorResponse(offendingCorrelationID int64, errorCode int32, errorMessage string) {
	value, ok := c.registrations.Load(offendingCorrelationID)
	if !ok {
		return
	}
	reg := value.(*registration)
	reg.err = &RegistrationError{
		CorrelationID: offendingCorrelationID,
		Code:          errorCode,
		Message:       errorMessage,
	}
	reg.state.Store(registrationErrored)
}

func (c *ClientConductor) onBroadcastLapped(err *broadcast.LappedError) {
	c.errorHandler(err)
}

// --- duty-cycle internals ---

func (c *ClientConductor) enqueue(command func()) {
	c.commandsMu.Lock()
	c.commands = append(c.commands, command)
	c.commandsMu.Unlock()
}

func (c *ClientConductor) runCommands() int {
	c.commandsMu.Lock()
	commands := c.commands
	c.commands = nil
	c.commandsMu.Unlock()

	for _, command := range commands {
		command()
	}
	return len(commands)
}

func (c *ClientConductor) onHeartbeatCheckTimeouts() int {
	now := c.epochClock()
	result := 0

	if now > c.timeOfLastDoWorkMs+c.interServiceTimeoutMs {
		c.onFatalError(fmt.Errorf("%w: %d ms since last service", ErrClientTimeout, now-c.timeOfLastDoWorkMs))
	}
	c.timeOfLastDoWorkMs = now

	if now > c.timeOfLastKeepaliveMs+c.keepaliveIntervalMs {
		if err := c.driverProxy.SendClientKeepalive(); err != nil {
			c.errorHandler(fmt.Errorf("client keepalive: %w", err))
		}

		if now > c.driverProxy.TimeOfLastDriverKeepalive()+c.driverTimeoutMs {
			c.onFatalError(fmt.Errorf("%w: driver inactive for over %d ms", ErrDriverTimeout, c.driverTimeoutMs))
		}

		c.timeOfLastKeepaliveMs = now
		result = 1
	}

	if now > c.timeOfLastResourceCheckMs+resourceCheckIntervalMs {
		c.checkLingeringResources(now)
		c.checkRegistrationTimeouts(now)
		c.timeOfLastResourceCheckMs = now
		result = 1
	}

	return result
}

// lingerLog queues a log mapping for release once polls in flight have had
// time to drain.
func (c *ClientConductor) lingerLog(logBuffers *LogBuffers) {
	c.lingering = append(c.lingering, lingeringLog{
		deadlineMs: c.epochClock() + c.resourceLingerMs,
		logBuffers: logBuffers,
	})
}

func (c *ClientConductor) checkLingeringResources(now int64) {
	kept := c.lingering[:0]
	for _, item := range c.lingering {
		if now >= item.deadlineMs {
			item.logBuffers.decRef()
		} else {
			kept = append(kept, item)
		}
	}
	c.lingering = kept
}

// checkRegistrationTimeouts transitions pending registrations whose driver
// response never arrived within the liveness window.
func (c *ClientConductor) checkRegistrationTimeouts(now int64) {
	c.registrations.Range(func(_, value any) bool {
		reg := value.(*registration)
		if reg.state.Load() == registrationAwaiting && now > reg.registeredAtMs+c.driverTimeoutMs {
			reg.err = &RegistrationError{
				CorrelationID: reg.correlationID,
				Message:       ErrDriverTimeout.Error(),
			}
			reg.state.Store(registrationErrored)
		}
		return true
	})
}

func (c *ClientConductor) verifyDriverActive() error {
	if !c.driverActive.Load() {
		return ErrDriverTimeout
	}
	return nil
}

// onFatalError closes every handle, raises the terminal error exactly once,
// and parks the duty cycle.
func (c *ClientConductor) onFatalError(err error) {
	if !c.driverActive.CompareAndSwap(true, false) {
		return
	}

	c.closeAllHandles()
	c.terminated.Store(true)
	c.errorHandler(err)
}

func (c *ClientConductor) closeAllHandles() {
	for id, pub := range c.publications {
		pub.isClosed.Store(true)
		c.lingerLog(pub.logBuffers)
		delete(c.publications, id)
	}

	for id, sub := range c.subscriptions {
		for _, image := range sub.removeAndCloseAllImages() {
			c.lingerLog(image.logBuffers)
			c.notifyUnavailableImage(image)
		}
		delete(c.subscriptions, id)
	}

	c.registrations.Range(func(key, _ any) bool {
		c.registrations.Delete(key)
		return true
	})
}

func (c *ClientConductor) notifyUnavailableImage(image *Image) {
	if c.unavailableImageHandler != nil {
		c.unavailableImageHandler(image)
	}
}

// isPublicationConnected reports whether a status message was seen within
// the connection timeout.
func (c *ClientConductor) isPublicationConnected(timeOfLastStatusMessageMs int64) bool {
	return c.epochClock() <= timeOfLastStatusMessageMs+c.publicationConnectionMs
}
