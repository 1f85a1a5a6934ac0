package aero

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aeroipc/aeroipc-go/internal/memmap"
	"github.com/aeroipc/aeroipc-go/pkg/agent"
	"github.com/aeroipc/aeroipc-go/pkg/broadcast"
	"github.com/aeroipc/aeroipc-go/pkg/counters"
	"github.com/aeroipc/aeroipc-go/pkg/ringbuffer"
)

// Client is the entry point for talking to the media driver. One Client per
// driver is sufficient for a process; multiple clients must map distinct
// driver directories. All process-wide state lives on the Client.
type Client struct {
	ctx       *Context
	cncFile   *memmap.File
	cnc       *CncBuffers
	conductor *ClientConductor
	runner    *agent.Runner
	isClosed  atomic.Bool
}

// Connect maps the driver's CnC file, validates its version, and starts the
// conductor on its own goroutine.
func Connect(ctx *Context) (*Client, error) {
	if ctx == nil {
		ctx = NewContext()
	}
	if err := ctx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid context: %w", err)
	}

	cncFile, cnc, err := MapCncFile(ctx.CncFileName())
	if err != nil {
		return nil, err
	}

	// The driver's configured liveness timeout governs ours when present.
	if timeoutNs := cnc.Metadata.ClientLivenessTimeoutNs; timeoutNs > 0 {
		ctx.DriverTimeout = nsToDuration(timeoutNs)
	}

	ring, err := ringbuffer.NewManyToOneRingBuffer(cnc.ToDriver)
	if err != nil {
		cncFile.Close()
		return nil, fmt.Errorf("to-driver ring: %w", err)
	}

	receiver, err := broadcast.NewReceiver(cnc.ToClients)
	if err != nil {
		cncFile.Close()
		return nil, fmt.Errorf("to-clients broadcast: %w", err)
	}

	proxy := NewDriverProxy(ring)
	conductor := newClientConductor(proxy, broadcast.NewCopyReceiver(receiver), cnc.CounterValues, ctx)

	client := &Client{
		ctx:       ctx,
		cncFile:   cncFile,
		cnc:       cnc,
		conductor: conductor,
		runner:    agent.NewRunner(conductor, ctx.IdleStrategy, agent.ErrorHandler(ctx.errorHandler)),
	}
	client.runner.Start()

	return client, nil
}

// Ctx returns the context this client was built from.
func (c *Client) Ctx() *Context { return c.ctx }

// ClientID returns this client's driver-visible identity.
func (c *Client) ClientID() int64 { return c.conductor.driverProxy.ClientID() }

// CountersReader returns a reader over the driver's counters.
func (c *Client) CountersReader() *counters.Reader {
	return counters.NewReader(c.cnc.CounterMetadata, c.cnc.CounterValues)
}

// AddPublication asks the driver to add a publication and returns the
// registration id. Poll FindPublication with it; the call never blocks.
func (c *Client) AddPublication(channel string, streamID int32) (int64, error) {
	if c.isClosed.Load() {
		return 0, ErrClientClosed
	}
	return c.conductor.AddPublication(channel, streamID)
}

// FindPublication resolves a registration id. It returns (nil, nil) until
// the driver has answered, the handle once ready, or the driver's error.
func (c *Client) FindPublication(registrationID int64) (*Publication, error) {
	if c.isClosed.Load() {
		return nil, ErrClientClosed
	}
	return c.conductor.FindPublication(registrationID)
}

// AddSubscription asks the driver to add a subscription and returns the
// registration id. Poll FindSubscription with it; the call never blocks.
func (c *Client) AddSubscription(channel string, streamID int32) (int64, error) {
	if c.isClosed.Load() {
		return 0, ErrClientClosed
	}
	return c.conductor.AddSubscription(channel, streamID)
}

// FindSubscription resolves a registration id with the same contract as
// FindPublication.
func (c *Client) FindSubscription(registrationID int64) (*Subscription, error) {
	if c.isClosed.Load() {
		return nil, ErrClientClosed
	}
	return c.conductor.FindSubscription(registrationID)
}

// Close stops the conductor, closes all handles, and unmaps the CnC file.
// Safe to call more than once.
func (c *Client) Close() error {
	if !c.isClosed.CompareAndSwap(false, true) {
		return nil
	}

	c.runner.Close()
	return c.cncFile.Close()
}

func nsToDuration(ns int64) time.Duration {
	return time.Duration(ns)
}
