package aero

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aeroipc/aeroipc-go/pkg/agent"
)

// Environment variables consulted by NewContext.
const (
	DirEnvVar           = "AEROIPC_DIR"
	DriverTimeoutEnvVar = "AEROIPC_DRIVER_TIMEOUT"
)

// Default timeouts and intervals.
const (
	DefaultDriverTimeout                = 10 * time.Second
	DefaultKeepaliveInterval            = 500 * time.Millisecond
	DefaultInterServiceTimeout          = 10 * time.Second
	DefaultResourceLinger               = 5 * time.Second
	DefaultPublicationConnectionTimeout = 5 * time.Second
)

// Context configures a Client. Create one with NewContext, adjust it with
// the With* setters, and pass it to Connect. A Context must not be shared
// between clients.
type Context struct {
	// Dir is the driver directory holding the CnC file.
	Dir string

	// DriverTimeout bounds driver inactivity before the client declares the
	// driver dead.
	DriverTimeout time.Duration

	// KeepaliveInterval is the period between client keepalives.
	KeepaliveInterval time.Duration

	// InterServiceTimeout bounds the gap between conductor duty cycles
	// before the client declares itself starved.
	InterServiceTimeout time.Duration

	// ResourceLinger is how long released log mappings are kept before
	// unmapping, letting in-flight polls drain.
	ResourceLinger time.Duration

	// PublicationConnectionTimeout bounds subscriber silence before a
	// publication reports NotConnected.
	PublicationConnectionTimeout time.Duration

	// IdleStrategy backs off the conductor duty cycle.
	IdleStrategy agent.IdleStrategy

	errorHandler            ErrorHandler
	newPublicationHandler   NewPublicationHandler
	newSubscriptionHandler  NewSubscriptionHandler
	availableImageHandler   AvailableImageHandler
	unavailableImageHandler UnavailableImageHandler
}

// NewContext returns a Context with defaults, honoring the environment
// overrides for the driver directory and timeout.
func NewContext() *Context {
	ctx := &Context{
		Dir:                          defaultDir(),
		DriverTimeout:                DefaultDriverTimeout,
		KeepaliveInterval:            DefaultKeepaliveInterval,
		InterServiceTimeout:          DefaultInterServiceTimeout,
		ResourceLinger:               DefaultResourceLinger,
		PublicationConnectionTimeout: DefaultPublicationConnectionTimeout,
		IdleStrategy:                 agent.SleepingIdleStrategy{Duration: 4 * time.Millisecond},
		errorHandler:                 defaultErrorHandler,
	}

	if value := os.Getenv(DriverTimeoutEnvVar); value != "" {
		if timeout, err := time.ParseDuration(value); err == nil {
			ctx.DriverTimeout = timeout
		}
	}

	return ctx
}

func defaultDir() string {
	if dir := os.Getenv(DirEnvVar); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "aeroipc")
}

func defaultErrorHandler(err error) {
	slog.Error("client conductor", "error", err)
}

// Validate checks the context before Connect uses it.
func (c *Context) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("driver directory cannot be empty")
	}
	if c.DriverTimeout <= 0 {
		return fmt.Errorf("driver timeout must be positive")
	}
	if c.KeepaliveInterval <= 0 {
		return fmt.Errorf("keepalive interval must be positive")
	}
	if c.IdleStrategy == nil {
		return fmt.Errorf("idle strategy cannot be nil")
	}
	return nil
}

// CncFileName returns the path of the CnC file under the driver directory.
func (c *Context) CncFileName() string {
	return filepath.Join(c.Dir, CncFile)
}

// WithDir sets the driver directory.
func (c *Context) WithDir(dir string) *Context {
	c.Dir = dir
	return c
}

// WithErrorHandler sets the handler for conductor faults.
func (c *Context) WithErrorHandler(handler ErrorHandler) *Context {
	c.errorHandler = handler
	return c
}

// WithNewPublicationHandler sets the publication-confirmed callback.
func (c *Context) WithNewPublicationHandler(handler NewPublicationHandler) *Context {
	c.newPublicationHandler = handler
	return c
}

// WithNewSubscriptionHandler sets the subscription-confirmed callback.
func (c *Context) WithNewSubscriptionHandler(handler NewSubscriptionHandler) *Context {
	c.newSubscriptionHandler = handler
	return c
}

// WithAvailableImageHandler sets the image-arrival callback. It runs on the
// conductor goroutine and must not block.
func (c *Context) WithAvailableImageHandler(handler AvailableImageHandler) *Context {
	c.availableImageHandler = handler
	return c
}

// WithUnavailableImageHandler sets the image-departure callback. It runs on
// the conductor goroutine and must not block.
func (c *Context) WithUnavailableImageHandler(handler UnavailableImageHandler) *Context {
	c.unavailableImageHandler = handler
	return c
}

// WithIdleStrategy sets the conductor idle strategy.
func (c *Context) WithIdleStrategy(strategy agent.IdleStrategy) *Context {
	c.IdleStrategy = strategy
	return c
}
