package agent

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Agent is a unit of cooperative work hosted by a Runner.
type Agent interface {
	// DoWork performs one duty-cycle pass and returns the amount of work
	// done. It must not block.
	DoWork() int

	// OnClose is invoked exactly once after the runner stops.
	OnClose()
}

// ErrorHandler receives faults raised by an agent's duty cycle. Returning
// normally resumes the duty cycle; re-panicking stops the runner.
type ErrorHandler func(err error)

// Runner hosts one Agent on its own goroutine with an idle strategy.
type Runner struct {
	agent        Agent
	idleStrategy IdleStrategy
	errorHandler ErrorHandler

	running   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewRunner creates a Runner. Start must be called to begin the duty cycle.
func NewRunner(a Agent, idleStrategy IdleStrategy, errorHandler ErrorHandler) *Runner {
	return &Runner{
		agent:        a,
		idleStrategy: idleStrategy,
		errorHandler: errorHandler,
		done:         make(chan struct{}),
	}
}

// Start spawns the duty-cycle goroutine.
func (r *Runner) Start() {
	r.running.Store(true)
	go r.run()
}

func (r *Runner) run() {
	defer close(r.done)
	// A panic escaping dutyCycle comes from the error handler re-panicking;
	// it stops the runner.
	defer func() {
		if rec := recover(); rec != nil {
			r.running.Store(false)
		}
	}()

	for r.running.Load() {
		workCount := r.dutyCycle()
		r.idleStrategy.Idle(workCount)
	}
}

// dutyCycle performs one DoWork pass, routing a panic to the error handler
// so a faulting pass does not stop the agent.
func (r *Runner) dutyCycle() (workCount int) {
	defer func() {
		if rec := recover(); rec != nil {
			if err, ok := rec.(error); ok {
				r.errorHandler(err)
			} else {
				r.errorHandler(fmt.Errorf("agent fault: %v", rec))
			}
		}
	}()
	return r.agent.DoWork()
}

// Close stops the duty cycle, waits for the goroutine to exit, and invokes
// the agent's OnClose exactly once. Safe to call more than once.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		r.running.Store(false)
		<-r.done
		r.agent.OnClose()
	})
}
