// Package interrupt models the interrupt state of the single logical CPU.
//
// Disabling interrupts is the kernel's only mutual-exclusion mechanism: all
// scheduler-owned state may be mutated only while the level is Off. The
// controller is plain per-CPU state, not a lock; it is correct because at
// most one goroutine executes kernel code at any instant (all others are
// parked on their resume gates) and external interrupt delivery is a call
// made on the running context.
package interrupt

import "schedos/pkg/kerror"

// Level is the CPU interrupt-enable state.
type Level int

const (
	// Off means interrupts are disabled. Scheduler state may be touched.
	Off Level = iota
	// On means interrupts are enabled.
	On
)

// String returns "off" or "on".
func (l Level) String() string {
	if l == Off {
		return "off"
	}
	return "on"
}

// Controller tracks the interrupt level of the CPU, whether an external
// interrupt handler is currently running, and whether a deferred yield has
// been requested for the end of the current handler.
type Controller struct {
	level        Level
	inHandler    bool
	yieldPending bool
}

// New returns a controller in the boot state: interrupts disabled, no
// handler active.
func New() *Controller {
	return &Controller{level: Off}
}

// Level returns the current interrupt level.
func (c *Controller) Level() Level {
	return c.level
}

// Disable turns interrupts off and returns the previous level. Nested
// disables are permitted; callers restore the returned level with SetLevel.
func (c *Controller) Disable() Level {
	prev := c.level
	c.level = Off
	return prev
}

// Enable turns interrupts on and returns the previous level. Enabling
// interrupts inside an interrupt handler is a fatal contract violation:
// handlers run to completion with interrupts off.
func (c *Controller) Enable() Level {
	if c.inHandler {
		kerror.Panicf("Enable", "Interrupt", "cannot enable interrupts inside a handler")
	}
	prev := c.level
	c.level = On
	return prev
}

// SetLevel restores a level previously returned by Disable or Enable.
func (c *Controller) SetLevel(l Level) Level {
	if l == On {
		return c.Enable()
	}
	return c.Disable()
}

// InHandler reports whether the CPU is currently running an external
// interrupt handler.
func (c *Controller) InHandler() bool {
	return c.inHandler
}

// EnterHandler marks the start of an external interrupt handler. Interrupts
// are forced off for the duration; the previous level is returned so
// LeaveHandler can restore it.
func (c *Controller) EnterHandler() Level {
	if c.inHandler {
		kerror.Panicf("EnterHandler", "Interrupt", "nested interrupt handlers are not supported")
	}
	prev := c.Disable()
	c.inHandler = true
	return prev
}

// LeaveHandler marks the end of an external interrupt handler and restores
// the pre-interrupt level.
func (c *Controller) LeaveHandler(prev Level) {
	if !c.inHandler {
		kerror.Panicf("LeaveHandler", "Interrupt", "no handler is active")
	}
	c.inHandler = false
	c.SetLevel(prev)
}

// RequestYieldOnReturn asks for the running thread to yield when the current
// interrupt handler finishes. Preemption must not happen synchronously inside
// the handler. Valid only while a handler is active.
func (c *Controller) RequestYieldOnReturn() {
	if !c.inHandler {
		kerror.Panicf("RequestYieldOnReturn", "Interrupt", "no handler is active")
	}
	c.yieldPending = true
}

// TakeYieldRequest consumes and returns the pending-yield flag. The interrupt
// exit path calls this after LeaveHandler to decide whether to preempt.
func (c *Controller) TakeYieldRequest() bool {
	pending := c.yieldPending
	c.yieldPending = false
	return pending
}
