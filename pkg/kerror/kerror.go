// Package kerror provides the structured error type used across the kernel
// and the panic helper for fatal invariant breaches.
package kerror

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCategory classifies errors by their nature and appropriate handling
// strategy. The category decides whether an error is returned to the caller
// or treated as a fatal kernel invariant breach.
type ErrorCategory int

const (
	// ErrCategoryUser represents errors caused by invalid arguments from a
	// kernel client. Examples: an out-of-range priority, a nil entry
	// function. These are fixable by the caller.
	ErrCategoryUser ErrorCategory = iota

	// ErrCategoryResource represents resource exhaustion. Examples: no free
	// page for a new thread's stack. These propagate as ordinary return
	// values and are not fatal to the kernel.
	ErrCategoryResource

	// ErrCategoryContract represents a violated kernel invariant. Examples:
	// unblocking a thread that is not blocked, scheduling with interrupts
	// enabled, a corrupted thread integrity tag. Continuing after one of
	// these would operate on scheduler state that can no longer be trusted,
	// so they halt the kernel.
	ErrCategoryContract

	// ErrCategoryConcurrency represents misuse of a synchronization
	// primitive. Examples: releasing a lock the caller does not hold,
	// blocking from interrupt context.
	ErrCategoryConcurrency
)

// KernelError represents a structured kernel error with context about where
// and during which operation it occurred.
type KernelError struct {
	// Code is a unique identifier for this error type
	// (e.g., "NO_FREE_PAGES", "NOT_BLOCKED").
	Code string

	// Category classifies the error for appropriate handling.
	Category ErrorCategory

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail provides additional context about the specific instance.
	Detail string

	// Operation identifies the kernel operation that was being performed.
	// Examples: "Create", "Unblock", "Sleep", "LockRelease".
	Operation string

	// Component identifies the subsystem where the error originated.
	// Examples: "Scheduler", "PagePool", "Semaphore".
	Component string

	// Cause is the underlying error, enabling error chaining.
	Cause error

	// Stack contains the call stack where this error was created.
	// Captured automatically by New and Wrap.
	Stack []uintptr
}

// New creates a new KernelError with the specified category, code, and message.
func New(category ErrorCategory, code, message string) *KernelError {
	return &KernelError{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
}

// WithDetail attaches instance-specific context and returns the error.
func (e *KernelError) WithDetail(format string, args ...any) *KernelError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithContext attaches the operation and component and returns the error.
func (e *KernelError) WithContext(operation, component string) *KernelError {
	e.Operation = operation
	e.Component = component
	return e
}

// Wrap wraps an existing error with kernel-specific context information.
// If the error is already a KernelError, it enriches the existing error with
// operation and component context (only if not already set).
func Wrap(err error, code, operation, component string) *KernelError {
	if err == nil {
		return nil
	}

	if kErr, ok := err.(*KernelError); ok {
		if kErr.Operation == "" {
			kErr.Operation = operation
		}
		if kErr.Component == "" {
			kErr.Component = component
		}
		return kErr
	}

	return &KernelError{
		Code:      code,
		Category:  ErrCategoryResource,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// Panicf reports a fatal contract violation. The kernel has no recoverable
// path for these: the panic value is a *KernelError carrying the diagnostic.
func Panicf(operation, component, format string, args ...any) {
	err := New(ErrCategoryContract, "KERNEL_PANIC", fmt.Sprintf(format, args...))
	err.Operation = operation
	err.Component = component
	panic(err)
}

// captureStack captures the current call stack for debugging purposes.
// It skips the first 3 frames to exclude captureStack, New/Wrap, and the
// immediate caller, focusing on the actual error origin.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the standard Go error interface.
//
// The format follows the pattern:
// [ERROR_CODE] Message: Detail (operation: Operation, component: Component) caused by: underlying error
func (e *KernelError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Detail != "" {
		b.WriteString(fmt.Sprintf(": %s", e.Detail))
	}

	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause error, enabling error chain traversal
// with Go's standard error handling functions like errors.Is and errors.As.
func (e *KernelError) Unwrap() error {
	return e.Cause
}

// FormatStack returns a human-readable stack trace for debugging purposes.
func (e *KernelError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n",
			f.Function, f.File, f.Line))
		if !more {
			break
		}
	}

	return b.String()
}
