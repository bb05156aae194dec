package logging

import (
	"log/slog"
)

// WithThread creates a logger with thread context.
// Use this to automatically include the thread identity in all logs.
//
// Example:
//
//	log := logging.WithThread(tid, name)
//	log.Debug("unblocked", "priority", prio)
func WithThread(tid int32, name string) *slog.Logger {
	return GetLogger().With("tid", tid, "thread", name)
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("Scheduler")
//	log.Info("idle thread started")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithTick creates a logger with timer-tick context.
// Useful for sleep/wake and preemption accounting paths.
//
// Example:
//
//	log := logging.WithTick(now)
//	log.Debug("waking sleepers", "count", n)
func WithTick(tick int64) *slog.Logger {
	return GetLogger().With("tick", tick)
}

// WithError creates a logger with error context.
// Use this when logging errors to include the error in structured format.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("thread creation failed", "name", name)
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
