// Package logging provides a process-wide structured logger for schedos.
//
// The package wraps [log/slog] and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. All kernel
// subsystems should obtain a logger through this package rather than
// constructing their own slog.Logger values, so that log level and output
// destination are controlled from a single place.
//
// # Initialisation
//
// Call Init (or InitDefault for sensible defaults) once at program startup,
// before the scheduler is bootstrapped:
//
//	if err := logging.Init(logging.Config{
//	    Level:      logging.LevelDebug,
//	    OutputPath: "logs/sched.log",
//	}); err != nil {
//	    log.Fatal(err)
//	}
//
// InitDefault writes INFO-level logs to stdout in text format.
//
// # Retrieving the logger
//
//	logger := logging.GetLogger()
//	logger.Info("kernel started", "threads", n)
//
// If GetLogger is called before Init, a default logger is created lazily
// (via sync.Once) so that packages that log during init are safe.
//
// # Context helpers
//
// Several helpers return child loggers pre-populated with structured fields,
// reducing repetition in hot paths:
//
//	log := logging.WithThread(tid, name) // adds tid and thread fields
//	log := logging.WithComponent("Scheduler")
package logging
