// Package trace collects scheduler events into a bounded in-memory log and
// turns a finished run into an inspectable report. The scheduler feeds it
// synchronously through the Tracer interface; viewers and exporters read it
// from their own goroutines.
package trace

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"schedos/pkg/kernel/sched"
	"schedos/pkg/kerror"
)

// DefaultCapacity bounds the event log when the caller does not choose one.
const DefaultCapacity = 4096

// Recorder is a sched.Tracer that keeps the most recent events plus running
// per-kind counters. Record is called with the scheduler's own exclusion in
// force; the lock here protects the concurrent readers.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	events   []sched.Event
	dropped  int64
	counts   map[sched.EventKind]int64
}

// NewRecorder creates a recorder that retains at most capacity events.
// Zero selects DefaultCapacity.
func NewRecorder(capacity int) *Recorder {
	if capacity < 0 {
		kerror.Panicf("NewRecorder", "Trace", "negative capacity %d", capacity)
	}
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		capacity: capacity,
		events:   make([]sched.Event, 0, capacity),
		counts:   make(map[sched.EventKind]int64),
	}
}

// Record appends one event, evicting the oldest when the log is full.
func (r *Recorder) Record(e sched.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[e.Kind]++
	if len(r.events) == r.capacity {
		copy(r.events, r.events[1:])
		r.events = r.events[:len(r.events)-1]
		r.dropped++
	}
	r.events = append(r.events, e)
}

// Events returns a copy of the retained events, oldest first.
func (r *Recorder) Events() []sched.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]sched.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of retained events.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// Dropped returns how many events were evicted to respect the capacity.
func (r *Recorder) Dropped() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

// Count returns how many events of the given kind were recorded, evicted
// ones included.
func (r *Recorder) Count(kind sched.EventKind) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[kind]
}

// Counts returns a copy of the per-kind counters keyed by kind name.
func (r *Recorder) Counts() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64, len(r.counts))
	for kind, n := range r.counts {
		out[kind.String()] = n
	}
	return out
}

// Report is the exportable view of one scheduling run.
type Report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Scenario    string             `json:"scenario,omitempty"`
	IdleTicks   int64              `json:"idle_ticks"`
	KernelTicks int64              `json:"kernel_ticks"`
	UserTicks   int64              `json:"user_ticks"`
	EventCounts map[string]int64   `json:"event_counts"`
	Dropped     int64              `json:"dropped_events"`
	Threads     []sched.ThreadInfo `json:"threads"`
	Events      []sched.Event      `json:"events"`
}

// BuildReport assembles a report from the recorder and the kernel's final
// counters and thread snapshot.
func (r *Recorder) BuildReport(scenario string, stats sched.Stats, threads []sched.ThreadInfo) Report {
	return Report{
		GeneratedAt: time.Now(),
		Scenario:    scenario,
		IdleTicks:   stats.IdleTicks,
		KernelTicks: stats.KernelTicks,
		UserTicks:   stats.UserTicks,
		EventCounts: r.Counts(),
		Dropped:     r.Dropped(),
		Threads:     threads,
		Events:      r.Events(),
	}
}

// WriteJSON writes the report as indented JSON.
func (rep Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return kerror.Wrap(err, "TRACE_EXPORT", "WriteJSON", "Trace")
	}
	if _, err := w.Write(data); err != nil {
		return kerror.Wrap(err, "TRACE_EXPORT", "WriteJSON", "Trace")
	}
	return nil
}
