package sched

import "schedos/pkg/primitives"

// EventKind identifies a scheduler event for tracing.
type EventKind int

const (
	EventCreate EventKind = iota
	EventSwitch
	EventBlock
	EventUnblock
	EventSleep
	EventWake
	EventDonate
	EventSetPriority
	EventExit
	EventDestroy
)

// String returns a short lower-case name for the event kind.
func (e EventKind) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventSwitch:
		return "switch"
	case EventBlock:
		return "block"
	case EventUnblock:
		return "unblock"
	case EventSleep:
		return "sleep"
	case EventWake:
		return "wake"
	case EventDonate:
		return "donate"
	case EventSetPriority:
		return "set-priority"
	case EventExit:
		return "exit"
	case EventDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// Event is one scheduler occurrence, stamped with the tick of the most
// recent timer interrupt.
type Event struct {
	Tick     primitives.Ticks    `json:"tick"`
	Kind     EventKind           `json:"kind"`
	TID      primitives.TID      `json:"tid"`
	Name     string              `json:"name"`
	Priority primitives.Priority `json:"priority"`
	Detail   string              `json:"detail,omitempty"`
}

// Tracer receives scheduler events as they happen. Implementations must not
// call back into the kernel: events are emitted with interrupts off.
type Tracer interface {
	Record(Event)
}

// emit reports an event about t to the tracer, if one is attached.
func (k *Kernel) emit(kind EventKind, t *Thread, detail string) {
	if k.tracer == nil {
		return
	}
	k.tracer.Record(Event{
		Tick:     k.lastTick,
		Kind:     kind,
		TID:      t.tid,
		Name:     t.name,
		Priority: t.priority,
		Detail:   detail,
	})
}
