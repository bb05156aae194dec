package sched

import (
	"schedos/pkg/kernel/palloc"
	"schedos/pkg/kerror"
	"schedos/pkg/primitives"
)

// threadMagic is the fixed sentinel stored in every thread control block.
// The TCB lives at the base of the thread's stack page, so a stack overflow
// tramples this tag first; Current checks it on every call.
const threadMagic uint32 = 0xcd6abf4b

// Status is a thread's lifecycle state. Exactly one thread is StatusRunning
// at any instant (single CPU).
type Status int

const (
	// StatusRunning is the thread currently executing on the CPU.
	StatusRunning Status = iota
	// StatusReady is runnable but not running; the thread sits in the
	// ready queue.
	StatusReady
	// StatusBlocked is suspended, waiting for an explicit Unblock (lock
	// wait, semaphore wait, timed sleep).
	StatusBlocked
	// StatusDying is terminal; the thread's page is reclaimed on a later
	// scheduling pass by whichever thread switches away from it.
	StatusDying
)

// String returns the conventional upper-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusReady:
		return "READY"
	case StatusBlocked:
		return "BLOCKED"
	case StatusDying:
		return "DYING"
	default:
		return "INVALID"
	}
}

// ThreadFunc is a thread's entry function. If it returns, the thread exits.
type ThreadFunc func(arg any)

// AddressSpace is the external address-space collaborator for user-mode
// capable threads. The scheduler only ever asks it to activate the mapping
// belonging to the incoming thread; everything else about it is opaque.
type AddressSpace interface {
	Activate()
}

// frame is a thread's saved execution context.
//
// The contract of the context switch is: with interrupts off throughout,
// save the outgoing thread's complete execution state and resume the
// incoming thread exactly where it stopped. Here the machine register
// state is the goroutine itself, parked on gate; handing the token to the
// gate is the restore, and parking on one's own gate is the save. entry,
// arg and intrOn seed the very first dispatch, which has no parked state
// to resume.
type frame struct {
	entry  ThreadFunc
	arg    any
	intrOn bool // interrupt-enable flag restored at first dispatch
	gate   chan struct{}
}

// Thread is a thread control block. One page of pool memory backs the
// thread's stack and this record; the record's lifetime is governed solely
// by the scheduler's queues and the destruction mechanism, never by the
// auxiliary links (waitingOn, donors, parent/children), which are
// non-owning.
type Thread struct {
	tid    primitives.TID
	name   string
	status Status

	// priority is the effective scheduling priority; basePriority is the
	// value the owner requested. After every donation-affecting operation,
	// priority == max(basePriority, max donor priority).
	priority     primitives.Priority
	basePriority primitives.Priority

	// waitingOn is the lock this thread is blocked on, if any. donors are
	// the threads donating priority to this thread because they wait on a
	// lock it holds. Both are owned by the lock implementation and stored
	// here for locality; both follow the interrupts-off discipline.
	waitingOn *Lock
	donors    []*Thread

	// wakeupTick is meaningful only while the thread is in the sleep queue.
	wakeupTick primitives.Ticks

	parent   *Thread
	children []*Thread // FIFO creation order

	space AddressSpace // nil for pure kernel threads
	frame frame
	page  *palloc.Page // nil only for the bootstrap thread
	magic uint32
}

func newThread(name string, priority primitives.Priority, page *palloc.Page) *Thread {
	return &Thread{
		name:         name,
		status:       StatusBlocked,
		priority:     priority,
		basePriority: priority,
		wakeupTick:   primitives.TickNever,
		page:         page,
		magic:        threadMagic,
	}
}

// valid reports whether t appears to point to an intact thread.
func (t *Thread) valid() bool {
	return t != nil && t.magic == threadMagic
}

func assertThread(t *Thread, operation string) {
	if !t.valid() {
		kerror.Panicf(operation, "Scheduler",
			"corrupted thread control block (stack overflow?)")
	}
}

// TID returns the thread's identifier.
func (t *Thread) TID() primitives.TID { return t.tid }

// Name returns the thread's name.
func (t *Thread) Name() string { return t.name }

// Status returns the thread's lifecycle state.
func (t *Thread) Status() Status { return t.status }

// Priority returns the thread's effective priority.
func (t *Thread) Priority() primitives.Priority { return t.priority }

// BasePriority returns the priority the owner requested, independent of
// donation.
func (t *Thread) BasePriority() primitives.Priority { return t.basePriority }

// entryPoint is the goroutine body backing every created thread. It parks
// until the scheduler's first dispatch, restores the frame's interrupt flag,
// runs the entry function, and exits the thread if that returns.
func (t *Thread) entryPoint(k *Kernel) {
	<-t.frame.gate

	// The scheduler runs with interrupts off; the saved flags decide the
	// state the thread starts in.
	if t.frame.intrOn {
		k.intr.Enable()
	}
	t.frame.entry(t.frame.arg)
	k.Exit()
}

// ThreadInfo is a read-only snapshot of one thread, taken for tracing and
// the inspection surface.
type ThreadInfo struct {
	TID          primitives.TID
	Name         string
	Status       Status
	Priority     primitives.Priority
	BasePriority primitives.Priority
	WakeupTick   primitives.Ticks
	Donors       int
}

func (t *Thread) info() ThreadInfo {
	return ThreadInfo{
		TID:          t.tid,
		Name:         t.name,
		Status:       t.status,
		Priority:     t.priority,
		BasePriority: t.basePriority,
		WakeupTick:   t.wakeupTick,
		Donors:       len(t.donors),
	}
}
