// Package sched implements the thread-scheduling core: thread lifecycle,
// the priority ready queue, timed sleep, deferred destruction, transitive
// priority donation, and the context switch between kernel threads.
//
// The kernel models a single logical CPU. Every kernel thread is a goroutine
// parked on its own resume gate; at most one of them executes kernel code at
// any instant, and the context switch hands the CPU from one gate to the
// next. Concurrency arises only from explicit switches and from interrupts,
// which are calls (TimerInterrupt) made on the running context. All
// scheduler-owned state is mutated only while interrupts are disabled on the
// interrupt controller; that discipline is the sole mutual exclusion.
package sched

import (
	"runtime"
	"slices"

	"schedos/pkg/kernel/interrupt"
	"schedos/pkg/kernel/palloc"
	"schedos/pkg/kerror"
	"schedos/pkg/logging"
	"schedos/pkg/primitives"
)

// TimeSlice is the scheduling quantum: the number of timer ticks a thread
// may run before a preemption is requested.
const TimeSlice = 4

// defaultPoolPages bounds the number of live threads when the configuration
// does not say otherwise.
const defaultPoolPages = 64

// Platform is the hardware seam the idle thread waits on. Halt returns when
// the next interrupt has been delivered; a simulator typically advances its
// virtual clock and calls TimerInterrupt inside it.
type Platform interface {
	Halt()
}

// PlatformFunc adapts a plain function to the Platform interface.
type PlatformFunc func()

// Halt calls f.
func (f PlatformFunc) Halt() { f() }

// Config tunes a kernel instance.
type Config struct {
	// PoolPages is the number of stack pages in the allocator, bounding
	// the number of simultaneously live threads. Zero selects a default.
	PoolPages int

	// PageSize is the size of each stack page. Zero selects the palloc
	// default.
	PageSize int

	// Platform is the idle thread's wait-for-interrupt hook. When nil the
	// idle thread just spins politely; a kernel with sleepers then needs
	// some running thread to deliver timer interrupts.
	Platform Platform

	// Tracer receives scheduler events; may be nil.
	Tracer Tracer

	// MaskedUserDispatch, when true, first-dispatches threads that carry
	// an address space with interrupts still disabled; such threads must
	// enable interrupts themselves. Kernel threads always start with
	// interrupts enabled.
	MaskedUserDispatch bool
}

// Stats counts timer ticks by the nature of the thread that was running.
type Stats struct {
	IdleTicks   int64
	KernelTicks int64
	UserTicks   int64
}

// Kernel is the scheduler context: it owns the ready, sleep and destruction
// queues, the idle thread, the tid counter, and the page pool. Construct one
// with New, adopt the calling goroutine with Bootstrap, then Start it.
type Kernel struct {
	intr *interrupt.Controller
	pool *palloc.Pool

	ready       readyQueue
	sleepers    sleepQueue
	destruction []*Thread
	threads     []*Thread // every live thread, registry for inspection

	running   *Thread
	idle      *Thread
	bootstrap *Thread

	nextTID    primitives.TID
	sliceTicks int
	lastTick   primitives.Ticks
	stats      Stats

	platform           Platform
	tracer             Tracer
	maskedUserDispatch bool
	started            bool
}

// New creates a kernel in the boot state: interrupts off, no threads.
func New(cfg Config) *Kernel {
	pages := cfg.PoolPages
	if pages == 0 {
		pages = defaultPoolPages
	}
	platform := cfg.Platform
	if platform == nil {
		platform = PlatformFunc(runtime.Gosched)
	}

	return &Kernel{
		intr:               interrupt.New(),
		pool:               palloc.NewPool(pages, cfg.PageSize),
		sleepers:           newSleepQueue(),
		nextTID:            1,
		platform:           platform,
		tracer:             cfg.Tracer,
		maskedUserDispatch: cfg.MaskedUserDispatch,
	}
}

// Interrupts exposes the kernel's interrupt controller.
func (k *Kernel) Interrupts() *interrupt.Controller {
	return k.intr
}

// Pool exposes the stack page pool (read its counters for inspection).
func (k *Kernel) Pool() *palloc.Pool {
	return k.pool
}

// Bootstrap transforms the calling goroutine into the initial kernel thread.
// It must run before any thread is created and with interrupts still off;
// Current is not valid until it returns. The bootstrap thread has no pool
// page: its stack predates the allocator and is never reclaimed.
func (k *Kernel) Bootstrap(name string) {
	if k.bootstrap != nil {
		kerror.Panicf("Bootstrap", "Scheduler", "kernel already bootstrapped")
	}
	if k.intr.Level() != interrupt.Off {
		kerror.Panicf("Bootstrap", "Scheduler", "interrupts must be off at boot")
	}

	t := newThread(name, primitives.PriorityDefault, nil)
	t.status = StatusRunning
	t.tid = k.allocateTID()
	t.frame.gate = make(chan struct{}, 1)
	k.bootstrap = t
	k.running = t
	k.threads = append(k.threads, t)
}

// Start begins preemptive scheduling: it creates the idle thread, enables
// interrupts, and waits for the idle thread's startup handshake.
func (k *Kernel) Start() {
	if k.started {
		kerror.Panicf("Start", "Scheduler", "kernel already started")
	}
	k.started = true

	idleStarted := NewSemaphore(k, 0)
	if _, err := k.Create("idle", primitives.PriorityMin, k.idleLoop, idleStarted); err != nil {
		kerror.Panicf("Start", "Scheduler", "cannot create idle thread: %v", err)
	}

	k.intr.Enable()
	idleStarted.Down()

	logging.WithComponent("Scheduler").Info("kernel started",
		"pool_pages", k.pool.Capacity())
}

// idleLoop is the body of the idle thread. It publishes itself, completes
// the startup handshake, and then permanently alternates between blocking
// and waiting for the next interrupt. The idle thread is selected whenever
// the ready queue is empty and never appears in the ready queue itself.
func (k *Kernel) idleLoop(arg any) {
	idleStarted := arg.(*Semaphore)
	k.idle = k.Current()
	idleStarted.Up()

	for {
		// Let someone else run.
		k.intr.Disable()
		k.Block()

		// Re-enable interrupts and wait for the next one.
		k.intr.Enable()
		k.platform.Halt()
	}
}

// Create allocates a new kernel thread that runs fn(arg) at the given
// priority and puts it on the ready queue. Returns the new thread's tid, or
// an error if no stack page could be allocated. The creator becomes the
// thread's parent. If the new thread outranks the caller, the caller yields
// before returning.
func (k *Kernel) Create(name string, priority primitives.Priority, fn ThreadFunc, arg any) (primitives.TID, error) {
	return k.create(name, priority, nil, fn, arg)
}

// CreateProcess is Create for a user-mode-capable thread: space is activated
// on every switch to the thread, and timer ticks while it runs are accounted
// as user ticks.
func (k *Kernel) CreateProcess(name string, priority primitives.Priority, space AddressSpace, fn ThreadFunc, arg any) (primitives.TID, error) {
	return k.create(name, priority, space, fn, arg)
}

func (k *Kernel) create(name string, priority primitives.Priority, space AddressSpace, fn ThreadFunc, arg any) (primitives.TID, error) {
	if fn == nil {
		kerror.Panicf("Create", "Scheduler", "nil entry function")
	}
	if !priority.Valid() {
		kerror.Panicf("Create", "Scheduler", "priority %d out of range", priority)
	}

	page, err := k.pool.Get()
	if err != nil {
		return primitives.TIDError, kerror.Wrap(err, "THREAD_ALLOC", "Create", "Scheduler")
	}

	t := newThread(name, priority, page)
	t.space = space
	t.frame = frame{
		entry:  fn,
		arg:    arg,
		intrOn: space == nil || !k.maskedUserDispatch,
		gate:   make(chan struct{}, 1),
	}

	old := k.intr.Disable()
	t.tid = k.allocateTID()

	parent := k.Current()
	t.parent = parent
	parent.children = append(parent.children, t)

	k.threads = append(k.threads, t)
	k.emit(EventCreate, t, "")
	logging.WithThread(int32(t.tid), t.name).Debug("thread created",
		"priority", priority)

	go t.entryPoint(k)

	k.Unblock(t)
	k.intr.SetLevel(old)

	k.maybeYield()
	return t.tid, nil
}

// Block suspends the calling thread until Unblock. It must be called with
// interrupts already disabled and never from interrupt context; callers
// usually want a synchronization primitive instead.
func (k *Kernel) Block() {
	if k.intr.InHandler() {
		kerror.Panicf("Block", "Scheduler", "cannot block from interrupt context")
	}
	if k.intr.Level() != interrupt.Off {
		kerror.Panicf("Block", "Scheduler", "interrupts must be off")
	}
	k.emit(EventBlock, k.running, "")
	k.reschedule(StatusBlocked)
}

// Unblock transitions a blocked thread to ready and inserts it into the
// ready queue by priority. Unblocking a thread that is not blocked is a
// fatal contract violation. Unblock never preempts the running thread: the
// caller may be relying on atomically unblocking and continuing with
// interrupts off.
func (k *Kernel) Unblock(t *Thread) {
	assertThread(t, "Unblock")

	old := k.intr.Disable()
	if t.status != StatusBlocked {
		kerror.Panicf("Unblock", "Scheduler",
			"thread %d (%s) is %s, not BLOCKED", t.tid, t.name, t.status)
	}
	k.ready.insert(t)
	t.status = StatusReady
	k.emit(EventUnblock, t, "")
	k.intr.SetLevel(old)
}

// Yield gives up the CPU voluntarily. The calling thread keeps its effective
// priority and reenters the ready queue (unless it is the idle thread), so
// it may be rescheduled immediately if it still outranks everyone else.
func (k *Kernel) Yield() {
	if k.intr.InHandler() {
		kerror.Panicf("Yield", "Scheduler", "cannot yield from interrupt context")
	}
	cur := k.Current()

	old := k.intr.Disable()
	if cur != k.idle {
		k.ready.insert(cur)
	}
	k.reschedule(StatusReady)
	k.intr.SetLevel(old)
}

// Exit deschedules the calling thread and destroys it. It never returns:
// the thread is marked dying, another thread is scheduled, and the dying
// thread's page is reclaimed on a later scheduling pass by whichever thread
// switches away from it.
func (k *Kernel) Exit() {
	if k.intr.InHandler() {
		kerror.Panicf("Exit", "Scheduler", "cannot exit from interrupt context")
	}
	cur := k.Current()
	k.emit(EventExit, cur, "")
	logging.WithThread(int32(cur.tid), cur.name).Debug("thread exiting")

	k.intr.Disable()
	k.reschedule(StatusDying)

	// The dying goroutine must not keep executing past the switch.
	runtime.Goexit()
}

// Current returns the running thread. It is valid only after Bootstrap and
// only from a genuine scheduled thread; the integrity tag and status checks
// catch stack overflows and calls from outside the kernel's threads.
func (k *Kernel) Current() *Thread {
	t := k.running
	assertThread(t, "Current")
	if t.status != StatusRunning {
		kerror.Panicf("Current", "Scheduler",
			"running thread %d has status %s", t.tid, t.status)
	}
	return t
}

// TID returns the running thread's identifier.
func (k *Kernel) TID() primitives.TID {
	return k.Current().tid
}

// Name returns the running thread's name.
func (k *Kernel) Name() string {
	return k.Current().name
}

// Lookup returns the live thread with the given tid, or nil.
func (k *Kernel) Lookup(tid primitives.TID) *Thread {
	old := k.intr.Disable()
	defer k.intr.SetLevel(old)
	for _, t := range k.threads {
		if t.tid == tid {
			return t
		}
	}
	return nil
}

// Snapshot returns a point-in-time view of every live thread.
func (k *Kernel) Snapshot() []ThreadInfo {
	old := k.intr.Disable()
	defer k.intr.SetLevel(old)

	infos := make([]ThreadInfo, 0, len(k.threads))
	for _, t := range k.threads {
		infos = append(infos, t.info())
	}
	return infos
}

// Stats returns the tick counters accumulated so far.
func (k *Kernel) Stats() Stats {
	return k.stats
}

// Tick runs the per-tick preemption accounting: it attributes the tick to
// the idle, kernel, or user counter and requests a deferred yield when the
// running thread's time slice is used up. It runs in interrupt context; the
// timer collaborator calls it through TimerInterrupt.
func (k *Kernel) Tick() {
	t := k.running
	switch {
	case t == k.idle:
		k.stats.IdleTicks++
	case t.space != nil:
		k.stats.UserTicks++
	default:
		k.stats.KernelTicks++
	}

	k.sliceTicks++
	if k.sliceTicks >= TimeSlice {
		k.intr.RequestYieldOnReturn()
	}
}

// TimerInterrupt delivers one timer tick to the kernel: preemption
// accounting, waking of due sleepers, and—after the handler has finished—
// any preemption the tick requested. It must be called on the running
// context (the platform's interrupt delivery or a test harness), never from
// inside another handler.
func (k *Kernel) TimerInterrupt(now primitives.Ticks) {
	prev := k.intr.EnterHandler()
	k.lastTick = now
	k.Tick()
	if now >= k.sleepers.nextWake {
		k.Awake(now)
	}
	k.intr.LeaveHandler(prev)

	if k.intr.TakeYieldRequest() {
		k.Yield()
	}
}

// maybeYield preempts the calling thread if the ready queue's front now
// outranks it. Runs after thread creation and after any priority change, so
// higher-priority work starts promptly instead of waiting for the next
// timer tick. Inside interrupt handlers preemption is deferred to the
// handler's return path instead.
func (k *Kernel) maybeYield() {
	if k.intr.InHandler() {
		return
	}

	old := k.intr.Disable()
	front, ok := k.ready.frontPriority()
	shouldYield := ok && k.running.priority < front
	k.intr.SetLevel(old)

	if shouldYield {
		k.Yield()
	}
}

// reschedule is the core scheduling operation. With interrupts off and the
// caller running, it reclaims previously died threads, records the caller's
// next status, and switches to the highest-priority ready thread (or idle).
func (k *Kernel) reschedule(next Status) {
	if k.intr.Level() != interrupt.Off {
		kerror.Panicf("reschedule", "Scheduler", "interrupts must be off")
	}
	cur := k.running
	assertThread(cur, "reschedule")
	if cur.status != StatusRunning {
		kerror.Panicf("reschedule", "Scheduler",
			"caller has status %s, not RUNNING", cur.status)
	}

	// Threads that died on a previous switch are no longer executing on
	// their stacks, so their pages can be reclaimed now.
	k.drainDestruction()

	cur.status = next
	k.schedule(cur)
}

func (k *Kernel) schedule(cur *Thread) {
	next := k.nextThreadToRun()
	assertThread(next, "schedule")

	next.status = StatusRunning
	k.running = next
	k.sliceTicks = 0 // start a new time slice

	if next.space != nil {
		next.space.Activate()
	}

	if cur != next {
		// A dying thread's page cannot be freed here: its stack is in use
		// until the switch below completes. Queue it for the next pass.
		// The bootstrap thread's stack is not pool memory and is exempt.
		if cur.status == StatusDying && cur != k.bootstrap {
			k.destruction = append(k.destruction, cur)
		}
		k.emit(EventSwitch, next, "from "+cur.name)
		k.switchTo(cur, next)
	}
}

// nextThreadToRun picks the highest-priority ready thread, or the idle
// thread if the ready queue is empty.
func (k *Kernel) nextThreadToRun() *Thread {
	if t := k.ready.popFront(); t != nil {
		return t
	}
	return k.idle
}

// switchTo is the context-switch primitive. With interrupts off, it restores
// the incoming thread's saved context by handing a token to its resume gate,
// then saves the outgoing thread's context by parking on its own gate. The
// outgoing side must touch nothing between the two steps: the incoming
// thread owns the CPU from the moment the token is delivered. A dying thread
// parks nowhere; its goroutine unwinds in Exit.
func (k *Kernel) switchTo(cur, next *Thread) {
	// Read our own fate before the handover: once the token is delivered
	// the incoming side owns all scheduler state, including cur's status.
	dying := cur.status == StatusDying

	next.frame.gate <- struct{}{}
	if dying {
		return
	}
	<-cur.frame.gate
}

// drainDestruction reclaims every thread that died on a previous switch.
func (k *Kernel) drainDestruction() {
	if len(k.destruction) == 0 {
		return
	}
	for _, victim := range k.destruction {
		k.emit(EventDestroy, victim, "")
		k.threads = slices.DeleteFunc(k.threads, func(t *Thread) bool {
			return t == victim
		})
		victim.magic = 0
		k.pool.Free(victim.page)
	}
	k.destruction = k.destruction[:0]
}

// allocateTID hands out the next thread identifier. TIDs are monotonic and
// never reused. Interrupts are disabled for the read-modify-write; on this
// single CPU that excludes every other mutator.
func (k *Kernel) allocateTID() primitives.TID {
	old := k.intr.Disable()
	tid := k.nextTID
	k.nextTID++
	k.intr.SetLevel(old)
	return tid
}
