package sched

import (
	"slices"

	"schedos/pkg/kerror"
)

// Semaphore is a counting semaphore for kernel threads. Waiters are kept
// ordered by effective priority so Up always wakes the most urgent thread.
// All state is mutated with interrupts off.
type Semaphore struct {
	k       *Kernel
	value   int
	waiters []*Thread
}

// NewSemaphore creates a semaphore with the given initial value.
func NewSemaphore(k *Kernel, value int) *Semaphore {
	if value < 0 {
		kerror.Panicf("NewSemaphore", "Semaphore", "negative initial value %d", value)
	}
	return &Semaphore{k: k, value: value}
}

// Down decrements the semaphore, blocking until the value is positive.
// Never callable from interrupt context: it may sleep.
func (s *Semaphore) Down() {
	if s.k.intr.InHandler() {
		kerror.Panicf("Down", "Semaphore", "cannot wait from interrupt context")
	}

	old := s.k.intr.Disable()
	for s.value == 0 {
		s.insertWaiter(s.k.Current())
		s.k.Block()
	}
	s.value--
	s.k.intr.SetLevel(old)
}

// TryDown decrements the semaphore only if that is possible without
// blocking. Reports whether it succeeded. Safe from interrupt context.
func (s *Semaphore) TryDown() bool {
	old := s.k.intr.Disable()
	ok := s.value > 0
	if ok {
		s.value--
	}
	s.k.intr.SetLevel(old)
	return ok
}

// Up increments the semaphore and wakes the highest-priority waiter, if
// any. Safe from interrupt context. Outside one, it runs a preemption check
// so a freshly woken higher-priority thread takes over immediately.
func (s *Semaphore) Up() {
	old := s.k.intr.Disable()
	if len(s.waiters) > 0 {
		// Waiter priorities may have changed (donation) since they were
		// inserted; re-sort before picking the front.
		slices.SortStableFunc(s.waiters, byDonatedPriority)
		t := s.waiters[0]
		s.waiters[0] = nil
		s.waiters = s.waiters[1:]
		s.k.Unblock(t)
	}
	s.value++
	s.k.intr.SetLevel(old)

	s.k.maybeYield()
}

// Value returns the current semaphore value (inspection only).
func (s *Semaphore) Value() int {
	return s.value
}

// insertWaiter places t before the first waiter with strictly lower
// priority, keeping the list ordered and stable.
func (s *Semaphore) insertWaiter(t *Thread) {
	at := len(s.waiters)
	for i, w := range s.waiters {
		if w.priority < t.priority {
			at = i
			break
		}
	}
	s.waiters = slices.Insert(s.waiters, at, t)
}

// Lock is a mutual-exclusion lock owned by at most one thread at a time.
// Contended acquisition feeds the priority donation engine: a waiter records
// itself as a donor of the holder and walks the holder chain raising
// priorities, so a low-priority holder cannot stall a high-priority waiter
// behind an unbounded inversion.
type Lock struct {
	k      *Kernel
	holder *Thread
	sema   *Semaphore
}

// NewLock creates an unheld lock.
func NewLock(k *Kernel) *Lock {
	return &Lock{k: k, sema: NewSemaphore(k, 1)}
}

// Acquire takes the lock, blocking until it is available. Reacquiring a
// lock the caller already holds is a fatal contract violation.
func (l *Lock) Acquire() {
	if l.k.intr.InHandler() {
		kerror.Panicf("Acquire", "Lock", "cannot acquire from interrupt context")
	}
	cur := l.k.Current()
	if l.holder == cur {
		kerror.Panicf("Acquire", "Lock",
			"thread %d (%s) already holds this lock", cur.tid, cur.name)
	}

	old := l.k.intr.Disable()
	if l.holder != nil {
		// Contended: register as a donor of the holder and push our
		// priority down the chain of holders.
		cur.waitingOn = l
		l.k.addDonor(l.holder, cur)
		l.k.donate(cur)
	}
	l.k.intr.SetLevel(old)

	l.sema.Down()

	old = l.k.intr.Disable()
	cur.waitingOn = nil
	l.holder = cur
	l.k.intr.SetLevel(old)
}

// TryAcquire takes the lock only if it is free, without blocking or
// donating. Reports whether it succeeded.
func (l *Lock) TryAcquire() bool {
	cur := l.k.Current()
	if !l.sema.TryDown() {
		return false
	}
	old := l.k.intr.Disable()
	l.holder = cur
	l.k.intr.SetLevel(old)
	return true
}

// Release gives up the lock. Donations received for this specific lock are
// revoked and the caller's effective priority is rederived before the next
// waiter is woken, so the caller drops back to its rightful priority and the
// wake-up's preemption check sees the true ordering.
func (l *Lock) Release() {
	cur := l.k.Current()
	if l.holder != cur {
		kerror.Panicf("Release", "Lock",
			"thread %d (%s) does not hold this lock", cur.tid, cur.name)
	}

	old := l.k.intr.Disable()
	l.k.revokeForLock(cur, l)
	l.k.recompute(cur)
	l.holder = nil
	l.k.intr.SetLevel(old)

	l.sema.Up()
}

// Holder returns the thread currently holding the lock, or nil.
func (l *Lock) Holder() *Thread {
	return l.holder
}

// HeldByCurrent reports whether the calling thread holds the lock.
func (l *Lock) HeldByCurrent() bool {
	return l.holder == l.k.Current()
}

// condWaiter pairs a waiting thread with the private semaphore it parks on.
type condWaiter struct {
	t    *Thread
	sema *Semaphore
}

// Cond is a condition variable. Wait atomically releases the associated
// lock and suspends the caller; Signal wakes the highest-priority waiter.
type Cond struct {
	k       *Kernel
	waiters []*condWaiter
}

// NewCond creates a condition variable for threads of kernel k.
func NewCond(k *Kernel) *Cond {
	return &Cond{k: k}
}

// Wait releases l, suspends the calling thread until Signal, and reacquires
// l before returning. The caller must hold l.
func (c *Cond) Wait(l *Lock) {
	if c.k.intr.InHandler() {
		kerror.Panicf("Wait", "Cond", "cannot wait from interrupt context")
	}
	if !l.HeldByCurrent() {
		kerror.Panicf("Wait", "Cond", "caller does not hold the lock")
	}

	w := &condWaiter{t: c.k.Current(), sema: NewSemaphore(c.k, 0)}
	old := c.k.intr.Disable()
	c.waiters = append(c.waiters, w)
	c.k.intr.SetLevel(old)

	l.Release()
	w.sema.Down()
	l.Acquire()
}

// Signal wakes the highest-priority thread waiting on c, if any. The caller
// must hold l.
func (c *Cond) Signal(l *Lock) {
	if !l.HeldByCurrent() {
		kerror.Panicf("Signal", "Cond", "caller does not hold the lock")
	}

	old := c.k.intr.Disable()
	var w *condWaiter
	if len(c.waiters) > 0 {
		slices.SortStableFunc(c.waiters, func(a, b *condWaiter) int {
			return int(b.t.priority) - int(a.t.priority)
		})
		w = c.waiters[0]
		c.waiters[0] = nil
		c.waiters = c.waiters[1:]
	}
	c.k.intr.SetLevel(old)

	if w != nil {
		w.sema.Up()
	}
}

// Broadcast wakes every thread waiting on c. The caller must hold l.
func (c *Cond) Broadcast(l *Lock) {
	for len(c.waiters) > 0 {
		c.Signal(l)
	}
}
