package sched

import (
	"schedos/pkg/kerror"
	"schedos/pkg/primitives"
)

// sleepQueue holds blocked threads waiting for a wake-up deadline. The queue
// itself is unordered; nextWake caches the minimum pending deadline so the
// timer can skip the scan entirely on ticks where nothing is due.
type sleepQueue struct {
	items    []*Thread
	nextWake primitives.Ticks
}

func newSleepQueue() sleepQueue {
	return sleepQueue{nextWake: primitives.TickNever}
}

// add enqueues t (whose wakeupTick must already be set) and lowers the
// cached minimum if t's deadline is earlier.
func (q *sleepQueue) add(t *Thread) {
	if t.wakeupTick < q.nextWake {
		q.nextWake = t.wakeupTick
	}
	q.items = append(q.items, t)
}

func (q *sleepQueue) len() int {
	return len(q.items)
}

// NextWakeTick returns the earliest pending wake-up deadline, or
// primitives.TickNever when no thread is asleep. The timer collaborator
// reads this to decide whether a tick needs an Awake pass.
func (k *Kernel) NextWakeTick() primitives.Ticks {
	return k.sleepers.nextWake
}

// Sleep blocks the calling thread until the timer reaches deadline. Only the
// running thread may sleep, and never the idle thread. Interrupts are
// disabled for the whole operation and the prior level is restored when the
// thread is eventually rescheduled and returns.
func (k *Kernel) Sleep(deadline primitives.Ticks) {
	if k.intr.InHandler() {
		kerror.Panicf("Sleep", "Scheduler", "cannot sleep from interrupt context")
	}

	old := k.intr.Disable()
	cur := k.Current()
	if cur == k.idle {
		kerror.Panicf("Sleep", "Scheduler", "the idle thread cannot sleep")
	}

	cur.wakeupTick = deadline
	k.sleepers.add(cur)
	k.emit(EventSleep, cur, "")
	k.Block()

	// Rescheduled: the deadline has passed.
	cur.wakeupTick = primitives.TickNever
	k.intr.SetLevel(old)
}

// Awake moves every sleeper whose deadline has arrived back to the ready
// queue. It resets the cached minimum to "never", scans the whole queue
// once, and recomputes the minimum from the survivors. A full scan is
// deliberate: the queue is bounded by the live thread count and a heap would
// buy nothing at this scale.
//
// Called by the timer collaborator once per tick (via TimerInterrupt).
func (k *Kernel) Awake(now primitives.Ticks) {
	old := k.intr.Disable()

	k.sleepers.nextWake = primitives.TickNever
	remaining := k.sleepers.items[:0]
	for _, t := range k.sleepers.items {
		if t.wakeupTick <= now {
			k.emit(EventWake, t, "")
			k.Unblock(t)
			continue
		}
		if t.wakeupTick < k.sleepers.nextWake {
			k.sleepers.nextWake = t.wakeupTick
		}
		remaining = append(remaining, t)
	}
	// Drop the tail so freed slots do not pin dead threads.
	for i := len(remaining); i < len(k.sleepers.items); i++ {
		k.sleepers.items[i] = nil
	}
	k.sleepers.items = remaining

	k.intr.SetLevel(old)
}
