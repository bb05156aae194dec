package sched

import (
	"slices"

	"schedos/pkg/kerror"
	"schedos/pkg/primitives"
)

// donationMaxDepth bounds the lock-holder chain walked by donate. The bound
// keeps the worst-case donation cost fixed and guarantees termination even
// if chain bookkeeping is inconsistent; stopping early in a deeper chain is
// an accepted trade-off, not an error.
const donationMaxDepth = 8

// byDonatedPriority orders donor threads by descending effective priority.
func byDonatedPriority(a, b *Thread) int {
	return int(b.priority) - int(a.priority)
}

// donate walks the chain of lock holders starting at waiter and raises the
// effective priority of every holder below the walker's priority. The walk
// moves to each holder in turn and continues only while that holder is
// itself waiting on another lock, up to donationMaxDepth hops.
func (k *Kernel) donate(waiter *Thread) {
	cur := waiter
	for depth := 0; depth < donationMaxDepth; depth++ {
		if cur.waitingOn == nil {
			break
		}
		holder := cur.waitingOn.holder
		if holder == nil {
			break
		}
		if holder.priority < cur.priority {
			holder.priority = cur.priority
			k.emit(EventDonate, holder, "from "+cur.name)
		}
		cur = holder
	}
}

// addDonor records waiter as donating to holder, keeping the donor list
// ordered by descending priority (stable for ties).
func (k *Kernel) addDonor(holder, waiter *Thread) {
	at := len(holder.donors)
	for i, d := range holder.donors {
		if d.priority < waiter.priority {
			at = i
			break
		}
	}
	holder.donors = slices.Insert(holder.donors, at, waiter)
}

// revokeForLock drops from holder's donor list every waiter whose donation
// is tied to l. A holder may carry donations for several locks it holds at
// once; only the ones tied to the released lock are removed.
func (k *Kernel) revokeForLock(holder *Thread, l *Lock) {
	holder.donors = slices.DeleteFunc(holder.donors, func(d *Thread) bool {
		return d.waitingOn == l
	})
}

// recompute derives t's effective priority from scratch: the base priority,
// raised to the highest remaining donor's priority if that is greater. This
// is the single source of truth for effective priority and runs after every
// donation-affecting mutation.
func (k *Kernel) recompute(t *Thread) {
	t.priority = t.basePriority
	if len(t.donors) == 0 {
		return
	}

	// Donor priorities may have changed since insertion (chained donation),
	// so re-sort before reading the front.
	slices.SortStableFunc(t.donors, byDonatedPriority)
	if top := t.donors[0].priority; top > t.priority {
		t.priority = top
	}
}

// SetPriority updates the calling thread's base priority. The effective
// priority is rederived, so lowering the base while donations are active
// leaves the donated value in place. A preemption check runs afterwards: if
// the change drops the caller below the ready queue's front, it yields.
func (k *Kernel) SetPriority(p primitives.Priority) {
	if !p.Valid() {
		kerror.Panicf("SetPriority", "Scheduler", "priority %d out of range", p)
	}

	old := k.intr.Disable()
	cur := k.Current()
	cur.basePriority = p
	k.recompute(cur)
	k.emit(EventSetPriority, cur, "")
	k.intr.SetLevel(old)

	k.maybeYield()
}

// GetPriority returns the calling thread's effective priority.
func (k *Kernel) GetPriority() primitives.Priority {
	return k.Current().priority
}
