package sched

import (
	"testing"

	"schedos/pkg/primitives"
)

// White-box tests of the donation engine on hand-built thread chains; no
// goroutines or switching involved. Integration tests with real locks live
// in sync_test.go.

func TestDonateRaisesHolder(t *testing.T) {
	k := New(Config{PoolPages: 2})

	holder := mkThread("holder", 1)
	waiter := mkThread("waiter", 5)

	l := NewLock(k)
	l.holder = holder
	waiter.waitingOn = l

	k.donate(waiter)
	if holder.priority != 5 {
		t.Errorf("holder priority = %d, want 5", holder.priority)
	}
}

func TestDonateNeverLowersHolder(t *testing.T) {
	k := New(Config{PoolPages: 2})

	holder := mkThread("holder", 40)
	waiter := mkThread("waiter", 5)

	l := NewLock(k)
	l.holder = holder
	waiter.waitingOn = l

	k.donate(waiter)
	if holder.priority != 40 {
		t.Errorf("holder priority = %d, want unchanged 40", holder.priority)
	}
}

func TestDonateWalksChain(t *testing.T) {
	k := New(Config{PoolPages: 2})

	// a(1) holds l1; b(3) holds l2 and waits on l1; c(5) waits on l2.
	a := mkThread("a", 1)
	b := mkThread("b", 3)
	c := mkThread("c", 5)

	l1 := NewLock(k)
	l1.holder = a
	l2 := NewLock(k)
	l2.holder = b

	b.waitingOn = l1
	c.waitingOn = l2

	k.donate(c)

	if b.priority != 5 {
		t.Errorf("b priority = %d, want 5", b.priority)
	}
	if a.priority != 5 {
		t.Errorf("a priority = %d, want 5", a.priority)
	}
}

func TestDonateStopsAtDepthBound(t *testing.T) {
	k := New(Config{PoolPages: 2})

	// Build a chain two hops longer than the bound: holders[0] holds
	// locks[0]; holders[i] waits on locks[i-1] and holds locks[i].
	const chain = donationMaxDepth + 2
	holders := make([]*Thread, chain)
	locks := make([]*Lock, chain)
	for i := range holders {
		holders[i] = mkThread("h", 1)
		locks[i] = NewLock(k)
		locks[i].holder = holders[i]
		if i > 0 {
			holders[i].waitingOn = locks[i-1]
		}
	}

	waiter := mkThread("waiter", 50)
	waiter.waitingOn = locks[chain-1]

	k.donate(waiter)

	// The walk raises the last donationMaxDepth holders and stops.
	for i := chain - 1; i >= chain-donationMaxDepth; i-- {
		if holders[i].priority != 50 {
			t.Errorf("holder %d priority = %d, want 50 (inside bound)",
				i, holders[i].priority)
		}
	}
	for i := 0; i < chain-donationMaxDepth; i++ {
		if holders[i].priority != 1 {
			t.Errorf("holder %d priority = %d, want 1 (beyond bound)",
				i, holders[i].priority)
		}
	}
}

func TestRevokeForLockDropsOnlyThatLock(t *testing.T) {
	k := New(Config{PoolPages: 2})

	holder := mkThread("holder", 10)
	l1 := NewLock(k)
	l1.holder = holder
	l2 := NewLock(k)
	l2.holder = holder

	w1 := mkThread("w1", 30)
	w1.waitingOn = l1
	w2 := mkThread("w2", 40)
	w2.waitingOn = l2

	k.addDonor(holder, w1)
	k.addDonor(holder, w2)
	k.recompute(holder)
	if holder.priority != 40 {
		t.Fatalf("holder priority = %d, want 40 before revoke", holder.priority)
	}

	k.revokeForLock(holder, l2)
	k.recompute(holder)

	if len(holder.donors) != 1 || holder.donors[0] != w1 {
		t.Error("revoke should drop only donations tied to the released lock")
	}
	if holder.priority != 30 {
		t.Errorf("holder priority = %d, want 30 after revoking l2", holder.priority)
	}

	k.revokeForLock(holder, l1)
	k.recompute(holder)
	if holder.priority != 10 {
		t.Errorf("holder priority = %d, want base 10 after revoking all", holder.priority)
	}
}

func TestRecomputeInvariant(t *testing.T) {
	k := New(Config{PoolPages: 2})

	holder := mkThread("holder", 20)
	l := NewLock(k)
	l.holder = holder

	donors := []*Thread{mkThread("d1", 5), mkThread("d2", 35), mkThread("d3", 25)}
	for _, d := range donors {
		d.waitingOn = l
		k.addDonor(holder, d)
	}
	k.recompute(holder)

	// priority == max(base, max donor priority)
	if holder.priority != 35 {
		t.Errorf("priority = %d, want 35", holder.priority)
	}
	if holder.basePriority != 20 {
		t.Errorf("basePriority = %d, want untouched 20", holder.basePriority)
	}

	// Dropping the top donor re-derives from the rest.
	k.revokeForLock(holder, l)
	k.recompute(holder)
	if holder.priority != 20 {
		t.Errorf("priority = %d, want base 20 with no donors", holder.priority)
	}
}

func TestAddDonorKeepsOrderedList(t *testing.T) {
	k := New(Config{PoolPages: 2})
	holder := mkThread("holder", 1)

	for _, p := range []primitives.Priority{10, 40, 25} {
		k.addDonor(holder, mkThread("d", p))
	}

	want := []primitives.Priority{40, 25, 10}
	for i, d := range holder.donors {
		if d.priority != want[i] {
			t.Fatalf("donor %d priority = %d, want %d", i, d.priority, want[i])
		}
	}
}
