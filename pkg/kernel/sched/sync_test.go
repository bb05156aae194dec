package sched

import (
	"testing"

	"schedos/pkg/primitives"
)

func TestSemaphoreTryDown(t *testing.T) {
	k := newTestKernel(t, 0)
	s := NewSemaphore(k, 1)

	if !s.TryDown() {
		t.Error("TryDown on a positive semaphore should succeed")
	}
	if s.TryDown() {
		t.Error("TryDown on a zero semaphore should fail")
	}
	s.Up()
	if s.Value() != 1 {
		t.Errorf("value = %d after Up, want 1", s.Value())
	}
}

func TestSemaphoreNegativeValuePanics(t *testing.T) {
	k := newTestKernel(t, 0)
	defer func() {
		if recover() == nil {
			t.Error("negative initial value should panic")
		}
	}()
	NewSemaphore(k, -1)
}

func TestSemaphoreDownFromInterruptContextPanics(t *testing.T) {
	k := newTestKernel(t, 0)
	s := NewSemaphore(k, 1)

	prev := k.Interrupts().EnterHandler()
	defer k.Interrupts().LeaveHandler(prev)
	defer func() {
		if recover() == nil {
			t.Error("Down from interrupt context should panic")
		}
	}()
	s.Down()
}

func TestSemaphoreWakesHighestPriorityFirst(t *testing.T) {
	k := newTestKernel(t, 0)
	s := NewSemaphore(k, 0)

	var order []string
	waitOn := func(name string) ThreadFunc {
		return func(any) {
			s.Down()
			order = append(order, name)
		}
	}
	if _, err := k.Create("w40", 40, waitOn("w40"), nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := k.Create("w45", 45, waitOn("w45"), nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// Both outranked us at creation, ran, and are parked in Down.

	s.Up()
	s.Up()

	if len(order) != 2 || order[0] != "w45" || order[1] != "w40" {
		t.Errorf("wake order = %v, want [w45 w40]", order)
	}
}

func TestLockMutualExclusionAndSingleDonation(t *testing.T) {
	k := newTestKernel(t, 0)
	l := NewLock(k)

	l.Acquire()
	if !l.HeldByCurrent() {
		t.Fatal("HeldByCurrent should be true after Acquire")
	}

	entered := false
	_, err := k.Create("waiter", 40, func(any) {
		l.Acquire()
		entered = true
		l.Release()
	}, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// The waiter preempted us, hit the held lock, donated, and blocked.
	if entered {
		t.Fatal("waiter must not enter the critical section while we hold the lock")
	}
	if got := k.GetPriority(); got != 40 {
		t.Errorf("holder effective priority = %d, want donated 40", got)
	}
	if got := k.Current().BasePriority(); got != primitives.PriorityDefault {
		t.Errorf("base priority = %d, donation must not touch it", got)
	}

	l.Release()

	// Release revoked the donation and the waiter took over immediately.
	if !entered {
		t.Error("waiter should run as soon as the lock is released")
	}
	if got := k.GetPriority(); got != primitives.PriorityDefault {
		t.Errorf("effective priority = %d after release, want base %d",
			got, primitives.PriorityDefault)
	}
}

func TestLockTryAcquire(t *testing.T) {
	k := newTestKernel(t, 0)
	l := NewLock(k)

	l.Acquire()
	if l.TryAcquire() {
		t.Error("TryAcquire on a held lock should fail")
	}
	l.Release()

	if !l.TryAcquire() {
		t.Error("TryAcquire on a free lock should succeed")
	}
	if !l.HeldByCurrent() {
		t.Error("TryAcquire success should record the caller as holder")
	}
	l.Release()
}

func TestLockReacquirePanics(t *testing.T) {
	k := newTestKernel(t, 0)
	l := NewLock(k)
	l.Acquire()

	defer func() {
		if recover() == nil {
			t.Error("reacquiring a held lock should panic")
		}
	}()
	l.Acquire()
}

func TestLockReleaseByNonHolderPanics(t *testing.T) {
	k := newTestKernel(t, 0)
	l := NewLock(k)

	defer func() {
		if recover() == nil {
			t.Error("releasing an unheld lock should panic")
		}
	}()
	l.Release()
}

func TestMultiLockDonationUnwindsPerLock(t *testing.T) {
	k := newTestKernel(t, 0)
	l1 := NewLock(k)
	l2 := NewLock(k)

	l1.Acquire()
	l2.Acquire()

	mk := func(name string, prio primitives.Priority, l *Lock) {
		if _, err := k.Create(name, prio, func(any) {
			l.Acquire()
			l.Release()
		}, nil); err != nil {
			t.Fatalf("Create %s failed: %v", name, err)
		}
	}
	mk("w40", 40, l1)
	mk("w45", 45, l2)

	if got := k.GetPriority(); got != 45 {
		t.Fatalf("effective priority = %d with both donors, want 45", got)
	}

	// Releasing l2 sheds only l2's donation; w40 still props us up.
	l2.Release()
	if got := k.GetPriority(); got != 40 {
		t.Errorf("effective priority = %d after releasing l2, want 40", got)
	}

	l1.Release()
	if got := k.GetPriority(); got != primitives.PriorityDefault {
		t.Errorf("effective priority = %d after releasing both, want base %d",
			got, primitives.PriorityDefault)
	}
}

func TestChainedDonationPropagatesAndUnwinds(t *testing.T) {
	k := newTestKernel(t, 0)
	l1 := NewLock(k)
	l2 := NewLock(k)
	holdA := NewSemaphore(k, 0)

	// a holds l1 and parks; b holds l2 and waits for l1; c waits for l2.
	// c's priority must reach a through the chain.
	var aAfterWake, bInsideL1 primitives.Priority = -1, -1

	aTID, err := k.Create("a", 35, func(any) {
		l1.Acquire()
		holdA.Down()
		aAfterWake = k.GetPriority()
		l1.Release()
	}, nil)
	if err != nil {
		t.Fatalf("Create a failed: %v", err)
	}

	bTID, err := k.Create("b", 40, func(any) {
		l2.Acquire()
		l1.Acquire()
		bInsideL1 = k.GetPriority()
		l1.Release()
		l2.Release()
	}, nil)
	if err != nil {
		t.Fatalf("Create b failed: %v", err)
	}
	if got := k.Lookup(aTID).Priority(); got != 40 {
		t.Fatalf("a priority = %d after b's donation, want 40", got)
	}

	cDone := false
	if _, err := k.Create("c", 45, func(any) {
		l2.Acquire()
		l2.Release()
		cDone = true
	}, nil); err != nil {
		t.Fatalf("Create c failed: %v", err)
	}

	// c donated to b, and the walk carried it on to a.
	if got := k.Lookup(bTID).Priority(); got != 45 {
		t.Errorf("b priority = %d after c's donation, want 45", got)
	}
	if got := k.Lookup(aTID).Priority(); got != 45 {
		t.Errorf("a priority = %d after transitive donation, want 45", got)
	}

	// Let a go; the whole chain drains highest-priority-first.
	holdA.Up()

	if !cDone {
		t.Error("chain should fully unwind once a releases l1")
	}
	if aAfterWake != 45 {
		t.Errorf("a ran at priority %d while still holding l1, want 45", aAfterWake)
	}
	if bInsideL1 != 45 {
		t.Errorf("b held l1 at priority %d while c waited, want 45", bInsideL1)
	}
}

func TestSetPriorityDefersToActiveDonation(t *testing.T) {
	k := newTestKernel(t, 0)
	l := NewLock(k)
	l.Acquire()

	if _, err := k.Create("waiter", 50, func(any) {
		l.Acquire()
		l.Release()
	}, nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if got := k.GetPriority(); got != 50 {
		t.Fatalf("effective priority = %d with a donor, want 50", got)
	}

	// Lowering the base while donated-to changes the base only.
	k.SetPriority(10)
	if got := k.GetPriority(); got != 50 {
		t.Errorf("effective priority = %d, donation must keep it at 50", got)
	}
	if got := k.Current().BasePriority(); got != 10 {
		t.Errorf("base priority = %d, want 10", got)
	}

	// Once the donation is revoked the lowered base takes effect.
	l.Release()
	if got := k.GetPriority(); got != 10 {
		t.Errorf("effective priority = %d after release, want base 10", got)
	}
	k.SetPriority(primitives.PriorityDefault)
}

func TestSetPriorityRejectsOutOfRange(t *testing.T) {
	k := newTestKernel(t, 0)
	defer func() {
		if recover() == nil {
			t.Error("out-of-range priority should panic")
		}
	}()
	k.SetPriority(primitives.PriorityMax + 1)
}

func TestCondSignalWakesHighestPriority(t *testing.T) {
	k := newTestKernel(t, 0)
	l := NewLock(k)
	cond := NewCond(k)

	var order []string
	waitOn := func(name string) ThreadFunc {
		return func(any) {
			l.Acquire()
			cond.Wait(l)
			order = append(order, name)
			l.Release()
		}
	}
	if _, err := k.Create("w40", 40, waitOn("w40"), nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := k.Create("w45", 45, waitOn("w45"), nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	l.Acquire()
	cond.Signal(l)
	cond.Signal(l)
	l.Release()

	if len(order) != 2 || order[0] != "w45" || order[1] != "w40" {
		t.Errorf("wake order = %v, want [w45 w40]", order)
	}
}

func TestCondBroadcastWakesEveryone(t *testing.T) {
	k := newTestKernel(t, 0)
	l := NewLock(k)
	cond := NewCond(k)

	woken := 0
	for i := 0; i < 3; i++ {
		if _, err := k.Create("w", 40, func(any) {
			l.Acquire()
			cond.Wait(l)
			woken++
			l.Release()
		}, nil); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	l.Acquire()
	cond.Broadcast(l)
	l.Release()

	if woken != 3 {
		t.Errorf("woken = %d after broadcast, want 3", woken)
	}
}

func TestCondWaitWithoutLockPanics(t *testing.T) {
	k := newTestKernel(t, 0)
	l := NewLock(k)
	cond := NewCond(k)

	defer func() {
		if recover() == nil {
			t.Error("Wait without holding the lock should panic")
		}
	}()
	cond.Wait(l)
}
