// Package scenario runs self-contained scheduling workloads on a fresh
// kernel with a virtual clock, producing a trace report for the viewer and
// the JSON exporter. Each scenario demonstrates one scheduler behavior:
// time-slice round-robin, timed sleep, and the two donation shapes.
package scenario

import (
	"fmt"

	"schedos/pkg/kernel/sched"
	"schedos/pkg/kerror"
	"schedos/pkg/logging"
	"schedos/pkg/primitives"
	"schedos/pkg/trace"
)

// Clock is the virtual timer driving a scenario kernel. Advance delivers
// timer interrupts one tick at a time on the calling thread. It also serves
// as the kernel's platform: when everybody sleeps, the idle thread burns
// ticks through Halt until a deadline comes due.
type Clock struct {
	k   *sched.Kernel
	now primitives.Ticks
}

// Now returns the current virtual time.
func (c *Clock) Now() primitives.Ticks {
	return c.now
}

// Advance moves the clock forward n ticks, delivering a timer interrupt for
// each one.
func (c *Clock) Advance(n int) {
	for i := 0; i < n; i++ {
		c.now++
		c.k.TimerInterrupt(c.now)
	}
}

// Halt implements sched.Platform for the idle thread.
func (c *Clock) Halt() {
	c.Advance(1)
}

// Scenario is one named, runnable workload.
type Scenario struct {
	Name        string
	Description string
	run         func(k *sched.Kernel, c *Clock) error
}

var scenarios = []Scenario{
	{
		Name:        "preempt",
		Description: "equal-priority workers sharing the CPU by time slice, plus a high-priority burst",
		run:         runPreempt,
	},
	{
		Name:        "alarm",
		Description: "staggered sleepers woken in deadline order by the timer",
		run:         runAlarm,
	},
	{
		Name:        "donate",
		Description: "a high-priority waiter donating to the lock holder",
		run:         runDonate,
	},
	{
		Name:        "chain",
		Description: "donation propagating through a chain of two locks",
		run:         runChain,
	},
}

// List returns every scenario in presentation order.
func List() []Scenario {
	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)
	return out
}

// Run executes the named scenario on a fresh kernel, recording events into
// rec, and returns the finished report.
func Run(name string, rec *trace.Recorder) (trace.Report, error) {
	var chosen *Scenario
	for i := range scenarios {
		if scenarios[i].Name == name {
			chosen = &scenarios[i]
			break
		}
	}
	if chosen == nil {
		return trace.Report{}, kerror.New(kerror.ErrCategoryUser, "SCENARIO_UNKNOWN",
			fmt.Sprintf("no scenario named %q", name)).WithContext("Run", "Scenario")
	}

	log := logging.WithComponent("Scenario")
	log.Info("running scenario", "name", chosen.Name)

	c := &Clock{}
	k := sched.New(sched.Config{PoolPages: 32, Tracer: rec, Platform: c})
	c.k = k
	k.Bootstrap("main")
	k.Start()

	if err := chosen.run(k, c); err != nil {
		return trace.Report{}, err
	}

	stats := k.Stats()
	log.Info("scenario finished", "name", chosen.Name,
		"ticks", c.Now(), "idle_ticks", stats.IdleTicks)

	return rec.BuildReport(chosen.Name, stats, k.Snapshot()), nil
}

// runPreempt creates three equal-priority workers that each burn full time
// slices, so the quantum rotates the CPU among them, then injects a
// higher-priority thread that preempts instantly.
func runPreempt(k *sched.Kernel, c *Clock) error {
	done := sched.NewSemaphore(k, 0)

	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("worker-%d", i)
		_, err := k.Create(name, primitives.PriorityDefault, func(any) {
			for slice := 0; slice < 3; slice++ {
				c.Advance(sched.TimeSlice)
			}
			done.Up()
		}, nil)
		if err != nil {
			return err
		}
	}

	// The burst outranks everyone and runs to completion immediately.
	if _, err := k.Create("burst", 50, func(any) {}, nil); err != nil {
		return err
	}

	for i := 0; i < 3; i++ {
		done.Down()
	}
	return nil
}

// runAlarm starts five sleepers with staggered deadlines and lets the idle
// thread drive the clock until all of them have woken.
func runAlarm(k *sched.Kernel, c *Clock) error {
	done := sched.NewSemaphore(k, 0)

	for i := 1; i <= 5; i++ {
		deadline := c.Now() + primitives.Ticks(10*i)
		name := fmt.Sprintf("alarm-%d", i)
		_, err := k.Create(name, 40, func(any) {
			k.Sleep(deadline)
			done.Up()
		}, nil)
		if err != nil {
			return err
		}
	}

	for i := 0; i < 5; i++ {
		done.Down()
	}
	return nil
}

// runDonate has the orchestrating thread hold a lock while a high-priority
// contender blocks on it, raising the holder until release.
func runDonate(k *sched.Kernel, c *Clock) error {
	l := sched.NewLock(k)
	l.Acquire()

	_, err := k.Create("contender", 45, func(any) {
		l.Acquire()
		l.Release()
	}, nil)
	if err != nil {
		return err
	}

	// Hold the lock for a couple of ticks at the donated priority.
	c.Advance(2)
	l.Release()
	return nil
}

// runChain builds the two-lock chain: holder-a owns l1, holder-b owns l2 and
// waits for l1, and a priority-45 contender waits for l2. The contender's
// priority reaches holder-a through the chain before everything unwinds.
func runChain(k *sched.Kernel, c *Clock) error {
	l1 := sched.NewLock(k)
	l2 := sched.NewLock(k)
	hold := sched.NewSemaphore(k, 0)

	_, err := k.Create("holder-a", 35, func(any) {
		l1.Acquire()
		hold.Down()
		l1.Release()
	}, nil)
	if err != nil {
		return err
	}

	_, err = k.Create("holder-b", 40, func(any) {
		l2.Acquire()
		l1.Acquire()
		l1.Release()
		l2.Release()
	}, nil)
	if err != nil {
		return err
	}

	_, err = k.Create("contender", 45, func(any) {
		l2.Acquire()
		l2.Release()
	}, nil)
	if err != nil {
		return err
	}

	c.Advance(2)
	hold.Up()
	return nil
}
