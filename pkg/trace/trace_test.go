package trace

import (
	"bytes"
	"encoding/json"
	"testing"

	"schedos/pkg/kernel/sched"
	"schedos/pkg/primitives"
)

func TestRecorderKeepsEventsInOrder(t *testing.T) {
	r := NewRecorder(10)

	for i := 0; i < 3; i++ {
		r.Record(sched.Event{Tick: primitives.Ticks(i), Kind: sched.EventSwitch})
	}

	events := r.Events()
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	for i, e := range events {
		if e.Tick != primitives.Ticks(i) {
			t.Errorf("event %d has tick %d, want %d", i, e.Tick, i)
		}
	}
}

func TestRecorderEvictsOldestAtCapacity(t *testing.T) {
	r := NewRecorder(3)

	for i := 0; i < 5; i++ {
		r.Record(sched.Event{Tick: primitives.Ticks(i), Kind: sched.EventCreate})
	}

	events := r.Events()
	if len(events) != 3 {
		t.Fatalf("len = %d, want capacity 3", len(events))
	}
	if events[0].Tick != 2 || events[2].Tick != 4 {
		t.Errorf("retained ticks = [%d..%d], want [2..4]", events[0].Tick, events[2].Tick)
	}
	if r.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", r.Dropped())
	}

	// Counters survive eviction.
	if r.Count(sched.EventCreate) != 5 {
		t.Errorf("count = %d, want all 5 recorded", r.Count(sched.EventCreate))
	}
}

func TestRecorderCountsPerKind(t *testing.T) {
	r := NewRecorder(0)
	r.Record(sched.Event{Kind: sched.EventSwitch})
	r.Record(sched.Event{Kind: sched.EventSwitch})
	r.Record(sched.Event{Kind: sched.EventDonate})

	counts := r.Counts()
	if counts[sched.EventSwitch.String()] != 2 {
		t.Errorf("switch count = %d, want 2", counts[sched.EventSwitch.String()])
	}
	if counts[sched.EventDonate.String()] != 1 {
		t.Errorf("donate count = %d, want 1", counts[sched.EventDonate.String()])
	}
}

func TestEventsReturnsACopy(t *testing.T) {
	r := NewRecorder(10)
	r.Record(sched.Event{Tick: 1, Kind: sched.EventBlock})

	events := r.Events()
	events[0].Tick = 99

	if r.Events()[0].Tick != 1 {
		t.Error("mutating the returned slice must not affect the recorder")
	}
}

func TestReportRoundTripsThroughJSON(t *testing.T) {
	r := NewRecorder(10)
	r.Record(sched.Event{Tick: 7, Kind: sched.EventWake, TID: 3, Name: "sleeper"})

	rep := r.BuildReport("alarm", sched.Stats{IdleTicks: 5, KernelTicks: 2}, nil)

	var buf bytes.Buffer
	if err := rep.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.Scenario != "alarm" {
		t.Errorf("scenario = %q, want alarm", decoded.Scenario)
	}
	if decoded.IdleTicks != 5 {
		t.Errorf("idle_ticks = %d, want 5", decoded.IdleTicks)
	}
	if len(decoded.Events) != 1 || decoded.Events[0].Name != "sleeper" {
		t.Errorf("events = %+v, want the recorded wake event", decoded.Events)
	}
}
