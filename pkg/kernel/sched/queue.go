package sched

import (
	"slices"

	"schedos/pkg/primitives"
)

// readyQueue holds the threads that are runnable but not running, ordered by
// descending effective priority. Ties preserve insertion order, so threads of
// equal priority round-robin fairly.
//
// Iterating front to back always yields non-increasing priority; insert keeps
// that invariant by placing a thread after every entry of equal or higher
// priority already present. Linear insertion is deliberate: the queue is
// bounded by the live thread count, which is small.
type readyQueue struct {
	items []*Thread
}

// insert places t before the first entry with strictly lower priority.
func (q *readyQueue) insert(t *Thread) {
	at := len(q.items)
	for i, e := range q.items {
		if e.priority < t.priority {
			at = i
			break
		}
	}
	q.items = slices.Insert(q.items, at, t)
}

// popFront removes and returns the highest-priority thread, or nil if the
// queue is empty.
func (q *readyQueue) popFront() *Thread {
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t
}

// frontPriority returns the priority at the front of the queue without
// removing it. Used for preemption checks.
func (q *readyQueue) frontPriority() (primitives.Priority, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	return q.items[0].priority, true
}

func (q *readyQueue) len() int {
	return len(q.items)
}
