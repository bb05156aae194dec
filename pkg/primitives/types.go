// Package primitives defines the basic identifier and unit types shared by
// the kernel packages.
package primitives

import "math"

// TID uniquely identifies a kernel thread. TIDs are assigned once at thread
// creation, increase monotonically, and are never reused for the lifetime of
// the kernel.
type TID int32

// TIDError is returned by thread creation when no thread could be allocated.
const TIDError TID = -1

// Priority is a scheduling priority. Higher values are scheduled first.
//
// A thread carries two priorities: the base priority its owner requested and
// the effective priority after donation. Both use this type and both must
// stay within [PriorityMin, PriorityMax].
type Priority int

const (
	// PriorityMin is the lowest scheduling priority. The idle thread runs
	// at this priority.
	PriorityMin Priority = 0

	// PriorityDefault is the priority assigned to threads whose owner has
	// no particular preference.
	PriorityDefault Priority = 31

	// PriorityMax is the highest scheduling priority.
	PriorityMax Priority = 63
)

// Valid reports whether p lies within the legal priority range.
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Ticks counts timer ticks since kernel boot. It is also used for absolute
// wake-up deadlines of sleeping threads.
type Ticks int64

// TickNever is a deadline that never arrives. The sleep queue's cached
// minimum holds this value while no thread is asleep.
const TickNever Ticks = math.MaxInt64
