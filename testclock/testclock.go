// Package testclock is the kernel's test double for clock.Clock: a queue
// of instants consumed one per call to Now.
package testclock

import "time"

// Sequential returns a fixed sequence of instants, one per call to Now.
//
// Once the sequence is exhausted, Now keeps returning the last supplied
// instant instead of panicking. This is deliberate: several reconciliation
// and retry-path tests call Now an indeterminate number of times across
// the calls under test, and a clock that panics on the (n+1)th call would
// make those tests order-dependent on an implementation detail that has
// nothing to do with what's being tested.
type Sequential struct {
	instants []time.Time
	next     int
}

// NewSequential returns a Sequential clock that yields instants in order.
func NewSequential(instants ...time.Time) *Sequential {
	return &Sequential{instants: instants}
}

// Now returns the next queued instant, or the last one if exhausted.
func (c *Sequential) Now() time.Time {
	if len(c.instants) == 0 {
		return time.Time{}
	}
	if c.next < len(c.instants) {
		t := c.instants[c.next]
		c.next++
		return t
	}
	return c.instants[len(c.instants)-1]
}
