package asyncfsm

import "sync"

// Controller is the capability handed to handler code. Its only operation is
// Trigger, which defers the event: queued events re-enter the machine one at
// a time, each after the in-flight transition's callback and state change,
// never nested inside it.
type Controller[E comparable] struct {
	pending *pendingQueue[E]
}

func newController[E comparable](pending *pendingQueue[E]) *Controller[E] {
	return &Controller[E]{pending: pending}
}

// Trigger enqueues event for later processing. It never writes to the event
// source directly, never blocks, and is safe for concurrent use from any
// goroutine, including from inside a running handler. Note that a queued
// event is handed off only after some transition completes; a machine idling
// between transitions leaves the queue untouched until its next event.
func (c *Controller[E]) Trigger(event E) {
	c.pending.push(event)
}

// pendingQueue is a mutex-guarded FIFO of events awaiting hand-off into the
// event channel.
type pendingQueue[E comparable] struct {
	mu     sync.Mutex
	events []E
}

func (q *pendingQueue[E]) push(event E) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
}

func (q *pendingQueue[E]) pop() (E, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		var zero E
		return zero, false
	}
	event := q.events[0]
	q.events = q.events[1:]
	return event, true
}

func (q *pendingQueue[E]) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = nil
}
