package asyncfsm

import (
	"time"
)

// timerEntry tracks a running timer
type timerEntry[E comparable] struct {
	timer *time.Timer
	event E
}

// StartTimer starts a named timer that injects event into the machine's
// event source when it fires. An existing timer with the same name is
// replaced. Timer events bypass the pending queue: they are delivered
// directly, interleaved with other deliveries in arrival order, and dropped
// when the machine is not running.
func (m *Machine[S, E, F, C]) StartTimer(name string, duration time.Duration, event E) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	// Cancel existing timer with same name
	if existing, ok := m.timers[name]; ok {
		existing.timer.Stop()
		delete(m.timers, name)
	}

	t := time.AfterFunc(duration, func() {
		m.timerMu.Lock()
		// Check timer still exists (wasn't cancelled)
		_, ok := m.timers[name]
		if ok {
			delete(m.timers, name)
		}
		m.timerMu.Unlock()
		if !ok {
			return
		}

		m.logger.Debug("timer fired", "machine", m.name, "timer", name, "event", event)
		m.inject(event)
	})

	m.timers[name] = &timerEntry[E]{timer: t, event: event}
	m.logger.Debug("timer started", "machine", m.name, "timer", name, "duration", duration, "event", event)
}

// StopTimer stops a timer by name. No-op if the timer doesn't exist.
func (m *Machine[S, E, F, C]) StopTimer(name string) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if entry, ok := m.timers[name]; ok {
		entry.timer.Stop()
		delete(m.timers, name)
		m.logger.Debug("timer stopped", "machine", m.name, "timer", name)
	}
}

// TimerActive checks if a timer is currently running
func (m *Machine[S, E, F, C]) TimerActive(name string) bool {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	_, ok := m.timers[name]
	return ok
}

// stopAllTimers cancels every running timer. Called by Finish.
func (m *Machine[S, E, F, C]) stopAllTimers() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	for name, entry := range m.timers {
		entry.timer.Stop()
		m.logger.Debug("timer stopped (cleanup)", "machine", m.name, "timer", name)
	}
	m.timers = make(map[string]*timerEntry[E])
}
