package asyncfsm

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const defaultQueueSize = 100

// Machine is a runtime FSM instance over caller-defined state (S), event
// (E), side effect (F) and context (C) types. At most one transition is ever
// in flight: a single consumer goroutine owns the event source and drives
// handler execution, the side-effect callback, and the state change, in that
// order.
//
// The run's context is exclusively owned by the consumer goroutine for the
// duration of a run; mutating it from outside while a run is active is
// caller error. Use a pointer type for C when handlers need to mutate it.
//
// Once a transition is found for an event, the state change is
// unconditional: a handler failure suppresses only the side-effect callback
// and stops the machine, but the current state still advances to the
// transition's target.
type Machine[S, E comparable, F, C any] struct {
	name      string
	table     *TransitionTable[S, E, F, C]
	initial   S
	queueSize int

	onTransition TransitionCallback[S, E, F, C]
	onException  ExceptionCallback[S, E, C]
	logger       *slog.Logger

	mu      sync.RWMutex
	current S

	runMu   sync.Mutex
	events  chan E
	running bool
	closed  bool

	pending *pendingQueue[E]
	ctrl    *Controller[E]

	timers  map[string]*timerEntry[E]
	timerMu sync.Mutex
}

// Name returns the machine name passed to Build.
func (m *Machine[S, E, F, C]) Name() string { return m.name }

// Table returns the machine's validated transition table.
func (m *Machine[S, E, F, C]) Table() *TransitionTable[S, E, F, C] { return m.table }

// Controller returns the machine's controller, allowing code outside the
// handlers to enqueue events with Trigger's deferred delivery semantics.
func (m *Machine[S, E, F, C]) Controller() *Controller[E] { return m.ctrl }

// CurrentState returns the current state. Readable at any time from any
// goroutine; only the consumer loop writes it.
func (m *Machine[S, E, F, C]) CurrentState() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Machine[S, E, F, C]) setCurrent(s S) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
}

// Start installs ctx as the run's context, discards any pending events left
// over from a previous run, launches the consumer loop and delivers event as
// the run's first event. It returns without waiting for the run to finish;
// the outcome is observed only through the configured callbacks and
// CurrentState. The only error is ErrMachineRunning, for a consumer already
// in flight.
func (m *Machine[S, E, F, C]) Start(event E, ctx C) error {
	m.runMu.Lock()
	if m.running {
		m.runMu.Unlock()
		return ErrMachineRunning
	}
	if m.closed {
		m.events = make(chan E, m.queueSize)
		m.closed = false
	}
	m.pending.clear()
	m.running = true
	ch := m.events
	log := m.logger.With("machine", m.name, "run_id", uuid.NewString())
	m.runMu.Unlock()

	go m.consume(ch, ctx, log)

	m.deliver(ch, event, log)
	return nil
}

// Finish stops the consumer, if one is running, by closing the event source,
// cancels all timers, and parks the machine back on its configured initial
// state so it is ready to be started again. Safe to call on a machine that
// already stopped on its own.
func (m *Machine[S, E, F, C]) Finish() {
	m.runMu.Lock()
	if m.running {
		m.running = false
		m.closed = true
		close(m.events)
	}
	m.runMu.Unlock()

	m.stopAllTimers()
	m.setCurrent(m.initial)
}

// Reset fully restarts a machine that previously completed or failed:
// Finish, then a fresh event source, then Start(event, ctx). Events queued
// during the previous run are never delivered to the new one.
func (m *Machine[S, E, F, C]) Reset(event E, ctx C) error {
	m.Finish()
	return m.Start(event, ctx)
}

// consume is the single-consumer event loop. It is bound to ch for its whole
// life; Finish and Reset invalidate the binding, which makes the loop drop
// residual buffered events instead of processing them.
func (m *Machine[S, E, F, C]) consume(ch chan E, ctx C, log *slog.Logger) {
	for event := range ch {
		if !m.bound(ch) {
			return
		}

		from := m.CurrentState()
		t := m.table.Lookup(from, event)
		if t == nil {
			log.Debug("no transition found, dropping event", "state", from, "event", event)
			continue
		}

		log.Debug("executing transition", "from", from, "event", event, "to", t.to)
		failed := m.runHandlers(t, from, event, ctx, log)

		if !failed && t.hasEffect && m.onTransition != nil {
			m.onTransition(from, event, t.to, t.effect, ctx)
		}

		// The state change is unconditional once a transition matched; a
		// failed run suppresses only the side-effect callback.
		m.setCurrent(t.to)

		if failed || t.action == ActionFinish {
			log.Debug("stopping consumer", "state", t.to, "failed", failed)
			m.stop(ch)
			return
		}

		if next, ok := m.pending.pop(); ok {
			m.deliver(ch, next, log)
		}
	}
}

// runHandlers drives the validate/handle/error/exception protocol for each
// of the transition's handlers, in order. It reports whether the run failed.
func (m *Machine[S, E, F, C]) runHandlers(t *Transition[S, E, F, C], from S, event E, ctx C, log *slog.Logger) bool {
	for _, h := range t.handlers {
		switch h.Validate(m.ctrl, ctx, from, event) {
		case Valid:
			if err := h.Handle(m.ctrl, ctx, from, event); err != nil {
				h.Exception(m.ctrl, ctx, from, event, err)
				if m.onException != nil {
					m.onException(ctx, from, event, err)
				} else {
					log.Error("handler failed", "state", from, "event", event, "error", err)
				}
				return true
			}
		default:
			h.Error(m.ctrl, ctx, from, event)
		}
	}
	return false
}

// bound reports whether ch is still the machine's live event source.
func (m *Machine[S, E, F, C]) bound(ch chan E) bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running && m.events == ch
}

// stop closes the event source from inside the consumer loop. Finish may
// have closed it already.
func (m *Machine[S, E, F, C]) stop(ch chan E) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running && m.events == ch {
		m.running = false
		m.closed = true
		close(ch)
	}
}

// deliver sends event into ch if it is still the live event source. It never
// blocks: the event is dropped with a log line when the machine stopped or
// the queue is full.
func (m *Machine[S, E, F, C]) deliver(ch chan E, event E, log *slog.Logger) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running || m.events != ch {
		log.Debug("machine not running, dropping event", "event", event)
		return
	}
	select {
	case ch <- event:
	default:
		log.Warn("event queue full, dropping event", "event", event)
	}
}

// inject delivers event to whatever event source is currently live. Used by
// timers, which outlive individual runs.
func (m *Machine[S, E, F, C]) inject(event E) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		m.logger.Debug("machine not running, dropping event", "machine", m.name, "event", event)
		return
	}
	select {
	case m.events <- event:
	default:
		m.logger.Warn("event queue full, dropping event", "machine", m.name, "event", event)
	}
}
