package asyncfsm

import (
	"fmt"
	"log/slog"
)

// Builder assembles a machine's transition table and callbacks inside the
// configure function passed to Build. Declarations read as chains:
//
//	b.From(StateA, StateB).On(EventGo).Execute(handler).GoTo(StateC, EffectMoved)
//	b.FromAll(StateC).On(EventAbort).FinishOn(StateFailed)
//
// Each chain is committed by its terminal GoTo or FinishOn call.
type Builder[S, E comparable, F, C any] struct {
	table        *TransitionTable[S, E, F, C]
	onTransition TransitionCallback[S, E, F, C]
	onException  ExceptionCallback[S, E, C]
	err          error
	open         int // On chains not yet committed
}

// From begins a transition declaration applying to each of the listed
// source states.
func (b *Builder[S, E, F, C]) From(states ...S) *TransitionSource[S, E, F, C] {
	if len(states) == 0 {
		b.fail(fmt.Errorf("%w: From requires at least one state", ErrIncompleteTransition))
	}
	return &TransitionSource[S, E, F, C]{b: b, states: states}
}

// FromAll begins a wildcard transition declaration applying to every state
// except those listed.
func (b *Builder[S, E, F, C]) FromAll(except ...S) *TransitionSource[S, E, F, C] {
	return &TransitionSource[S, E, F, C]{b: b, wildcard: true, except: except}
}

// OnTransition installs the machine's single side-effect callback.
func (b *Builder[S, E, F, C]) OnTransition(cb TransitionCallback[S, E, F, C]) {
	b.onTransition = cb
}

// OnException installs the callback notified when a handler fails during a
// transition. Without one, failures are only logged.
func (b *Builder[S, E, F, C]) OnException(cb ExceptionCallback[S, E, C]) {
	b.onException = cb
}

func (b *Builder[S, E, F, C]) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// TransitionSource scopes transition declarations to a set of source states,
// or to the wildcard with exceptions.
type TransitionSource[S, E comparable, F, C any] struct {
	b        *Builder[S, E, F, C]
	states   []S
	wildcard bool
	except   []S
}

// On opens a transition triggered by any of the listed events. The
// declaration is committed by GoTo or FinishOn.
func (ts *TransitionSource[S, E, F, C]) On(events ...E) *TransitionSpec[S, E, F, C] {
	if len(events) == 0 {
		ts.b.fail(fmt.Errorf("%w: On requires at least one event", ErrIncompleteTransition))
	}
	ts.b.open++
	return &TransitionSpec[S, E, F, C]{src: ts, events: events}
}

// TransitionSpec accumulates the handlers of one pending transition.
type TransitionSpec[S, E comparable, F, C any] struct {
	src      *TransitionSource[S, E, F, C]
	events   []E
	handlers []Handler[S, E, C]
	done     bool
}

// Execute appends handlers, run strictly in the order added.
func (sp *TransitionSpec[S, E, F, C]) Execute(handlers ...Handler[S, E, C]) *TransitionSpec[S, E, F, C] {
	sp.handlers = append(sp.handlers, handlers...)
	return sp
}

// GoTo commits the transition with target to; the machine keeps running
// after it completes. At most one effect value may be given.
func (sp *TransitionSpec[S, E, F, C]) GoTo(to S, effect ...F) {
	sp.commit(to, ActionNone, effect)
}

// FinishOn commits the transition with target to and marks it terminal: the
// machine stops after completing it. At most one effect value may be given.
func (sp *TransitionSpec[S, E, F, C]) FinishOn(to S, effect ...F) {
	sp.commit(to, ActionFinish, effect)
}

func (sp *TransitionSpec[S, E, F, C]) commit(to S, action Action, effect []F) {
	b := sp.src.b
	if sp.done {
		b.fail(fmt.Errorf("%w: transition committed twice", ErrIncompleteTransition))
		return
	}
	sp.done = true
	b.open--

	if len(effect) > 1 {
		b.fail(fmt.Errorf("%w: at most one effect per transition", ErrIncompleteTransition))
		return
	}

	t := &Transition[S, E, F, C]{
		on:         setOf(sp.events),
		exceptions: setOf(sp.src.except),
		handlers:   sp.handlers,
		to:         to,
		action:     action,
	}
	if len(effect) == 1 {
		t.effect = effect[0]
		t.hasEffect = true
	}

	if sp.src.wildcard {
		b.table.add(nil, t)
	} else {
		b.table.add(sp.src.states, t)
	}
}

func setOf[T comparable](items []T) map[T]struct{} {
	set := make(map[T]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

type options struct {
	logger    *slog.Logger
	queueSize int
}

// Option is a functional option for configuring a Machine at build time.
type Option func(*options)

// WithLogger sets the logger for the machine
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithQueueSize sets the event channel buffer size
func WithQueueSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.queueSize = size
		}
	}
}

// Build assembles and validates a machine named name that starts runs from
// initial. configure declares transitions and callbacks through the Builder.
// An empty transition table, a table without a finishing transition, or a
// malformed declaration chain is rejected with a *ConfigurationError and no
// machine is returned. Validation runs once, synchronously.
func Build[S, E comparable, F, C any](name string, initial S, configure func(*Builder[S, E, F, C]), opts ...Option) (*Machine[S, E, F, C], error) {
	o := &options{
		logger:    Logger,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	b := &Builder[S, E, F, C]{table: newTransitionTable[S, E, F, C]()}
	configure(b)

	if b.err == nil && b.open != 0 {
		b.err = fmt.Errorf("%w: %d On chain(s) without GoTo or FinishOn", ErrIncompleteTransition, b.open)
	}
	if b.err == nil {
		b.err = b.table.validate()
	}
	if b.err != nil {
		return nil, &ConfigurationError{Name: name, Err: b.err}
	}

	pending := &pendingQueue[E]{}
	return &Machine[S, E, F, C]{
		name:         name,
		table:        b.table,
		initial:      initial,
		current:      initial,
		queueSize:    o.queueSize,
		onTransition: b.onTransition,
		onException:  b.onException,
		logger:       o.logger,
		events:       make(chan E, o.queueSize),
		pending:      pending,
		ctrl:         newController(pending),
		timers:       make(map[string]*timerEntry[E]),
	}, nil
}
