package asyncfsm

import "log/slog"

// Validity is the outcome of a handler's Validate step.
type Validity int

const (
	// Invalid routes the event to the handler's Error hook; the transition
	// itself still completes normally.
	Invalid Validity = iota
	// Valid allows the handler's Handle step to run.
	Valid
)

// Action classifies what the machine does after a transition completes.
type Action int

const (
	// ActionNone keeps the consumer running and waiting for the next event.
	ActionNone Action = iota
	// ActionFinish stops the consumer after the state change.
	ActionFinish
)

// TransitionCallback observes a completed transition that carries a side
// effect. It runs on the consumer goroutine, after the transition's handlers
// and before the state change becomes visible, and only when no handler
// failed.
type TransitionCallback[S, E comparable, F, C any] func(from S, event E, to S, effect F, ctx C)

// ExceptionCallback observes a handler failure during a transition. It runs
// on the consumer goroutine, at most once per run.
type ExceptionCallback[S, E comparable, C any] func(ctx C, state S, event E, err error)

// Logger is the default logger used when none is provided
var Logger = slog.Default()
