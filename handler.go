package asyncfsm

import "fmt"

// Handler is a unit of transition-time logic. Handlers configured on a
// transition run strictly in order on the consumer goroutine, each through
// the same protocol: Validate decides between Handle and Error, and a Handle
// failure is routed to Exception.
//
// Error and Exception have no failure path of their own: a panic raised
// inside them is deliberately not recovered by the engine and escapes the
// consumer goroutine.
type Handler[S, E comparable, C any] interface {
	// Validate decides whether Handle may run. It must be side-effect free.
	Validate(ctrl *Controller[E], ctx C, state S, event E) Validity

	// Handle runs only when Validate returned Valid. It may mutate ctx and
	// enqueue follow-up events through ctrl. A non-nil error marks the run
	// as failed: remaining handlers are skipped, the side-effect callback
	// is suppressed, and the machine stops after the state change.
	Handle(ctrl *Controller[E], ctx C, state S, event E) error

	// Error runs only when Validate returned Invalid. The run is not
	// considered failed.
	Error(ctrl *Controller[E], ctx C, state S, event E)

	// Exception runs only when Handle returned an error, receiving that
	// error as cause.
	Exception(ctrl *Controller[E], ctx C, state S, event E, cause error)
}

// HandlerFunc adapts a bare function into a Handler. The function is always
// valid and declares no failure path, so Error and Exception treat being
// invoked as a programmer error and panic.
type HandlerFunc[S, E comparable, C any] func(ctrl *Controller[E], ctx C, state S, event E)

func (f HandlerFunc[S, E, C]) Validate(*Controller[E], C, S, E) Validity { return Valid }

func (f HandlerFunc[S, E, C]) Handle(ctrl *Controller[E], ctx C, state S, event E) error {
	f(ctrl, ctx, state, event)
	return nil
}

func (f HandlerFunc[S, E, C]) Error(_ *Controller[E], _ C, state S, event E) {
	panic(fmt.Sprintf("asyncfsm: Error invoked on HandlerFunc (state %v, event %v)", state, event))
}

func (f HandlerFunc[S, E, C]) Exception(_ *Controller[E], _ C, state S, event E, cause error) {
	panic(fmt.Sprintf("asyncfsm: Exception invoked on HandlerFunc (state %v, event %v): %v", state, event, cause))
}
