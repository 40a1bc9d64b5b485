// Package asyncfsm is an engine for declaring and running finite state
// machines whose states, events, side effects, and shared mutable context
// are all caller-defined types.
//
// A machine is declared once with Build and runs asynchronously: every run
// has a single consumer goroutine that owns the event source, so only one
// transition is ever in flight and externally and internally triggered
// events are strictly serialized. Transition logic plugs in through the
// Handler protocol (validate, handle, error, exception) instead of ad-hoc
// callbacks, and handlers defer follow-up events through the Controller so
// a transition can never nest inside another.
//
//	machine, err := asyncfsm.Build("order", StateNew,
//	    func(b *asyncfsm.Builder[State, Event, Effect, *Order]) {
//	        b.From(StateNew).On(EventSubmit).
//	            Execute(asyncfsm.HandlerFunc[State, Event, *Order](reserveStock)).
//	            GoTo(StatePending, EffectSubmitted)
//	        b.From(StatePending).On(EventShip).
//	            FinishOn(StateShipped, EffectShipped)
//	        b.OnTransition(func(from State, ev Event, to State, eff Effect, o *Order) {
//	            log.Printf("%s -> %s (%s)", from, to, eff)
//	        })
//	    })
//	if err != nil {
//	    // *ConfigurationError: empty table or no finishing transition
//	}
//	_ = machine.Start(EventSubmit, &Order{ID: "o-1"})
//
// Outcomes are observed only through the OnTransition and OnException
// callbacks and CurrentState; Start returns before the run completes. A
// machine that finished or failed is restarted with Reset.
//
// The chart subpackage loads declarative YAML definitions for string-typed
// machines.
package asyncfsm
