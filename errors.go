package asyncfsm

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTransitionTable means the configure function declared no transitions.
	ErrEmptyTransitionTable = errors.New("transition table has no transitions")
	// ErrNoFinishTransition means no transition was committed with FinishOn,
	// so the machine would have no terminal path.
	ErrNoFinishTransition = errors.New("transition table has no finishing transition")
	// ErrIncompleteTransition means a transition declaration was malformed:
	// an empty state or event set, a missing GoTo/FinishOn, a double commit,
	// or more than one effect value.
	ErrIncompleteTransition = errors.New("incomplete transition declaration")
	// ErrMachineRunning means Start was called while a consumer is already
	// bound to the event source.
	ErrMachineRunning = errors.New("machine is already running")
)

// ConfigurationError is returned by Build when the declared machine is
// invalid. The machine is never constructed.
type ConfigurationError struct {
	Name string // machine name passed to Build
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("machine %q: invalid configuration: %v", e.Name, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is a build-time configuration error.
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}
