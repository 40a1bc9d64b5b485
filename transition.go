package asyncfsm

// Transition is a configured rule mapping source states and a set of
// triggering events to a target state, an optional side effect, and zero or
// more handlers. Built once, immutable thereafter.
type Transition[S, E comparable, F, C any] struct {
	on         map[E]struct{}
	exceptions map[S]struct{} // wildcard entries skip these source states
	handlers   []Handler[S, E, C]
	to         S
	effect     F
	hasEffect  bool
	action     Action
}

// To returns the transition's target state.
func (t *Transition[S, E, F, C]) To() S { return t.to }

// Action returns what the machine does after the transition completes.
func (t *Transition[S, E, F, C]) Action() Action { return t.action }

// Effect returns the transition's side effect and whether one is configured.
func (t *Transition[S, E, F, C]) Effect() (F, bool) { return t.effect, t.hasEffect }

func (t *Transition[S, E, F, C]) matches(event E) bool {
	_, ok := t.on[event]
	return ok
}

func (t *Transition[S, E, F, C]) excludes(state S) bool {
	_, ok := t.exceptions[state]
	return ok
}

// TransitionTable maps source states to ordered transition lists, with a
// separate ordered list of wildcard entries applicable to any state not in
// their exception set. Build populates it once; it is never mutated after.
type TransitionTable[S, E comparable, F, C any] struct {
	byState  map[S][]*Transition[S, E, F, C]
	wildcard []*Transition[S, E, F, C]
	size     int
	finish   int
}

func newTransitionTable[S, E comparable, F, C any]() *TransitionTable[S, E, F, C] {
	return &TransitionTable[S, E, F, C]{
		byState: make(map[S][]*Transition[S, E, F, C]),
	}
}

// add appends t to each listed state's list, or to the wildcard list when no
// states are given.
func (tt *TransitionTable[S, E, F, C]) add(fromStates []S, t *Transition[S, E, F, C]) {
	if len(fromStates) == 0 {
		tt.wildcard = append(tt.wildcard, t)
		tt.size++
	} else {
		for _, s := range fromStates {
			tt.byState[s] = append(tt.byState[s], t)
			tt.size++
		}
	}
	if t.action == ActionFinish {
		tt.finish++
	}
}

// Lookup returns the first transition applicable to (current, event):
// state-specific entries are checked first in insertion order, then wildcard
// entries in insertion order, skipping those that list current as an
// exception. Returns nil when nothing matches.
func (tt *TransitionTable[S, E, F, C]) Lookup(current S, event E) *Transition[S, E, F, C] {
	for _, t := range tt.byState[current] {
		if t.matches(event) {
			return t
		}
	}
	for _, t := range tt.wildcard {
		if t.matches(event) && !t.excludes(current) {
			return t
		}
	}
	return nil
}

func (tt *TransitionTable[S, E, F, C]) validate() error {
	if tt.size == 0 {
		return ErrEmptyTransitionTable
	}
	if tt.finish == 0 {
		return ErrNoFinishTransition
	}
	return nil
}
