package asyncfsm

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test states
type testState string

const (
	stateInitial testState = "initial"
	stateMid     testState = "mid"
	stateFinal   testState = "final"
	stateOther   testState = "other"
)

// Test events
type testEvent string

const (
	evStart    testEvent = "start"
	evComplete testEvent = "complete"
	evLoop     testEvent = "loop"
	evAbort    testEvent = "abort"
	evUnknown  testEvent = "unknown"
)

// Test effects
type testEffect string

const (
	effectOne testEffect = "e1"
	effectTwo testEffect = "e2"
)

type testBuilder = Builder[testState, testEvent, testEffect, *testCtx]

// testCtx is the run context used across tests; handlers append to trace.
type testCtx struct {
	mu    sync.Mutex
	trace []string
}

func (c *testCtx) record(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace = append(c.trace, entry)
}

func (c *testCtx) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.trace...)
}

type transitionRecord struct {
	from   testState
	event  testEvent
	to     testState
	effect testEffect
}

// scriptedHandler implements the full handler protocol with injectable
// behavior, recording every hook invocation into the run context.
type scriptedHandler struct {
	name     string
	validity Validity
	err      error
	onHandle func(ctrl *Controller[testEvent], ctx *testCtx)
}

func (h *scriptedHandler) Validate(_ *Controller[testEvent], _ *testCtx, _ testState, _ testEvent) Validity {
	return h.validity
}

func (h *scriptedHandler) Handle(ctrl *Controller[testEvent], ctx *testCtx, _ testState, _ testEvent) error {
	ctx.record(h.name + ":handle")
	if h.onHandle != nil {
		h.onHandle(ctrl, ctx)
	}
	return h.err
}

func (h *scriptedHandler) Error(_ *Controller[testEvent], ctx *testCtx, _ testState, _ testEvent) {
	ctx.record(h.name + ":error")
}

func (h *scriptedHandler) Exception(_ *Controller[testEvent], ctx *testCtx, _ testState, _ testEvent, cause error) {
	ctx.record(h.name + ":exception:" + cause.Error())
}

func (m *Machine[S, E, F, C]) isRunning() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

func recvRecord(t *testing.T, ch <-chan transitionRecord) transitionRecord {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transition callback")
		return transitionRecord{}
	}
}

func waitStopped[S, E comparable, F, C any](t *testing.T, m *Machine[S, E, F, C]) {
	t.Helper()
	require.Eventually(t, func() bool { return !m.isRunning() }, time.Second, 2*time.Millisecond)
}

func TestTwoStepScenario(t *testing.T) {
	records := make(chan transitionRecord, 4)
	ctx := &testCtx{}

	m, err := Build("two-step", stateInitial, func(b *testBuilder) {
		b.From(stateInitial).On(evStart).
			Execute(HandlerFunc[testState, testEvent, *testCtx](func(ctrl *Controller[testEvent], _ *testCtx, _ testState, _ testEvent) {
				ctrl.Trigger(evComplete)
			})).
			GoTo(stateMid, effectOne)
		b.From(stateMid).On(evComplete).FinishOn(stateFinal, effectTwo)
		b.OnTransition(func(from testState, ev testEvent, to testState, eff testEffect, _ *testCtx) {
			records <- transitionRecord{from, ev, to, eff}
		})
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(evStart, ctx))

	assert.Equal(t, transitionRecord{stateInitial, evStart, stateMid, effectOne}, recvRecord(t, records))
	assert.Equal(t, transitionRecord{stateMid, evComplete, stateFinal, effectTwo}, recvRecord(t, records))

	waitStopped(t, m)
	assert.Equal(t, stateFinal, m.CurrentState())
	assert.Empty(t, records, "no further transition callbacks expected")
}

func TestHandlerFailureShortCircuits(t *testing.T) {
	records := make(chan transitionRecord, 4)
	failures := make(chan error, 1)
	boom := errors.New("boom")
	ctx := &testCtx{}

	h1 := &scriptedHandler{name: "h1", validity: Valid}
	h2 := &scriptedHandler{name: "h2", validity: Valid, err: boom}
	h3 := &scriptedHandler{name: "h3", validity: Valid}

	m, err := Build("failing", stateInitial, func(b *testBuilder) {
		b.From(stateInitial).On(evStart).
			Execute(HandlerFunc[testState, testEvent, *testCtx](func(ctrl *Controller[testEvent], _ *testCtx, _ testState, _ testEvent) {
				ctrl.Trigger(evComplete)
			})).
			GoTo(stateMid, effectOne)
		b.From(stateMid).On(evComplete).
			Execute(h1, h2, h3).
			FinishOn(stateFinal, effectTwo)
		b.OnTransition(func(from testState, ev testEvent, to testState, eff testEffect, _ *testCtx) {
			records <- transitionRecord{from, ev, to, eff}
		})
		b.OnException(func(_ *testCtx, _ testState, _ testEvent, err error) {
			failures <- err
		})
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(evStart, ctx))

	assert.Equal(t, transitionRecord{stateInitial, evStart, stateMid, effectOne}, recvRecord(t, records))

	select {
	case err := <-failures:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for exception callback")
	}

	waitStopped(t, m)
	// State still advances on failure; only the effect callback is skipped.
	assert.Equal(t, stateFinal, m.CurrentState())
	assert.Empty(t, records)
	assert.Equal(t, []string{"h1:handle", "h2:handle", "h2:exception:boom"}, ctx.recorded())
}

func TestValidationRejectionIsNotFailure(t *testing.T) {
	records := make(chan transitionRecord, 2)
	ctx := &testCtx{}

	rejected := &scriptedHandler{name: "guard", validity: Invalid}
	after := &scriptedHandler{name: "after", validity: Valid}

	m, err := Build("rejecting", stateInitial, func(b *testBuilder) {
		b.From(stateInitial).On(evStart).
			Execute(rejected, after).
			GoTo(stateMid, effectOne)
		b.From(stateMid).On(evComplete).FinishOn(stateFinal)
		b.OnTransition(func(from testState, ev testEvent, to testState, eff testEffect, _ *testCtx) {
			records <- transitionRecord{from, ev, to, eff}
		})
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(evStart, ctx))

	// The rejection routes to Error, later handlers still run, and the
	// side-effect callback fires normally.
	assert.Equal(t, transitionRecord{stateInitial, evStart, stateMid, effectOne}, recvRecord(t, records))
	assert.Equal(t, []string{"guard:error", "after:handle"}, ctx.recorded())
	require.Eventually(t, func() bool { return m.CurrentState() == stateMid }, time.Second, 2*time.Millisecond)
	assert.True(t, m.isRunning(), "a rejected handler must not stop the machine")

	m.Finish()
}

func TestTriggerIsDeferredUntilTransitionCompletes(t *testing.T) {
	ctx := &testCtx{}
	done := make(chan struct{})

	first := &scriptedHandler{name: "first", validity: Valid, onHandle: func(ctrl *Controller[testEvent], _ *testCtx) {
		ctrl.Trigger(evComplete)
	}}
	second := &scriptedHandler{name: "second", validity: Valid}

	m, err := Build("ordering", stateInitial, func(b *testBuilder) {
		b.From(stateInitial).On(evStart).Execute(first).GoTo(stateMid, effectOne)
		b.From(stateMid).On(evComplete).Execute(second).FinishOn(stateFinal, effectTwo)
		b.OnTransition(func(_ testState, _ testEvent, _ testState, eff testEffect, c *testCtx) {
			c.record("effect:" + string(eff))
			if eff == effectTwo {
				close(done)
			}
		})
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(evStart, ctx))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the second transition")
	}
	waitStopped(t, m)

	// The first transition's callback is observed strictly before the
	// handler chain of the event its own handler enqueued.
	assert.Equal(t, []string{"first:handle", "effect:e1", "second:handle", "effect:e2"}, ctx.recorded())
}

func TestNoTransitionFoundIsSilentlyDropped(t *testing.T) {
	records := make(chan transitionRecord, 1)
	ctx := &testCtx{}

	m, err := Build("dropping", stateInitial, func(b *testBuilder) {
		b.From(stateInitial).On(evStart).FinishOn(stateFinal, effectOne)
		b.OnTransition(func(from testState, ev testEvent, to testState, eff testEffect, _ *testCtx) {
			records <- transitionRecord{from, ev, to, eff}
		})
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(evUnknown, ctx))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stateInitial, m.CurrentState())
	assert.True(t, m.isRunning(), "an unmatched event must not stop the loop")
	assert.Empty(t, records)

	m.Finish()
}

func TestResetRoundtrip(t *testing.T) {
	records := make(chan transitionRecord, 8)

	trigger := &scriptedHandler{name: "spam", validity: Valid, onHandle: func(ctrl *Controller[testEvent], _ *testCtx) {
		// Both stay pending: the run finishes on this very transition.
		ctrl.Trigger(evLoop)
		ctrl.Trigger(evLoop)
	}}

	m, err := Build("resettable", stateInitial, func(b *testBuilder) {
		b.From(stateInitial).On(evStart).Execute(trigger).FinishOn(stateFinal, effectOne)
		b.FromAll().On(evLoop).GoTo(stateOther, effectTwo)
		b.OnTransition(func(from testState, ev testEvent, to testState, eff testEffect, _ *testCtx) {
			records <- transitionRecord{from, ev, to, eff}
		})
	})
	require.NoError(t, err)

	require.NoError(t, m.Start(evStart, &testCtx{}))
	assert.Equal(t, transitionRecord{stateInitial, evStart, stateFinal, effectOne}, recvRecord(t, records))
	waitStopped(t, m)

	ctx2 := &testCtx{}
	require.NoError(t, m.Reset(evStart, ctx2))
	assert.Equal(t, transitionRecord{stateInitial, evStart, stateFinal, effectOne}, recvRecord(t, records))
	waitStopped(t, m)

	// The evLoop events queued during either run are never delivered.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, records)
	assert.Equal(t, stateFinal, m.CurrentState())
	assert.Equal(t, []string{"spam:handle"}, ctx2.recorded())
}

func TestStartWhileRunning(t *testing.T) {
	m, err := Build("busy", stateInitial, func(b *testBuilder) {
		b.From(stateInitial).On(evStart).GoTo(stateMid)
		b.From(stateMid).On(evComplete).FinishOn(stateFinal)
	})
	require.NoError(t, err)

	require.NoError(t, m.Start(evStart, &testCtx{}))
	require.Eventually(t, func() bool { return m.CurrentState() == stateMid }, time.Second, 2*time.Millisecond)

	assert.ErrorIs(t, m.Start(evStart, &testCtx{}), ErrMachineRunning)

	m.Finish()
	assert.Equal(t, stateInitial, m.CurrentState())

	// A finished machine can be started again on a fresh event source.
	require.NoError(t, m.Start(evStart, &testCtx{}))
	require.Eventually(t, func() bool { return m.CurrentState() == stateMid }, time.Second, 2*time.Millisecond)
	m.Finish()
}

func TestFinishParksOnInitialState(t *testing.T) {
	m, err := Build("parking", stateInitial, func(b *testBuilder) {
		b.From(stateInitial).On(evStart).GoTo(stateMid)
		b.From(stateMid).On(evComplete).FinishOn(stateFinal)
	})
	require.NoError(t, err)

	require.NoError(t, m.Start(evStart, &testCtx{}))
	require.Eventually(t, func() bool { return m.CurrentState() == stateMid }, time.Second, 2*time.Millisecond)

	m.Finish()
	waitStopped(t, m)
	assert.Equal(t, stateInitial, m.CurrentState())

	// Idempotent on an already-stopped machine.
	m.Finish()
	assert.Equal(t, stateInitial, m.CurrentState())
}

func TestExternalTriggerHandsOffAfterNextTransition(t *testing.T) {
	ctx := &testCtx{}
	done := make(chan struct{})

	var m *Machine[testState, testEvent, testEffect, *testCtx]
	m, err := Build("external", stateInitial, func(b *testBuilder) {
		b.From(stateInitial).On(evStart).GoTo(stateMid, effectOne)
		b.From(stateMid).On(evComplete).FinishOn(stateFinal, effectTwo)
		b.OnTransition(func(_ testState, _ testEvent, _ testState, eff testEffect, c *testCtx) {
			c.record("effect:" + string(eff))
			if eff == effectOne {
				// Enqueued outside any handler, before this transition's
				// hand-off point; delivered on the next loop iteration.
				m.Controller().Trigger(evComplete)
			}
			if eff == effectTwo {
				close(done)
			}
		})
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(evStart, ctx))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the externally triggered transition")
	}
	waitStopped(t, m)
	assert.Equal(t, []string{"effect:e1", "effect:e2"}, ctx.recorded())
}

func TestDefaultExceptionCallbackOnlyLogs(t *testing.T) {
	ctx := &testCtx{}
	failing := &scriptedHandler{name: "h", validity: Valid, err: fmt.Errorf("storage offline")}

	m, err := Build("logging-only", stateInitial, func(b *testBuilder) {
		b.From(stateInitial).On(evStart).Execute(failing).FinishOn(stateFinal, effectOne)
	})
	require.NoError(t, err)

	require.NoError(t, m.Start(evStart, ctx))
	waitStopped(t, m)

	assert.Equal(t, stateFinal, m.CurrentState())
	assert.Equal(t, []string{"h:handle", "h:exception:storage offline"}, ctx.recorded())
}
