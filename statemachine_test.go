package simnode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockElement records the lifecycle hooks invoked on it and can be
// programmed to fail individual hooks.
type mockElement struct {
	calls []string

	loadErr error
	initErr error
	runErr  error
}

func (e *mockElement) Name() string { return "mock-element" }

func (e *mockElement) Load(ComponentRegistry) error {
	e.calls = append(e.calls, "load")
	return e.loadErr
}

func (e *mockElement) Unload() { e.calls = append(e.calls, "unload") }

func (e *mockElement) Initialize() error {
	e.calls = append(e.calls, "initialize")
	return e.initErr
}

func (e *mockElement) Deinitialize() { e.calls = append(e.calls, "deinitialize") }

func (e *mockElement) Run() error {
	e.calls = append(e.calls, "run")
	return e.runErr
}

func (e *mockElement) Stop() { e.calls = append(e.calls, "stop") }

// mockRegistry records component registry hooks and can fail them.
type mockRegistry struct {
	calls []string

	initErr  error
	tenseErr error
	startErr error
	pauseErr error
	stopErr  error
}

func (r *mockRegistry) Initialize() error {
	r.calls = append(r.calls, "initialize")
	return r.initErr
}

func (r *mockRegistry) Tense() error {
	r.calls = append(r.calls, "tense")
	return r.tenseErr
}

func (r *mockRegistry) Relax() error {
	r.calls = append(r.calls, "relax")
	return nil
}

func (r *mockRegistry) Deinitialize() error {
	r.calls = append(r.calls, "deinitialize")
	return nil
}

func (r *mockRegistry) Start() error {
	r.calls = append(r.calls, "start")
	return r.startErr
}

func (r *mockRegistry) Stop() error {
	r.calls = append(r.calls, "stop")
	return r.stopErr
}

func (r *mockRegistry) Pause() error {
	r.calls = append(r.calls, "pause")
	return r.pauseErr
}

func newTestMachine() (*StateMachine, *mockElement, *mockRegistry) {
	element := &mockElement{}
	registry := &mockRegistry{}
	machine := NewStateMachine(NewElementManager(element, NopLogger{}), registry, NopLogger{})
	return machine, element, registry
}

func TestStateMachineHappyPath(t *testing.T) {
	machine, element, registry := newTestMachine()

	assert.Equal(t, "Unloaded", machine.GetCurrentStateName())

	require.NoError(t, machine.Load())
	assert.Equal(t, "Loaded", machine.GetCurrentStateName())

	require.NoError(t, machine.Initialize())
	assert.Equal(t, "Initialized", machine.GetCurrentStateName())

	require.NoError(t, machine.Start())
	assert.Equal(t, "Running", machine.GetCurrentStateName())

	require.NoError(t, machine.Stop())
	assert.Equal(t, "Initialized", machine.GetCurrentStateName())

	require.NoError(t, machine.Deinitialize())
	assert.Equal(t, "Loaded", machine.GetCurrentStateName())

	require.NoError(t, machine.Unload())
	assert.Equal(t, "Unloaded", machine.GetCurrentStateName())

	require.NoError(t, machine.Exit())
	assert.Equal(t, "Finalized", machine.GetCurrentStateName())
	assert.True(t, machine.IsFinalized())

	// Hooks ran in the documented order.
	assert.Equal(t, []string{"load", "initialize", "run", "stop", "deinitialize", "unload"}, element.calls)
	assert.Equal(t, []string{"initialize", "tense", "start", "stop", "relax", "deinitialize"}, registry.calls)
}

func TestStateMachineForbiddenTransitions(t *testing.T) {
	tests := []struct {
		name      string
		prepare   func(*StateMachine)
		operation func(*StateMachine) error
		wantState string
	}{
		{"start from Unloaded", func(*StateMachine) {}, (*StateMachine).Start, "Unloaded"},
		{"stop from Unloaded", func(*StateMachine) {}, (*StateMachine).Stop, "Unloaded"},
		{"initialize from Unloaded", func(*StateMachine) {}, (*StateMachine).Initialize, "Unloaded"},
		{"unload from Unloaded", func(*StateMachine) {}, (*StateMachine).Unload, "Unloaded"},
		{"load from Loaded", func(m *StateMachine) { _ = m.Load() }, (*StateMachine).Load, "Loaded"},
		{"exit from Loaded", func(m *StateMachine) { _ = m.Load() }, (*StateMachine).Exit, "Loaded"},
		{"pause from Loaded", func(m *StateMachine) { _ = m.Load() }, (*StateMachine).Pause, "Loaded"},
		{"start from Paused", func(m *StateMachine) {
			_ = m.Load()
			_ = m.Initialize()
			_ = m.Start()
			_ = m.Pause()
		}, (*StateMachine).Start, "Paused"},
		{"stop from Paused", func(m *StateMachine) {
			_ = m.Load()
			_ = m.Initialize()
			_ = m.Start()
			_ = m.Pause()
		}, (*StateMachine).Stop, "Paused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine, _, _ := newTestMachine()
			tt.prepare(machine)

			err := tt.operation(machine)
			assert.ErrorIs(t, err, ErrInvalidState)
			assert.Equal(t, tt.wantState, machine.GetCurrentStateName())
		})
	}
}

func TestStateMachineInitializeRollbackOnTenseFailure(t *testing.T) {
	machine, element, registry := newTestMachine()
	registry.tenseErr = errors.New("tense failed")

	require.NoError(t, machine.Load())

	err := machine.Initialize()
	require.Error(t, err)
	assert.ErrorContains(t, err, "tense failed")

	// The observable state is still Loaded.
	assert.Equal(t, "Loaded", machine.GetCurrentStateName())

	// The registry received deinitialize after its failed tense, and
	// the element was deinitialized.
	assert.Equal(t, []string{"initialize", "tense", "deinitialize"}, registry.calls)
	assert.Equal(t, []string{"load", "initialize", "deinitialize"}, element.calls)
}

func TestStateMachineInitializeRollbackOnRegistryInitFailure(t *testing.T) {
	machine, element, registry := newTestMachine()
	registry.initErr = errors.New("init failed")

	require.NoError(t, machine.Load())
	require.Error(t, machine.Initialize())

	assert.Equal(t, "Loaded", machine.GetCurrentStateName())
	assert.Equal(t, []string{"initialize"}, registry.calls)
	assert.Equal(t, []string{"load", "initialize", "deinitialize"}, element.calls)
}

func TestStateMachineStartRollbackStopsElement(t *testing.T) {
	machine, element, registry := newTestMachine()
	registry.startErr = errors.New("start failed")

	require.NoError(t, machine.Load())
	require.NoError(t, machine.Initialize())

	err := machine.Start()
	require.Error(t, err)
	assert.Equal(t, "Initialized", machine.GetCurrentStateName())
	assert.Contains(t, element.calls, "stop")
}

func TestStateMachineStopSurfacesFirstErrorButStopsElement(t *testing.T) {
	machine, element, registry := newTestMachine()
	registry.stopErr = errors.New("stop failed")

	require.NoError(t, machine.Load())
	require.NoError(t, machine.Initialize())
	require.NoError(t, machine.Start())

	err := machine.Stop()
	require.Error(t, err)
	assert.ErrorContains(t, err, "stop failed")
	// The element is stopped regardless and the transition completes.
	assert.Contains(t, element.calls, "stop")
	assert.Equal(t, "Initialized", machine.GetCurrentStateName())
}

func TestStateMachinePauseFromRunning(t *testing.T) {
	machine, _, registry := newTestMachine()

	require.NoError(t, machine.Load())
	require.NoError(t, machine.Initialize())
	require.NoError(t, machine.Start())
	require.NoError(t, machine.Pause())

	assert.Equal(t, "Paused", machine.GetCurrentStateName())
	assert.Contains(t, registry.calls, "pause")
}

func TestStateMachinePauseFromInitializedRunsElement(t *testing.T) {
	machine, element, _ := newTestMachine()

	require.NoError(t, machine.Load())
	require.NoError(t, machine.Initialize())
	require.NoError(t, machine.Pause())

	assert.Equal(t, "Paused", machine.GetCurrentStateName())
	assert.Contains(t, element.calls, "run")
}

func TestStateMachineExitIsTerminal(t *testing.T) {
	machine, _, _ := newTestMachine()

	require.NoError(t, machine.Exit())
	assert.True(t, machine.IsFinalized())

	assert.ErrorIs(t, machine.Load(), ErrInvalidState)
	assert.ErrorIs(t, machine.Exit(), ErrInvalidState)
	assert.True(t, machine.IsFinalized())
	assert.Equal(t, "Finalized", machine.GetCurrentStateName())
}
