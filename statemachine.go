package simnode

import (
	"fmt"
	"sync"
)

// State is a participant lifecycle state.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateInitialized
	StateRunning
	StatePaused
	StateFinalized
)

// String returns the state name as reported by GetCurrentStateName.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "Unloaded"
	case StateLoaded:
		return "Loaded"
	case StateInitialized:
		return "Initialized"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// StateMachine drives a participant's element and component registry
// through the lifecycle. Every operation is serialised by a single
// mutex and must not be invoked from a thread already holding it; on a
// failed transition the prior steps are rolled back in reverse order and
// the observable state is unchanged.
type StateMachine struct {
	mu         sync.Mutex
	state      State
	finalized  bool
	elements   *ElementManager
	components ComponentRegistry
	logger     Logger
}

// NewStateMachine creates a state machine in the Unloaded state.
func NewStateMachine(elements *ElementManager, components ComponentRegistry, logger Logger) *StateMachine {
	if logger == nil {
		logger = NopLogger{}
	}
	return &StateMachine{
		state:      StateUnloaded,
		elements:   elements,
		components: components,
		logger:     logger,
	}
}

// GetCurrentStateName returns the name of the current state.
func (sm *StateMachine) GetCurrentStateName() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state.String()
}

// IsFinalized reports whether Exit has succeeded. Safe from any thread.
func (sm *StateMachine) IsFinalized() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.finalized
}

func (sm *StateMachine) invalidTransition(event string) error {
	return fmt.Errorf("transition '%s' is not allowed from state '%s': %w",
		event, sm.state, ErrInvalidState)
}

func (sm *StateMachine) logResult(success, failure string, err error) {
	if err == nil {
		sm.logger.Info(success)
	} else {
		sm.logger.Error(failure, "error", err)
	}
}

// Load transitions Unloaded -> Loaded by loading the element.
func (sm *StateMachine) Load() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateUnloaded {
		return sm.invalidTransition("load")
	}

	err := sm.elements.LoadElement(sm.components)
	sm.logResult("successfully loaded element", "failed to load element", err)
	if err != nil {
		return err
	}

	sm.state = StateLoaded
	return nil
}

// Unload transitions Loaded -> Unloaded by unloading the element.
func (sm *StateMachine) Unload() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateLoaded {
		return sm.invalidTransition("unload")
	}

	sm.elements.UnloadElement()
	sm.logger.Info("successfully unloaded element")

	sm.state = StateUnloaded
	return nil
}

// Initialize transitions Loaded -> Initialized. Order: element
// initialize, component initialize, component tense. Each failure rolls
// the prior steps back in reverse order; the first failure is returned.
func (sm *StateMachine) Initialize() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateLoaded {
		return sm.invalidTransition("initialize")
	}

	err := sm.elements.InitializeElement()
	sm.logResult("successfully initialized element", "failed to initialize element", err)
	if err != nil {
		return err
	}

	err = sm.components.Initialize()
	sm.logResult("successfully initialized components",
		"failed to initialize components (rolling back initialization of element)", err)
	if err != nil {
		sm.elements.DeinitializeElement()
		sm.logger.Info("successfully deinitialized element")
		return err
	}

	err = sm.components.Tense()
	sm.logResult("successfully tensed components",
		"failed to tense components (rolling back initialization of components and element)", err)
	if err != nil {
		rollbackErr := sm.components.Deinitialize()
		sm.logResult("successfully deinitialized components",
			"deinitialized components with error", rollbackErr)
		sm.elements.DeinitializeElement()
		sm.logger.Info("successfully deinitialized element")
		return err
	}

	sm.state = StateInitialized
	return nil
}

// Deinitialize transitions Initialized -> Loaded. Errors along the way
// are logged and deinitialization continues; the first error is returned
// but the transition always completes.
func (sm *StateMachine) Deinitialize() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateInitialized {
		return sm.invalidTransition("deinitialize")
	}

	firstErr := sm.components.Relax()
	sm.logResult("successfully relaxed components", "failed to relax components", firstErr)

	err := sm.components.Deinitialize()
	sm.logResult("successfully deinitialized components", "failed to deinitialize components", err)
	if firstErr == nil {
		firstErr = err
	}

	sm.elements.DeinitializeElement()
	sm.logger.Info("successfully deinitialized element")

	sm.state = StateLoaded
	return firstErr
}

// Start transitions Initialized -> Running. Order: element run,
// component start; a component failure stops the element again.
func (sm *StateMachine) Start() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateInitialized:
	case StatePaused:
		// Reserved: leaving Paused via start is not supported yet.
		return fmt.Errorf("pause state is not supported yet: %w", ErrInvalidState)
	default:
		return sm.invalidTransition("start")
	}

	err := sm.elements.RunElement()
	sm.logResult("successfully ran element", "failed to run element", err)
	if err != nil {
		return err
	}

	err = sm.components.Start()
	sm.logResult("successfully started components",
		"failed to start components (rolling back start of element)", err)
	if err != nil {
		sm.elements.StopElement()
		sm.logger.Info("successfully stopped element")
		return err
	}

	sm.state = StateRunning
	return nil
}

// Pause transitions Initialized -> Paused or Running -> Paused.
func (sm *StateMachine) Pause() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateInitialized:
		err := sm.elements.RunElement()
		sm.logResult("successfully ran element", "failed to run element", err)
		if err != nil {
			return err
		}

		err = sm.components.Pause()
		sm.logResult("successfully paused components",
			"failed to pause components (rolling back start of element)", err)
		if err != nil {
			sm.elements.StopElement()
			sm.logger.Info("successfully stopped element")
			return err
		}

		sm.state = StatePaused
		return nil

	case StateRunning:
		err := sm.components.Pause()
		sm.logResult("successfully paused components", "failed to pause components", err)
		if err != nil {
			return err
		}

		sm.state = StatePaused
		return nil

	default:
		return sm.invalidTransition("pause")
	}
}

// Stop transitions Running -> Initialized. The element is stopped even
// if the components fail to stop; the first error is returned.
func (sm *StateMachine) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateRunning:
	case StatePaused:
		// Reserved: leaving Paused via stop is not supported yet.
		return fmt.Errorf("pause state is not supported yet: %w", ErrInvalidState)
	default:
		return sm.invalidTransition("stop")
	}

	firstErr := sm.components.Stop()
	sm.logResult("successfully stopped components", "failed to stop components", firstErr)

	sm.elements.StopElement()
	sm.logger.Info("successfully stopped element")

	sm.state = StateInitialized
	return firstErr
}

// Exit transitions Unloaded -> Finalized. Finalized is terminal; every
// further operation returns ErrInvalidState.
func (sm *StateMachine) Exit() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateUnloaded {
		return sm.invalidTransition("exit")
	}

	sm.state = StateFinalized
	sm.finalized = true
	return nil
}
