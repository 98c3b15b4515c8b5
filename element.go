package simnode

// Element is the user-supplied compute element hosted by a participant.
// The state machine drives it through its lifecycle; every hook may be
// called at most once per matching transition.
type Element interface {
	// Name returns the element's display name, used in logs only.
	Name() string

	// Load gives the element access to the participant's components.
	// Called on the Unloaded -> Loaded transition.
	Load(components ComponentRegistry) error

	// Unload releases everything acquired in Load.
	Unload()

	// Initialize prepares the element for running.
	Initialize() error

	// Deinitialize releases everything acquired in Initialize.
	Deinitialize()

	// Run is called immediately before the components start or pause.
	Run() error

	// Stop undoes Run.
	Stop()
}

// ComponentRegistry drives the participant's components through their
// collective lifecycle. The state machine calls these hooks in the
// documented transition order; implementations fan each call out to the
// registered components.
type ComponentRegistry interface {
	// Initialize is called on the Loaded -> Initialized transition,
	// before Tense.
	Initialize() error

	// Tense arms the components for the run phase (the configured clock
	// selection is validated and applied here).
	Tense() error

	// Relax undoes Tense.
	Relax() error

	// Deinitialize undoes Initialize.
	Deinitialize() error

	// Start is called on the Initialized -> Running transition.
	Start() error

	// Stop undoes Start.
	Stop() error

	// Pause is called on the transitions into Paused.
	Pause() error
}

// ElementManager owns the hosted element and forwards its lifecycle
// hooks. It does no locking itself; the state machine's mutex serialises
// the calls. A nil element is legal; every hook is then a no-op.
type ElementManager struct {
	element Element
	logger  Logger
}

// NewElementManager wraps element for use by the state machine.
func NewElementManager(element Element, logger Logger) *ElementManager {
	if logger == nil {
		logger = NopLogger{}
	}
	return &ElementManager{element: element, logger: logger}
}

// LoadElement loads the hosted element against the component registry.
func (m *ElementManager) LoadElement(components ComponentRegistry) error {
	if m.element == nil {
		return nil
	}
	return m.element.Load(components)
}

// UnloadElement unloads the hosted element.
func (m *ElementManager) UnloadElement() {
	if m.element != nil {
		m.element.Unload()
	}
}

// InitializeElement initializes the hosted element.
func (m *ElementManager) InitializeElement() error {
	if m.element == nil {
		return nil
	}
	return m.element.Initialize()
}

// DeinitializeElement deinitializes the hosted element.
func (m *ElementManager) DeinitializeElement() {
	if m.element != nil {
		m.element.Deinitialize()
	}
}

// RunElement puts the hosted element into its run state.
func (m *ElementManager) RunElement() error {
	if m.element == nil {
		return nil
	}
	return m.element.Run()
}

// StopElement takes the hosted element out of its run state.
func (m *ElementManager) StopElement() {
	if m.element != nil {
		m.element.Stop()
	}
}
