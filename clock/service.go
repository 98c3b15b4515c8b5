package clock

import (
	"fmt"
	"sync"

	"github.com/GoCodeAlone/simnode"
)

// Service owns the participant's clocks, the main-clock selection and
// the event sink registry. It exposes time to the rest of the process
// and persists the main-clock selection into the configuration property
// store.
type Service struct {
	registry *Registry
	sinks    *EventSinkRegistry
	props    *simnode.Properties
	logger   simnode.Logger

	// selectMu guards main-clock selection separately from mu so a
	// selection never deadlocks with event callbacks reading time.
	selectMu sync.Mutex

	mu       sync.Mutex
	current  *Adapter
	simClock *simClock
	started  bool
	tensed   bool
}

// NewService creates the clock service with the native clocks
// registered and the configuration published to props.
func NewService(logger simnode.Logger, props *simnode.Properties, cfg Config) (*Service, error) {
	if logger == nil {
		logger = simnode.NopLogger{}
	}
	if props == nil {
		props = simnode.NewProperties()
	}

	sim := NewSimClock(cfg.SimTimeStepSize, cfg.SimTimeTimeFactor).(*simClock)
	registry := NewRegistry(logger)
	if err := registry.RegisterNativeClocks([]Clock{NewRealtimeClock(), sim}); err != nil {
		return nil, err
	}

	if err := props.Set(PropMainClock, cfg.MainClock); err != nil {
		return nil, err
	}
	if err := props.Set(PropTimeUpdateTimeout, int64(cfg.TimeUpdateTimeout)); err != nil {
		return nil, err
	}
	if err := props.Set(PropSimTimeStepSize, int64(cfg.SimTimeStepSize)); err != nil {
		return nil, err
	}
	if err := props.Set(PropSimTimeTimeFactor, cfg.SimTimeTimeFactor); err != nil {
		return nil, err
	}

	return &Service{
		registry: registry,
		sinks:    NewEventSinkRegistry(logger),
		props:    props,
		logger:   logger,
		simClock: sim,
	}, nil
}

// Registry exposes the clock registry.
func (s *Service) Registry() *Registry { return s.registry }

// SinkRegistry exposes the event sink registry driven by the current
// clock; the clock master is registered here.
func (s *Service) SinkRegistry() *EventSinkRegistry { return s.sinks }

// Tense validates the configuration and applies the configured
// main-clock selection; the selection can still change until Start. When the configured main clock is the
// simulation clock, step size and time factor are validated and applied;
// invalid values fail the call.
func (s *Service) Tense() error {
	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	mainClock := s.props.GetString(PropMainClock, LocalSystemRealtime)
	if err := s.selectMainClockLocked(mainClock); err != nil {
		return err
	}

	if mainClock == LocalSystemSimtime {
		stepSize := simnode.Timestamp(s.props.GetInt64(PropSimTimeStepSize, int64(DefaultSimStepSize)))
		timeFactor := s.props.GetFloat64(PropSimTimeTimeFactor, DefaultSimTimeFactor)
		if err := s.simClock.Configure(stepSize, timeFactor); err != nil {
			return fmt.Errorf("tensing clock service: %w", err)
		}
	}

	s.mu.Lock()
	s.tensed = true
	s.mu.Unlock()
	return nil
}

// Relax undoes Tense.
func (s *Service) Relax() error {
	s.mu.Lock()
	s.tensed = false
	s.mu.Unlock()
	return nil
}

// Start begins time progression of the current clock, feeding the event
// sink registry.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	current := s.current
	if current == nil {
		if a, ok := s.registry.Get(LocalSystemRealtime); ok {
			current = a
			s.current = a
		}
	}
	s.mu.Unlock()

	if current == nil {
		return fmt.Errorf("starting clock service without a clock: %w", simnode.ErrInvalidState)
	}
	if err := current.Start(s.sinks); err != nil {
		return err
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

// Stop halts the current clock.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	current := s.current
	s.started = false
	s.mu.Unlock()

	if current != nil {
		return current.Stop()
	}
	return nil
}

// GetTime returns the current clock's time, or 0 while the service is
// not started. The clock is read outside the service lock so event
// callbacks re-entering through GetTime never deadlock.
func (s *Service) GetTime() simnode.Timestamp {
	s.mu.Lock()
	started := s.started
	current := s.current
	s.mu.Unlock()

	if !started || current == nil {
		return 0
	}
	return current.Time()
}

// GetTimeOf returns the named clock's time.
func (s *Service) GetTimeOf(name string) (simnode.Timestamp, bool) {
	a, ok := s.registry.Get(name)
	if !ok {
		return 0, false
	}
	return a.Time(), true
}

// GetType returns the current clock's type.
func (s *Service) GetType() Type {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current == nil {
		return TypeContinuous
	}
	return current.Type()
}

// GetTypeOf returns the named clock's type.
func (s *Service) GetTypeOf(name string) (Type, bool) {
	a, ok := s.registry.Get(name)
	if !ok {
		return 0, false
	}
	return a.Type(), true
}

// MainClockName returns the current clock's name; before tense it
// reports the configured selection.
func (s *Service) MainClockName() string {
	s.mu.Lock()
	tensed := s.tensed
	current := s.current
	s.mu.Unlock()

	if !tensed || current == nil {
		return s.props.GetString(PropMainClock, LocalSystemRealtime)
	}
	return current.Name()
}

// SelectMainClock makes the named clock current and persists the
// selection. Forbidden once started. An unknown name resets the
// selection to the default real-time clock and returns ErrNotFound.
// Selection takes its own mutex so it never deadlocks with event
// callbacks holding the service lock.
func (s *Service) SelectMainClock(name string) error {
	s.selectMu.Lock()
	defer s.selectMu.Unlock()
	return s.selectMainClockLocked(name)
}

func (s *Service) selectMainClockLocked(name string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("setting main clock %q failed, can not reset main clock after start of clock service: %w",
			name, simnode.ErrInvalidState)
	}

	a, ok := s.registry.Get(name)
	if !ok {
		fallback, _ := s.registry.Get(LocalSystemRealtime)
		s.current = fallback
		s.mu.Unlock()
		return fmt.Errorf("setting main clock failed, a clock with the name %q is not registered, resetting to default: %w",
			name, simnode.ErrNotFound)
	}
	s.current = a
	s.mu.Unlock()

	if err := s.props.Set(PropMainClock, name); err != nil {
		return err
	}
	s.logger.Debug("clock set as main clock of the clock service", "clock", name)
	return nil
}

// RegisterClock adds a user clock to the registry.
func (s *Service) RegisterClock(c Clock) error {
	return s.registry.Register(c)
}

// UnregisterClock removes a user clock; forbidden while the service is
// started.
func (s *Service) UnregisterClock(name string) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if started {
		return fmt.Errorf("unregistering clock %q while the clock service is started: %w",
			name, simnode.ErrInvalidState)
	}
	return s.registry.Unregister(name)
}

// RegisterEventSink subscribes a sink to time events. An expired
// reference is a parameter error; duplicates are rejected.
func (s *Service) RegisterEventSink(ref *SinkRef) error {
	if ref == nil || ref.Get() == nil {
		return fmt.Errorf("registering event sink: %w", simnode.ErrInvalidArg)
	}
	return s.sinks.Register(ref)
}

// UnregisterEventSink removes a sink subscription.
func (s *Service) UnregisterEventSink(ref *SinkRef) error {
	if ref == nil || ref.Get() == nil {
		return fmt.Errorf("unregistering event sink: %w", simnode.ErrInvalidArg)
	}
	return s.sinks.Unregister(ref)
}
