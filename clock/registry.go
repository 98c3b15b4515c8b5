package clock

import (
	"fmt"
	"sort"
	"sync"

	"github.com/GoCodeAlone/simnode"
)

// LegacyEventSink is the previous event-sink interface version: its
// TimeUpdating callback carries no next-tick hint. Kept so elements
// built against the old interface keep working unchanged.
type LegacyEventSink interface {
	TimeUpdateBegin(oldTime, newTime simnode.Timestamp)
	TimeUpdating(newTime simnode.Timestamp)
	TimeUpdateEnd(newTime simnode.Timestamp)
	TimeResetBegin(oldTime, newTime simnode.Timestamp)
	TimeResetEnd(newTime simnode.Timestamp)
}

// LegacyClock is the previous clock interface version, feeding a
// LegacyEventSink on Start.
type LegacyClock interface {
	Name() string
	Type() Type
	Time() simnode.Timestamp
	Reset(newTime simnode.Timestamp)
	Start(sink LegacyEventSink) error
	Stop() error
}

// Adapter presents either clock interface version as the current Clock.
// It carries the superset of methods; the legacy variant silently drops
// what the old interface cannot express.
type Adapter struct {
	modern Clock
	legacy LegacyClock
}

// Adapt wraps a current-version clock.
func Adapt(c Clock) *Adapter {
	return &Adapter{modern: c}
}

// AdaptLegacy wraps a previous-version clock.
func AdaptLegacy(c LegacyClock) *Adapter {
	return &Adapter{legacy: c}
}

func (a *Adapter) Name() string {
	if a.modern != nil {
		return a.modern.Name()
	}
	return a.legacy.Name()
}

func (a *Adapter) Type() Type {
	if a.modern != nil {
		return a.modern.Type()
	}
	return a.legacy.Type()
}

func (a *Adapter) Time() simnode.Timestamp {
	if a.modern != nil {
		return a.modern.Time()
	}
	return a.legacy.Time()
}

func (a *Adapter) Reset(newTime simnode.Timestamp) {
	if a.modern != nil {
		a.modern.Reset(newTime)
		return
	}
	a.legacy.Reset(newTime)
}

func (a *Adapter) Start(sink EventSink) error {
	if a.modern != nil {
		return a.modern.Start(sink)
	}
	return a.legacy.Start(legacyStartSink{sink})
}

func (a *Adapter) Stop() error {
	if a.modern != nil {
		return a.modern.Stop()
	}
	return a.legacy.Stop()
}

// legacyStartSink lets a legacy clock drive a current-version sink; the
// legacy clock never produces a next-tick hint, so none is forwarded.
type legacyStartSink struct {
	sink EventSink
}

func (s legacyStartSink) TimeUpdateBegin(oldTime, newTime simnode.Timestamp) {
	s.sink.TimeUpdateBegin(oldTime, newTime)
}

func (s legacyStartSink) TimeUpdating(newTime simnode.Timestamp) {
	s.sink.TimeUpdating(newTime, nil)
}

func (s legacyStartSink) TimeUpdateEnd(newTime simnode.Timestamp) { s.sink.TimeUpdateEnd(newTime) }
func (s legacyStartSink) TimeResetBegin(oldTime, newTime simnode.Timestamp) {
	s.sink.TimeResetBegin(oldTime, newTime)
}
func (s legacyStartSink) TimeResetEnd(newTime simnode.Timestamp) { s.sink.TimeResetEnd(newTime) }

// Registry is the named mapping of clocks. The native clocks are
// registered once and cannot be unregistered.
type Registry struct {
	mu     sync.Mutex
	clocks map[string]*Adapter
	native []string
	logger simnode.Logger
}

// NewRegistry creates an empty clock registry.
func NewRegistry(logger simnode.Logger) *Registry {
	if logger == nil {
		logger = simnode.NopLogger{}
	}
	return &Registry{clocks: make(map[string]*Adapter), logger: logger}
}

// RegisterNativeClocks registers the runtime's built-in clocks. It can
// only be done once.
func (r *Registry) RegisterNativeClocks(clocks []Clock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.native) > 0 {
		return fmt.Errorf("registering native clocks can only be done once: %w", simnode.ErrInvalidArg)
	}
	for _, c := range clocks {
		r.native = append(r.native, c.Name())
		if err := r.registerLocked(Adapt(c)); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a clock under its unique name.
func (r *Registry) Register(c Clock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(Adapt(c))
}

// RegisterLegacy adds a previous-version clock under its unique name.
func (r *Registry) RegisterLegacy(c LegacyClock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(AdaptLegacy(c))
}

func (r *Registry) registerLocked(a *Adapter) error {
	name := a.Name()
	if name == "" {
		return fmt.Errorf("registering clock failed, name is empty: %w", simnode.ErrInvalidArg)
	}
	if _, ok := r.clocks[name]; ok {
		return fmt.Errorf("registering clock failed, a clock with the name %q is already registered: %w",
			name, simnode.ErrAlreadyRegistered)
	}
	r.clocks[name] = a
	r.logger.Debug("clock registered", "clock", name)
	return nil
}

// Unregister removes a clock by name. The native clocks cannot be
// unregistered.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.native {
		if n == name {
			return fmt.Errorf("unregistering clock failed, the native clock %q can not be unregistered: %w",
				name, simnode.ErrInvalidArg)
		}
	}
	if _, ok := r.clocks[name]; !ok {
		return fmt.Errorf("unregistering clock failed, a clock with the name %q is not registered: %w",
			name, simnode.ErrInvalidArg)
	}
	delete(r.clocks, name)
	r.logger.Debug("clock unregistered", "clock", name)
	return nil
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (*Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.clocks[name]
	return a, ok
}

// Names returns the sorted names of all registered clocks.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.clocks))
	for name := range r.clocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
