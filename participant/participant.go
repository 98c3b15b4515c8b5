// Package participant assembles a complete simulation participant: the
// lifecycle state machine, the clock subsystem, the service bus with
// discovery and the simulation bus, exposed on the bus under
// "<participant>@<system>".
package participant

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/simnode"
	"github.com/GoCodeAlone/simnode/clock"
	"github.com/GoCodeAlone/simnode/rpcdef"
	"github.com/GoCodeAlone/simnode/servicebus"
	"github.com/GoCodeAlone/simnode/simbus"
)

// Options configure a participant. Zero values select the documented
// defaults; the core never reads the process environment, the embedding
// layer fills this struct instead.
type Options struct {
	Logger             simnode.Logger
	Element            simnode.Element
	ClockConfig        *clock.Config
	ServiceBusConfig   *servicebus.Config
	SimBusConfig       *simbus.Config
	SystemURL          string
	ServerURL          string
	DiscoveryTransport servicebus.DiscoveryTransport
	SimTransport       simbus.Transport
	HostNameResolver   servicebus.HostNameResolver
}

// Participant is one process-wide simulation participant.
type Participant struct {
	identity simnode.Identity
	logger   simnode.Logger
	props    *simnode.Properties

	clocks  *clock.Service
	master  *clock.MainEventSink
	access  *servicebus.SystemAccess
	server  servicebus.Server
	bus     *simbus.SimulationBus
	machine *simnode.StateMachine

	observers *simnode.ObserverRegistry
}

// New creates a participant named participantName in systemName.
func New(participantName, systemName string, opts Options) (*Participant, error) {
	if participantName == "" || systemName == "" {
		return nil, fmt.Errorf("participant and system name must not be empty: %w", simnode.ErrInvalidArg)
	}
	logger := opts.Logger
	if logger == nil {
		logger = simnode.NewSlogLogger(nil)
	}

	clockCfg := clock.DefaultConfig()
	if opts.ClockConfig != nil {
		clockCfg = *opts.ClockConfig
	}
	busCfg := simbus.DefaultConfig()
	if opts.SimBusConfig != nil {
		busCfg = *opts.SimBusConfig
	}

	props := simnode.NewProperties()
	clocks, err := clock.NewService(logger, props, clockCfg)
	if err != nil {
		return nil, fmt.Errorf("creating clock service: %w", err)
	}

	accessOpts := []servicebus.Option{}
	if opts.ServiceBusConfig != nil {
		accessOpts = append(accessOpts, servicebus.WithConfig(*opts.ServiceBusConfig))
	}
	if opts.DiscoveryTransport != nil {
		accessOpts = append(accessOpts, servicebus.WithTransport(opts.DiscoveryTransport))
	}
	if opts.HostNameResolver != nil {
		accessOpts = append(accessOpts, servicebus.WithResolver(opts.HostNameResolver))
	}
	access, err := servicebus.NewSystemAccess(systemName, opts.SystemURL, logger, accessOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating system access: %w", err)
	}

	serverURL := opts.ServerURL
	if serverURL == "" {
		serverURL = "http://0.0.0.0:0"
	}
	server, err := access.CreateServer(participantName, serverURL, true)
	if err != nil {
		access.Close()
		return nil, fmt.Errorf("creating participant server: %w", err)
	}

	master := clock.NewMainEventSink(logger, clockCfg.TimeUpdateTimeout, rpcdef.ResolverFor(access))
	if err := clocks.SinkRegistry().Register(clock.NewSinkRef(master)); err != nil {
		access.Close()
		return nil, fmt.Errorf("registering clock master event sink: %w", err)
	}

	simTransport := opts.SimTransport
	if simTransport == nil {
		simTransport = simbus.NewMemoryTransport()
	}
	bus := simbus.New(busCfg, simTransport, logger)

	components := simnode.NewComponents(logger)
	if err := components.Register(&clockComponent{service: clocks, master: master, props: props}); err != nil {
		access.Close()
		return nil, err
	}
	if err := components.Register(&simBusComponent{bus: bus}); err != nil {
		access.Close()
		return nil, err
	}

	elements := simnode.NewElementManager(opts.Element, logger)
	machine := simnode.NewStateMachine(elements, components, logger)

	p := &Participant{
		identity:  simnode.Identity{ParticipantName: participantName, SystemName: systemName},
		logger:    logger,
		props:     props,
		clocks:    clocks,
		master:    master,
		access:    access,
		server:    server,
		bus:       bus,
		machine:   machine,
		observers: simnode.NewObserverRegistry(logger),
	}

	for _, service := range []servicebus.Service{
		rpcdef.NewLifecycleService(machine),
		rpcdef.NewClockService(clocks),
		rpcdef.NewClockSyncMasterService(master, clocks),
	} {
		if err := server.RegisterService(service); err != nil {
			p.Close()
			return nil, fmt.Errorf("registering rpc service %q: %w", service.ServiceName(), err)
		}
	}

	access.Lock()
	return p, nil
}

// Identity returns the immutable participant identity.
func (p *Participant) Identity() simnode.Identity { return p.identity }

// StateMachine exposes the lifecycle state machine.
func (p *Participant) StateMachine() *simnode.StateMachine { return p.machine }

// ClockService exposes the clock subsystem.
func (p *Participant) ClockService() *clock.Service { return p.clocks }

// ClockMaster exposes the clock master event sink.
func (p *Participant) ClockMaster() *clock.MainEventSink { return p.master }

// SystemAccess exposes the service bus scope.
func (p *Participant) SystemAccess() *servicebus.SystemAccess { return p.access }

// SimulationBus exposes the data plane.
func (p *Participant) SimulationBus() *simbus.SimulationBus { return p.bus }

// Properties exposes the participant's property store.
func (p *Participant) Properties() *simnode.Properties { return p.props }

// RegisterObserver subscribes an observer to lifecycle events.
func (p *Participant) RegisterObserver(observer simnode.Observer, eventTypes ...string) error {
	return p.observers.RegisterObserver(observer, eventTypes...)
}

// UnregisterObserver removes a lifecycle event subscription.
func (p *Participant) UnregisterObserver(observer simnode.Observer) error {
	return p.observers.UnregisterObserver(observer)
}

func (p *Participant) emit(eventType string, err error) {
	data := map[string]interface{}{"state": p.machine.GetCurrentStateName()}
	if err != nil {
		eventType = simnode.EventTypeTransitionFailed
		data["error"] = err.Error()
	}
	event := simnode.NewCloudEvent(eventType, p.identity.String(), data)
	_ = p.observers.NotifyObservers(context.Background(), event)
}

// Load drives the Unloaded -> Loaded transition.
func (p *Participant) Load() error {
	err := p.machine.Load()
	p.emit(simnode.EventTypeParticipantLoaded, err)
	return err
}

// Unload drives the Loaded -> Unloaded transition.
func (p *Participant) Unload() error {
	err := p.machine.Unload()
	p.emit(simnode.EventTypeParticipantUnloaded, err)
	return err
}

// Initialize drives the Loaded -> Initialized transition.
func (p *Participant) Initialize() error {
	err := p.machine.Initialize()
	p.emit(simnode.EventTypeParticipantInitialized, err)
	return err
}

// Deinitialize drives the Initialized -> Loaded transition.
func (p *Participant) Deinitialize() error {
	err := p.machine.Deinitialize()
	p.emit(simnode.EventTypeParticipantDeinitialized, err)
	return err
}

// Start drives the Initialized -> Running transition.
func (p *Participant) Start() error {
	err := p.machine.Start()
	p.emit(simnode.EventTypeParticipantRunning, err)
	return err
}

// Stop drives the Running -> Initialized transition.
func (p *Participant) Stop() error {
	err := p.machine.Stop()
	p.emit(simnode.EventTypeParticipantStopped, err)
	return err
}

// Pause drives the transition into Paused.
func (p *Participant) Pause() error {
	err := p.machine.Pause()
	p.emit(simnode.EventTypeParticipantPaused, err)
	return err
}

// Exit finalizes the participant.
func (p *Participant) Exit() error {
	err := p.machine.Exit()
	p.emit(simnode.EventTypeParticipantFinalized, err)
	return err
}

// GetCurrentStateName reports the lifecycle state name.
func (p *Participant) GetCurrentStateName() string { return p.machine.GetCurrentStateName() }

// IsFinalized reports whether Exit succeeded.
func (p *Participant) IsFinalized() bool { return p.machine.IsFinalized() }

// Close releases the participant's resources: the clock master's
// client executors, the service bus and its server.
func (p *Participant) Close() {
	p.master.Close()
	p.access.Close()
}

// clockComponent adapts the clock service to the component lifecycle.
type clockComponent struct {
	service *clock.Service
	master  *clock.MainEventSink
	props   *simnode.Properties
}

func (c *clockComponent) Name() string { return "clock_service" }

func (c *clockComponent) Tense() error {
	if err := c.service.Tense(); err != nil {
		return err
	}
	// The clock master follows the configured per-event budget.
	timeout := time.Duration(c.props.GetInt64(clock.PropTimeUpdateTimeout,
		int64(clock.DefaultTimeUpdateTimeout)))
	return c.master.UpdateTimeout(timeout)
}
func (c *clockComponent) Relax() error { return c.service.Relax() }
func (c *clockComponent) Start() error { return c.service.Start() }
func (c *clockComponent) Stop() error  { return c.service.Stop() }

// simBusComponent adapts the simulation bus reception loop to the
// component lifecycle: Start returns once the first wait-set is built,
// Stop joins the reception goroutine.
type simBusComponent struct {
	bus  *simbus.SimulationBus
	done chan struct{}
}

func (c *simBusComponent) Name() string { return "simulation_bus" }

func (c *simBusComponent) Start() error {
	prepared := make(chan struct{})
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		c.bus.StartBlockingReception(func() { close(prepared) })
	}()

	select {
	case <-prepared:
		return nil
	case <-time.After(5 * time.Second):
		c.bus.StopBlockingReception()
		<-c.done
		return fmt.Errorf("simulation bus reception did not become ready: %w", simnode.ErrTimeout)
	}
}

func (c *simBusComponent) Stop() error {
	c.bus.StopBlockingReception()
	if c.done != nil {
		<-c.done
		c.done = nil
	}
	return nil
}
