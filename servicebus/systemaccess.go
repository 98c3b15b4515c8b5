package servicebus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/simnode"
)

// DefaultURLs provides the implementation default URLs for a system and
// its servers.
type DefaultURLs interface {
	DefaultSystemURL() string
	DefaultServerURL() string
}

// StaticDefaultURLs is a DefaultURLs over fixed strings.
type StaticDefaultURLs struct {
	SystemURL string
	ServerURL string
}

func (u StaticDefaultURLs) DefaultSystemURL() string { return u.SystemURL }
func (u StaticDefaultURLs) DefaultServerURL() string { return u.ServerURL }

// SystemAccess is the participant's scoped view of one named system:
// it creates servers and requesters and runs the periodic discovery
// that fills the passive service map.
type SystemAccess struct {
	systemName string
	systemURL  string
	defaults   DefaultURLs
	cfg        Config
	logger     simnode.Logger

	transport DiscoveryTransport
	resolver  HostNameResolver
	sinks     *UpdateSinkRegistry
	services  *serviceVec

	scheduler *cron.Cron
	cancelSub func()

	firstSearch     chan struct{}
	firstSearchOnce sync.Once

	locked atomic.Bool

	mu              sync.Mutex
	server          Server
	discoveryActive bool
}

// Option configures a SystemAccess.
type Option func(*SystemAccess)

// WithTransport attaches the discovery transport; without one the
// system access performs no discovery.
func WithTransport(t DiscoveryTransport) Option {
	return func(a *SystemAccess) { a.transport = t }
}

// WithResolver replaces the host name resolver.
func WithResolver(r HostNameResolver) Option {
	return func(a *SystemAccess) { a.resolver = r }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(a *SystemAccess) { a.cfg = cfg }
}

// WithDefaultURLs replaces the default URL provider.
func WithDefaultURLs(d DefaultURLs) Option {
	return func(a *SystemAccess) { a.defaults = d }
}

// NewSystemAccess creates a system access for systemName and starts its
// discovery loop when a transport is attached.
func NewSystemAccess(systemName, systemURL string, logger simnode.Logger, opts ...Option) (*SystemAccess, error) {
	if systemName == "" {
		return nil, fmt.Errorf("creating system access without a system name: %w", simnode.ErrInvalidArg)
	}
	if logger == nil {
		logger = simnode.NopLogger{}
	}

	a := &SystemAccess{
		systemName:  systemName,
		systemURL:   systemURL,
		defaults:    StaticDefaultURLs{ServerURL: "http://0.0.0.0:0"},
		cfg:         DefaultConfig(),
		logger:      logger,
		resolver:    NetResolver{},
		services:    newServiceVec(),
		firstSearch: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg.HeartbeatInterval <= 0 {
		a.cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if a.cfg.EntryExpiry <= 0 {
		a.cfg.EntryExpiry = DefaultEntryExpiry
	}
	a.sinks = NewUpdateSinkRegistry(a.cfg.UpdateSinkWorkers)

	if a.transport != nil {
		if err := a.startDiscovering(); err != nil {
			a.sinks.Close()
			return nil, err
		}
	}
	return a, nil
}

// Name returns the system name.
func (a *SystemAccess) Name() string { return a.systemName }

// URL returns the system URL.
func (a *SystemAccess) URL() string { return a.systemURL }

func (a *SystemAccess) startDiscovering() error {
	cancel, err := a.transport.Subscribe(a.handleSample)
	if err != nil {
		return fmt.Errorf("subscribing to discovery transport: %w", err)
	}
	a.cancelSub = cancel

	a.scheduler = cron.New()
	schedule := fmt.Sprintf("@every %s", a.cfg.HeartbeatInterval)
	if _, err := a.scheduler.AddFunc(schedule, a.heartbeat); err != nil {
		cancel()
		return fmt.Errorf("scheduling discovery heartbeat: %w", err)
	}
	a.scheduler.Start()
	a.logger.Info("starting discovery loop", "system", a.systemName,
		"interval", a.cfg.HeartbeatInterval)

	// Send the first search immediately; the schedule paces the rest.
	go a.heartbeat()
	return nil
}

// heartbeat announces the hosted server, asks for responses and prunes
// stale entries. Runs on the scheduler's goroutine; the first round runs
// on its own goroutine when discovery starts.
func (a *SystemAccess) heartbeat() {
	a.services.removeOld(a.cfg.EntryExpiry)

	a.mu.Lock()
	server := a.server
	active := a.discoveryActive
	a.mu.Unlock()

	if server != nil && active {
		a.publish(DiscoverySample{
			ServiceName: server.Name() + "@" + a.systemName,
			HostURL:     server.URL(),
			EventType:   EventAlive,
		})
	}
	a.searchNow()
	a.firstSearchOnce.Do(func() { close(a.firstSearch) })
}

func (a *SystemAccess) searchNow() {
	a.publish(DiscoverySample{
		ServiceName: "*@" + a.systemName,
		EventType:   EventDiscover,
	})
}

func (a *SystemAccess) publish(sample DiscoverySample) {
	if a.transport == nil {
		return
	}
	if err := a.transport.Publish(sample); err != nil {
		a.logger.Error("publishing discovery sample failed",
			"event", sample.EventType.String(), "error", err)
	}
}

// handleSample processes one inbound discovery sample: discover
// requests are answered for the hosted server, everything else updates
// the passive service map and fans out to update sinks.
func (a *SystemAccess) handleSample(sample DiscoverySample) {
	if sample.EventType == EventDiscover {
		_, system, ok := splitServiceName(sample.ServiceName)
		if !ok {
			return
		}
		if system != a.systemName && system != DiscoverAllSystems && a.systemName != DiscoverAllSystems {
			return
		}
		a.mu.Lock()
		server := a.server
		active := a.discoveryActive
		a.mu.Unlock()
		if server != nil && active {
			a.publish(DiscoverySample{
				ServiceName: server.Name() + "@" + a.systemName,
				HostURL:     server.URL(),
				EventType:   EventResponse,
			})
		}
		return
	}

	event := a.services.update(sample, a.systemName)
	if event == nil {
		return
	}
	event.HostURL = resolveHostURL(a.resolver, event.HostURL)
	a.sinks.Dispatch(*event)
}

// CreateServer creates the RPC server of this system access. While the
// access is locked, creating servers is an invalid-state error; at most
// one server is active at a time.
func (a *SystemAccess) CreateServer(serverName, serverURL string, discoveryActive bool) (Server, error) {
	if a.locked.Load() {
		return nil, fmt.Errorf("creating server %q on locked system access: %w",
			serverName, simnode.ErrInvalidState)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil, fmt.Errorf("system access %q already hosts server %q: %w",
			a.systemName, a.server.Name(), simnode.ErrInvalidState)
	}

	if serverURL == "" {
		serverURL = a.defaults.DefaultServerURL()
	}
	server, err := NewServer(serverName, serverURL, a.systemName, a.logger)
	if err != nil {
		return nil, err
	}
	a.server = server
	a.discoveryActive = discoveryActive
	return server, nil
}

// ReleaseServer announces the server going away and stops it. The name
// is logged before the server is released.
func (a *SystemAccess) ReleaseServer() {
	a.mu.Lock()
	server := a.server
	active := a.discoveryActive
	a.server = nil
	a.discoveryActive = false
	a.mu.Unlock()

	if server == nil {
		return
	}
	a.logger.Debug("releasing server", "server", server.Name())
	if active {
		a.publish(DiscoverySample{
			ServiceName: server.Name() + "@" + a.systemName,
			HostURL:     server.URL(),
			EventType:   EventBye,
		})
	}
	if err := server.Stop(); err != nil {
		a.logger.Error("stopping server failed", "error", err)
	}
}

// Server returns the hosted server, or nil.
func (a *SystemAccess) Server() Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server
}

// Lock forbids further server creation (typically called once the
// hosting service bus is fully created).
func (a *SystemAccess) Lock() { a.locked.Store(true) }

// GetRequester resolves the named server to a reachable address and
// creates a requester for it. Resolution order: the local server
// (loopback), the passive discovery map, then up to ten active discover
// rounds of one second each. Returns nil when the server stays unknown.
func (a *SystemAccess) GetRequester(serverName string) Requester {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()

	if server != nil && server.Name() == serverName {
		return a.newRequesterLogged(serverName, server.URL())
	}

	unique := serverName + "@" + a.systemName
	if url, ok := a.services.lookup(unique); ok {
		return a.newRequesterLogged(serverName, url)
	}

	if a.transport != nil {
		for try := 0; try < GetRequesterMaxTries; try++ {
			a.searchNow()
			deadline := time.Now().Add(GetRequesterRoundTimeout)
			for time.Now().Before(deadline) {
				if url, ok := a.services.lookup(unique); ok {
					return a.newRequesterLogged(serverName, url)
				}
				time.Sleep(50 * time.Millisecond)
			}
		}
	}

	a.logger.Error("could not resolve address of server", "server", serverName,
		"system", a.systemName)
	return nil
}

func (a *SystemAccess) newRequesterLogged(serverName, url string) Requester {
	requester, err := NewRequester(url)
	if err != nil {
		a.logger.Error("creating requester failed", "server", serverName,
			"url", url, "error", err)
		return nil
	}
	return requester
}

// DiscoveredServices waits for at least one search round (bounded by
// timeout; a negative timeout waits 100 ms, a zero timeout does not
// wait) and returns the known service names and URLs.
func (a *SystemAccess) DiscoveredServices(timeout time.Duration) map[string]string {
	if timeout != 0 && a.transport != nil {
		if timeout < 0 {
			timeout = 100 * time.Millisecond
		}
		select {
		case <-a.firstSearch:
		case <-time.After(timeout):
		}
	}
	return a.services.snapshot()
}

// CurrentlyDiscoveredServices returns the known services without
// waiting for a search round.
func (a *SystemAccess) CurrentlyDiscoveredServices() map[string]string {
	return a.services.snapshot()
}

// RegisterUpdateEventSink subscribes a sink to discovery updates.
func (a *SystemAccess) RegisterUpdateEventSink(sink UpdateEventSink) error {
	return a.sinks.Register(sink)
}

// DeregisterUpdateEventSink removes a discovery update subscription.
func (a *SystemAccess) DeregisterUpdateEventSink(sink UpdateEventSink) error {
	return a.sinks.Deregister(sink)
}

// Close stops discovery, the update-sink pool and the hosted server.
func (a *SystemAccess) Close() {
	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
	}
	if a.cancelSub != nil {
		a.cancelSub()
	}
	a.ReleaseServer()
	a.sinks.Close()
}
