package servicebus

import (
	"fmt"
	"strings"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/GoCodeAlone/simnode"
)

// UpdateEventType classifies a discovery message.
type UpdateEventType int

const (
	// EventDiscover asks every reachable server to respond.
	EventDiscover UpdateEventType = iota
	// EventBye announces a server going away.
	EventBye
	// EventAlive is the periodic heartbeat of a living server.
	EventAlive
	// EventResponse answers a discover request.
	EventResponse
)

func (t UpdateEventType) String() string {
	switch t {
	case EventDiscover:
		return "discover"
	case EventBye:
		return "bye"
	case EventAlive:
		return "alive"
	case EventResponse:
		return "response"
	default:
		return "unknown"
	}
}

// DiscoverAllSystems is the reserved wildcard system name; a system
// access created under it processes samples of every system.
const DiscoverAllSystems = "*"

// CloudEvent types carrying discovery samples on the wire.
const (
	eventTypeDiscover = "com.simnode.discovery.discover"
	eventTypeBye      = "com.simnode.discovery.bye"
	eventTypeAlive    = "com.simnode.discovery.alive"
	eventTypeResponse = "com.simnode.discovery.response"
)

// DiscoverySample is one discovery message. ServiceName has the form
// "<server>@<system>".
type DiscoverySample struct {
	ID          string          `json:"id"`
	ServiceName string          `json:"service_name"`
	HostURL     string          `json:"host_url"`
	EventType   UpdateEventType `json:"-"`
}

// ServiceUpdateEvent is a discovery sample after system filtering and
// host resolution, as delivered to update sinks.
type ServiceUpdateEvent struct {
	ServiceName string
	SystemName  string
	HostURL     string
	EventType   UpdateEventType
}

// DiscoveryTransport is the seam to the on-the-wire discovery medium.
// The concrete multicast/DDS transports live outside this runtime.
type DiscoveryTransport interface {
	// Publish sends one sample to every participant of the domain.
	Publish(sample DiscoverySample) error

	// Subscribe delivers every domain sample (including own ones) to fn
	// until the returned cancel function is called.
	Subscribe(fn func(DiscoverySample)) (cancel func(), err error)
}

func eventTypeOf(t UpdateEventType) string {
	switch t {
	case EventDiscover:
		return eventTypeDiscover
	case EventBye:
		return eventTypeBye
	case EventAlive:
		return eventTypeAlive
	default:
		return eventTypeResponse
	}
}

func updateEventTypeOf(ceType string) (UpdateEventType, bool) {
	switch ceType {
	case eventTypeDiscover:
		return EventDiscover, true
	case eventTypeBye:
		return EventBye, true
	case eventTypeAlive:
		return EventAlive, true
	case eventTypeResponse:
		return EventResponse, true
	default:
		return 0, false
	}
}

// sampleToEvent encodes a discovery sample as a CloudEvent.
func sampleToEvent(sample DiscoverySample) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(sample.ID)
	event.SetType(eventTypeOf(sample.EventType))
	event.SetSource("simnode/discovery")
	event.SetTime(time.Now())
	err := event.SetData(cloudevents.ApplicationJSON, map[string]string{
		"service_name": sample.ServiceName,
		"host_url":     sample.HostURL,
	})
	return event, err
}

// eventToSample decodes a CloudEvent back into a discovery sample.
func eventToSample(event cloudevents.Event) (DiscoverySample, error) {
	eventType, ok := updateEventTypeOf(event.Type())
	if !ok {
		return DiscoverySample{}, fmt.Errorf("discovery event type %q: %w", event.Type(), simnode.ErrUnsupported)
	}
	var content struct {
		ServiceName string `json:"service_name"`
		HostURL     string `json:"host_url"`
	}
	if err := event.DataAs(&content); err != nil {
		return DiscoverySample{}, fmt.Errorf("discovery event payload: %w", simnode.ErrInvalidArg)
	}
	return DiscoverySample{
		ID:          event.ID(),
		ServiceName: content.ServiceName,
		HostURL:     content.HostURL,
		EventType:   eventType,
	}, nil
}

// MemoryDiscoveryDomain is an in-process discovery medium. Every
// transport created from the same domain observes every published
// sample; samples travel as CloudEvents like on a real wire.
type MemoryDiscoveryDomain struct {
	mu          sync.Mutex
	subscribers map[string]func(cloudevents.Event)
}

// NewMemoryDiscoveryDomain creates an empty domain.
func NewMemoryDiscoveryDomain() *MemoryDiscoveryDomain {
	return &MemoryDiscoveryDomain{subscribers: make(map[string]func(cloudevents.Event))}
}

// CreateTransport returns a transport attached to the domain.
func (d *MemoryDiscoveryDomain) CreateTransport() DiscoveryTransport {
	return &memoryTransport{domain: d}
}

func (d *MemoryDiscoveryDomain) publish(event cloudevents.Event) {
	d.mu.Lock()
	snapshot := make([]func(cloudevents.Event), 0, len(d.subscribers))
	for _, fn := range d.subscribers {
		snapshot = append(snapshot, fn)
	}
	d.mu.Unlock()

	for _, fn := range snapshot {
		fn(event)
	}
}

type memoryTransport struct {
	domain *MemoryDiscoveryDomain
}

func (t *memoryTransport) Publish(sample DiscoverySample) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	event, err := sampleToEvent(sample)
	if err != nil {
		return fmt.Errorf("encoding discovery sample: %w", simnode.ErrInvalidArg)
	}
	t.domain.publish(event)
	return nil
}

func (t *memoryTransport) Subscribe(fn func(DiscoverySample)) (func(), error) {
	id := uuid.NewString()
	t.domain.mu.Lock()
	t.domain.subscribers[id] = func(event cloudevents.Event) {
		if sample, err := eventToSample(event); err == nil {
			fn(sample)
		}
	}
	t.domain.mu.Unlock()

	return func() {
		t.domain.mu.Lock()
		delete(t.domain.subscribers, id)
		t.domain.mu.Unlock()
	}, nil
}

// splitServiceName splits "<server>@<system>" into its parts.
func splitServiceName(serviceName string) (server, system string, ok bool) {
	idx := strings.Index(serviceName, "@")
	if idx < 0 {
		return "", "", false
	}
	return serviceName[:idx], serviceName[idx+1:], true
}

// serviceEntry is the latest knowledge about one discovered service.
type serviceEntry struct {
	lastSeen time.Time
	hostURL  string
}

// serviceVec keeps the latest (last_seen, host_url) per unique service
// name. Entries not refreshed within the expiry window are pruned.
type serviceVec struct {
	mu       sync.Mutex
	services map[string]serviceEntry
}

func newServiceVec() *serviceVec {
	return &serviceVec{services: make(map[string]serviceEntry)}
}

// update filters the sample by system name, upserts or removes the
// entry and returns the event to forward to update sinks (nil when the
// sample belongs to another system or is a plain discover request).
func (v *serviceVec) update(sample DiscoverySample, systemName string) *ServiceUpdateEvent {
	server, system, ok := splitServiceName(sample.ServiceName)
	if !ok {
		return nil
	}
	if systemName != DiscoverAllSystems && system != systemName {
		// a server belonging to another system
		return nil
	}
	if sample.EventType == EventDiscover {
		return nil
	}

	v.mu.Lock()
	switch sample.EventType {
	case EventAlive, EventResponse:
		v.services[sample.ServiceName] = serviceEntry{lastSeen: time.Now(), hostURL: sample.HostURL}
	case EventBye:
		delete(v.services, sample.ServiceName)
	}
	v.mu.Unlock()

	return &ServiceUpdateEvent{
		ServiceName: server,
		SystemName:  system,
		HostURL:     sample.HostURL,
		EventType:   sample.EventType,
	}
}

// removeOld prunes entries whose last event is older than maxAge.
func (v *serviceVec) removeOld(maxAge time.Duration) {
	now := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()
	for name, entry := range v.services {
		if now.Sub(entry.lastSeen) > maxAge {
			delete(v.services, name)
		}
	}
}

// lookup returns the host URL of a unique service name.
func (v *serviceVec) lookup(serviceName string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.services[serviceName]
	return entry.hostURL, ok
}

// snapshot returns all known service names and their URLs.
func (v *serviceVec) snapshot() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	result := make(map[string]string, len(v.services))
	for name, entry := range v.services {
		result[name] = entry.hostURL
	}
	return result
}
