package servicebus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/simnode"
)

func TestServiceVecUpsertAndBye(t *testing.T) {
	vec := newServiceVec()

	event := vec.update(DiscoverySample{
		ServiceName: "driver@sys", HostURL: "http://10.0.0.1:9090", EventType: EventAlive,
	}, "sys")
	require.NotNil(t, event)
	assert.Equal(t, "driver", event.ServiceName)
	assert.Equal(t, "sys", event.SystemName)

	url, ok := vec.lookup("driver@sys")
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.1:9090", url)

	// response refreshes like alive.
	event = vec.update(DiscoverySample{
		ServiceName: "driver@sys", HostURL: "http://10.0.0.2:9090", EventType: EventResponse,
	}, "sys")
	require.NotNil(t, event)
	url, _ = vec.lookup("driver@sys")
	assert.Equal(t, "http://10.0.0.2:9090", url)

	// bye removes the entry but is still forwarded to sinks.
	event = vec.update(DiscoverySample{
		ServiceName: "driver@sys", EventType: EventBye,
	}, "sys")
	require.NotNil(t, event)
	_, ok = vec.lookup("driver@sys")
	assert.False(t, ok)
}

func TestServiceVecFiltersForeignSystems(t *testing.T) {
	vec := newServiceVec()

	event := vec.update(DiscoverySample{
		ServiceName: "driver@other", HostURL: "http://10.0.0.1:9090", EventType: EventAlive,
	}, "sys")
	assert.Nil(t, event)
	assert.Empty(t, vec.snapshot())

	// The wildcard system accepts everything.
	event = vec.update(DiscoverySample{
		ServiceName: "driver@other", HostURL: "http://10.0.0.1:9090", EventType: EventAlive,
	}, DiscoverAllSystems)
	require.NotNil(t, event)
	assert.Equal(t, "other", event.SystemName)
}

func TestServiceVecSweepRemovesStaleEntries(t *testing.T) {
	vec := newServiceVec()
	vec.update(DiscoverySample{
		ServiceName: "stale@sys", HostURL: "http://10.0.0.1:9090", EventType: EventAlive,
	}, "sys")

	vec.mu.Lock()
	vec.services["stale@sys"] = serviceEntry{
		lastSeen: time.Now().Add(-21 * time.Second),
		hostURL:  "http://10.0.0.1:9090",
	}
	vec.mu.Unlock()

	vec.removeOld(DefaultEntryExpiry)
	_, ok := vec.lookup("stale@sys")
	assert.False(t, ok)
}

func TestMemoryDiscoveryDomainCarriesSamples(t *testing.T) {
	domain := NewMemoryDiscoveryDomain()
	sender := domain.CreateTransport()
	receiver := domain.CreateTransport()

	var mu sync.Mutex
	var received []DiscoverySample
	cancel, err := receiver.Subscribe(func(sample DiscoverySample) {
		mu.Lock()
		received = append(received, sample)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, sender.Publish(DiscoverySample{
		ServiceName: "driver@sys", HostURL: "http://10.0.0.1:9090", EventType: EventAlive,
	}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "driver@sys", received[0].ServiceName)
	assert.Equal(t, EventAlive, received[0].EventType)
	assert.NotEmpty(t, received[0].ID)
}

// mockResolver maps host names to fixed addresses.
type mockResolver struct {
	addresses map[string]string
}

func (r *mockResolver) Resolve(host string) (string, error) {
	if addr, ok := r.addresses[host]; ok {
		return addr, nil
	}
	return "", simnode.ErrNotFound
}

func TestResolveHostURL(t *testing.T) {
	resolver := &mockResolver{addresses: map[string]string{"myhost": "192.168.1.5"}}

	assert.Equal(t, "http://192.168.1.5:9090", resolveHostURL(resolver, "http://myhost:9090"))
	// Unresolvable hosts pass through unchanged.
	assert.Equal(t, "http://unknown:9090", resolveHostURL(resolver, "http://unknown:9090"))
	// Numeric addresses pass through the net resolver untouched.
	assert.Equal(t, "http://127.0.0.1:80", resolveHostURL(NetResolver{}, "http://127.0.0.1:80"))
}

func TestUpdateSinkRegistryFanOut(t *testing.T) {
	registry := NewUpdateSinkRegistry(2)
	defer registry.Close()

	var mu sync.Mutex
	counts := map[string]int{}
	makeSink := func(name string) UpdateEventSink {
		return updateSinkFunc(func(ServiceUpdateEvent) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		})
	}

	first := makeSink("first")
	second := makeSink("second")
	require.NoError(t, registry.Register(first))
	require.NoError(t, registry.Register(second))
	assert.ErrorIs(t, registry.Register(first), simnode.ErrAlreadyRegistered)

	registry.Dispatch(ServiceUpdateEvent{ServiceName: "driver", EventType: EventAlive})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["first"] == 1 && counts["second"] == 1
	}, time.Second, 5*time.Millisecond)

	// After deregistration the sink no longer receives events.
	require.NoError(t, registry.Deregister(second))
	assert.ErrorIs(t, registry.Deregister(second), simnode.ErrNotFound)

	registry.Dispatch(ServiceUpdateEvent{ServiceName: "driver", EventType: EventAlive})
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["first"] == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts["second"])
}

type updateSinkFunc func(ServiceUpdateEvent)

func (f updateSinkFunc) OnServiceUpdate(event ServiceUpdateEvent) { f(event) }
