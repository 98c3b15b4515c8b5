package participant

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/simnode"
	"github.com/GoCodeAlone/simnode/clock"
	"github.com/GoCodeAlone/simnode/rpcdef"
	"github.com/GoCodeAlone/simnode/servicebus"
	"github.com/GoCodeAlone/simnode/simbus"
)

// trackedElement records lifecycle hooks.
type trackedElement struct {
	mu    sync.Mutex
	calls []string
}

func (e *trackedElement) record(call string) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
}

func (e *trackedElement) Name() string                              { return "tracked" }
func (e *trackedElement) Load(simnode.ComponentRegistry) error      { e.record("load"); return nil }
func (e *trackedElement) Unload()                                   { e.record("unload") }
func (e *trackedElement) Initialize() error                         { e.record("initialize"); return nil }
func (e *trackedElement) Deinitialize()                             { e.record("deinitialize") }
func (e *trackedElement) Run() error                                { e.record("run"); return nil }
func (e *trackedElement) Stop()                                     { e.record("stop") }

func fastBusConfig() *servicebus.Config {
	cfg := servicebus.DefaultConfig()
	cfg.HeartbeatInterval = 50 * time.Millisecond
	return &cfg
}

func newTestParticipant(t *testing.T, name string, domain *servicebus.MemoryDiscoveryDomain, element simnode.Element) *Participant {
	t.Helper()
	opts := Options{
		Logger:           simnode.NopLogger{},
		Element:          element,
		ServerURL:        "http://127.0.0.1:0",
		ServiceBusConfig: fastBusConfig(),
	}
	if domain != nil {
		opts.DiscoveryTransport = domain.CreateTransport()
	}
	p, err := New(name, "test_system", opts)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestParticipantLifecycle(t *testing.T) {
	element := &trackedElement{}
	p := newTestParticipant(t, "driver", nil, element)

	assert.Equal(t, "driver@test_system", p.Identity().String())
	assert.Equal(t, "Unloaded", p.GetCurrentStateName())

	require.NoError(t, p.Load())
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Start())
	assert.Equal(t, "Running", p.GetCurrentStateName())

	// The clock service runs while the participant does.
	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, p.ClockService().GetTime(), simnode.Timestamp(0))

	require.NoError(t, p.Stop())
	assert.Equal(t, simnode.Timestamp(0), p.ClockService().GetTime())

	require.NoError(t, p.Deinitialize())
	require.NoError(t, p.Unload())
	require.NoError(t, p.Exit())
	assert.True(t, p.IsFinalized())

	assert.Equal(t, []string{"load", "initialize", "run", "stop", "deinitialize", "unload"}, element.calls)
}

func TestParticipantLifecycleOverRPC(t *testing.T) {
	p := newTestParticipant(t, "driver", nil, nil)

	requester, err := servicebus.NewRequester(p.SystemAccess().Server().URL())
	require.NoError(t, err)

	call := func(method string) rpcdef.CallResult {
		raw, err := requester.Call(rpcdef.ServiceParticipant, method, nil)
		require.NoError(t, err)
		var result rpcdef.CallResult
		require.NoError(t, json.Unmarshal(raw, &result))
		return result
	}

	assert.Equal(t, simnode.ResultOK, call("load").Result)
	assert.Equal(t, simnode.ResultOK, call("initialize").Result)
	assert.Equal(t, simnode.ResultOK, call("start").Result)
	assert.Equal(t, "Running", call("getCurrentStateName").Description)

	assert.Equal(t, simnode.ResultInvalidState, call("load").Result)

	assert.Equal(t, simnode.ResultOK, call("stop").Result)
	assert.Equal(t, simnode.ResultOK, call("deinitialize").Result)
	assert.Equal(t, simnode.ResultOK, call("unload").Result)
	assert.Equal(t, simnode.ResultOK, call("exit").Result)
	assert.True(t, p.IsFinalized())
}

func TestParticipantEmitsLifecycleEvents(t *testing.T) {
	p := newTestParticipant(t, "driver", nil, nil)

	var mu sync.Mutex
	var types []string
	require.NoError(t, p.RegisterObserver(simnode.NewFunctionalObserver("recorder",
		func(_ context.Context, event cloudevents.Event) error {
			mu.Lock()
			types = append(types, event.Type())
			mu.Unlock()
			return nil
		})))

	require.NoError(t, p.Load())
	assert.ErrorIs(t, p.Start(), simnode.ErrInvalidState)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		simnode.EventTypeParticipantLoaded,
		simnode.EventTypeTransitionFailed,
	}, types)
}

func TestParticipantsSynchronizeClockOverBus(t *testing.T) {
	domain := servicebus.NewMemoryDiscoveryDomain()

	master := newTestParticipant(t, "timing_master", domain, nil)
	slave := newTestParticipant(t, "slave", domain, nil)

	// The slave hosts the sync slave service the master will call.
	received := &recordingSlaveHandler{}
	require.NoError(t, slave.SystemAccess().Server().RegisterService(
		rpcdef.NewClockSyncSlaveService(received)))

	// Wait until discovery makes the slave's address known.
	require.Eventually(t, func() bool {
		_, ok := master.SystemAccess().CurrentlyDiscoveredServices()["slave@test_system"]
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, master.ClockMaster().RegisterClient("slave", clock.MaskAll))

	// Drive an event through the sink registry like a clock would.
	master.ClockService().SinkRegistry().TimeUpdating(1234, nil)

	assert.Eventually(t, func() bool {
		return received.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

type recordingSlaveHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *recordingSlaveHandler) SyncTimeEvent(eventID int, newTime, arg simnode.Timestamp) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return nil
}

func (h *recordingSlaveHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestParticipantDataExchange(t *testing.T) {
	transport := simbus.NewMemoryTransport()

	publisher, err := New("publisher", "test_system", Options{
		Logger: simnode.NopLogger{}, ServerURL: "http://127.0.0.1:0", SimTransport: transport,
	})
	require.NoError(t, err)
	defer publisher.Close()

	subscriber, err := New("subscriber", "test_system", Options{
		Logger: simnode.NopLogger{}, ServerURL: "http://127.0.0.1:0", SimTransport: transport,
	})
	require.NoError(t, err)
	defer subscriber.Close()

	streamType := simbus.NewStreamType(simbus.MetaTypeAnonymous,
		map[string]string{simbus.PropMaxByteSize: "1024"})

	writer, err := publisher.SimulationBus().CreateWriter("signal", streamType, 10)
	require.NoError(t, err)

	reader, err := subscriber.SimulationBus().CreateReader("signal", streamType, 10)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	received := &countingReceiver{}
	require.NoError(t, reader.Reset(received))

	// Start drives the reception loop through the component registry.
	require.NoError(t, subscriber.Load())
	require.NoError(t, subscriber.Initialize())
	require.NoError(t, subscriber.Start())
	defer func() { _ = subscriber.Stop() }()

	require.NoError(t, writer.Write(simbus.Sample{Data: []byte("payload")}))

	assert.Eventually(t, func() bool {
		return received.samples() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

type countingReceiver struct {
	mu          sync.Mutex
	sampleCount int
}

func (r *countingReceiver) OnStreamType(simbus.StreamType) {}

func (r *countingReceiver) OnSample(simbus.Sample) {
	r.mu.Lock()
	r.sampleCount++
	r.mu.Unlock()
}

func (r *countingReceiver) samples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampleCount
}
