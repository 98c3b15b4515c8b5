package rpcdef

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/simnode"
	"github.com/GoCodeAlone/simnode/clock"
	"github.com/GoCodeAlone/simnode/servicebus"
)

// noopRegistry satisfies the component registry without side effects.
type noopRegistry struct{}

func (noopRegistry) Initialize() error   { return nil }
func (noopRegistry) Tense() error        { return nil }
func (noopRegistry) Relax() error        { return nil }
func (noopRegistry) Deinitialize() error { return nil }
func (noopRegistry) Start() error        { return nil }
func (noopRegistry) Stop() error         { return nil }
func (noopRegistry) Pause() error        { return nil }

func newBusPair(t *testing.T) (servicebus.Server, servicebus.Requester) {
	t.Helper()
	server, err := servicebus.NewServer("driver", "http://127.0.0.1:0", "sys", simnode.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Stop() })

	requester, err := servicebus.NewRequester(server.URL())
	require.NoError(t, err)
	return server, requester
}

func callResult(t *testing.T, requester servicebus.Requester, service, method string, params any) CallResult {
	t.Helper()
	raw, err := requester.Call(service, method, params)
	require.NoError(t, err)
	var result CallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	return result
}

func TestLifecycleServiceOverTheWire(t *testing.T) {
	machine := simnode.NewStateMachine(
		simnode.NewElementManager(nil, simnode.NopLogger{}), noopRegistry{}, simnode.NopLogger{})

	server, requester := newBusPair(t)
	require.NoError(t, server.RegisterService(NewLifecycleService(machine)))

	result := callResult(t, requester, ServiceParticipant, "load", nil)
	assert.Equal(t, simnode.ResultOK, result.Result)

	result = callResult(t, requester, ServiceParticipant, "getCurrentStateName", nil)
	assert.Equal(t, "Loaded", result.Description)

	// A forbidden transition reports the typed failure code and leaves
	// the state unchanged.
	result = callResult(t, requester, ServiceParticipant, "start", nil)
	assert.Equal(t, simnode.ResultInvalidState, result.Result)

	result = callResult(t, requester, ServiceParticipant, "getCurrentStateName", nil)
	assert.Equal(t, "Loaded", result.Description)
}

func TestClockServiceOverTheWire(t *testing.T) {
	clocks, err := clock.NewService(simnode.NopLogger{}, simnode.NewProperties(), clock.DefaultConfig())
	require.NoError(t, err)

	server, requester := newBusPair(t)
	require.NoError(t, server.RegisterService(NewClockService(clocks)))

	raw, err := requester.Call(ServiceClock, "getClockNames", nil)
	require.NoError(t, err)
	var names string
	require.NoError(t, json.Unmarshal(raw, &names))
	assert.Equal(t, "local_system_realtime,local_system_simtime", names)

	raw, err = requester.Call(ServiceClock, "getTime", clockNameParams{ClockName: "missing"})
	require.NoError(t, err)
	var timeStr string
	require.NoError(t, json.Unmarshal(raw, &timeStr))
	assert.Equal(t, "-1", timeStr)

	raw, err = requester.Call(ServiceClock, "getType", clockNameParams{ClockName: clock.LocalSystemSimtime})
	require.NoError(t, err)
	var typeCode int
	require.NoError(t, json.Unmarshal(raw, &typeCode))
	assert.Equal(t, int(clock.TypeDiscrete), typeCode)
}

// recordingSlave records received sync events.
type recordingSlave struct {
	events []int
	times  []simnode.Timestamp
}

func (s *recordingSlave) SyncTimeEvent(eventID int, newTime, arg simnode.Timestamp) error {
	s.events = append(s.events, eventID)
	s.times = append(s.times, newTime)
	return nil
}

func TestClockSyncMasterDrivesRemoteSlave(t *testing.T) {
	// Slave side: a server hosting the sync slave service.
	slave := &recordingSlave{}
	slaveServer, err := servicebus.NewServer("slave", "http://127.0.0.1:0", "sys", simnode.NopLogger{})
	require.NoError(t, err)
	defer func() { _ = slaveServer.Stop() }()
	require.NoError(t, slaveServer.RegisterService(NewClockSyncSlaveService(slave)))

	slaveRequester, err := servicebus.NewRequester(slaveServer.URL())
	require.NoError(t, err)

	// Master side resolving the slave's requester by name.
	master := clock.NewMainEventSink(simnode.NopLogger{}, time.Second,
		func(name string) clock.SyncClient {
			if name != "slave" {
				return nil
			}
			return NewClockSyncClient(slaveRequester)
		})
	defer master.Close()

	require.NoError(t, master.RegisterClient("slave", clock.MaskAll))

	master.TimeUpdateBegin(0, 100)
	master.TimeUpdating(100, nil)
	master.TimeUpdateEnd(100)

	assert.Equal(t, []int{
		clock.EventIDTimeUpdateBefore, clock.EventIDTimeUpdating, clock.EventIDTimeUpdateAfter,
	}, slave.events)
	assert.Equal(t, []simnode.Timestamp{100, 100, 100}, slave.times)
}

func TestClockSyncMasterServiceRegistration(t *testing.T) {
	clocks, err := clock.NewService(simnode.NopLogger{}, simnode.NewProperties(), clock.DefaultConfig())
	require.NoError(t, err)

	master := clock.NewMainEventSink(simnode.NopLogger{}, time.Second,
		func(string) clock.SyncClient { return nil })
	defer master.Close()

	server, requester := newBusPair(t)
	require.NoError(t, server.RegisterService(NewClockSyncMasterService(master, clocks)))

	// Registering an unresolvable slave reports NotFound over the wire.
	result := callResult(t, requester, ServiceClockSyncMaster, "registerSyncSlave",
		registerSyncSlaveParams{EventMask: clock.MaskAll, ClientName: "ghost"})
	assert.Equal(t, simnode.ResultNotFound, result.Result)

	raw, err := requester.Call(ServiceClockSyncMaster, "getMasterTime", nil)
	require.NoError(t, err)
	var masterTime string
	require.NoError(t, json.Unmarshal(raw, &masterTime))
	assert.Equal(t, "0", masterTime)
}
