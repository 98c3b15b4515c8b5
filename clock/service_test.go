package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/simnode"
)

func newTestService(t *testing.T) (*Service, *simnode.Properties) {
	t.Helper()
	props := simnode.NewProperties()
	service, err := NewService(simnode.NopLogger{}, props, DefaultConfig())
	require.NoError(t, err)
	return service, props
}

func TestServiceNativeClocksRegistered(t *testing.T) {
	service, _ := newTestService(t)

	names := service.Registry().Names()
	assert.Equal(t, []string{LocalSystemRealtime, LocalSystemSimtime}, names)
}

func TestServiceGetTimeBeforeStartIsZero(t *testing.T) {
	service, _ := newTestService(t)
	assert.Equal(t, simnode.Timestamp(0), service.GetTime())

	require.NoError(t, service.Tense())
	require.NoError(t, service.Start())
	defer func() { _ = service.Stop() }()

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, service.GetTime(), simnode.Timestamp(0))
}

func TestServiceSelectMainClock(t *testing.T) {
	service, props := newTestService(t)

	require.NoError(t, service.SelectMainClock(LocalSystemSimtime))
	assert.Equal(t, LocalSystemSimtime, props.GetString(PropMainClock, ""))

	// Selecting twice is a no-op beyond the configuration write.
	require.NoError(t, service.SelectMainClock(LocalSystemSimtime))
	assert.Equal(t, LocalSystemSimtime, props.GetString(PropMainClock, ""))
}

func TestServiceSelectUnknownClockResetsToDefault(t *testing.T) {
	service, _ := newTestService(t)

	err := service.SelectMainClock("no_such_clock")
	assert.ErrorIs(t, err, simnode.ErrNotFound)

	// The selection silently fell back to the default real-time clock.
	require.NoError(t, service.Tense())
	require.NoError(t, service.Start())
	defer func() { _ = service.Stop() }()
	assert.Equal(t, LocalSystemRealtime, service.MainClockName())
}

func TestServiceSelectMainClockForbiddenWhileStarted(t *testing.T) {
	service, _ := newTestService(t)

	require.NoError(t, service.Tense())
	require.NoError(t, service.Start())
	defer func() { _ = service.Stop() }()

	assert.ErrorIs(t, service.SelectMainClock(LocalSystemSimtime), simnode.ErrInvalidState)
}

func TestServiceTenseValidatesSimClockConfig(t *testing.T) {
	props := simnode.NewProperties()
	cfg := DefaultConfig()
	cfg.MainClock = LocalSystemSimtime
	service, err := NewService(simnode.NopLogger{}, props, cfg)
	require.NoError(t, err)

	// Invalid step size fails tense.
	require.NoError(t, props.Set(PropSimTimeStepSize, int64(1)))
	assert.ErrorIs(t, service.Tense(), simnode.ErrInvalidArg)

	// Valid values tense fine.
	require.NoError(t, props.Set(PropSimTimeStepSize, int64(time.Millisecond)))
	require.NoError(t, service.Tense())
}

func TestServiceTenseRejectsNegativeTimeFactor(t *testing.T) {
	props := simnode.NewProperties()
	cfg := DefaultConfig()
	cfg.MainClock = LocalSystemSimtime
	service, err := NewService(simnode.NopLogger{}, props, cfg)
	require.NoError(t, err)

	require.NoError(t, props.Set(PropSimTimeTimeFactor, -1.0))
	assert.ErrorIs(t, service.Tense(), simnode.ErrInvalidArg)
}

func TestServiceUnregisterClockRules(t *testing.T) {
	service, _ := newTestService(t)

	// Native clocks cannot be unregistered.
	assert.ErrorIs(t, service.UnregisterClock(LocalSystemRealtime), simnode.ErrInvalidArg)

	userClock := NewRealtimeClockNamed("user_clock")
	require.NoError(t, service.RegisterClock(userClock))
	assert.ErrorIs(t, service.RegisterClock(userClock), simnode.ErrAlreadyRegistered)

	require.NoError(t, service.Tense())
	require.NoError(t, service.Start())
	assert.ErrorIs(t, service.UnregisterClock("user_clock"), simnode.ErrInvalidState)

	require.NoError(t, service.Stop())
	require.NoError(t, service.UnregisterClock("user_clock"))
}

func TestServiceEventSinkRegistration(t *testing.T) {
	service, _ := newTestService(t)

	sink := &recordingSink{}
	ref := NewSinkRef(sink)
	require.NoError(t, service.RegisterEventSink(ref))
	assert.ErrorIs(t, service.RegisterEventSink(NewSinkRef(sink)), simnode.ErrAlreadyRegistered)

	expired := NewSinkRef(&recordingSink{})
	expired.Release()
	assert.ErrorIs(t, service.RegisterEventSink(expired), simnode.ErrInvalidArg)

	require.NoError(t, service.UnregisterEventSink(ref))
}

func TestLegacyClockAdapterDropsNextTick(t *testing.T) {
	legacy := &legacyTestClock{name: "legacy"}
	registry := NewRegistry(simnode.NopLogger{})
	require.NoError(t, registry.RegisterLegacy(legacy))

	adapter, ok := registry.Get("legacy")
	require.True(t, ok)
	assert.Equal(t, "legacy", adapter.Name())

	sink := &recordingSink{}
	require.NoError(t, adapter.Start(sink))
	legacy.sink.TimeUpdating(42)
	assert.Equal(t, []string{"updating"}, sink.recorded())
}

// legacyTestClock implements the previous clock interface version.
type legacyTestClock struct {
	name string
	sink LegacyEventSink
}

func (c *legacyTestClock) Name() string               { return c.name }
func (c *legacyTestClock) Type() Type                 { return TypeContinuous }
func (c *legacyTestClock) Time() simnode.Timestamp    { return 0 }
func (c *legacyTestClock) Reset(simnode.Timestamp)    {}
func (c *legacyTestClock) Stop() error                { return nil }
func (c *legacyTestClock) Start(sink LegacyEventSink) error {
	c.sink = sink
	return nil
}
