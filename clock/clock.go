// Package clock hosts the participant's time sources: named clocks, the
// event-sink registry that fans time events out to subscribers, the
// clock service owning the main-clock selection and the clock master
// that drives remote time clients over RPC.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/simnode"
)

// Type classifies a clock as continuous or discrete.
type Type int

const (
	// TypeContinuous clocks report a steadily advancing time on demand.
	TypeContinuous Type = iota
	// TypeDiscrete clocks advance in steps and push time events.
	TypeDiscrete
)

// Names of the two native clocks. They are registered by the clock
// service and cannot be unregistered.
const (
	LocalSystemRealtime = "local_system_realtime"
	LocalSystemSimtime  = "local_system_simtime"
)

// EventSink receives time events from a clock. A discrete clock issues
// TimeUpdateBegin, TimeUpdating and TimeUpdateEnd per tick from its own
// goroutine; both native clocks issue TimeResetBegin and TimeResetEnd on
// Start. On Reset only the realtime clock issues them; the simulation
// clock's Reset changes its time without notifying any sink.
type EventSink interface {
	TimeUpdateBegin(oldTime, newTime simnode.Timestamp)
	TimeUpdating(newTime simnode.Timestamp, nextTick *simnode.Timestamp)
	TimeUpdateEnd(newTime simnode.Timestamp)
	TimeResetBegin(oldTime, newTime simnode.Timestamp)
	TimeResetEnd(newTime simnode.Timestamp)
}

// Clock is a named source of simulation time. Lifetime: created by user
// code, registered under a unique name, unregistered only while the
// participant is not running.
type Clock interface {
	// Name returns the clock's unique registration name.
	Name() string

	// Type reports whether the clock is continuous or discrete.
	Type() Type

	// Time returns the clock's current time.
	Time() simnode.Timestamp

	// Reset rebases the clock to newTime.
	Reset(newTime simnode.Timestamp)

	// Start begins time progression, pushing events into sink. The sink
	// reference stays valid until Stop returns.
	Start(sink EventSink) error

	// Stop halts time progression and joins the clock's goroutine.
	Stop() error
}

// SinkRef is a weakly held back-reference to an event sink. The
// registering caller owns the strong reference; Release expires the
// handle, after which dispatch observes the sink as gone and skips it.
type SinkRef struct {
	mu   sync.Mutex
	sink EventSink
}

// NewSinkRef wraps sink in a releasable handle.
func NewSinkRef(sink EventSink) *SinkRef {
	return &SinkRef{sink: sink}
}

// Get returns the referenced sink, or nil when the handle has expired.
func (r *SinkRef) Get() EventSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink
}

// Release expires the handle. Dispatches in flight may still observe the
// previous value; later dispatches log and skip the sink.
func (r *SinkRef) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = nil
}

// realtimeClock is a continuous clock backed by the OS monotonic
// clock.
type realtimeClock struct {
	name    string
	mu      sync.Mutex
	base    time.Time
	offset  simnode.Timestamp
	sink    EventSink
	started bool
}

// NewRealtimeClock creates the native local_system_realtime clock.
func NewRealtimeClock() Clock {
	return NewRealtimeClockNamed(LocalSystemRealtime)
}

// NewRealtimeClockNamed creates a continuous wall-clock-backed clock
// registerable under a user-chosen name.
func NewRealtimeClockNamed(name string) Clock {
	return &realtimeClock{name: name, base: time.Now()}
}

func (c *realtimeClock) Name() string { return c.name }
func (c *realtimeClock) Type() Type   { return TypeContinuous }

func (c *realtimeClock) Time() simnode.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset + simnode.Timestamp(time.Since(c.base))
}

func (c *realtimeClock) Reset(newTime simnode.Timestamp) {
	c.mu.Lock()
	old := c.offset + simnode.Timestamp(time.Since(c.base))
	c.base = time.Now()
	c.offset = newTime
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink.TimeResetBegin(old, newTime)
		sink.TimeResetEnd(newTime)
	}
}

func (c *realtimeClock) Start(sink EventSink) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("clock %s already started: %w", c.Name(), simnode.ErrInvalidState)
	}
	old := c.offset + simnode.Timestamp(time.Since(c.base))
	c.base = time.Now()
	c.offset = 0
	c.sink = sink
	c.started = true
	c.mu.Unlock()

	if sink != nil {
		sink.TimeResetBegin(old, 0)
		sink.TimeResetEnd(0)
	}
	return nil
}

func (c *realtimeClock) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = nil
	c.started = false
	return nil
}
