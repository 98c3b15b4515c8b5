package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/simnode"
)

// AsFastAsPossible is the time-factor value that disables wall-clock
// pacing of the simulation clock.
const AsFastAsPossible = 0.0

// Bounds for the simulation clock step size.
const (
	SimStepSizeMin = simnode.Timestamp(time.Microsecond)
	SimStepSizeMax = simnode.Timestamp(time.Hour)
)

// simClock is the native discrete clock. It advances in fixed steps of
// stepSize nanoseconds; between steps it sleeps stepSize/timeFactor of
// wall time, or not at all when the factor is AsFastAsPossible. Each
// step issues TimeUpdateBegin, TimeUpdating (carrying the next tick) and
// TimeUpdateEnd from the clock's own goroutine.
type simClock struct {
	mu         sync.Mutex
	current    simnode.Timestamp
	stepSize   simnode.Timestamp
	timeFactor float64
	started    bool
	stop       chan struct{}
	done       chan struct{}
}

// NewSimClock creates the native local_system_simtime clock with the
// given step size and time factor.
func NewSimClock(stepSize simnode.Timestamp, timeFactor float64) Clock {
	return &simClock{stepSize: stepSize, timeFactor: timeFactor}
}

func (c *simClock) Name() string { return LocalSystemSimtime }
func (c *simClock) Type() Type   { return TypeDiscrete }

func (c *simClock) Time() simnode.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *simClock) Reset(newTime simnode.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = newTime
}

// Configure updates step size and time factor. Rejected while started.
func (c *simClock) Configure(stepSize simnode.Timestamp, timeFactor float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("cannot configure running simulation clock: %w", simnode.ErrInvalidState)
	}
	if stepSize < SimStepSizeMin || stepSize > SimStepSizeMax {
		return fmt.Errorf("step size %d out of bounds [%d, %d]: %w",
			stepSize, SimStepSizeMin, SimStepSizeMax, simnode.ErrInvalidArg)
	}
	if timeFactor < 0 {
		return fmt.Errorf("time factor %f must not be negative: %w", timeFactor, simnode.ErrInvalidArg)
	}
	c.stepSize = stepSize
	c.timeFactor = timeFactor
	return nil
}

func (c *simClock) Start(sink EventSink) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("clock %s already started: %w", c.Name(), simnode.ErrInvalidState)
	}
	old := c.current
	c.current = 0
	c.started = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stepSize := c.stepSize
	timeFactor := c.timeFactor
	stop, done := c.stop, c.done
	c.mu.Unlock()

	if sink != nil {
		sink.TimeResetBegin(old, 0)
		sink.TimeResetEnd(0)
	}

	go c.run(sink, stepSize, timeFactor, stop, done)
	return nil
}

func (c *simClock) run(sink EventSink, stepSize simnode.Timestamp, timeFactor float64, stop, done chan struct{}) {
	defer close(done)

	var wallStep time.Duration
	if timeFactor != AsFastAsPossible {
		wallStep = time.Duration(float64(stepSize) / timeFactor)
	}

	for {
		if wallStep > 0 {
			select {
			case <-stop:
				return
			case <-time.After(wallStep):
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}

		c.mu.Lock()
		old := c.current
		next := old + stepSize
		c.current = next
		c.mu.Unlock()

		if sink != nil {
			nextTick := next + stepSize
			sink.TimeUpdateBegin(old, next)
			sink.TimeUpdating(next, &nextTick)
			sink.TimeUpdateEnd(next)
		}
	}
}

func (c *simClock) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	<-done
	return nil
}
