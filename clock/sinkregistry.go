package clock

import (
	"fmt"
	"sync"

	"github.com/GoCodeAlone/simnode"
)

// sinkWorker owns a single goroutine executing the dispatch tasks of one
// registered sink in submission order.
type sinkWorker struct {
	ref *SinkRef

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newSinkWorker(ref *SinkRef) *sinkWorker {
	w := &sinkWorker{ref: ref, done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

func (w *sinkWorker) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.closed {
			w.mu.Unlock()
			return
		}
		task := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		task()
	}
}

// dispatch enqueues a task, reporting false when the worker already
// stopped and the task will never run.
func (w *sinkWorker) dispatch(task func()) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, task)
	w.mu.Unlock()
	w.cond.Signal()
	return true
}

// stop drains the pending queue and joins the worker goroutine.
func (w *sinkWorker) stop() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Signal()
	<-w.done
}

// EventSinkRegistry routes the five time-event callbacks to all
// registered sinks in parallel and joins on completion before returning
// to the caller (the current clock). Each sink has a dedicated worker,
// so a single sink never observes concurrent callbacks and sees events
// in the caller's order.
type EventSinkRegistry struct {
	mu      sync.Mutex
	workers []*sinkWorker
	logger  simnode.Logger
}

// NewEventSinkRegistry creates an empty registry.
func NewEventSinkRegistry(logger simnode.Logger) *EventSinkRegistry {
	if logger == nil {
		logger = simnode.NopLogger{}
	}
	return &EventSinkRegistry{logger: logger}
}

// Register adds a sink reference and creates its worker. An expired
// reference is a parameter error; a duplicate (by identity of the strong
// reference at registration time) is rejected.
func (r *EventSinkRegistry) Register(ref *SinkRef) error {
	if ref == nil {
		return fmt.Errorf("registration of event sink failed: %w", simnode.ErrInvalidArg)
	}
	sink := ref.Get()
	if sink == nil {
		r.logger.Warn("registration of invalid event sink at the clock event sink registry failed")
		return fmt.Errorf("registration of expired event sink: %w", simnode.ErrInvalidArg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.workers {
		if w.ref.Get() == sink {
			r.logger.Warn("registration of event sink failed, event sink exists")
			return fmt.Errorf("event sink: %w", simnode.ErrAlreadyRegistered)
		}
	}
	r.workers = append(r.workers, newSinkWorker(ref))
	r.logger.Debug("registered event sink at the clock event sink registry")
	return nil
}

// Unregister removes a sink by identity. The sink's worker is drained
// and destroyed before the call returns. Never call this from inside a
// sink callback; the worker join would deadlock.
func (r *EventSinkRegistry) Unregister(ref *SinkRef) error {
	if ref == nil {
		return fmt.Errorf("deregistration of event sink failed: %w", simnode.ErrInvalidArg)
	}
	sink := ref.Get()
	if sink == nil {
		r.logger.Warn("deregistration of invalid event sink from the clock event sink registry failed")
		return fmt.Errorf("deregistration of expired event sink: %w", simnode.ErrInvalidArg)
	}

	r.mu.Lock()
	var found *sinkWorker
	for i, w := range r.workers {
		if w.ref.Get() == sink {
			found = w
			r.workers = append(r.workers[:i], r.workers[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if found == nil {
		r.logger.Warn("deregistration of event sink failed, event sink not found in the registry")
		return fmt.Errorf("event sink: %w", simnode.ErrNotFound)
	}

	found.stop()
	r.logger.Debug("unregistered event sink from the clock event sink registry")
	return nil
}

// triggerEvent snapshots the worker list under the mutex, submits one
// task per worker and waits for all of them. Expired references count
// down without calling anything; they are only logged, never erased here
// (erasure during dispatch would race with the snapshot).
func (r *EventSinkRegistry) triggerEvent(eventName string, fn func(EventSink)) {
	r.mu.Lock()
	snapshot := make([]*sinkWorker, len(r.workers))
	copy(snapshot, r.workers)
	r.mu.Unlock()

	var latch sync.WaitGroup
	latch.Add(len(snapshot))
	for _, w := range snapshot {
		worker := w
		enqueued := worker.dispatch(func() {
			defer latch.Done()
			if sink := worker.ref.Get(); sink != nil {
				fn(sink)
			} else {
				r.logger.Debug("expired event sink addressed during event", "event", eventName)
			}
		})
		if !enqueued {
			// The sink was unregistered between snapshot and submit.
			latch.Done()
		}
	}
	latch.Wait()
}

func (r *EventSinkRegistry) TimeUpdateBegin(oldTime, newTime simnode.Timestamp) {
	r.logger.Debug("distributing 'timeUpdateBegin' events", "old_time", oldTime, "new_time", newTime)
	r.triggerEvent("timeUpdateBegin", func(sink EventSink) {
		sink.TimeUpdateBegin(oldTime, newTime)
	})
}

func (r *EventSinkRegistry) TimeUpdating(newTime simnode.Timestamp, nextTick *simnode.Timestamp) {
	r.logger.Debug("distributing 'timeUpdating' events", "new_time", newTime)
	r.triggerEvent("timeUpdating", func(sink EventSink) {
		sink.TimeUpdating(newTime, nextTick)
	})
}

func (r *EventSinkRegistry) TimeUpdateEnd(newTime simnode.Timestamp) {
	r.logger.Debug("distributing 'timeUpdateEnd' events", "new_time", newTime)
	r.triggerEvent("timeUpdateEnd", func(sink EventSink) {
		sink.TimeUpdateEnd(newTime)
	})
}

func (r *EventSinkRegistry) TimeResetBegin(oldTime, newTime simnode.Timestamp) {
	r.logger.Debug("distributing 'timeResetBegin' events", "old_time", oldTime, "new_time", newTime)
	r.triggerEvent("timeResetBegin", func(sink EventSink) {
		sink.TimeResetBegin(oldTime, newTime)
	})
}

func (r *EventSinkRegistry) TimeResetEnd(newTime simnode.Timestamp) {
	r.logger.Debug("distributing 'timeResetEnd' events", "new_time", newTime)
	r.triggerEvent("timeResetEnd", func(sink EventSink) {
		sink.TimeResetEnd(newTime)
	})
}
