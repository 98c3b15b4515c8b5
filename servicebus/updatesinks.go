package servicebus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/simnode"
)

// UpdateEventSink receives discovery update events. Callbacks run on
// the registry's pool threads, decoupled from the discovery thread.
type UpdateEventSink interface {
	OnServiceUpdate(event ServiceUpdateEvent)
}

// updateSinkProxy wraps a registered sink. A deregistered proxy stays
// referenced by in-flight tasks but no longer forwards events.
type updateSinkProxy struct {
	id     string
	sink   UpdateEventSink
	active atomic.Bool
}

func (p *updateSinkProxy) run(event ServiceUpdateEvent) {
	if p.active.Load() {
		p.sink.OnServiceUpdate(event)
	}
}

// UpdateSinkRegistry fans discovery events out to registered sinks via
// a small bounded thread pool.
type UpdateSinkRegistry struct {
	mu      sync.Mutex
	proxies []*updateSinkProxy

	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// NewUpdateSinkRegistry creates a registry with workers pool threads.
func NewUpdateSinkRegistry(workers int) *UpdateSinkRegistry {
	if workers < 1 {
		workers = defaultUpdateSinkWorkers
	}
	r := &UpdateSinkRegistry{tasks: make(chan func(), 64)}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for task := range r.tasks {
				task()
			}
		}()
	}
	return r
}

// Register adds an update sink. The same sink instance cannot be
// registered twice.
func (r *UpdateSinkRegistry) Register(sink UpdateEventSink) error {
	if sink == nil {
		return fmt.Errorf("registering update event sink: %w", simnode.ErrInvalidArg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, proxy := range r.proxies {
		if proxy.sink == sink {
			return fmt.Errorf("update event sink: %w", simnode.ErrAlreadyRegistered)
		}
	}
	proxy := &updateSinkProxy{id: uuid.NewString(), sink: sink}
	proxy.active.Store(true)
	r.proxies = append(r.proxies, proxy)
	return nil
}

// Deregister marks the sink's proxy inactive and removes it. Tasks in
// flight targeting the proxy become no-ops.
func (r *UpdateSinkRegistry) Deregister(sink UpdateEventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, proxy := range r.proxies {
		if proxy.sink == sink {
			proxy.active.Store(false)
			r.proxies = append(r.proxies[:i], r.proxies[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("update event sink: %w", simnode.ErrNotFound)
}

// Dispatch submits the event to every registered sink on the pool.
func (r *UpdateSinkRegistry) Dispatch(event ServiceUpdateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, proxy := range r.proxies {
		p := proxy
		r.tasks <- func() { p.run(event) }
	}
}

// Close deactivates all proxies and stops the pool; no sink is called
// after Close returns.
func (r *UpdateSinkRegistry) Close() {
	r.mu.Lock()
	for _, proxy := range r.proxies {
		proxy.active.Store(false)
	}
	r.proxies = nil
	r.mu.Unlock()

	r.once.Do(func() { close(r.tasks) })
	r.wg.Wait()
}
