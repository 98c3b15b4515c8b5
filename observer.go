// Observer pattern interfaces for event-driven notification of runtime
// milestones. Events use the CloudEvents specification for standardized
// format and interoperability with external tooling.
package simnode

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of runtime events. Observers register with a
// Subject and should handle events quickly to avoid blocking others.
type Observer interface {
	// OnEvent is called when an event the observer subscribed to occurs.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject maintains a list of observers and notifies them of events.
type Subject interface {
	// RegisterObserver adds an observer, optionally filtered by event
	// types. An empty filter receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to all registered observers.
	// Observer errors are logged, never surfaced to the emitter.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
}

// NewCloudEvent builds a CloudEvent with the runtime's source convention.
func NewCloudEvent(eventType, source string, data map[string]interface{}) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(fmt.Sprintf("%s-%d", eventType, time.Now().UnixNano()))
	event.SetType(eventType)
	event.SetSource(source)
	event.SetTime(time.Now())
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

type observerEntry struct {
	observer   Observer
	eventTypes map[string]struct{}
}

// ObserverRegistry is the default Subject implementation. It is safe for
// concurrent use; notification is synchronous in registration order.
type ObserverRegistry struct {
	mu        sync.RWMutex
	observers []observerEntry
	logger    Logger
}

// NewObserverRegistry creates an empty registry logging through logger.
func NewObserverRegistry(logger Logger) *ObserverRegistry {
	if logger == nil {
		logger = NopLogger{}
	}
	return &ObserverRegistry{logger: logger}
}

func (r *ObserverRegistry) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return fmt.Errorf("register observer: %w", ErrInvalidArg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.observers {
		if entry.observer.ObserverID() == observer.ObserverID() {
			return fmt.Errorf("observer %q: %w", observer.ObserverID(), ErrAlreadyRegistered)
		}
	}
	var filter map[string]struct{}
	if len(eventTypes) > 0 {
		filter = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			filter[t] = struct{}{}
		}
	}
	r.observers = append(r.observers, observerEntry{observer: observer, eventTypes: filter})
	return nil
}

func (r *ObserverRegistry) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return fmt.Errorf("unregister observer: %w", ErrInvalidArg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, entry := range r.observers {
		if entry.observer.ObserverID() == observer.ObserverID() {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *ObserverRegistry) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	r.mu.RLock()
	snapshot := make([]observerEntry, len(r.observers))
	copy(snapshot, r.observers)
	r.mu.RUnlock()

	for _, entry := range snapshot {
		if entry.eventTypes != nil {
			if _, ok := entry.eventTypes[event.Type()]; !ok {
				continue
			}
		}
		if err := entry.observer.OnEvent(ctx, event); err != nil {
			r.logger.Error("observer failed to handle event",
				"observer", entry.observer.ObserverID(), "type", event.Type(), "error", err)
		}
	}
	return nil
}

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
