package simnode

import (
	"context"
	"errors"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverRegistryNotifiesInRegistrationOrder(t *testing.T) {
	registry := NewObserverRegistry(NopLogger{})

	var order []string
	for _, id := range []string{"first", "second"} {
		observerID := id
		require.NoError(t, registry.RegisterObserver(
			NewFunctionalObserver(observerID, func(context.Context, cloudevents.Event) error {
				order = append(order, observerID)
				return nil
			})))
	}

	event := NewCloudEvent(EventTypeParticipantLoaded, "driver@test", nil)
	require.NoError(t, registry.NotifyObservers(context.Background(), event))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestObserverRegistryFiltersByEventType(t *testing.T) {
	registry := NewObserverRegistry(NopLogger{})

	var seen []string
	require.NoError(t, registry.RegisterObserver(
		NewFunctionalObserver("filtered", func(_ context.Context, e cloudevents.Event) error {
			seen = append(seen, e.Type())
			return nil
		}), EventTypeParticipantRunning))

	_ = registry.NotifyObservers(context.Background(),
		NewCloudEvent(EventTypeParticipantLoaded, "driver@test", nil))
	_ = registry.NotifyObservers(context.Background(),
		NewCloudEvent(EventTypeParticipantRunning, "driver@test", nil))

	assert.Equal(t, []string{EventTypeParticipantRunning}, seen)
}

func TestObserverRegistryRejectsDuplicateAndToleratesErrors(t *testing.T) {
	registry := NewObserverRegistry(NopLogger{})

	failing := NewFunctionalObserver("same", func(context.Context, cloudevents.Event) error {
		return errors.New("handler failed")
	})
	require.NoError(t, registry.RegisterObserver(failing))
	assert.ErrorIs(t, registry.RegisterObserver(failing), ErrAlreadyRegistered)

	// Observer errors are swallowed, never surfaced to the emitter.
	err := registry.NotifyObservers(context.Background(),
		NewCloudEvent(EventTypeParticipantLoaded, "driver@test", nil))
	assert.NoError(t, err)

	// Unregister is idempotent.
	require.NoError(t, registry.UnregisterObserver(failing))
	require.NoError(t, registry.UnregisterObserver(failing))
}
