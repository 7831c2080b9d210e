package event

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	first, unsubFirst := bus.Subscribe()
	second, unsubSecond := bus.Subscribe()
	defer unsubSecond()

	bus.Publish(Event{Type: TypeLoginSucceeded, ActorName: "bob"})

	for _, ch := range []<-chan Event{first, second} {
		got := <-ch
		assert.Equal(t, TypeLoginSucceeded, got.Type)
		assert.Equal(t, "bob", got.ActorName)
		assert.NotEmpty(t, got.ID)
		assert.NotEmpty(t, got.Timestamp)
	}

	unsubFirst()
	_, open := <-first
	assert.False(t, open)

	unsubFirst()
	bus.Publish(Event{Type: TypeLoginFailed})
	got := <-second
	assert.Equal(t, TypeLoginFailed, got.Type)
}

func TestBusPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ch, unsub := bus.Subscribe()
	defer unsub()

	for range subscriberBuffer + 10 {
		bus.Publish(Event{Type: TypeOrderPlaced})
	}
	require.Len(t, ch, subscriberBuffer)
}

func TestTypeFailed(t *testing.T) {
	t.Parallel()

	assert.True(t, TypeLoginFailed.Failed())
	assert.True(t, TypeGoogleLoginFailed.Failed())
	assert.False(t, TypeLoginSucceeded.Failed())
}
