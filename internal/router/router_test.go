package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aboyz1/HobbyVerse-sub001/internal/connection"
	"github.com/aboyz1/HobbyVerse-sub001/internal/event"
)

func frame(t *testing.T, name string, payload any) connection.RawFrame {
	t.Helper()

	data, err := event.Marshal(name, payload)
	require.NoError(t, err)
	return connection.RawFrame{Data: data, ReceivedAt: time.Now()}
}

// runRouter starts the dispatch loop and returns the input channel and
// a stop func that waits for the loop to drain.
func runRouter(t *testing.T) (*Router, chan connection.RawFrame, func()) {
	t.Helper()

	input := make(chan connection.RawFrame, 16)
	r := New(input, 16, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	return r, input, func() {
		cancel()
		<-done
	}
}

// settle waits until the router has processed n frames.
func settle(t *testing.T, r *Router, n int64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := r.Stats()
		if s.FramesReceived+s.Dispatched >= n {
			// One more beat so the last handler finishes.
			time.Sleep(10 * time.Millisecond)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("router did not settle")
}

func TestRouter_DispatchToTypedHandler(t *testing.T) {
	r, input, stop := runRouter(t)
	defer stop()

	got := make(chan event.TypingSignal, 1)
	r.On(event.UserTypingName, func(data json.RawMessage) {
		var sig event.TypingSignal
		require.NoError(t, json.Unmarshal(data, &sig))
		got <- sig
	})

	input <- frame(t, event.UserTypingName, event.TypingSignal{UserID: "u1", RoomID: "room-1"})

	select {
	case sig := <-got:
		assert.Equal(t, "u1", sig.UserID)
		assert.Equal(t, "room-1", sig.RoomID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestRouter_HandlersInvokedInRegistrationOrder(t *testing.T) {
	r, input, stop := runRouter(t)
	defer stop()

	var order []int
	done := make(chan struct{})
	r.On(event.NewMessageName, func(json.RawMessage) { order = append(order, 1) })
	r.On(event.NewMessageName, func(json.RawMessage) { order = append(order, 2) })
	r.On(event.NewMessageName, func(json.RawMessage) {
		order = append(order, 3)
		close(done)
	})

	input <- frame(t, event.NewMessageName, event.NewMessage{ID: "m1"})

	select {
	case <-done:
		assert.Equal(t, []int{1, 2, 3}, order)
	case <-time.After(2 * time.Second):
		t.Fatal("handlers not invoked")
	}
}

func TestRouter_SubscriptionCancel(t *testing.T) {
	r, input, stop := runRouter(t)
	defer stop()

	calls := make(chan string, 4)
	sub := r.On(event.NewMessageName, func(json.RawMessage) { calls <- "a" })
	r.On(event.NewMessageName, func(json.RawMessage) { calls <- "b" })

	sub.Cancel()
	sub.Cancel() // idempotent

	input <- frame(t, event.NewMessageName, event.NewMessage{ID: "m1"})

	select {
	case got := <-calls:
		assert.Equal(t, "b", got, "canceled handler must not fire")
	case <-time.After(2 * time.Second):
		t.Fatal("remaining handler not invoked")
	}
	select {
	case got := <-calls:
		t.Fatalf("unexpected extra call %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouter_UnknownEventDropped(t *testing.T) {
	r, input, stop := runRouter(t)
	defer stop()

	input <- frame(t, "mystery_event", map[string]string{"x": "y"})
	settle(t, r, 1)

	s := r.Stats()
	assert.Equal(t, int64(1), s.UnknownEvents)
	assert.Equal(t, int64(0), s.Dispatched)
}

func TestRouter_MalformedFrameDropped(t *testing.T) {
	r, input, stop := runRouter(t)
	defer stop()

	input <- connection.RawFrame{Data: []byte(`{"no_event_field":1}`), ReceivedAt: time.Now()}
	input <- connection.RawFrame{Data: []byte(`not json at all`), ReceivedAt: time.Now()}
	settle(t, r, 2)

	s := r.Stats()
	assert.Equal(t, int64(2), s.DecodeErrors)
}

func TestRouter_PublishReachesHandlers(t *testing.T) {
	r, _, stop := runRouter(t)
	defer stop()

	got := make(chan event.SendFailure, 1)
	r.On(event.SendFailedName, func(data json.RawMessage) {
		var f event.SendFailure
		require.NoError(t, json.Unmarshal(data, &f))
		got <- f
	})

	r.Publish(event.SendFailedName, event.SendFailure{
		RoomID:        "room-1",
		CorrelationID: "c1",
		Reason:        "timeout",
	})

	select {
	case f := <-got:
		assert.Equal(t, "c1", f.CorrelationID)
		assert.Equal(t, "timeout", f.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("published event not dispatched")
	}
}
