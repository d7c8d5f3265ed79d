package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/aboyz1/HobbyVerse-sub001/internal/connection"
	"github.com/aboyz1/HobbyVerse-sub001/internal/event"
)

// Handler receives the raw data payload of a dispatched event. Handlers
// decode into their own typed payload struct at the edge.
type Handler func(data json.RawMessage)

// Stats contains runtime statistics.
type Stats struct {
	FramesReceived int64
	Dispatched     int64
	DecodeErrors   int64
	UnknownEvents  int64
}

// Router demultiplexes inbound named events to zero or more handlers.
type Router struct {
	logger *slog.Logger

	input <-chan connection.RawFrame
	local chan event.Envelope

	mu       sync.Mutex
	handlers map[string][]*Subscription

	statsMu sync.Mutex
	stats   Stats
}

// Subscription is a scoped registration handle. Cancel removes the
// handler; dropping the handle without Cancel leaks the registration,
// so UI scopes hold it for their lifetime.
type Subscription struct {
	r    *Router
	name string
	fn   Handler

	once sync.Once
}

// Cancel removes the handler from the router.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.r.remove(s)
	})
}

// New creates a router draining the given inbound frame stream.
func New(input <-chan connection.RawFrame, localBuffer int, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		logger:   logger,
		input:    input,
		local:    make(chan event.Envelope, localBuffer),
		handlers: make(map[string][]*Subscription),
	}
}

// On registers a handler for an event name. Multiple handlers per name
// are permitted and invoked in registration order.
func (r *Router) On(name string, fn Handler) *Subscription {
	sub := &Subscription{r: r, name: name, fn: fn}

	r.mu.Lock()
	r.handlers[name] = append(r.handlers[name], sub)
	r.mu.Unlock()

	return sub
}

// Publish enqueues a locally-originated event onto the dispatch loop.
// It is how components surface failures (send_failed and friends)
// through the same mechanism as server pushes; the sequential-dispatch
// guarantee holds because the loop is the only caller of handlers.
func (r *Router) Publish(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("publish marshal failed", "event", name, "error", err)
		return
	}

	select {
	case r.local <- event.Envelope{Event: name, Data: data}:
	default:
		r.logger.Warn("local event buffer full, dropping", "event", name)
	}
}

// Run dispatches until ctx is canceled or the input stream closes.
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("event router started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("event router stopped")
			return nil

		case env := <-r.local:
			r.dispatch(env.Event, env.Data)

		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("inbound frame stream closed")
				return nil
			}
			r.route(raw)
		}
	}
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// route peeks the event name before paying for a full decode, then
// dispatches the data payload.
func (r *Router) route(raw connection.RawFrame) {
	r.count(func(s *Stats) { s.FramesReceived++ })

	name := gjson.GetBytes(raw.Data, "event")
	if !name.Exists() || name.Type != gjson.String {
		r.logger.Warn("frame without event name, dropping", "frame", string(raw.Data))
		r.count(func(s *Stats) { s.DecodeErrors++ })
		return
	}

	data := gjson.GetBytes(raw.Data, "data")
	r.dispatch(name.String(), json.RawMessage(data.Raw))
}

// dispatch invokes every handler registered for the name, in
// registration order.
func (r *Router) dispatch(name string, data json.RawMessage) {
	r.mu.Lock()
	subs := make([]*Subscription, len(r.handlers[name]))
	copy(subs, r.handlers[name])
	r.mu.Unlock()

	if len(subs) == 0 {
		if !event.Known(name) {
			r.logger.Debug("unknown event, dropping", "event", name)
			r.count(func(s *Stats) { s.UnknownEvents++ })
		}
		return
	}

	for _, sub := range subs {
		sub.fn(data)
	}
	r.count(func(s *Stats) { s.Dispatched++ })
}

func (r *Router) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.handlers[sub.name]
	for i, s := range subs {
		if s == sub {
			r.handlers[sub.name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.handlers[sub.name]) == 0 {
		delete(r.handlers, sub.name)
	}
}

func (r *Router) count(f func(*Stats)) {
	r.statsMu.Lock()
	f(&r.stats)
	r.statsMu.Unlock()
}
