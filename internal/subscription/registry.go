// Package subscription tracks which rooms and entities the client has
// declared interest in, and replays that interest on every reconnect.
package subscription

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aboyz1/HobbyVerse-sub001/internal/event"
	"github.com/aboyz1/HobbyVerse-sub001/internal/router"
)

// Kind classifies a subscription target.
type Kind string

const (
	KindRoom      Kind = "room"
	KindProject   Kind = "project"
	KindChallenge Kind = "challenge"
)

// Entry is one declared interest.
type Entry struct {
	Kind Kind
	ID   string
}

// Emitter is the outbound side of the connection manager.
type Emitter interface {
	Emit(name string, payload any)
}

// Registry is an insertion-ordered set of subscriptions. Join/leave
// emissions go out immediately when connected (the manager drops them
// otherwise), and the whole set is re-emitted in insertion order on
// every connected lifecycle event. The server treats duplicate joins
// as idempotent.
type Registry struct {
	emitter Emitter
	logger  *slog.Logger

	mu      sync.Mutex
	entries []Entry
	index   map[Entry]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(emitter Emitter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		emitter: emitter,
		logger:  logger,
		index:   make(map[Entry]struct{}),
	}
}

// Bind registers the replay handler on the router.
func (r *Registry) Bind(rt *router.Router) *router.Subscription {
	return rt.On(event.ConnectedName, func(json.RawMessage) {
		r.Replay()
	})
}

// Subscribe declares interest. Idempotent.
func (r *Registry) Subscribe(kind Kind, id string) {
	e := Entry{Kind: kind, ID: id}

	r.mu.Lock()
	if _, ok := r.index[e]; ok {
		r.mu.Unlock()
		return
	}
	r.entries = append(r.entries, e)
	r.index[e] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("subscribed", "kind", string(kind), "id", id)
	r.emitter.Emit(joinEvent(kind), id)
}

// Unsubscribe removes interest. Idempotent.
func (r *Registry) Unsubscribe(kind Kind, id string) {
	e := Entry{Kind: kind, ID: id}

	r.mu.Lock()
	if _, ok := r.index[e]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.index, e)
	for i, cur := range r.entries {
		if cur == e {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.logger.Debug("unsubscribed", "kind", string(kind), "id", id)
	r.emitter.Emit(leaveEvent(kind), id)
}

// IsSubscribed reports current interest.
func (r *Registry) IsSubscribed(kind Kind, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[Entry{Kind: kind, ID: id}]
	return ok
}

// Entries returns a copy of the set in insertion order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Replay re-emits a join for every entry, in insertion order. No
// deduplication window: a join may have gone out moments before.
func (r *Registry) Replay() {
	entries := r.Entries()
	if len(entries) == 0 {
		return
	}

	r.logger.Info("replaying subscriptions", "count", len(entries))
	for _, e := range entries {
		r.emitter.Emit(joinEvent(e.Kind), e.ID)
	}
}

func joinEvent(kind Kind) string {
	switch kind {
	case KindRoom:
		return event.JoinSquadName
	case KindProject:
		return event.SubscribeProjectName
	case KindChallenge:
		return event.SubscribeChallengeName
	}
	return ""
}

func leaveEvent(kind Kind) string {
	switch kind {
	case KindRoom:
		return event.LeaveSquadName
	case KindProject:
		return event.UnsubscribeProjectName
	case KindChallenge:
		return event.UnsubscribeChallengeName
	}
	return ""
}
