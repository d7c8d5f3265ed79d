// Package typing maintains the per-room sets of users currently
// composing a message. Entries self-expire; there is no timer per
// entry, expiry is checked lazily on read.
package typing

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aboyz1/HobbyVerse-sub001/internal/event"
	"github.com/aboyz1/HobbyVerse-sub001/internal/router"
)

// DefaultTTL matches the debounce on the sending side: a client emits
// typing_start at most once per 3s while composing.
const DefaultTTL = 3 * time.Second

type entry struct {
	userID string
	expiry time.Time
}

// Tracker holds typing state for all rooms.
type Tracker struct {
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	rooms map[string][]entry // insertion ordered per room
}

// NewTracker creates a tracker with the given entry lifetime.
func NewTracker(ttl time.Duration, logger *slog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		rooms:  make(map[string][]entry),
	}
}

// Bind registers the tracker's handlers on the router. A user's own
// message also clears their typing entry: sending implies stopped.
func (t *Tracker) Bind(rt *router.Router) []*router.Subscription {
	return []*router.Subscription{
		rt.On(event.UserTypingName, func(data json.RawMessage) {
			var sig event.TypingSignal
			if err := json.Unmarshal(data, &sig); err != nil {
				t.logger.Warn("bad typing payload", "error", err)
				return
			}
			t.MarkTyping(sig.RoomID, sig.UserID)
		}),
		rt.On(event.UserStoppedTypingName, func(data json.RawMessage) {
			var sig event.TypingSignal
			if err := json.Unmarshal(data, &sig); err != nil {
				t.logger.Warn("bad typing payload", "error", err)
				return
			}
			t.MarkStopped(sig.RoomID, sig.UserID)
		}),
		rt.On(event.NewMessageName, func(data json.RawMessage) {
			var msg event.NewMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				return
			}
			t.MarkStopped(msg.RoomID, msg.AuthorID)
		}),
	}
}

// MarkTyping inserts or refreshes an entry. A refresh extends the
// expiry but keeps the original position, so the "X, Y are typing"
// string stays stable while both keep typing.
func (t *Tracker) MarkTyping(roomID, userID string) {
	expiry := t.now().Add(t.ttl)

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.rooms[roomID]
	for i := range entries {
		if entries[i].userID == userID {
			entries[i].expiry = expiry
			return
		}
	}
	t.rooms[roomID] = append(entries, entry{userID: userID, expiry: expiry})
}

// MarkStopped removes an entry immediately.
func (t *Tracker) MarkStopped(roomID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.rooms[roomID]
	for i := range entries {
		if entries[i].userID == userID {
			t.rooms[roomID] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(t.rooms[roomID]) == 0 {
		delete(t.rooms, roomID)
	}
}

// TypingUsersFor sweeps expired entries and returns the remaining user
// ids in first-marked-first order.
func (t *Tracker) TypingUsersFor(roomID string) []string {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.rooms[roomID]
	if len(entries) == 0 {
		return nil
	}

	live := entries[:0]
	for _, e := range entries {
		if e.expiry.After(now) {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		delete(t.rooms, roomID)
		return nil
	}
	t.rooms[roomID] = live

	out := make([]string, len(live))
	for i, e := range live {
		out[i] = e.userID
	}
	return out
}

// ClearRoom drops all entries for a room, used when leaving it.
func (t *Tracker) ClearRoom(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, roomID)
}
