// Package chat maintains per-room ordered message logs with a bounded
// pending-send queue. Sends are optimistic: the message is appended
// locally under a client-generated correlation id, and the server's
// echo replaces it in place rather than appending a duplicate.
package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aboyz1/HobbyVerse-sub001/internal/event"
	"github.com/aboyz1/HobbyVerse-sub001/internal/router"
	"github.com/aboyz1/HobbyVerse-sub001/internal/subscription"
)

var (
	ErrNotJoined     = errors.New("room not joined")
	ErrPendingFull   = errors.New("pending-send queue full")
	ErrNoSuchPending = errors.New("no pending message with that correlation id")
	ErrNotRetryable  = errors.New("message is not in the failed state")
)

// DefaultMessageType is the messageType stamped on plain text sends.
const DefaultMessageType = "text"

// Emitter is the outbound side of the connection manager.
type Emitter interface {
	Emit(name string, payload any)
}

// Roster declares and withdraws room interest; satisfied by the
// subscription registry.
type Roster interface {
	Subscribe(kind subscription.Kind, id string)
	Unsubscribe(kind subscription.Kind, id string)
}

// Publisher surfaces local failures through the event router.
type Publisher interface {
	Publish(name string, payload any)
}

// Config holds chat settings.
type Config struct {
	SendTimeout  time.Duration // unconfirmed sends fail after this
	PendingLimit int           // max in-flight sends per room
	ViewerID     string        // stamped as author on optimistic messages
}

// pendingSend tracks one unconfirmed send.
type pendingSend struct {
	index int // position in the room log; stable, the log only appends
	timer *time.Timer
}

// session is the per-room state machine:
// not-joined -> joining -> joined -> leaving -> not-joined.
type session struct {
	state   RoomState
	log     []Message
	pending map[string]*pendingSend // correlation id -> watcher
	seen    map[string]struct{}     // confirmed server ids, for duplicate drops
}

// Manager owns all room sessions.
type Manager struct {
	cfg     Config
	emitter Emitter
	roster  Roster
	pub     Publisher
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	rooms map[string]*session
}

// NewManager creates a chat manager.
func NewManager(cfg Config, emitter Emitter, roster Roster, pub Publisher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:     cfg,
		emitter: emitter,
		roster:  roster,
		pub:     pub,
		logger:  logger,
		now:     time.Now,
		rooms:   make(map[string]*session),
	}
}

// Bind registers the manager's inbound handlers on the router.
func (m *Manager) Bind(rt *router.Router) []*router.Subscription {
	return []*router.Subscription{
		rt.On(event.NewMessageName, func(data json.RawMessage) {
			var msg event.NewMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				m.logger.Warn("bad new_message payload", "error", err)
				return
			}
			m.handleNewMessage(msg)
		}),
		rt.On(event.SquadJoinedName, func(data json.RawMessage) {
			var ack event.SquadJoined
			if err := json.Unmarshal(data, &ack); err != nil {
				m.logger.Warn("bad squad_joined payload", "error", err)
				return
			}
			m.handleJoinAck(ack.RoomID)
		}),
		rt.On(event.ConnectedName, func(json.RawMessage) {
			m.resendPending()
		}),
	}
}

// Join declares interest in a room and starts its session. No-op when
// already joining or joined.
func (m *Manager) Join(roomID string) {
	m.mu.Lock()
	sess := m.rooms[roomID]
	if sess != nil && (sess.state == RoomJoining || sess.state == RoomJoined) {
		m.mu.Unlock()
		return
	}
	m.rooms[roomID] = &session{
		state:   RoomJoining,
		pending: make(map[string]*pendingSend),
		seen:    make(map[string]struct{}),
	}
	m.mu.Unlock()

	m.logger.Debug("joining room", "room", roomID)
	m.roster.Subscribe(subscription.KindRoom, roomID)
}

// Leave withdraws interest and discards the room's log and pending
// queue. Chat history lives server-side and is re-fetched on next join.
func (m *Manager) Leave(roomID string) {
	m.mu.Lock()
	sess := m.rooms[roomID]
	if sess == nil {
		m.mu.Unlock()
		return
	}
	sess.state = RoomLeaving
	for _, ps := range sess.pending {
		ps.timer.Stop()
	}
	delete(m.rooms, roomID)
	m.mu.Unlock()

	m.logger.Debug("left room", "room", roomID)
	m.roster.Unsubscribe(subscription.KindRoom, roomID)
}

// Send appends a pending message and emits it with a client-generated
// correlation id. Returns the correlation id for the caller to track.
func (m *Manager) Send(roomID, content string) (string, error) {
	m.mu.Lock()
	sess := m.rooms[roomID]
	if sess == nil || (sess.state != RoomJoining && sess.state != RoomJoined) {
		m.mu.Unlock()
		return "", ErrNotJoined
	}
	if sess.inFlight() >= m.cfg.PendingLimit {
		m.mu.Unlock()
		return "", ErrPendingFull
	}

	corr := uuid.NewString()
	msg := Message{
		ID:            corr,
		RoomID:        roomID,
		AuthorID:      m.cfg.ViewerID,
		Content:       content,
		MessageType:   DefaultMessageType,
		CorrelationID: corr,
		CreatedAt:     m.now(),
		Delivery:      DeliveryPending,
	}
	sess.log = append(sess.log, msg)
	sess.pending[corr] = &pendingSend{
		index: len(sess.log) - 1,
		timer: m.armTimeout(roomID, corr),
	}
	m.mu.Unlock()

	m.emitter.Emit(event.SendMessageName, event.SendMessage{
		RoomID:        roomID,
		Content:       content,
		MessageType:   DefaultMessageType,
		CorrelationID: corr,
	})
	return corr, nil
}

// Retry re-emits a failed message. Only failed messages are
// retryable; retry is always a user action, never automatic.
func (m *Manager) Retry(roomID, correlationID string) error {
	m.mu.Lock()
	sess := m.rooms[roomID]
	if sess == nil {
		m.mu.Unlock()
		return ErrNotJoined
	}
	ps := sess.pending[correlationID]
	if ps == nil {
		m.mu.Unlock()
		return ErrNoSuchPending
	}
	msg := &sess.log[ps.index]
	if msg.Delivery != DeliveryFailed {
		m.mu.Unlock()
		return ErrNotRetryable
	}
	msg.Delivery = DeliveryPending
	ps.timer.Stop()
	ps.timer = m.armTimeout(roomID, correlationID)
	content := msg.Content
	m.mu.Unlock()

	m.emitter.Emit(event.SendMessageName, event.SendMessage{
		RoomID:        roomID,
		Content:       content,
		MessageType:   DefaultMessageType,
		CorrelationID: correlationID,
	})
	return nil
}

// History returns a copy of the room's ordered log.
func (m *Manager) History(roomID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.rooms[roomID]
	if sess == nil {
		return nil
	}
	out := make([]Message, len(sess.log))
	copy(out, sess.log)
	return out
}

// RoomState returns the session state for a room.
func (m *Manager) RoomState(roomID string) RoomState {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.rooms[roomID]
	if sess == nil {
		return RoomNotJoined
	}
	return sess.state
}

// handleNewMessage applies one inbound message: a correlation match
// replaces the pending entry in place, anything else appends.
func (m *Manager) handleNewMessage(in event.NewMessage) {
	m.mu.Lock()
	sess := m.rooms[in.RoomID]
	if sess == nil {
		m.mu.Unlock()
		m.logger.Debug("message for room we are not in, dropping", "room", in.RoomID)
		return
	}

	// First inbound traffic for the room also confirms the join for
	// servers that never send an explicit ack.
	if sess.state == RoomJoining {
		sess.state = RoomJoined
	}

	if in.CorrelationID != "" {
		if ps := sess.pending[in.CorrelationID]; ps != nil {
			ps.timer.Stop()
			sess.log[ps.index] = confirmed(in)
			delete(sess.pending, in.CorrelationID)
			sess.seen[in.ID] = struct{}{}
			m.mu.Unlock()
			return
		}
	}

	if _, dup := sess.seen[in.ID]; dup {
		m.mu.Unlock()
		m.logger.Debug("duplicate message, dropping", "room", in.RoomID, "id", in.ID)
		return
	}

	sess.log = append(sess.log, confirmed(in))
	sess.seen[in.ID] = struct{}{}
	m.mu.Unlock()
}

// handleJoinAck promotes joining -> joined.
func (m *Manager) handleJoinAck(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.rooms[roomID]
	if sess != nil && sess.state == RoomJoining {
		sess.state = RoomJoined
		m.logger.Debug("join acknowledged", "room", roomID)
	}
}

// resendPending re-emits every still-pending send after a reconnect.
// Outbound events are not queued across disconnects, so this is the
// at-least-once leg of the delivery story. Failed messages stay failed
// until the user retries.
func (m *Manager) resendPending() {
	type resend struct {
		roomID string
		index  int
		msg    event.SendMessage
	}

	m.mu.Lock()
	var out []resend
	for roomID, sess := range m.rooms {
		for corr, ps := range sess.pending {
			msg := sess.log[ps.index]
			if msg.Delivery != DeliveryPending {
				continue
			}
			ps.timer.Stop()
			ps.timer = m.armTimeout(roomID, corr)
			out = append(out, resend{
				roomID: roomID,
				index:  ps.index,
				msg: event.SendMessage{
					RoomID:        roomID,
					Content:       msg.Content,
					MessageType:   msg.MessageType,
					CorrelationID: corr,
				},
			})
		}
	}
	m.mu.Unlock()

	if len(out) == 0 {
		return
	}

	// Within a room, resend in original send order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].roomID != out[j].roomID {
			return out[i].roomID < out[j].roomID
		}
		return out[i].index < out[j].index
	})

	m.logger.Info("resending pending messages", "count", len(out))
	for _, r := range out {
		m.emitter.Emit(event.SendMessageName, r.msg)
	}
}

// armTimeout starts the send-timeout watcher for one correlation id.
func (m *Manager) armTimeout(roomID, corr string) *time.Timer {
	return time.AfterFunc(m.cfg.SendTimeout, func() {
		m.onSendTimeout(roomID, corr)
	})
}

// onSendTimeout marks an unconfirmed send as failed and surfaces it.
func (m *Manager) onSendTimeout(roomID, corr string) {
	m.mu.Lock()
	sess := m.rooms[roomID]
	if sess == nil {
		m.mu.Unlock()
		return
	}
	ps := sess.pending[corr]
	if ps == nil || sess.log[ps.index].Delivery != DeliveryPending {
		m.mu.Unlock()
		return
	}
	sess.log[ps.index].Delivery = DeliveryFailed
	m.mu.Unlock()

	m.logger.Warn("send timed out", "room", roomID, "correlation_id", corr)
	m.pub.Publish(event.SendFailedName, event.SendFailure{
		RoomID:        roomID,
		CorrelationID: corr,
		Reason:        "no confirmation within send timeout",
	})
}

// inFlight counts pending-state sends (failed ones await manual retry
// and do not hold a queue slot against new sends).
func (s *session) inFlight() int {
	n := 0
	for _, ps := range s.pending {
		if s.log[ps.index].Delivery == DeliveryPending {
			n++
		}
	}
	return n
}

// confirmed builds the authoritative log entry from the wire message.
func confirmed(in event.NewMessage) Message {
	return Message{
		ID:            in.ID,
		RoomID:        in.RoomID,
		AuthorID:      in.AuthorID,
		Content:       in.Content,
		MessageType:   in.MessageType,
		CorrelationID: in.CorrelationID,
		CreatedAt:     time.UnixMilli(in.CreatedAt),
		Edited:        in.Edited,
		Delivery:      DeliveryConfirmed,
	}
}
