package event

import "encoding/json"

// Inbound event names pushed by the server.
const (
	NewMessageName        = "new_message"
	SquadJoinedName       = "squad_joined"
	ProjectUpdateName     = "project_update"
	ChallengeUpdateName   = "challenge_update"
	SquadUpdateName       = "squad_update"
	GeneralPostUpdateName = "general_post_update"
	UserTypingName        = "userTyping"
	UserStoppedTypingName = "userStoppedTyping"
)

// Outbound event names emitted by the client.
const (
	JoinSquadName            = "join_squad"
	LeaveSquadName           = "leave_squad"
	SendMessageName          = "send_message"
	TypingStartName          = "typing_start"
	TypingStopName           = "typing_stop"
	SubscribeProjectName     = "subscribe_project"
	UnsubscribeProjectName   = "unsubscribe_project"
	SubscribeChallengeName   = "subscribe_challenge"
	UnsubscribeChallengeName = "unsubscribe_challenge"
)

// Synthetic lifecycle and failure events. These never cross the wire;
// the connection manager and chat sessions publish them locally so UI
// code observes connectivity and delivery failures through the same
// router it uses for server pushes.
const (
	ConnectedName        = "connected"
	DisconnectedName     = "disconnected"
	ConnectionFailedName = "connection_failed"
	AuthRejectedName     = "auth_rejected"
	SendFailedName       = "send_failed"
)

// Envelope is the frame format in both directions:
// {"event": "<name>", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewMessage is the payload of a new_message push. CorrelationID echoes
// the id the sending client attached to send_message, empty for
// messages authored by other users.
type NewMessage struct {
	ID            string `json:"id"`
	RoomID        string `json:"roomId"`
	AuthorID      string `json:"authorId"`
	Content       string `json:"content"`
	MessageType   string `json:"messageType"`
	CorrelationID string `json:"correlationId,omitempty"`
	CreatedAt     int64  `json:"createdAt"` // ms since epoch
	Edited        bool   `json:"edited"`
}

// SquadJoined acknowledges a join_squad emission.
type SquadJoined struct {
	RoomID string `json:"roomId"`
}

// UpdateType discriminates counter-update pushes.
type UpdateType string

const (
	LikeUpdate    UpdateType = "LIKE_UPDATE"
	RepostUpdate  UpdateType = "REPOST_UPDATE"
	NewComment    UpdateType = "NEW_COMMENT"
	HelpfulUpdate UpdateType = "HELPFUL_UPDATE"
)

// CounterUpdate is the payload of project_update, challenge_update,
// squad_update and general_post_update pushes: one authoritative
// counter value for one entity, plus the actor who caused the change.
type CounterUpdate struct {
	Type     UpdateType `json:"type"`
	EntityID string     `json:"entityId"`
	Value    int        `json:"value"`
	ActorID  string     `json:"actorId"`
	Liked    *bool      `json:"liked,omitempty"` // actor's own toggle state, LIKE/HELPFUL only
}

// CounterName maps the update type to the counter it overwrites.
func (u CounterUpdate) CounterName() string {
	switch u.Type {
	case LikeUpdate:
		return "likes"
	case RepostUpdate:
		return "reposts"
	case NewComment:
		return "comments"
	case HelpfulUpdate:
		return "helpful"
	}
	return string(u.Type)
}

// TypingSignal is the payload of userTyping and userStoppedTyping.
type TypingSignal struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// SendMessage is the payload of an outbound send_message. The client
// generates CorrelationID and uses it to match the server's echo.
type SendMessage struct {
	RoomID        string `json:"roomId"`
	Content       string `json:"content"`
	MessageType   string `json:"messageType"`
	CorrelationID string `json:"correlationId"`
}

// ConnectionStatus is the payload of the synthetic connected,
// disconnected and connection_failed events.
type ConnectionStatus struct {
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason,omitempty"`
}

// AuthFailure is the payload of the synthetic auth_rejected event.
type AuthFailure struct {
	Reason string `json:"reason"`
}

// SendFailure is the payload of the synthetic send_failed event,
// published when a pending chat message times out unconfirmed.
type SendFailure struct {
	RoomID        string `json:"roomId"`
	CorrelationID string `json:"correlationId"`
	Reason        string `json:"reason"`
}

// knownInbound is the closed set of names the router will dispatch.
var knownInbound = map[string]struct{}{
	NewMessageName:        {},
	SquadJoinedName:       {},
	ProjectUpdateName:     {},
	ChallengeUpdateName:   {},
	SquadUpdateName:       {},
	GeneralPostUpdateName: {},
	UserTypingName:        {},
	UserStoppedTypingName: {},
	ConnectedName:         {},
	DisconnectedName:      {},
	ConnectionFailedName:  {},
	AuthRejectedName:      {},
	SendFailedName:        {},
}

// Known reports whether name is part of the inbound protocol.
func Known(name string) bool {
	_, ok := knownInbound[name]
	return ok
}

// Marshal wraps a payload in an envelope and encodes it.
func Marshal(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: name, Data: data})
}
