package chat

import "time"

// DeliveryState tracks a message's journey to the server.
type DeliveryState int

const (
	// DeliveryPending: appended locally, no confirmation yet. The
	// message still carries its client-generated temporary id.
	DeliveryPending DeliveryState = iota

	// DeliveryConfirmed: the server's echo replaced the temporary
	// record with the authoritative one.
	DeliveryConfirmed

	// DeliveryFailed: no confirmation within the send timeout. Only a
	// manual retry moves it back to pending.
	DeliveryFailed
)

// String returns the string representation of a DeliveryState.
func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliveryConfirmed:
		return "confirmed"
	case DeliveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is one entry in a room's ordered log.
type Message struct {
	ID            string // server id once confirmed, correlation id while pending
	RoomID        string
	AuthorID      string
	Content       string
	MessageType   string
	CorrelationID string // set only on messages this client sent
	CreatedAt     time.Time
	Edited        bool
	Delivery      DeliveryState
}

// RoomState is the per-room session state.
type RoomState int

const (
	RoomNotJoined RoomState = iota
	RoomJoining
	RoomJoined
	RoomLeaving
)

// String returns the string representation of a RoomState.
func (s RoomState) String() string {
	switch s {
	case RoomNotJoined:
		return "not-joined"
	case RoomJoining:
		return "joining"
	case RoomJoined:
		return "joined"
	case RoomLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}
