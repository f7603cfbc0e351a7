package models

import "encoding/json"

// Client -> server events.
const (
	EventRoomCreate  = "room:create"
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventRoomReady   = "room:ready"
	EventRoomStart   = "room:start"
	EventRoomKick    = "room:kick"
	EventMatchQueue  = "match:queue"
	EventMatchCancel = "match:cancel"
	EventGameInput   = "game:input"
)

// Server -> client events.
const (
	EventAck               = "ack"
	EventError             = "error"
	EventRoomUpdated       = "room:updated"
	EventRoomCreated       = "room:created"
	EventRoomDeleted       = "room:deleted"
	EventPlayerJoined      = "player:joined"
	EventPlayerLeft        = "player:left"
	EventPlayerKicked      = "player:kicked"
	EventPlayerReady       = "player:ready"
	EventGameCountdown     = "game:countdown"
	EventGameStarted       = "game:started"
	EventGameState         = "game:state"
	EventGamePlayerUpdate  = "game:player:update"
	EventGameInputRejected = "game:input:rejected"
	EventGameEnded         = "game:ended"
	EventMatchFound        = "match:found"
	EventMatchTimeout      = "match:timeout"
	EventMatchQueued       = "match:queued"
	EventMatchCancelled    = "match:cancelled"
)

// Envelope is the frame every websocket message travels in. Ack is echoed
// back on the acknowledgement so clients can pair requests with replies.
type Envelope struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEnvelope is the server side counterpart of Envelope.
type OutboundEnvelope struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type CreateRoomMessage struct {
	GameType   GameType     `json:"gameType"`
	RoomName   string       `json:"roomName"`
	Password   string       `json:"password,omitempty"`
	MaxPlayers int          `json:"maxPlayers"`
	Settings   RoomSettings `json:"settings"`
}

type JoinRoomMessage struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
}

type RoomMessage struct {
	RoomID string `json:"roomId"`
}

type KickMessage struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type QueueMessage struct {
	GameType GameType `json:"gameType"`
}

type PlayerEventPayload struct {
	RoomID      string `json:"roomId"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName,omitempty"`
	IsReady     *bool  `json:"isReady,omitempty"`
}

type RoomDeletedPayload struct {
	RoomID string `json:"roomId"`
}

type CountdownPayload struct {
	RoomID    string `json:"roomId"`
	Countdown int    `json:"countdown"`
}

type GameStartedPayload struct {
	RoomID    string `json:"roomId"`
	GameState any    `json:"gameState"`
}

type PlayerUpdatePayload struct {
	RoomID string `json:"roomId"`
	Player any    `json:"player"`
}

type InputRejectedPayload struct {
	Reason   string     `json:"reason"`
	Severity string     `json:"severity,omitempty"`
	Input    InputEvent `json:"input"`
}

type GameEndedPayload struct {
	RoomID     string    `json:"roomId"`
	Reason     EndReason `json:"reason"`
	Winner     string    `json:"winner,omitempty"`
	FinalState any       `json:"finalState"`
}

type MatchFoundPayload struct {
	RoomID string `json:"roomId"`
}

type MatchTimeoutPayload struct {
	GameType GameType `json:"gameType"`
	Waited   int64    `json:"waitedMs"`
}

type ErrorPayload struct {
	Error string `json:"error"`
	Event string `json:"event,omitempty"`
}
