package models

import "time"

type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusPlaying  RoomStatus = "playing"
	RoomStatusFinished RoomStatus = "finished"
)

// Difficulty scales the starting speed of the falling variants.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

const (
	MinRoomPlayers     = 2
	MaxRoomPlayers     = 8
	DefaultRoomPlayers = 4
)

type RoomSettings struct {
	Seed             uint32     `json:"seed"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"`
	CharacterSet     string     `json:"characterSet"`
	Difficulty       Difficulty `json:"difficulty"`
}

type RoomPlayer struct {
	PlayerID    string    `json:"playerId"`
	DisplayName string    `json:"displayName"`
	IsHost      bool      `json:"isHost"`
	IsReady     bool      `json:"isReady"`
	IsConnected bool      `json:"isConnected"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Room is the durable record of a room. PasswordHash is a bcrypt hash and
// is never sent to clients; use Public for that.
type Room struct {
	RoomID       string       `json:"roomId"`
	GameType     GameType     `json:"gameType"`
	RoomName     string       `json:"roomName"`
	PasswordHash string       `json:"passwordHash,omitempty"`
	MaxPlayers   int          `json:"maxPlayers"`
	Players      []RoomPlayer `json:"players"`
	Status       RoomStatus   `json:"status"`
	Settings     RoomSettings `json:"settings"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// PublicRoom is the client-facing view of a Room.
type PublicRoom struct {
	RoomID      string       `json:"roomId"`
	GameType    GameType     `json:"gameType"`
	RoomName    string       `json:"roomName"`
	HasPassword bool         `json:"hasPassword"`
	MaxPlayers  int          `json:"maxPlayers"`
	Players     []RoomPlayer `json:"players"`
	Status      RoomStatus   `json:"status"`
	Settings    RoomSettings `json:"settings"`
}

func (r *Room) Public() PublicRoom {
	players := r.Players
	if players == nil {
		players = []RoomPlayer{}
	}
	return PublicRoom{
		RoomID:      r.RoomID,
		GameType:    r.GameType,
		RoomName:    r.RoomName,
		HasPassword: r.PasswordHash != "",
		MaxPlayers:  r.MaxPlayers,
		Players:     players,
		Status:      r.Status,
		Settings:    r.Settings,
	}
}

// Player returns the member with the given id, or nil.
func (r *Room) Player(playerID string) *RoomPlayer {
	for i := range r.Players {
		if r.Players[i].PlayerID == playerID {
			return &r.Players[i]
		}
	}
	return nil
}

// Host returns the current host, or nil for an empty room.
func (r *Room) Host() *RoomPlayer {
	for i := range r.Players {
		if r.Players[i].IsHost {
			return &r.Players[i]
		}
	}
	return nil
}

func (r *Room) PlayerIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		ids = append(ids, p.PlayerID)
	}
	return ids
}
