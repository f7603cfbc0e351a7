package models

import "time"

// GameType selects the rule variant a room plays.
type GameType string

const (
	GameTypeFallingBlocks GameType = "falling-blocks"
	GameTypeBlink         GameType = "blink"
	GameTypeSpeedRace     GameType = "speed-race"
	GameTypeFallingWords  GameType = "falling-words"
)

// AllGameTypes lists every playable variant, in a stable order.
var AllGameTypes = []GameType{
	GameTypeFallingBlocks,
	GameTypeBlink,
	GameTypeSpeedRace,
	GameTypeFallingWords,
}

// Valid reports whether t names a known variant.
func (t GameType) Valid() bool {
	for _, known := range AllGameTypes {
		if t == known {
			return true
		}
	}
	return false
}

// GameStatus is the engine state machine. A game only ever moves forward:
// waiting -> countdown -> playing -> finished. A failed countdown is the one
// exception and drops the game back to waiting.
type GameStatus string

const (
	GameStatusWaiting   GameStatus = "waiting"
	GameStatusCountdown GameStatus = "countdown"
	GameStatusPlaying   GameStatus = "playing"
	GameStatusFinished  GameStatus = "finished"
)

// EndReason explains why a game finished.
type EndReason string

const (
	EndReasonCompleted EndReason = "completed"
	EndReasonTimeLimit EndReason = "time_limit"
	EndReasonAbandoned EndReason = "abandoned"
	EndReasonError     EndReason = "error"
	EndReasonStopped   EndReason = "stopped"
)

// PlayerState is one player's progress inside a running game. It is only
// ever mutated by the engine that owns it.
type PlayerState struct {
	PlayerID          string
	DisplayName       string
	IsConnected       bool
	IsFinished        bool
	FinishedAt        *time.Time
	Score             int
	Level             int
	KeystrokeCount    int
	CorrectKeystrokes int
	ErrorCount        int
	CurrentWPM        float64
	Accuracy          float64
	Data              PlayerData
}

// GameState is the full, unredacted state of one room's game. It never
// leaves the engine; clients only ever see a serialized projection.
type GameState struct {
	RoomID      string
	GameType    GameType
	Status      GameStatus
	StartTime   time.Time
	CurrentTime time.Time
	ElapsedTime time.Duration
	EndTime     *time.Time
	Seed        uint32
	Players     map[string]*PlayerState
	// PlayerOrder keeps join order so iteration over players is deterministic.
	PlayerOrder []string
	Shared      SharedState
}

// OrderedPlayers returns the players in join order, skipping any that were
// removed from the map.
func (gs *GameState) OrderedPlayers() []*PlayerState {
	players := make([]*PlayerState, 0, len(gs.PlayerOrder))
	for _, id := range gs.PlayerOrder {
		if p, ok := gs.Players[id]; ok {
			players = append(players, p)
		}
	}
	return players
}

// AllFinished reports whether every player still in the game is finished.
// An empty game counts as finished.
func (gs *GameState) AllFinished() bool {
	for _, p := range gs.Players {
		if !p.IsFinished {
			return false
		}
	}
	return true
}

// PlayerData is the per-player, variant-specific half of a game. Only the
// variant types declared in this package implement it.
type PlayerData interface {
	isPlayerData()
}

// SharedState is the state every player in a room observes identically.
type SharedState interface {
	isSharedState()
}
