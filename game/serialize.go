package game

import (
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/models"
)

// SerializedPlayer is a player's public line in a state snapshot.
type SerializedPlayer struct {
	PlayerID          string  `json:"playerId"`
	DisplayName       string  `json:"displayName"`
	IsConnected       bool    `json:"isConnected"`
	IsFinished        bool    `json:"isFinished"`
	FinishedAt        *int64  `json:"finishedAt,omitempty"`
	Score             int     `json:"score"`
	Level             int     `json:"level"`
	KeystrokeCount    int     `json:"keystrokeCount"`
	CorrectKeystrokes int     `json:"correctKeystrokes"`
	ErrorCount        int     `json:"errorCount"`
	CurrentWPM        float64 `json:"currentWpm"`
	Accuracy          float64 `json:"accuracy"`
	GameData          any     `json:"gameData,omitempty"`
}

// SerializedState is the wire form of a game. Times are unix milliseconds
// and ElapsedTime is milliseconds since start. The seed is left out: with
// it a client could replay everything the game has yet to spawn.
type SerializedState struct {
	RoomID      string                      `json:"roomId"`
	GameType    models.GameType             `json:"gameType"`
	Status      models.GameStatus           `json:"status"`
	StartTime   int64                       `json:"startTime"`
	CurrentTime int64                       `json:"currentTime"`
	ElapsedTime int64                       `json:"elapsedTime"`
	EndTime     *int64                      `json:"endTime,omitempty"`
	Players     map[string]SerializedPlayer `json:"players"`
	GameState   any                         `json:"gameState,omitempty"`
}

func serialize(state *models.GameState, v Variant, viewerID string) SerializedState {
	viewer := state.Players[viewerID]

	out := SerializedState{
		RoomID:      state.RoomID,
		GameType:    state.GameType,
		Status:      state.Status,
		StartTime:   unixMilli(state.StartTime),
		CurrentTime: unixMilli(state.CurrentTime),
		ElapsedTime: state.ElapsedTime.Milliseconds(),
		Players:     make(map[string]SerializedPlayer, len(state.Players)),
	}
	if state.EndTime != nil {
		ms := state.EndTime.UnixMilli()
		out.EndTime = &ms
	}
	for _, p := range state.OrderedPlayers() {
		out.Players[p.PlayerID] = serializePlayer(state, v, p, viewer)
	}
	if state.Shared != nil {
		out.GameState = v.ProjectShared(state, viewer)
	}
	return out
}

func serializePlayer(state *models.GameState, v Variant, p, viewer *models.PlayerState) SerializedPlayer {
	sp := SerializedPlayer{
		PlayerID:          p.PlayerID,
		DisplayName:       p.DisplayName,
		IsConnected:       p.IsConnected,
		IsFinished:        p.IsFinished,
		Score:             p.Score,
		Level:             p.Level,
		KeystrokeCount:    p.KeystrokeCount,
		CorrectKeystrokes: p.CorrectKeystrokes,
		ErrorCount:        p.ErrorCount,
		CurrentWPM:        p.CurrentWPM,
		Accuracy:          p.Accuracy,
	}
	if p.FinishedAt != nil {
		ms := p.FinishedAt.UnixMilli()
		sp.FinishedAt = &ms
	}
	if p.Data != nil {
		sp.GameData = v.ProjectPlayer(state, p, viewer)
	}
	return sp
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
