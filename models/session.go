package models

import (
	"encoding/json"
	"time"
)

// SessionPlayer is one player's final line in a completed session.
type SessionPlayer struct {
	PlayerID    string  `json:"playerId" bson:"playerId"`
	DisplayName string  `json:"displayName" bson:"displayName"`
	Score       int     `json:"score" bson:"score"`
	WPM         float64 `json:"wpm" bson:"wpm"`
	Accuracy    float64 `json:"accuracy" bson:"accuracy"`
	Keystrokes  int     `json:"keystrokes" bson:"keystrokes"`
	Errors      int     `json:"errors" bson:"errors"`
	Finished    bool    `json:"finished" bson:"finished"`
	Rank        int     `json:"rank" bson:"rank"`
}

// CompletedSession is handed to every session sink exactly once when a game
// ends.
type CompletedSession struct {
	SessionID  string          `json:"sessionId" bson:"_id"`
	RoomID     string          `json:"roomId" bson:"roomId"`
	GameType   GameType        `json:"gameType" bson:"gameType"`
	Seed       uint32          `json:"seed" bson:"seed"`
	StartedAt  time.Time       `json:"startedAt" bson:"startedAt"`
	EndedAt    time.Time       `json:"endedAt" bson:"endedAt"`
	Reason     EndReason       `json:"reason" bson:"reason"`
	WinnerID   string          `json:"winnerId,omitempty" bson:"winnerId,omitempty"`
	Players    []SessionPlayer `json:"players" bson:"players"`
	FinalState json.RawMessage `json:"finalState,omitempty" bson:"-"`
	// FinalStateDoc mirrors FinalState for the document store.
	FinalStateDoc map[string]any `json:"-" bson:"finalState,omitempty"`
}

// HasPlayer reports whether playerID took part in the session.
func (s *CompletedSession) HasPlayer(playerID string) bool {
	for _, p := range s.Players {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}

// SessionSummary is a row of a player's session history.
type SessionSummary struct {
	SessionID string    `json:"sessionId"`
	RoomID    string    `json:"roomId"`
	GameType  GameType  `json:"gameType"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	WinnerID  string    `json:"winnerId,omitempty"`
	Score     int       `json:"score"`
	WPM       float64   `json:"wpm"`
	Accuracy  float64   `json:"accuracy"`
	Rank      int       `json:"rank"`
}

// SessionMetrics is the slice of history skill rating is computed from.
type SessionMetrics struct {
	WPM      float64
	Accuracy float64
	EndedAt  time.Time
}
