package models

import "time"

// SkillTier is the matchmaking bracket a player falls into.
type SkillTier string

const (
	TierBeginner     SkillTier = "beginner"
	TierIntermediate SkillTier = "intermediate"
	TierAdvanced     SkillTier = "advanced"
	TierExpert       SkillTier = "expert"
)

// AllTiers is ordered from lowest to highest so neighbouring indexes are
// adjacent tiers.
var AllTiers = []SkillTier{TierBeginner, TierIntermediate, TierAdvanced, TierExpert}

// TierIndex returns the position of t in AllTiers, or -1.
func TierIndex(t SkillTier) int {
	for i, known := range AllTiers {
		if known == t {
			return i
		}
	}
	return -1
}

type Rating struct {
	PlayerID string    `json:"playerId"`
	GameType GameType  `json:"gameType"`
	Rating   float64   `json:"rating"`
	Tier     SkillTier `json:"tier"`
	Sessions int       `json:"sessions"`
}

type MatchQueueEntry struct {
	PlayerID    string    `json:"playerId"`
	DisplayName string    `json:"displayName"`
	GameType    GameType  `json:"gameType"`
	SkillTier   SkillTier `json:"skillTier"`
	Rating      float64   `json:"rating"`
	JoinedAt    time.Time `json:"joinedAt"`
}
