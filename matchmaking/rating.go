package matchmaking

import (
	"context"
	"fmt"

	"github.com/mapleleafu/typearena/typearena-backend/models"
)

const (
	// ratingWindow is how many recent sessions feed a rating.
	ratingWindow = 10

	wpmWeight      = 0.7
	accuracyWeight = 0.3
)

// History is the skill-history store ratings are computed from.
type History interface {
	RecentSessions(ctx context.Context, playerID string, gameType models.GameType, limit int) ([]models.SessionMetrics, error)
}

type RatingService struct {
	history History
}

func NewRatingService(history History) *RatingService {
	return &RatingService{history: history}
}

// Rate returns a player's current rating for one game type. Players with no
// history rate 0 and land in the beginner tier.
func (s *RatingService) Rate(ctx context.Context, playerID string, gameType models.GameType) (models.Rating, error) {
	sessions, err := s.history.RecentSessions(ctx, playerID, gameType, ratingWindow)
	if err != nil {
		return models.Rating{}, fmt.Errorf("loading skill history: %w", err)
	}
	score := CompositeScore(sessions)
	return models.Rating{
		PlayerID: playerID,
		GameType: gameType,
		Rating:   score,
		Tier:     TierFor(score),
		Sessions: len(sessions),
	}, nil
}

// CompositeScore averages 0.7*WPM + 0.3*accuracy over the given sessions.
func CompositeScore(sessions []models.SessionMetrics) float64 {
	if len(sessions) == 0 {
		return 0
	}
	var total float64
	for _, s := range sessions {
		total += wpmWeight*s.WPM + accuracyWeight*s.Accuracy
	}
	return total / float64(len(sessions))
}

func TierFor(rating float64) models.SkillTier {
	switch {
	case rating >= 70:
		return models.TierExpert
	case rating >= 50:
		return models.TierAdvanced
	case rating >= 30:
		return models.TierIntermediate
	default:
		return models.TierBeginner
	}
}
