package matchmaking

import (
	"math"
	"time"
)

const (
	baseRatingRange = 10.0
	maxRatingRange  = 30.0
	rangeStep       = 5.0
	rangeStepEvery  = 10 * time.Second
)

// RatingRange is how far apart two ratings may be after waiting for wait.
// It widens by 5 every 10 seconds, from 10 up to 30.
func RatingRange(wait time.Duration) float64 {
	if wait < 0 {
		wait = 0
	}
	steps := math.Floor(float64(wait) / float64(rangeStepEvery))
	return math.Min(maxRatingRange, baseRatingRange+rangeStep*steps)
}

// ArePlayersCompatible reports whether two ratings are close enough to be
// matched once the longer-waiting player has waited for wait.
func ArePlayersCompatible(r1, r2 float64, wait time.Duration) bool {
	return math.Abs(r1-r2) <= RatingRange(wait)
}
