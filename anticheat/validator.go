// Package anticheat gates player input before it reaches a game engine.
package anticheat

import (
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/game"
	"github.com/mapleleafu/typearena/typearena-backend/logger"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/rs/zerolog"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rejection and flag reasons, sent to clients as is.
const (
	ReasonInvalidInput       = "invalid_input"
	ReasonNonMonotonic       = "non_monotonic_timestamp"
	ReasonTimingGap          = "timing_gap"
	ReasonInhumanIntervals   = "inhuman_intervals"
	ReasonInhumanRhythm      = "inhuman_rhythm"
	ReasonWPMExceeded        = "wpm_exceeded"
	ReasonSuspiciousAccuracy = "suspicious_accuracy"
)

// Thresholds tunes the checks. DefaultThresholds is what the server runs.
type Thresholds struct {
	MaxWPM              float64
	MinInterval         time.Duration
	MaxFastShare        float64
	MinAverageInterval  time.Duration
	PerfectAccuracyWPM  float64
	NearPerfectAccuracy float64
	NearPerfectWPM      float64
	MaxGap              time.Duration
	MinKeystrokes       int
	MinIntervals        int
}

var DefaultThresholds = Thresholds{
	MaxWPM:              250,
	MinInterval:         20 * time.Millisecond,
	MaxFastShare:        0.10,
	MinAverageInterval:  30 * time.Millisecond,
	PerfectAccuracyWPM:  180,
	NearPerfectAccuracy: 99,
	NearPerfectWPM:      200,
	MaxGap:              5000 * time.Millisecond,
	MinKeystrokes:       10,
	MinIntervals:        5,
}

// Stats is the player's standing in the game so far, as the engine
// computed it.
type Stats struct {
	KeystrokeCount int
	WPM            float64
	Accuracy       float64
}

// Result is the verdict on one input. Flags holds low-severity notes on
// input that was still allowed through.
type Result struct {
	Valid    bool
	Reason   string
	Severity Severity
	Flags    []string
}

func reject(reason string, severity Severity) Result {
	return Result{Reason: reason, Severity: severity}
}

// Check runs every rule against one input. history is the player's recent
// accepted timestamps in milliseconds, oldest first. Check has no side
// effects.
func Check(t Thresholds, history []int64, input models.InputEvent, stats Stats) Result {
	if input.InputType != models.InputTypeKeystroke || !game.IsSingleCharacter(input.Data.Key) {
		return reject(ReasonInvalidInput, SeverityHigh)
	}

	result := Result{Valid: true}
	if n := len(history); n > 0 {
		last := history[n-1]
		if input.Timestamp < last {
			return reject(ReasonNonMonotonic, SeverityMedium)
		}
		if time.Duration(input.Timestamp-last)*time.Millisecond > t.MaxGap {
			result.Severity = SeverityLow
			result.Flags = append(result.Flags, ReasonTimingGap)
		}
	}

	intervals := recentIntervals(history, input.Timestamp, t.MaxGap)
	if len(intervals) >= t.MinIntervals {
		fast := 0
		var total time.Duration
		for _, iv := range intervals {
			if iv < t.MinInterval {
				fast++
			}
			total += iv
		}
		if float64(fast)/float64(len(intervals)) > t.MaxFastShare {
			return reject(ReasonInhumanIntervals, SeverityHigh)
		}
		if total/time.Duration(len(intervals)) < t.MinAverageInterval {
			return reject(ReasonInhumanRhythm, SeverityHigh)
		}
	}

	if stats.KeystrokeCount >= t.MinKeystrokes {
		if stats.WPM > t.MaxWPM {
			return reject(ReasonWPMExceeded, SeverityHigh)
		}
		if stats.Accuracy >= 100 && stats.WPM > t.PerfectAccuracyWPM {
			return reject(ReasonSuspiciousAccuracy, SeverityMedium)
		}
		if stats.Accuracy >= t.NearPerfectAccuracy && stats.WPM > t.NearPerfectWPM {
			return reject(ReasonSuspiciousAccuracy, SeverityMedium)
		}
	}
	return result
}

// recentIntervals returns the gaps between consecutive timestamps ending
// with next. Pauses longer than maxGap are dropped so a player who comes
// back from a break is not judged on the break.
func recentIntervals(history []int64, next int64, maxGap time.Duration) []time.Duration {
	if len(history) == 0 {
		return nil
	}
	out := make([]time.Duration, 0, len(history))
	prev := history[0]
	for _, ts := range append(history[1:len(history):len(history)], next) {
		iv := time.Duration(ts-prev) * time.Millisecond
		prev = ts
		if iv > maxGap {
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Validator runs Check against a Tracker's per-player history. It is safe
// for concurrent use.
type Validator struct {
	thresholds Thresholds
	tracker    *Tracker
	log        zerolog.Logger
}

func NewValidator(t Thresholds) *Validator {
	return &Validator{
		thresholds: t,
		tracker:    NewTracker(historySize),
		log:        logger.Component("anticheat"),
	}
}

// Validate checks input and, if it passes, records its timestamp.
func (v *Validator) Validate(playerID string, input models.InputEvent, stats Stats) Result {
	res := Check(v.thresholds, v.tracker.History(playerID), input, stats)
	if !res.Valid {
		v.log.Warn().
			Str("playerId", playerID).
			Str("reason", res.Reason).
			Str("severity", string(res.Severity)).
			Float64("wpm", stats.WPM).
			Msg("input rejected")
		return res
	}
	if len(res.Flags) > 0 {
		v.log.Debug().Str("playerId", playerID).Strs("flags", res.Flags).Msg("input flagged")
	}
	v.tracker.Record(playerID, input.Timestamp)
	return res
}

// Forget drops a player's history. Call it when the player disconnects.
func (v *Validator) Forget(playerID string) {
	v.tracker.Forget(playerID)
}

// Tracked reports how many players have history.
func (v *Validator) Tracked() int {
	return v.tracker.Len()
}
