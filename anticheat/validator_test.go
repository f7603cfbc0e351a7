package anticheat

import (
	"testing"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(ts int64, k string) models.InputEvent {
	return models.InputEvent{
		InputType: models.InputTypeKeystroke,
		Timestamp: ts,
		Data:      models.InputData{Key: k},
	}
}

// steady returns n timestamps spaced step milliseconds apart.
func steady(start, step int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = start + int64(i)*step
	}
	return out
}

func TestCheck(t *testing.T) {
	human := Stats{KeystrokeCount: 50, WPM: 70, Accuracy: 94}

	tests := []struct {
		name     string
		history  []int64
		input    models.InputEvent
		stats    Stats
		valid    bool
		reason   string
		severity Severity
	}{
		{
			name:  "first keystroke",
			input: key(1000, "a"),
			stats: Stats{},
			valid: true,
		},
		{
			name:    "normal typing",
			history: steady(1000, 150, 10),
			input:   key(2500, "a"),
			stats:   human,
			valid:   true,
		},
		{
			name:     "multi character key",
			input:    key(1000, "ab"),
			reason:   ReasonInvalidInput,
			severity: SeverityHigh,
		},
		{
			name:     "wrong input type",
			input:    models.InputEvent{InputType: "mouse", Timestamp: 1, Data: models.InputData{Key: "a"}},
			reason:   ReasonInvalidInput,
			severity: SeverityHigh,
		},
		{
			name:     "timestamp goes backwards",
			history:  []int64{1000, 1200},
			input:    key(1100, "a"),
			reason:   ReasonNonMonotonic,
			severity: SeverityMedium,
		},
		{
			name:     "long pause is flagged but allowed",
			history:  []int64{1000, 1200},
			input:    key(7000, "a"),
			valid:    true,
			reason:   "",
			severity: SeverityLow,
		},
		{
			name:     "too many sub-20ms gaps",
			history:  []int64{1000, 1150, 1300, 1310, 1460, 1470},
			input:    key(1620, "a"),
			stats:    human,
			reason:   ReasonInhumanIntervals,
			severity: SeverityHigh,
		},
		{
			name:     "average gap under 30ms",
			history:  steady(1000, 25, 8),
			input:    key(1200, "a"),
			stats:    human,
			reason:   ReasonInhumanRhythm,
			severity: SeverityHigh,
		},
		{
			name:     "wpm above ceiling",
			history:  steady(1000, 150, 10),
			input:    key(2500, "a"),
			stats:    Stats{KeystrokeCount: 40, WPM: 260, Accuracy: 90},
			reason:   ReasonWPMExceeded,
			severity: SeverityHigh,
		},
		{
			name:     "perfect accuracy at speed",
			history:  steady(1000, 150, 10),
			input:    key(2500, "a"),
			stats:    Stats{KeystrokeCount: 40, WPM: 185, Accuracy: 100},
			reason:   ReasonSuspiciousAccuracy,
			severity: SeverityMedium,
		},
		{
			name:     "near perfect accuracy at high speed",
			history:  steady(1000, 150, 10),
			input:    key(2500, "a"),
			stats:    Stats{KeystrokeCount: 40, WPM: 205, Accuracy: 99.2},
			reason:   ReasonSuspiciousAccuracy,
			severity: SeverityMedium,
		},
		{
			name:    "fast but imperfect is fine",
			history: steady(1000, 150, 10),
			input:   key(2500, "a"),
			stats:   Stats{KeystrokeCount: 40, WPM: 205, Accuracy: 97},
			valid:   true,
		},
		{
			name:    "stats ignored below minimum sample",
			history: steady(1000, 150, 3),
			input:   key(1450, "a"),
			stats:   Stats{KeystrokeCount: 3, WPM: 400, Accuracy: 100},
			valid:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(DefaultThresholds, tt.history, tt.input, tt.stats)
			assert.Equal(t, tt.valid, got.Valid)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.severity, got.Severity)
		})
	}
}

func TestCheckDoesNotTouchHistory(t *testing.T) {
	history := steady(1000, 100, 5)
	snapshot := append([]int64(nil), history...)

	Check(DefaultThresholds, history, key(1600, "x"), Stats{})
	assert.Equal(t, snapshot, history)
}

func TestRecentIntervalsSkipsPauses(t *testing.T) {
	got := recentIntervals([]int64{0, 100, 9000}, 9050, DefaultThresholds.MaxGap)
	require.Len(t, got, 2)
	assert.EqualValues(t, 100_000_000, got[0])
	assert.EqualValues(t, 50_000_000, got[1])
}

func TestValidatorRecordsOnlyAcceptedInput(t *testing.T) {
	v := NewValidator(DefaultThresholds)

	require.True(t, v.Validate("p1", key(1000, "a"), Stats{}).Valid)
	require.True(t, v.Validate("p1", key(1200, "b"), Stats{}).Valid)
	require.False(t, v.Validate("p1", key(1100, "c"), Stats{}).Valid)

	assert.Equal(t, []int64{1000, 1200}, v.tracker.History("p1"))
	assert.Equal(t, 1, v.Tracked())

	v.Forget("p1")
	assert.Equal(t, 0, v.Tracked())
	assert.True(t, v.Validate("p1", key(10, "a"), Stats{}).Valid, "history is gone after Forget")
}

func TestTrackerIsBounded(t *testing.T) {
	tr := NewTracker(historySize)
	for i := int64(0); i < 50; i++ {
		tr.Record("p1", i)
	}
	h := tr.History("p1")
	require.Len(t, h, historySize)
	assert.Equal(t, int64(30), h[0])
	assert.Equal(t, int64(49), h[len(h)-1])
}
