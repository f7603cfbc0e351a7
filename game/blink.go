package game

import (
	"math"
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/rng"
)

const (
	blinkSequenceLength  = 100
	blinkCharTimeLimit   = 2000 * time.Millisecond
	blinkBaseScore       = 100
	blinkSpeedBonus      = 50
	blinkStreakThreshold = 3
	blinkStreakBonus     = 10
	blinkWrongKeyPenalty = 300 * time.Millisecond
	blinkMaxErrors       = 10
)

// blink shows one character at a time from a shared sequence. Each player
// races their own clock through it.
type blink struct {
	charset []rune
	speed   float64
}

type blinkShared struct {
	SequenceLength  int   `json:"sequenceLength"`
	CharTimeLimitMs int64 `json:"charTimeLimitMs"`
}

type blinkPlayer struct {
	CurrentIndex int    `json:"currentIndex"`
	CurrentChar  string `json:"currentChar,omitempty"`
	RemainingMs  *int64 `json:"remainingMs,omitempty"`
	Streak       int    `json:"streak"`
	BestStreak   int    `json:"bestStreak"`
	CorrectCount int    `json:"correctCount"`
	Timeouts     int    `json:"timeouts"`
	Completed    bool   `json:"completed"`
}

func (b *blink) Init(state *models.GameState, r *rng.RNG) error {
	sequence := make([]rune, blinkSequenceLength)
	for i := range sequence {
		sequence[i] = rng.Choice(r, b.charset)
	}
	state.Shared = &models.BlinkState{
		Sequence:      sequence,
		CharTimeLimit: scaleInterval(blinkCharTimeLimit, b.speed),
	}
	for _, p := range state.OrderedPlayers() {
		p.Data = &models.BlinkPlayerData{CharStartTime: state.ElapsedTime}
	}
	return nil
}

// window is how long the player has on their current character after
// wrong-key penalties.
func (b *blink) window(shared *models.BlinkState, data *models.BlinkPlayerData) time.Duration {
	return shared.CharTimeLimit - data.Penalty
}

func (b *blink) remaining(state *models.GameState, shared *models.BlinkState, data *models.BlinkPlayerData) time.Duration {
	return b.window(shared, data) - (state.ElapsedTime - data.CharStartTime)
}

// expire applies every timeout the player has run into by now.
func (b *blink) expire(state *models.GameState, shared *models.BlinkState, p *models.PlayerState) {
	data := p.Data.(*models.BlinkPlayerData)
	for !p.IsFinished && !data.Completed && b.remaining(state, shared, data) <= 0 {
		deadline := data.CharStartTime + max(b.window(shared, data), 0)
		data.Timeouts++
		data.Streak = 0
		recordMiss(state, p)
		b.advance(state, shared, p, deadline)
	}
}

func (b *blink) advance(state *models.GameState, shared *models.BlinkState, p *models.PlayerState, at time.Duration) {
	data := p.Data.(*models.BlinkPlayerData)
	data.CurrentIndex++
	data.CharStartTime = at
	data.Penalty = 0
	if data.CurrentIndex >= len(shared.Sequence) {
		data.Completed = true
		finishPlayer(state, p)
		return
	}
	if p.ErrorCount >= blinkMaxErrors {
		finishPlayer(state, p)
	}
}

func (b *blink) Update(state *models.GameState, _ *rng.RNG, _ time.Duration) {
	shared := state.Shared.(*models.BlinkState)
	for _, p := range state.OrderedPlayers() {
		b.expire(state, shared, p)
	}
}

func (b *blink) HandleKey(state *models.GameState, p *models.PlayerState, key string) {
	shared := state.Shared.(*models.BlinkState)
	b.expire(state, shared, p)
	if p.IsFinished {
		return
	}

	data := p.Data.(*models.BlinkPlayerData)
	if key != string(shared.Sequence[data.CurrentIndex]) {
		data.Streak = 0
		data.Penalty += blinkWrongKeyPenalty
		recordKeystroke(state, p, false)
		if p.ErrorCount >= blinkMaxErrors {
			finishPlayer(state, p)
		}
		return
	}

	remaining := b.remaining(state, shared, data)
	data.Streak++
	if data.Streak > data.BestStreak {
		data.BestStreak = data.Streak
	}
	data.CorrectCount++
	addScore(p, blinkPoints(remaining, shared.CharTimeLimit, data.Streak))
	recordKeystroke(state, p, true)
	b.advance(state, shared, p, state.ElapsedTime)
}

// blinkPoints scores a correct key: a base, a bonus for the share of the
// time limit left, and a bonus for each streak step past the threshold.
func blinkPoints(remaining, limit time.Duration, streak int) int {
	points := blinkBaseScore
	if remaining > 0 && limit > 0 {
		points += int(math.Floor(float64(remaining) / float64(limit) * blinkSpeedBonus))
	}
	if streak >= blinkStreakThreshold {
		points += blinkStreakBonus * (streak - blinkStreakThreshold + 1)
	}
	return points
}

func (b *blink) CheckWin(state *models.GameState) (bool, string) {
	if len(state.Players) == 0 {
		return false, ""
	}
	for _, p := range state.Players {
		if p.Data.(*models.BlinkPlayerData).Completed {
			return true, highestScorer(state)
		}
	}
	if state.AllFinished() {
		return true, highestScorer(state)
	}
	return false, ""
}

func (b *blink) RemovePlayer(*models.GameState, string) {}

func (b *blink) Level(*models.GameState) int { return 0 }

func (b *blink) ProjectShared(state *models.GameState, _ *models.PlayerState) any {
	shared := state.Shared.(*models.BlinkState)
	return blinkShared{
		SequenceLength:  len(shared.Sequence),
		CharTimeLimitMs: shared.CharTimeLimit.Milliseconds(),
	}
}

// ProjectPlayer only reveals the current character to its owner, and
// never anything past it.
func (b *blink) ProjectPlayer(state *models.GameState, p, viewer *models.PlayerState) any {
	shared := state.Shared.(*models.BlinkState)
	data := p.Data.(*models.BlinkPlayerData)
	out := blinkPlayer{
		CurrentIndex: data.CurrentIndex,
		Streak:       data.Streak,
		BestStreak:   data.BestStreak,
		CorrectCount: data.CorrectCount,
		Timeouts:     data.Timeouts,
		Completed:    data.Completed,
	}
	if viewer == p && !p.IsFinished && data.CurrentIndex < len(shared.Sequence) {
		out.CurrentChar = string(shared.Sequence[data.CurrentIndex])
		ms := b.remaining(state, shared, data).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		out.RemainingMs = &ms
	}
	return out
}
