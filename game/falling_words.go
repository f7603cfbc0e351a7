package game

import (
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/rng"
)

const (
	fwBaseSpawnInterval = 3000 * time.Millisecond
	fwMinSpawnInterval  = 1000 * time.Millisecond
	fwSpawnIntervalStep = 250 * time.Millisecond
	fwBaseFallSpeed     = 6.0
	fwFallSpeedStep     = 1.0
	fwLevelDuration     = 30 * time.Second
	fwFloor             = 100.0

	fwLetterScore    = 10
	fwLostWordBudget = 5
	fwErrorBudget    = 10
)

// fallingWords drops whole words from a shared stream. A player claims a
// word by typing its first letter and must then finish it in order. Each
// player resolves each word independently.
type fallingWords struct {
	charset []rune
	speed   float64
}

type fallingWordView struct {
	ID   int     `json:"id"`
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type fallingWordsShared struct {
	Level          int               `json:"level"`
	Words          []fallingWordView `json:"words"`
	LostWordBudget int               `json:"lostWordBudget"`
	ErrorBudget    int               `json:"errorBudget"`
}

type fallingWordsPlayer struct {
	ActiveWordID   int `json:"activeWordId,omitempty"`
	TypedCount     int `json:"typedCount"`
	WordsCompleted int `json:"wordsCompleted"`
	WordsLost      int `json:"wordsLost"`
}

func (fw *fallingWords) Init(state *models.GameState, r *rng.RNG) error {
	interval := scaleInterval(fwBaseSpawnInterval, fw.speed)
	if interval < fwMinSpawnInterval {
		interval = fwMinSpawnInterval
	}
	shared := &models.FallingWordsState{
		WordPool:       buildWordPool(r, fw.charset),
		Words:          []models.FallingWord{},
		NextWordID:     1,
		SpawnInterval:  interval,
		FallSpeed:      fwBaseFallSpeed * fw.speed,
		Level:          1,
		NextLevelAt:    fwLevelDuration,
		LostWordBudget: fwLostWordBudget,
		ErrorBudget:    fwErrorBudget,
	}
	state.Shared = shared
	for _, p := range state.OrderedPlayers() {
		p.Data = &models.FallingWordsPlayerData{Resolved: make(map[int]models.WordOutcome)}
	}
	fw.spawn(state, shared, r)
	return nil
}

func (fw *fallingWords) spawn(state *models.GameState, shared *models.FallingWordsState, r *rng.RNG) {
	text := shared.WordPool[shared.PoolCursor%len(shared.WordPool)]
	shared.PoolCursor++
	shared.Words = append(shared.Words, models.FallingWord{
		ID:        shared.NextWordID,
		Text:      text,
		X:         r.NextFloat(5, 85),
		Speed:     shared.FallSpeed * r.NextFloat(0.85, 1.15),
		SpawnedAt: state.ElapsedTime,
	})
	shared.NextWordID++
}

func (fw *fallingWords) Update(state *models.GameState, r *rng.RNG, dt time.Duration) {
	shared := state.Shared.(*models.FallingWordsState)

	for state.ElapsedTime >= shared.NextLevelAt {
		shared.Level++
		shared.NextLevelAt += fwLevelDuration
		shared.FallSpeed += fwFallSpeedStep
		shared.SpawnInterval -= fwSpawnIntervalStep
		if shared.SpawnInterval < fwMinSpawnInterval {
			shared.SpawnInterval = fwMinSpawnInterval
		}
	}

	shared.SpawnAccumulator += dt
	for shared.SpawnAccumulator >= shared.SpawnInterval {
		shared.SpawnAccumulator -= shared.SpawnInterval
		fw.spawn(state, shared, r)
	}

	seconds := dt.Seconds()
	for i := range shared.Words {
		w := &shared.Words[i]
		w.Y += w.Speed * seconds
		if w.Y < fwFloor {
			continue
		}
		for _, p := range state.OrderedPlayers() {
			fw.loseWord(state, p, w.ID)
		}
	}
	fw.prune(state, shared)
}

// loseWord marks a word lost for a player who has not resolved it yet.
func (fw *fallingWords) loseWord(state *models.GameState, p *models.PlayerState, wordID int) {
	data := p.Data.(*models.FallingWordsPlayerData)
	if p.IsFinished {
		return
	}
	if _, done := data.Resolved[wordID]; done {
		return
	}
	data.Resolved[wordID] = models.WordLost
	data.WordsLost++
	if data.ActiveWordID == wordID {
		data.ActiveWordID = 0
		data.TypedCount = 0
	}
	if data.WordsLost >= fwLostWordBudget {
		finishPlayer(state, p)
	}
}

// prune drops words every remaining player is done with. Finished players
// no longer hold words on screen.
func (fw *fallingWords) prune(state *models.GameState, shared *models.FallingWordsState) {
	kept := shared.Words[:0]
	for _, w := range shared.Words {
		if !fw.resolvedByAll(state, w.ID) {
			kept = append(kept, w)
		}
	}
	shared.Words = kept
}

func (fw *fallingWords) resolvedByAll(state *models.GameState, wordID int) bool {
	for _, p := range state.Players {
		if p.IsFinished {
			continue
		}
		if _, done := p.Data.(*models.FallingWordsPlayerData).Resolved[wordID]; !done {
			return false
		}
	}
	return true
}

func (fw *fallingWords) findWord(shared *models.FallingWordsState, id int) *models.FallingWord {
	for i := range shared.Words {
		if shared.Words[i].ID == id {
			return &shared.Words[i]
		}
	}
	return nil
}

func (fw *fallingWords) HandleKey(state *models.GameState, p *models.PlayerState, key string) {
	shared := state.Shared.(*models.FallingWordsState)
	data := p.Data.(*models.FallingWordsPlayerData)

	var active *models.FallingWord
	if data.ActiveWordID != 0 {
		active = fw.findWord(shared, data.ActiveWordID)
		if active == nil {
			data.ActiveWordID = 0
			data.TypedCount = 0
		}
	}

	if active == nil {
		claimed := fw.claim(shared, data, key)
		if claimed == nil {
			recordKeystroke(state, p, false)
		} else {
			data.ActiveWordID = claimed.ID
			data.TypedCount = 1
			recordKeystroke(state, p, true)
			fw.completeIfDone(state, shared, p, claimed)
		}
	} else {
		text := []rune(active.Text)
		if key == string(text[data.TypedCount]) {
			data.TypedCount++
			recordKeystroke(state, p, true)
			fw.completeIfDone(state, shared, p, active)
		} else {
			recordKeystroke(state, p, false)
		}
	}

	if p.ErrorCount >= fwErrorBudget {
		finishPlayer(state, p)
	}
	fw.prune(state, shared)
}

// claim picks the lowest unresolved word starting with key. Ties go to the
// older word.
func (fw *fallingWords) claim(shared *models.FallingWordsState, data *models.FallingWordsPlayerData, key string) *models.FallingWord {
	var best *models.FallingWord
	for i := range shared.Words {
		w := &shared.Words[i]
		if _, done := data.Resolved[w.ID]; done {
			continue
		}
		if string([]rune(w.Text)[0]) != key {
			continue
		}
		if best == nil || w.Y > best.Y {
			best = w
		}
	}
	return best
}

func (fw *fallingWords) completeIfDone(state *models.GameState, shared *models.FallingWordsState, p *models.PlayerState, w *models.FallingWord) {
	data := p.Data.(*models.FallingWordsPlayerData)
	length := len([]rune(w.Text))
	if data.TypedCount < length {
		return
	}
	addScore(p, length*fwLetterScore)
	data.WordsCompleted++
	data.Resolved[w.ID] = models.WordCompleted
	data.ActiveWordID = 0
	data.TypedCount = 0
}

// CheckWin ends a multiplayer game when one player is left standing, who
// wins regardless of score. Otherwise the game ends when everyone is
// finished and the highest score wins.
func (fw *fallingWords) CheckWin(state *models.GameState) (bool, string) {
	if len(state.Players) == 0 {
		return false, ""
	}
	var standing []*models.PlayerState
	for _, p := range state.OrderedPlayers() {
		if !p.IsFinished {
			standing = append(standing, p)
		}
	}
	switch {
	case len(standing) == 0:
		return true, highestScorer(state)
	case len(standing) == 1 && len(state.Players) > 1:
		return true, standing[0].PlayerID
	default:
		return false, ""
	}
}

func (fw *fallingWords) RemovePlayer(state *models.GameState, _ string) {
	if shared, ok := state.Shared.(*models.FallingWordsState); ok {
		fw.prune(state, shared)
	}
}

func (fw *fallingWords) Level(state *models.GameState) int {
	return state.Shared.(*models.FallingWordsState).Level
}

// ProjectShared lists the words on screen. A viewer does not see words
// they have already resolved; the pool itself is never sent.
func (fw *fallingWords) ProjectShared(state *models.GameState, viewer *models.PlayerState) any {
	shared := state.Shared.(*models.FallingWordsState)
	var resolved map[int]models.WordOutcome
	if viewer != nil {
		resolved = viewer.Data.(*models.FallingWordsPlayerData).Resolved
	}

	words := make([]fallingWordView, 0, len(shared.Words))
	for _, w := range shared.Words {
		if _, done := resolved[w.ID]; done {
			continue
		}
		words = append(words, fallingWordView{ID: w.ID, Text: w.Text, X: w.X, Y: w.Y})
	}
	return fallingWordsShared{
		Level:          shared.Level,
		Words:          words,
		LostWordBudget: shared.LostWordBudget,
		ErrorBudget:    shared.ErrorBudget,
	}
}

func (fw *fallingWords) ProjectPlayer(_ *models.GameState, p, _ *models.PlayerState) any {
	data := p.Data.(*models.FallingWordsPlayerData)
	return fallingWordsPlayer{
		ActiveWordID:   data.ActiveWordID,
		TypedCount:     data.TypedCount,
		WordsCompleted: data.WordsCompleted,
		WordsLost:      data.WordsLost,
	}
}
