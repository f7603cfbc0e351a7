package game

import (
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/rng"
)

const (
	fbBaseSpawnInterval = 2000 * time.Millisecond
	fbMinSpawnInterval  = 600 * time.Millisecond
	fbSpawnIntervalStep = 150 * time.Millisecond
	fbBaseFallSpeed     = 10.0
	fbFallSpeedStep     = 2.0
	fbLevelDuration     = 30 * time.Second

	fbHitScore      = 10
	fbEarlyHitScore = 15
	fbEarlyHitLine  = 20.0
	fbMissPenalty   = 10
	fbFloor         = 100.0
	fbMaxErrors     = 10
)

// fallingBlocks drops single characters that every player must type before
// they reach the floor. All players get the same blocks; each destroys
// their own copies.
type fallingBlocks struct {
	charset []rune
	speed   float64
}

type fallingBlocksShared struct {
	Level           int     `json:"level"`
	SpawnIntervalMs int64   `json:"spawnIntervalMs"`
	FallSpeed       float64 `json:"fallSpeed"`
}

type fallingBlocksPlayer struct {
	Blocks          []models.Block `json:"blocks"`
	BlocksDestroyed int            `json:"blocksDestroyed"`
	BlocksMissed    int            `json:"blocksMissed"`
}

func (fb *fallingBlocks) Init(state *models.GameState, r *rng.RNG) error {
	interval := scaleInterval(fbBaseSpawnInterval, fb.speed)
	if interval < fbMinSpawnInterval {
		interval = fbMinSpawnInterval
	}
	shared := &models.FallingBlocksState{
		Level:         1,
		NextBlockID:   1,
		SpawnInterval: interval,
		FallSpeed:     fbBaseFallSpeed * fb.speed,
		NextLevelAt:   fbLevelDuration,
		CharacterSet:  fb.charset,
	}
	state.Shared = shared
	for _, p := range state.OrderedPlayers() {
		p.Data = &models.FallingBlocksPlayerData{Blocks: []models.Block{}}
	}
	fb.spawn(state, shared, r)
	return nil
}

func (fb *fallingBlocks) Update(state *models.GameState, r *rng.RNG, dt time.Duration) {
	shared := state.Shared.(*models.FallingBlocksState)

	for state.ElapsedTime >= shared.NextLevelAt {
		shared.Level++
		shared.NextLevelAt += fbLevelDuration
		shared.FallSpeed += fbFallSpeedStep
		shared.SpawnInterval -= fbSpawnIntervalStep
		if shared.SpawnInterval < fbMinSpawnInterval {
			shared.SpawnInterval = fbMinSpawnInterval
		}
	}

	shared.SpawnAccumulator += dt
	for shared.SpawnAccumulator >= shared.SpawnInterval {
		shared.SpawnAccumulator -= shared.SpawnInterval
		fb.spawn(state, shared, r)
	}

	seconds := dt.Seconds()
	for _, p := range state.OrderedPlayers() {
		if p.IsFinished {
			continue
		}
		data := p.Data.(*models.FallingBlocksPlayerData)
		kept := data.Blocks[:0]
		for _, b := range data.Blocks {
			b.Y += b.Speed * seconds
			if b.Y >= fbFloor {
				data.BlocksMissed++
				addScore(p, -fbMissPenalty)
				recordMiss(state, p)
				continue
			}
			kept = append(kept, b)
		}
		data.Blocks = kept
		if p.ErrorCount >= fbMaxErrors {
			finishPlayer(state, p)
		}
	}
}

// spawn draws one block and hands an identical copy to every player still
// playing. The draws do not depend on how many players there are.
func (fb *fallingBlocks) spawn(state *models.GameState, shared *models.FallingBlocksState, r *rng.RNG) {
	block := models.Block{
		ID:    shared.NextBlockID,
		Char:  string(rng.Choice(r, shared.CharacterSet)),
		X:     r.NextFloat(5, 95),
		Speed: shared.FallSpeed * r.NextFloat(0.8, 1.2),
	}
	shared.NextBlockID++

	for _, p := range state.OrderedPlayers() {
		if p.IsFinished {
			continue
		}
		data := p.Data.(*models.FallingBlocksPlayerData)
		data.Blocks = append(data.Blocks, block)
	}
}

func (fb *fallingBlocks) HandleKey(state *models.GameState, p *models.PlayerState, key string) {
	data := p.Data.(*models.FallingBlocksPlayerData)

	target := -1
	for i, b := range data.Blocks {
		if b.Char == key && (target < 0 || b.Y > data.Blocks[target].Y) {
			target = i
		}
	}
	if target < 0 {
		recordKeystroke(state, p, false)
	} else {
		hit := data.Blocks[target]
		data.Blocks = append(data.Blocks[:target], data.Blocks[target+1:]...)
		data.BlocksDestroyed++
		if hit.Y < fbEarlyHitLine {
			addScore(p, fbEarlyHitScore)
		} else {
			addScore(p, fbHitScore)
		}
		recordKeystroke(state, p, true)
	}

	if p.ErrorCount >= fbMaxErrors {
		finishPlayer(state, p)
	}
}

func (fb *fallingBlocks) CheckWin(state *models.GameState) (bool, string) {
	if len(state.Players) == 0 || !state.AllFinished() {
		return false, ""
	}
	return true, highestScorer(state)
}

func (fb *fallingBlocks) RemovePlayer(*models.GameState, string) {}

func (fb *fallingBlocks) Level(state *models.GameState) int {
	return state.Shared.(*models.FallingBlocksState).Level
}

func (fb *fallingBlocks) ProjectShared(state *models.GameState, _ *models.PlayerState) any {
	shared := state.Shared.(*models.FallingBlocksState)
	return fallingBlocksShared{
		Level:           shared.Level,
		SpawnIntervalMs: shared.SpawnInterval.Milliseconds(),
		FallSpeed:       shared.FallSpeed,
	}
}

func (fb *fallingBlocks) ProjectPlayer(_ *models.GameState, p, _ *models.PlayerState) any {
	data := p.Data.(*models.FallingBlocksPlayerData)
	blocks := make([]models.Block, len(data.Blocks))
	copy(blocks, data.Blocks)
	return fallingBlocksPlayer{
		Blocks:          blocks,
		BlocksDestroyed: data.BlocksDestroyed,
		BlocksMissed:    data.BlocksMissed,
	}
}
