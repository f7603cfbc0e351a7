package game

import (
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/rng"
)

const (
	srGridWidth   = 22
	srGridHeight  = 10
	srMaxVertical = 3
	srStartLives  = 5
	srStepScore   = 10
)

// speedRace lays a winding path across a grid of characters. Typing the
// character of the next cell moves a player along it; the first to reach
// the right edge wins.
type speedRace struct {
	charset []rune
}

type speedRaceShared struct {
	Width  int               `json:"width"`
	Height int               `json:"height"`
	Grid   [][]string        `json:"grid"`
	Path   []models.GridCell `json:"path"`
}

type speedRacePlayer struct {
	PathIndex int             `json:"pathIndex"`
	Position  models.GridCell `json:"position"`
	Lives     int             `json:"lives"`
	Mistakes  int             `json:"mistakes"`
	NextChar  string          `json:"nextChar,omitempty"`
}

func (sr *speedRace) Init(state *models.GameState, r *rng.RNG) error {
	grid := make([][]rune, srGridHeight)
	for row := range grid {
		grid[row] = make([]rune, srGridWidth)
		for col := range grid[row] {
			grid[row][col] = rng.Choice(r, sr.charset)
		}
	}
	shared := &models.SpeedRaceState{
		Width:  srGridWidth,
		Height: srGridHeight,
		Grid:   grid,
		Path:   generatePath(r, srGridWidth, srGridHeight),
	}
	state.Shared = shared
	for _, p := range state.OrderedPlayers() {
		p.Data = &models.SpeedRacePlayerData{
			Position: shared.Path[0],
			Lives:    srStartLives,
		}
	}
	return nil
}

// generatePath walks from a random cell in the first column to the last
// column. In each column it wanders up or down a few cells, then steps
// right, so no cell is visited twice.
func generatePath(r *rng.RNG, width, height int) []models.GridCell {
	row := r.NextInt(0, height-1)
	path := []models.GridCell{{Row: row, Col: 0}}

	for col := 0; col < width-1; col++ {
		target := row + r.NextInt(-srMaxVertical, srMaxVertical)
		if target < 0 {
			target = 0
		} else if target > height-1 {
			target = height - 1
		}
		for row != target {
			if target > row {
				row++
			} else {
				row--
			}
			path = append(path, models.GridCell{Row: row, Col: col})
		}
		path = append(path, models.GridCell{Row: row, Col: col + 1})
	}
	return path
}

func (sr *speedRace) Update(*models.GameState, *rng.RNG, time.Duration) {}

func (sr *speedRace) HandleKey(state *models.GameState, p *models.PlayerState, key string) {
	shared := state.Shared.(*models.SpeedRaceState)
	data := p.Data.(*models.SpeedRacePlayerData)
	if data.PathIndex >= len(shared.Path)-1 {
		return
	}

	next := shared.Path[data.PathIndex+1]
	if key == string(shared.Grid[next.Row][next.Col]) {
		data.PathIndex++
		data.Position = next
		addScore(p, srStepScore)
		recordKeystroke(state, p, true)
		if data.PathIndex == len(shared.Path)-1 {
			finishPlayer(state, p)
		}
		return
	}

	data.Lives--
	data.Mistakes++
	recordKeystroke(state, p, false)
	if data.Lives <= 0 {
		data.Lives = 0
		finishPlayer(state, p)
	}
}

// CheckWin ends the game as soon as anyone reaches the end of the path.
// If everyone runs out of lives instead, the furthest score wins.
func (sr *speedRace) CheckWin(state *models.GameState) (bool, string) {
	shared := state.Shared.(*models.SpeedRaceState)
	if len(state.Players) == 0 {
		return false, ""
	}

	var first *models.PlayerState
	for _, p := range state.OrderedPlayers() {
		data := p.Data.(*models.SpeedRacePlayerData)
		if data.PathIndex < len(shared.Path)-1 || p.FinishedAt == nil {
			continue
		}
		if first == nil || p.FinishedAt.Before(*first.FinishedAt) {
			first = p
		}
	}
	if first != nil {
		return true, first.PlayerID
	}
	if state.AllFinished() {
		return true, highestScorer(state)
	}
	return false, ""
}

func (sr *speedRace) RemovePlayer(*models.GameState, string) {}

func (sr *speedRace) Level(*models.GameState) int { return 0 }

func (sr *speedRace) ProjectShared(state *models.GameState, _ *models.PlayerState) any {
	shared := state.Shared.(*models.SpeedRaceState)
	grid := make([][]string, len(shared.Grid))
	for i, row := range shared.Grid {
		grid[i] = make([]string, len(row))
		for j, c := range row {
			grid[i][j] = string(c)
		}
	}
	path := make([]models.GridCell, len(shared.Path))
	copy(path, shared.Path)
	return speedRaceShared{
		Width:  shared.Width,
		Height: shared.Height,
		Grid:   grid,
		Path:   path,
	}
}

func (sr *speedRace) ProjectPlayer(state *models.GameState, p, viewer *models.PlayerState) any {
	shared := state.Shared.(*models.SpeedRaceState)
	data := p.Data.(*models.SpeedRacePlayerData)
	out := speedRacePlayer{
		PathIndex: data.PathIndex,
		Position:  data.Position,
		Lives:     data.Lives,
		Mistakes:  data.Mistakes,
	}
	if viewer == p && data.PathIndex < len(shared.Path)-1 {
		next := shared.Path[data.PathIndex+1]
		out.NextChar = string(shared.Grid[next.Row][next.Col])
	}
	return out
}
