package models

import "time"

// Block is a single falling character. Every player receives an identical
// copy at spawn time; copies then diverge as players destroy their own.
type Block struct {
	ID    int     `json:"id"`
	Char  string  `json:"char"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Speed float64 `json:"speed"`
}

type FallingBlocksPlayerData struct {
	Blocks          []Block
	BlocksDestroyed int
	BlocksMissed    int
}

type FallingBlocksState struct {
	Level            int
	NextBlockID      int
	SpawnInterval    time.Duration
	FallSpeed        float64
	SpawnAccumulator time.Duration
	NextLevelAt      time.Duration
	CharacterSet     []rune
}

// BlinkPlayerData tracks where a player is in the shared sequence. Each
// player is paced independently.
type BlinkPlayerData struct {
	CurrentIndex  int
	CharStartTime time.Duration
	// Penalty is time removed from the current character's window by wrong
	// keys. It resets whenever the player moves to the next character.
	Penalty      time.Duration
	Streak       int
	BestStreak   int
	CorrectCount int
	Timeouts     int
	Completed    bool
}

type BlinkState struct {
	Sequence      []rune
	CharTimeLimit time.Duration
}

// GridCell addresses one cell of the speed race grid.
type GridCell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type SpeedRacePlayerData struct {
	PathIndex int
	Position  GridCell
	Lives     int
	Mistakes  int
}

type SpeedRaceState struct {
	Width  int
	Height int
	Grid   [][]rune
	Path   []GridCell
}

// FallingWord is a word in the shared stream. Its position is the same for
// everyone; whether it is still "alive" is tracked per player.
type FallingWord struct {
	ID        int
	Text      string
	X         float64
	Y         float64
	Speed     float64
	SpawnedAt time.Duration
}

// WordOutcome records how a player resolved a word.
type WordOutcome string

const (
	WordCompleted WordOutcome = "completed"
	WordLost      WordOutcome = "lost"
)

type FallingWordsPlayerData struct {
	ActiveWordID   int
	TypedCount     int
	Resolved       map[int]WordOutcome
	WordsCompleted int
	WordsLost      int
}

type FallingWordsState struct {
	WordPool         []string
	PoolCursor       int
	Words            []FallingWord
	NextWordID       int
	SpawnInterval    time.Duration
	FallSpeed        float64
	SpawnAccumulator time.Duration
	Level            int
	NextLevelAt      time.Duration
	LostWordBudget   int
	ErrorBudget      int
}

func (*FallingBlocksPlayerData) isPlayerData() {}
func (*BlinkPlayerData) isPlayerData() {}
func (*SpeedRacePlayerData) isPlayerData() {}
func (*FallingWordsPlayerData) isPlayerData() {}

func (*FallingBlocksState) isSharedState() {}
func (*BlinkState) isSharedState() {}
func (*SpeedRaceState) isSharedState() {}
func (*FallingWordsState) isSharedState() {}
