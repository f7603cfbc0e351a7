package game

import (
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/rng"
)

// DefaultCharacterSet is used when a room does not choose its own.
const DefaultCharacterSet = "abcdefghijklmnopqrstuvwxyz"

// Variant holds the rules of one game type. The engine calls every method
// with its lock held, so implementations need no locking of their own and
// must not block.
type Variant interface {
	// Init seeds the shared state and gives each player its variant data.
	Init(state *models.GameState, r *rng.RNG) error
	// Update advances the simulation by dt.
	Update(state *models.GameState, r *rng.RNG, dt time.Duration)
	// HandleKey applies one validated single-character key from an
	// unfinished player.
	HandleKey(state *models.GameState, player *models.PlayerState, key string)
	// CheckWin reports whether the game is over and who won. An empty
	// winner is a draw.
	CheckWin(state *models.GameState) (ended bool, winnerID string)
	RemovePlayer(state *models.GameState, playerID string)
	// Level is the shared difficulty level, or 0 if the variant has none.
	Level(state *models.GameState) int
	// ProjectShared and ProjectPlayer build what viewer may see. viewer is
	// nil for spectators and archived snapshots.
	ProjectShared(state *models.GameState, viewer *models.PlayerState) any
	ProjectPlayer(state *models.GameState, player, viewer *models.PlayerState) any
}

// NewVariant returns the rules for gameType.
func NewVariant(gameType models.GameType, settings models.RoomSettings) (Variant, error) {
	charset := ParseCharacterSet(settings.CharacterSet)
	speed := difficultyFactor(settings.Difficulty)

	switch gameType {
	case models.GameTypeFallingBlocks:
		return &fallingBlocks{charset: charset, speed: speed}, nil
	case models.GameTypeBlink:
		return &blink{charset: charset, speed: speed}, nil
	case models.GameTypeSpeedRace:
		return &speedRace{charset: charset}, nil
	case models.GameTypeFallingWords:
		return &fallingWords{charset: charset, speed: speed}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, gameType)
	}
}

// ParseCharacterSet turns a room's character set setting into a list of
// distinct printable runes. Blank or unusable input falls back to
// DefaultCharacterSet.
func ParseCharacterSet(s string) []rune {
	seen := make(map[rune]bool)
	var out []rune
	for _, c := range s {
		if unicode.IsSpace(c) || !unicode.IsPrint(c) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return []rune(DefaultCharacterSet)
	}
	return out
}

// IsSingleCharacter reports whether key is exactly one printable,
// non-space character.
func IsSingleCharacter(key string) bool {
	if utf8.RuneCountInString(key) != 1 {
		return false
	}
	c, _ := utf8.DecodeRuneInString(key)
	return c != utf8.RuneError && unicode.IsPrint(c) && !unicode.IsSpace(c)
}

func difficultyFactor(d models.Difficulty) float64 {
	switch d {
	case models.DifficultyEasy:
		return 0.75
	case models.DifficultyHard:
		return 1.35
	default:
		return 1
	}
}

func scaleInterval(base time.Duration, factor float64) time.Duration {
	return time.Duration(float64(base) / factor)
}

// recordKeystroke counts one key press and refreshes the player's
// derived stats.
func recordKeystroke(state *models.GameState, p *models.PlayerState, correct bool) {
	p.KeystrokeCount++
	if correct {
		p.CorrectKeystrokes++
	} else {
		p.ErrorCount++
	}
	refreshStats(state, p)
}

// recordMiss counts an error that did not come from a key press, such as a
// block hitting the floor.
func recordMiss(state *models.GameState, p *models.PlayerState) {
	p.ErrorCount++
	refreshStats(state, p)
}

func refreshStats(state *models.GameState, p *models.PlayerState) {
	if p.KeystrokeCount > 0 {
		p.Accuracy = float64(p.CorrectKeystrokes) / float64(p.KeystrokeCount) * 100
	}
	p.CurrentWPM = NetWPM(p.KeystrokeCount, p.ErrorCount, state.ElapsedTime)
}

// NetWPM is gross WPM (five keystrokes per word) minus errors per minute,
// floored at zero.
func NetWPM(keystrokes, errs int, elapsed time.Duration) float64 {
	minutes := elapsed.Minutes()
	if minutes <= 0 {
		return 0
	}
	gross := float64(keystrokes) / 5 / minutes
	net := gross - float64(errs)/minutes
	if net < 0 {
		return 0
	}
	return net
}

func finishPlayer(state *models.GameState, p *models.PlayerState) {
	if p.IsFinished {
		return
	}
	p.IsFinished = true
	at := state.CurrentTime
	p.FinishedAt = &at
}

func addScore(p *models.PlayerState, delta int) {
	p.Score += delta
	if p.Score < 0 {
		p.Score = 0
	}
}
