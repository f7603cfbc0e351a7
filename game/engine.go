// Package game runs the per-room typing game simulation. An Engine owns a
// GameState, a seeded RNG and one rule Variant, and drives them through
// waiting -> countdown -> playing -> finished.
package game

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/logger"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/rng"
	"github.com/rs/zerolog"
)

const (
	DefaultTickRate         = 60
	DefaultCountdownSeconds = 3
	// maxTickFailures consecutive panicking ticks end the game.
	maxTickFailures = 5
)

var (
	ErrGameNotWaiting = errors.New("game is not waiting to start")
	ErrGameStopped    = errors.New("game has been stopped")
	ErrNoPlayers      = errors.New("game has no players")
	ErrUnknownGame    = errors.New("unknown game type")
)

// Input rejection reasons. They are sent to clients verbatim.
const (
	RejectGameNotActive  = "game_not_active"
	RejectPlayerNotFound = "player_not_found"
	RejectPlayerFinished = "player_finished"
	RejectInvalidInput   = "invalid_input"
	RejectInternal       = "internal_error"
)

// PlayerInfo identifies a player when the engine is created.
type PlayerInfo struct {
	PlayerID    string
	DisplayName string
}

// Listener receives engine events. Calls are never made while the engine
// lock is held, so a listener may call back into the engine.
type Listener interface {
	OnCountdown(roomID string, remaining int)
	OnStarted(roomID string)
	OnStartFailed(roomID string, err error)
	OnPlayerUpdate(roomID string, playerID string)
	OnEnded(result Result)
}

// Result is the final outcome of a game.
type Result struct {
	RoomID    string
	GameType  models.GameType
	Seed      uint32
	Reason    models.EndReason
	WinnerID  string
	StartTime time.Time
	EndTime   time.Time
	Standings []models.SessionPlayer
	Final     SerializedState
}

// InputResult reports whether an input was applied.
type InputResult struct {
	Accepted bool
	Reason   string
	Player   *SerializedPlayer
}

type Config struct {
	RoomID           string
	GameType         models.GameType
	Seed             uint32
	Settings         models.RoomSettings
	Players          []PlayerInfo
	Listener         Listener
	TickRate         int
	// CountdownSeconds defaults to 3. A negative value skips the countdown.
	CountdownSeconds int
	// Now defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	mu       sync.Mutex
	state    *models.GameState
	variant  Variant
	rng      *rng.RNG
	listener Listener
	now      func() time.Time
	log      zerolog.Logger

	tickInterval  time.Duration
	countdown     int
	countdownStep time.Duration
	timeLimit     time.Duration
	lastTick      time.Time
	tickFailures  int

	stopped  bool
	quit     chan struct{}
	quitOnce sync.Once
	pending  []func()
}

// New builds an engine in the waiting state. Nothing runs until Start or
// StartImmediate is called.
func New(cfg Config) (*Engine, error) {
	variant, err := NewVariant(cfg.GameType, cfg.Settings)
	if err != nil {
		return nil, err
	}
	if len(cfg.Players) == 0 {
		return nil, ErrNoPlayers
	}

	tickRate := cfg.TickRate
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	countdown := cfg.CountdownSeconds
	if countdown < 0 {
		countdown = 0
	} else if countdown == 0 {
		countdown = DefaultCountdownSeconds
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	state := &models.GameState{
		RoomID:   cfg.RoomID,
		GameType: cfg.GameType,
		Status:   models.GameStatusWaiting,
		Seed:     cfg.Seed,
		Players:  make(map[string]*models.PlayerState, len(cfg.Players)),
	}
	for _, p := range cfg.Players {
		if _, dup := state.Players[p.PlayerID]; dup {
			continue
		}
		state.Players[p.PlayerID] = &models.PlayerState{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			IsConnected: true,
			Level:       1,
			Accuracy:    100,
		}
		state.PlayerOrder = append(state.PlayerOrder, p.PlayerID)
	}

	return &Engine{
		state:         state,
		variant:       variant,
		rng:           rng.New(cfg.Seed),
		listener:      cfg.Listener,
		now:           now,
		log:           logger.Component("engine").With().Str("roomId", cfg.RoomID).Str("gameType", string(cfg.GameType)).Logger(),
		tickInterval:  time.Second / time.Duration(tickRate),
		countdown:     countdown,
		countdownStep: time.Second,
		timeLimit:     time.Duration(cfg.Settings.TimeLimitSeconds) * time.Second,
		quit:          make(chan struct{}),
	}, nil
}

func (e *Engine) RoomID() string {
	return e.state.RoomID
}

// Status returns the current state machine status.
func (e *Engine) Status() models.GameStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Status
}

// PlayerCount returns how many players are still in the game.
func (e *Engine) PlayerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.state.Players)
}

// PlayerIDs lists the players still in the game, in join order.
func (e *Engine) PlayerIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.state.PlayerOrder...)
}

// PlayerView returns one player as viewerID is allowed to see them.
func (e *Engine) PlayerView(playerID, viewerID string) (SerializedPlayer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.state.Players[playerID]
	if !ok {
		return SerializedPlayer{}, false
	}
	return serializePlayer(e.state, e.variant, p, e.state.Players[viewerID]), true
}

// Start runs the countdown in the background and then starts the game.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrGameStopped
	}
	if e.state.Status != models.GameStatusWaiting {
		e.mu.Unlock()
		return ErrGameNotWaiting
	}
	e.state.Status = models.GameStatusCountdown
	e.mu.Unlock()

	go e.runCountdown()
	return nil
}

func (e *Engine) runCountdown() {
	for remaining := e.countdown; remaining > 0; remaining-- {
		if e.isStopped() {
			return
		}
		if e.listener != nil {
			e.listener.OnCountdown(e.state.RoomID, remaining)
		}
		timer := time.NewTimer(e.countdownStep)
		select {
		case <-timer.C:
		case <-e.quit:
			timer.Stop()
			return
		}
	}

	if err := e.StartImmediate(); err != nil {
		if errors.Is(err, ErrGameStopped) {
			return
		}
		e.mu.Lock()
		if e.state.Status == models.GameStatusCountdown {
			e.state.Status = models.GameStatusWaiting
		}
		e.mu.Unlock()
		e.log.Error().Err(err).Msg("game failed to start after countdown")
		if e.listener != nil {
			e.listener.OnStartFailed(e.state.RoomID, err)
		}
	}
}

// StartImmediate skips the countdown, runs the variant's start hook and
// begins ticking.
func (e *Engine) StartImmediate() error {
	e.mu.Lock()
	err := e.begin(e.now())
	e.mu.Unlock()
	e.flush()
	if err != nil {
		return err
	}

	go e.loop()
	return nil
}

// begin must be called with e.mu held.
func (e *Engine) begin(now time.Time) error {
	if e.stopped {
		return ErrGameStopped
	}
	if e.state.Status != models.GameStatusWaiting && e.state.Status != models.GameStatusCountdown {
		return ErrGameNotWaiting
	}
	if len(e.state.Players) == 0 {
		return ErrNoPlayers
	}

	e.state.StartTime = now
	e.state.CurrentTime = now
	e.state.ElapsedTime = 0
	e.lastTick = now
	if err := e.variant.Init(e.state, e.rng); err != nil {
		e.state.Status = models.GameStatusWaiting
		return fmt.Errorf("initializing %s: %w", e.state.GameType, err)
	}
	e.state.Status = models.GameStatusPlaying

	roomID := e.state.RoomID
	e.emit(func() {
		if e.listener != nil {
			e.listener.OnStarted(roomID)
		}
	})
	e.log.Info().Int("players", len(e.state.Players)).Msg("game started")
	return nil
}

func (e *Engine) loop() {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case <-ticker.C:
			e.tick(e.now())
		}
	}
}

// tick runs one simulation step. A panicking variant is contained here so
// it can only ever take down its own room.
func (e *Engine) tick(now time.Time) {
	e.mu.Lock()
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.tickFailures++
				e.log.Error().Interface("panic", r).Int("failures", e.tickFailures).Msg("tick panicked")
				if e.tickFailures >= maxTickFailures {
					e.endGame(models.EndReasonError, "")
				}
			}
		}()
		e.step(now)
		e.tickFailures = 0
	}()
	e.mu.Unlock()
	e.flush()
}

func (e *Engine) step(now time.Time) {
	if e.stopped || e.state.Status != models.GameStatusPlaying {
		return
	}

	dt := now.Sub(e.lastTick)
	if dt < 0 {
		dt = 0
	}
	e.lastTick = now
	e.advanceClock(now)

	e.variant.Update(e.state, e.rng, dt)
	e.syncPlayerLevels()

	if e.timeLimit > 0 && e.state.ElapsedTime >= e.timeLimit {
		e.endGame(models.EndReasonTimeLimit, highestScorer(e.state))
		return
	}
	e.checkWin()
}

func (e *Engine) advanceClock(now time.Time) {
	e.state.CurrentTime = now
	elapsed := now.Sub(e.state.StartTime)
	if elapsed > e.state.ElapsedTime {
		e.state.ElapsedTime = elapsed
	}
}

func (e *Engine) checkWin() {
	if ended, winner := e.variant.CheckWin(e.state); ended {
		e.endGame(models.EndReasonCompleted, winner)
	}
}

func (e *Engine) syncPlayerLevels() {
	level := e.variant.Level(e.state)
	if level <= 0 {
		return
	}
	for _, p := range e.state.Players {
		p.Level = level
	}
}

// HandleInput applies one keystroke. Rejections are returned, never
// panicked or logged as errors.
func (e *Engine) HandleInput(playerID string, input models.InputEvent) (result InputResult) {
	e.mu.Lock()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("playerId", playerID).Msg("input handling panicked")
			result = InputResult{Reason: RejectInternal}
		}
		e.mu.Unlock()
		e.flush()
	}()

	if e.stopped || e.state.Status != models.GameStatusPlaying {
		return InputResult{Reason: RejectGameNotActive}
	}
	player, ok := e.state.Players[playerID]
	if !ok {
		return InputResult{Reason: RejectPlayerNotFound}
	}
	if player.IsFinished {
		return InputResult{Reason: RejectPlayerFinished}
	}
	if input.InputType != models.InputTypeKeystroke || !IsSingleCharacter(input.Data.Key) {
		return InputResult{Reason: RejectInvalidInput}
	}

	e.advanceClock(e.now())
	e.variant.HandleKey(e.state, player, input.Data.Key)

	roomID := e.state.RoomID
	e.emit(func() {
		if e.listener != nil {
			e.listener.OnPlayerUpdate(roomID, playerID)
		}
	})
	e.checkWin()

	serialized := serializePlayer(e.state, e.variant, player, player)
	return InputResult{Accepted: true, Player: &serialized}
}

// RemovePlayer drops a player from a running or waiting game. The game
// carries on for everyone else and is abandoned once nobody is left. It
// returns the number of remaining players.
func (e *Engine) RemovePlayer(playerID string) int {
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		e.flush()
	}()

	if _, ok := e.state.Players[playerID]; !ok {
		return len(e.state.Players)
	}
	delete(e.state.Players, playerID)
	order := e.state.PlayerOrder[:0]
	for _, id := range e.state.PlayerOrder {
		if id != playerID {
			order = append(order, id)
		}
	}
	e.state.PlayerOrder = order
	e.variant.RemovePlayer(e.state, playerID)

	remaining := len(e.state.Players)
	if e.state.Status == models.GameStatusPlaying {
		if remaining == 0 {
			e.endGame(models.EndReasonAbandoned, "")
		} else {
			e.checkWin()
		}
	}
	return remaining
}

// EndGame finishes the game. Calling it on a finished game does nothing.
func (e *Engine) EndGame(reason models.EndReason, winnerID string) {
	e.mu.Lock()
	e.endGame(reason, winnerID)
	e.mu.Unlock()
	e.flush()
}

// endGame must be called with e.mu held.
func (e *Engine) endGame(reason models.EndReason, winnerID string) {
	if e.state.Status == models.GameStatusFinished {
		return
	}
	wasPlaying := e.state.Status == models.GameStatusPlaying
	e.stopLoop()

	now := e.now()
	e.state.Status = models.GameStatusFinished
	e.state.EndTime = &now
	e.state.CurrentTime = now

	if !wasPlaying {
		return
	}

	result := Result{
		RoomID:    e.state.RoomID,
		GameType:  e.state.GameType,
		Seed:      e.state.Seed,
		Reason:    reason,
		WinnerID:  winnerID,
		StartTime: e.state.StartTime,
		EndTime:   now,
		Standings: standings(e.state),
		Final:     serialize(e.state, e.variant, ""),
	}
	e.log.Info().Str("reason", string(reason)).Str("winner", winnerID).Msg("game ended")
	e.emit(func() {
		if e.listener != nil {
			e.listener.OnEnded(result)
		}
	})
}

// Stop tears the engine down. It is safe to call any number of times, from
// any goroutine, including from inside a listener callback. Once Stop
// returns no further tick can touch the game state.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.stopLoop()
	e.pending = nil
	e.mu.Unlock()
}

func (e *Engine) stopLoop() {
	e.quitOnce.Do(func() {
		close(e.quit)
	})
}

func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Serialize returns the state as the given viewer may see it. An empty
// viewer gets the most restrictive projection.
func (e *Engine) Serialize(viewerID string) SerializedState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return serialize(e.state, e.variant, viewerID)
}

// emit queues a listener call until the lock is released. Must be called
// with e.mu held.
func (e *Engine) emit(fn func()) {
	e.pending = append(e.pending, fn)
}

func (e *Engine) flush() {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// highestScorer returns the single top scorer, or "" on a tie.
func highestScorer(state *models.GameState) string {
	winner := ""
	best := 0
	tied := false
	for i, p := range state.OrderedPlayers() {
		switch {
		case i == 0 || p.Score > best:
			winner, best, tied = p.PlayerID, p.Score, false
		case p.Score == best:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return winner
}

func standings(state *models.GameState) []models.SessionPlayer {
	players := state.OrderedPlayers()
	out := make([]models.SessionPlayer, 0, len(players))
	for _, p := range players {
		out = append(out, models.SessionPlayer{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			WPM:         p.CurrentWPM,
			Accuracy:    p.Accuracy,
			Keystrokes:  p.KeystrokeCount,
			Errors:      p.ErrorCount,
			Finished:    p.IsFinished,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out
}
