// Package arena supervises the running games. It owns every engine, feeds
// them validated input, streams their state to players and hands finished
// sessions to the session sinks.
package arena

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mapleleafu/typearena/typearena-backend/anticheat"
	"github.com/mapleleafu/typearena/typearena-backend/game"
	"github.com/mapleleafu/typearena/typearena-backend/logger"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/rs/zerolog"
)

var (
	ErrGameRunning      = errors.New("a game is already running in this room")
	ErrNotEnoughPlayers = errors.New("not enough connected players")
)

// ReasonStartFailed is sent with the error event when a game cannot start.
const ReasonStartFailed = "game_start_failed"

// Sender delivers a server event to one player. It must not block.
type Sender interface {
	SendTo(playerID, event string, payload any)
}

type Rooms interface {
	MarkFinished(ctx context.Context, roomID string) (*models.Room, error)
	ResetToWaiting(ctx context.Context, roomID string) (*models.Room, error)
}

// SessionSink receives every completed session exactly once.
type SessionSink interface {
	RecordSession(ctx context.Context, session models.CompletedSession) error
}

type Config struct {
	TickRate         int
	BroadcastRate    int
	CountdownSeconds int
	// ResultsHold is how long a finished room shows its results before it
	// reopens for another round.
	ResultsHold time.Duration
	SinkTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickRate:         game.DefaultTickRate,
		BroadcastRate:    10,
		CountdownSeconds: game.DefaultCountdownSeconds,
		ResultsHold:      10 * time.Second,
		SinkTimeout:      10 * time.Second,
	}
}

// InputOutcome is what happened to one game:input.
type InputOutcome struct {
	Accepted bool
	Reason   string
	Severity string
	Player   *game.SerializedPlayer
}

type handle struct {
	roomID   string
	engine   *game.Engine
	done     chan struct{}
	doneOnce sync.Once
}

func (h *handle) close() {
	h.doneOnce.Do(func() {
		close(h.done)
		h.engine.Stop()
	})
}

type Arena struct {
	cfg       Config
	rooms     Rooms
	out       Sender
	sinks     []SessionSink
	validator *anticheat.Validator
	log       zerolog.Logger
	newID     func() string

	mu      sync.Mutex
	games   map[string]*handle
	players map[string]string
	timers  map[string]*time.Timer
	closed  bool

	wg sync.WaitGroup
}

func New(cfg Config, rooms Rooms, out Sender, validator *anticheat.Validator, sinks ...SessionSink) *Arena {
	def := DefaultConfig()
	if cfg.TickRate <= 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.BroadcastRate <= 0 {
		cfg.BroadcastRate = def.BroadcastRate
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = def.SinkTimeout
	}
	return &Arena{
		cfg:       cfg,
		rooms:     rooms,
		out:       out,
		sinks:     sinks,
		validator: validator,
		log:       logger.Component("arena"),
		newID:     uuid.NewString,
		games:     make(map[string]*handle),
		players:   make(map[string]string),
		timers:    make(map[string]*time.Timer),
	}
}

// StartGame builds an engine for a room that was just moved to playing and
// starts its countdown. Only connected players take part. If the game
// cannot start the room is put back to waiting.
func (a *Arena) StartGame(ctx context.Context, room *models.Room) error {
	var players []game.PlayerInfo
	for _, p := range room.Players {
		if p.IsConnected {
			players = append(players, game.PlayerInfo{PlayerID: p.PlayerID, DisplayName: p.DisplayName})
		}
	}
	if len(players) < models.MinRoomPlayers {
		a.rollback(ctx, room.RoomID, ErrNotEnoughPlayers)
		return ErrNotEnoughPlayers
	}

	engine, err := game.New(game.Config{
		RoomID:           room.RoomID,
		GameType:         room.GameType,
		Seed:             room.Settings.Seed,
		Settings:         room.Settings,
		Players:          players,
		Listener:         a,
		TickRate:         a.cfg.TickRate,
		CountdownSeconds: a.cfg.CountdownSeconds,
	})
	if err != nil {
		a.rollback(ctx, room.RoomID, err)
		return err
	}

	h := &handle{roomID: room.RoomID, engine: engine, done: make(chan struct{})}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return game.ErrGameStopped
	}
	if _, running := a.games[room.RoomID]; running {
		a.mu.Unlock()
		return ErrGameRunning
	}
	if t, ok := a.timers[room.RoomID]; ok {
		t.Stop()
		delete(a.timers, room.RoomID)
	}
	a.games[room.RoomID] = h
	for _, p := range players {
		a.players[p.PlayerID] = room.RoomID
	}
	a.mu.Unlock()

	if err := engine.Start(); err != nil {
		a.detach(h)
		a.rollback(ctx, room.RoomID, err)
		return err
	}
	a.log.Info().Str("roomId", room.RoomID).Int("players", len(players)).Msg("game scheduled")
	return nil
}

// HandleInput runs anti-cheat on one keystroke and, if it passes, applies
// it to the player's game.
func (a *Arena) HandleInput(roomID, playerID string, input models.InputEvent) InputOutcome {
	h := a.lookup(roomID)
	if h == nil {
		return InputOutcome{Reason: game.RejectGameNotActive}
	}
	self, ok := h.engine.PlayerView(playerID, playerID)
	if !ok {
		return InputOutcome{Reason: game.RejectPlayerNotFound}
	}

	verdict := a.validator.Validate(playerID, input, anticheat.Stats{
		KeystrokeCount: self.KeystrokeCount,
		WPM:            self.CurrentWPM,
		Accuracy:       self.Accuracy,
	})
	if !verdict.Valid {
		return InputOutcome{Reason: verdict.Reason, Severity: string(verdict.Severity)}
	}

	res := h.engine.HandleInput(playerID, input)
	if !res.Accepted {
		return InputOutcome{Reason: res.Reason}
	}
	return InputOutcome{Accepted: true, Player: res.Player}
}

// PlayerDisconnected drops a player from whatever game they are in. The
// game goes on for everyone else.
func (a *Arena) PlayerDisconnected(playerID string) {
	a.validator.Forget(playerID)

	a.mu.Lock()
	roomID, ok := a.players[playerID]
	delete(a.players, playerID)
	h := a.games[roomID]
	a.mu.Unlock()
	if !ok || h == nil {
		return
	}

	remaining := h.engine.RemovePlayer(playerID)
	a.log.Info().Str("roomId", roomID).Str("playerId", playerID).Int("remaining", remaining).Msg("player left game")
	if remaining == 0 {
		// A playing engine has already ended itself; this covers countdown.
		a.detach(h)
	}
}

// Stop ends one room's game early. Sessions that were under way are still
// recorded.
func (a *Arena) Stop(roomID string) {
	h := a.lookup(roomID)
	if h == nil {
		return
	}
	h.engine.EndGame(models.EndReasonStopped, "")
	a.detach(h)
}

// Shutdown stops every game and waits for pending session writes.
func (a *Arena) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	handles := make([]*handle, 0, len(a.games))
	for _, h := range a.games {
		handles = append(handles, h)
	}
	for id, t := range a.timers {
		t.Stop()
		delete(a.timers, id)
	}
	a.mu.Unlock()

	for _, h := range handles {
		h.engine.EndGame(models.EndReasonStopped, "")
		a.detach(h)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of running games.
func (a *Arena) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.games)
}

// InGame reports which room's game a player is in, if any.
func (a *Arena) InGame(playerID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	roomID, ok := a.players[playerID]
	return roomID, ok
}

func (a *Arena) lookup(roomID string) *handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.games[roomID]
}

// detach removes h from the arena and stops its loops. Safe to repeat.
func (a *Arena) detach(h *handle) {
	a.mu.Lock()
	if a.games[h.roomID] == h {
		delete(a.games, h.roomID)
		for pid, rid := range a.players {
			if rid == h.roomID {
				delete(a.players, pid)
			}
		}
	}
	a.mu.Unlock()
	h.close()
}

func (a *Arena) rollback(ctx context.Context, roomID string, cause error) {
	a.log.Warn().Err(cause).Str("roomId", roomID).Msg("game failed to start, reopening room")
	room, err := a.rooms.ResetToWaiting(ctx, roomID)
	if err != nil {
		a.log.Error().Err(err).Str("roomId", roomID).Msg("failed to reopen room")
		return
	}
	if room == nil {
		a.log.Info().Str("roomId", roomID).Msg("room emptied while starting")
		return
	}
	public := room.Public()
	for _, p := range room.Players {
		a.out.SendTo(p.PlayerID, models.EventRoomUpdated, public)
		a.out.SendTo(p.PlayerID, models.EventError, models.ErrorPayload{Error: ReasonStartFailed, Event: models.EventRoomStart})
	}
}

func (a *Arena) broadcast(h *handle) {
	defer a.wg.Done()
	ticker := time.NewTicker(time.Second / time.Duration(a.cfg.BroadcastRate))
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			a.sendState(h)
		}
	}
}

func (a *Arena) sendState(h *handle) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Interface("panic", r).Str("roomId", h.roomID).Msg("state broadcast failed")
		}
	}()
	if h.engine.Status() != models.GameStatusPlaying {
		return
	}
	for _, pid := range h.engine.PlayerIDs() {
		a.out.SendTo(pid, models.EventGameState, h.engine.Serialize(pid))
	}
}

func (a *Arena) OnCountdown(roomID string, remaining int) {
	h := a.lookup(roomID)
	if h == nil {
		return
	}
	payload := models.CountdownPayload{RoomID: roomID, Countdown: remaining}
	for _, pid := range h.engine.PlayerIDs() {
		a.out.SendTo(pid, models.EventGameCountdown, payload)
	}
}

func (a *Arena) OnStarted(roomID string) {
	h := a.lookup(roomID)
	if h == nil {
		return
	}
	for _, pid := range h.engine.PlayerIDs() {
		a.out.SendTo(pid, models.EventGameStarted, models.GameStartedPayload{
			RoomID:    roomID,
			GameState: h.engine.Serialize(pid),
		})
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.games[roomID] != h {
		return
	}
	a.wg.Add(1)
	go a.broadcast(h)
}

func (a *Arena) OnStartFailed(roomID string, err error) {
	if h := a.lookup(roomID); h != nil {
		a.detach(h)
	}
	a.rollback(context.Background(), roomID, err)
}

func (a *Arena) OnPlayerUpdate(roomID, playerID string) {
	h := a.lookup(roomID)
	if h == nil {
		return
	}
	for _, viewer := range h.engine.PlayerIDs() {
		view, ok := h.engine.PlayerView(playerID, viewer)
		if !ok {
			return
		}
		a.out.SendTo(viewer, models.EventGamePlayerUpdate, models.PlayerUpdatePayload{RoomID: roomID, Player: view})
	}
}

// OnEnded is called once per game by its engine.
func (a *Arena) OnEnded(result game.Result) {
	h := a.lookup(result.RoomID)
	var recipients []string
	if h != nil {
		recipients = h.engine.PlayerIDs()
		a.detach(h)
	}

	payload := models.GameEndedPayload{
		RoomID:     result.RoomID,
		Reason:     result.Reason,
		Winner:     result.WinnerID,
		FinalState: result.Final,
	}
	for _, pid := range recipients {
		a.out.SendTo(pid, models.EventGameEnded, payload)
	}

	session := a.completedSession(result)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.record(session)
		a.finishRoom(result.RoomID)
	}()
}

func (a *Arena) completedSession(result game.Result) models.CompletedSession {
	session := models.CompletedSession{
		SessionID: a.newID(),
		RoomID:    result.RoomID,
		GameType:  result.GameType,
		Seed:      result.Seed,
		StartedAt: result.StartTime,
		EndedAt:   result.EndTime,
		Reason:    result.Reason,
		WinnerID:  result.WinnerID,
		Players:   result.Standings,
	}
	if raw, err := json.Marshal(result.Final); err == nil {
		session.FinalState = raw
	} else {
		a.log.Warn().Err(err).Str("roomId", result.RoomID).Msg("final state not encodable")
	}
	return session
}

func (a *Arena) record(session models.CompletedSession) {
	for _, sink := range a.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SinkTimeout)
		err := sink.RecordSession(ctx, session)
		cancel()
		if err != nil {
			a.log.Error().Err(err).Str("sessionId", session.SessionID).Msg("session sink failed")
		}
	}
}

// finishRoom marks the room finished and reopens it after ResultsHold.
func (a *Arena) finishRoom(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SinkTimeout)
	defer cancel()
	room, err := a.rooms.MarkFinished(ctx, roomID)
	if err != nil {
		// The room may have emptied and been deleted already.
		a.log.Debug().Err(err).Str("roomId", roomID).Msg("could not mark room finished")
		return
	}
	a.sendRoom(room)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.timers[roomID] = time.AfterFunc(a.cfg.ResultsHold, func() {
		a.mu.Lock()
		delete(a.timers, roomID)
		a.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SinkTimeout)
		defer cancel()
		room, err := a.rooms.ResetToWaiting(ctx, roomID)
		if err != nil {
			a.log.Debug().Err(err).Str("roomId", roomID).Msg("could not reopen room")
			return
		}
		if room == nil {
			a.log.Info().Str("roomId", roomID).Msg("everyone left, room closed")
			return
		}
		a.sendRoom(room)
	})
}

func (a *Arena) sendRoom(room *models.Room) {
	public := room.Public()
	for _, p := range room.Players {
		a.out.SendTo(p.PlayerID, models.EventRoomUpdated, public)
	}
}
