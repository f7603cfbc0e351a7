// Package room manages the lifecycle of rooms: create, join, leave, ready,
// kick and start. Every change is written to the durable store and the
// cache; reads go to the cache first.
package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mapleleafu/typearena/typearena-backend/logger"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/repository"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const QuickMatchName = "Quick Match"

// Store is the durable room record. Missing rooms are repository.ErrNotFound.
type Store interface {
	SaveRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	ListRooms(ctx context.Context, gameType models.GameType, status models.RoomStatus) ([]models.Room, error)
}

// Cache mirrors the store and indexes which room each player is in.
// Missing rooms are repository.ErrNotFound.
type Cache interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	SetRoom(ctx context.Context, room *models.Room) error
	DeleteRoom(ctx context.Context, roomID string) error
	ClaimPlayer(ctx context.Context, playerID, roomID string) (bool, error)
	ReleasePlayer(ctx context.Context, playerID, roomID string) error
	PlayerRoom(ctx context.Context, playerID string) (string, error)
}

type CreateParams struct {
	HostID     string
	HostName   string
	GameType   models.GameType
	RoomName   string
	Password   string
	MaxPlayers int
	Settings   models.RoomSettings
}

type Manager struct {
	store Store
	cache Cache
	locks *keyedMutex
	log   zerolog.Logger

	now     func() time.Time
	newID   func() string
	newSeed func() uint32
}

func NewManager(store Store, cache Cache) *Manager {
	return &Manager{
		store:   store,
		cache:   cache,
		locks:   newKeyedMutex(),
		log:     logger.Component("room"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		newSeed: rand.Uint32,
	}
}

func (m *Manager) storageError(op, roomID string, err error) error {
	m.log.Error().Err(err).Str("op", op).Str("roomId", roomID).Msg("room storage failure")
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Create opens a new room with the caller as host.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*models.Room, error) {
	if !p.GameType.Valid() || p.HostID == "" {
		return nil, ErrInvalidRoom
	}
	maxPlayers := p.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = models.DefaultRoomPlayers
	}
	if maxPlayers < models.MinRoomPlayers || maxPlayers > models.MaxRoomPlayers {
		return nil, ErrInvalidRoom
	}
	settings, err := normalizeSettings(p.Settings)
	if err != nil {
		return nil, err
	}
	// The seed is always chosen here; a client-picked seed would let its
	// owner precompute the game.
	settings.Seed = m.newSeed()

	name := strings.TrimSpace(p.RoomName)
	if name == "" {
		name = p.HostName + "'s room"
	}
	var passwordHash string
	if p.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing room password: %w", err)
		}
		passwordHash = string(hash)
	}

	now := m.now()
	room := &models.Room{
		RoomID:       m.newID(),
		GameType:     p.GameType,
		RoomName:     name,
		PasswordHash: passwordHash,
		MaxPlayers:   maxPlayers,
		Status:       models.RoomStatusWaiting,
		Settings:     settings,
		Players: []models.RoomPlayer{{
			PlayerID:    p.HostID,
			DisplayName: p.HostName,
			IsHost:      true,
			IsConnected: true,
			JoinedAt:    now,
		}},
		CreatedAt: now,
	}

	if err := m.claim(ctx, room.RoomID, p.HostID); err != nil {
		return nil, err
	}
	if err := m.persist(ctx, room); err != nil {
		m.release(ctx, room.RoomID, p.HostID)
		return nil, err
	}
	m.log.Info().Str("roomId", room.RoomID).Str("host", p.HostID).Str("gameType", string(room.GameType)).Msg("room created")
	return room, nil
}

// CreateMatched opens a Quick Match room for a matched group. Everyone is
// marked ready and the first player hosts.
func (m *Manager) CreateMatched(ctx context.Context, gameType models.GameType, entries []models.MatchQueueEntry) (*models.Room, error) {
	if !gameType.Valid() || len(entries) < models.MinRoomPlayers || len(entries) > models.MaxRoomPlayers {
		return nil, ErrInvalidRoom
	}

	now := m.now()
	maxPlayers := models.DefaultRoomPlayers
	if len(entries) > maxPlayers {
		maxPlayers = len(entries)
	}
	room := &models.Room{
		RoomID:     m.newID(),
		GameType:   gameType,
		RoomName:   QuickMatchName,
		MaxPlayers: maxPlayers,
		Status:     models.RoomStatusWaiting,
		Settings:   models.RoomSettings{Seed: m.newSeed(), Difficulty: models.DifficultyNormal},
		CreatedAt:  now,
	}
	for i, e := range entries {
		room.Players = append(room.Players, models.RoomPlayer{
			PlayerID:    e.PlayerID,
			DisplayName: e.DisplayName,
			IsHost:      i == 0,
			IsReady:     true,
			IsConnected: true,
			JoinedAt:    now,
		})
	}

	var claimed []string
	rollback := func() {
		for _, id := range claimed {
			m.release(ctx, room.RoomID, id)
		}
	}
	for _, e := range entries {
		if err := m.claim(ctx, room.RoomID, e.PlayerID); err != nil {
			rollback()
			return nil, err
		}
		claimed = append(claimed, e.PlayerID)
	}
	if err := m.persist(ctx, room); err != nil {
		rollback()
		return nil, err
	}
	m.log.Info().Str("roomId", room.RoomID).Int("players", len(entries)).Msg("matched room created")
	return room, nil
}

// Get reads a room from the cache, falling back to the store and
// refreshing the cache on a miss.
func (m *Manager) Get(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := m.cache.GetRoom(ctx, roomID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		m.log.Warn().Err(err).Str("roomId", roomID).Msg("cache read failed, using store")
	}

	room, err = m.store.GetRoom(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, m.storageError("get", roomID, err)
	}
	if err := m.cache.SetRoom(ctx, room); err != nil {
		m.log.Warn().Err(err).Str("roomId", roomID).Msg("cache refresh failed")
	}
	return room, nil
}

// Join adds a player to a waiting room. Joining a room the player is
// already in just returns it.
func (m *Manager) Join(ctx context.Context, roomID, playerID, displayName, password string) (*models.Room, error) {
	unlock := m.locks.Lock(roomID)
	defer unlock()

	room, err := m.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if existing := room.Player(playerID); existing != nil {
		if !existing.IsConnected {
			existing.IsConnected = true
			if err := m.persist(ctx, room); err != nil {
				return nil, err
			}
		}
		return room, nil
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, ErrRoomNotWaiting
	}
	if room.PasswordHash != "" && bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password)) != nil {
		return nil, ErrWrongPassword
	}
	if len(room.Players) >= room.MaxPlayers {
		return nil, ErrRoomFull
	}
	if err := m.claim(ctx, roomID, playerID); err != nil {
		return nil, err
	}

	room.Players = append(room.Players, models.RoomPlayer{
		PlayerID:    playerID,
		DisplayName: displayName,
		IsConnected: true,
		JoinedAt:    m.now(),
	})
	if err := m.persist(ctx, room); err != nil {
		m.release(ctx, roomID, playerID)
		return nil, err
	}
	return room, nil
}

// Leave removes a player. The next player in join order becomes host if
// the host left. The room is deleted when its last player leaves, in which
// case the returned room is nil.
func (m *Manager) Leave(ctx context.Context, roomID, playerID string) (*models.Room, error) {
	unlock := m.locks.Lock(roomID)
	defer unlock()

	room, err := m.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !removePlayer(room, playerID) {
		return nil, ErrNotInRoom
	}

	if len(room.Players) == 0 {
		if err := m.delete(ctx, roomID); err != nil {
			return nil, err
		}
		m.release(ctx, roomID, playerID)
		return nil, nil
	}
	if err := m.persist(ctx, room); err != nil {
		return nil, err
	}
	m.release(ctx, roomID, playerID)
	return room, nil
}

// ToggleReady flips a player's ready flag.
func (m *Manager) ToggleReady(ctx context.Context, roomID, playerID string) (*models.Room, error) {
	unlock := m.locks.Lock(roomID)
	defer unlock()

	room, err := m.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	player := room.Player(playerID)
	if player == nil {
		return nil, ErrNotInRoom
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, ErrRoomNotWaiting
	}
	player.IsReady = !player.IsReady
	if err := m.persist(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// Kick lets the host remove another player.
func (m *Manager) Kick(ctx context.Context, roomID, hostID, targetID string) (*models.Room, error) {
	unlock := m.locks.Lock(roomID)
	defer unlock()

	room, err := m.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if host := room.Host(); host == nil || host.PlayerID != hostID {
		return nil, ErrNotHost
	}
	if targetID == hostID {
		return nil, ErrCannotKickSelf
	}
	if !removePlayer(room, targetID) {
		return nil, ErrNotInRoom
	}
	if err := m.persist(ctx, room); err != nil {
		return nil, err
	}
	m.release(ctx, roomID, targetID)
	return room, nil
}

// Start moves a waiting room to playing. Only the host may start, and only
// with at least two players and every other player ready.
func (m *Manager) Start(ctx context.Context, roomID, playerID string) (*models.Room, error) {
	unlock := m.locks.Lock(roomID)
	defer unlock()

	room, err := m.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if host := room.Host(); host == nil || host.PlayerID != playerID {
		return nil, ErrNotHost
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, ErrRoomNotWaiting
	}
	if len(room.Players) < models.MinRoomPlayers {
		return nil, ErrNotEnoughPlayers
	}
	for _, p := range room.Players {
		if !p.IsHost && !p.IsReady {
			return nil, ErrPlayersNotReady
		}
	}

	room.Status = models.RoomStatusPlaying
	if err := m.persist(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// StartMatched moves a matchmade room straight to playing.
func (m *Manager) StartMatched(ctx context.Context, roomID string) (*models.Room, error) {
	return m.setStatus(ctx, roomID, models.RoomStatusPlaying)
}

// MarkFinished records that the room's game is over.
func (m *Manager) MarkFinished(ctx context.Context, roomID string) (*models.Room, error) {
	return m.setStatus(ctx, roomID, models.RoomStatusFinished)
}

// ResetToWaiting reopens a room, clearing everyone's ready flag. It is
// used after a game ends and when a game fails to start. Members who went
// offline meanwhile are dropped, which may move the host role or delete
// the room; a deleted room is returned as nil.
func (m *Manager) ResetToWaiting(ctx context.Context, roomID string) (*models.Room, error) {
	unlock := m.locks.Lock(roomID)
	defer unlock()

	room, err := m.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var dropped []string
	for _, p := range append([]models.RoomPlayer(nil), room.Players...) {
		if !p.IsConnected {
			removePlayer(room, p.PlayerID)
			dropped = append(dropped, p.PlayerID)
		}
	}

	if len(room.Players) == 0 {
		if err := m.delete(ctx, roomID); err != nil {
			return nil, err
		}
		m.releaseAll(ctx, roomID, dropped)
		return nil, nil
	}

	room.Status = models.RoomStatusWaiting
	for i := range room.Players {
		room.Players[i].IsReady = false
	}
	if err := m.persist(ctx, room); err != nil {
		return nil, err
	}
	m.releaseAll(ctx, roomID, dropped)
	if len(dropped) > 0 {
		m.log.Info().Str("roomId", roomID).Strs("players", dropped).Msg("dropped offline players on reopen")
	}
	return room, nil
}

func (m *Manager) setStatus(ctx context.Context, roomID string, status models.RoomStatus) (*models.Room, error) {
	unlock := m.locks.Lock(roomID)
	defer unlock()

	room, err := m.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.Status = status
	if err := m.persist(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// SetConnected updates a member's connection flag.
func (m *Manager) SetConnected(ctx context.Context, roomID, playerID string, connected bool) (*models.Room, error) {
	unlock := m.locks.Lock(roomID)
	defer unlock()

	room, err := m.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	player := room.Player(playerID)
	if player == nil {
		return nil, ErrNotInRoom
	}
	if player.IsConnected == connected {
		return room, nil
	}
	player.IsConnected = connected
	if err := m.persist(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// List returns waiting rooms, optionally for one game type.
func (m *Manager) List(ctx context.Context, gameType models.GameType) ([]models.PublicRoom, error) {
	rooms, err := m.store.ListRooms(ctx, gameType, models.RoomStatusWaiting)
	if err != nil {
		return nil, m.storageError("list", "", err)
	}
	out := make([]models.PublicRoom, 0, len(rooms))
	for i := range rooms {
		out = append(out, rooms[i].Public())
	}
	return out, nil
}

// RoomOf returns the room a player is in, or "".
func (m *Manager) RoomOf(ctx context.Context, playerID string) (string, error) {
	roomID, err := m.cache.PlayerRoom(ctx, playerID)
	if err != nil {
		return "", m.storageError("room-of", "", err)
	}
	return roomID, nil
}

func (m *Manager) claim(ctx context.Context, roomID, playerID string) error {
	ok, err := m.cache.ClaimPlayer(ctx, playerID, roomID)
	if err != nil {
		return m.storageError("claim", roomID, err)
	}
	if ok {
		return nil
	}

	// A claim can outlive its room if a process died mid-leave. Drop it if
	// the room no longer lists the player.
	current, err := m.cache.PlayerRoom(ctx, playerID)
	if err != nil {
		return m.storageError("claim", roomID, err)
	}
	if current != "" && current != roomID && !m.isMember(ctx, current, playerID) {
		m.log.Warn().Str("playerId", playerID).Str("staleRoomId", current).Msg("dropping stale room claim")
		m.release(ctx, current, playerID)
		ok, err = m.cache.ClaimPlayer(ctx, playerID, roomID)
		if err != nil {
			return m.storageError("claim", roomID, err)
		}
		if ok {
			return nil
		}
	}
	return ErrAlreadyInRoom
}

func (m *Manager) isMember(ctx context.Context, roomID, playerID string) bool {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		// Only a confirmed miss counts as stale.
		return !errors.Is(err, repository.ErrNotFound)
	}
	return room.Player(playerID) != nil
}

func (m *Manager) release(ctx context.Context, roomID, playerID string) {
	if err := m.cache.ReleasePlayer(ctx, playerID, roomID); err != nil {
		m.log.Warn().Err(err).Str("roomId", roomID).Str("playerId", playerID).Msg("failed to release player")
	}
}

func (m *Manager) releaseAll(ctx context.Context, roomID string, playerIDs []string) {
	for _, id := range playerIDs {
		m.release(ctx, roomID, id)
	}
}

func (m *Manager) persist(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = m.now()
	if err := m.store.SaveRoom(ctx, room); err != nil {
		return m.storageError("save", room.RoomID, err)
	}
	if err := m.cache.SetRoom(ctx, room); err != nil {
		// The store already has the change; drop the stale copy so the
		// next read refreshes from it.
		if delErr := m.cache.DeleteRoom(ctx, room.RoomID); delErr != nil {
			return m.storageError("cache", room.RoomID, err)
		}
		m.log.Warn().Err(err).Str("roomId", room.RoomID).Msg("cache write failed, evicted")
	}
	return nil
}

// delete evicts the cache before touching the store, so a failure leaves
// reads falling through to a store that still has the room.
func (m *Manager) delete(ctx context.Context, roomID string) error {
	if err := m.cache.DeleteRoom(ctx, roomID); err != nil {
		return m.storageError("cache-delete", roomID, err)
	}
	if err := m.store.DeleteRoom(ctx, roomID); err != nil {
		return m.storageError("delete", roomID, err)
	}
	m.log.Info().Str("roomId", roomID).Msg("room deleted")
	return nil
}

// removePlayer drops a member and hands the host role on if needed.
func removePlayer(room *models.Room, playerID string) bool {
	idx := -1
	for i, p := range room.Players {
		if p.PlayerID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	wasHost := room.Players[idx].IsHost
	room.Players = append(room.Players[:idx], room.Players[idx+1:]...)
	if wasHost && len(room.Players) > 0 {
		room.Players[0].IsHost = true
		room.Players[0].IsReady = false
	}
	return true
}

func normalizeSettings(s models.RoomSettings) (models.RoomSettings, error) {
	switch s.Difficulty {
	case "":
		s.Difficulty = models.DifficultyNormal
	case models.DifficultyEasy, models.DifficultyNormal, models.DifficultyHard:
	default:
		return s, ErrInvalidRoom
	}
	if s.TimeLimitSeconds < 0 || s.TimeLimitSeconds > 3600 {
		return s, ErrInvalidRoom
	}
	s.CharacterSet = strings.TrimSpace(s.CharacterSet)
	return s, nil
}
