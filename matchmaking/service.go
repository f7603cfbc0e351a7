// Package matchmaking groups queued players of similar skill into rooms.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/logger"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/repository"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidGameType = errors.New("unknown game type")
	ErrAlreadyQueued   = errors.New("player is already queued")
	ErrInRoom          = errors.New("player is already in a room")
	ErrUnavailable     = errors.New("matchmaking unavailable")
)

// Queue is the shared match queue. Claim must remove all of the given
// players or none of them.
type Queue interface {
	Enqueue(ctx context.Context, entry models.MatchQueueEntry) error
	Remove(ctx context.Context, playerID string) (bool, error)
	Snapshot(ctx context.Context, gameType models.GameType) ([]models.MatchQueueEntry, error)
	Claim(ctx context.Context, gameType models.GameType, playerIDs []string) (bool, error)
}

type Rooms interface {
	RoomOf(ctx context.Context, playerID string) (string, error)
	CreateMatched(ctx context.Context, gameType models.GameType, entries []models.MatchQueueEntry) (*models.Room, error)
}

type Rater interface {
	Rate(ctx context.Context, playerID string, gameType models.GameType) (models.Rating, error)
}

// Notifier tells players about matches and timeouts.
type Notifier interface {
	MatchFound(ctx context.Context, room *models.Room)
	MatchTimeout(entry models.MatchQueueEntry, waited time.Duration)
}

type Config struct {
	Interval       time.Duration
	CrossTierAfter time.Duration
	Timeout        time.Duration
	GroupSize      int
}

func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Second,
		CrossTierAfter: 30 * time.Second,
		Timeout:        60 * time.Second,
		GroupSize:      4,
	}
}

type Service struct {
	cfg      Config
	queue    Queue
	rooms    Rooms
	rater    Rater
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time

	// One lock per game type; matcher cycles for a type never overlap.
	locks map[models.GameType]*sync.Mutex
}

func NewService(cfg Config, queue Queue, rooms Rooms, rater Rater, notifier Notifier) *Service {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.CrossTierAfter <= 0 {
		cfg.CrossTierAfter = def.CrossTierAfter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.GroupSize < models.MinRoomPlayers {
		cfg.GroupSize = def.GroupSize
	}

	locks := make(map[models.GameType]*sync.Mutex, len(models.AllGameTypes))
	for _, gt := range models.AllGameTypes {
		locks[gt] = &sync.Mutex{}
	}
	return &Service{
		cfg:      cfg,
		queue:    queue,
		rooms:    rooms,
		rater:    rater,
		notifier: notifier,
		log:      logger.Component("matchmaking"),
		now:      time.Now,
		locks:    locks,
	}
}

// Queue puts a player in the queue for gameType, rated from their recent
// sessions.
func (s *Service) Queue(ctx context.Context, playerID, displayName string, gameType models.GameType) (models.MatchQueueEntry, error) {
	if !gameType.Valid() {
		return models.MatchQueueEntry{}, ErrInvalidGameType
	}
	roomID, err := s.rooms.RoomOf(ctx, playerID)
	if err != nil {
		return models.MatchQueueEntry{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if roomID != "" {
		return models.MatchQueueEntry{}, ErrInRoom
	}

	rating, err := s.rater.Rate(ctx, playerID, gameType)
	if err != nil {
		s.log.Warn().Err(err).Str("playerId", playerID).Msg("rating unavailable, queueing as beginner")
		rating = models.Rating{PlayerID: playerID, GameType: gameType, Tier: models.TierBeginner}
	}

	entry := models.MatchQueueEntry{
		PlayerID:    playerID,
		DisplayName: displayName,
		GameType:    gameType,
		SkillTier:   rating.Tier,
		Rating:      rating.Rating,
		JoinedAt:    s.now(),
	}
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrAlreadyQueued) {
			return models.MatchQueueEntry{}, ErrAlreadyQueued
		}
		return models.MatchQueueEntry{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	s.log.Debug().Str("playerId", playerID).Str("gameType", string(gameType)).Str("tier", string(entry.SkillTier)).Msg("player queued")
	return entry, nil
}

// Cancel takes a player out of the queue. It reports whether they were in it.
func (s *Service) Cancel(ctx context.Context, playerID string) (bool, error) {
	removed, err := s.queue.Remove(ctx, playerID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return removed, nil
}

// Run drives one matcher per game type until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, gt := range models.AllGameTypes {
		wg.Add(1)
		go func(gameType models.GameType) {
			defer wg.Done()
			s.loop(ctx, gameType)
		}(gt)
	}
	wg.Wait()
}

func (s *Service) loop(ctx context.Context, gameType models.GameType) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.MatchOnce(ctx, gameType); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Str("gameType", string(gameType)).Msg("matcher cycle failed")
			}
		}
	}
}

// MatchOnce runs a single matcher cycle for one game type and returns the
// rooms it created.
func (s *Service) MatchOnce(ctx context.Context, gameType models.GameType) ([]*models.Room, error) {
	lock, ok := s.locks[gameType]
	if !ok {
		return nil, ErrInvalidGameType
	}
	lock.Lock()
	defer lock.Unlock()

	entries, err := s.queue.Snapshot(ctx, gameType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	now := s.now()

	live := make([]models.MatchQueueEntry, 0, len(entries))
	for _, e := range entries {
		waited := now.Sub(e.JoinedAt)
		if waited > s.cfg.Timeout {
			s.evict(ctx, e, waited)
			continue
		}
		roomID, err := s.rooms.RoomOf(ctx, e.PlayerID)
		if err != nil {
			s.log.Warn().Err(err).Str("playerId", e.PlayerID).Msg("skipping player, room lookup failed")
			continue
		}
		if roomID != "" {
			s.log.Info().Str("playerId", e.PlayerID).Str("roomId", roomID).Msg("dropping queued player who joined a room")
			if _, err := s.queue.Remove(ctx, e.PlayerID); err != nil {
				s.log.Warn().Err(err).Str("playerId", e.PlayerID).Msg("failed to dequeue player")
			}
			continue
		}
		live = append(live, e)
	}

	var created []*models.Room
	for _, group := range formGroups(live, now, s.cfg.CrossTierAfter, s.cfg.GroupSize) {
		ids := make([]string, len(group))
		for i, e := range group {
			ids[i] = e.PlayerID
		}
		claimed, err := s.queue.Claim(ctx, gameType, ids)
		if err != nil {
			s.log.Warn().Err(err).Strs("players", ids).Msg("claim failed")
			continue
		}
		if !claimed {
			// Someone cancelled since the snapshot; they regroup next cycle.
			continue
		}

		room, err := s.rooms.CreateMatched(ctx, gameType, group)
		if err != nil {
			s.log.Error().Err(err).Strs("players", ids).Msg("creating matched room failed, requeueing")
			s.requeue(ctx, group)
			continue
		}
		s.log.Info().Str("roomId", room.RoomID).Strs("players", ids).Str("gameType", string(gameType)).Msg("match found")
		created = append(created, room)
		s.notifier.MatchFound(ctx, room)
	}
	return created, nil
}

func (s *Service) evict(ctx context.Context, e models.MatchQueueEntry, waited time.Duration) {
	removed, err := s.queue.Remove(ctx, e.PlayerID)
	if err != nil {
		s.log.Warn().Err(err).Str("playerId", e.PlayerID).Msg("failed to evict player")
		return
	}
	if removed {
		s.log.Info().Str("playerId", e.PlayerID).Dur("waited", waited).Msg("match timeout")
		s.notifier.MatchTimeout(e, waited)
	}
}

func (s *Service) requeue(ctx context.Context, group []models.MatchQueueEntry) {
	for _, e := range group {
		if err := s.queue.Enqueue(ctx, e); err != nil && !errors.Is(err, repository.ErrAlreadyQueued) {
			s.log.Warn().Err(err).Str("playerId", e.PlayerID).Msg("failed to requeue player")
		}
	}
}

// formGroups splits a FIFO queue snapshot into match groups of 2..size.
// Players are first grouped within their own tier in arrival order. Anyone
// who has waited longer than crossTierAfter may then be grouped with
// leftovers from the neighbouring tiers, as long as every member of that
// group is rating-compatible with every other.
func formGroups(entries []models.MatchQueueEntry, now time.Time, crossTierAfter time.Duration, size int) [][]models.MatchQueueEntry {
	used := make(map[string]bool, len(entries))
	var groups [][]models.MatchQueueEntry

	for _, tier := range models.AllTiers {
		var pool []models.MatchQueueEntry
		for _, e := range entries {
			if e.SkillTier == tier {
				pool = append(pool, e)
			}
		}
		for _, anchor := range pool {
			if used[anchor.PlayerID] {
				continue
			}
			if g := pickGroup(anchor, pool, size, used, nil); g != nil {
				groups = append(groups, g)
			}
		}
	}

	for _, anchor := range entries {
		if used[anchor.PlayerID] || now.Sub(anchor.JoinedAt) <= crossTierAfter {
			continue
		}
		idx := models.TierIndex(anchor.SkillTier)
		var pool []models.MatchQueueEntry
		for _, e := range entries {
			d := models.TierIndex(e.SkillTier) - idx
			if d >= -1 && d <= 1 {
				pool = append(pool, e)
			}
		}
		fits := func(group []models.MatchQueueEntry, c models.MatchQueueEntry) bool {
			return fitsGroup(group, c, now)
		}
		if g := pickGroup(anchor, pool, size, used, fits); g != nil {
			groups = append(groups, g)
		}
	}
	return groups
}

// pickGroup builds a group around anchor from pool in FIFO order and marks
// its members used. A nil fits accepts everyone. It returns nil if nobody
// fits.
func pickGroup(anchor models.MatchQueueEntry, pool []models.MatchQueueEntry, size int, used map[string]bool, fits func([]models.MatchQueueEntry, models.MatchQueueEntry) bool) []models.MatchQueueEntry {
	group := []models.MatchQueueEntry{anchor}
	for _, c := range pool {
		if len(group) == size {
			break
		}
		if c.PlayerID == anchor.PlayerID || used[c.PlayerID] {
			continue
		}
		if fits == nil || fits(group, c) {
			group = append(group, c)
		}
	}
	if len(group) < models.MinRoomPlayers {
		return nil
	}
	for _, e := range group {
		used[e.PlayerID] = true
	}
	return group
}

func fitsGroup(group []models.MatchQueueEntry, c models.MatchQueueEntry, now time.Time) bool {
	for _, m := range group {
		// The longer waiter's patience sets the range.
		earliest := m.JoinedAt
		if c.JoinedAt.Before(earliest) {
			earliest = c.JoinedAt
		}
		if !ArePlayersCompatible(m.Rating, c.Rating, now.Sub(earliest)) {
			return false
		}
	}
	return true
}
