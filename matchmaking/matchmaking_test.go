package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/repository"
	"github.com/mapleleafu/typearena/typearena-backend/room"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roomStore struct {
	mu    sync.Mutex
	rooms map[string]models.Room
}

func (s *roomStore) SaveRoom(_ context.Context, r *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.RoomID] = *r
	return nil
}

func (s *roomStore) GetRoom(_ context.Context, id string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (s *roomStore) DeleteRoom(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	return nil
}

func (s *roomStore) ListRooms(context.Context, models.GameType, models.RoomStatus) ([]models.Room, error) {
	return nil, nil
}

type staticRater map[string]float64

func (r staticRater) Rate(_ context.Context, playerID string, gameType models.GameType) (models.Rating, error) {
	score, ok := r[playerID]
	if !ok {
		return models.Rating{}, errors.New("no history backend")
	}
	return models.Rating{PlayerID: playerID, GameType: gameType, Rating: score, Tier: TierFor(score)}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	found    []*models.Room
	timedOut []string
}

func (n *recordingNotifier) MatchFound(_ context.Context, r *models.Room) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.found = append(n.found, r)
}

func (n *recordingNotifier) MatchTimeout(e models.MatchQueueEntry, _ time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timedOut = append(n.timedOut, e.PlayerID)
}

type fixture struct {
	svc      *Service
	rooms    *room.Manager
	queue    *repository.RedisQueue
	notifier *recordingNotifier
	clock    time.Time
}

func newFixture(t *testing.T, ratings staticRater) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		rooms:    room.NewManager(&roomStore{rooms: map[string]models.Room{}}, repository.NewRedisCache(client)),
		queue:    repository.NewRedisQueue(client),
		notifier: &recordingNotifier{},
		clock:    time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(DefaultConfig(), f.queue, f.rooms, ratings, f.notifier)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func TestTierFor(t *testing.T) {
	tests := []struct {
		rating float64
		want   models.SkillTier
	}{
		{0, models.TierBeginner},
		{29.9, models.TierBeginner},
		{30, models.TierIntermediate},
		{49.9, models.TierIntermediate},
		{50, models.TierAdvanced},
		{69.9, models.TierAdvanced},
		{70, models.TierExpert},
		{140, models.TierExpert},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.rating), "rating %v", tt.rating)
	}
}

type historyFunc func() ([]models.SessionMetrics, error)

func (h historyFunc) RecentSessions(context.Context, string, models.GameType, int) ([]models.SessionMetrics, error) {
	return h()
}

func TestRatingService(t *testing.T) {
	svc := NewRatingService(historyFunc(func() ([]models.SessionMetrics, error) {
		return []models.SessionMetrics{{WPM: 60, Accuracy: 90}, {WPM: 40, Accuracy: 100}}, nil
	}))
	rating, err := svc.Rate(context.Background(), "p1", models.GameTypeBlink)
	require.NoError(t, err)
	// (0.7*60+0.3*90 + 0.7*40+0.3*100) / 2
	assert.InDelta(t, 63.5, rating.Rating, 1e-9)
	assert.Equal(t, models.TierAdvanced, rating.Tier)
	assert.Equal(t, 2, rating.Sessions)

	fresh := NewRatingService(historyFunc(func() ([]models.SessionMetrics, error) { return nil, nil }))
	rating, err = fresh.Rate(context.Background(), "p2", models.GameTypeBlink)
	require.NoError(t, err)
	assert.Zero(t, rating.Rating)
	assert.Equal(t, models.TierBeginner, rating.Tier)

	broken := NewRatingService(historyFunc(func() ([]models.SessionMetrics, error) { return nil, errors.New("down") }))
	_, err = broken.Rate(context.Background(), "p3", models.GameTypeBlink)
	assert.Error(t, err)
}

func TestRatingRange(t *testing.T) {
	assert.Equal(t, 10.0, RatingRange(0))
	assert.Equal(t, 10.0, RatingRange(9*time.Second))
	assert.Equal(t, 15.0, RatingRange(10*time.Second))
	assert.Equal(t, 25.0, RatingRange(35*time.Second))
	assert.Equal(t, 30.0, RatingRange(40*time.Second))
	assert.Equal(t, 30.0, RatingRange(10*time.Minute))
	assert.Equal(t, 10.0, RatingRange(-time.Second))
}

func TestCompatibilityIsMonotonicInWait(t *testing.T) {
	ratings := []float64{0, 5, 12, 20, 29, 35, 44, 61, 80, 99}
	waits := []time.Duration{0, 5 * time.Second, 10 * time.Second, 25 * time.Second, 40 * time.Second, 90 * time.Second}

	for _, r1 := range ratings {
		for _, r2 := range ratings {
			prev := false
			for _, w := range waits {
				ok := ArePlayersCompatible(r1, r2, w)
				if prev {
					assert.True(t, ok, "%v vs %v lost compatibility at %v", r1, r2, w)
				}
				prev = ok
			}
			if ArePlayersCompatible(r1, r2, time.Hour) {
				assert.LessOrEqual(t, r1-r2, 30.0)
				assert.GreaterOrEqual(t, r1-r2, -30.0)
			}
		}
	}
}

func TestTwoBeginnersMatchInOneCycle(t *testing.T) {
	f := newFixture(t, staticRater{"a": 10, "b": 15})
	ctx := context.Background()

	_, err := f.svc.Queue(ctx, "a", "Ada", models.GameTypeFallingBlocks)
	require.NoError(t, err)
	_, err = f.svc.Queue(ctx, "b", "Bob", models.GameTypeFallingBlocks)
	require.NoError(t, err)

	f.advance(5 * time.Second)
	rooms, err := f.svc.MatchOnce(ctx, models.GameTypeFallingBlocks)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	got, err := f.rooms.Get(ctx, rooms[0].RoomID)
	require.NoError(t, err)
	assert.Equal(t, room.QuickMatchName, got.RoomName)
	assert.ElementsMatch(t, []string{"a", "b"}, got.PlayerIDs())
	for _, p := range got.Players {
		assert.True(t, p.IsReady, p.PlayerID)
	}
	require.Len(t, f.notifier.found, 1)
	assert.Equal(t, got.RoomID, f.notifier.found[0].RoomID)

	snap, err := f.queue.Snapshot(ctx, models.GameTypeFallingBlocks)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestQueueRejections(t *testing.T) {
	f := newFixture(t, staticRater{"a": 10})
	ctx := context.Background()

	_, err := f.svc.Queue(ctx, "a", "Ada", "chess")
	assert.ErrorIs(t, err, ErrInvalidGameType)

	_, err = f.svc.Queue(ctx, "a", "Ada", models.GameTypeBlink)
	require.NoError(t, err)
	_, err = f.svc.Queue(ctx, "a", "Ada", models.GameTypeSpeedRace)
	assert.ErrorIs(t, err, ErrAlreadyQueued)

	_, err = f.rooms.Create(ctx, room.CreateParams{HostID: "host", HostName: "H", GameType: models.GameTypeBlink})
	require.NoError(t, err)
	_, err = f.svc.Queue(ctx, "host", "H", models.GameTypeBlink)
	assert.ErrorIs(t, err, ErrInRoom)
}

func TestQueueWithoutRatingDefaultsToBeginner(t *testing.T) {
	f := newFixture(t, staticRater{})
	entry, err := f.svc.Queue(context.Background(), "new", "Newbie", models.GameTypeBlink)
	require.NoError(t, err)
	assert.Equal(t, models.TierBeginner, entry.SkillTier)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, staticRater{"a": 10, "b": 12})
	ctx := context.Background()
	_, err := f.svc.Queue(ctx, "a", "Ada", models.GameTypeBlink)
	require.NoError(t, err)
	_, err = f.svc.Queue(ctx, "b", "Bob", models.GameTypeBlink)
	require.NoError(t, err)

	removed, err := f.svc.Cancel(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = f.svc.Cancel(ctx, "a")
	require.NoError(t, err)
	assert.False(t, removed)

	rooms, err := f.svc.MatchOnce(ctx, models.GameTypeBlink)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestDifferentTiersWaitBeforeCrossing(t *testing.T) {
	f := newFixture(t, staticRater{"beg": 25, "mid": 34})
	ctx := context.Background()
	_, err := f.svc.Queue(ctx, "beg", "B", models.GameTypeSpeedRace)
	require.NoError(t, err)
	_, err = f.svc.Queue(ctx, "mid", "M", models.GameTypeSpeedRace)
	require.NoError(t, err)

	f.advance(20 * time.Second)
	rooms, err := f.svc.MatchOnce(ctx, models.GameTypeSpeedRace)
	require.NoError(t, err)
	assert.Empty(t, rooms, "tiers stay apart for the first 30s")

	f.advance(15 * time.Second)
	rooms, err = f.svc.MatchOnce(ctx, models.GameTypeSpeedRace)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.ElementsMatch(t, []string{"beg", "mid"}, rooms[0].PlayerIDs())
}

func TestTimeoutEvicts(t *testing.T) {
	f := newFixture(t, staticRater{"lonely": 90})
	ctx := context.Background()
	_, err := f.svc.Queue(ctx, "lonely", "L", models.GameTypeBlink)
	require.NoError(t, err)

	f.advance(61 * time.Second)
	_, err = f.svc.MatchOnce(ctx, models.GameTypeBlink)
	require.NoError(t, err)
	assert.Equal(t, []string{"lonely"}, f.notifier.timedOut)

	snap, err := f.queue.Snapshot(ctx, models.GameTypeBlink)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestPlayerAlreadyInRoomIsNeverMatched(t *testing.T) {
	f := newFixture(t, staticRater{"a": 10, "b": 12})
	ctx := context.Background()
	_, err := f.svc.Queue(ctx, "a", "Ada", models.GameTypeBlink)
	require.NoError(t, err)
	_, err = f.svc.Queue(ctx, "b", "Bob", models.GameTypeBlink)
	require.NoError(t, err)

	_, err = f.rooms.Create(ctx, room.CreateParams{HostID: "a", HostName: "Ada", GameType: models.GameTypeBlink})
	require.NoError(t, err)

	rooms, err := f.svc.MatchOnce(ctx, models.GameTypeBlink)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	snap, err := f.queue.Snapshot(ctx, models.GameTypeBlink)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "b", snap[0].PlayerID)
}

func TestGroupsCapAtFour(t *testing.T) {
	ratings := staticRater{}
	for i := 0; i < 6; i++ {
		ratings[fmt.Sprintf("p%d", i)] = 10 + float64(i)
	}
	f := newFixture(t, ratings)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := f.svc.Queue(ctx, fmt.Sprintf("p%d", i), "x", models.GameTypeFallingWords)
		require.NoError(t, err)
		f.advance(time.Millisecond)
	}

	rooms, err := f.svc.MatchOnce(ctx, models.GameTypeFallingWords)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, []string{"p0", "p1", "p2", "p3"}, rooms[0].PlayerIDs())
	assert.Equal(t, []string{"p4", "p5"}, rooms[1].PlayerIDs())
}

func TestDistantExpertsMatchBeforeTimeout(t *testing.T) {
	f := newFixture(t, staticRater{"a": 75, "b": 140})
	ctx := context.Background()

	_, err := f.svc.Queue(ctx, "a", "Ada", models.GameTypeBlink)
	require.NoError(t, err)
	_, err = f.svc.Queue(ctx, "b", "Bob", models.GameTypeBlink)
	require.NoError(t, err)

	f.advance(5 * time.Second)
	rooms, err := f.svc.MatchOnce(ctx, models.GameTypeBlink)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, rooms[0].PlayerIDs())
	assert.Empty(t, f.notifier.timedOut)
}

func TestFormGroupsSameTierIgnoresRatingGap(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	mk := func(id string, rating float64) models.MatchQueueEntry {
		return models.MatchQueueEntry{PlayerID: id, Rating: rating, SkillTier: TierFor(rating), JoinedAt: now}
	}

	tests := []struct {
		name    string
		entries []models.MatchQueueEntry
	}{
		{"fresh beginners", []models.MatchQueueEntry{mk("a", 2), mk("b", 28)}},
		{"beginners at the edges", []models.MatchQueueEntry{mk("a", 0), mk("b", 25)}},
		{"unbounded expert tier", []models.MatchQueueEntry{mk("a", 75), mk("b", 140)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := formGroups(tt.entries, now, 30*time.Second, 4)
			require.Len(t, groups, 1)
			assert.Len(t, groups[0], 2)
		})
	}
}

func TestFormGroupsRespectsRatingRange(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	mk := func(id string, rating float64, waited time.Duration) models.MatchQueueEntry {
		return models.MatchQueueEntry{PlayerID: id, Rating: rating, SkillTier: TierFor(rating), JoinedAt: now.Add(-waited)}
	}

	early := []models.MatchQueueEntry{mk("a", 25, 20*time.Second), mk("b", 34, 20*time.Second)}
	assert.Empty(t, formGroups(early, now, 30*time.Second, 4), "tiers stay apart before crossTierAfter")

	patient := []models.MatchQueueEntry{mk("a", 25, 45*time.Second), mk("b", 34, 0)}
	groups := formGroups(patient, now, 30*time.Second, 4)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)

	farApart := []models.MatchQueueEntry{mk("a", 5, 50*time.Second), mk("b", 45, 50*time.Second)}
	assert.Empty(t, formGroups(farApart, now, 30*time.Second, 4), "never beyond 30 points")

	skipTier := []models.MatchQueueEntry{mk("a", 29, 50*time.Second), mk("b", 55, 50*time.Second)}
	assert.Empty(t, formGroups(skipTier, now, 30*time.Second, 4), "only adjacent tiers mix")
}

func TestRunStopsWithContext(t *testing.T) {
	f := newFixture(t, staticRater{})
	f.svc.cfg.Interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
