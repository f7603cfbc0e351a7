//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/repository"
	"github.com/mapleleafu/typearena/typearena-backend/repository/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/lib/pq"
)

var store *repository.PostgresStore

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("typearena"),
		postgres.WithUsername("arena"),
		postgres.WithPassword("arena"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}
	db, err := sql.Open("postgres", connString)
	if err != nil {
		panic(err)
	}
	if err := migrations.Migrate(db); err != nil {
		panic(err)
	}
	store = repository.NewPostgresStore(db)

	code := m.Run()

	db.Close()
	container.Terminate(ctx)
	os.Exit(code)
}

func TestPostgresStoreRooms(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	room := &models.Room{
		RoomID:     "room-pg",
		GameType:   models.GameTypeFallingWords,
		RoomName:   "Evening",
		MaxPlayers: 4,
		Status:     models.RoomStatusWaiting,
		Players: []models.RoomPlayer{
			{PlayerID: "p1", DisplayName: "Ada", IsHost: true, JoinedAt: created},
		},
		Settings:  models.RoomSettings{Seed: 7},
		CreatedAt: created,
		UpdatedAt: created,
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		require.NoError(t, store.SaveRoom(ctx, room))
		got, err := store.GetRoom(ctx, "room-pg")
		require.NoError(t, err)
		assert.Equal(t, "Evening", got.RoomName)
		assert.Equal(t, uint32(7), got.Settings.Seed)
		require.Len(t, got.Players, 1)
		assert.True(t, got.Players[0].IsHost)
	})

	t.Run("Upsert", func(t *testing.T) {
		room.Status = models.RoomStatusPlaying
		require.NoError(t, store.SaveRoom(ctx, room))
		got, err := store.GetRoom(ctx, "room-pg")
		require.NoError(t, err)
		assert.Equal(t, models.RoomStatusPlaying, got.Status)
	})

	t.Run("List", func(t *testing.T) {
		playing, err := store.ListRooms(ctx, models.GameTypeFallingWords, models.RoomStatusPlaying)
		require.NoError(t, err)
		assert.Len(t, playing, 1)

		waiting, err := store.ListRooms(ctx, "", models.RoomStatusWaiting)
		require.NoError(t, err)
		assert.Empty(t, waiting)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.DeleteRoom(ctx, "room-pg"))
		_, err := store.GetRoom(ctx, "room-pg")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestPostgresStoreSessions(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		ended := base.Add(time.Duration(i) * time.Minute)
		err := store.RecordSession(ctx, models.CompletedSession{
			SessionID: "s-" + string(rune('a'+i)),
			RoomID:    "room-h",
			GameType:  models.GameTypeBlink,
			Seed:      uint32(i),
			StartedAt: ended.Add(-time.Minute),
			EndedAt:   ended,
			Reason:    models.EndReasonCompleted,
			WinnerID:  "p1",
			Players: []models.SessionPlayer{
				{PlayerID: "p1", DisplayName: "Ada", Score: 100 + i, WPM: float64(40 + i), Accuracy: 95, Rank: 1},
				{PlayerID: "p2", DisplayName: "Lin", Score: 50, WPM: 30, Accuracy: 90, Rank: 2},
			},
		})
		require.NoError(t, err)
	}

	history, err := store.RecentSessions(ctx, "p1", models.GameTypeBlink, 10)
	require.NoError(t, err)
	require.Len(t, history, 10)
	assert.InDelta(t, 51.0, history[0].WPM, 1e-9, "newest first")

	none, err := store.RecentSessions(ctx, "p1", models.GameTypeSpeedRace, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	summaries, err := store.PlayerSessions(ctx, "p2", 5)
	require.NoError(t, err)
	require.Len(t, summaries, 5)
	assert.Equal(t, 2, summaries[0].Rank)
	assert.Equal(t, "p1", summaries[0].WinnerID)
}
