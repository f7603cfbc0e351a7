package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mapleleafu/typearena/typearena-backend/config"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/rs/zerolog/log"
)

// ConnectToPostgreSQL opens the pool and checks it is reachable.
func ConnectToPostgreSQL(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("Successfully connected to PostgreSQL")
	return db, nil
}

// PostgresStore is the durable record of rooms and completed sessions. It
// also answers skill history queries.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func wrapDBError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUnexpectedData, err)
	}
}

func (s *PostgresStore) SaveRoom(ctx context.Context, room *models.Room) error {
	players, err := json.Marshal(room.Players)
	if err != nil {
		return fmt.Errorf("encoding room players: %w", err)
	}
	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return fmt.Errorf("encoding room settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (room_id, game_type, room_name, password_hash, max_players, status, players, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (room_id) DO UPDATE SET
			room_name = EXCLUDED.room_name,
			password_hash = EXCLUDED.password_hash,
			max_players = EXCLUDED.max_players,
			status = EXCLUDED.status,
			players = EXCLUDED.players,
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at`,
		room.RoomID, room.GameType, room.RoomName, room.PasswordHash, room.MaxPlayers,
		room.Status, players, settings, room.CreatedAt, room.UpdatedAt)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

const roomColumns = `room_id, game_type, room_name, password_hash, max_players, status, players, settings, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var (
		room     models.Room
		players  []byte
		settings []byte
	)
	err := row.Scan(&room.RoomID, &room.GameType, &room.RoomName, &room.PasswordHash, &room.MaxPlayers,
		&room.Status, &players, &settings, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(players, &room.Players); err != nil {
		return nil, fmt.Errorf("decoding room players: %w", err)
	}
	if err := json.Unmarshal(settings, &room.Settings); err != nil {
		return nil, fmt.Errorf("decoding room settings: %w", err)
	}
	return &room, nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_id = $1`, roomID)
	room, err := scanRoom(row)
	if err != nil {
		return nil, wrapDBError(err)
	}
	return room, nil
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID); err != nil {
		return wrapDBError(err)
	}
	return nil
}

// ListRooms returns rooms in the given status, newest first. An empty
// gameType matches every game.
func (s *PostgresStore) ListRooms(ctx context.Context, gameType models.GameType, status models.RoomStatus) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE status = $1 AND ($2 = '' OR game_type = $2)
		ORDER BY created_at DESC
		LIMIT 100`, status, gameType)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	rooms := []models.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, wrapDBError(err)
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}
	return rooms, nil
}

// RecordSession stores a finished game and one row per player. The player
// rows are what skill rating reads back.
func (s *PostgresStore) RecordSession(ctx context.Context, session models.CompletedSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError(err)
	}
	defer tx.Rollback()

	playerIDs := make([]string, 0, len(session.Players))
	for _, p := range session.Players {
		playerIDs = append(playerIDs, p.PlayerID)
	}
	finalState := []byte(session.FinalState)
	if len(finalState) == 0 {
		finalState = []byte("{}")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO game_sessions (session_id, room_id, game_type, seed, started_at, ended_at, reason, winner_id, player_ids, final_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)`,
		session.SessionID, session.RoomID, session.GameType, int64(session.Seed),
		session.StartedAt, session.EndedAt, session.Reason, session.WinnerID,
		pq.Array(playerIDs), finalState)
	if err != nil {
		return wrapDBError(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO game_session_players (session_id, player_id, display_name, game_type, score, wpm, accuracy, keystrokes, errors, finished, rank, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return wrapDBError(err)
	}
	defer stmt.Close()

	for _, p := range session.Players {
		_, err := stmt.ExecContext(ctx, session.SessionID, p.PlayerID, p.DisplayName, session.GameType,
			p.Score, p.WPM, p.Accuracy, p.Keystrokes, p.Errors, p.Finished, p.Rank, session.EndedAt)
		if err != nil {
			return wrapDBError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError(err)
	}
	return nil
}

// RecentSessions returns a player's latest results for one game type,
// newest first.
func (s *PostgresStore) RecentSessions(ctx context.Context, playerID string, gameType models.GameType, limit int) ([]models.SessionMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wpm, accuracy, ended_at FROM game_session_players
		WHERE player_id = $1 AND game_type = $2
		ORDER BY ended_at DESC
		LIMIT $3`, playerID, gameType, limit)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	var out []models.SessionMetrics
	for rows.Next() {
		var m models.SessionMetrics
		if err := rows.Scan(&m.WPM, &m.Accuracy, &m.EndedAt); err != nil {
			return nil, wrapDBError(err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}
	return out, nil
}

// PlayerSessions lists the sessions a player took part in, newest first.
func (s *PostgresStore) PlayerSessions(ctx context.Context, playerID string, limit int) ([]models.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.room_id, s.game_type, s.started_at, s.ended_at, COALESCE(s.winner_id, ''),
		       p.score, p.wpm, p.accuracy, p.rank
		FROM game_sessions s
		JOIN game_session_players p ON p.session_id = s.session_id
		WHERE $1 = ANY(s.player_ids) AND p.player_id = $1
		ORDER BY s.ended_at DESC
		LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	out := []models.SessionSummary{}
	for rows.Next() {
		var (
			sum            models.SessionSummary
			started, ended time.Time
		)
		err := rows.Scan(&sum.SessionID, &sum.RoomID, &sum.GameType, &started, &ended, &sum.WinnerID,
			&sum.Score, &sum.WPM, &sum.Accuracy, &sum.Rank)
		if err != nil {
			return nil, wrapDBError(err)
		}
		sum.StartedAt, sum.EndedAt = started.UTC(), ended.UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}
	return out, nil
}
