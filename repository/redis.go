package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const roomTTL = 24 * time.Hour

// ConnectRedis builds a client and checks the server answers.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	log.Info().Str("addr", addr).Msg("Successfully connected to Redis")
	return client, nil
}

// RedisCache is the fast copy of every live room, plus the index of which
// room each player is in.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func roomKey(roomID string) string {
	return "room:" + roomID
}

func playerRoomKey(playerID string) string {
	return "player:" + playerID + ":room"
}

func (c *RedisCache) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	raw, err := c.client.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("decoding cached room: %w", err)
	}
	return &room, nil
}

func (c *RedisCache) SetRoom(ctx context.Context, room *models.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encoding room: %w", err)
	}
	if err := c.client.Set(ctx, roomKey(room.RoomID), raw, roomTTL).Err(); err != nil {
		return fmt.Errorf("caching room: %w", err)
	}
	return nil
}

func (c *RedisCache) DeleteRoom(ctx context.Context, roomID string) error {
	if err := c.client.Del(ctx, roomKey(roomID)).Err(); err != nil {
		return fmt.Errorf("evicting room: %w", err)
	}
	return nil
}

// ClaimPlayer records that a player is in roomID. It only succeeds if the
// player is in no room or already in this one, so a player can never be
// in two rooms at once.
func (c *RedisCache) ClaimPlayer(ctx context.Context, playerID, roomID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, playerRoomKey(playerID), roomID, roomTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claiming player: %w", err)
	}
	if ok {
		return true, nil
	}
	current, err := c.PlayerRoom(ctx, playerID)
	if err != nil {
		return false, err
	}
	return current == roomID, nil
}

var releasePlayerScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReleasePlayer clears the player's room only if it still points at roomID.
func (c *RedisCache) ReleasePlayer(ctx context.Context, playerID, roomID string) error {
	if err := releasePlayerScript.Run(ctx, c.client, []string{playerRoomKey(playerID)}, roomID).Err(); err != nil {
		return fmt.Errorf("releasing player: %w", err)
	}
	return nil
}

// PlayerRoom returns the room a player is in, or "" if none.
func (c *RedisCache) PlayerRoom(ctx context.Context, playerID string) (string, error) {
	roomID, err := c.client.Get(ctx, playerRoomKey(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading player room: %w", err)
	}
	return roomID, nil
}
