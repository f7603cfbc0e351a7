package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps one FIFO per game type as a sorted set scored by join
// time, with each entry's details stored beside it.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func queueKey(gameType models.GameType) string {
	return "match:queue:" + string(gameType)
}

func queueEntryKey(playerID string) string {
	return "match:entry:" + playerID
}

var enqueueScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[2], ARGV[3])
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// Enqueue adds a player to their game type's queue. A player can only be
// queued once, for one game type.
func (q *RedisQueue) Enqueue(ctx context.Context, entry models.MatchQueueEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding queue entry: %w", err)
	}
	added, err := enqueueScript.Run(ctx, q.client,
		[]string{queueKey(entry.GameType), queueEntryKey(entry.PlayerID)},
		entry.JoinedAt.UnixMilli(), entry.PlayerID, raw).Int()
	if err != nil {
		return fmt.Errorf("enqueueing player: %w", err)
	}
	if added == 0 {
		return ErrAlreadyQueued
	}
	return nil
}

// Entry returns a player's queue entry.
func (q *RedisQueue) Entry(ctx context.Context, playerID string) (*models.MatchQueueEntry, error) {
	raw, err := q.client.Get(ctx, queueEntryKey(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading queue entry: %w", err)
	}
	var entry models.MatchQueueEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decoding queue entry: %w", err)
	}
	return &entry, nil
}

// Remove takes a player out of whichever queue they are in. It reports
// whether they were queued.
func (q *RedisQueue) Remove(ctx context.Context, playerID string) (bool, error) {
	entry, err := q.Entry(ctx, playerID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return q.Claim(ctx, entry.GameType, []string{playerID})
}

func (q *RedisQueue) Contains(ctx context.Context, playerID string) (bool, error) {
	n, err := q.client.Exists(ctx, queueEntryKey(playerID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking queue: %w", err)
	}
	return n == 1, nil
}

// Snapshot returns the queue for one game type, oldest first.
func (q *RedisQueue) Snapshot(ctx context.Context, gameType models.GameType) ([]models.MatchQueueEntry, error) {
	ids, err := q.client.ZRange(ctx, queueKey(gameType), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading queue: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = queueEntryKey(id)
	}
	values, err := q.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading queue entries: %w", err)
	}

	entries := make([]models.MatchQueueEntry, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry models.MatchQueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decoding queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var claimScript = redis.NewScript(`
for i = 1, #ARGV do
	if not redis.call("ZSCORE", KEYS[1], ARGV[i]) then
		return 0
	end
end
for i = 1, #ARGV do
	redis.call("ZREM", KEYS[1], ARGV[i])
	redis.call("DEL", "match:entry:" .. ARGV[i])
end
return 1
`)

// Claim removes every listed player from the queue in one step, or none of
// them if any is no longer queued.
func (q *RedisQueue) Claim(ctx context.Context, gameType models.GameType, playerIDs []string) (bool, error) {
	if len(playerIDs) == 0 {
		return false, nil
	}
	args := make([]any, len(playerIDs))
	for i, id := range playerIDs {
		args[i] = id
	}
	ok, err := claimScript.Run(ctx, q.client, []string{queueKey(gameType)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("claiming queue entries: %w", err)
	}
	return ok == 1, nil
}
