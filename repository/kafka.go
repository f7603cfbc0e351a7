package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/segmentio/kafka-go"
)

// LeaderboardEvent is what downstream leaderboard jobs consume, one per
// finished game.
type LeaderboardEvent struct {
	SessionID string                 `json:"sessionId"`
	RoomID    string                 `json:"roomId"`
	GameType  models.GameType        `json:"gameType"`
	Reason    models.EndReason       `json:"reason"`
	WinnerID  string                 `json:"winnerId,omitempty"`
	EndedAt   time.Time              `json:"endedAt"`
	Players   []models.SessionPlayer `json:"players"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher feeds completed sessions to the leaderboard topic, keyed
// by room so one room's games stay ordered.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) RecordSession(ctx context.Context, session models.CompletedSession) error {
	value, err := json.Marshal(LeaderboardEvent{
		SessionID: session.SessionID,
		RoomID:    session.RoomID,
		GameType:  session.GameType,
		Reason:    session.Reason,
		WinnerID:  session.WinnerID,
		EndedAt:   session.EndedAt,
		Players:   session.Players,
	})
	if err != nil {
		return fmt.Errorf("encoding leaderboard event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(session.RoomID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "gameType", Value: []byte(session.GameType)},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing leaderboard event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
