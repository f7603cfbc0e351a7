package handlers

import (
	"context"
	"time"

	"github.com/mapleleafu/typearena/typearena-backend/arena"
	"github.com/mapleleafu/typearena/typearena-backend/logger"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/room"
	"github.com/rs/zerolog"
)

// MatchNotifier tells matched players where to go and starts their game.
type MatchNotifier struct {
	hub   *Hub
	rooms *room.Manager
	arena *arena.Arena
	log   zerolog.Logger
}

func NewMatchNotifier(hub *Hub, rooms *room.Manager, a *arena.Arena) *MatchNotifier {
	return &MatchNotifier{hub: hub, rooms: rooms, arena: a, log: logger.Component("match-notifier")}
}

func (n *MatchNotifier) MatchFound(ctx context.Context, r *models.Room) {
	for _, p := range r.Players {
		n.hub.SendTo(p.PlayerID, models.EventMatchFound, models.MatchFoundPayload{RoomID: r.RoomID})
		n.hub.SendTo(p.PlayerID, models.EventRoomUpdated, r.Public())
	}

	started, err := n.rooms.StartMatched(ctx, r.RoomID)
	if err != nil {
		n.log.Error().Err(err).Str("roomId", r.RoomID).Msg("could not start matched room")
		return
	}
	if err := n.arena.StartGame(ctx, started); err != nil {
		n.log.Warn().Err(err).Str("roomId", r.RoomID).Msg("matched game did not start")
	}
}

func (n *MatchNotifier) MatchTimeout(entry models.MatchQueueEntry, waited time.Duration) {
	n.hub.SendTo(entry.PlayerID, models.EventMatchTimeout, models.MatchTimeoutPayload{
		GameType: entry.GameType,
		Waited:   waited.Milliseconds(),
	})
}
