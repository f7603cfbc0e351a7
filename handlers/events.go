package handlers

import (
	"context"
	"encoding/json"

	"github.com/mapleleafu/typearena/typearena-backend/game"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/responses"
	"github.com/mapleleafu/typearena/typearena-backend/room"
	"github.com/mapleleafu/typearena/typearena-backend/utils"
)

const reasonRateLimited = "rate_limited"

var errBadPayload = responses.BadRequestError{Msg: "Invalid request.", ErrCode: "bad_request"}

type eventHandler func(ctx context.Context, c *Connection, data json.RawMessage) (models.AckResponse, error)

func (s *Server) eventHandlers() map[string]eventHandler {
	return map[string]eventHandler{
		models.EventRoomCreate:  s.handleRoomCreate,
		models.EventRoomJoin:    s.handleRoomJoin,
		models.EventRoomLeave:   s.handleRoomLeave,
		models.EventRoomReady:   s.handleRoomReady,
		models.EventRoomStart:   s.handleRoomStart,
		models.EventRoomKick:    s.handleRoomKick,
		models.EventMatchQueue:  s.handleMatchQueue,
		models.EventMatchCancel: s.handleMatchCancel,
	}
}

func (s *Server) processMessage(c *Connection, raw []byte) {
	var envelope models.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.Hub.reply(c, models.OutboundEnvelope{Event: models.EventError, Data: models.ErrorPayload{Error: errBadPayload.Code()}})
		return
	}

	if !c.limiter.Allow() {
		s.log.Debug().Str("playerId", c.playerID).Str("event", envelope.Event).Msg("rate limited")
		s.Hub.reply(c, utils.Ack(envelope.Ack, models.AckResponse{}, responses.BadRequestError{Msg: "Slow down.", ErrCode: reasonRateLimited}))
		return
	}

	if envelope.Event == models.EventGameInput {
		s.handleGameInput(c, envelope)
		return
	}

	handler, ok := s.handlers[envelope.Event]
	if !ok {
		s.Hub.reply(c, utils.Ack(envelope.Ack, models.AckResponse{}, responses.BadRequestError{Msg: "Unknown event.", ErrCode: "unknown_event"}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	resp, err := handler(ctx, c, envelope.Data)
	s.Hub.reply(c, utils.Ack(envelope.Ack, resp, apiError(err)))
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errBadPayload
	}
	return nil
}

func publicRoom(r *models.Room) *models.PublicRoom {
	p := r.Public()
	return &p
}

func (s *Server) handleRoomCreate(ctx context.Context, c *Connection, data json.RawMessage) (models.AckResponse, error) {
	var msg models.CreateRoomMessage
	if err := decode(data, &msg); err != nil {
		return models.AckResponse{}, err
	}
	created, err := s.Rooms.Create(ctx, room.CreateParams{
		HostID:     c.playerID,
		HostName:   c.displayName,
		GameType:   msg.GameType,
		RoomName:   msg.RoomName,
		Password:   msg.Password,
		MaxPlayers: msg.MaxPlayers,
		Settings:   msg.Settings,
	})
	if err != nil {
		return models.AckResponse{}, err
	}
	s.Hub.SendTo(c.playerID, models.EventRoomCreated, created.Public())
	return models.AckResponse{Room: publicRoom(created)}, nil
}

func (s *Server) handleRoomJoin(ctx context.Context, c *Connection, data json.RawMessage) (models.AckResponse, error) {
	var msg models.JoinRoomMessage
	if err := decode(data, &msg); err != nil {
		return models.AckResponse{}, err
	}
	joined, err := s.Rooms.Join(ctx, msg.RoomID, c.playerID, c.displayName, msg.Password)
	if err != nil {
		return models.AckResponse{}, err
	}
	s.broadcastRoom(joined, models.EventPlayerJoined, models.PlayerEventPayload{
		RoomID:      joined.RoomID,
		PlayerID:    c.playerID,
		DisplayName: c.displayName,
	}, c.playerID)
	s.roomUpdated(joined)
	return models.AckResponse{Room: publicRoom(joined)}, nil
}

func (s *Server) handleRoomLeave(ctx context.Context, c *Connection, data json.RawMessage) (models.AckResponse, error) {
	var msg models.RoomMessage
	if err := decode(data, &msg); err != nil {
		return models.AckResponse{}, err
	}
	if err := s.leaveRoom(ctx, msg.RoomID, c.playerID); err != nil {
		return models.AckResponse{}, err
	}
	return models.AckResponse{RoomID: msg.RoomID}, nil
}

// leaveRoom removes a player from a room and its game, telling everyone
// who is left.
func (s *Server) leaveRoom(ctx context.Context, roomID, playerID string) error {
	if inGame, ok := s.Arena.InGame(playerID); ok && inGame == roomID {
		s.Arena.PlayerDisconnected(playerID)
	}
	remaining, err := s.Rooms.Leave(ctx, roomID, playerID)
	if err != nil {
		return err
	}
	if remaining == nil {
		s.Hub.SendTo(playerID, models.EventRoomDeleted, models.RoomDeletedPayload{RoomID: roomID})
		return nil
	}
	s.broadcastRoom(remaining, models.EventPlayerLeft, models.PlayerEventPayload{RoomID: roomID, PlayerID: playerID}, "")
	s.roomUpdated(remaining)
	return nil
}

func (s *Server) handleRoomReady(ctx context.Context, c *Connection, data json.RawMessage) (models.AckResponse, error) {
	var msg models.RoomMessage
	if err := decode(data, &msg); err != nil {
		return models.AckResponse{}, err
	}
	updated, err := s.Rooms.ToggleReady(ctx, msg.RoomID, c.playerID)
	if err != nil {
		return models.AckResponse{}, err
	}
	ready := updated.Player(c.playerID).IsReady
	s.broadcastRoom(updated, models.EventPlayerReady, models.PlayerEventPayload{
		RoomID:   updated.RoomID,
		PlayerID: c.playerID,
		IsReady:  &ready,
	}, "")
	s.roomUpdated(updated)
	return models.AckResponse{Room: publicRoom(updated)}, nil
}

func (s *Server) handleRoomKick(ctx context.Context, c *Connection, data json.RawMessage) (models.AckResponse, error) {
	var msg models.KickMessage
	if err := decode(data, &msg); err != nil {
		return models.AckResponse{}, err
	}
	updated, err := s.Rooms.Kick(ctx, msg.RoomID, c.playerID, msg.PlayerID)
	if err != nil {
		return models.AckResponse{}, err
	}
	if inGame, ok := s.Arena.InGame(msg.PlayerID); ok && inGame == msg.RoomID {
		s.Arena.PlayerDisconnected(msg.PlayerID)
	}

	kicked := models.PlayerEventPayload{RoomID: msg.RoomID, PlayerID: msg.PlayerID}
	s.Hub.SendTo(msg.PlayerID, models.EventPlayerKicked, kicked)
	s.broadcastRoom(updated, models.EventPlayerKicked, kicked, "")
	s.roomUpdated(updated)
	return models.AckResponse{Room: publicRoom(updated)}, nil
}

func (s *Server) handleRoomStart(ctx context.Context, c *Connection, data json.RawMessage) (models.AckResponse, error) {
	var msg models.RoomMessage
	if err := decode(data, &msg); err != nil {
		return models.AckResponse{}, err
	}
	started, err := s.Rooms.Start(ctx, msg.RoomID, c.playerID)
	if err != nil {
		return models.AckResponse{}, err
	}
	s.roomUpdated(started)
	if err := s.Arena.StartGame(ctx, started); err != nil {
		return models.AckResponse{}, err
	}
	return models.AckResponse{RoomID: started.RoomID}, nil
}

func (s *Server) handleMatchQueue(ctx context.Context, c *Connection, data json.RawMessage) (models.AckResponse, error) {
	var msg models.QueueMessage
	if err := decode(data, &msg); err != nil {
		return models.AckResponse{}, err
	}
	entry, err := s.Match.Queue(ctx, c.playerID, c.displayName, msg.GameType)
	if err != nil {
		return models.AckResponse{}, err
	}
	s.Hub.SendTo(c.playerID, models.EventMatchQueued, entry)
	return models.AckResponse{}, nil
}

func (s *Server) handleMatchCancel(ctx context.Context, c *Connection, _ json.RawMessage) (models.AckResponse, error) {
	removed, err := s.Match.Cancel(ctx, c.playerID)
	if err != nil {
		return models.AckResponse{}, err
	}
	if removed {
		s.Hub.SendTo(c.playerID, models.EventMatchCancelled, struct{}{})
	}
	return models.AckResponse{}, nil
}

// handleGameInput is the hot path. Rejections go back as
// game:input:rejected; an ack is only sent if the client asked for one.
func (s *Server) handleGameInput(c *Connection, envelope models.Envelope) {
	var msg models.GameInputMessage
	if err := decode(envelope.Data, &msg); err != nil {
		s.Hub.reply(c, models.OutboundEnvelope{Event: models.EventGameInputRejected, Data: models.InputRejectedPayload{Reason: game.RejectInvalidInput}})
		return
	}

	outcome := s.Arena.HandleInput(msg.RoomID, c.playerID, msg.Input)
	if !outcome.Accepted {
		s.Hub.reply(c, models.OutboundEnvelope{Event: models.EventGameInputRejected, Data: models.InputRejectedPayload{
			Reason:   outcome.Reason,
			Severity: outcome.Severity,
			Input:    msg.Input,
		}})
	}
	if envelope.Ack != nil {
		resp := models.AckResponse{Success: outcome.Accepted, Error: outcome.Reason}
		s.Hub.reply(c, models.OutboundEnvelope{Event: models.EventAck, Ack: envelope.Ack, Data: resp})
	}
}
