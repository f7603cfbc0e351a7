package handlers

import (
	"errors"

	"github.com/mapleleafu/typearena/typearena-backend/arena"
	"github.com/mapleleafu/typearena/typearena-backend/matchmaking"
	"github.com/mapleleafu/typearena/typearena-backend/repository"
	"github.com/mapleleafu/typearena/typearena-backend/responses"
	"github.com/mapleleafu/typearena/typearena-backend/room"
	"github.com/rs/zerolog/log"
)

// apiError turns a domain error into a client-facing one. Unknown errors
// become internal errors so nothing internal leaks out.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var already responses.APIError
	if errors.As(err, &already) {
		return already
	}

	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, repository.ErrNotFound):
		return responses.NotFoundError{Msg: err.Error(), ErrCode: "room_not_found"}
	case errors.Is(err, room.ErrRoomFull):
		return responses.ConflictError{Msg: err.Error(), ErrCode: "room_full"}
	case errors.Is(err, room.ErrRoomNotWaiting):
		return responses.ConflictError{Msg: err.Error(), ErrCode: "room_not_waiting"}
	case errors.Is(err, room.ErrWrongPassword):
		return responses.ForbiddenError{Msg: err.Error(), ErrCode: "wrong_password"}
	case errors.Is(err, room.ErrNotHost):
		return responses.ForbiddenError{Msg: err.Error(), ErrCode: "not_host"}
	case errors.Is(err, room.ErrNotInRoom):
		return responses.ConflictError{Msg: err.Error(), ErrCode: "not_in_room"}
	case errors.Is(err, room.ErrAlreadyInRoom), errors.Is(err, matchmaking.ErrInRoom):
		return responses.ConflictError{Msg: err.Error(), ErrCode: "already_in_room"}
	case errors.Is(err, room.ErrNotEnoughPlayers), errors.Is(err, arena.ErrNotEnoughPlayers):
		return responses.ConflictError{Msg: err.Error(), ErrCode: "not_enough_players"}
	case errors.Is(err, room.ErrPlayersNotReady):
		return responses.ConflictError{Msg: err.Error(), ErrCode: "players_not_ready"}
	case errors.Is(err, room.ErrCannotKickSelf):
		return responses.BadRequestError{Msg: err.Error(), ErrCode: "cannot_kick_self"}
	case errors.Is(err, room.ErrInvalidRoom):
		return responses.BadRequestError{Msg: err.Error(), ErrCode: "invalid_room"}
	case errors.Is(err, matchmaking.ErrInvalidGameType):
		return responses.BadRequestError{Msg: err.Error(), ErrCode: "invalid_game_type"}
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		return responses.ConflictError{Msg: err.Error(), ErrCode: "already_queued"}
	case errors.Is(err, arena.ErrGameRunning):
		return responses.ConflictError{Msg: err.Error(), ErrCode: "game_running"}
	}
	log.Error().Err(err).Msg("unexpected error")
	return responses.InternalServerError{Msg: "An error occurred while processing your request."}
}
