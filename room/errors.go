package room

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrRoomNotWaiting   = errors.New("room is not accepting players")
	ErrWrongPassword    = errors.New("wrong room password")
	ErrNotHost          = errors.New("only the host can do that")
	ErrNotInRoom        = errors.New("player is not in this room")
	ErrAlreadyInRoom    = errors.New("player is already in another room")
	ErrNotEnoughPlayers = errors.New("at least two players are needed")
	ErrPlayersNotReady  = errors.New("not every player is ready")
	ErrCannotKickSelf   = errors.New("host cannot kick themselves")
	ErrInvalidRoom      = errors.New("invalid room settings")
	ErrStorage          = errors.New("room storage unavailable")
)
