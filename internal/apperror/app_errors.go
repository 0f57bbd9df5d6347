package apperror

import "errors"

var (
	ErrGameNotFound     = errors.New("no valid game associated with the request")
	ErrGameFinished     = errors.New("game is already finished")
	ErrNotYourTurn      = errors.New("played the wrong color, it's not their turn")
	ErrWrongPlayer      = errors.New("played the right color, but by the wrong player")
	ErrNotRegistered    = errors.New("request came from an unregistered player")
	ErrNotInRoom        = errors.New("player is not in a room")
	ErrTargetNotInRoom  = errors.New("user is no longer in room")
	ErrRoomJoinInternal = errors.New("server internal error joining chat room")
)
