package service

import "errors"

var (
	ErrGameNotFound  = errors.New("game not found")
	ErrPhaseNotFound = errors.New("phase not found")
	ErrNotInGame     = errors.New("not a player in this game")
	ErrNoActivePhase = errors.New("no active phase")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrInvalidGame   = errors.New("invalid game settings")
	ErrWrongPhase    = errors.New("phase is not open")
)
