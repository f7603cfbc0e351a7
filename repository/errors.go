package repository

import "errors"

var (
	ErrNotFound       = errors.New("record not found")
	ErrAlreadyQueued  = errors.New("player is already queued")
	ErrUnexpectedData = errors.New("unexpected storage error")
)
