package model

import "errors"

// Engine error taxonomy. Callers match with errors.Is.
var (
	// ErrUnknownPlayer means no statistics exist for the player, or the
	// identity directory cannot resolve it.
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrInvalidRange means skip < 0 or limit <= 0.
	ErrInvalidRange = errors.New("invalid range")
	// ErrConflict means write contention survived the bounded retry.
	ErrConflict = errors.New("conflict")
	// ErrTimeout means the request deadline passed.
	ErrTimeout = errors.New("timeout")
	// ErrStoreUnavailable means the backing store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidResult means a submitted GameResult is malformed.
	ErrInvalidResult = errors.New("invalid game result")
	// ErrBackpressure means the ingestion queue is full or closed.
	ErrBackpressure = errors.New("ingestion queue full")
)
