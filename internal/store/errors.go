package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrOverlap             = errors.New("availability window overlap")
	ErrSlotUnavailable     = errors.New("slot unavailable")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrTransient           = errors.New("transient storage failure")
	ErrInvalidRequest      = errors.New("invalid request")
)
