package repository

import "errors"

// Sentinel kinds for history store errors.
var (
	ErrInvalidEntity = errors.New("entity id is required")
	ErrInvalidEvent  = errors.New("invalid payment event")
	ErrClosed        = errors.New("history store closed")
)
