package domain

import "github.com/pkg/errors"

var (
	ErrUnauthenticated        = errors.New("not authenticated")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("already exists")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable, try again later")
)
