package store

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownTable    = errors.New("unknown table")
)
