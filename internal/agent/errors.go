package agent

import "errors"

var (
	// ErrEmptyMessage is returned for messages that are empty after trimming
	ErrEmptyMessage = errors.New("empty message")

	// ErrUnauthorized is returned when a non-owner uses an owner-only command
	ErrUnauthorized = errors.New("command reserved for the owner")
)
