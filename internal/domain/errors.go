package domain

import "errors"

var (
	ErrEmptyIdentity  = errors.New("identity is required")
	ErrHubStopped     = errors.New("hub is stopped")
	ErrCommandTimeout = errors.New("hub command timed out")
)
