package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a keyed record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionActive is returned when starting a focus session while one runs.
	ErrSessionActive = errors.New("focus session already active")

	// ErrNoActiveSession is returned when stopping without a running session.
	ErrNoActiveSession = errors.New("no active focus session")

	// ErrInvalidDuration is returned for non-positive session or goal lengths.
	ErrInvalidDuration = errors.New("duration must be positive")
)
