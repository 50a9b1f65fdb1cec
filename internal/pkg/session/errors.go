package session

import "github.com/pkg/errors"

// ErrSessionNotFound is returned when no registered session has the given id.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionAlreadyExists is returned when registering a session id twice.
var ErrSessionAlreadyExists = errors.New("session already exists")

// ErrSessionClosed is returned when using a session that is closing or closed.
var ErrSessionClosed = errors.New("session closed")

// ErrQueueFull is returned when an envelope is dropped because the outbound queue is at its cap.
var ErrQueueFull = errors.New("outbound queue full")
