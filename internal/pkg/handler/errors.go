package handler

import "github.com/pkg/errors"

// ErrBadRequest indicates the envelope data does not match its type.
var ErrBadRequest = errors.New("bad request")

// ErrUnknownType indicates an envelope type the server does not handle.
var ErrUnknownType = errors.New("unknown message type")
