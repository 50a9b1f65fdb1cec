package server

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrAlreadyStarted is returned by Start on a server that was started before.
var ErrAlreadyStarted = errors.New("server already started")

// BindError reports that the listening endpoint could not be opened.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s failed: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
