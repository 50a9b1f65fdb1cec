package client

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotConnected indicates that Connect has not been called or the connection was closed.
var ErrNotConnected = errors.New("not connected")

// RemoteError is an error envelope returned by the server.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}
