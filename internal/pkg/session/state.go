package session

// State is the lifecycle state of a Session.
type State int32

const (
	// Connecting is the state between accept and Serve.
	Connecting State = iota
	// Active means both loops are running.
	Active
	// Closing means no more envelopes are accepted and the queue is being flushed.
	Closing
	// Closed means the socket has been released.
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Active:
		return "ACTIVE"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
