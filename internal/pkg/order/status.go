package order

import (
	"strings"

	"github.com/pkg/errors"
)

// Status is the lifecycle state of an order.
//
//	Pending ──> InProgress ──> Completed
//	   └──────────────────────────^
//
// Statuses only move forward. Completed is terminal.
type Status int

const (
	// Unknown catches uninitialised values.
	Unknown Status = iota
	// Pending is the status of a freshly submitted order.
	Pending
	// InProgress means the kitchen has started on the order.
	InProgress
	// Completed is final; the order can only be removed afterwards.
	Completed
)

var statusNames = map[Status]string{
	Pending:    "pending",
	InProgress: "in_progress",
	Completed:  "completed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus parses the wire name of a status. Matching is case-insensitive.
func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return Unknown, errors.Wrapf(ErrValidation, "unknown status %q", name)
}

// ValidateTransition reports whether an order in status s may move to next.
func (s Status) ValidateTransition(next Status) error {
	if _, ok := statusNames[next]; !ok {
		return errors.Wrapf(ErrValidation, "unknown status %d", next)
	}
	if s == Completed {
		return errors.Wrapf(ErrInvalidTransition, "order is already %s", s)
	}
	if next <= s {
		return errors.Wrapf(ErrInvalidTransition, "cannot move from %s to %s", s, next)
	}
	return nil
}
