package order

import "github.com/pkg/errors"

// ErrValidation is returned when a request carries invalid input, such as an empty item list.
var ErrValidation = errors.New("validation failed")

// ErrNotFound is returned when no order has the requested id.
var ErrNotFound = errors.New("order not found")

// ErrInvalidTransition is returned when a status change does not advance the order.
var ErrInvalidTransition = errors.New("invalid status transition")
