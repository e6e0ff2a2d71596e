package emergency

import (
	"errors"
	"strings"
)

// Status is the lifecycle state of an emergency request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

var ErrInvalidStatus = errors.New("invalid emergency status")

// ParseStatus normalizes and validates a status string.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCanceled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// Terminal reports whether the request can no longer change state.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCanceled
}

// CanTransitionTo enforces the allowed lifecycle:
// pending -> processing -> completed, with cancellation possible from any
// non-terminal state.
func (status Status) CanTransitionTo(next Status) bool {
	if !next.Valid() || status.Terminal() {
		return false
	}
	switch next {
	case StatusCanceled:
		return true
	case StatusProcessing:
		return status == StatusPending
	case StatusCompleted:
		return status == StatusProcessing
	default:
		return false
	}
}
