package user

import (
	"errors"
	"strings"
)

// Status is the lifecycle state of a user account.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusBanned   Status = "BANNED"
)

var ErrInvalidStatus = errors.New("invalid status")

// ParseStatus normalizes and validates a status string.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed constants.
func (status Status) Valid() bool {
	switch status {
	case StatusActive, StatusInactive, StatusBanned:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// IsActive reports whether the account may sign in and send alerts.
func (status Status) IsActive() bool { return status == StatusActive }
