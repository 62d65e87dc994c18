package triage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput means the caller passed a missing or malformed argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means no alert has the requested ID.
	ErrNotFound = errors.New("alert not found")

	// ErrCapacityExceeded means the high severity intake cap is reached.
	// Callers may retry once capacity frees up; nothing is queued.
	ErrCapacityExceeded = errors.New("high severity capacity exceeded")

	// ErrAlreadyResolved means the alert is terminal and cannot be dispatched.
	ErrAlreadyResolved = errors.New("alert already resolved")
)

// CheckID returns ErrInvalidInput if id is blank.
func CheckID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: alert id cannot be empty", ErrInvalidInput)
	}
	return nil
}

// CheckStatus returns ErrInvalidInput if s is absent or unknown.
func CheckStatus(s Status) error {
	if !s.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidInput, s)
	}
	return nil
}

// CheckSeverity returns ErrInvalidInput if s is absent or unknown.
func CheckSeverity(s Severity) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidInput, s)
	}
	return nil
}
