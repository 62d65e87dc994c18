package triage

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the category of emergency an alert reports.
type Kind string

const (
	KindFire     Kind = "fire"
	KindMedical  Kind = "medical"
	KindSecurity Kind = "security"
)

// Kinds lists every known kind.
var Kinds = []Kind{KindFire, KindMedical, KindSecurity}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFire, KindMedical, KindSecurity:
		return true
	}
	return false
}

// Prefix returns the ID prefix for alerts of this kind.
func (k Kind) Prefix() string {
	switch k {
	case KindFire:
		return "FIR"
	case KindMedical:
		return "MED"
	case KindSecurity:
		return "SEC"
	}
	return "EMG"
}

// ParseKind parses a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, s)
	}
	return k, nil
}

// Severity is the urgency tier of an alert. Higher values are more urgent;
// the zero value means no severity was given.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

// Severities lists every valid severity, most urgent first.
var Severities = []Severity{SeverityHigh, SeverityMedium, SeverityLow}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityHigh
}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	}
	return 0, fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, s)
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: cannot encode %s", ErrInvalidInput, s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Status tracks where an alert is in its lifecycle.
type Status string

const (
	// StatusPending means raised, nobody sent yet
	StatusPending Status = "pending"

	// StatusDispatched means responders are on the way
	StatusDispatched Status = "dispatched"

	// StatusResolved is terminal
	StatusResolved Status = "resolved"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusDispatched, StatusResolved}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDispatched, StatusResolved:
		return true
	}
	return false
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
	return st, nil
}

// Alert is a single emergency report.
type Alert struct {
	ID        string    `json:"id"`
	Ref       string    `json:"ref"`
	Kind      Kind      `json:"kind"`
	Location  string    `json:"location"`
	Severity  Severity  `json:"severity"`
	Status    Status    `json:"status"`
	RaisedAt  time.Time `json:"raised_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Active reports whether the alert still needs attention.
func (a *Alert) Active() bool {
	return a.Status != StatusResolved
}

