// Package report produces read-only statistics over the alerts held by the
// triage engine.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/beacon/internal/triage"
)

// NoData is the text report rendered when there are no alerts.
const NoData = "No Emergency Data available to generate Report"

// Source supplies a point-in-time copy of every alert.
type Source interface {
	Snapshot(ctx context.Context) ([]triage.Alert, error)
}

// Summary tallies alerts by status, severity and kind.
type Summary struct {
	Total      int                     `json:"total"`
	ByStatus   map[triage.Status]int   `json:"by_status"`
	BySeverity map[triage.Severity]int `json:"by_severity"`
	ByKind     map[triage.Kind]int     `json:"by_kind"`
}

// Summarize counts the given alerts. Every known status, severity and kind
// is present in the result, zero or not.
func Summarize(alerts []triage.Alert) *Summary {
	s := &Summary{
		Total:      len(alerts),
		ByStatus:   make(map[triage.Status]int, len(triage.Statuses)),
		BySeverity: make(map[triage.Severity]int, len(triage.Severities)),
		ByKind:     make(map[triage.Kind]int, len(triage.Kinds)),
	}
	for _, st := range triage.Statuses {
		s.ByStatus[st] = 0
	}
	for _, sev := range triage.Severities {
		s.BySeverity[sev] = 0
	}
	for _, k := range triage.Kinds {
		s.ByKind[k] = 0
	}

	for i := range alerts {
		a := &alerts[i]
		s.ByStatus[a.Status]++
		s.BySeverity[a.Severity]++
		s.ByKind[a.Kind]++
	}
	return s
}

// Text renders the summary as the plain-text emergency services report.
func (s *Summary) Text() string {
	if s == nil || s.Total == 0 {
		return NoData
	}

	var b strings.Builder
	b.WriteString("\n=== EMERGENCY SERVICES ANALYSIS REPORT ===")
	fmt.Fprintf(&b, "\nTotal Alerts: %d", s.Total)
	b.WriteString("\nAlert Details: ")
	fmt.Fprintf(&b, "\n - Pending:%d", s.ByStatus[triage.StatusPending])
	fmt.Fprintf(&b, "\n - Dispatched:%d", s.ByStatus[triage.StatusDispatched])
	fmt.Fprintf(&b, "\n - Resolved:%d", s.ByStatus[triage.StatusResolved])
	b.WriteString("\nSeverity Details: ")
	fmt.Fprintf(&b, "\n - High:%d", s.BySeverity[triage.SeverityHigh])
	fmt.Fprintf(&b, "\n - Medium:%d", s.BySeverity[triage.SeverityMedium])
	fmt.Fprintf(&b, "\n - Low:%d", s.BySeverity[triage.SeverityLow])
	b.WriteString("\nType Details: ")
	fmt.Fprintf(&b, "\n - Fire:%d", s.ByKind[triage.KindFire])
	fmt.Fprintf(&b, "\n - Medical:%d", s.ByKind[triage.KindMedical])
	fmt.Fprintf(&b, "\n - Security:%d", s.ByKind[triage.KindSecurity])
	return b.String()
}

// Reporter builds summaries from a Source. It never mutates alert state.
type Reporter struct {
	src Source
}

// New returns a Reporter reading from src.
func New(src Source) *Reporter {
	if src == nil {
		panic(xerrors.New("report source is required"))
	}
	return &Reporter{src: src}
}

// Summary takes a snapshot and tallies it.
func (r *Reporter) Summary(ctx context.Context) (*Summary, error) {
	alerts, err := r.src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot alerts: %w", err)
	}
	return Summarize(alerts), nil
}

// Text returns the plain-text report for the current alerts.
func (r *Reporter) Text(ctx context.Context) (string, error) {
	s, err := r.Summary(ctx)
	if err != nil {
		return "", err
	}
	return s.Text(), nil
}
