// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/beacon/internal/triage"
)

type entry struct {
	seq   uint64
	alert *triage.Alert // replaced, never mutated, once stored
}

// Store holds alerts in memory, kept sorted by severity descending and then
// insertion sequence. Suitable for dev/testing and single-process use.
type Store struct {
	mu      sync.RWMutex
	seq     uint64
	entries []entry
	now     func() time.Time
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{now: time.Now}
}

// Insert stores a copy of the alert at its position in triage order.
// IDs are not checked for uniqueness.
func (s *Store) Insert(_ context.Context, a *triage.Alert) error {
	if a == nil {
		return fmt.Errorf("%w: alert cannot be nil", triage.ErrInvalidInput)
	}
	cp := *a

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	// first position holding a strictly lower severity; equal severities keep insertion order
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].alert.Severity < cp.Severity
	})
	s.entries = slices.Insert(s.entries, i, entry{seq: s.seq, alert: &cp})
	return nil
}

// FindByID returns a copy of the earliest inserted alert with the given ID.
func (s *Store) FindByID(_ context.Context, id string) (*triage.Alert, bool, error) {
	if err := triage.CheckID(id); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, false, nil
	}
	cp := *s.entries[i].alert
	return &cp, true, nil
}

// UpdateStatus replaces the matching alert with a copy carrying the new status.
// UpdatedAt only moves when the status actually changes.
func (s *Store) UpdateStatus(_ context.Context, id string, status triage.Status) (bool, error) {
	if err := triage.CheckID(id); err != nil {
		return false, err
	}
	if err := triage.CheckStatus(status); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	if s.entries[i].alert.Status == status {
		return true, nil
	}
	cp := *s.entries[i].alert
	cp.Status = status
	cp.UpdatedAt = s.now()
	s.entries[i].alert = &cp
	return true, nil
}

// Remove deletes the matching alert.
func (s *Store) Remove(_ context.Context, id string) (bool, error) {
	if err := triage.CheckID(id); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	return true, nil
}

// AllActive returns every unresolved alert in triage order.
func (s *Store) AllActive(_ context.Context) ([]*triage.Alert, error) {
	return s.filter(func(a *triage.Alert) bool { return a.Active() }), nil
}

// All returns every stored alert in triage order.
func (s *Store) All(_ context.Context) ([]*triage.Alert, error) {
	return s.filter(func(*triage.Alert) bool { return true }), nil
}

// ByStatus returns alerts with the given status in triage order.
func (s *Store) ByStatus(_ context.Context, status triage.Status) ([]*triage.Alert, error) {
	if err := triage.CheckStatus(status); err != nil {
		return nil, err
	}
	return s.filter(func(a *triage.Alert) bool { return a.Status == status }), nil
}

// BySeverity returns alerts with the given severity in insertion order.
func (s *Store) BySeverity(_ context.Context, severity triage.Severity) ([]*triage.Alert, error) {
	if err := triage.CheckSeverity(severity); err != nil {
		return nil, err
	}
	return s.filter(func(a *triage.Alert) bool { return a.Severity == severity }), nil
}

// PeekNext returns the most urgent active alert without removing it.
func (s *Store) PeekNext(_ context.Context) (*triage.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.alert.Active() {
			cp := *e.alert
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

// Count returns the number of stored alerts.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// CountBySeverity returns the number of stored alerts with the given severity,
// resolved ones included.
func (s *Store) CountBySeverity(_ context.Context, severity triage.Severity) (int, error) {
	if err := triage.CheckSeverity(severity); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.alert.Severity == severity {
			n++
		}
	}
	return n, nil
}

// Reset drops every stored alert.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.seq = 0
}

// indexOf returns the position of the earliest inserted entry with id, or -1.
// Callers hold s.mu.
func (s *Store) indexOf(id string) int {
	idx := -1
	var best uint64
	for i, e := range s.entries {
		if e.alert.ID == id && (idx < 0 || e.seq < best) {
			idx, best = i, e.seq
		}
	}
	return idx
}

func (s *Store) filter(keep func(*triage.Alert) bool) []*triage.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*triage.Alert, 0, len(s.entries))
	for _, e := range s.entries {
		if keep(e.alert) {
			cp := *e.alert
			out = append(out, &cp)
		}
	}
	return out
}
