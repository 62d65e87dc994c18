package triage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"
)

// DefaultHighSeverityCap is the number of stored high severity alerts at
// which further high severity raises are rejected.
const DefaultHighSeverityCap = 5

// Outcome labels passed to hooks.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	// OutcomeNoop marks a request that left the store unchanged, such as
	// resolving an unknown ID or repeating a transition.
	OutcomeNoop = "noop"
)

// Hooks are optional callbacks fired after engine operations, used for
// metrics. Nil fields are skipped.
type Hooks struct {
	OnRaise      func(kind Kind, severity Severity, outcome string)
	OnTransition func(to Status, outcome string)
}

// Options configures an Engine. The zero value is usable.
type Options struct {
	// HighSeverityCap overrides DefaultHighSeverityCap when positive.
	HighSeverityCap int
	Hooks           Hooks
	Notifier        Notifier
	// Now overrides time.Now, for tests.
	Now func() time.Time
}

// Engine enforces the intake and lifecycle rules on top of a Store. It holds
// no alert state of its own.
type Engine struct {
	store    Store
	logger   log.Logger
	cap      int
	hooks    Hooks
	notifier Notifier
	now      func() time.Time

	// mu makes each check-then-act sequence atomic with respect to other writers.
	mu sync.Mutex
	wg sync.WaitGroup
}

// NewEngine creates an engine backed by store.
func NewEngine(store Store, logger log.Logger, opts Options) *Engine {
	if store == nil {
		panic(xerrors.New("alert store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	e := &Engine{
		store:    store,
		logger:   logger,
		cap:      DefaultHighSeverityCap,
		hooks:    opts.Hooks,
		notifier: opts.Notifier,
		now:      time.Now,
	}
	if opts.HighSeverityCap > 0 {
		e.cap = opts.HighSeverityCap
	}
	if opts.Now != nil {
		e.now = opts.Now
	}
	return e
}

// HighSeverityCap returns the configured cap.
func (e *Engine) HighSeverityCap() int {
	return e.cap
}

// Raise validates and stores a new pending alert.
//
// The ID is the kind prefix followed by the live store count plus one. The
// sequence is not a monotonic counter: after a Remove, a later raise can
// reuse an ID that was already issued.
func (e *Engine) Raise(ctx context.Context, kind Kind, location string, severity Severity) (*Alert, error) {
	if !kind.Valid() {
		e.raiseDone(kind, severity, OutcomeRejected)
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidInput, kind)
	}
	if strings.TrimSpace(location) == "" {
		e.raiseDone(kind, severity, OutcomeRejected)
		return nil, fmt.Errorf("%w: location cannot be empty", ErrInvalidInput)
	}
	if err := CheckSeverity(severity); err != nil {
		e.raiseDone(kind, severity, OutcomeRejected)
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if severity == SeverityHigh {
		n, err := e.store.CountBySeverity(ctx, SeverityHigh)
		if err != nil {
			e.raiseDone(kind, severity, OutcomeError)
			return nil, fmt.Errorf("count high severity: %w", err)
		}
		if n >= e.cap {
			e.raiseDone(kind, severity, OutcomeRejected)
			e.logger.Warn(ctx, "high severity capacity reached",
				"kind", kind,
				"location", location,
				"stored_high", n,
				"cap", e.cap,
			)
			return nil, fmt.Errorf("%w: %d of %d high severity alerts stored", ErrCapacityExceeded, n, e.cap)
		}
	}

	total, err := e.store.Count(ctx)
	if err != nil {
		e.raiseDone(kind, severity, OutcomeError)
		return nil, fmt.Errorf("count alerts: %w", err)
	}

	now := e.now()
	al := &Alert{
		ID:       kind.Prefix() + strconv.Itoa(total+1),
		Ref:      ulid.Make().String(),
		Kind:     kind,
		Location: location,
		Severity: severity,
		Status:   StatusPending,
		RaisedAt: now,
	}
	if err := e.store.Insert(ctx, al); err != nil {
		e.raiseDone(kind, severity, OutcomeError)
		return nil, fmt.Errorf("insert alert %s: %w", al.ID, err)
	}

	e.raiseDone(kind, severity, OutcomeOK)
	e.logger.Info(ctx, "alert raised",
		"alert_id", al.ID,
		"ref", al.Ref,
		"kind", al.Kind,
		"severity", al.Severity.String(),
		"location", al.Location,
	)

	cp := *al
	e.notify(ctx, EventRaised, &cp)
	return al, nil
}

// Dispatch moves an active alert to dispatched. Dispatching an alert that is
// already dispatched is allowed and changes nothing; dispatching a resolved
// one is not.
func (e *Engine) Dispatch(ctx context.Context, id string) error {
	if err := CheckID(id); err != nil {
		e.transitionDone(StatusDispatched, OutcomeRejected)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	al, ok, err := e.store.FindByID(ctx, id)
	if err != nil {
		e.transitionDone(StatusDispatched, OutcomeError)
		return fmt.Errorf("find alert %s: %w", id, err)
	}
	if !ok {
		e.transitionDone(StatusDispatched, OutcomeRejected)
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !al.Active() {
		e.transitionDone(StatusDispatched, OutcomeRejected)
		return fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
	}
	if al.Status == StatusDispatched {
		e.transitionDone(StatusDispatched, OutcomeNoop)
		e.logger.Debug(ctx, "alert already dispatched", "alert_id", id)
		return nil
	}

	if _, err := e.store.UpdateStatus(ctx, id, StatusDispatched); err != nil {
		e.transitionDone(StatusDispatched, OutcomeError)
		return fmt.Errorf("dispatch alert %s: %w", id, err)
	}

	e.transitionDone(StatusDispatched, OutcomeOK)
	e.logger.Info(ctx, "alert dispatched",
		"alert_id", id,
		"kind", al.Kind,
		"severity", al.Severity.String(),
		"previous_status", al.Status,
	)

	al.Status = StatusDispatched
	al.UpdatedAt = e.now()
	e.notify(ctx, EventDispatched, al)
	return nil
}

// Resolve marks an alert resolved. Unlike Dispatch it does not require the
// alert to exist or be active: an unknown ID is a silent no-op, and resolving
// twice leaves the first resolution untouched.
func (e *Engine) Resolve(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	al, found, err := e.store.FindByID(ctx, id)
	if err != nil {
		e.transitionDone(StatusResolved, outcomeFor(err))
		return fmt.Errorf("resolve alert: %w", err)
	}
	if !found {
		e.transitionDone(StatusResolved, OutcomeNoop)
		e.logger.Info(ctx, "resolve of unknown alert ignored", "alert_id", id)
		return nil
	}
	if al.Status == StatusResolved {
		e.transitionDone(StatusResolved, OutcomeNoop)
		e.logger.Debug(ctx, "alert already resolved", "alert_id", id)
		return nil
	}

	ok, err := e.store.UpdateStatus(ctx, id, StatusResolved)
	if err != nil {
		e.transitionDone(StatusResolved, outcomeFor(err))
		return fmt.Errorf("resolve alert: %w", err)
	}
	if !ok {
		// removed between lookup and update
		e.transitionDone(StatusResolved, OutcomeNoop)
		return nil
	}

	e.transitionDone(StatusResolved, OutcomeOK)
	e.logger.Info(ctx, "alert resolved",
		"alert_id", id,
		"previous_status", al.Status,
	)

	al.Status = StatusResolved
	al.UpdatedAt = e.now()
	e.notify(ctx, EventResolved, al)
	return nil
}

// NextEmergency returns the most urgent active alert.
func (e *Engine) NextEmergency(ctx context.Context) (*Alert, bool, error) {
	return e.store.PeekNext(ctx)
}

// ActiveEmergencies returns every unresolved alert, most urgent first.
func (e *Engine) ActiveEmergencies(ctx context.Context) ([]*Alert, error) {
	return e.store.AllActive(ctx)
}

// FindByID looks up a single alert.
func (e *Engine) FindByID(ctx context.Context, id string) (*Alert, bool, error) {
	return e.store.FindByID(ctx, id)
}

// ByStatus returns alerts with the given status, most urgent first.
func (e *Engine) ByStatus(ctx context.Context, status Status) ([]*Alert, error) {
	return e.store.ByStatus(ctx, status)
}

// BySeverity returns alerts with the given severity.
func (e *Engine) BySeverity(ctx context.Context, severity Severity) ([]*Alert, error) {
	return e.store.BySeverity(ctx, severity)
}

// Snapshot returns value copies of every stored alert, active and resolved,
// for read-only consumers such as reports.
func (e *Engine) Snapshot(ctx context.Context) ([]Alert, error) {
	all, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Alert, len(all))
	for i, a := range all {
		out[i] = *a
	}
	return out, nil
}

// Close waits for in-flight notifications to finish or ctx to expire.
func (e *Engine) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, ErrInvalidInput) {
		return OutcomeRejected
	}
	return OutcomeError
}

func (e *Engine) raiseDone(kind Kind, severity Severity, outcome string) {
	if e.hooks.OnRaise != nil {
		e.hooks.OnRaise(kind, severity, outcome)
	}
}

func (e *Engine) transitionDone(to Status, outcome string) {
	if e.hooks.OnTransition != nil {
		e.hooks.OnTransition(to, outcome)
	}
}
