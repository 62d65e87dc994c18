// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/beacon/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/beacon/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists alerts in PostgreSQL. Rows are keyed by an internal
// sequence so alerts sharing an ID can coexist; ID lookups resolve to the
// earliest inserted row.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
// The pool stays owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const alertColumns = `id, ref, kind, location, severity, status, raised_at, updated_at`

// triageOrder is the ORDER BY clause for every ordered query.
const triageOrder = ` ORDER BY severity DESC, seq ASC`

// firstByID selects the row an ID resolves to.
const firstByID = `(SELECT seq FROM alerts WHERE id = $1 ORDER BY seq ASC LIMIT 1)`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Insert adds a row for the alert. IDs are not checked for uniqueness.
func (s *Store) Insert(ctx context.Context, a *triage.Alert) error {
	if a == nil {
		return fmt.Errorf("%w: alert cannot be nil", triage.ErrInvalidInput)
	}
	ctx, span := startSpan(ctx, "pgstore.Insert", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.Ref, string(a.Kind), a.Location, int16(a.Severity), string(a.Status),
		a.RaisedAt, nullTime(a.UpdatedAt),
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert alert %s: %w", a.ID, err))
	}
	return nil
}

// FindByID retrieves the earliest inserted alert with the given ID.
func (s *Store) FindByID(ctx context.Context, id string) (*triage.Alert, bool, error) {
	if err := triage.CheckID(id); err != nil {
		return nil, false, err
	}
	ctx, span := startSpan(ctx, "pgstore.FindByID", "SELECT")
	defer span.End()

	a, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE seq = `+firstByID, id))
	if err != nil {
		return nil, false, fail(span, err)
	}
	if a == nil {
		return nil, false, nil
	}
	return a, true, nil
}

// UpdateStatus sets the status of the row the ID resolves to.
func (s *Store) UpdateStatus(ctx context.Context, id string, status triage.Status) (bool, error) {
	if err := triage.CheckID(id); err != nil {
		return false, err
	}
	if err := triage.CheckStatus(status); err != nil {
		return false, err
	}
	ctx, span := startSpan(ctx, "pgstore.UpdateStatus", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts
		    SET updated_at = CASE WHEN status <> $2 THEN $3 ELSE updated_at END,
		        status = $2
		  WHERE seq = `+firstByID,
		id, string(status), time.Now().UTC(),
	)
	if err != nil {
		return false, fail(span, fmt.Errorf("update status %s: %w", id, err))
	}
	return tag.RowsAffected() > 0, nil
}

// Remove deletes the row the ID resolves to.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	if err := triage.CheckID(id); err != nil {
		return false, err
	}
	ctx, span := startSpan(ctx, "pgstore.Remove", "DELETE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE seq = `+firstByID, id)
	if err != nil {
		return false, fail(span, fmt.Errorf("remove %s: %w", id, err))
	}
	return tag.RowsAffected() > 0, nil
}

// AllActive returns every unresolved alert in triage order.
func (s *Store) AllActive(ctx context.Context) ([]*triage.Alert, error) {
	return s.list(ctx, "pgstore.AllActive", `WHERE status <> $1`, string(triage.StatusResolved))
}

// All returns every alert in triage order.
func (s *Store) All(ctx context.Context) ([]*triage.Alert, error) {
	return s.list(ctx, "pgstore.All", "")
}

// ByStatus returns alerts with the given status in triage order.
func (s *Store) ByStatus(ctx context.Context, status triage.Status) ([]*triage.Alert, error) {
	if err := triage.CheckStatus(status); err != nil {
		return nil, err
	}
	return s.list(ctx, "pgstore.ByStatus", `WHERE status = $1`, string(status))
}

// BySeverity returns alerts with the given severity in insertion order.
func (s *Store) BySeverity(ctx context.Context, severity triage.Severity) ([]*triage.Alert, error) {
	if err := triage.CheckSeverity(severity); err != nil {
		return nil, err
	}
	return s.list(ctx, "pgstore.BySeverity", `WHERE severity = $1`, int16(severity))
}

// PeekNext returns the most urgent active alert.
func (s *Store) PeekNext(ctx context.Context) (*triage.Alert, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.PeekNext", "SELECT")
	defer span.End()

	a, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE status <> $1`+triageOrder+` LIMIT 1`,
		string(triage.StatusResolved)))
	if err != nil {
		return nil, false, fail(span, err)
	}
	if a == nil {
		return nil, false, nil
	}
	return a, true, nil
}

// Count returns the number of stored alerts.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx, span := startSpan(ctx, "pgstore.Count", "SELECT")
	defer span.End()

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fail(span, fmt.Errorf("count: %w", err))
	}
	return n, nil
}

// CountBySeverity returns the number of stored alerts with the given
// severity, resolved ones included.
func (s *Store) CountBySeverity(ctx context.Context, severity triage.Severity) (int, error) {
	if err := triage.CheckSeverity(severity); err != nil {
		return 0, err
	}
	ctx, span := startSpan(ctx, "pgstore.CountBySeverity", "SELECT")
	defer span.End()

	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM alerts WHERE severity = $1`, int16(severity)).Scan(&n)
	if err != nil {
		return 0, fail(span, fmt.Errorf("count by severity: %w", err))
	}
	return n, nil
}

func (s *Store) list(ctx context.Context, spanName, where string, args ...any) ([]*triage.Alert, error) {
	ctx, span := startSpan(ctx, spanName, "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts `+where+triageOrder, args...)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query alerts: %w", err))
	}
	defer rows.Close()

	var out []*triage.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate alerts: %w", err))
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

// scanAlert scans a single row into an Alert. Returns (nil, nil) when no row is found.
func scanAlert(row pgx.Row) (*triage.Alert, error) {
	var (
		a         triage.Alert
		kind      string
		severity  int16
		status    string
		updatedAt *time.Time
	)
	err := row.Scan(&a.ID, &a.Ref, &kind, &a.Location, &severity, &status, &a.RaisedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	a.Kind = triage.Kind(kind)
	a.Severity = triage.Severity(severity)
	a.Status = triage.Status(status)
	if updatedAt != nil {
		a.UpdatedAt = *updatedAt
	}
	return &a, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
