package triage

import "context"

// Store is the persistence interface for alerts. Implementations own the
// collection, validate their own arguments and return copies, but apply no
// business rules.
//
// Every ordered result uses the triage order: severity descending, then
// insertion order.
type Store interface {
	Insert(ctx context.Context, a *Alert) error
	FindByID(ctx context.Context, id string) (*Alert, bool, error)
	UpdateStatus(ctx context.Context, id string, status Status) (bool, error)
	Remove(ctx context.Context, id string) (bool, error)

	AllActive(ctx context.Context) ([]*Alert, error)
	All(ctx context.Context) ([]*Alert, error)
	ByStatus(ctx context.Context, status Status) ([]*Alert, error)
	BySeverity(ctx context.Context, severity Severity) ([]*Alert, error)
	PeekNext(ctx context.Context) (*Alert, bool, error)

	Count(ctx context.Context) (int, error)
	CountBySeverity(ctx context.Context, severity Severity) (int, error)
}
