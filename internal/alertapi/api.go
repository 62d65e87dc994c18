package alertapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/beacon/internal/report"
	"github.com/linnemanlabs/beacon/internal/triage"
)

// TriageService defines the business operations alertapi needs.
type TriageService interface {
	Raise(ctx context.Context, kind triage.Kind, location string, severity triage.Severity) (*triage.Alert, error)
	Dispatch(ctx context.Context, id string) error
	Resolve(ctx context.Context, id string) error
	NextEmergency(ctx context.Context) (*triage.Alert, bool, error)
	ActiveEmergencies(ctx context.Context) ([]*triage.Alert, error)
	FindByID(ctx context.Context, id string) (*triage.Alert, bool, error)
	ByStatus(ctx context.Context, status triage.Status) ([]*triage.Alert, error)
	BySeverity(ctx context.Context, severity triage.Severity) ([]*triage.Alert, error)
	Snapshot(ctx context.Context) ([]triage.Alert, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	svc      TriageService
	reporter *report.Reporter
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger:   logger,
		svc:      svc,
		reporter: report.New(svc),
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", a.handleRaise)
			r.Get("/", a.handleList)
			r.Get("/active", a.handleActive)
			r.Get("/next", a.handleNext)
			r.Get("/{id}", a.handleGet)
			r.Post("/{id}/dispatch", a.handleDispatch)
			r.Post("/{id}/resolve", a.handleResolve)
		})
		r.Get("/report", a.handleReport)
	})
}

type listResponse struct {
	Alerts []*triage.Alert `json:"alerts"`
	Count  int             `json:"count"`
}

func newListResponse(alerts []*triage.Alert) listResponse {
	if alerts == nil {
		alerts = []*triage.Alert{}
	}
	return listResponse{Alerts: alerts, Count: len(alerts)}
}

func annotate(ctx context.Context, al *triage.Alert) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("beacon.alert.id", al.ID),
		attribute.String("beacon.alert.kind", string(al.Kind)),
		attribute.String("beacon.alert.severity", al.Severity.String()),
		attribute.String("beacon.alert.status", string(al.Status)),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here, headers are already out
	_ = json.NewEncoder(w).Encode(v)
}
