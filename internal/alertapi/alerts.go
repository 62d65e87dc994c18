package alertapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/beacon/internal/triage"
)

type raiseRequest struct {
	Kind     string          `json:"kind"`
	Location string          `json:"location"`
	Severity triage.Severity `json:"severity"`
}

func (a *API) handleRaise(w http.ResponseWriter, r *http.Request) {
	var req raiseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: invalid payload", triage.ErrInvalidInput))
		return
	}

	kind, err := triage.ParseKind(req.Kind)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	al, err := a.svc.Raise(r.Context(), kind, req.Location, req.Severity)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	annotate(r.Context(), al)

	w.Header().Set("Location", "/api/v1/alerts/"+al.ID)
	writeJSON(w, http.StatusCreated, al)
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	statusParam, severityParam := q.Get("status"), q.Get("severity")

	var (
		alerts []*triage.Alert
		err    error
	)
	switch {
	case statusParam != "" && severityParam != "":
		a.writeError(w, r, fmt.Errorf("%w: filter by status or severity, not both", triage.ErrInvalidInput))
		return
	case statusParam != "":
		var st triage.Status
		if st, err = triage.ParseStatus(statusParam); err == nil {
			alerts, err = a.svc.ByStatus(r.Context(), st)
		}
	case severityParam != "":
		var sev triage.Severity
		if sev, err = triage.ParseSeverity(severityParam); err == nil {
			alerts, err = a.svc.BySeverity(r.Context(), sev)
		}
	default:
		var snap []triage.Alert
		if snap, err = a.svc.Snapshot(r.Context()); err == nil {
			alerts = make([]*triage.Alert, len(snap))
			for i := range snap {
				alerts[i] = &snap[i]
			}
		}
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newListResponse(alerts))
}

func (a *API) handleActive(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.svc.ActiveEmergencies(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(alerts))
}

func (a *API) handleNext(w http.ResponseWriter, r *http.Request) {
	al, ok, err := a.svc.NextEmergency(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		a.writeError(w, r, fmt.Errorf("%w: no active alerts", triage.ErrNotFound))
		return
	}
	annotate(r.Context(), al)
	writeJSON(w, http.StatusOK, al)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("beacon.alert.id", id))

	al, ok, err := a.svc.FindByID(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		a.writeError(w, r, fmt.Errorf("%w: %s", triage.ErrNotFound, id))
		return
	}
	annotate(r.Context(), al)
	writeJSON(w, http.StatusOK, al)
}

func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("beacon.alert.id", id))

	if err := a.svc.Dispatch(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResolve answers 204 for unknown IDs too; resolving is idempotent
// and an absent alert needs no further action.
func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("beacon.alert.id", id))

	if err := a.svc.Resolve(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
