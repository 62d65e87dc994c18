package alertapi

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/beacon/internal/triage"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a triage error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, triage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, triage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, triage.ErrCapacityExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, triage.ErrAlreadyResolved):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError writes the JSON error body for err. Internal failures are
// logged and their detail is not sent to the client.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()

	if status == http.StatusInternalServerError {
		span := trace.SpanFromContext(r.Context())
		span.RecordError(err)
		span.SetStatus(codes.Error, "internal error")
		a.logger.Error(r.Context(), err, "request failed", "method", r.Method, "path", r.URL.Path)
		msg = "internal error"
	}

	writeJSON(w, status, errorResponse{Error: msg})
}
