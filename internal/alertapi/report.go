package alertapi

import (
	"fmt"
	"net/http"

	"github.com/linnemanlabs/beacon/internal/triage"
)

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "text" {
		a.writeError(w, r, fmt.Errorf("%w: unknown report format %q", triage.ErrInvalidInput, format))
		return
	}

	s, err := a.reporter.Summary(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if format == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintln(w, s.Text())
		return
	}
	writeJSON(w, http.StatusOK, s)
}
