package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/beacon/internal/triage"
	"github.com/linnemanlabs/beacon/internal/triage/memstore"
)

func newTestEngine(t *testing.T) *triage.Engine {
	t.Helper()
	e := triage.NewEngine(memstore.New(), nil, triage.Options{})
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func newTestRouter(t *testing.T) (chi.Router, *triage.Engine) {
	t.Helper()
	e := newTestEngine(t)
	r := chi.NewRouter()
	New(nil, e).RegisterRoutes(r)
	return r, e
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func raise(t *testing.T, h http.Handler, kind, location, severity string) triage.Alert {
	t.Helper()
	body := `{"kind":"` + kind + `","location":"` + location + `","severity":"` + severity + `"}`
	rec := do(t, h, http.MethodPost, "/api/v1/alerts", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("raise %s/%s = %d, want 201 (body %s)", kind, severity, rec.Code, rec.Body.String())
	}
	return decode[triage.Alert](t, rec)
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, newTestEngine(t))
	if api == nil {
		t.Fatal("New(nil, svc) returned nil API")
	}
	if api.logger == nil {
		t.Fatal("New(nil, svc) left logger nil; expected Nop logger")
	}
}

func TestNew_WithLogger(t *testing.T) {
	t.Parallel()

	api := New(log.Nop(), newTestEngine(t))
	if api.logger == nil {
		t.Fatal("New(logger, svc) left logger nil")
	}
	if api.reporter == nil {
		t.Fatal("New did not build a reporter")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil)
}

// Routing

func TestRegisterRoutes_Methods(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"list", http.MethodGet, "/api/v1/alerts", http.StatusOK},
		{"active", http.MethodGet, "/api/v1/alerts/active", http.StatusOK},
		{"next on empty", http.MethodGet, "/api/v1/alerts/next", http.StatusNotFound},
		{"get unknown", http.MethodGet, "/api/v1/alerts/FIR99", http.StatusNotFound},
		{"report", http.MethodGet, "/api/v1/report", http.StatusOK},
		{"PUT alerts not allowed", http.MethodPut, "/api/v1/alerts", http.StatusMethodNotAllowed},
		{"DELETE alert not allowed", http.MethodDelete, "/api/v1/alerts/FIR1", http.StatusMethodNotAllowed},
		{"GET dispatch not allowed", http.MethodGet, "/api/v1/alerts/FIR1/dispatch", http.StatusMethodNotAllowed},
		{"GET resolve not allowed", http.MethodGet, "/api/v1/alerts/FIR1/resolve", http.StatusMethodNotAllowed},
		{"POST report not allowed", http.MethodPost, "/api/v1/report", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, r, tt.method, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_NotFound(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	paths := []string{
		"/",
		"/api/v1",
		"/api/v2/alerts",
		"/api/v1/unknown",
		"/api/v1/alerts/FIR1/escalate",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			t.Parallel()

			rec := do(t, r, http.MethodGet, path, "")
			if rec.Code != http.StatusNotFound {
				t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusNotFound)
			}
		})
	}
}

// Raise

func TestHandleRaise_Created(t *testing.T) {
	t.Parallel()

	r, e := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/v1/alerts",
		`{"kind":"fire","location":"123 Industrial Zone","severity":"high"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/alerts/FIR1" {
		t.Errorf("Location = %q, want /api/v1/alerts/FIR1", loc)
	}

	al := decode[triage.Alert](t, rec)
	if al.ID != "FIR1" || al.Kind != triage.KindFire || al.Severity != triage.SeverityHigh {
		t.Errorf("alert = %+v", al)
	}
	if al.Status != triage.StatusPending {
		t.Errorf("status = %q, want pending", al.Status)
	}
	if al.Ref == "" {
		t.Error("ref not set")
	}

	stored, ok, err := e.FindByID(context.Background(), "FIR1")
	if err != nil || !ok {
		t.Fatalf("FindByID: ok %v err %v", ok, err)
	}
	if stored.Location != "123 Industrial Zone" {
		t.Errorf("stored location = %q", stored.Location)
	}
}

func TestHandleRaise_Invalid(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{bad`},
		{"empty body", ``},
		{"unknown kind", `{"kind":"flood","location":"x","severity":"low"}`},
		{"missing kind", `{"location":"x","severity":"low"}`},
		{"blank location", `{"kind":"fire","location":"  ","severity":"low"}`},
		{"missing severity", `{"kind":"fire","location":"x"}`},
		{"unknown severity", `{"kind":"fire","location":"x","severity":"extreme"}`},
		{"numeric severity", `{"kind":"fire","location":"x","severity":3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, r, http.MethodPost, "/api/v1/alerts", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			resp := decode[errorResponse](t, rec)
			if !strings.Contains(resp.Error, "invalid input") {
				t.Errorf("error = %q, want invalid input", resp.Error)
			}
		})
	}
}

func TestHandleRaise_CapacityExceeded(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	for range triage.DefaultHighSeverityCap {
		raise(t, r, "fire", "zone", "high")
	}
	rec := do(t, r, http.MethodPost, "/api/v1/alerts", `{"kind":"fire","location":"zone","severity":"high"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	// lower severities are not capped
	raise(t, r, "medical", "zone", "medium")
}

// Reads

func TestHandleList_Filters(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	raise(t, r, "security", "a", "low")
	raise(t, r, "fire", "b", "high")
	raise(t, r, "medical", "c", "medium")
	if rec := do(t, r, http.MethodPost, "/api/v1/alerts/FIR2/dispatch", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("dispatch = %d", rec.Code)
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []string
	}{
		{"all in triage order", "", []string{"FIR2", "MED3", "SEC1"}},
		{"by status", "?status=dispatched", []string{"FIR2"}},
		{"by status pending", "?status=PENDING", []string{"MED3", "SEC1"}},
		{"by severity", "?severity=low", []string{"SEC1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, r, http.MethodGet, "/api/v1/alerts"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			resp := decode[listResponse](t, rec)
			if resp.Count != len(tt.wantIDs) {
				t.Fatalf("count = %d, want %d", resp.Count, len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if resp.Alerts[i].ID != id {
					t.Errorf("alerts[%d] = %s, want %s", i, resp.Alerts[i].ID, id)
				}
			}
		})
	}
}

func TestHandleList_BadFilters(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	for _, q := range []string{"?status=closed", "?severity=extreme", "?status=pending&severity=high"} {
		rec := do(t, r, http.MethodGet, "/api/v1/alerts"+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET /api/v1/alerts%s = %d, want 400", q, rec.Code)
		}
	}
}

func TestHandleList_EmptyIsArray(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodGet, "/api/v1/alerts/active", "")
	if !strings.Contains(rec.Body.String(), `"alerts":[]`) {
		t.Errorf("body = %s, want empty alerts array", rec.Body.String())
	}
}

func TestHandleNext(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	raise(t, r, "security", "a", "low")
	raise(t, r, "fire", "b", "high")
	raise(t, r, "medical", "c", "medium")

	rec := do(t, r, http.MethodGet, "/api/v1/alerts/next", "")
	if got := decode[triage.Alert](t, rec); got.ID != "FIR2" {
		t.Fatalf("next = %s, want FIR2", got.ID)
	}

	do(t, r, http.MethodPost, "/api/v1/alerts/FIR2/resolve", "")

	rec = do(t, r, http.MethodGet, "/api/v1/alerts/next", "")
	if got := decode[triage.Alert](t, rec); got.ID != "MED3" {
		t.Fatalf("next after resolve = %s, want MED3", got.ID)
	}
}

// Lifecycle

func TestHandleDispatchAndResolve(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	raise(t, r, "fire", "123 Industrial Zone", "high")

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"dispatch pending", "/api/v1/alerts/FIR1/dispatch", http.StatusNoContent},
		{"dispatch again", "/api/v1/alerts/FIR1/dispatch", http.StatusNoContent},
		{"dispatch unknown", "/api/v1/alerts/FIR9/dispatch", http.StatusNotFound},
		{"resolve", "/api/v1/alerts/FIR1/resolve", http.StatusNoContent},
		{"resolve again", "/api/v1/alerts/FIR1/resolve", http.StatusNoContent},
		{"resolve unknown", "/api/v1/alerts/UNKNOWN_ID/resolve", http.StatusNoContent},
		{"dispatch resolved", "/api/v1/alerts/FIR1/dispatch", http.StatusConflict},
		{"dispatch blank id", "/api/v1/alerts/%20/dispatch", http.StatusBadRequest},
	}

	// sequential: each step depends on the previous state
	for _, tt := range tests {
		rec := do(t, r, http.MethodPost, tt.path, "")
		if rec.Code != tt.wantStatus {
			t.Errorf("%s: POST %s = %d, want %d (body %s)", tt.name, tt.path, rec.Code, tt.wantStatus, rec.Body.String())
		}
	}

	rec := do(t, r, http.MethodGet, "/api/v1/alerts/FIR1", "")
	if got := decode[triage.Alert](t, rec); got.Status != triage.StatusResolved {
		t.Errorf("final status = %q, want resolved", got.Status)
	}
}

// Report

func TestHandleReport(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodGet, "/api/v1/report?format=text", "")
	if !strings.Contains(rec.Body.String(), "No Emergency Data available to generate Report") {
		t.Errorf("empty text report = %q", rec.Body.String())
	}

	raise(t, r, "fire", "a", "high")
	raise(t, r, "medical", "b", "medium")
	do(t, r, http.MethodPost, "/api/v1/alerts/FIR1/dispatch", "")

	rec = do(t, r, http.MethodGet, "/api/v1/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var summary struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"by_status"`
		ByKind   map[string]int `json:"by_kind"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Total != 2 || summary.ByStatus["dispatched"] != 1 || summary.ByKind["medical"] != 1 {
		t.Errorf("summary = %+v", summary)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/report?format=text", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if !strings.Contains(rec.Body.String(), "Total Alerts: 2") {
		t.Errorf("text report = %q", rec.Body.String())
	}

	if rec := do(t, r, http.MethodGet, "/api/v1/report?format=xml", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("format=xml = %d, want 400", rec.Code)
	}
}

// Error mapping

type failingService struct {
	TriageService
	err error
}

func (f failingService) ActiveEmergencies(context.Context) ([]*triage.Alert, error) {
	return nil, f.err
}

func TestWriteError_InternalHidesDetail(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	New(nil, failingService{err: errors.New("connection refused: 10.0.0.5:5432")}).RegisterRoutes(r)

	rec := do(t, r, http.MethodGet, "/api/v1/alerts/active", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Error != "internal error" {
		t.Errorf("error = %q, want %q", resp.Error, "internal error")
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{triage.ErrInvalidInput, http.StatusBadRequest},
		{triage.ErrNotFound, http.StatusNotFound},
		{triage.ErrCapacityExceeded, http.StatusTooManyRequests},
		{triage.ErrAlreadyResolved, http.StatusConflict},
		{errors.Join(errors.New("ctx"), triage.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func FuzzRaise(f *testing.F) {
	e := triage.NewEngine(memstore.New(), nil, triage.Options{})
	api := New(nil, e)
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	seeds := []struct {
		body        []byte
		contentType string
	}{
		{nil, ""},
		{[]byte(""), "application/json"},
		{[]byte("{}"), "application/json"},
		{[]byte(`{"kind":"fire","location":"123 Industrial Zone","severity":"high"}`), "application/json"},
		{[]byte(`{"kind":"medical","location":"","severity":"low"}`), "application/json"},
		{[]byte(`{"kind":"security","location":"x","severity":0}`), "application/json"},
		{[]byte("{invalid json"), "application/json"},
		{[]byte("\x00\x01\x02\xff\xfe"), "application/octet-stream"},
		{[]byte("<xml>not json</xml>"), "text/xml"},
		{[]byte(strings.Repeat("a", 10000)), "text/plain"},
	}
	for _, s := range seeds {
		f.Add(s.body, s.contentType)
	}

	f.Fuzz(func(t *testing.T, body []byte, contentType string) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(string(body)))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()

		// Must not panic
		r.ServeHTTP(rec, req)

		switch rec.Code {
		case http.StatusCreated, http.StatusBadRequest, http.StatusTooManyRequests:
		default:
			t.Errorf("POST /api/v1/alerts with body len=%d content-type=%q = %d, want 201, 400 or 429",
				len(body), contentType, rec.Code)
		}
	})
}

// Tracing

func TestSpanAttributes(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r, _ := newTestRouter(t)
	raise(t, r, "medical", "Central Park", "medium")

	serve := func(method, path string) {
		ctx, span := tp.Tracer("test").Start(context.Background(), method+" "+path)
		req := httptest.NewRequest(method, path, http.NoBody).WithContext(ctx)
		r.ServeHTTP(httptest.NewRecorder(), req)
		span.End()
	}
	serve(http.MethodGet, "/api/v1/alerts/MED1")
	serve(http.MethodPost, "/api/v1/alerts/MED1/dispatch")

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}

	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	want := map[attribute.Key]string{
		"beacon.alert.id":       "MED1",
		"beacon.alert.kind":     "medical",
		"beacon.alert.severity": "medium",
		"beacon.alert.status":   "pending",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, attrs[k], v)
		}
	}

	if got := spans[1].Attributes(); len(got) == 0 || got[0].Value.AsString() != "MED1" {
		t.Errorf("dispatch span attributes = %v, want beacon.alert.id=MED1", got)
	}
}

func TestSpanStatus_InternalError(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := chi.NewRouter()
	New(nil, failingService{err: errors.New("boom")}).RegisterRoutes(r)

	ctx, span := tp.Tracer("test").Start(context.Background(), "GET active")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/active", http.NoBody).WithContext(ctx)
	r.ServeHTTP(httptest.NewRecorder(), req)
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", ended[0].Status().Code)
	}
	if len(ended[0].Events()) == 0 {
		t.Error("expected the error to be recorded as a span event")
	}
}
