package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"

	"github.com/linnemanlabs/beacon/internal/triage"
	"github.com/linnemanlabs/beacon/internal/triage/memstore"
)

func TestNotifySystemd_NotUnderSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error when NOTIFY_SOCKET is empty")
	}
	if !strings.Contains(err.Error(), "NOTIFY_SOCKET not set") {
		t.Errorf("error = %q, want substring %q", err, "NOTIFY_SOCKET not set")
	}
}

func TestNotifySystemd_MissingSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("error = %q, want substring %q", err, "dial failed")
	}
}

func TestNotifySystemd_SendsReady(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd(); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}

	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from socket: %v", err)
	}

	got := string(buf[:n])
	if got != "READY=1" {
		t.Errorf("payload = %q, want %q", got, "READY=1")
	}
}

func TestOpenStore_InMemoryWithoutURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, "", log.Nop())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()

	if _, ok := store.(*memstore.Store); !ok {
		t.Fatalf("store = %T, want *memstore.Store", store)
	}

	e := triage.NewEngine(store, nil, triage.Options{})
	al, err := e.Raise(ctx, triage.KindSecurity, "Downtown Mall", triage.SeverityLow)
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if al.ID != "SEC1" {
		t.Errorf("ID = %q, want SEC1", al.ID)
	}
}

func TestOpenStore_BadDatabaseURL(t *testing.T) {
	t.Parallel()

	_, _, err := openStore(context.Background(), "postgres://%zz", log.Nop())
	if err == nil {
		t.Fatal("expected error for malformed database URL")
	}
	if !strings.Contains(err.Error(), "postgres pool") {
		t.Errorf("error = %q, want substring %q", err, "postgres pool")
	}
}

func TestShutdown_RunsInOrderAndSkipsNil(t *testing.T) {
	t.Parallel()

	var order []string
	step := func(name string, err error) func(context.Context) error {
		return func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Errorf("%s: context has no deadline", name)
			}
			order = append(order, name)
			return err
		}
	}

	shutdown(log.Nop(), time.Second, []stopFn{
		{"api", step("api", nil)},
		{"notifications", step("notifications", errors.New("timed out"))},
		{"otel", nil},
		{"ops", step("ops", nil)},
	})

	if got := strings.Join(order, ","); got != "api,notifications,ops" {
		t.Errorf("stop order = %q, want api,notifications,ops", got)
	}
}

func TestAPIHandler(t *testing.T) {
	t.Parallel()

	engine := triage.NewEngine(memstore.New(), log.Nop(), triage.Options{})
	h := apiHandler(log.Nop(), engine, metrics.New(), 0, health.Fixed(true, ""), health.Fixed(true, ""))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"liveness", http.MethodGet, "/-/healthy", "", http.StatusOK},
		{"readiness", http.MethodGet, "/-/ready", "", http.StatusOK},
		{"raise", http.MethodPost, "/api/v1/alerts", `{"kind":"fire","location":"123 Industrial Zone","severity":"high"}`, http.StatusCreated},
		{"next after raise", http.MethodGet, "/api/v1/alerts/next", "", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v2/alerts", "", http.StatusNotFound},
	}

	// raise must land before next, so steps run in order
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		if tt.body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: %s %s = %d, want %d (body %q)", tt.name, tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
		}
	}
}

func TestAPIHandler_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	engine := triage.NewEngine(memstore.New(), log.Nop(), triage.Options{})
	h := apiHandler(log.Nop(), engine, metrics.New(), 0, health.Fixed(true, ""), health.Fixed(true, ""))

	body := `{"kind":"fire","severity":"high","location":"` + strings.Repeat("x", maxRequestBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code == http.StatusCreated {
		t.Fatalf("oversized raise accepted")
	}
	if all, _ := engine.Snapshot(context.Background()); len(all) != 0 {
		t.Errorf("stored %d alerts, want 0", len(all))
	}
}
