package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewHTTPHandlerRequiresServices(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err != errMissingWidgetService {
		t.Fatalf("expected missing widget service error, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodGet, "/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok status, got %d", recorder.Code)
	}
	payload := decodeBody[healthPayload](t, recorder)
	if payload.Status != "ok" || payload.Timestamp != fixedNow.Format(time.RFC3339) {
		t.Fatalf("unexpected health payload: %+v", payload)
	}
}

func TestRootRedirectsToDashboard(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodGet, "/", "")
	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", recorder.Code)
	}
	if location := recorder.Header().Get("Location"); location != "/dashboard/" {
		t.Fatalf("unexpected redirect target %q", location)
	}
}

func TestDashboardServed(t *testing.T) {
	server := newTestServer(t)

	index := server.do(t, http.MethodGet, "/dashboard/", "")
	if index.Code != http.StatusOK {
		t.Fatalf("expected dashboard index, got %d", index.Code)
	}
	if !strings.Contains(index.Body.String(), "<html") {
		t.Fatalf("expected html document")
	}

	script := server.do(t, http.MethodGet, "/dashboard/app.js", "")
	if script.Code != http.StatusOK || !strings.Contains(script.Body.String(), "/api/widgets") {
		t.Fatalf("expected dashboard script, got %d", script.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodGet, "/nowhere", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", recorder.Code)
	}
	if body := decodeBody[errorPayload](t, recorder); body.Error != "Not found" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	server := newTestServer(t, func(deps *Dependencies) {
		deps.Logger = zap.New(core)
	})

	server.do(t, http.MethodGet, "/health", "")
	server.do(t, http.MethodGet, "/api/widgets/missing1", "")

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 2 {
		t.Fatalf("expected two request log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info for success, got %s", entries[0].Level)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for client error, got %s", entries[1].Level)
	}
	fields := entries[1].ContextMap()
	if fields["status"] != int64(http.StatusNotFound) || fields["path"] != "/api/widgets/missing1" {
		t.Fatalf("unexpected log fields: %v", fields)
	}
	if requestID, _ := fields["request_id"].(string); requestID == "" {
		t.Fatalf("expected generated request id")
	}
}
