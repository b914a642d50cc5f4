package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/micro-ha/deck-automations/plugin/internal/button"
	"github.com/micro-ha/deck-automations/plugin/internal/controller"
	"github.com/micro-ha/deck-automations/plugin/internal/http/handlers"
	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

type stubInstances struct {
	items []controller.InstanceView
}

func (s stubInstances) Snapshot() []controller.InstanceView { return s.items }

type stubHistory struct {
	records     []model.TriggerRecord
	err         error
	gotLimit    int
	gotInstance string
}

func (s *stubHistory) ListRecent(_ context.Context, limit int) ([]model.TriggerRecord, error) {
	s.gotLimit = limit
	return s.records, s.err
}

func (s *stubHistory) ListForInstance(_ context.Context, instanceID string, limit int) ([]model.TriggerRecord, error) {
	s.gotInstance = instanceID
	s.gotLimit = limit
	return s.records, s.err
}

func testRouter(history handlers.HistoryProvider) http.Handler {
	instances := stubInstances{items: []controller.InstanceView{
		{InstanceID: "ctx-1", View: button.Render(button.StateReady, "Daily Report", "")},
		{InstanceID: "ctx-2", View: button.Render(button.StateUnconfigured, "", "")},
	}}
	return NewRouter(handlers.New(instances, history, slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func getJSON(t *testing.T, handler http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s body %q: %v", path, rec.Body.String(), err)
	}
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	code, body := getJSON(t, testRouter(nil), "/healthz")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" || body["instances"] != float64(2) || body["history"] != false {
		t.Fatalf("body = %v", body)
	}
}

func TestInstances(t *testing.T) {
	router := testRouter(nil)

	code, body := getJSON(t, router, "/api/instances")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	items := body["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %v", items)
	}

	code, body = getJSON(t, router, "/api/instances/ctx-1")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	view := body["view"].(map[string]any)
	if view["title"] != "Daily Report" {
		t.Fatalf("view = %v", view)
	}

	code, body = getJSON(t, router, "/api/instances/missing")
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if body["error"].(map[string]any)["code"] != "not_found" {
		t.Fatalf("body = %v", body)
	}
}

func TestHistory(t *testing.T) {
	history := &stubHistory{records: []model.TriggerRecord{{
		ID:          "rec-1",
		InstanceID:  "ctx-1",
		Outcome:     model.OutcomeSuccess,
		TriggeredAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}}}
	router := testRouter(history)

	code, body := getJSON(t, router, "/api/history?limit=5")
	if code != http.StatusOK || history.gotLimit != 5 {
		t.Fatalf("status = %d limit = %d", code, history.gotLimit)
	}
	if len(body["items"].([]any)) != 1 {
		t.Fatalf("body = %v", body)
	}

	getJSON(t, router, "/api/history?instance=ctx-1")
	if history.gotInstance != "ctx-1" || history.gotLimit != 0 {
		t.Fatalf("instance = %q limit = %d", history.gotInstance, history.gotLimit)
	}

	code, _ = getJSON(t, router, "/api/history?limit=abc")
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}

	history.err = errors.New("database is locked")
	code, body = getJSON(t, router, "/api/history")
	if code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", code)
	}
	if body["error"].(map[string]any)["message"] == "database is locked" {
		t.Fatalf("storage error leaked: %v", body)
	}
}

func TestHistoryDisabled(t *testing.T) {
	code, body := getJSON(t, testRouter(nil), "/api/history")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if items := body["items"].([]any); len(items) != 0 {
		t.Fatalf("items = %v", items)
	}
}

type loggerProvider struct{}

func (loggerProvider) Logger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRecoverJSON(t *testing.T) {
	handler := RecoverJSON(loggerProvider{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	code, body := getJSON(t, handler, "/")
	if code != http.StatusInternalServerError {
		t.Fatalf("status = %d", code)
	}
	if body["error"].(map[string]any)["code"] != "internal_error" {
		t.Fatalf("body = %v", body)
	}
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer("127.0.0.1:0", testRouter(nil))

	done := make(chan error, 1)
	go func() { done <- RunServer(ctx, server) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunServer() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("RunServer() did not stop")
	}
}
