package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"minewatch/internal/api"
	"minewatch/internal/logging"
	"minewatch/internal/store"
	"minewatch/internal/testsupport"
)

func (h *daemonHarness) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.daemon.api.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (h *daemonHarness) seed(t *testing.T) {
	t.Helper()
	obs := h.scene.Observations()
	obs[len(obs)-1].Excavated = true
	if _, err := h.store.SaveBatch(context.Background(), store.Batch{Observations: obs}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	last := h.scene.Last().Time()
	h.daemon.api.now = func() time.Time { return last }
}

func TestAPIAuthentication(t *testing.T) {
	h := newHarness(t, testsupport.WithAPIToken("secret"))

	rec := h.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK || decode[api.HealthResponse](t, rec).Status != "running" {
		t.Fatalf("health should not require auth, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/api/status", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	wrong := map[string]string{"Authorization": "Bearer nope"}
	if rec := h.do(t, http.MethodGet, "/api/status", "", wrong); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	status := decode[api.DaemonStatus](t, rec)
	if status.Mines != 1 || status.Provider != "csv" || status.Workflow.Tasks["queued"] != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestAPIRunAndTaskLookup(t *testing.T) {
	h := newHarness(t)

	body := `{"mineId":21,"startDate":"2024-01-01","endDate":"2024-02-15"}`
	rec := h.do(t, http.MethodPost, "/api/pipeline/run", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	task := decode[api.TaskResponse](t, rec).Task
	if task.Status != "completed" || task.Result == nil || len(task.Result.Processed) != 1 {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.Window.Start != "2024-01-01" || task.Window.End != "2024-02-15" {
		t.Fatalf("unexpected window %+v", task.Window)
	}

	rec = h.do(t, http.MethodGet, "/api/tasks/"+task.ID, "", nil)
	if rec.Code != http.StatusOK || decode[api.TaskResponse](t, rec).Task.ID != task.ID {
		t.Fatalf("task lookup failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = h.do(t, http.MethodGet, "/api/tasks", "", nil)
	if got := decode[api.TaskListResponse](t, rec).Tasks; len(got) != 1 {
		t.Fatalf("expected one task, got %d", len(got))
	}
	if rec := h.do(t, http.MethodGet, "/api/tasks/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", rec.Code)
	}
}

func TestAPIRunFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	body := `{"mineId":13,"startDate":"2024-01-01","endDate":"2024-02-15"}`
	rec := h.do(t, http.MethodPost, "/api/pipeline/run", body, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decode[api.ErrorResponse](t, rec)
	if !resp.Retryable || resp.Error == "" {
		t.Fatalf("unexpected error response %+v", resp)
	}
}

func TestAPIRejectsBadPipelineRequests(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"mineId":`},
		{"unknown field", `{"mineId":21,"startDate":"2024-01-01","endDate":"2024-02-01","extra":1}`},
		{"inverted", `{"mineId":21,"startDate":"2024-03-01","endDate":"2024-02-01"}`},
		{"missing mine", `{"startDate":"2024-01-01","endDate":"2024-02-01"}`},
		{"bad date", `{"mineId":21,"startDate":"01/01/2024","endDate":"2024-02-01"}`},
	}
	for _, tt := range tests {
		rec := h.do(t, http.MethodPost, "/api/pipeline/run", tt.body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", tt.name, rec.Code, rec.Body.String())
		}
	}
	if len(h.runner.calls) != 0 {
		t.Fatalf("runner should not be invoked for invalid requests")
	}
	if rec := h.do(t, http.MethodGet, "/api/pipeline/run", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestAPISubmitRequiresRunningDaemon(t *testing.T) {
	h := newHarness(t)
	body := `{"mineId":21,"startDate":"2024-01-01","endDate":"2024-02-15"}`
	if rec := h.do(t, http.MethodPost, "/api/pipeline/submit", body, nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 before start, got %d", rec.Code)
	}

	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec := h.do(t, http.MethodPost, "/api/pipeline/submit", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if task := decode[api.TaskResponse](t, rec).Task; task.ID == "" {
		t.Fatal("expected task id in response")
	}
}

func TestAPIMineQueries(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	rec := h.do(t, http.MethodGet, "/api/mines/21", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Feature"`) {
		t.Fatalf("mine: %d %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/api/mines/21/pixels?start=2024-01-01&end=2024-01-01", "", nil)
	if got := decode[api.PixelsResponse](t, rec); len(got.Pixels) != 25 {
		t.Fatalf("expected 25 pixels for one day, got %d", len(got.Pixels))
	}

	// Without dates the pixel query covers the last 30 days: six samples.
	rec = h.do(t, http.MethodGet, "/api/mines/21/pixels", "", nil)
	got := decode[api.PixelsResponse](t, rec)
	if len(got.Pixels) != 6*25 || got.Window.End != h.scene.Last().String() {
		t.Fatalf("expected default window of 150 pixels, got %d over %+v", len(got.Pixels), got.Window)
	}

	rec = h.do(t, http.MethodGet, "/api/mines/21/kpi", "", nil)
	kpi := decode[api.KPIResponse](t, rec)
	if kpi.Observations != 25*60 || kpi.Excavated != 1 {
		t.Fatalf("unexpected kpi %+v", kpi)
	}

	rec = h.do(t, http.MethodGet, "/api/mines/21/zones", "", nil)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &fc); err != nil || fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("unexpected zones payload %s (err %v)", rec.Body.String(), err)
	}

	rec = h.do(t, http.MethodGet, "/api/mines/21/violations", "", nil)
	if v := decode[api.ViolationsResponse](t, rec); len(v.Violations) != 0 {
		t.Fatalf("expected no stored violations, got %d", len(v.Violations))
	}
	rec = h.do(t, http.MethodGet, "/api/mines/21/alerts", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("alerts: %d", rec.Code)
	}
	rec = h.do(t, http.MethodGet, "/api/mines/21/spectral-signature", "", nil)
	if sig := decode[api.SignatureResponse](t, rec); sig.MineID != 21 {
		t.Fatalf("unexpected signature %+v", sig)
	}
}

func TestAPIMineQueryErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		target string
		want   int
	}{
		{"/api/mines/abc", http.StatusBadRequest},
		{"/api/mines/0/kpi", http.StatusBadRequest},
		{"/api/mines/404/kpi", http.StatusNotFound},
		{"/api/mines/21/pixels?start_date=2024-02-01&end_date=2024-01-01", http.StatusBadRequest},
		{"/api/mines/21/alerts?start_date=yesterday", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := h.do(t, http.MethodGet, tt.target, "", nil); rec.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.target, tt.want, rec.Code)
		}
	}
}

func TestAPILogsFilters(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	h.hub.Publish(logging.LogEvent{Timestamp: now, Level: "INFO", Message: "one", MineID: 21})
	h.hub.Publish(logging.LogEvent{Timestamp: now, Level: "DEBUG", Message: "two", MineID: 21})
	h.hub.Publish(logging.LogEvent{Timestamp: now, Level: "WARN", Message: "three", MineID: 7})

	rec := h.do(t, http.MethodGet, "/api/logs?tail=1", "", nil)
	all := decode[api.LogStreamResponse](t, rec)
	if len(all.Events) != 3 || all.Next == 0 {
		t.Fatalf("expected three events, got %+v", all)
	}

	rec = h.do(t, http.MethodGet, "/api/logs?mine=21&level=info", "", nil)
	filtered := decode[api.LogStreamResponse](t, rec)
	if len(filtered.Events) != 1 || filtered.Events[0].Message != "one" {
		t.Fatalf("unexpected filtered events %+v", filtered.Events)
	}

	if rec := h.do(t, http.MethodGet, "/api/logs?level=loud", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad level, got %d", rec.Code)
	}
}

func TestAPIMetrics(t *testing.T) {
	h := newHarness(t)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "minewatch_test_total", Help: "test"})
	h.registry.MustRegister(counter)
	counter.Inc()

	rec := h.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "minewatch_test_total 1") {
		t.Fatalf("unexpected metrics output %d: %s", rec.Code, rec.Body.String())
	}
}
