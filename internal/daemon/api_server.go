package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"minewatch/internal/api"
	"minewatch/internal/config"
	"minewatch/internal/daterange"
	"minewatch/internal/logging"
	"minewatch/internal/services"
)

const (
	maxRequestBody  = 1 << 20
	defaultLogLimit = 200
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	now    func() time.Time

	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		now:    time.Now,
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	mux.HandleFunc("GET /api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("POST /api/pipeline/submit", authMiddleware(token, srv.handleSubmit))
	mux.HandleFunc("POST /api/pipeline/run", authMiddleware(token, srv.handleRun))
	mux.HandleFunc("GET /api/tasks", authMiddleware(token, srv.handleTasks))
	mux.HandleFunc("GET /api/tasks/{id}", authMiddleware(token, srv.handleTask))
	mux.HandleFunc("GET /api/mines/{id}", authMiddleware(token, srv.handleMine))
	mux.HandleFunc("GET /api/mines/{id}/pixels", authMiddleware(token, srv.handlePixels))
	mux.HandleFunc("GET /api/mines/{id}/zones", authMiddleware(token, srv.handleZones))
	mux.HandleFunc("GET /api/mines/{id}/violations", authMiddleware(token, srv.handleViolations))
	mux.HandleFunc("GET /api/mines/{id}/alerts", authMiddleware(token, srv.handleAlerts))
	mux.HandleFunc("GET /api/mines/{id}/spectral-signature", authMiddleware(token, srv.handleSignature))
	mux.HandleFunc("GET /api/mines/{id}/kpi", authMiddleware(token, srv.handleKPI))
	mux.HandleFunc("GET /api/logs", authMiddleware(token, srv.handleLogs))
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	srv.handler = mux
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled", logging.String(logging.FieldEventType, "api_disabled"))
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the api_bind address is free"),
				logging.String(logging.FieldImpact, "HTTP clients cannot reach the daemon"),
			)
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "running"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, statusPayload(s.daemon.Status()))
}

func statusPayload(st Status) api.DaemonStatus {
	return api.DaemonStatus{
		Running:      st.Running,
		PID:          st.PID,
		DatabasePath: st.DatabasePath,
		LockFilePath: st.LockFilePath,
		LogPath:      st.LogPath,
		Provider:     st.Provider,
		Mines:        st.Mines,
		Workflow:     api.FromSummary(st.Workflow),
	}
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.decodePipelineRequest(w, r)
	if !ok {
		return
	}
	req, err := payload.ToRequest()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	task, err := s.daemon.Submit(req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.TaskResponse{Task: api.FromTask(task)})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.decodePipelineRequest(w, r)
	if !ok {
		return
	}
	req, err := payload.ToRequest()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	task, err := s.daemon.Run(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: api.FromTask(task)})
}

func (s *apiServer) decodePipelineRequest(w http.ResponseWriter, r *http.Request) (api.PipelineRequest, bool) {
	var payload api.PipelineRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), false)
		return payload, false
	}
	return payload, true
}

func (s *apiServer) handleTasks(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: api.FromTasks(s.daemon.Tasks())})
}

func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.daemon.Task(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: api.FromTask(task)})
}

func (s *apiServer) handleMine(w http.ResponseWriter, r *http.Request) {
	id, ok := s.mineID(w, r)
	if !ok {
		return
	}
	feature, err := s.daemon.Mines().Mine(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feature)
}

func (s *apiServer) handlePixels(w http.ResponseWriter, r *http.Request) {
	id, window, ok := s.mineQuery(w, r, api.LastDays(s.now(), api.DefaultPixelWindowDays))
	if !ok {
		return
	}
	resp, err := s.daemon.Mines().Pixels(r.Context(), id, window)
	s.respond(w, resp, err)
}

func (s *apiServer) handleZones(w http.ResponseWriter, r *http.Request) {
	id, window, ok := s.mineQuery(w, r, daterange.Range{})
	if !ok {
		return
	}
	fc, err := s.daemon.Mines().Zones(r.Context(), id, window)
	s.respond(w, fc, err)
}

func (s *apiServer) handleViolations(w http.ResponseWriter, r *http.Request) {
	id, window, ok := s.mineQuery(w, r, daterange.Range{})
	if !ok {
		return
	}
	resp, err := s.daemon.Mines().Violations(r.Context(), id, window)
	s.respond(w, resp, err)
}

func (s *apiServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	id, window, ok := s.mineQuery(w, r, daterange.Range{})
	if !ok {
		return
	}
	resp, err := s.daemon.Mines().Alerts(r.Context(), id, window)
	s.respond(w, resp, err)
}

func (s *apiServer) handleSignature(w http.ResponseWriter, r *http.Request) {
	id, window, ok := s.mineQuery(w, r, daterange.Range{})
	if !ok {
		return
	}
	resp, err := s.daemon.Mines().Signature(r.Context(), id, window)
	s.respond(w, resp, err)
}

func (s *apiServer) handleKPI(w http.ResponseWriter, r *http.Request) {
	id, window, ok := s.mineQuery(w, r, daterange.Range{})
	if !ok {
		return
	}
	resp, err := s.daemon.Mines().KPI(r.Context(), id, window)
	s.respond(w, resp, err)
}

func (s *apiServer) mineID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid mine id", false)
		return 0, false
	}
	return id, true
}

func (s *apiServer) mineQuery(w http.ResponseWriter, r *http.Request, fallback daterange.Range) (int64, daterange.Range, bool) {
	id, ok := s.mineID(w, r)
	if !ok {
		return 0, daterange.Range{}, false
	}
	query := r.URL.Query()
	window, err := api.ParseWindow(queryValue(query, "start", "start_date"), queryValue(query, "end", "end_date"), fallback)
	if err != nil {
		s.writeServiceError(w, err)
		return 0, daterange.Range{}, false
	}
	return id, window, true
}

// queryValue returns the first non-empty value among keys.
func queryValue(query url.Values, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: []api.LogEvent{}})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	tail := query.Get("tail") == "1" || strings.EqualFold(query.Get("tail"), "true")

	var mineID int64
	if value := strings.TrimSpace(query.Get("mine")); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			mineID = parsed
		}
	}
	taskID := strings.TrimSpace(query.Get("task"))
	minLevel := slog.LevelDebug
	if value := strings.TrimSpace(query.Get("level")); value != "" {
		if err := minLevel.UnmarshalText([]byte(value)); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid level", false)
			return
		}
	}

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		var err error
		events, next, err = hub.Fetch(r.Context(), since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error(), false)
			return
		}
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if evt.Matches(mineID, taskID, minLevel) {
			filtered = append(filtered, evt)
		}
	}
	converted := api.FromLogEvents(filtered)
	if converted == nil {
		converted = []api.LogEvent{}
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: converted, Next: next})
}

func (s *apiServer) respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(s.logger, "api request failed", "api_request_failed",
			logging.Error(err),
			logging.Int("status", status),
			logging.String(logging.FieldErrorHint, "inspect the error details and daemon log"),
			logging.String(logging.FieldImpact, "the client received an error response"),
		)
	}
	s.writeError(w, status, err.Error(), services.Retryable(err))
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string, retryable bool) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Retryable: retryable})
}
