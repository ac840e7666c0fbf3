package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"quire/internal/agents"
	"quire/internal/api"
	"quire/internal/artifact"
	"quire/internal/config"
	"quire/internal/hub"
	"quire/internal/logging"
	"quire/internal/metrics"
	"quire/internal/project"
	"quire/internal/services"
	"quire/internal/workflow"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		token:  cfg.API.Token,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /api/daemon", s.handleDaemon)
	s.handle(mux, "GET /api/projects", s.handleListProjects)
	s.handle(mux, "POST /api/projects", s.handleCreateProject)
	s.handle(mux, "GET /api/projects/{id}/status", s.handleStatus)
	s.handle(mux, "POST /api/projects/{id}/start", s.handleStart)
	s.handle(mux, "POST /api/projects/{id}/reset", s.handleReset)
	s.handle(mux, "GET /api/projects/{id}/artifacts", s.handleArtifacts)
	s.handle(mux, "GET /api/projects/{id}/artifacts/{doc}", s.handleArtifact)
	s.handle(mux, "DELETE /api/projects/{id}/artifacts/{doc}", s.handleDeleteArtifact)
	s.handle(mux, "GET /api/projects/{id}/stats", s.handleStats)
	s.handle(mux, "GET /api/projects/{id}/manuscript", s.handleManuscript)
	s.handle(mux, "GET /api/projects/{id}/timeline", s.handleTimeline)
	mux.Handle("GET /metrics", metrics.Handler())
	return s.instrument(mux)
}

func (s *apiServer) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, authMiddleware(s.token, h))
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// statusRecorder captures the response code for metrics and access logs.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument assigns a request id, counts the request by route pattern and
// logs it at debug level.
func (s *apiServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r = r.WithContext(services.WithRequestID(r.Context(), id))

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		logging.WithContext(r.Context(), s.log()).Debug("api request",
			logging.String("route", route),
			logging.Int("code", rec.code),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}

func (s *apiServer) handleDaemon(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.daemon.catalog.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if projects == nil {
		projects = []project.Summary{}
	}
	s.writeJSON(w, http.StatusOK, api.ProjectListResponse{Projects: projects})
}

func (s *apiServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req api.CreateProjectRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	id, cfg, err := s.daemon.catalog.Create(r.Context(), req.Params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := api.CreateProjectResponse{ID: id, Config: cfg}
	if req.StartRequested() {
		run, err := s.daemon.registry.Start(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Started = true
		resp.RunID = run.ID()
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r, r.PathValue("id"))
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.daemon.registry.Start(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeStatus(w, r, id)
}

func (s *apiServer) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.daemon.registry.Reset(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeStatus(w, r, id)
}

func (s *apiServer) writeStatus(w http.ResponseWriter, r *http.Request, id string) {
	view, err := s.daemon.registry.Status(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatusResponse{Project: view})
}

func (s *apiServer) projectHub(w http.ResponseWriter, r *http.Request) (*hub.Hub, bool) {
	h, err := s.daemon.catalog.Hub(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return h, true
}

func (s *apiServer) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	h, ok := s.projectHub(w, r)
	if !ok {
		return
	}
	q, err := api.ParseArtifactQuery(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := api.ListArtifacts(r.Context(), h.Store(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ArtifactListResponse{Artifacts: out})
}

func (s *apiServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	h, ok := s.projectHub(w, r)
	if !ok {
		return
	}
	doc, found := h.Store().Get(r.PathValue("doc"))
	if !found {
		s.writeError(w, r, http.StatusNotFound, fmt.Sprintf("document %s not found", r.PathValue("doc")))
		return
	}
	s.writeJSON(w, http.StatusOK, api.ArtifactResponse{Artifact: api.FromDocument(doc, true)})
}

func (s *apiServer) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	h, ok := s.projectHub(w, r)
	if !ok {
		return
	}
	deleted, err := h.Store().Delete(r.Context(), r.PathValue("doc"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{Deleted: deleted})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	h, ok := s.projectHub(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatsResponse{Stats: h.Store().Stats()})
}

func (s *apiServer) handleManuscript(w http.ResponseWriter, r *http.Request) {
	h, ok := s.projectHub(w, r)
	if !ok {
		return
	}
	m, found := h.Manuscript()
	if !found {
		s.writeError(w, r, http.StatusNotFound, "manuscript not assembled yet")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ManuscriptResponse{Manuscript: m, Markdown: agents.Render(m)})
}

func (s *apiServer) handleTimeline(w http.ResponseWriter, r *http.Request) {
	h, ok := s.projectHub(w, r)
	if !ok {
		return
	}
	events := h.Timeline()
	if events == nil {
		events = []hub.TimelineEvent{}
	}
	s.writeJSON(w, http.StatusOK, api.TimelineResponse{Events: events})
}

// statusFor maps service error markers onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, artifact.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrAlreadyRunning),
		errors.Is(err, workflow.ErrNotRunning),
		errors.Is(err, artifact.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, project.ErrClosed),
		errors.Is(err, artifact.ErrClosed),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *apiServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.log()).Error("api request failed",
			logging.String("route", r.Pattern),
			logging.Error(err),
		)
	}
	s.writeError(w, r, code, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := api.ErrorResponse{Error: message}
	if id, ok := services.RequestIDFromContext(r.Context()); ok {
		resp.RequestID = id
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
