package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"medley/internal/config"
	"medley/internal/identity"
	"medley/internal/jobs"
	"medley/internal/logging"
	"medley/internal/resolver"
)

// maxUploadBytes caps a single media upload read into memory.
const maxUploadBytes = 512 << 20

type apiServer struct {
	bind          string
	token         string
	allowedOrigin string
	logger        *slog.Logger
	daemon        *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:          bind,
		token:         cfg.Paths.APIToken,
		allowedOrigin: cfg.Paths.AllowedOrigin,
		logger:        logging.NewComponentLogger(logger, "api-server"),
		daemon:        d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", srv.secured(srv.handleJobs))
	mux.HandleFunc("/api/jobs/", srv.secured(srv.handleJob))
	mux.HandleFunc("/api/notifications", srv.secured(srv.handleNotification))
	mux.HandleFunc("/api/health", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       120 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) secured(next http.HandlerFunc) http.HandlerFunc {
	return s.cors(authMiddleware(s.token, next))
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	claims, err := identity.FromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "unable to determine caller identity")
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.createJob(w, r, claims)
	case http.MethodGet:
		records, err := s.daemon.ListJobs(r.Context(), claims)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"jobs": records})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) createJob(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	media, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unable to read media body")
		return
	}
	if len(media) > maxUploadBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "media body too large")
		return
	}

	record, err := s.daemon.CreateJob(r.Context(), claims, filename, media, r.Header.Get("Content-Type"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, record)
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	claims, err := identity.FromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "unable to determine caller identity")
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	view, err := s.daemon.GetJob(r.Context(), claims, jobID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var n resolver.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid notification body")
		return
	}

	record, err := s.daemon.Notify(r.Context(), n)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"job_id":       record.JobID,
		"operation_id": n.OperationID,
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	healthy := s.daemon.workflow.Healthy(r.Context())
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	steps := make(map[string]any, len(status.Workflow.StepHealth))
	for name, h := range status.Workflow.StepHealth {
		steps[name] = map[string]any{"ready": h.Ready, "detail": h.Detail}
	}
	s.writeJSON(w, code, map[string]any{
		"running": status.Running,
		"healthy": healthy,
		"steps":   steps,
	})
}

// cors applies the configured allowed origin and answers preflight requests.
func (s *apiServer) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, Authorization, "+identity.SubjectHeader)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// writeFailure maps the error kind taxonomy onto HTTP status codes.
func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, jobs.ErrValidation):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  jobs.Kind(err),
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
