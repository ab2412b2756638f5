package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/logging"
	"reelflow/internal/services"
)

// webhookServer receives asynchronous render completion callbacks over HTTP.
// A nil server (no bind address configured) is a no-op.
type webhookServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// renderCallback is the provider's callback payload.
type renderCallback struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	AssetURL     string `json:"asset_url,omitempty"`
	ErrorMessage string `json:"error,omitempty"`
}

func newWebhookServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *webhookServer {
	bind := strings.TrimSpace(cfg.Webhook.Bind)
	if bind == "" {
		return nil
	}

	srv := &webhookServer{
		bind:   bind,
		token:  cfg.Webhook.AuthToken,
		logger: logger,
		daemon: d,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/render", authMiddleware(srv.token, srv.handleRenderCallback))
	mux.HandleFunc("/api/status", srv.handleStatus)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *webhookServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("webhook server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("webhook server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *webhookServer) stop() {
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
		s.listener = nil
	}
}

func (s *webhookServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleRenderCallback routes provider completion signals to the generator.
// Unknown job ids and non-terminal statuses are acknowledged and dropped so
// the provider does not retry deliveries the daemon cannot use.
func (s *webhookServer) handleRenderCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload renderCallback
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid callback payload")
		return
	}
	if payload.JobID == "" {
		s.writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	err := s.daemon.HandleRenderCallback(r.Context(), payload.JobID, payload.Status, payload.AssetURL, payload.ErrorMessage)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *webhookServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":           status.Running,
		"pid":               status.PID,
		"db_path":           status.DBPath,
		"active_research":   status.ActiveResearch,
		"research_raw":      status.Health.ResearchRaw,
		"research_analyzed": status.Health.ResearchAnalyzed,
		"research_failed":   status.Health.ResearchFailed,
		"videos_active":     status.Health.VideosActive,
		"videos_completed":  status.Health.VideosCompleted,
		"videos_failed":     status.Health.VideosFailed,
		"campaigns_active":  status.Health.CampaignsActive,
	})
}

func (s *webhookServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *webhookServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *webhookServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "webhook"))
	}
	return logging.NewNop()
}

// authMiddleware validates bearer tokens. An empty token disables
// authentication and all requests pass through.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if strings.TrimPrefix(auth, "Bearer ") != token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
