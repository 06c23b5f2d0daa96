package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/funnel"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Server exposes the funnel over HTTP for the dashboard.
type Server struct {
	ctrl  *funnel.Controller
	store store.Store
}

// New creates a Server around the controller and store.
func New(ctrl *funnel.Controller, st store.Store) *Server {
	return &Server{ctrl: ctrl, store: st}
}

// Router builds the chi router with CORS for the dashboard origins.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/pipeline/status", s.handleStatus)
	r.Post("/pipeline/run", s.handleRun)
	r.Post("/pipeline/stop", s.handleStop)
	r.Get("/leads", s.handleListLeads)
	r.Get("/leads/{id}", s.handleGetLead)
	r.Get("/leads/{id}/messages", s.handleLeadMessages)
	r.Delete("/leads", s.handleClearLeads)

	return r
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int, allowedOrigins []string) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(allowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Metrics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":             m.Total,
		"enriched":          m.Enriched,
		"messaged":          m.Messaged,
		"sent":              m.Sent,
		"failed":            m.Failed,
		"by_status":         m.ByStatus,
		"percentages":       m.Percentages(),
		"messages_composed": m.MessagesComposed,
		"attempts_sent":     m.AttemptsSent,
		"attempts_failed":   m.AttemptsFailed,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var cfg funnel.RunConfig
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
			return
		}
	}

	runID, err := s.ctrl.Start(cfg)
	if eris.Is(err, funnel.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if eris.Is(err, funnel.ErrUnknownMode) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"run_id": runID,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.Cancel()
	if eris.Is(err, funnel.ErrNotRunning) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	filter := store.LeadFilter{Limit: 100}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &filter.Limit); err != nil || filter.Limit <= 0 {
			writeError(w, http.StatusBadRequest, eris.Errorf("invalid limit %q", raw))
			return
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &filter.Offset); err != nil || filter.Offset < 0 {
			writeError(w, http.StatusBadRequest, eris.Errorf("invalid offset %q", raw))
			return
		}
	}

	leads, err := s.store.ListLeads(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leads": leads,
		"count": len(leads),
	})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lead, err := s.store.GetLead(r.Context(), id)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, eris.Errorf("lead %s not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleLeadMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetLead(r.Context(), id); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, eris.Errorf("lead %s not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	msgs, err := s.store.ListLeadMessages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	})
}

func (s *Server) handleClearLeads(w http.ResponseWriter, r *http.Request) {
	if s.ctrl.Status().Running {
		writeError(w, http.StatusConflict, eris.New("cannot clear leads while a run is in progress"))
		return
	}
	if err := s.store.ClearAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
