package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/guard"
	"github.com/ousepachn/insta-media-sync/internal/indexer"
	"github.com/ousepachn/insta-media-sync/internal/repositories/runlog"
	"github.com/ousepachn/insta-media-sync/internal/status"
	"github.com/ousepachn/insta-media-sync/internal/syncer"
	"github.com/ousepachn/insta-media-sync/pkg/config"
	pkgerrors "github.com/ousepachn/insta-media-sync/pkg/errors"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"go.uber.org/fx"
)

// Runs triggered over HTTP execute in the background; the API replies 202
// immediately and clients poll the status endpoints for progress.

type Opts struct {
	fx.In

	Syncer  syncer.Client
	Status  status.Sink
	RunLog  runlog.Repository
	Indexer indexer.Client
	Guard   *guard.Guard
	Config  *config.Config
	Logger  logger.Logger
}

type Server struct {
	syncer  syncer.Client
	status  status.Sink
	runLog  runlog.Repository
	indexer indexer.Client
	guard   *guard.Guard
	logger  logger.Logger

	http *http.Server
}

func New(opts Opts) *Server {
	s := &Server{
		syncer:  opts.Syncer,
		status:  opts.Status,
		runLog:  opts.RunLog,
		indexer: opts.Indexer,
		guard:   opts.Guard,
		logger:  opts.Logger.WithComponent("Server"),
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Config.App.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scrape", s.handleScrape)
	mux.HandleFunc("POST /api/process-ai", s.handleProcessAI)
	mux.HandleFunc("POST /api/verify", s.handleVerify)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/status/{username}", s.handleSyncStatus)
	mux.HandleFunc("GET /api/verify-status/{username}", s.handleVerifyStatus)
	mux.HandleFunc("GET /api/runs/{username}", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{username}/{id}", s.handleRunDetail)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start begins serving in the background and returns immediately.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", "error", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type scrapeRequest struct {
	Username      string `json:"username"`
	MaxPosts      int    `json:"max_posts"`
	ProcessWithAI bool   `json:"process_with_ai"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if req.MaxPosts <= 0 {
		req.MaxPosts = 50
	}

	if !s.launch(w, req.Username, func(ctx context.Context) error {
		_, err := s.syncer.Scrape(ctx, req.Username, req.MaxPosts, req.ProcessWithAI)
		return err
	}) {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":  "scraping started",
		"username": req.Username,
	})
}

type processAIRequest struct {
	Username         string `json:"username"`
	ProcessingOption string `json:"processing_option"`
}

func (s *Server) handleProcessAI(w http.ResponseWriter, r *http.Request) {
	var req processAIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	mode, ok := domain.ParseProcessMode(req.ProcessingOption)
	if req.ProcessingOption != "" && !ok {
		writeError(w, http.StatusBadRequest, "unknown processing_option")
		return
	}
	if mode == domain.ProcessModeSkip {
		writeError(w, http.StatusBadRequest, "processing_option skip starts no work")
		return
	}

	if !s.launch(w, req.Username, func(ctx context.Context) error {
		_, err := s.syncer.ProcessAI(ctx, req.Username, mode)
		return err
	}) {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":  "ai processing started",
		"username": req.Username,
	})
}

type verifyRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	if !s.launch(w, req.Username, func(ctx context.Context) error {
		_, err := s.syncer.Verify(ctx, req.Username)
		return err
	}) {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":  "verification started",
		"username": req.Username,
	})
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// handleSearch answers synchronously; a query is a read, not a run, so it
// needs no guard and no run log entry.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	matches, err := s.indexer.Query(r.Context(), req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, indexer.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, indexer.ErrNotConfigured.Error())
			return
		}
		s.logger.Error("Search query failed", "query", req.Query, "error", err)
		writeError(w, http.StatusBadGateway, "search query failed")
		return
	}

	if matches == nil {
		matches = []indexer.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": req.Query, "results": matches})
}

// launch rejects usernames with an active run, then starts fn in the
// background. The guard check here is advisory; the pipeline acquires the
// guard itself and any race loser logs ErrRunInProgress and stops.
func (s *Server) launch(w http.ResponseWriter, username string, fn func(ctx context.Context) error) bool {
	if s.guard.Busy(username) {
		writeError(w, http.StatusConflict, pkgerrors.ErrRunInProgress.Error())
		return false
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()
		if err := fn(ctx); err != nil {
			if pkgerrors.IsRunInProgress(err) {
				s.logger.Info("Run lost the guard race, skipping", "username", username)
				return
			}
			s.logger.Error("Background run failed", "username", username, "error", err)
		}
	}()
	return true
}

type statusResponse struct {
	Username    string `json:"username"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	CurrentPost int    `json:"current_post,omitempty"`
	TotalPosts  int    `json:"total_posts,omitempty"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	s.handleStatus(w, r, s.status.GetSync)
}

func (s *Server) handleVerifyStatus(w http.ResponseWriter, r *http.Request) {
	s.handleStatus(w, r, s.status.GetVerify)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request,
	get func(ctx context.Context, username string) (status.Status, bool, error),
) {
	username := r.PathValue("username")
	st, found, err := get(r.Context(), username)
	if err != nil {
		s.logger.Error("Failed to read status", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no runs recorded for this username")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Username:    username,
		Status:      st.Status,
		Message:     st.Message,
		Error:       st.Error,
		CurrentPost: st.CurrentPost,
		TotalPosts:  st.TotalPosts,
	})
}

type runResponse struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Processed  int        `json:"processed"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	runs, err := s.runLog.GetLatestByUsername(r.Context(), username, 20)
	if err != nil {
		s.logger.Error("Failed to read run history", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read run history")
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse{
			ID:         run.ID,
			Kind:       string(run.Kind),
			Status:     string(run.Status),
			Processed:  run.Processed,
			Skipped:    run.Skipped,
			Error:      run.Error,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": username, "runs": out})
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	id := r.PathValue("id")

	run, err := s.runLog.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, runlog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("Failed to read run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read run")
		return
	}
	// Run IDs are global; the username in the path scopes what a client
	// may see.
	if run.Username != username {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		ID:         run.ID,
		Kind:       string(run.Kind),
		Status:     string(run.Status),
		Processed:  run.Processed,
		Skipped:    run.Skipped,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("ok")); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
