// Package api exposes the verification service over HTTP.
//
// Endpoints:
//   - POST /v1/verify                      run or fetch a verification
//   - GET  /v1/programs/{id}/history       past verdicts, newest first
//   - GET  /health                         liveness and store counters
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/solguard/solguard/internal/types"
	"github.com/solguard/solguard/pkg/history"
	"github.com/solguard/solguard/pkg/provenance"
)

// Config holds API server configuration.
type Config struct {
	// Addr is the listen address (host:port).
	Addr string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration

	// MaxRequestSize is the maximum allowed request body size in bytes.
	MaxRequestSize int64

	// EnableCORS enables CORS headers for browser access.
	EnableCORS bool

	// LogRequests enables request logging.
	LogRequests bool

	// Logger receives request logs. Nil falls back to the standard logger.
	Logger *log.Logger
}

// DefaultConfig returns a default API server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8710",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestSize: 16 * 1024,
		EnableCORS:     true,
		LogRequests:    false,
	}
}

// Server serves the verification HTTP API.
type Server struct {
	config   Config
	verifier *provenance.Verifier

	server *http.Server

	mu      sync.Mutex
	running bool
}

// New creates an API server around a verifier.
func New(config Config, verifier *provenance.Verifier) *Server {
	return &Server{
		config:   config,
		verifier: verifier,
	}
}

// Handler returns the routed handler. Exposed so tests can drive the
// server without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/verify", s.handleVerify)
	mux.HandleFunc("GET /v1/programs/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.corsMiddleware(mux)
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if s.config.LogRequests {
		s.logf("server starting on %s", s.config.Addr)
	}

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// verifyRequest is the POST /v1/verify body.
type verifyRequest struct {
	ProgramID      string `json:"program_id"`
	ProfileID      string `json:"profile_id,omitempty"`
	ClaimedRepoURL string `json:"claimed_repo_url,omitempty"`
	Force          bool   `json:"force,omitempty"`
}

// historyEntry is one row of the history response.
type historyEntry struct {
	Status       string      `json:"match_status"`
	Confidence   string      `json:"confidence"`
	OnChainHash  *types.Hash `json:"on_chain_hash,omitempty"`
	RegistryHash *types.Hash `json:"registry_hash,omitempty"`
	DeploySlot   *uint64     `json:"deploy_slot,omitempty"`
	RepoURL      string      `json:"repo_url,omitempty"`
	Message      string      `json:"message"`
	VerifiedAt   time.Time   `json:"verified_at"`
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req verifyRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.ProgramID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "program_id is required")
		return
	}

	result, err := s.verifier.Verify(r.Context(), provenance.Request{
		ProgramID:      req.ProgramID,
		ProfileID:      req.ProfileID,
		ClaimedRepoURL: req.ClaimedRepoURL,
		Force:          req.Force,
	})
	if err != nil {
		s.writeVerifyError(w, err)
		return
	}

	if s.config.LogRequests {
		s.logf("verify %s: %s/%s (cached=%v)", req.ProgramID, result.Status, result.Confidence, result.Cached)
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	program, err := types.PubkeyFromBase58(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid program id")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
	}

	records, err := s.verifier.History(program, limit)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", "history unavailable")
		return
	}

	resp := struct {
		ProgramID string         `json:"program_id"`
		Records   []historyEntry `json:"records"`
	}{
		ProgramID: program.String(),
		Records:   make([]historyEntry, 0, len(records)),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, historyRow(rec))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
		"stats":  s.verifier.Stats(),
	})
}

func historyRow(rec *history.Record) historyEntry {
	return historyEntry{
		Status:       rec.Status.String(),
		Confidence:   rec.Confidence.String(),
		OnChainHash:  rec.OnChainHash,
		RegistryHash: rec.RegistryHash,
		DeploySlot:   rec.DeploySlot,
		RepoURL:      rec.RepoURL,
		Message:      rec.Message,
		VerifiedAt:   rec.VerifiedAt,
	}
}

// writeVerifyError maps verifier failures onto HTTP statuses. Malformed
// input is the caller's fault; a subsystem outage is not.
func (s *Server) writeVerifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provenance.ErrInvalidProgramID):
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, provenance.ErrChainUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "chain_unavailable", err.Error())
	case errors.Is(err, provenance.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", "verifier is shutting down")
	default:
		s.writeError(w, http.StatusInternalServerError, "internal", "verification failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logf("write response: %v", err)
	}
}

// corsMiddleware adds CORS headers if enabled.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	if !s.config.EnableCORS {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Printf(format, args...)
		return
	}
	log.Printf("[API] "+format, args...)
}
