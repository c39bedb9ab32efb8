// Package server exposes the memory service over HTTP. The caller is
// expected to sit behind an authenticating proxy that sets X-User-ID to a
// verified user; this layer never re-verifies identity.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ameliahart/conversational_memory/internal/memory_service"
	"github.com/ameliahart/conversational_memory/internal/memory_settings"
	"github.com/ameliahart/conversational_memory/internal/semantic_memory"
	"github.com/ameliahart/conversational_memory/pkg/health"
	"github.com/ameliahart/conversational_memory/pkg/httpmiddleware"
	"github.com/ameliahart/conversational_memory/pkg/logger"
)

// UserIDHeader carries the verified user identity set by the auth layer.
const UserIDHeader = "X-User-ID"

type contextKey string

const userIDKey contextKey = "user_id"

// Config holds the dependencies for the HTTP server.
type Config struct {
	Service *memory_service.Service
	Health  *health.Checker // optional
	Logger  logger.Logger
	Port    int
	// DefaultMaxTokens applies when a context request omits maxTokens.
	DefaultMaxTokens int
	RequestTimeout   time.Duration // defaults to 60s
}

// Server is the HTTP transport for the memory service.
type Server struct {
	service          *memory_service.Service
	health           *health.Checker
	log              logger.Logger
	port             int
	defaultMaxTokens int
	requestTimeout   time.Duration
}

// New creates a server. Panics if required dependencies are missing.
func New(cfg Config) *Server {
	if cfg.Service == nil {
		panic("server: memory service is required")
	}
	if cfg.Logger == nil {
		panic("server: logger is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &Server{
		service:          cfg.Service,
		health:           cfg.Health,
		log:              cfg.Logger,
		port:             cfg.Port,
		defaultMaxTokens: cfg.DefaultMaxTokens,
		requestTimeout:   cfg.RequestTimeout,
	}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	httpmiddleware.Apply(r, httpmiddleware.Config{
		Logger:  s.log,
		Timeout: s.requestTimeout,
	})

	if s.health != nil {
		r.Get("/healthz", s.health.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireUserID)

		r.Post("/context", s.handleAssembleContext)
		r.Post("/turns", s.handleRecordTurn)

		r.Route("/memories", func(r chi.Router) {
			r.Get("/search", s.handleSearchMemories)
			r.Get("/stats", s.handleMemoryStats)
			r.Get("/export", s.handleExportMemories)
			r.Delete("/", s.handleClearMemories)
			r.Delete("/{memoryID}", s.handleDeleteMemory)
			r.Post("/{memoryID}/boost", s.handleBoostMemory)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Patch("/", s.handleUpdateSettings)
		})
	})

	return r
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", logger.IntField("port", s.port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// requireUserID rejects requests that arrive without a verified identity.
func (s *Server) requireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" {
			s.respondError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userIDFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}

type assembleContextRequest struct {
	ConversationID string `json:"conversationId"`
	Prompt         string `json:"prompt"`
	MaxTokens      int    `json:"maxTokens"`
}

func (s *Server) handleAssembleContext(w http.ResponseWriter, r *http.Request) {
	var req assembleContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		s.respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.defaultMaxTokens
	}
	result, err := s.service.AssembleContext(r.Context(), userIDFrom(r), req.ConversationID, req.Prompt, maxTokens)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type recordTurnRequest struct {
	ConversationID    string `json:"conversationId"`
	UserPrompt        string `json:"userPrompt"`
	AssistantResponse string `json:"assistantResponse"`
}

type recordTurnResponse struct {
	Accepted bool `json:"accepted"`
}

func (s *Server) handleRecordTurn(w http.ResponseWriter, r *http.Request) {
	var req recordTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserPrompt == "" {
		s.respondError(w, http.StatusBadRequest, "userPrompt is required")
		return
	}

	accepted := s.service.RecordTurn(userIDFrom(r), req.ConversationID, req.UserPrompt, req.AssistantResponse)
	if !accepted {
		// Shed load visibly so callers can back off.
		s.respondJSON(w, http.StatusServiceUnavailable, recordTurnResponse{Accepted: false})
		return
	}
	s.respondJSON(w, http.StatusAccepted, recordTurnResponse{Accepted: true})
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}

	filters := semantic_memory.SearchFilters{
		Category:       r.URL.Query().Get("category"),
		ConversationID: r.URL.Query().Get("conversationId"),
	}
	if raw := r.URL.Query().Get("minImportance"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid minImportance")
			return
		}
		filters.MinImportance = v
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	results, err := s.service.SearchMemories(r.Context(), userIDFrom(r), query, filters, limit)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.GetMemoryStats(r.Context(), userIDFrom(r))
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExportMemories(w http.ResponseWriter, r *http.Request) {
	export, err := s.service.ExportAllMemories(r.Context(), userIDFrom(r))
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, export)
}

type clearMemoriesRequest struct {
	ConfirmationToken string `json:"confirmationToken"`
}

func (s *Server) handleClearMemories(w http.ResponseWriter, r *http.Request) {
	var req clearMemoriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.ClearAllMemories(r.Context(), userIDFrom(r), req.ConfirmationToken)
	if errors.Is(err, memory_service.ErrInvalidConfirmation) {
		s.respondError(w, http.StatusBadRequest, "confirmation token does not match")
		return
	}
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.service.DeleteMemory(r.Context(), chi.URLParam(r, "memoryID"), userIDFrom(r))
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	if !deleted {
		s.respondError(w, http.StatusNotFound, "memory not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type boostMemoryRequest struct {
	Pattern string `json:"pattern"`
}

func (s *Server) handleBoostMemory(w http.ResponseWriter, r *http.Request) {
	var req boostMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.service.BoostMemoryImportance(r.Context(), chi.URLParam(r, "memoryID"), userIDFrom(r), req.Pattern)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"boosted": true})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.service.GetSettings(r.Context(), userIDFrom(r))
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch memory_settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings, err := s.service.UpdateSettings(r.Context(), userIDFrom(r), patch)
	if errors.Is(err, memory_settings.ErrInvalidPatch) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, settings)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", logger.ErrorField(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed",
		logger.StringField("http_path", r.URL.Path),
		logger.ErrorField(err))
	s.respondError(w, http.StatusInternalServerError, "internal error")
}
