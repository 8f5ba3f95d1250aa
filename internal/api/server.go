// Package api implements the Heirloom HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nugget/heirloom/internal/agent"
	"github.com/nugget/heirloom/internal/buildinfo"
	"github.com/nugget/heirloom/internal/chat"
	"github.com/nugget/heirloom/internal/tools"
	"github.com/nugget/heirloom/internal/usage"
)

// UserHeader carries the caller's user ID. Authentication happens in
// front of this server.
const UserHeader = "X-User-ID"

// maxBodyBytes bounds request bodies. Message length itself is checked
// by the chat service.
const maxBodyBytes = 64 << 10

// Chat is the subset of the chat service the server exposes.
type Chat interface {
	SendMessage(ctx context.Context, req chat.SendRequest) (*chat.SendResult, error)
	GetConversation(ctx context.Context, userID, legacyID, conversationID string) (*chat.Transcript, error)
	ClearConversation(ctx context.Context, userID, legacyID, conversationID string) (bool, error)
}

// Usage reports token usage.
type Usage interface {
	Summary(ctx context.Context, f usage.Filter) (*usage.Summary, error)
	SummaryByModel(ctx context.Context, f usage.Filter) (map[string]*usage.Summary, error)
	SummaryByProvider(ctx context.Context, f usage.Filter) (map[string]*usage.Summary, error)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	chat    Chat
	usage   Usage
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server. u may be nil, in which case the
// usage endpoint reports 404.
func NewServer(address string, port int, c Chat, u Usage, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		chat:    c,
		usage:   u,
		logger:  logger,
	}
}

// Handler returns the routed handler, wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/legacies/{legacy}/chat", s.handleSend)
	mux.HandleFunc("GET /v1/legacies/{legacy}/conversation", s.handleConversationGet)
	mux.HandleFunc("DELETE /v1/legacies/{legacy}/conversation", s.handleConversationClear)
	mux.HandleFunc("GET /v1/usage", s.handleUsage)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns when the server stops.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
		ReadTimeout: 30 * time.Second,
		// A turn may make several model calls.
		WriteTimeout: 5 * time.Minute,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Heirloom",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	info := buildinfo.Info()
	info["tool_catalog"] = tools.CatalogVersion
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, info, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// SendRequest is the chat request body.
type SendRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// POST /v1/legacies/{legacy}/chat {"message": "Bella maxed cooking"}
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body SendRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.chat.SendMessage(r.Context(), chat.SendRequest{
		UserID:         r.Header.Get(UserHeader),
		LegacyID:       r.PathValue("legacy"),
		ConversationID: body.ConversationID,
		Text:           body.Message,
	})
	if err != nil {
		s.chatError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, res, s.logger)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	tr, err := s.chat.GetConversation(r.Context(),
		r.Header.Get(UserHeader), r.PathValue("legacy"), r.URL.Query().Get("conversation_id"))
	if err != nil {
		s.chatError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, tr, s.logger)
}

func (s *Server) handleConversationClear(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.chat.ClearConversation(r.Context(),
		r.Header.Get(UserHeader), r.PathValue("legacy"), r.URL.Query().Get("conversation_id"))
	if err != nil {
		s.chatError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]bool{"deleted": deleted}, s.logger)
}

// UsageResponse is the usage endpoint's body.
type UsageResponse struct {
	Since      time.Time                 `json:"since"`
	Legacy     string                    `json:"legacy_id,omitempty"`
	Totals     *usage.Summary            `json:"totals"`
	ByModel    map[string]*usage.Summary `json:"by_model"`
	ByProvider map[string]*usage.Summary `json:"by_provider"`
}

// GET /v1/usage?since=24h&legacy_id=...
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusNotFound, "usage tracking not configured")
		return
	}

	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "since must be a positive duration such as 24h")
			return
		}
		window = d
	}

	f := usage.Filter{
		Start:    time.Now().Add(-window),
		LegacyID: r.URL.Query().Get("legacy_id"),
	}
	totals, err := s.usage.Summary(r.Context(), f)
	if err != nil {
		s.logger.Error("usage summary failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	byModel, err := s.usage.SummaryByModel(r.Context(), f)
	if err != nil {
		s.logger.Error("usage by model failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	byProvider, err := s.usage.SummaryByProvider(r.Context(), f)
	if err != nil {
		s.logger.Error("usage by provider failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load usage")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, UsageResponse{
		Since:      f.Start.UTC(),
		Legacy:     f.LegacyID,
		Totals:     totals,
		ByModel:    byModel,
		ByProvider: byProvider,
	}, s.logger)
}

// chatError maps chat service errors onto HTTP statuses.
func (s *Server) chatError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *chat.ValidationError
	switch {
	case errors.As(err, &ve):
		s.errorResponse(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, chat.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "legacy or conversation not found")
	case errors.Is(err, agent.ErrModelUnavailable):
		s.logger.Warn("model unavailable", "path", r.URL.Path, "error", err)
		s.errorResponse(w, http.StatusServiceUnavailable, "the assistant is unavailable right now, please try again")
	default:
		s.logger.Error("chat request failed", "path", r.URL.Path, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
