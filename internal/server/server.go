// Package server exposes the assistant over HTTP for the device shell.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/sriscode/MobileArc/internal/coordinator"
	"github.com/sriscode/MobileArc/internal/gateway"
	"github.com/sriscode/MobileArc/internal/llm"
	arcotel "github.com/sriscode/MobileArc/internal/otel"
	"github.com/sriscode/MobileArc/internal/requestctx"
)

var tracer = arcotel.Tracer("github.com/sriscode/MobileArc/internal/server")

// Server is the HTTP surface over the coordinator.
type Server struct {
	coord       *coordinator.Coordinator
	gateway     *gateway.Gateway
	authToken   string
	defaultUser string
}

// New builds a server. authToken guards every route except /health.
func New(coord *coordinator.Coordinator, gw *gateway.Gateway, authToken, defaultUser string) *Server {
	return &Server{coord: coord, gateway: gw, authToken: authToken, defaultUser: defaultUser}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/agent/query", s.handleQuery)
		r.Get("/agent/transfer/pending", s.handlePendingTransfer)
		r.Post("/agent/transfer/{id}/approve", s.handleApproveTransfer)
		r.Post("/agent/transfer/{id}/cancel", s.handleCancelTransfer)
		r.Post("/session/reset", s.handleSessionReset)
	})
	return r
}

// requireBearer rejects requests lacking the configured bearer token.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type queryRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "server.query")
	defer span.End()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "body must be JSON with a non-empty query")
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = s.defaultUser
	}
	ctx = requestctx.SetUserID(ctx, userID)

	uctx, err := s.userContext(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("user_context_unavailable")
		writeError(w, http.StatusBadGateway, "account data is unavailable")
		return
	}

	resp, err := s.coord.Process(ctx, req.Query, uctx)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, coordinator.ErrNotInitialized):
			writeError(w, http.StatusServiceUnavailable, "assistant is still starting up")
		case errors.Is(err, llm.ErrContextOverflow), errors.Is(err, llm.ErrGeneration):
			writeError(w, http.StatusBadGateway, "the assistant could not complete this request")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePendingTransfer(w http.ResponseWriter, r *http.Request) {
	draft := s.coord.PendingTransfer()
	if draft == nil {
		writeJSON(w, http.StatusOK, map[string]any{"pending": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": true, "draft": draft})
}

func (s *Server) handleApproveTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := requestctx.SetUserID(r.Context(), s.defaultUser)
	id := chi.URLParam(r, "id")
	if err := s.coord.ApproveTransfer(ctx, id); err != nil {
		if errors.Is(err, coordinator.ErrNoPendingTransfer) {
			writeError(w, http.StatusNotFound, "no pending transfer with that id")
			return
		}
		log.Error().Err(err).Str("draft_id", id).Msg("transfer_approval_failed")
		writeError(w, http.StatusBadGateway, "transfer execution failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "executed", "draft_id": id})
}

func (s *Server) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.coord.CancelTransfer(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "no pending transfer with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "draft_id": id})
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	s.coord.ResetSession(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userContext loads the recent transaction window for screening.
func (s *Server) userContext(ctx context.Context, userID string) (coordinator.UserContext, error) {
	txns, err := s.gateway.RecentTransactions(ctx, userID, 100)
	if err != nil {
		return coordinator.UserContext{}, err
	}
	return coordinator.UserContext{UserID: userID, RecentTransactions: txns}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("response_encode_failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
