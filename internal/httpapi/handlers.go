package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matheus3301/collab/internal/auth"
	"github.com/matheus3301/collab/internal/metrics"
	"github.com/matheus3301/collab/internal/protocol"
)

const maxBodyBytes = 64 << 10

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "store unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// history handles GET /messages/{user1}/{user2}.
func (s *server) history(w http.ResponseWriter, r *http.Request) {
	a, b := chi.URLParam(r, "user1"), chi.URLParam(r, "user2")
	caller := auth.UserID(r.Context())
	if caller != a && caller != b {
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
		return
	}
	limit := s.limit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	msgs, err := s.store.History(r.Context(), a, b, limit)
	if err != nil {
		s.logger.Error("history query failed", zap.String("user1", a), zap.String("user2", b), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// sendMessage handles POST /messages. A retry with the same clientId returns
// the stored message without broadcasting it again.
func (s *server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req protocol.SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SenderID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "senderId must be the authenticated user")
		return
	}

	msg, created, err := s.store.CreateMessage(r.Context(), req, s.now())
	if err != nil {
		s.logger.Error("store message failed", zap.String("sender", req.SenderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store message")
		return
	}
	metrics.MessagesStored.WithLabelValues(strconv.FormatBool(created)).Inc()

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		if err := s.realtime.BroadcastStored(context.WithoutCancel(r.Context()), msg); err != nil {
			s.logger.Warn("broadcast stored message failed", zap.String("id", msg.ID), zap.Error(err))
		}
	}
	writeJSON(w, status, msg)
}

// conversations handles GET /messages/conversations/{userId}.
func (s *server) conversations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "can only list your own conversations")
		return
	}
	out, err := s.store.Conversations(r.Context(), userID)
	if err != nil {
		s.logger.Error("conversations query failed", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load conversations")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// issueToken handles POST /auth/token for local development.
func (s *server) issueToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil || body.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	token, exp, err := s.issuer.Issue(body.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	s.logger.Info("issued development token", zap.String("user", body.UserID), zap.Time("expires", exp))
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expiresAt": exp.UTC()})
}

func (s *server) serveWS(w http.ResponseWriter, r *http.Request) {
	s.realtime.ServeWS(w, r, auth.UserID(r.Context()))
}
