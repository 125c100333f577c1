package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/obs"
)

const maxPurgeBody = 64 << 10

type handler struct {
	auth        *Authenticator
	rateLimiter *RateLimiter
	stats       *StatsSource
	ops         *operations
	logger      *log.Logger
	mux         *http.ServeMux
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(obs.RequestIDHeader)
	if requestID == "" {
		requestID = obs.NewRequestID()
	}
	w.Header().Set(obs.RequestIDHeader, requestID)

	if !h.rateLimiter.Allow(r.RemoteAddr) {
		writeError(w, requestID, http.StatusTooManyRequests, "rate_limited")
		return
	}
	if err := h.auth.Authenticate(r); err != nil {
		h.rateLimiter.RecordFailure(r.RemoteAddr)
		status := http.StatusUnauthorized
		message := "unauthorized"
		var authErr *AuthError
		if errors.As(err, &authErr) {
			status = authErr.Status
			message = authErr.Message
		}
		writeError(w, requestID, status, message)
		return
	}
	h.rateLimiter.ResetFailures(r.RemoteAddr)

	h.mux.ServeHTTP(w, r.WithContext(obs.WithRequestID(r.Context(), requestID)))
}

func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	requestID, _ := obs.RequestIDFromContext(r.Context())
	if r.Method != http.MethodGet {
		writeError(w, requestID, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.stats == nil {
		writeError(w, requestID, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	stats, err := h.stats.Collect(r.Context())
	if err != nil {
		h.logger.Warn("admin stats failed", "err", err)
		writeError(w, requestID, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, requestID, http.StatusOK, stats)
}

func (h *handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	requestID, _ := obs.RequestIDFromContext(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, requestID, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req PurgeRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPurgeBody))
	if err != nil {
		writeError(w, requestID, http.StatusBadRequest, "read body failed")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	if req.Mutation != "" && req.Prefix != "" {
		writeError(w, requestID, http.StatusBadRequest, "mutation and prefix are exclusive")
		return
	}

	result, err := h.ops.purge(r.Context(), req)
	if errors.Is(err, invalidation.ErrUnknownMutation) {
		writeError(w, requestID, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("admin purge failed", "scope", result.Scope, "err", err)
		writeError(w, requestID, http.StatusInternalServerError, "purge failed")
		return
	}
	h.logger.Info("admin purge", "scope", result.Scope, "removed", result.Removed, "request_id", requestID)
	writeJSON(w, requestID, http.StatusOK, result)
}

func writeError(w http.ResponseWriter, requestID string, status int, message string) {
	writeJSON(w, requestID, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, requestID string, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(obs.RequestIDHeader, requestID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
