package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"rental_dashboard/internal/domain"
	"rental_dashboard/internal/obs"
	"rental_dashboard/internal/store"
)

const maxBodyBytes = 1 << 20

type ErrorBody struct {
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID, _ := obs.RequestIDFromContext(r.Context())
	writeJSON(w, status, ErrorBody{Status: status, RequestID: requestID, Error: message})
}

// writeStoreError maps storage and validation errors to statuses. Anything
// unrecognised is logged and reported as a 500 without detail.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrInvalid):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("store operation failed", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
