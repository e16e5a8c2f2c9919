package web

import (
	"encoding/json"
	"net/http"

	"fieldstock/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

var statusByKind = map[string]int{
	"INVALID_TRANSITION": http.StatusConflict,
	"INSUFFICIENT_STOCK": http.StatusConflict,
	"INVALID_QUANTITY":   http.StatusUnprocessableEntity,
	"MISSING_REASON":     http.StatusUnprocessableEntity,
	"INVALID_ADJUSTMENT": http.StatusConflict,
	"NOT_FOUND":          http.StatusNotFound,
	"INVALID_STATE":      http.StatusConflict,
	"VALIDATION_FAILED":  http.StatusBadRequest,
	"CONFLICT":           http.StatusConflict,
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps a service error onto its HTTP status and code.
// Unclassified errors are logged and hidden behind a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.ErrorKind(err)
	status, ok := statusByKind[kind]
	if !ok {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err, "request_id", requestIDFromContext(r.Context()))
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeError(w, r, err.Error(), kind, status)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeCreated writes a JSON response with status 201.
func writeCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}
