package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api"
)

// maxBodyBytes bounds the size of a score request body
const maxBodyBytes = 64 << 20

// Handler wraps a query backend and provides HTTP handlers
type Handler struct {
	backend api.Backend
}

// NewHandler creates a new REST API handler
func NewHandler(backend api.Backend) *Handler {
	return &Handler{
		backend: backend,
	}
}

// HealthCheck handles GET /v1/health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp, err := h.backend.Health(r.Context())
	if err != nil {
		writeError(w, fmt.Sprintf("Health check failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resp, http.StatusOK)
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp, err := h.backend.Stats(r.Context())
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to get stats: %v", err), statusFor(err))
		return
	}

	writeJSON(w, resp, http.StatusOK)
}

// Score handles POST /v1/score. The top query parameter overrides the
// body's top field.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.ScoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	req.Top = ParseIntQuery(r, "top", req.Top)

	resp, err := h.backend.Score(r.Context(), &req)
	if err != nil {
		writeError(w, fmt.Sprintf("Score failed: %v", err), statusFor(err))
		return
	}

	writeJSON(w, resp, http.StatusOK)
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}, statusCode)
}

// ParseIntQuery parses an integer query parameter
func ParseIntQuery(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}
