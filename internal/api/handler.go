// Package api provides shared HTTP helpers and the health endpoint.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusSource reports the runtime state the health check exposes.
type StatusSource interface {
	SpeechAvailable() (output, input bool)
	Len() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	src     StatusSource
	persona string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(src StatusSource, persona string) *HealthHandler {
	return &HealthHandler{src: src, persona: persona}
}

// Health returns the health status of the API and its dependencies. Missing
// speech engines degrade the service to text-only but never fail it.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":  "healthy",
		"checks":  checks,
		"persona": h.persona,
	}

	out, in := h.src.SpeechAvailable()
	checks["speech_output"] = availability(out)
	checks["speech_input"] = availability(in)
	if !out || !in {
		status["status"] = "degraded"
	}
	status["conversations"] = h.src.Len()

	JSON(w, http.StatusOK, status)
}

func availability(ok bool) string {
	if ok {
		return "ok"
	}
	return "unavailable"
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
