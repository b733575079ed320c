package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"

	"github.com/ashureev/astrocare/internal/api"
	"github.com/ashureev/astrocare/internal/companion"
	"github.com/ashureev/astrocare/internal/domain"
	"github.com/ashureev/astrocare/internal/identity"
	"github.com/ashureev/astrocare/internal/speech"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20 // 1MB

// HandlerConfig holds HTTP limits for the companion routes.
type HandlerConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxRequestBody    int64
}

// ChatRequest is the body of POST /api/companion/chat.
type ChatRequest struct {
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"`
}

// ChatResponse is the result of one chat turn.
type ChatResponse struct {
	User    domain.ChatMessage `json:"user"`
	Reply   domain.ChatMessage `json:"reply"`
	Intent  companion.Intent   `json:"intent"`
	Summary SummaryResponse    `json:"summary"`
	Error   string             `json:"error,omitempty"`
}

// SummaryResponse is the dashboard view of a session.
type SummaryResponse struct {
	domain.SessionSummary
	Badge string `json:"badge,omitempty"`
}

// PersonaResponse is the display view of the active persona.
type PersonaResponse struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Address      string                  `json:"address"`
	Tagline      string                  `json:"tagline,omitempty"`
	Image        string                  `json:"image,omitempty"`
	QuickActions []string                `json:"quick_actions"`
	Voice        companion.VoiceSettings `json:"voice"`
	SpeechOutput bool                    `json:"speech_output"`
	SpeechInput  bool                    `json:"speech_input"`
}

// Handler serves the companion HTTP API.
type Handler struct {
	svc         *Service
	rateLimiter *RateLimiter
	maxBody     int64
}

// NewHandler creates a handler over svc.
func NewHandler(svc *Service, cfg HandlerConfig) *Handler {
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 30
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = defaultMaxRequestBodySize
	}
	return &Handler{
		svc:         svc,
		rateLimiter: NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		maxBody:     cfg.MaxRequestBody,
	}
}

// RegisterRoutes registers companion routes. Identity middleware must run first.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/companion", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Get("/transcript", h.HandleTranscript)
		r.Get("/summary", h.HandleSummary)
		r.Get("/persona", h.HandlePersona)
		r.Post("/speech/stop", h.HandleStopSpeech)
		r.Post("/listen", h.HandleStartListening)
		r.Delete("/listen", h.HandleStopListening)
		r.Delete("/session", h.HandleReset)
	})
}

// Close stops the rate limiter.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
}

func (h *Handler) conversation(w http.ResponseWriter, r *http.Request) (*Conversation, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	conv, err := h.svc.Conversation(userID, identity.SessionIDFromContext(r.Context()))
	if err != nil {
		slog.Error("Failed to open conversation", "user_id", userID, "error", err)
		api.Error(w, http.StatusServiceUnavailable, "conversation unavailable")
		return nil, false
	}
	return conv, true
}

// HandleChat handles POST /api/companion/chat requests.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Rate-limit by userID only (not userID:sessionID) so clients cannot bypass
	// throttling by rotating session IDs.
	if !h.rateLimiter.Allow(userID) {
		slog.Warn("Companion chat rate limited", "user_id", userID, "ip", identity.IPFromRequest(r))
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	slog.Info("Companion chat request",
		"user_id", userID,
		"session_id", sessionID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message),
	)

	turn, err := conv.Submit(r.Context(), req.Message, domain.ParseInputChannel(req.Channel))
	var pe *companion.PlaceholderError
	switch {
	case errors.Is(err, ErrEmptyInput):
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	case errors.As(err, &pe) && turn != nil:
		// The generic reply is already in the transcript; report it with the error.
	case errors.Is(err, ErrConversationClosed):
		api.Error(w, http.StatusConflict, "conversation was reset")
		return
	case err != nil:
		slog.Warn("Companion chat failed", "user_id", userID, "session_id", sessionID, "error", err)
		api.Error(w, http.StatusServiceUnavailable, "chat failed")
		return
	}

	resp := ChatResponse{
		User:    turn.User,
		Reply:   turn.Reply,
		Intent:  turn.Intent,
		Summary: summaryResponse(conv.Summary()),
	}
	if turn.Err != nil {
		resp.Error = "reply template failed"
	}
	api.JSON(w, http.StatusOK, resp)
}

// HandleTranscript handles GET /api/companion/transcript.
func (h *Handler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{"messages": conv.Transcript()})
}

// HandleSummary handles GET /api/companion/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	api.JSON(w, http.StatusOK, summaryResponse(conv.Summary()))
}

// HandlePersona handles GET /api/companion/persona.
func (h *Handler) HandlePersona(w http.ResponseWriter, r *http.Request) {
	p := h.svc.Persona()
	out, in := h.svc.SpeechAvailable()
	api.JSON(w, http.StatusOK, PersonaResponse{
		ID:           p.ID,
		Name:         p.Name,
		Address:      p.Address,
		Tagline:      p.Tagline,
		Image:        p.Image,
		QuickActions: p.QuickActions,
		Voice:        p.Voice,
		SpeechOutput: out,
		SpeechInput:  in,
	})
}

// HandleStopSpeech handles POST /api/companion/speech/stop.
func (h *Handler) HandleStopSpeech(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	conv.StopSpeaking()
	api.JSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// HandleStartListening handles POST /api/companion/listen. The listening
// session outlives the request; its transcript arrives over the live channel.
func (h *Handler) HandleStartListening(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	err := conv.StartListening(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, speech.ErrRecognitionUnavailable):
		api.Error(w, http.StatusServiceUnavailable, "speech recognition unavailable")
	case errors.Is(err, speech.ErrListeningActive):
		api.Error(w, http.StatusConflict, "already listening")
	case err != nil:
		slog.Warn("Failed to start listening", "error", err)
		api.Error(w, http.StatusBadGateway, "failed to start listening")
	default:
		api.JSON(w, http.StatusAccepted, map[string]string{"status": "listening"})
	}
}

// HandleStopListening handles DELETE /api/companion/listen.
func (h *Handler) HandleStopListening(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	conv.StopListening()
	api.JSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// HandleReset handles DELETE /api/companion/session.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	reset := h.svc.Reset(userID, identity.SessionIDFromContext(r.Context()))
	api.JSON(w, http.StatusOK, map[string]bool{"reset": reset})
}

func summaryResponse(s domain.SessionSummary) SummaryResponse {
	return SummaryResponse{SessionSummary: s, Badge: s.SleepBadge()}
}

// RateLimiter implements a per-user sliding-window rate limiter.
// The key is userID only, not userID:sessionID, so clients cannot bypass
// throttling by rotating session IDs.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter and starts the background eviction goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	rl.startEviction()
	return rl
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	recent := fresh(r.requests[key], now.Add(-r.window))
	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Stop ends the eviction goroutine.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func fresh(times []time.Time, cutoff time.Time) []time.Time {
	return lo.Filter(times, func(t time.Time, _ int) bool { return t.After(cutoff) })
}

// startEviction periodically drops keys whose requests have all expired.
func (r *RateLimiter) startEviction() {
	go func() {
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
			}
			r.mu.Lock()
			cutoff := time.Now().Add(-r.window)
			for key, times := range r.requests {
				if kept := fresh(times, cutoff); len(kept) == 0 {
					delete(r.requests, key)
				} else {
					r.requests[key] = kept
				}
			}
			r.mu.Unlock()
		}
	}()
}
