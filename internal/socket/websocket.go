package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ashureev/astrocare/internal/agent"
	"github.com/ashureev/astrocare/internal/companion"
	"github.com/ashureev/astrocare/internal/domain"
	"github.com/ashureev/astrocare/internal/identity"
	"github.com/ashureev/astrocare/internal/speech"
)

// Frame types.
const (
	frameMessage       = "message"
	framePing          = "ping"
	framePong          = "pong"
	frameSpeech        = "speech"
	frameStopSpeech    = "stop_speech"
	frameListen        = "listen"
	frameStopListening = "stop_listening"
	frameError         = "error"
)

// clientFrame is a frame sent by the browser.
type clientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// serverFrame is a frame sent to the browser.
type serverFrame struct {
	Type    string              `json:"type"`
	Message *domain.ChatMessage `json:"message,omitempty"`
	State   string              `json:"state,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// WebSocketHandler serves the companion live channel. Transcript and speech
// updates reach the client through the SessionManager broadcast loop.
type WebSocketHandler struct {
	svc           *agent.Service
	sm            *SessionManager
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(svc *agent.Service, sm *SessionManager, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		svc:           svc,
		sm:            sm,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conv, err := h.svc.Conversation(userID, sessionID)
	if err != nil {
		slog.Warn("Conversation unavailable", "user_id", userID, "error", err)
		h.sendError(ctx, ws, "conversation_unavailable")
		return
	}

	h.inputLoop(ctx, ws, conv, userID, sessionID)
	slog.Info("Companion socket ended", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, conv *agent.Conversation, userID, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg clientFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(ctx, ws, "invalid_frame")
			continue
		}

		switch msg.Type {
		case frameMessage:
			channel := domain.ParseInputChannel(msg.Channel)
			_, err := conv.Submit(ctx, msg.Content, channel)
			var pe *companion.PlaceholderError
			switch {
			case err == nil, errors.As(err, &pe):
				// The turn's messages are broadcast as events.
			case errors.Is(err, agent.ErrEmptyInput):
				h.sendError(ctx, ws, "message is required")
			case errors.Is(err, agent.ErrConversationClosed):
				h.sendError(ctx, ws, "conversation was reset")
				return
			default:
				if ctx.Err() != nil {
					return
				}
				slog.Warn("Companion socket message failed", "user_id", userID, "session_id", sessionID, "error", err)
				h.sendError(ctx, ws, "chat failed")
			}
		case framePing:
			if err := writeFrame(ctx, ws, serverFrame{Type: framePong}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case frameStopSpeech:
			conv.StopSpeaking()
		case frameListen:
			err := conv.StartListening(context.WithoutCancel(ctx))
			switch {
			case errors.Is(err, speech.ErrRecognitionUnavailable):
				h.sendError(ctx, ws, "speech recognition unavailable")
			case errors.Is(err, speech.ErrListeningActive):
				h.sendError(ctx, ws, "already listening")
			case err != nil:
				h.sendError(ctx, ws, "failed to start listening")
			}
		case frameStopListening:
			conv.StopListening()
		default:
			h.sendError(ctx, ws, "unknown frame type")
		}
	}
}

func (h *WebSocketHandler) sendError(ctx context.Context, ws *websocket.Conn, message string) {
	if err := writeFrame(ctx, ws, serverFrame{Type: frameError, Error: message}); err != nil {
		slog.Debug("Failed to send error frame", "error", err)
	}
}
