// Package socket provides the WebSocket live channel for companion sessions.
package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/astrocare/internal/agent"
)

const writeTimeout = 5 * time.Second

// SessionManager tracks the live connection of every (user, tab session) and
// fans service events out to them.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a user and session.
func (m *SessionManager) GetActive(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds a connection for a user/session, closing any connection it replaces.
func (m *SessionManager) Register(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}
	if existing, exists := m.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	m.active[userID][sessionID] = conn
	slog.Info("Companion socket registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes conn if it is still the active one for the user/session.
func (m *SessionManager) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok {
		return
	}
	if current, exists := sessions[sessionID]; exists && current == conn {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.active, userID)
		}
		slog.Info("Companion socket unregistered", "user_id", userID, "session_id", sessionID)
	}
}

// CloseSession terminates the connection of one tab session. It matches
// agent.CleanupCallback so idle sweeps also drop the socket.
func (m *SessionManager) CloseSession(userID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok {
		return
	}
	if conn, exists := sessions[sessionID]; exists {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		delete(sessions, sessionID)
		slog.Info("Companion socket closed", "user_id", userID, "session_id", sessionID)
	}
	if len(sessions) == 0 {
		delete(m.active, userID)
	}
}

// Run forwards service events to the matching connections until ctx is
// cancelled or events is closed.
func (m *SessionManager) Run(ctx context.Context, events <-chan agent.Event) {
	slog.Info("[BROADCAST] Broadcast loop started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("[BROADCAST] Broadcast loop shutting down")
			return
		case ev, ok := <-events:
			if !ok {
				slog.Info("[BROADCAST] Event channel closed, shutting down")
				return
			}
			frame, ok := frameFor(ev)
			if !ok {
				continue
			}
			conn := m.GetActive(ev.UserID, ev.SessionID)
			if conn == nil {
				continue
			}
			if err := writeFrame(ctx, conn, frame); err != nil {
				slog.Debug("[BROADCAST] Failed to deliver event",
					"user_id", ev.UserID,
					"session_id", ev.SessionID,
					"type", ev.Type,
					"error", err,
				)
			}
		}
	}
}

func frameFor(ev agent.Event) (serverFrame, bool) {
	switch ev.Type {
	case agent.EventMessage:
		if ev.Message == nil {
			return serverFrame{}, false
		}
		return serverFrame{Type: frameMessage, Message: ev.Message}, true
	case agent.EventSpeech:
		if ev.Speech == nil {
			return serverFrame{}, false
		}
		return serverFrame{Type: frameSpeech, State: string(ev.Speech.Kind)}, true
	default:
		return serverFrame{}, false
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame serverFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
