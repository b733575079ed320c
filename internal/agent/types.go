// Package agent runs companion conversations: one ordered dialogue per tab
// session, its transcript, speech hand-off and the HTTP surface around it.
package agent

import (
	"errors"

	"github.com/ashureev/astrocare/internal/companion"
	"github.com/ashureev/astrocare/internal/domain"
	"github.com/ashureev/astrocare/internal/speech"
)

var (
	// ErrEmptyInput is returned when a submitted message is blank.
	ErrEmptyInput = errors.New("empty input")
	// ErrConversationClosed is returned once a conversation has been closed.
	ErrConversationClosed = errors.New("conversation closed")
)

// State is the orchestrator state of a conversation.
type State string

const (
	// StateIdle means no turn is being processed.
	StateIdle State = "idle"
	// StateAwaitingReply means a user message was appended and the reply is pending.
	StateAwaitingReply State = "awaiting_reply"
)

// Turn is the outcome of one submitted user message.
type Turn struct {
	User   domain.ChatMessage `json:"user"`
	Reply  domain.ChatMessage `json:"reply"`
	Intent companion.Intent   `json:"intent"`
	Pool   string             `json:"pool,omitempty"`
	// Err is set when the reply could not be rendered and the persona's
	// generic error reply was used instead.
	Err error `json:"-"`
}

// EventType categorizes events published by the service.
type EventType string

const (
	// EventMessage carries a transcript message.
	EventMessage EventType = "message"
	// EventSpeech carries a speech output state change.
	EventSpeech EventType = "speech"
)

// Event is published for every transcript append and speech outcome so live
// channels can fan it out to connected clients.
type Event struct {
	Type      EventType
	UserID    string
	SessionID string
	Message   *domain.ChatMessage
	Speech    *speech.Event
}

func sessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}
