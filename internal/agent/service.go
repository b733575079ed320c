package agent

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/ashureev/astrocare/internal/companion"
	"github.com/ashureev/astrocare/internal/speech"
)

// defaultEventBuffer is the capacity of the service event channel.
const defaultEventBuffer = 256

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Persona    *companion.Persona
	Facts      map[string]string
	ReplyDelay time.Duration
	// SessionTTL is how long an untouched conversation survives a sweep.
	SessionTTL  time.Duration
	Synthesizer speech.Synthesizer
	Recognizer  speech.Recognizer
	Log         ConversationLogger
	Now         func() time.Time
	// NewSource returns the random source for a new conversation. Nil seeds randomly.
	NewSource func() companion.Source
}

type entry struct {
	conv     *Conversation
	lastSeen time.Time
}

// Service owns one Conversation per (user, tab session).
type Service struct {
	cfg    ServiceConfig
	events chan Event

	mu            sync.Mutex
	conversations map[string]*entry
	closed        bool
}

// NewService validates the persona and returns an empty registry.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Persona == nil {
		return nil, fmt.Errorf("%w: persona is required", companion.ErrPersonaInvalid)
	}
	if err := cfg.Persona.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = noopConversationLogger{}
	}
	if cfg.Synthesizer == nil {
		cfg.Synthesizer = speech.Unavailable{}
	}
	if cfg.Recognizer == nil {
		cfg.Recognizer = speech.Unavailable{}
	}
	return &Service{
		cfg:           cfg,
		events:        make(chan Event, defaultEventBuffer),
		conversations: make(map[string]*entry),
	}, nil
}

// Persona returns the persona new conversations use.
func (s *Service) Persona() *companion.Persona {
	return s.cfg.Persona
}

// SpeechAvailable reports which speech directions the service can use.
func (s *Service) SpeechAvailable() (output, input bool) {
	return s.cfg.Synthesizer.Available(), s.cfg.Recognizer.Available()
}

// Events returns the channel of transcript and speech events across all
// conversations. Events are dropped when nobody keeps up.
func (s *Service) Events() <-chan Event {
	return s.events
}

func (s *Service) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		slog.Warn("[BROADCAST] Event buffer full, dropping event",
			"user_id", ev.UserID,
			"session_id", ev.SessionID,
			"type", ev.Type,
		)
	}
}

// Conversation returns the conversation for the pair, creating it on first use.
func (s *Service) Conversation(userID, sessionID string) (*Conversation, error) {
	key := sessionKey(userID, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrConversationClosed
	}
	if e, ok := s.conversations[key]; ok {
		e.lastSeen = s.cfg.Now()
		return e.conv, nil
	}

	var rng companion.Source
	if s.cfg.NewSource != nil {
		rng = s.cfg.NewSource()
	}
	conv, err := NewConversation(ConversationConfig{
		UserID:      userID,
		SessionID:   sessionID,
		Persona:     s.cfg.Persona,
		Facts:       maps.Clone(s.cfg.Facts),
		ReplyDelay:  s.cfg.ReplyDelay,
		Rand:        rng,
		Now:         s.cfg.Now,
		Synthesizer: s.cfg.Synthesizer,
		Recognizer:  s.cfg.Recognizer,
		Log:         s.cfg.Log,
		OnEvent:     s.publish,
	})
	if err != nil {
		return nil, err
	}
	s.conversations[key] = &entry{conv: conv, lastSeen: s.cfg.Now()}
	slog.Info("Conversation started", "user_id", userID, "session_id", sessionID, "persona", s.cfg.Persona.ID)
	return conv, nil
}

// Lookup returns an existing conversation without creating one.
func (s *Service) Lookup(userID, sessionID string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.conversations[sessionKey(userID, sessionID)]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.cfg.Now()
	return e.conv, true
}

// Reset closes and forgets the conversation for the pair. The next call to
// Conversation starts fresh. It reports whether one existed.
func (s *Service) Reset(userID, sessionID string) bool {
	key := sessionKey(userID, sessionID)
	s.mu.Lock()
	e, ok := s.conversations[key]
	delete(s.conversations, key)
	s.mu.Unlock()

	if ok {
		e.conv.Close()
		slog.Info("Conversation reset", "user_id", userID, "session_id", sessionID)
	}
	return ok
}

// Len returns the number of live conversations.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Close closes every conversation and the conversation logger.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	convs := make([]*Conversation, 0, len(s.conversations))
	for key, e := range s.conversations {
		convs = append(convs, e.conv)
		delete(s.conversations, key)
	}
	s.mu.Unlock()

	for _, c := range convs {
		c.Close()
	}
	if err := s.cfg.Log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}
