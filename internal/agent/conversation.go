package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/astrocare/internal/companion"
	"github.com/ashureev/astrocare/internal/domain"
	"github.com/ashureev/astrocare/internal/speech"
)

// queuedTurns bounds how many submissions may wait for the worker.
const queuedTurns = 16

// ConversationConfig configures a Conversation.
type ConversationConfig struct {
	UserID    string
	SessionID string
	Persona   *companion.Persona
	// Facts seed session facts such as mission figures.
	Facts map[string]string
	// ReplyDelay is waited before each reply is produced.
	ReplyDelay time.Duration
	Rand       companion.Source
	Now        func() time.Time

	Synthesizer speech.Synthesizer
	Recognizer  speech.Recognizer
	Log         ConversationLogger
	// OnEvent receives transcript appends and speech outcomes. It must not block.
	OnEvent func(Event)
}

type turnRequest struct {
	text    string
	channel domain.InputChannel
	result  chan *Turn
}

// Conversation orchestrates one dialogue. Turns are processed one at a time,
// in submission order, by a single worker goroutine.
type Conversation struct {
	userID    string
	sessionID string
	persona   *companion.Persona
	engine    *companion.Engine
	delay     time.Duration
	log       ConversationLogger
	onEvent   func(Event)
	now       func() time.Time

	// lastActive holds UnixNano of the latest submission or listen start.
	lastActive atomic.Int64

	sessMu  sync.RWMutex
	session *domain.SessionState

	transcript *transcript
	output     *speech.Output
	listener   *speech.Listener

	stateMu sync.RWMutex
	state   State

	requests  chan turnRequest
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewConversation creates a conversation, appends the persona's opening
// message and starts the turn worker.
func NewConversation(cfg ConversationConfig) (*Conversation, error) {
	if cfg.Persona == nil {
		return nil, fmt.Errorf("%w: persona is required", companion.ErrPersonaInvalid)
	}
	engine, err := companion.NewEngine(cfg.Persona, companion.Options{Rand: cfg.Rand, Now: cfg.Now})
	if err != nil {
		return nil, fmt.Errorf("build companion engine: %w", err)
	}
	opening, err := cfg.Persona.OpeningText()
	if err != nil {
		return nil, fmt.Errorf("render opening message: %w", err)
	}
	if cfg.Log == nil {
		cfg.Log = noopConversationLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Conversation{
		userID:     cfg.UserID,
		sessionID:  cfg.SessionID,
		persona:    cfg.Persona,
		engine:     engine,
		delay:      cfg.ReplyDelay,
		log:        cfg.Log,
		onEvent:    cfg.OnEvent,
		now:        cfg.Now,
		session:    domain.NewSessionState(cfg.Facts),
		transcript: newTranscript(cfg.Now),
		listener:   speech.NewListener(cfg.Recognizer),
		state:      StateIdle,
		requests:   make(chan turnRequest, queuedTurns),
		done:       make(chan struct{}),
	}
	c.output = speech.NewOutput(cfg.Synthesizer, c.speechEvent, slog.Default().With("session_id", cfg.SessionID))

	c.touch()
	c.publishMessage(c.transcript.append(domain.SpeakerCompanion, opening, domain.ChannelTyped))

	c.wg.Add(1)
	go c.run()
	return c, nil
}

// Persona returns the conversation's persona.
func (c *Conversation) Persona() *companion.Persona {
	return c.persona
}

func (c *Conversation) touch() {
	c.lastActive.Store(c.now().UnixNano())
}

// LastActive returns when the conversation was created or last received
// input, whichever is later.
func (c *Conversation) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Submit queues text as a user message and waits for the companion's reply.
// Blank text returns ErrEmptyInput without touching the conversation. When
// the reply template cannot be rendered the turn carries the persona's
// generic error reply and the error is returned alongside it.
func (c *Conversation) Submit(ctx context.Context, text string, channel domain.InputChannel) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	select {
	case <-c.done:
		return nil, ErrConversationClosed
	default:
	}
	c.touch()

	req := turnRequest{text: text, channel: channel, result: make(chan *Turn, 1)}
	select {
	case c.requests <- req:
	case <-c.done:
		return nil, ErrConversationClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case turn := <-req.result:
		return turn, turn.Err
	case <-c.done:
		select {
		case turn := <-req.result:
			return turn, turn.Err
		default:
			return nil, ErrConversationClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conversation) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case req := <-c.requests:
			req.result <- c.process(req)
		}
	}
}

func (c *Conversation) process(req turnRequest) *Turn {
	c.setState(StateAwaitingReply)
	defer c.setState(StateIdle)

	turn := &Turn{User: c.transcript.append(domain.SpeakerUser, req.text, req.channel)}
	c.publishMessage(turn.User)
	c.log.Log(ConversationLogEvent{
		Timestamp:  turn.User.CreatedAt.Format(time.RFC3339Nano),
		UserID:     c.userID,
		SessionID:  c.sessionID,
		Channel:    string(req.channel),
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: req.text,
	})

	c.wait()

	c.sessMu.Lock()
	reply, err := c.engine.Respond(req.text, c.session)
	c.sessMu.Unlock()

	text := reply.Text
	turn.Intent = reply.Intent
	turn.Pool = reply.Pool
	if err != nil {
		turn.Err = fmt.Errorf("select reply: %w", err)
		text = c.persona.ErrorText()
		slog.Error("Companion reply failed",
			"user_id", c.userID,
			"session_id", c.sessionID,
			"intent", reply.Intent,
			"error", err,
		)
	}

	turn.Reply = c.transcript.append(domain.SpeakerCompanion, text, domain.ChannelTyped)
	c.publishMessage(turn.Reply)
	c.log.Log(ConversationLogEvent{
		Timestamp:  turn.Reply.CreatedAt.Format(time.RFC3339Nano),
		UserID:     c.userID,
		SessionID:  c.sessionID,
		Channel:    string(req.channel),
		Direction:  "inbound",
		EventType:  "chat_companion_message",
		ContentRaw: text,
		Meta: map[string]any{
			"intent":      reply.Intent,
			"pool":        reply.Pool,
			"template_id": reply.TemplateID,
			"failed":      err != nil,
		},
	})

	c.speak(text)
	return turn
}

func (c *Conversation) wait() {
	if c.delay <= 0 {
		return
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.done:
	}
}

func (c *Conversation) speak(text string) {
	if !c.output.Available() {
		return
	}
	v := c.persona.Voice
	_, err := c.output.Say(speech.Utterance{
		Text:   text,
		Voice:  v.Hint,
		Rate:   v.Rate,
		Pitch:  v.Pitch,
		Volume: v.Volume,
	})
	if err != nil && !speech.IsUnavailable(err) {
		slog.Warn("failed to start speech output", "session_id", c.sessionID, "error", err)
	}
}

func (c *Conversation) speechEvent(ev speech.Event) {
	if c.onEvent == nil {
		return
	}
	c.onEvent(Event{
		Type:      EventSpeech,
		UserID:    c.userID,
		SessionID: c.sessionID,
		Speech:    &ev,
	})
}

func (c *Conversation) publishMessage(msg domain.ChatMessage) {
	if c.onEvent == nil {
		return
	}
	c.onEvent(Event{
		Type:      EventMessage,
		UserID:    c.userID,
		SessionID: c.sessionID,
		Message:   &msg,
	})
}

// StartListening opens a single listening session. Its transcript, if any,
// is submitted as a spoken message. ctx bounds the listening session only.
func (c *Conversation) StartListening(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrConversationClosed
	default:
	}
	c.touch()
	return c.listener.Start(ctx, func(ev speech.TranscriptEvent) {
		if _, err := c.Submit(context.Background(), ev.Text, domain.ChannelSpoken); err != nil &&
			!errors.Is(err, ErrConversationClosed) {
			slog.Warn("spoken message failed", "session_id", c.sessionID, "error", err)
		}
	})
}

// StopListening ends the active listening session.
func (c *Conversation) StopListening() {
	c.listener.Stop()
}

// Listening reports whether a listening session is active.
func (c *Conversation) Listening() bool {
	return c.listener.Active()
}

// StopSpeaking cancels any speech in progress.
func (c *Conversation) StopSpeaking() {
	c.output.CancelAll()
}

// Speaking reports whether speech is in progress.
func (c *Conversation) Speaking() bool {
	return c.output.Speaking()
}

// SpeechAvailable reports which speech directions are usable.
func (c *Conversation) SpeechAvailable() (output, input bool) {
	return c.output.Available(), c.listener.Available()
}

// Transcript returns a copy of the messages so far.
func (c *Conversation) Transcript() []domain.ChatMessage {
	return c.transcript.snapshot()
}

// Summary returns the session's dashboard fields.
func (c *Conversation) Summary() domain.SessionSummary {
	c.sessMu.RLock()
	defer c.sessMu.RUnlock()
	return c.session.Summary()
}

// State returns the orchestrator state.
func (c *Conversation) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Conversation) setState(s State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = s
}

// Close stops the worker, listening and speech. It is safe to call twice.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.listener.Close()
		c.wg.Wait()
		c.output.Close()
	})
}
