package agent

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ashureev/astrocare/internal/companion"
	"github.com/ashureev/astrocare/internal/domain"
	"github.com/ashureev/astrocare/internal/speech"
)

func missionFacts() map[string]string {
	return map[string]string{"mission_day": "124", "oxygen_kg": "825", "water_l": "450"}
}

func testPersona(t *testing.T) *companion.Persona {
	t.Helper()
	p, err := companion.BuiltinPersona(companion.DefaultPersonaID)
	if err != nil {
		t.Fatalf("BuiltinPersona failed: %v", err)
	}
	return p
}

// steppingClock advances by one second on every read.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestConversation(t *testing.T, mutate func(*ConversationConfig)) *Conversation {
	t.Helper()
	clock := &steppingClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	cfg := ConversationConfig{
		UserID:    "anon_test",
		SessionID: "tab-1",
		Persona:   testPersona(t),
		Facts:     missionFacts(),
		Rand:      companion.NewSeededSource(7),
		Now:       clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewConversation(cfg)
	if err != nil {
		t.Fatalf("NewConversation failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestConversationStartsWithOpeningMessage(t *testing.T) {
	t.Parallel()

	c := newTestConversation(t, nil)
	msgs := c.Transcript()
	if len(msgs) != 1 {
		t.Fatalf("expected opening message only, got %d", len(msgs))
	}
	if msgs[0].Speaker != domain.SpeakerCompanion || !strings.Contains(msgs[0].Text, "Commander") {
		t.Fatalf("unexpected opening message %+v", msgs[0])
	}
	if msgs[0].Channel != domain.ChannelTyped {
		t.Fatalf("companion channel = %q, want typed", msgs[0].Channel)
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle", c.State())
	}

	turn, err := c.Submit(context.Background(), "hello", domain.ChannelSpoken)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if turn.User.Channel != domain.ChannelSpoken || turn.Reply.Channel != domain.ChannelTyped {
		t.Fatalf("channels = %q/%q, want spoken/typed", turn.User.Channel, turn.Reply.Channel)
	}
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	t.Parallel()

	c := newTestConversation(t, nil)
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := c.Submit(context.Background(), text, domain.ChannelTyped); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("Submit(%q) err = %v, want ErrEmptyInput", text, err)
		}
	}
	if n := len(c.Transcript()); n != 1 {
		t.Fatalf("blank input must not append, transcript has %d messages", n)
	}
	if got := c.Summary().TurnCount; got != 0 {
		t.Fatalf("blank input must not count a turn, got %d", got)
	}
}

func TestConversationScenario(t *testing.T) {
	t.Parallel()

	c := newTestConversation(t, nil)
	ctx := context.Background()

	hello, err := c.Submit(ctx, "Hello", domain.ChannelTyped)
	if err != nil {
		t.Fatalf("Submit(Hello) failed: %v", err)
	}
	if hello.Intent != companion.IntentGreeting {
		t.Fatalf("intent = %s, want greeting", hello.Intent)
	}

	tired, err := c.Submit(ctx, "I feel tired", domain.ChannelTyped)
	if err != nil {
		t.Fatalf("Submit(I feel tired) failed: %v", err)
	}
	if tired.Pool != companion.PoolSleepQuestion {
		t.Fatalf("pool = %s, want sleep question", tired.Pool)
	}

	slept, err := c.Submit(ctx, "7 hours", domain.ChannelSpoken)
	if err != nil {
		t.Fatalf("Submit(7 hours) failed: %v", err)
	}
	if slept.Pool != companion.PoolSleepOptimal {
		t.Fatalf("pool = %s, want optimal band", slept.Pool)
	}
	if slept.User.Channel != domain.ChannelSpoken {
		t.Fatalf("channel = %s, want spoken", slept.User.Channel)
	}

	sum := c.Summary()
	if sum.TurnCount != 3 || sum.LastSleepHours == nil || *sum.LastSleepHours != 7 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if badge := sum.SleepBadge(); badge != "Sleep: 7h tracked" {
		t.Fatalf("badge = %q", badge)
	}

	msgs := c.Transcript()
	if len(msgs) != 7 {
		t.Fatalf("expected opening plus three exchanges, got %d messages", len(msgs))
	}
	users := slices.DeleteFunc(slices.Clone(msgs), func(m domain.ChatMessage) bool { return !m.IsUser() })
	if len(users) != sum.TurnCount {
		t.Fatalf("user messages %d != turn count %d", len(users), sum.TurnCount)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("timestamps decreased at %d", i)
		}
		if msgs[i].ID <= msgs[i-1].ID {
			t.Fatalf("ids not increasing at %d", i)
		}
	}
}

func TestPlaceholderFailureUsesErrorReply(t *testing.T) {
	t.Parallel()

	c := newTestConversation(t, func(cfg *ConversationConfig) { cfg.Facts = nil })
	turn, err := c.Submit(context.Background(), "what is the mission status", domain.ChannelTyped)

	var pe *companion.PlaceholderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlaceholderError, got %v", err)
	}
	if turn == nil || turn.Reply.Text != c.Persona().ErrorText() {
		t.Fatalf("expected generic error reply, got %+v", turn)
	}
	if got := c.Summary().TurnCount; got != 1 {
		t.Fatalf("failed turn still counts, got %d", got)
	}
	if n := len(c.Transcript()); n != 3 {
		t.Fatalf("expected user message and error reply appended, got %d", n)
	}
}

func TestSubmissionsAreProcessedInOrder(t *testing.T) {
	t.Parallel()

	c := newTestConversation(t, func(cfg *ConversationConfig) { cfg.ReplyDelay = time.Millisecond })

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Submit(context.Background(), "message "+string(rune('a'+i)), domain.ChannelTyped); err != nil {
				t.Errorf("Submit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	msgs := c.Transcript()[1:]
	if len(msgs) != 16 {
		t.Fatalf("expected 16 messages, got %d", len(msgs))
	}
	for i := 0; i < len(msgs); i += 2 {
		if !msgs[i].IsUser() || msgs[i+1].IsUser() {
			t.Fatalf("turns interleaved at %d: %+v %+v", i, msgs[i], msgs[i+1])
		}
	}
}

type recordingSynth struct {
	mu     sync.Mutex
	spoken []speech.Utterance
}

func (r *recordingSynth) Available() bool { return true }

func (r *recordingSynth) Voices(context.Context) ([]string, error) {
	return []string{"Google UK English Female"}, nil
}

func (r *recordingSynth) Speak(_ context.Context, u speech.Utterance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spoken = append(r.spoken, u)
	return nil
}

func (r *recordingSynth) utterances() []speech.Utterance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.spoken)
}

func TestRepliesAreSpokenWithPersonaVoice(t *testing.T) {
	defer goleak.VerifyNone(t)

	synth := &recordingSynth{}
	events := make(chan Event, 32)
	c, err := NewConversation(ConversationConfig{
		Persona:     testPersona(t),
		Facts:       missionFacts(),
		Rand:        companion.NewSeededSource(1),
		Synthesizer: synth,
		OnEvent:     func(ev Event) { events <- ev },
	})
	if err != nil {
		t.Fatalf("NewConversation failed: %v", err)
	}
	// Must run before goleak.VerifyNone, also on failure.
	defer c.Close()

	turn, err := c.Submit(context.Background(), "thanks", domain.ChannelTyped)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != EventSpeech {
				continue
			}
			if ev.Speech.Kind != speech.SpeechEnd || ev.Speech.Text != turn.Reply.Text {
				t.Fatalf("unexpected speech event %+v", ev.Speech)
			}
			got := synth.utterances()
			if len(got) != 1 || got[0].Rate != c.Persona().Voice.Rate {
				t.Fatalf("unexpected utterances %+v", got)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for speech event")
		}
	}
}

type scriptedRecognizer struct {
	text string
}

func (r scriptedRecognizer) Available() bool { return true }

func (r scriptedRecognizer) Listen(ctx context.Context) (<-chan speech.TranscriptEvent, error) {
	out := make(chan speech.TranscriptEvent, 1)
	out <- speech.TranscriptEvent{Text: r.text}
	close(out)
	return out, nil
}

func TestSpokenTranscriptIsSubmitted(t *testing.T) {
	defer goleak.VerifyNone(t)

	events := make(chan Event, 32)
	c, err := NewConversation(ConversationConfig{
		Persona:    testPersona(t),
		Facts:      missionFacts(),
		Recognizer: scriptedRecognizer{text: "I need guidance"},
		OnEvent:    func(ev Event) { events <- ev },
	})
	if err != nil {
		t.Fatalf("NewConversation failed: %v", err)
	}
	defer c.Close()

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventMessage && ev.Message.IsUser() {
				if ev.Message.Channel != domain.ChannelSpoken || ev.Message.Text != "I need guidance" {
					t.Fatalf("unexpected spoken message %+v", ev.Message)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for spoken message")
		}
	}
}

func TestSpeechUnavailableDegradesToText(t *testing.T) {
	t.Parallel()

	c := newTestConversation(t, nil)
	if out, in := c.SpeechAvailable(); out || in {
		t.Fatalf("expected no speech, got output=%v input=%v", out, in)
	}
	if err := c.StartListening(context.Background()); !errors.Is(err, speech.ErrRecognitionUnavailable) {
		t.Fatalf("expected ErrRecognitionUnavailable, got %v", err)
	}
	if _, err := c.Submit(context.Background(), "hi", domain.ChannelTyped); err != nil {
		t.Fatalf("text chat must work without speech: %v", err)
	}
	c.StopSpeaking()
	if c.Speaking() {
		t.Fatal("nothing should be speaking")
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := newTestConversation(t, nil)
	c.Close()
	c.Close()
	if _, err := c.Submit(context.Background(), "hello", domain.ChannelTyped); !errors.Is(err, ErrConversationClosed) {
		t.Fatalf("expected ErrConversationClosed, got %v", err)
	}
}
