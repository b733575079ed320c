package agent

import (
	"crypto/rand"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ashureev/astrocare/internal/domain"
)

// transcript is the append-only message log of one conversation. Timestamps
// never decrease even if the clock steps backwards.
type transcript struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage
	entropy  *ulid.MonotonicEntropy
	now      func() time.Time
	last     time.Time
}

func newTranscript(now func() time.Time) *transcript {
	if now == nil {
		now = time.Now
	}
	return &transcript{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     now,
	}
}

func (t *transcript) append(speaker domain.Speaker, text string, channel domain.InputChannel) domain.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.now().UTC()
	if ts.Before(t.last) {
		ts = t.last
	}
	t.last = ts

	msg := domain.ChatMessage{
		ID:        ulid.MustNew(ulid.Timestamp(ts), t.entropy).String(),
		Speaker:   speaker,
		Text:      text,
		CreatedAt: ts,
		Channel:   channel,
	}
	t.messages = append(t.messages, msg)
	return msg
}

func (t *transcript) snapshot() []domain.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.messages)
}

func (t *transcript) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
