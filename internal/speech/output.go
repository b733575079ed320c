package speech

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// voiceLookupTimeout bounds how long Say waits for the voice list.
const voiceLookupTimeout = 2 * time.Second

// Handle identifies one Say request.
type Handle uint64

// EventKind describes how an utterance finished.
type EventKind string

const (
	SpeechEnd       EventKind = "end"
	SpeechError     EventKind = "error"
	SpeechCancelled EventKind = "cancelled"
)

// Event reports the outcome of one utterance.
type Event struct {
	Handle Handle
	Kind   EventKind
	Text   string
	Err    error
}

// Output plays utterances asynchronously on a Synthesizer. A new Say
// interrupts whatever is still playing, the way a single speaker would.
type Output struct {
	synth   Synthesizer
	onEvent func(Event)
	logger  *slog.Logger

	mu     sync.Mutex
	next   Handle
	active map[Handle]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewOutput creates an output over synth. onEvent may be nil.
func NewOutput(synth Synthesizer, onEvent func(Event), logger *slog.Logger) *Output {
	if synth == nil {
		synth = Unavailable{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Output{
		synth:   synth,
		onEvent: onEvent,
		logger:  logger,
		active:  make(map[Handle]context.CancelFunc),
	}
}

// Available reports whether speech output can be used.
func (o *Output) Available() bool {
	return o.synth.Available()
}

// Say starts speaking u and returns immediately.
func (o *Output) Say(u Utterance) (Handle, error) {
	if !o.synth.Available() {
		return 0, ErrSynthesisUnavailable
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, ErrSynthesisUnavailable
	}
	for _, cancel := range o.active {
		cancel()
	}
	o.next++
	h := o.next
	ctx, cancel := context.WithCancel(context.Background())
	o.active[h] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	go o.play(ctx, h, u)
	return h, nil
}

func (o *Output) play(ctx context.Context, h Handle, u Utterance) {
	defer o.wg.Done()

	u.Voice = o.resolveVoice(ctx, u.Voice)
	err := o.synth.Speak(ctx, u)
	// Read before release, which cancels ctx itself.
	cancelled := ctx.Err() != nil
	o.release(h)

	ev := Event{Handle: h, Text: u.Text}
	switch {
	case cancelled:
		ev.Kind = SpeechCancelled
	case err != nil:
		ev.Kind = SpeechError
		ev.Err = err
		o.logger.Warn("speech synthesis failed", "handle", h, "error", err)
	default:
		ev.Kind = SpeechEnd
	}
	if o.onEvent != nil {
		o.onEvent(ev)
	}
}

// resolveVoice keeps hint only if the engine has that voice; otherwise the
// engine default is used.
func (o *Output) resolveVoice(ctx context.Context, hint string) string {
	if hint == "" {
		return ""
	}
	lookupCtx, cancel := context.WithTimeout(ctx, voiceLookupTimeout)
	defer cancel()
	voices, err := o.synth.Voices(lookupCtx)
	if err != nil {
		o.logger.Debug("voice lookup failed, using default voice", "hint", hint, "error", err)
		return ""
	}
	if !slices.Contains(voices, hint) {
		o.logger.Debug("voice not available, using default voice", "hint", hint)
		return ""
	}
	return hint
}

func (o *Output) release(h Handle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.active[h]; ok {
		cancel()
		delete(o.active, h)
	}
}

// Cancel stops one utterance. It reports whether h was still playing.
func (o *Output) Cancel(h Handle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.active[h]
	if ok {
		cancel()
	}
	return ok
}

// CancelAll stops every utterance in flight.
func (o *Output) CancelAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, cancel := range o.active {
		cancel()
	}
}

// Speaking reports whether any utterance is in flight.
func (o *Output) Speaking() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active) > 0
}

// Close cancels playback and waits for it to wind down.
func (o *Output) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.CancelAll()
	o.wg.Wait()
}

// IsUnavailable reports whether err means speech is not usable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrSynthesisUnavailable) || errors.Is(err, ErrRecognitionUnavailable)
}
