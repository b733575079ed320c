package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Listener runs single-shot listening sessions on a Recognizer. Only one
// session may be active; starting another while it runs is rejected.
type Listener struct {
	rec Recognizer

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
	wg     sync.WaitGroup
}

// NewListener creates a listener over rec.
func NewListener(rec Recognizer) *Listener {
	if rec == nil {
		rec = Unavailable{}
	}
	return &Listener{rec: rec}
}

// Available reports whether speech input can be used.
func (l *Listener) Available() bool {
	return l.rec.Available()
}

// Start begins listening. onTranscript is called at most once, with the
// first non-blank transcript of the session, and the session has already
// ended by the time it runs. A session that ends silently produces no call.
func (l *Listener) Start(ctx context.Context, onTranscript func(TranscriptEvent)) error {
	if !l.rec.Available() {
		return ErrRecognitionUnavailable
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return ErrListeningActive
	}

	listenCtx, cancel := context.WithCancel(ctx)
	events, err := l.rec.Listen(listenCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("start listening: %w", err)
	}
	l.cancel = cancel
	l.gen++
	gen := l.gen
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		defer l.finish(gen, cancel)
		for ev := range events {
			if strings.TrimSpace(ev.Text) == "" {
				continue
			}
			l.finish(gen, cancel)
			onTranscript(ev)
			break
		}
		// The recognizer closes events once it sees the cancellation.
		for range events {
		}
	}()
	return nil
}

// finish ends session gen. A later session is left alone.
func (l *Listener) finish(gen uint64, cancel context.CancelFunc) {
	cancel()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen == gen {
		l.cancel = nil
	}
}

// Stop ends the active listening session, if any.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
}

// Active reports whether a listening session is running.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Close stops listening and waits for the session goroutine to exit.
func (l *Listener) Close() {
	l.Stop()
	l.wg.Wait()
}
