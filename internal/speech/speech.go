// Package speech defines the seam between the companion and external
// speech recognition and synthesis engines.
package speech

import (
	"context"
	"errors"
)

var (
	// ErrSynthesisUnavailable means no speech output engine is usable.
	ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")
	// ErrRecognitionUnavailable means no speech input engine is usable.
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
	// ErrListeningActive is returned when a listening session is already running.
	ErrListeningActive = errors.New("listening already active")
)

// TranscriptEvent is the single result of a successful listening session.
type TranscriptEvent struct {
	Text string `json:"text"`
}

// Utterance is one synthesis request.
type Utterance struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Synthesizer is an external text-to-speech engine.
type Synthesizer interface {
	// Available reports whether the engine can speak right now.
	Available() bool
	// Voices lists the voice names the engine knows.
	Voices(ctx context.Context) ([]string, error)
	// Speak plays u and blocks until playback ends or ctx is cancelled.
	Speak(ctx context.Context, u Utterance) error
}

// Recognizer is an external speech-to-text engine.
type Recognizer interface {
	// Available reports whether the engine can listen right now.
	Available() bool
	// Listen starts one listening session. The returned channel yields at
	// most one transcript and is closed when the session ends. Cancelling
	// ctx stops listening.
	Listen(ctx context.Context) (<-chan TranscriptEvent, error)
}

// Unavailable is a Synthesizer and Recognizer with no capability. The
// companion falls back to text-only operation when it is in use.
type Unavailable struct{}

var (
	_ Synthesizer = Unavailable{}
	_ Recognizer  = Unavailable{}
)

// Available always returns false.
func (Unavailable) Available() bool { return false }

// Voices always fails.
func (Unavailable) Voices(context.Context) ([]string, error) {
	return nil, ErrSynthesisUnavailable
}

// Speak always fails.
func (Unavailable) Speak(context.Context, Utterance) error {
	return ErrSynthesisUnavailable
}

// Listen always fails.
func (Unavailable) Listen(context.Context) (<-chan TranscriptEvent, error) {
	return nil, ErrRecognitionUnavailable
}
