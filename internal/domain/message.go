// Package domain contains core domain types for the AstroCare companion.
package domain

import (
	"time"
)

// Speaker identifies who authored a chat message.
type Speaker string

const (
	// SpeakerUser is the astronaut talking to the companion.
	SpeakerUser Speaker = "user"
	// SpeakerCompanion is the companion persona.
	SpeakerCompanion Speaker = "companion"
)

// InputChannel records how a user message entered the conversation.
type InputChannel string

const (
	// ChannelTyped is text entered on a keyboard. It is the default.
	ChannelTyped InputChannel = "typed"
	// ChannelSpoken is text produced by speech recognition.
	ChannelSpoken InputChannel = "spoken"
)

// ParseInputChannel maps a wire value to an InputChannel, defaulting to typed.
func ParseInputChannel(s string) InputChannel {
	if InputChannel(s) == ChannelSpoken {
		return ChannelSpoken
	}
	return ChannelTyped
}

// ChatMessage is a single immutable transcript entry.
type ChatMessage struct {
	ID        string       `json:"id"`
	Speaker   Speaker      `json:"speaker"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"created_at"`
	Channel   InputChannel `json:"channel"`
}

// IsUser reports whether the message was authored by the user.
func (m ChatMessage) IsUser() bool {
	return m.Speaker == SpeakerUser
}
