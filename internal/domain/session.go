package domain

import (
	"maps"
	"strconv"
	"time"
)

// DefaultSleepCheckWindow is how long a sleep question stays fresh.
const DefaultSleepCheckWindow = 24 * time.Hour

// SessionState holds the mutable facts of one conversation.
// It is ephemeral: it lives exactly as long as the conversation that owns it.
type SessionState struct {
	LastSleepHours   *int
	LastSleepCheckAt *time.Time
	TurnCount        int
	// RecentlyUsed holds template ids ("<pool>#<index>") already produced.
	RecentlyUsed map[string]struct{}
	// LastTemplates maps a pool to the template id it produced last.
	LastTemplates map[string]string
	// Facts are mission values template placeholders may refer to.
	Facts map[string]string
}

// NewSessionState creates an empty session seeded with the given mission facts.
func NewSessionState(facts map[string]string) *SessionState {
	s := &SessionState{
		RecentlyUsed:  make(map[string]struct{}),
		LastTemplates: make(map[string]string),
		Facts:         make(map[string]string, len(facts)),
	}
	maps.Copy(s.Facts, facts)
	return s
}

// RecordUserTurn increments the turn counter.
func (s *SessionState) RecordUserTurn() {
	s.TurnCount++
}

// MarkSleepCheckAsked records that a sleep question was asked at now.
func (s *SessionState) MarkSleepCheckAsked(now time.Time) {
	t := now
	s.LastSleepCheckAt = &t
}

// IsSleepCheckStale reports whether a sleep question should be asked again:
// true when none was asked, or the last one is older than window.
func (s *SessionState) IsSleepCheckStale(now time.Time, window time.Duration) bool {
	if s.LastSleepCheckAt == nil {
		return true
	}
	if window <= 0 {
		window = DefaultSleepCheckWindow
	}
	return now.Sub(*s.LastSleepCheckAt) > window
}

// RecordSleepHours stores the most recently reported sleep duration.
func (s *SessionState) RecordSleepHours(n int) {
	h := n
	s.LastSleepHours = &h
}

// SetFact sets a mission fact used by template placeholders.
func (s *SessionState) SetFact(key, value string) {
	if s.Facts == nil {
		s.Facts = make(map[string]string)
	}
	s.Facts[key] = value
}

// Fact returns a mission fact and whether it is present.
func (s *SessionState) Fact(key string) (string, bool) {
	v, ok := s.Facts[key]
	return v, ok
}

// MarkUsed records a template id as recently produced.
func (s *SessionState) MarkUsed(id string) {
	if s.RecentlyUsed == nil {
		s.RecentlyUsed = make(map[string]struct{})
	}
	s.RecentlyUsed[id] = struct{}{}
}

// WasUsed reports whether a template id is in the recently used set.
func (s *SessionState) WasUsed(id string) bool {
	_, ok := s.RecentlyUsed[id]
	return ok
}

// SetLastTemplate records the template a pool produced last.
func (s *SessionState) SetLastTemplate(pool, id string) {
	if s.LastTemplates == nil {
		s.LastTemplates = make(map[string]string)
	}
	s.LastTemplates[pool] = id
}

// ForgetUsed removes a template id from the recently used set.
func (s *SessionState) ForgetUsed(id string) {
	delete(s.RecentlyUsed, id)
}

// Clone returns a deep copy of the session.
func (s *SessionState) Clone() *SessionState {
	c := &SessionState{
		TurnCount:     s.TurnCount,
		RecentlyUsed:  maps.Clone(s.RecentlyUsed),
		LastTemplates: maps.Clone(s.LastTemplates),
		Facts:         maps.Clone(s.Facts),
	}
	if c.RecentlyUsed == nil {
		c.RecentlyUsed = make(map[string]struct{})
	}
	if c.LastTemplates == nil {
		c.LastTemplates = make(map[string]string)
	}
	if c.Facts == nil {
		c.Facts = make(map[string]string)
	}
	if s.LastSleepHours != nil {
		h := *s.LastSleepHours
		c.LastSleepHours = &h
	}
	if s.LastSleepCheckAt != nil {
		t := *s.LastSleepCheckAt
		c.LastSleepCheckAt = &t
	}
	return c
}

// SessionSummary is a read-only snapshot for display.
type SessionSummary struct {
	TurnCount      int        `json:"turn_count"`
	LastSleepHours *int       `json:"last_sleep_hours,omitempty"`
	SleepCheckedAt *time.Time `json:"sleep_checked_at,omitempty"`
}

// Summary returns a snapshot of the display-relevant session fields.
func (s *SessionState) Summary() SessionSummary {
	c := s.Clone()
	return SessionSummary{
		TurnCount:      c.TurnCount,
		LastSleepHours: c.LastSleepHours,
		SleepCheckedAt: c.LastSleepCheckAt,
	}
}

// SleepBadge renders the "Sleep: Nh tracked" badge text, or "" when no hours are known.
func (s SessionSummary) SleepBadge() string {
	if s.LastSleepHours == nil {
		return ""
	}
	return "Sleep: " + strconv.Itoa(*s.LastSleepHours) + "h tracked"
}
