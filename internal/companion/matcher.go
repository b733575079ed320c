// Package companion implements the rule-based dialogue engine behind the
// astronaut well-being companion: intent matching, template selection and
// persona configuration.
package companion

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/astrocare/internal/domain"
)

// Intent is a classified category of user utterance.
type Intent string

const (
	IntentSleepHours    Intent = "sleep_hours"
	IntentStress        Intent = "stress"
	IntentFatigue       Intent = "fatigue"
	IntentExercise      Intent = "exercise"
	IntentGuidance      Intent = "guidance"
	IntentReportIssue   Intent = "report_issue"
	IntentMissionStatus Intent = "mission_status"
	IntentGratitude     Intent = "gratitude"
	IntentFarewell      Intent = "farewell"
	IntentHome          Intent = "home"
	IntentGreeting      Intent = "greeting"
	// IntentFallback is returned when no rule matches.
	IntentFallback Intent = "fallback"
)

// maxSleepHours bounds what is accepted as a sleep duration.
const maxSleepHours = 24

var sleepHoursPattern = regexp.MustCompile(`(\d+)\s*(?:hours?|hrs?)\b`)

// Match is the outcome of classifying one utterance.
type Match struct {
	Intent Intent
	// Hours is the parsed sleep duration when Intent is IntentSleepHours.
	Hours int
}

// Rule is one entry in the ordered intent rule list.
type Rule struct {
	ID     Intent
	Detect func(text string, s *domain.SessionState, now time.Time) (Match, bool)
}

// KeywordRule matches when any of the phrases occurs as whole words.
func KeywordRule(intent Intent, phrases ...string) Rule {
	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(p)))
	}
	re := regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	return PatternRule(intent, re)
}

// PatternRule matches when re matches the normalized text.
func PatternRule(intent Intent, re *regexp.Regexp) Rule {
	return Rule{
		ID: intent,
		Detect: func(text string, _ *domain.SessionState, _ time.Time) (Match, bool) {
			if re.MatchString(text) {
				return Match{Intent: intent}, true
			}
			return Match{}, false
		},
	}
}

// SleepHoursRule matches "N hours" answers, but only while a sleep question
// asked within window is pending. A bare number is not a sleep answer unless
// the companion asked for one.
func SleepHoursRule(window time.Duration) Rule {
	return Rule{
		ID: IntentSleepHours,
		Detect: func(text string, s *domain.SessionState, now time.Time) (Match, bool) {
			if s == nil || s.IsSleepCheckStale(now, window) {
				return Match{}, false
			}
			sub := sleepHoursPattern.FindStringSubmatch(text)
			if sub == nil {
				return Match{}, false
			}
			n, err := strconv.Atoi(sub[1])
			if err != nil || n > maxSleepHours {
				return Match{}, false
			}
			return Match{Intent: IntentSleepHours, Hours: n}, true
		},
	}
}

// DefaultRules returns the standard rule order. Order is significance: the
// first matching rule wins.
func DefaultRules(sleepWindow time.Duration) []Rule {
	return []Rule{
		SleepHoursRule(sleepWindow),
		KeywordRule(IntentStress, "stress", "stressed", "stressful", "anxiety", "anxious", "overwhelmed", "panic", "nervous"),
		KeywordRule(IntentFatigue, "sleep", "sleepy", "sleeping", "tired", "exhausted", "fatigue", "fatigued", "drained", "insomnia"),
		KeywordRule(IntentExercise, "exercise", "exercising", "workout", "training", "treadmill", "ared", "cardio"),
		KeywordRule(IntentGuidance, "guidance", "advice", "help", "guide me"),
		KeywordRule(IntentReportIssue, "report", "issue", "problem", "malfunction", "broken", "failure"),
		KeywordRule(IntentMissionStatus, "mission", "status", "oxygen", "supplies", "water", "mission day"),
		KeywordRule(IntentGratitude, "thank", "thanks", "thank you", "appreciate"),
		KeywordRule(IntentFarewell, "bye", "goodbye", "good night", "see you", "signing off"),
		KeywordRule(IntentHome, "miss you", "missing you", "home", "homesick", "family", "amma"),
		KeywordRule(IntentGreeting, "hello", "hi", "hey", "good morning", "good afternoon", "good evening", "namaste"),
	}
}

// Matcher classifies utterances against a fixed rule list.
type Matcher struct {
	rules []Rule
	now   func() time.Time
}

// NewMatcher creates a matcher over rules. The slice is copied so the order
// is fixed at construction time. A nil clock uses time.Now.
func NewMatcher(rules []Rule, now func() time.Time) *Matcher {
	if now == nil {
		now = time.Now
	}
	return &Matcher{
		rules: append([]Rule(nil), rules...),
		now:   now,
	}
}

// Classify returns the first matching intent, or IntentFallback.
// The session is only read, for rules gated on conversation context.
func (m *Matcher) Classify(text string, s *domain.SessionState) Match {
	norm := Normalize(text)
	if norm == "" {
		return Match{Intent: IntentFallback}
	}
	now := m.now()
	for _, r := range m.rules {
		if match, ok := r.Detect(norm, s, now); ok {
			return match
		}
	}
	return Match{Intent: IntentFallback}
}

// Rules returns the rule ids in evaluation order.
func (m *Matcher) Rules() []Intent {
	ids := make([]Intent, 0, len(m.rules))
	for _, r := range m.rules {
		ids = append(ids, r.ID)
	}
	return ids
}

// Normalize lowercases, trims and collapses whitespace. Punctuation, digits
// and units are kept so patterns like "7 hours" survive.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
