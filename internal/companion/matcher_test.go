package companion

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/astrocare/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestClassifyIsDeterministic(t *testing.T) {
	t.Parallel()

	m := NewMatcher(DefaultRules(24*time.Hour), fixedClock(testNow))
	cases := []struct {
		text string
		want Intent
	}{
		{"Hello", IntentGreeting},
		{"  HI there  ", IntentGreeting},
		{"I feel tired", IntentFatigue},
		{"I couldn't sleep at all", IntentFatigue},
		{"Feeling a lot of stress today", IntentStress},
		{"my anxiety is back", IntentStress},
		{"what's my workout today?", IntentExercise},
		{"Need guidance", IntentGuidance},
		{"Report issue", IntentReportIssue},
		{"what is the mission status", IntentMissionStatus},
		{"thanks!", IntentGratitude},
		{"good night", IntentFarewell},
		{"I miss you", IntentHome},
		{"Tell me about home", IntentHome},
		{"7 hours", IntentFallback},
		{"this is nothing in particular", IntentFallback},
		{"", IntentFallback},
	}

	for _, tc := range cases {
		sess := domain.NewSessionState(nil)
		first := m.Classify(tc.text, sess)
		second := m.Classify(tc.text, sess)
		if first.Intent != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.text, first.Intent, tc.want)
		}
		if first != second {
			t.Errorf("Classify(%q) not deterministic: %+v then %+v", tc.text, first, second)
		}
	}
}

func TestClassifyDoesNotMutateSession(t *testing.T) {
	t.Parallel()

	m := NewMatcher(DefaultRules(24*time.Hour), fixedClock(testNow))
	sess := domain.NewSessionState(map[string]string{"mission_day": "124"})
	sess.MarkSleepCheckAsked(testNow.Add(-time.Hour))
	before := sess.Clone()

	m.Classify("I slept 6 hours", sess)
	m.Classify("I feel tired", sess)

	if diff := cmp.Diff(before, sess); diff != "" {
		t.Fatalf("session mutated by Classify (-before +after):\n%s", diff)
	}
}

func TestSleepHoursGating(t *testing.T) {
	t.Parallel()

	m := NewMatcher(DefaultRules(24*time.Hour), fixedClock(testNow))

	fresh := domain.NewSessionState(nil)
	if got := m.Classify("7 hours", fresh); got.Intent != IntentFallback {
		t.Fatalf("without a sleep question, got %s, want fallback", got.Intent)
	}

	asked := domain.NewSessionState(nil)
	asked.MarkSleepCheckAsked(testNow.Add(-2 * time.Hour))
	got := m.Classify("7 hours", asked)
	if got.Intent != IntentSleepHours || got.Hours != 7 {
		t.Fatalf("after sleep question, got %+v, want sleep_hours/7", got)
	}

	stale := domain.NewSessionState(nil)
	stale.MarkSleepCheckAsked(testNow.Add(-25 * time.Hour))
	if got := m.Classify("7 hours", stale); got.Intent != IntentFallback {
		t.Fatalf("with a stale sleep question, got %s, want fallback", got.Intent)
	}
}

func TestSleepHoursPrecedesFatigueKeywords(t *testing.T) {
	t.Parallel()

	m := NewMatcher(DefaultRules(24*time.Hour), fixedClock(testNow))
	sess := domain.NewSessionState(nil)
	sess.MarkSleepCheckAsked(testNow)

	cases := map[string]int{
		"I'm tired, maybe 4 hrs of sleep": 4,
		"slept 6hours":                    6,
		"about 8 hour":                    8,
		"10 HOURS":                        10,
	}
	for text, want := range cases {
		got := m.Classify(text, sess)
		if got.Intent != IntentSleepHours || got.Hours != want {
			t.Errorf("Classify(%q) = %+v, want sleep_hours/%d", text, got, want)
		}
	}

	if got := m.Classify("99 hours", sess); got.Intent != IntentFallback {
		t.Errorf("implausible hours should not match, got %s", got.Intent)
	}
}

func TestRuleOrderIsFixed(t *testing.T) {
	t.Parallel()

	rules := DefaultRules(24 * time.Hour)
	m := NewMatcher(rules, nil)
	rules[0], rules[1] = rules[1], rules[0]

	want := []Intent{
		IntentSleepHours, IntentStress, IntentFatigue, IntentExercise, IntentGuidance,
		IntentReportIssue, IntentMissionStatus, IntentGratitude, IntentFarewell, IntentHome, IntentGreeting,
	}
	if diff := cmp.Diff(want, m.Rules()); diff != "" {
		t.Fatalf("rule order changed (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	if got := Normalize("  Slept   7 Hours.\n"); got != "slept 7 hours." {
		t.Fatalf("Normalize = %q", got)
	}
}
