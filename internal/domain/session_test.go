package domain

import (
	"testing"
	"time"
)

func TestSessionSleepCheckStaleness(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	s := NewSessionState(nil)

	if !s.IsSleepCheckStale(now, DefaultSleepCheckWindow) {
		t.Fatal("expected stale when no sleep check was asked")
	}

	s.MarkSleepCheckAsked(now.Add(-23 * time.Hour))
	if s.IsSleepCheckStale(now, DefaultSleepCheckWindow) {
		t.Fatal("expected fresh within 24h")
	}

	s.MarkSleepCheckAsked(now.Add(-25 * time.Hour))
	if !s.IsSleepCheckStale(now, DefaultSleepCheckWindow) {
		t.Fatal("expected stale after 24h")
	}

	if !s.IsSleepCheckStale(now, 0) {
		t.Fatal("zero window should fall back to the default")
	}
}

func TestSessionCountersAndSummary(t *testing.T) {
	t.Parallel()

	s := NewSessionState(map[string]string{"mission_day": "124"})
	s.RecordUserTurn()
	s.RecordUserTurn()
	s.RecordSleepHours(6)

	sum := s.Summary()
	if sum.TurnCount != 2 {
		t.Fatalf("TurnCount = %d, want 2", sum.TurnCount)
	}
	if got := sum.SleepBadge(); got != "Sleep: 6h tracked" {
		t.Fatalf("SleepBadge = %q", got)
	}

	// Snapshots must not alias live state.
	*sum.LastSleepHours = 1
	if *s.LastSleepHours != 6 {
		t.Fatal("summary aliases session state")
	}

	if v, ok := s.Fact("mission_day"); !ok || v != "124" {
		t.Fatalf("Fact = %q, %v", v, ok)
	}
	if (SessionSummary{}).SleepBadge() != "" {
		t.Fatal("expected empty badge without sleep hours")
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	t.Parallel()

	s := NewSessionState(nil)
	s.MarkUsed("greeting#0")
	s.SetLastTemplate("greeting", "greeting#0")
	c := s.Clone()
	c.MarkUsed("greeting#1")
	c.SetFact("oxygen_kg", "800")

	if s.WasUsed("greeting#1") {
		t.Fatal("clone shares RecentlyUsed")
	}
	if _, ok := s.Fact("oxygen_kg"); ok {
		t.Fatal("clone shares Facts")
	}
}

func TestParseInputChannel(t *testing.T) {
	t.Parallel()

	if ParseInputChannel("spoken") != ChannelSpoken {
		t.Fatal("spoken not parsed")
	}
	if ParseInputChannel("") != ChannelTyped || ParseInputChannel("carrier-pigeon") != ChannelTyped {
		t.Fatal("unknown channels should default to typed")
	}
}
