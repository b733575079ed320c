package companion

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuiltinPersonasValidate(t *testing.T) {
	t.Parallel()

	for _, id := range BuiltinPersonaIDs() {
		p, err := BuiltinPersona(id)
		if err != nil {
			t.Fatalf("BuiltinPersona(%q): %v", id, err)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("persona %q invalid: %v", id, err)
		}
		if p.ID != id {
			t.Errorf("persona id %q registered as %q", p.ID, id)
		}
	}
}

func TestBuiltinPersonaIsACopy(t *testing.T) {
	t.Parallel()

	a, _ := BuiltinPersona("astrobot")
	a.Pools[PoolGreeting] = nil
	b, _ := BuiltinPersona("astrobot")
	if len(b.Pools[PoolGreeting]) == 0 {
		t.Fatal("mutating one persona leaked into the next")
	}
}

func TestUnknownPersona(t *testing.T) {
	t.Parallel()

	if _, err := BuiltinPersona("hal9000"); !errors.Is(err, ErrUnknownPersona) {
		t.Fatalf("expected ErrUnknownPersona, got %v", err)
	}
}

func TestParsePersonaExtends(t *testing.T) {
	t.Parallel()

	doc := []byte(`
id: nova
extends: astrobot
name: Nova
address: Specialist
sleep:
  high: 8
  mid: 6
  check_window: 12h
voice:
  hint: Karen
  rate: 0.95
  pitch: 1.0
  volume: 0.8
pools:
  greeting:
    - "Good to see you, {address}. {name} online."
`)
	p, err := ParsePersona(doc)
	if err != nil {
		t.Fatalf("ParsePersona failed: %v", err)
	}
	if p.Name != "Nova" || p.Address != "Specialist" {
		t.Fatalf("identity not applied: %+v", p)
	}
	if len(p.Pools[PoolGreeting]) != 1 {
		t.Fatalf("greeting pool not overridden: %v", p.Pools[PoolGreeting])
	}
	if len(p.Pools[PoolStress]) == 0 {
		t.Fatal("stress pool not inherited")
	}
	if p.Sleep.High != 8 || p.Sleep.Mid != 6 || p.Sleep.Window() != 12*time.Hour {
		t.Fatalf("sleep policy = %+v", p.Sleep)
	}
	if p.Voice.Hint != "Karen" {
		t.Fatalf("voice = %+v", p.Voice)
	}
	opening, err := p.OpeningText()
	if err != nil || opening == "" {
		t.Fatalf("OpeningText = %q, %v", opening, err)
	}
}

func TestParsePersonaRejectsBadThresholds(t *testing.T) {
	t.Parallel()

	doc := []byte(`
extends: astrobot
sleep:
  high: 5
  mid: 7
`)
	if _, err := ParsePersona(doc); !errors.Is(err, ErrPersonaInvalid) {
		t.Fatalf("expected ErrPersonaInvalid, got %v", err)
	}
}

func TestParsePersonaRejectsMissingPools(t *testing.T) {
	t.Parallel()

	doc := []byte(`
name: Minimal
sleep: {high: 7, mid: 5}
pools:
  greeting: ["hi"]
`)
	if _, err := ParsePersona(doc); !errors.Is(err, ErrPersonaInvalid) {
		t.Fatalf("expected ErrPersonaInvalid, got %v", err)
	}
}

func TestParsePersonaRejectsUnresolvableOpening(t *testing.T) {
	t.Parallel()

	doc := []byte(`
extends: astrobot
opening: "Welcome to mission day {mission_day}"
`)
	_, err := ParsePersona(doc)
	var pe *PlaceholderError
	if !errors.Is(err, ErrPersonaInvalid) || !errors.As(err, &pe) {
		t.Fatalf("expected invalid persona wrapping a placeholder error, got %v", err)
	}
}

func TestLoadPersonaFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "persona.yaml")
	if err := os.WriteFile(path, []byte("extends: dharani-visual\nname: Dharani\n"), 0o600); err != nil {
		t.Fatalf("write persona: %v", err)
	}
	p, err := LoadPersona(path)
	if err != nil {
		t.Fatalf("LoadPersona failed: %v", err)
	}
	if p.Image == "" {
		t.Fatal("expected inherited companion image")
	}

	if _, err := LoadPersona(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolvePersona(t *testing.T) {
	t.Parallel()

	p, err := ResolvePersona("", "")
	if err != nil || p.ID != DefaultPersonaID {
		t.Fatalf("expected default persona, got %v, %v", p, err)
	}
	p, err = ResolvePersona("samantha", "")
	if err != nil || p.ID != "samantha" {
		t.Fatalf("expected samantha, got %v, %v", p, err)
	}
	if _, err := ResolvePersona("astrobot", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing persona file")
	}
}
