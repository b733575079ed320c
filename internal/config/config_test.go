package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "PERSONA", "PERSONA_FILE", "SESSION_TTL", "REPLY_DELAY", "MISSION_DAY"} {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "8080")
	t.Setenv("PERSONA", "astrobot")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("REPLY_DELAY", "2")
	t.Setenv("MISSION_DAY", "124")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.ReplyDelay != 2*time.Second {
		t.Fatalf("ReplyDelay = %v", cfg.ReplyDelay)
	}
	want := map[string]string{"mission_day": "124", "oxygen_kg": "825", "water_l": "450"}
	if diff := cmp.Diff(want, cfg.Mission.Facts()); diff != "" {
		t.Fatalf("mission facts mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := Config{
		Port:            "8080",
		Persona:         "astrobot",
		RateLimit:       RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second},
		MaxRequestBody:  1,
		ConversationLog: ConversationLogConfig{Dir: "d", GlobalPath: "g", QueueSize: 1},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	cases := map[string]func(*Config){
		"no persona":     func(c *Config) { c.Persona = "" },
		"negative delay": func(c *Config) { c.ReplyDelay = -time.Second },
		"zero window":    func(c *Config) { c.RateLimit.WindowDuration = 0 },
		"zero body":      func(c *Config) { c.MaxRequestBody = 0 },
		"empty port":     func(c *Config) { c.Port = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := base
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("X_DURATION", "bogus")
	if got := getEnvDuration("X_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	t.Setenv("X_DURATION", "1500ms")
	if got := getEnvDuration("X_DURATION", time.Minute); got != 1500*time.Millisecond {
		t.Fatalf("got %v", got)
	}
}
