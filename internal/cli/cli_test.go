package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(strings.NewReader(input), &out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestChatSession(t *testing.T) {
	input := strings.Join([]string{
		"Hello",
		"   ",
		"I feel tired",
		"7 hours",
		"/summary",
		"/quit",
	}, "\n") + "\n"

	out, err := run(t, input, "chat", "--seed", "42")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if !strings.Contains(out, "AstroBot: Hello Commander") {
		t.Fatalf("missing opening message:\n%s", out)
	}
	if !strings.Contains(out, "Try: I feel tired") {
		t.Fatalf("missing quick actions:\n%s", out)
	}
	if !strings.Contains(out, "Turns: 3") || !strings.Contains(out, "Sleep: 7h tracked") {
		t.Fatalf("missing summary:\n%s", out)
	}
	if got := strings.Count(out, "AstroBot: "); got != 4 {
		t.Fatalf("expected opening plus three replies, got %d:\n%s", got, out)
	}
}

func TestChatEndsOnEOF(t *testing.T) {
	out, err := run(t, "thanks", "chat", "--persona", "samantha", "--seed", "1")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if !strings.Contains(out, "Samantha: ") {
		t.Fatalf("expected samantha replies:\n%s", out)
	}
}

func TestChatUnknownPersona(t *testing.T) {
	if _, err := run(t, "", "chat", "--persona", "hal9000"); err == nil {
		t.Fatal("expected unknown persona error")
	}
}

func TestPersonasList(t *testing.T) {
	out, err := run(t, "", "personas")
	if err != nil {
		t.Fatalf("personas failed: %v", err)
	}
	for _, id := range []string{"astrobot", "astromate", "samantha", "dharani", "dharani-visual"} {
		if !strings.Contains(out, id) {
			t.Fatalf("missing %s:\n%s", id, out)
		}
	}
}

func TestPersonaValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "nova.yaml")
	if err := os.WriteFile(good, []byte("extends: astrobot\nid: nova\nname: Nova\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	out, err := run(t, "", "persona", "validate", good)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.HasPrefix(out, "ok: nova (Nova)") {
		t.Fatalf("unexpected output %q", out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("id: bad\nname: Bad\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := run(t, "", "persona", "validate", bad); err == nil {
		t.Fatal("expected validation error for persona without pools")
	}
}
