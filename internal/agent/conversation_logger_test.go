package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/astrocare/internal/domain"
)

func TestConversationLoggerRecordsBothSidesOfATurn(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "all", "conversations.ndjson")
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:       true,
		Dir:           filepath.Join(dir, "sessions"),
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	conv := newTestConversation(t, func(cfg *ConversationConfig) { cfg.Log = logger })
	if _, err := conv.Submit(context.Background(), "Hello", domain.ChannelTyped); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	conv.Close()
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events := readEvents(t, filepath.Join(dir, "sessions", "anon_test", "tab-1.ndjson"))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	user, reply := events[0], events[1]
	if user.EventType != "chat_user_message" || user.ContentRaw != "Hello" || user.Channel != "typed" {
		t.Fatalf("unexpected user event: %+v", user)
	}
	if reply.EventType != "chat_companion_message" || reply.Content == "" {
		t.Fatalf("unexpected reply event: %+v", reply)
	}
	if reply.Meta["intent"] != "greeting" {
		t.Fatalf("expected greeting intent in meta, got %v", reply.Meta["intent"])
	}

	if got := readEvents(t, global); len(got) != 2 {
		t.Fatalf("expected global log to mirror 2 events, got %d", len(got))
	}
}

func TestConversationLoggerDisabledIsNoop(t *testing.T) {
	t.Parallel()

	logger, err := NewConversationLogger(ConversationLogConfig{}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	if _, ok := logger.(noopConversationLogger); !ok {
		t.Fatalf("expected noop logger, got %T", logger)
	}
	logger.Log(ConversationLogEvent{ContentRaw: "dropped"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestConversationLoggerRequiresDir(t *testing.T) {
	t.Parallel()

	if _, err := NewConversationLogger(ConversationLogConfig{Enabled: true}, nil); err == nil {
		t.Fatal("expected error without a log dir")
	}
}

func TestSafePathPart(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":           "unknown",
		"..":         "unknown",
		"anon_abc":   "anon_abc",
		"../etc":     ".._etc",
		"tab:1/2":    "tab_1_2",
		"  spaced  ": "spaced",
	}
	for in, want := range tests {
		if got := safePathPart(in); got != want {
			t.Errorf("safePathPart(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanForReadability(t *testing.T) {
	t.Parallel()

	raw := "\x1b]0;title\x07\x1b[1mHow many\x1b[0m hours?\x00 \n"
	if got := cleanForReadability(raw); got != "How many hours?" {
		t.Fatalf("cleanForReadability = %q", got)
	}
}

func readEvents(t *testing.T, path string) []ConversationLogEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var events []ConversationLogEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev ConversationLogEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad line %q: %v", line, err)
		}
		if _, err := time.Parse(time.RFC3339Nano, ev.Timestamp); err != nil {
			t.Fatalf("bad timestamp %q: %v", ev.Timestamp, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return events
}
