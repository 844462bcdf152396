package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hession/shreya/internal/agent"
	"github.com/hession/shreya/internal/chance"
	"github.com/hession/shreya/internal/commands"
	"github.com/hession/shreya/internal/config"
	"github.com/hession/shreya/internal/llm"
	"github.com/hession/shreya/internal/memory"
)

const ownerID = "@rahul:example.org"

type staticCompleter struct{}

func (staticCompleter) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return "hii", nil
}

func newTestREPL(t *testing.T, opts Options) (*REPL, *bytes.Buffer, *memory.InMemoryStore) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Owner = config.OwnerConfig{ID: ownerID, Handle: "rahul", Name: "love"}
	p := config.DefaultPersonaConfig()
	store := memory.NewInMemoryStore()
	inv := llm.NewInvoker(staticCompleter{}, p.Fallback, time.Second, nil)

	a, err := agent.New(cfg, p, store, inv, agent.WithRandom(&chance.Fixed{Floats: []float64{0.99}}))
	if err != nil {
		t.Fatalf("agent.New() error = %v", err)
	}

	r := New(a, commands.NewService(a, nil), cfg, opts)
	out := &bytes.Buffer{}
	r.out = out
	return r, out, store
}

func TestNew_DefaultsToOwner(t *testing.T) {
	r, _, _ := newTestREPL(t, Options{})
	if r.userID != ownerID {
		t.Errorf("userID = %q, want %q", r.userID, ownerID)
	}
	if !r.privileged {
		t.Error("owner session should be privileged")
	}

	guest, _, _ := newTestREPL(t, Options{UserID: "@amit:example.org"})
	if guest.privileged {
		t.Error("guest session should not be privileged")
	}
}

func TestProcess_Chat(t *testing.T) {
	r, out, store := newTestREPL(t, Options{})

	if !r.Process(context.Background(), "hello") {
		t.Fatal("Process() should keep going after a chat message")
	}
	if !strings.Contains(out.String(), "Shreya: "+colorReset+"hii") {
		t.Errorf("output %q does not contain the reply", out.String())
	}

	rec, err := store.Get(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec == nil || rec.Memory != "User: hello\nBot: hii\n" {
		t.Errorf("stored record = %+v", rec)
	}
}

func TestProcess_Commands(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		input     string
		keepGoing bool
		contains  string
	}{
		{name: "exit", input: "/exit", keepGoing: false, contains: "Goodbye"},
		{name: "quit alias", input: "/q", keepGoing: false, contains: "Goodbye"},
		{name: "whoami owner", input: "/whoami", keepGoing: true, contains: ownerID + " (owner)"},
		{name: "whoami guest", opts: Options{UserID: "@amit:example.org"}, input: "/whoami", keepGoing: true, contains: "(guest)"},
		{name: "config", input: "/config", keepGoing: true, contains: "gpt-4o-mini"},
		{name: "keys", input: "/keys", keepGoing: true, contains: "/forgetme"},
		{name: "bot command", input: "/remember", keepGoing: true, contains: "Usage: /remember <user_id>"},
		{name: "guest remember", opts: Options{UserID: "@amit:example.org"}, input: "/remember x", keepGoing: true, contains: "not allowed"},
		{name: "unknown", input: "/dance", keepGoing: true, contains: "I don't know /dance yet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, out, _ := newTestREPL(t, tt.opts)
			if got := r.Process(context.Background(), tt.input); got != tt.keepGoing {
				t.Errorf("Process(%q) = %v, want %v", tt.input, got, tt.keepGoing)
			}
			if !strings.Contains(out.String(), tt.contains) {
				t.Errorf("output %q does not contain %q", out.String(), tt.contains)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "milliseconds", duration: 850 * time.Millisecond, expected: "850ms"},
		{name: "seconds", duration: 1200 * time.Millisecond, expected: "1.2s"},
		{name: "minutes", duration: 125 * time.Second, expected: "2m5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatDuration(tt.duration); got != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestCommandSuggestions(t *testing.T) {
	suggestions := commandSuggestions()
	if len(suggestions) == 0 {
		t.Fatal("commandSuggestions should return suggestions")
	}

	found := make(map[string]bool)
	for _, s := range suggestions {
		found[s.Text] = true
		if s.Description == "" {
			t.Errorf("Suggestion '%s' has empty description", s.Text)
		}
	}
	for _, cmd := range []string{"/start", "/help", "/mood", "/forgetme", "/remember", "/exit"} {
		if !found[cmd] {
			t.Errorf("Expected command '%s' in suggestions", cmd)
		}
	}

	if newCompleter([]string{"shy"}) == nil {
		t.Error("newCompleter should not return nil")
	}
}
