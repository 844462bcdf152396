// Package cli provides the terminal chat front-end
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/hession/shreya/internal/agent"
	"github.com/hession/shreya/internal/commands"
	"github.com/hession/shreya/internal/config"
)

// Source is the front-end name reported to the agent
const Source = "cli"

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// Options selects who the terminal user talks as
type Options struct {
	UserID      string // defaults to the owner
	DisplayName string
}

// REPL is an interactive terminal chat session
type REPL struct {
	agent       *agent.Agent
	commands    *commands.Service
	config      *config.Config
	userID      string
	displayName string
	privileged  bool
	out         io.Writer
}

// New creates a REPL. Without a user ID the session runs as the owner.
func New(a *agent.Agent, svc *commands.Service, cfg *config.Config, opts Options) *REPL {
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		userID = a.OwnerID()
	}
	return &REPL{
		agent:       a,
		commands:    svc,
		config:      cfg,
		userID:      userID,
		displayName: opts.DisplayName,
		privileged:  a.IsOwner(userID),
		out:         os.Stdout,
	}
}

// CommandSuggestion is a completion entry
type CommandSuggestion struct {
	Text        string
	Description string
}

// commandSuggestions lists bot commands followed by the terminal-only ones
func commandSuggestions() []CommandSuggestion {
	return []CommandSuggestion{
		{Text: "/start", Description: "Greeting"},
		{Text: "/help", Description: "Bot help"},
		{Text: "/about", Description: "About the bot"},
		{Text: "/mood", Description: "Show or set the mood"},
		{Text: "/forgetme", Description: "Delete your memory"},
		{Text: "/remember", Description: "Show a user's memory (owner)"},
		{Text: "/whoami", Description: "Show the current identity"},
		{Text: "/config", Description: "Show current configuration"},
		{Text: "/history", Description: "Input history tips"},
		{Text: "/keys", Description: "Terminal tips"},
		{Text: "/exit", Description: "Exit program"},
	}
}

func newCompleter(moodOptions []string) *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commandSuggestions()))
	for _, s := range commandSuggestions() {
		if s.Text == "/mood" {
			moods := make([]readline.PrefixCompleterInterface, 0, len(moodOptions))
			for _, m := range moodOptions {
				moods = append(moods, readline.PcItem(m))
			}
			items = append(items, readline.PcItem(s.Text, moods...))
			continue
		}
		items = append(items, readline.PcItem(s.Text))
	}
	return readline.NewPrefixCompleter(items...)
}

// historyFilePath returns the input history path under the config directory
func historyFilePath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

func (r *REPL) printWelcome() {
	bot := r.agent.Persona().BotName
	fmt.Fprintf(r.out, "\n%s🌸 %s%s\n", colorCyan, bot, colorReset)
	if r.privileged {
		fmt.Fprintf(r.out, "%sChatting as the owner (%s)%s\n", colorGray, r.userID, colorReset)
	} else {
		fmt.Fprintf(r.out, "%sChatting as guest %s%s\n", colorGray, r.userID, colorReset)
	}
	fmt.Fprintf(r.out, "%sType /help for help, /exit to quit%s\n", colorGray, colorReset)
	fmt.Fprintf(r.out, "%sFor multi-line input: end a line with \\, then press Enter twice to submit%s\n\n", colorGray, colorReset)
}

// Run reads lines until /exit, EOF or ctx is cancelled
func (r *REPL) Run(ctx context.Context) error {
	r.printWelcome()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            fmt.Sprintf("%sYou: %s", colorGreen, colorReset),
		HistoryFile:       historyFilePath(),
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		AutoComplete:      newCompleter(r.agent.MoodOptions()),
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	var multiLineBuffer strings.Builder
	inMultiLine := false

	for {
		if inMultiLine {
			rl.SetPrompt(fmt.Sprintf("%s...  %s", colorGray, colorReset))
		} else {
			rl.SetPrompt(fmt.Sprintf("%sYou: %s", colorGreen, colorReset))
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLineBuffer.Reset()
					inMultiLine = false
					fmt.Fprintln(r.out)
					continue
				}
				fmt.Fprintf(r.out, "\n%sPress Ctrl+D or type /exit to quit%s\n", colorYellow, colorReset)
				continue
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				fmt.Fprintf(r.out, "\n%sGoodbye! 👋%s\n", colorCyan, colorReset)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		if inMultiLine {
			if line != "" {
				multiLineBuffer.WriteString(line)
				multiLineBuffer.WriteString("\n")
				continue
			}
			// empty line submits
			inMultiLine = false
			input := strings.TrimSpace(multiLineBuffer.String())
			multiLineBuffer.Reset()
			if input != "" && !r.Process(ctx, input) {
				return nil
			}
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.HasSuffix(input, "\\") {
			inMultiLine = true
			multiLineBuffer.WriteString(strings.TrimSuffix(input, "\\"))
			multiLineBuffer.WriteString("\n")
			fmt.Fprintf(r.out, "%s(Multi-line mode: press Enter twice to submit, Ctrl+C to cancel)%s\n", colorGray, colorReset)
			continue
		}

		if !r.Process(ctx, input) {
			return nil
		}
	}
}

// Process handles one submitted input and reports whether to keep going
func (r *REPL) Process(ctx context.Context, input string) bool {
	if r.commands.IsCommand(input) {
		if handled, keepGoing := r.handleLocalCommand(input); handled {
			return keepGoing
		}
		reply, err := r.commands.Handle(ctx, input, r.caller())
		if err != nil {
			fmt.Fprintf(r.out, "%s❌ Error: %v%s\n", colorRed, err, colorReset)
			return true
		}
		r.printReply(reply, 0)
		return true
	}

	start := time.Now()
	resp, err := r.agent.HandleMessage(ctx, agent.Request{
		UserID:      r.userID,
		DisplayName: r.displayName,
		Text:        input,
		Privileged:  r.privileged,
		Source:      Source,
	})
	if err != nil && resp.Reply == "" {
		fmt.Fprintf(r.out, "%s❌ Error: %v%s\n", colorRed, err, colorReset)
		return true
	}
	r.printReply(resp.Reply, time.Since(start))
	if err != nil {
		fmt.Fprintf(r.out, "%s⚠️  %v%s\n", colorYellow, err, colorReset)
	}
	return true
}

func (r *REPL) caller() commands.Caller {
	return commands.Caller{
		UserID:      r.userID,
		DisplayName: r.displayName,
		Privileged:  r.privileged,
	}
}

func (r *REPL) printReply(reply string, took time.Duration) {
	fmt.Fprintf(r.out, "\n%s%s: %s%s\n", colorBlue, r.agent.Persona().BotName, colorReset, reply)
	if took > 0 {
		fmt.Fprintf(r.out, "%s(%s)%s\n", colorGray, formatDuration(took), colorReset)
	}
	fmt.Fprintln(r.out)
}

// handleLocalCommand runs terminal-only commands. handled is false for bot
// commands.
func (r *REPL) handleLocalCommand(input string) (handled, keepGoing bool) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return false, true
	}

	switch strings.ToLower(parts[0]) {
	case "/exit", "/quit", "/q":
		fmt.Fprintf(r.out, "%sGoodbye! 👋%s\n", colorCyan, colorReset)
		return true, false

	case "/config":
		fmt.Fprintln(r.out, r.config.String())
		return true, true

	case "/whoami":
		role := "guest"
		if r.privileged {
			role = "owner"
		}
		fmt.Fprintf(r.out, "%s%s (%s)%s\n", colorGray, r.userID, role, colorReset)
		return true, true

	case "/keys":
		r.printKeys()
		return true, true

	case "/history":
		if len(parts) > 1 && parts[1] == "clear" {
			if historyFile := historyFilePath(); historyFile != "" {
				if err := os.WriteFile(historyFile, []byte{}, 0644); err != nil {
					fmt.Fprintf(r.out, "%s❌ Failed to clear history: %v%s\n", colorRed, err, colorReset)
				} else {
					fmt.Fprintf(r.out, "%s✅ Command history cleared%s\n", colorGreen, colorReset)
				}
			}
		} else {
			fmt.Fprintf(r.out, "%sUse Up/Down arrow keys to browse command history%s\n", colorGray, colorReset)
			fmt.Fprintf(r.out, "%sUse /history clear to clear history%s\n", colorGray, colorReset)
		}
		return true, true
	}
	return false, true
}

func (r *REPL) printKeys() {
	fmt.Fprintf(r.out, `
%sTerminal Commands:%s
`, colorYellow, colorReset)
	for _, s := range commandSuggestions() {
		fmt.Fprintf(r.out, "  %-12s - %s\n", s.Text, s.Description)
	}
	fmt.Fprintf(r.out, `
%sInput Tips:%s
  • Use Tab to complete commands
  • Use Up/Down arrow keys to browse command history
  • Use Ctrl+A/Ctrl+E to jump to start/end of line
  • End line with \ for multi-line input
  • Press Enter twice to submit in multi-line mode
  • Press Ctrl+C to cancel current input

`, colorYellow, colorReset)
}

// formatDuration renders reply latency as "850ms", "1.2s" or "2m5s"
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
