package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/hession/shreya/internal/agent"
	"github.com/hession/shreya/internal/config"
	"github.com/hession/shreya/internal/logger"
	"github.com/hession/shreya/internal/memory"
	"github.com/hession/shreya/internal/metrics"
)

// Prefix is the command prefix on every front-end
const Prefix = "/"

// Service answers the bot commands on top of the agent
type Service struct {
	router  *Router
	agent   *agent.Agent
	persona *config.PersonaConfig
	owner   config.OwnerConfig
	metrics *metrics.Metrics
}

// NewService creates the command service and registers every handler. m may be nil.
func NewService(a *agent.Agent, m *metrics.Metrics) *Service {
	s := &Service{
		router:  NewRouter(Prefix),
		agent:   a,
		persona: a.Persona(),
		owner:   a.Owner(),
		metrics: m,
	}

	s.router.Register("start", s.handleStart)
	s.router.Register("help", s.handleHelp)
	s.router.Register("about", s.handleAbout)
	s.router.Register("mood", s.handleMood)
	s.router.Register("forgetme", s.handleForget)
	s.router.Register("remember", s.handleRemember)

	return s
}

// IsCommand reports whether text should be handled as a command
func (s *Service) IsCommand(text string) bool {
	return s.router.IsCommand(text)
}

// Handle runs a command and returns the reply. Expected refusals are replies,
// not errors; errors are left for the storage layer.
func (s *Service) Handle(ctx context.Context, text string, caller Caller) (string, error) {
	cmd, err := s.router.Parse(text)
	if errors.Is(err, ErrNotACommand) {
		return "", err
	}
	if err != nil {
		// bare prefix
		return s.render(s.persona.Replies.Unknown, "command", ""), nil
	}

	name := cmd.Name
	if _, ok := s.router.handlers[name]; !ok {
		name = "unknown"
	}
	if s.metrics != nil {
		s.metrics.Commands.WithLabelValues(name).Inc()
	}

	reply, err := s.router.Route(ctx, text, caller)
	if errors.Is(err, ErrUnknownCommand) {
		return s.render(s.persona.Replies.Unknown, "command", cmd.Name), nil
	}
	if err != nil {
		logger.Error("Command /%s from %s failed: %v", cmd.Name, caller.UserID, err)
		return "", err
	}
	return reply, nil
}

func (s *Service) handleStart(ctx context.Context, cmd *Command, caller Caller) (string, error) {
	if caller.Privileged {
		return s.render(s.persona.Replies.StartOwner, "nickname", s.agent.Nickname()), nil
	}
	name := caller.DisplayName
	if name == "" {
		name = "friend"
	}
	return s.render(s.persona.Replies.StartGuest, "name", name), nil
}

func (s *Service) handleHelp(ctx context.Context, cmd *Command, caller Caller) (string, error) {
	if caller.Privileged {
		return s.render(s.persona.Replies.HelpOwner), nil
	}
	return s.render(s.persona.Replies.HelpGuest), nil
}

func (s *Service) handleAbout(ctx context.Context, cmd *Command, caller Caller) (string, error) {
	if caller.Privileged {
		return s.render(s.persona.Replies.AboutOwner), nil
	}
	return s.render(s.persona.Replies.AboutGuest), nil
}

func (s *Service) handleMood(ctx context.Context, cmd *Command, caller Caller) (string, error) {
	wanted, ok := cmd.GetArg(0)
	if !ok {
		mood, assigned, err := s.agent.Mood(ctx, caller.UserID)
		if err != nil {
			return "", err
		}
		if assigned {
			return s.render(s.persona.Replies.MoodAssigned, "mood", mood), nil
		}
		return s.render(s.persona.Replies.MoodCurrent, "mood", mood), nil
	}

	err := s.agent.SetMood(ctx, caller.UserID, caller.Privileged, wanted)
	switch {
	case errors.Is(err, agent.ErrUnauthorized):
		return s.render(s.persona.Replies.MoodDenied), nil
	case errors.Is(err, memory.ErrInvalidMood):
		return s.render(s.persona.Replies.MoodUnknown, "options", strings.Join(s.agent.MoodOptions(), ", ")), nil
	case err != nil:
		return "", err
	}
	return s.render(s.persona.Replies.MoodSet, "mood", strings.ToLower(wanted)), nil
}

func (s *Service) handleForget(ctx context.Context, cmd *Command, caller Caller) (string, error) {
	if err := s.agent.Forget(ctx, caller.UserID); err != nil {
		return "", err
	}
	if caller.Privileged {
		return s.render(s.persona.Replies.ForgetOwner), nil
	}
	return s.render(s.persona.Replies.ForgetGuest), nil
}

func (s *Service) handleRemember(ctx context.Context, cmd *Command, caller Caller) (string, error) {
	if !caller.Privileged {
		return s.render(s.persona.Replies.RememberDenied), nil
	}
	target, ok := cmd.GetArg(0)
	if !ok {
		return s.render(s.persona.Replies.RememberUsage), nil
	}

	transcript, found, err := s.agent.Remember(ctx, caller.Privileged, target)
	if err != nil {
		return "", err
	}
	if !found {
		return s.render(s.persona.Replies.RememberMissing), nil
	}
	if transcript == "" {
		transcript = "(empty)"
	}
	return s.render(s.persona.Replies.RememberFound, "id", target, "memory", transcript), nil
}

// render fills {bot}, {handle} and {contact} plus the given key/value pairs
func (s *Service) render(tmpl string, kv ...string) string {
	pairs := []string{
		"{bot}", s.persona.BotName,
		"{handle}", s.owner.Handle,
		"{contact}", s.owner.Contact,
	}
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Status renders the keep-alive text
func (s *Service) Status() string {
	return s.render(s.persona.Replies.Status)
}
