package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hession/shreya/internal/chance"
	"github.com/hession/shreya/internal/config"
	"github.com/hession/shreya/internal/llm"
	"github.com/hession/shreya/internal/logger"
	"github.com/hession/shreya/internal/memory"
	"github.com/hession/shreya/internal/metrics"
	"github.com/hession/shreya/internal/persona"
	"github.com/hession/shreya/internal/safety"
)

// Request is one inbound message from any front-end
type Request struct {
	UserID      string
	DisplayName string
	Text        string
	Privileged  bool   // set by the adapter, normally from IsOwner
	Source      string // front-end name, used for metrics
}

// Response is the reply to deliver
type Response struct {
	Reply   string
	Mood    string
	Blocked bool
	Role    persona.Role
}

// Agent conversation core shared by every front-end
type Agent struct {
	config      *config.Config
	persona     *config.PersonaConfig
	gate        *safety.Gate
	moods       *memory.Moods
	transcripts *memory.Transcripts
	builder     *persona.Builder
	invoker     *llm.Invoker
	rand        chance.Source
	metrics     *metrics.Metrics
	locks       *userLocks
}

// Option agent configuration option
type Option func(*Agent)

// WithRandom sets the random source for moods, nicknames and fillers
func WithRandom(src chance.Source) Option {
	return func(a *Agent) {
		a.rand = src
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// New creates a new Agent instance
func New(cfg *config.Config, personaCfg *config.PersonaConfig, store memory.Store, invoker *llm.Invoker, opts ...Option) (*Agent, error) {
	gate, err := safety.NewGate(cfg.Safety.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build safety gate: %w", err)
	}

	agent := &Agent{
		config:  cfg,
		persona: personaCfg,
		gate:    gate,
		invoker: invoker,
		rand:    chance.Default(),
		locks:   newUserLocks(),
	}

	// Apply options
	for _, opt := range opts {
		opt(agent)
	}

	agent.moods = memory.NewMoods(store, personaCfg.Moods, agent.rand)
	agent.transcripts = memory.NewTranscripts(store)
	agent.builder = persona.NewBuilder(persona.Profile{
		BotName:      personaCfg.BotName,
		OwnerHandle:  cfg.Owner.Handle,
		OwnerContact: cfg.Owner.Contact,
		OwnerPersona: personaCfg.OwnerPersona,
		GuestPersona: personaCfg.GuestPersona,
	}, persona.Budgets{
		Owner: cfg.Model.OwnerMaxTokens,
		Guest: cfg.Model.GuestMaxTokens,
	})

	return agent, nil
}

// IsOwner reports whether id is the configured owner
func (a *Agent) IsOwner(id string) bool {
	return id != "" && id == a.config.Owner.ID
}

// OwnerID returns the configured owner id
func (a *Agent) OwnerID() string {
	return a.config.Owner.ID
}

// Persona returns the persona configuration
func (a *Agent) Persona() *config.PersonaConfig {
	return a.persona
}

// Owner returns the owner identity
func (a *Agent) Owner() config.OwnerConfig {
	return a.config.Owner
}

// MoodOptions returns the mood enumeration
func (a *Agent) MoodOptions() []string {
	return a.moods.Options()
}

// Nickname samples an owner nickname
func (a *Agent) Nickname() string {
	return chance.Pick(a.rand, a.persona.Nicknames)
}

// HandleMessage runs one message through gate, state, prompt, completion and persistence.
// On a persist failure the reply is still returned together with the error.
func (a *Agent) HandleMessage(ctx context.Context, req Request) (Response, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Response{}, ErrEmptyMessage
	}

	role := persona.RoleGuest
	ceiling := a.config.Memory.GuestCeiling
	if req.Privileged {
		role = persona.RoleOwner
		ceiling = a.config.Memory.OwnerCeiling
	}

	verdict := a.gate.Evaluate(text)
	if !verdict.Allowed {
		logger.Info("Blocked message from %s (class=%s)", req.UserID, verdict.Class)
		if a.metrics != nil {
			a.metrics.Blocked.WithLabelValues(string(verdict.Class)).Inc()
		}
		return Response{Reply: verdict.Refusal, Blocked: true, Role: role}, nil
	}

	unlock := a.locks.lock(req.UserID)
	defer unlock()

	mem, err := a.transcripts.Get(ctx, req.UserID)
	if err != nil {
		logger.Warn("Failed to load memory for %s, starting empty: %v", req.UserID, err)
		mem = ""
	}
	mood, assigned, err := a.moods.AssignDefaultIfAbsent(ctx, req.UserID)
	if err != nil {
		mood = chance.Pick(a.rand, a.moods.Options())
		logger.Warn("Failed to load mood for %s, using %s: %v", req.UserID, mood, err)
	} else if assigned {
		logger.Debug("Assigned mood %s to %s", mood, req.UserID)
	}

	in := persona.Input{
		Role:        role,
		DisplayName: req.DisplayName,
		Text:        text,
		Memory:      mem,
		Mood:        mood,
	}
	if role == persona.RoleOwner {
		in.Nickname = a.Nickname()
		if in.DisplayName == "" {
			in.DisplayName = a.config.Owner.Name
		}
	}
	prompt := a.builder.Build(in)

	reply, ok := a.invoker.Complete(ctx, prompt, a.builder.Budget(role), a.config.Model.Temperature)
	if ok && role == persona.RoleGuest && chance.Roll(a.rand, a.persona.FillerChance) {
		reply = chance.Pick(a.rand, a.persona.Fillers) + reply
	}

	resp := Response{Reply: reply, Mood: mood, Role: role}

	if _, err := a.transcripts.AppendTurn(ctx, req.UserID, text, reply, ceiling); err != nil {
		logger.Error("Failed to persist turn for %s: %v", req.UserID, err)
		return resp, fmt.Errorf("failed to persist turn: %w", err)
	}

	if a.metrics != nil {
		a.metrics.Turns.WithLabelValues(string(role), sourceLabel(req.Source)).Inc()
	}
	return resp, nil
}

// Mood returns the caller's mood, assigning one if absent. assigned reports a new assignment.
func (a *Agent) Mood(ctx context.Context, id string) (mood string, assigned bool, err error) {
	unlock := a.locks.lock(id)
	defer unlock()

	mood, assigned, err = a.moods.AssignDefaultIfAbsent(ctx, id)
	if err != nil {
		return "", false, fmt.Errorf("failed to get mood: %w", err)
	}
	return mood, assigned, nil
}

// SetMood sets the caller's mood. Only the owner may do this.
func (a *Agent) SetMood(ctx context.Context, id string, privileged bool, mood string) error {
	if !privileged {
		return ErrUnauthorized
	}

	unlock := a.locks.lock(id)
	defer unlock()

	if err := a.moods.Set(ctx, id, mood); err != nil {
		return err
	}
	logger.Info("Mood for %s set to %s", id, strings.ToLower(strings.TrimSpace(mood)))
	return nil
}

// Forget deletes the caller's whole record
func (a *Agent) Forget(ctx context.Context, id string) error {
	unlock := a.locks.lock(id)
	defer unlock()

	if err := a.transcripts.Clear(ctx, id); err != nil {
		return fmt.Errorf("failed to forget %s: %w", id, err)
	}
	logger.Info("Cleared memory for %s", id)
	return nil
}

// Remember returns another user's transcript. Only the owner may do this.
// found is false when no record exists.
func (a *Agent) Remember(ctx context.Context, privileged bool, targetID string) (transcript string, found bool, err error) {
	if !privileged {
		return "", false, ErrUnauthorized
	}

	unlock := a.locks.lock(targetID)
	defer unlock()

	transcript, found, err = a.transcripts.Lookup(ctx, targetID)
	if err != nil {
		return "", false, fmt.Errorf("failed to read memory for %s: %w", targetID, err)
	}
	return transcript, found, nil
}

func sourceLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
