package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hession/shreya/internal/agent"
	"github.com/hession/shreya/internal/commands"
	"github.com/hession/shreya/internal/config"
	"github.com/hession/shreya/internal/llm"
	"github.com/hession/shreya/internal/logger"
	"github.com/hession/shreya/internal/memory"
	"github.com/hession/shreya/internal/metrics"
)

// app holds the wired process-wide components
type app struct {
	config   *config.Config
	persona  *config.PersonaConfig
	store    memory.Store
	metrics  *metrics.Metrics
	agent    *agent.Agent
	commands *commands.Service
}

// loadConfig loads config.yaml and persona.yaml from the config directory
func loadConfig() (*config.Config, *config.PersonaConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	persona, err := config.LoadPersonaConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load persona: %w", err)
	}
	return cfg, persona, nil
}

// initLogger starts the file logger. console echoes log lines to stderr.
func initLogger(cfg *config.Config, console bool) error {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	return logger.Init(logger.Config{
		LogDir:     cfg.ResolvedLogDir(),
		Prefix:     "shreya",
		Level:      level,
		MaxDays:    cfg.Log.MaxDays,
		ConsoleOut: console,
	})
}

func newApp(ctx context.Context, cfg *config.Config, persona *config.PersonaConfig) (*app, error) {
	store, err := memory.NewStore(ctx, cfg.MemoryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory store: %w", err)
	}

	m := metrics.New("shreya")
	client := llm.New(llm.Options{
		APIKey:  cfg.Model.APIKey,
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Model,
	})
	invoker := llm.NewInvoker(client, persona.Fallback, cfg.ProviderTimeout(), m)

	a, err := agent.New(cfg, persona, store, invoker, agent.WithMetrics(m))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize agent: %w", err)
	}

	logger.Info("Agent ready: model=%s driver=%s owner=%s", client.Model(), cfg.Memory.Driver, cfg.Owner.ID)
	return &app{
		config:   cfg,
		persona:  persona,
		store:    store,
		metrics:  m,
		agent:    a,
		commands: commands.NewService(a, m),
	}, nil
}

// syncDB returns the SQLite handle for the Matrix sync store, or nil for
// other backends
func (a *app) syncDB() *sql.DB {
	if s, ok := a.store.(*memory.SQLiteStore); ok {
		return s.DB()
	}
	return nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close memory store: %v", err)
	}
}
