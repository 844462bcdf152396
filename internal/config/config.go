package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hession/shreya/internal/memory"
	"github.com/hession/shreya/internal/safety"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		// Default to ./config in current working directory
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Config application configuration structure
type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Owner  OwnerConfig  `yaml:"owner"`
	Memory MemoryConfig `yaml:"memory"`
	Matrix MatrixConfig `yaml:"matrix"`
	Web    WebConfig    `yaml:"web"`
	Log    LogConfig    `yaml:"log"`
	Safety SafetyConfig `yaml:"safety"`
}

// ModelConfig completion provider configuration
type ModelConfig struct {
	APIKey         string  `yaml:"api_key,omitempty"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	OwnerMaxTokens int     `yaml:"owner_max_tokens"`
	GuestMaxTokens int     `yaml:"guest_max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// OwnerConfig identifies the single privileged user
type OwnerConfig struct {
	ID      string `yaml:"id"`      // user id the owner is stored under, e.g. @rahul:matrix.org
	Handle  string `yaml:"handle"`  // handle without "@", used in the owner persona
	Contact string `yaml:"contact"` // free-form contact line, used in the owner persona
	Name    string `yaml:"name"`    // display name for the web and console front-ends
}

// MemoryConfig memory storage configuration
type MemoryConfig struct {
	Driver       string `yaml:"driver"` // sqlite, postgres or memory
	DBPath       string `yaml:"db_path"`
	DatabaseURL  string `yaml:"database_url,omitempty"`
	OwnerCeiling int    `yaml:"owner_ceiling"`
	GuestCeiling int    `yaml:"guest_ceiling"`
}

// MatrixConfig messaging bot configuration
type MatrixConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token,omitempty"`
	Rooms       []string `yaml:"rooms"`
}

// WebConfig web front-end configuration
type WebConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Addr              string `yaml:"addr"`
	Password          string `yaml:"password,omitempty"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level   string `yaml:"level"`
	Dir     string `yaml:"dir"` // empty means <config dir>/logs
	MaxDays int    `yaml:"max_days"`
	Console bool   `yaml:"console"`
}

// SafetyConfig safety gate configuration. Empty rules use the built-in table.
type SafetyConfig struct {
	Rules []safety.Rule `yaml:"rules,omitempty"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Model: ModelConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Temperature:    0.9,
			OwnerMaxTokens: 500,
			GuestMaxTokens: 200,
			TimeoutSeconds: 30,
		},
		Owner: OwnerConfig{
			ID:   "owner",
			Name: "love",
		},
		Memory: MemoryConfig{
			Driver:       memory.DriverSQLite,
			DBPath:       filepath.Join(homeDir, ".shreya", "memory.db"),
			OwnerCeiling: 8000,
			GuestCeiling: 2800,
		},
		Web: WebConfig{
			Enabled:           true,
			Addr:              ":5000",
			SessionTTLMinutes: 12 * 60,
		},
		Log: LogConfig{
			Level:   "info",
			MaxDays: 7,
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func LogDir() string {
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file and merges with secrets and environment
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create default config without secrets
		cfg := DefaultConfig()
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		mergeSecrets(cfg)
		applyEnv(cfg, os.LookupEnv)
		return cfg, cfg.Validate()
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse config
	cfg := DefaultConfig() // Use default values as base
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeSecrets(cfg)
	applyEnv(cfg, os.LookupEnv)

	// Validate config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeSecrets fills secret fields left empty in config.yaml from .secrets
func mergeSecrets(cfg *Config) {
	secrets, _ := LoadSecrets()
	if secrets == nil {
		return
	}
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = secrets.Get(key)
		}
	}
	fill(&cfg.Model.APIKey, KeyOpenAIAPIKey)
	fill(&cfg.Matrix.AccessToken, KeyMatrixAccessToken)
	fill(&cfg.Web.Password, KeyWebPassword)
	fill(&cfg.Memory.DatabaseURL, KeyDatabaseURL)
}

// applyEnv overrides config values from the process environment
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Model.APIKey, KeyOpenAIAPIKey)
	set(&cfg.Model.Model, "MODEL_NAME")
	set(&cfg.Matrix.AccessToken, KeyMatrixAccessToken)
	set(&cfg.Web.Password, KeyWebPassword)
	set(&cfg.Memory.DatabaseURL, KeyDatabaseURL)
	set(&cfg.Owner.ID, "OWNER_ID")
	set(&cfg.Owner.Handle, "OWNER_HANDLE")
	set(&cfg.Owner.Contact, "OWNER_CONTACT")
}

// Save saves configuration to file
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure config directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Serialize config
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	// Add header comment
	content := "# Shreya Configuration File\n# Secrets belong in .secrets or the environment, not here.\n\n" + string(data)

	// Write file
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate model config
	if c.Model.BaseURL == "" {
		return fmt.Errorf("config error: model.base_url cannot be empty")
	}
	if c.Model.Model == "" {
		return fmt.Errorf("config error: model.model cannot be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("config error: model.temperature must be between 0 and 2")
	}
	if c.Model.GuestMaxTokens <= 0 {
		return fmt.Errorf("config error: model.guest_max_tokens must be greater than 0")
	}
	if c.Model.OwnerMaxTokens < c.Model.GuestMaxTokens {
		return fmt.Errorf("config error: model.owner_max_tokens must be at least model.guest_max_tokens")
	}
	if c.Model.TimeoutSeconds <= 0 {
		return fmt.Errorf("config error: model.timeout_seconds must be greater than 0")
	}

	if strings.TrimSpace(c.Owner.ID) == "" {
		return fmt.Errorf("config error: owner.id cannot be empty")
	}

	// Validate memory config
	switch strings.ToLower(strings.TrimSpace(c.Memory.Driver)) {
	case "", memory.DriverSQLite:
		if c.Memory.DBPath == "" {
			return fmt.Errorf("config error: memory.db_path cannot be empty")
		}
	case memory.DriverPostgres:
		if c.Memory.DatabaseURL == "" {
			return fmt.Errorf("config error: memory.database_url (or %s) is required for the postgres driver", KeyDatabaseURL)
		}
	case memory.DriverMemory:
	default:
		return fmt.Errorf("config error: unknown memory.driver %q", c.Memory.Driver)
	}
	if c.Memory.GuestCeiling <= 0 {
		return fmt.Errorf("config error: memory.guest_ceiling must be greater than 0")
	}
	if c.Memory.OwnerCeiling <= c.Memory.GuestCeiling {
		return fmt.Errorf("config error: memory.owner_ceiling must be greater than memory.guest_ceiling")
	}

	if c.Web.Enabled && c.Web.SessionTTLMinutes <= 0 {
		return fmt.Errorf("config error: web.session_ttl_minutes must be greater than 0")
	}

	if len(c.Safety.Rules) > 0 {
		if err := safety.ValidateRules(c.Safety.Rules); err != nil {
			return fmt.Errorf("config error: safety.rules: %w", err)
		}
	}

	return nil
}

// ValidateServe checks what the long-running server needs beyond Validate
func (c *Config) ValidateServe() error {
	if !c.IsAPIKeyConfigured() {
		return fmt.Errorf("config error: set %s in the environment or .secrets", KeyOpenAIAPIKey)
	}
	if c.Web.Enabled && c.Web.Password == "" {
		return fmt.Errorf("config error: set %s to secure the web interface", KeyWebPassword)
	}
	if c.Matrix.Enabled {
		if c.Matrix.Homeserver == "" || c.Matrix.UserID == "" {
			return fmt.Errorf("config error: matrix.homeserver and matrix.user_id are required when matrix is enabled")
		}
		if c.Matrix.AccessToken == "" {
			return fmt.Errorf("config error: set %s when matrix is enabled", KeyMatrixAccessToken)
		}
	}
	if !c.Web.Enabled && !c.Matrix.Enabled {
		return fmt.Errorf("config error: enable at least one of web or matrix")
	}
	return nil
}

// IsAPIKeyConfigured checks if API key is configured
func (c *Config) IsAPIKeyConfigured() bool {
	return c.Model.APIKey != ""
}

// ProviderTimeout returns the completion call timeout
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}

// SessionTTL returns the web session lifetime
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Web.SessionTTLMinutes) * time.Minute
}

// ResolvedLogDir returns log.dir, or the default under the config directory
func (c *Config) ResolvedLogDir() string {
	if c.Log.Dir != "" {
		return c.Log.Dir
	}
	return LogDir()
}

// MemoryOptions converts the memory section into store factory options
func (c *Config) MemoryOptions() memory.Options {
	return memory.Options{
		Driver:      c.Memory.Driver,
		DBPath:      c.Memory.DBPath,
		DatabaseURL: c.Memory.DatabaseURL,
	}
}

// String returns string representation of config (hides sensitive info)
func (c *Config) String() string {
	rules := "built-in"
	if len(c.Safety.Rules) > 0 {
		rules = fmt.Sprintf("%d custom", len(c.Safety.Rules))
	}

	return fmt.Sprintf(`Shreya Configuration:
  Model:
    API Key: %s
    Base URL: %s
    Model: %s
    Temperature: %.2f
    Max Tokens: owner %d, guest %d
    Timeout Seconds: %d
  Owner:
    ID: %s
    Handle: %s
  Memory:
    Driver: %s
    DB Path: %s
    Database URL: %s
    Ceilings: owner %d, guest %d
  Matrix:
    Enabled: %v
    Homeserver: %s
    User ID: %s
    Access Token: %s
    Rooms: %s
  Web:
    Enabled: %v
    Addr: %s
    Password: %s
    Session TTL Minutes: %d
  Log:
    Level: %s
    Dir: %s
  Safety Rules: %s`,
		redactAPIKey(c.Model.APIKey),
		c.Model.BaseURL,
		c.Model.Model,
		c.Model.Temperature,
		c.Model.OwnerMaxTokens,
		c.Model.GuestMaxTokens,
		c.Model.TimeoutSeconds,
		c.Owner.ID,
		c.Owner.Handle,
		c.Memory.Driver,
		c.Memory.DBPath,
		redactSecret(c.Memory.DatabaseURL),
		c.Memory.OwnerCeiling,
		c.Memory.GuestCeiling,
		c.Matrix.Enabled,
		c.Matrix.Homeserver,
		c.Matrix.UserID,
		redactSecret(c.Matrix.AccessToken),
		strings.Join(c.Matrix.Rooms, ", "),
		c.Web.Enabled,
		c.Web.Addr,
		redactSecret(c.Web.Password),
		c.Web.SessionTTLMinutes,
		c.Log.Level,
		c.ResolvedLogDir(),
		rules,
	)
}

func redactAPIKey(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..."
	}
	return "***"
}

func redactSecret(value string) string {
	if value == "" {
		return "(not configured)"
	}
	return "***"
}
