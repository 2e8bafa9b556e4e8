// Package config loads the aura client configuration from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/RichardoC/aura/internal/db"
	"github.com/RichardoC/aura/internal/models"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	ModeHTTP = "http"
	ModeLLM  = "llm"
)

type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Storage StorageConfig `yaml:"storage"`
	Chat    ChatConfig    `yaml:"chat"`
	Events  EventsConfig  `yaml:"events"`
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig selects where messages are answered.
type BackendConfig struct {
	Mode      string `yaml:"mode"` // http, llm
	BaseURL   string `yaml:"base_url"`
	ClearPath string `yaml:"clear_path"`
	// Timeout bounds a single request. "0" disables it.
	Timeout string `yaml:"timeout"`

	// Profiles override the built-in endpoint and reply-field mapping per chat kind.
	Profiles map[models.Kind]ProfileConfig `yaml:"profiles"`

	LLM LLMConfig `yaml:"llm"`
}

type ProfileConfig struct {
	TextPath    string   `yaml:"text_path"`
	UploadPath  string   `yaml:"upload_path"`
	ReplyFields []string `yaml:"reply_fields"`
}

// LLMConfig is used when Mode is "llm".
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type StorageConfig struct {
	Driver           string `yaml:"driver"` // sqlite3, sqlite, bolt, badger, memory
	Path             string `yaml:"path"`
	MaxConversations int    `yaml:"max_conversations"`
	MaxMessages      int    `yaml:"max_messages"`
	MaxRecentFiles   int    `yaml:"max_recent_files"`
}

type ChatConfig struct {
	HistoryTurns int `yaml:"history_turns"`
}

// EventsConfig enables publishing transcript entries on an in-process message bus.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Mode:      ModeHTTP,
			BaseURL:   "http://localhost:5000",
			ClearPath: "/api/chat/clear",
			Timeout:   "60s",
			LLM: LLMConfig{
				BaseURL: "http://localhost:11434/v1/",
				Model:   "llama3.1:8b",
			},
		},
		Storage: StorageConfig{
			Driver:           db.DriverSQLite,
			Path:             filepath.Join("data", "aura.db"),
			MaxConversations: 100,
			MaxMessages:      200,
			MaxRecentFiles:   50,
		},
		Chat: ChatConfig{
			HistoryTurns: 10,
		},
		Events: EventsConfig{
			Topic: "chat.transcript",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults. Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AURA_BACKEND_MODE"); v != "" {
		c.Backend.Mode = v
	}
	if v := os.Getenv("AURA_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("AURA_TIMEOUT"); v != "" {
		c.Backend.Timeout = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Backend.LLM.APIKey = v
	}
	if v := os.Getenv("AURA_LLM_API_KEY"); v != "" {
		c.Backend.LLM.APIKey = v
	}
	if v := os.Getenv("AURA_LLM_BASE_URL"); v != "" {
		c.Backend.LLM.BaseURL = v
	}
	if v := os.Getenv("AURA_LLM_MODEL"); v != "" {
		c.Backend.LLM.Model = v
	}

	if v := os.Getenv("AURA_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("AURA_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("AURA_HISTORY_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chat.HistoryTurns = n
		}
	}

	if v := os.Getenv("AURA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// GetTimeout returns the request timeout. Zero means no deadline.
func (c *Config) GetTimeout() time.Duration {
	if c.Backend.Timeout == "" || c.Backend.Timeout == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.Backend.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

var ValidDrivers = []string{db.DriverSQLite, db.DriverPureSQLite, db.DriverBolt, db.DriverBadger, db.DriverMemory}

func (c *Config) Validate() error {
	switch c.Backend.Mode {
	case ModeHTTP:
		if c.Backend.BaseURL == "" {
			return fmt.Errorf("backend base_url is required in %s mode (set AURA_BACKEND_URL)", ModeHTTP)
		}
	case ModeLLM:
		if c.Backend.LLM.BaseURL == "" || c.Backend.LLM.Model == "" {
			return fmt.Errorf("backend.llm base_url and model are required in %s mode", ModeLLM)
		}
	default:
		return fmt.Errorf("invalid backend mode: %s (valid: %s, %s)", c.Backend.Mode, ModeHTTP, ModeLLM)
	}

	if t := c.Backend.Timeout; t != "" && t != "0" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid backend timeout %q: %w", t, err)
		}
		if d < 0 {
			return fmt.Errorf("backend timeout must not be negative, got %s", t)
		}
	}

	for kind := range c.Backend.Profiles {
		if !kind.Valid() {
			return fmt.Errorf("profile for unknown chat kind %q", kind)
		}
	}

	validDriver := false
	for _, d := range ValidDrivers {
		if c.Storage.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, ValidDrivers)
	}
	if c.Storage.Driver != db.DriverMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required for driver %s", c.Storage.Driver)
	}
	if c.Storage.MaxConversations < 0 || c.Storage.MaxMessages < 0 || c.Storage.MaxRecentFiles < 0 {
		return fmt.Errorf("storage limits must not be negative")
	}

	if c.Chat.HistoryTurns < 0 {
		return fmt.Errorf("chat history_turns must not be negative, got %d", c.Chat.HistoryTurns)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}

	return nil
}
