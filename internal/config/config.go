// Package config handles Heirloom configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/heirloom/config.yaml, /etc/heirloom/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "heirloom", "config.yaml"))
	}

	paths = append(paths, "/etc/heirloom/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Heirloom configuration.
type Config struct {
	Listen        ListenConfig        `yaml:"listen"`
	Database      DatabaseConfig      `yaml:"database"`
	Conversations ConversationsConfig `yaml:"conversations"`
	LLM           LLMConfig           `yaml:"llm"`
	Chat          ChatConfig          `yaml:"chat"`

	// RulesFile points at a legacy rules book. Empty uses the built-in
	// rules compiled into the binary.
	RulesFile string `yaml:"rules_file"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DatabaseConfig selects the SQLite driver and file holding legacy data,
// conversations and usage records.
type DatabaseConfig struct {
	// Driver is "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo).
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// ConversationsConfig defines where chat transcripts live.
type ConversationsConfig struct {
	// Backend is "sqlite" (shares the database above) or "mongo".
	Backend       string      `yaml:"backend"`
	HistoryWindow int         `yaml:"history_window"`
	Mongo         MongoConfig `yaml:"mongo"`
}

// MongoConfig defines the MongoDB connection for the mongo backend.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// LLMConfig defines the inference endpoint and turn-loop limits.
type LLMConfig struct {
	Provider  string          `yaml:"provider"` // anthropic or gemini
	Model     string          `yaml:"model"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini"`

	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRounds      int           `yaml:"max_rounds"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig defines Google Gemini API settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
}

// ChatConfig bounds what callers may send.
type ChatConfig struct {
	MaxMessageChars int `yaml:"max_message_chars"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded before parsing, and unset fields take the
// values from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./data/heirloom.db",
		},
		Conversations: ConversationsConfig{
			Backend:       "sqlite",
			HistoryWindow: 20,
			Mongo:         MongoConfig{Database: "heirloom"},
		},
		LLM: LLMConfig{
			Provider:       "anthropic",
			Model:          "claude-sonnet-4-20250514",
			MaxTokens:      1024,
			Temperature:    0.7,
			RequestTimeout: 60 * time.Second,
			MaxRounds:      5,
		},
		Chat: ChatConfig{MaxMessageChars: 8000},
	}
}

// applyDefaults restores defaults for numeric limits a config file
// zeroed out explicitly.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Conversations.HistoryWindow <= 0 {
		c.Conversations.HistoryWindow = d.Conversations.HistoryWindow
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if c.LLM.RequestTimeout <= 0 {
		c.LLM.RequestTimeout = d.LLM.RequestTimeout
	}
	if c.LLM.MaxRounds <= 0 {
		c.LLM.MaxRounds = d.LLM.MaxRounds
	}
	if c.Chat.MaxMessageChars <= 0 {
		c.Chat.MaxMessageChars = d.Chat.MaxMessageChars
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unknown database.driver %q (valid: sqlite, sqlite3)", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Conversations.Backend {
	case "sqlite":
	case "mongo":
		if c.Conversations.Mongo.URI == "" {
			return fmt.Errorf("conversations.mongo.uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown conversations.backend %q (valid: sqlite, mongo)", c.Conversations.Backend)
	}
	switch c.LLM.Provider {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("unknown llm.provider %q (valid: anthropic, gemini)", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature %v out of range [0, 2]", c.LLM.Temperature)
	}
	return nil
}
