// Package config provides configuration infrastructure and Fx modules.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GeminiConfig stores Gemini Live API specific configurations.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	Voice  string `yaml:"voice"`
}

// OpenAIConfig stores OpenAI Realtime API specific configurations.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	Voice  string `yaml:"voice"`
}

// LiveConfig stores the conversation session configurations.
type LiveConfig struct {
	// Provider selects the realtime backend: "gemini" or "openai".
	Provider string `yaml:"provider"`

	// Instructions is the system persona the model speaks with.
	Instructions string `yaml:"instructions"`

	// LeadTimeMS delays the first audible chunk of each model turn.
	LeadTimeMS int `yaml:"lead_time_ms"`

	// Transcription enables speech-to-text for both speakers.
	Transcription bool `yaml:"transcription"`

	// HistorySize bounds the in-memory archive of finished sessions.
	HistorySize int `yaml:"history_size"`

	// MaxSessionLengthMin force-ends sessions that run too long.
	// Zero means unlimited.
	MaxSessionLengthMin int `yaml:"max_session_length_min"`
}

// Config stores the application configuration.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Gemini   GeminiConfig `yaml:"gemini"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Live     LiveConfig   `yaml:"live"`
}

// LoadConfig loads the configuration from the given file path.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err = cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Live.Provider {
	case "", "gemini", "openai":
	default:
		return fmt.Errorf("unknown live provider %q", c.Live.Provider)
	}
	if c.Live.LeadTimeMS < 0 {
		return fmt.Errorf("lead_time_ms must not be negative")
	}
	if c.Live.MaxSessionLengthMin < 0 {
		return fmt.Errorf("max_session_length_min must not be negative")
	}

	return nil
}
