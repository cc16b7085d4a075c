// Package config loads VSPilot settings from the environment.
//
// A .env file is honored when present (loaded by cmd/vspilot before Load is
// called). Every knob has a documented default so a bare environment still
// yields a working configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted by VSPILOT_AI_PROVIDER.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderCopilot   = "copilot"
	ProviderAuto      = "auto"
)

// Config holds all runtime settings for the automation core.
type Config struct {
	// AI provider routing
	AIProvider      string // openai | anthropic | copilot | auto
	OpenAIKey       string
	OpenAIModel     string
	AnthropicKey    string
	AnthropicModel  string
	UseCopilot      bool
	AutoSwitch      bool // substitute an available provider when the selected one is not configured
	ContextWindow   int  // most-recent messages included per provider call
	MaxTokens       int
	Temperature     float32
	ProviderRateRPM int // per-provider requests per minute

	// Build orchestration
	MaxRepairAttempts int
	BuildPollInterval time.Duration
	WorkspaceDir      string
	BuildCommand      string
	CleanCommand      string

	// Scheduler
	SchedulerPollInterval time.Duration

	// HTTP surface and persistence
	HTTPAddr string
	DBPath   string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		AIProvider:      strings.ToLower(getEnv("VSPILOT_AI_PROVIDER", ProviderAuto)),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     getEnv("VSPILOT_OPENAI_MODEL", "gpt-4o"),
		AnthropicKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getEnv("VSPILOT_ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		UseCopilot:      getBool("VSPILOT_USE_COPILOT", true),
		AutoSwitch:      getBool("VSPILOT_AUTO_SWITCH", true),
		ContextWindow:   getInt("VSPILOT_CONTEXT_WINDOW", 10),
		MaxTokens:       getInt("VSPILOT_MAX_TOKENS", 2000),
		Temperature:     0.7,
		ProviderRateRPM: getInt("VSPILOT_PROVIDER_RATE_RPM", 100),

		MaxRepairAttempts: getInt("VSPILOT_MAX_REPAIR_ATTEMPTS", 3),
		BuildPollInterval: getDuration("VSPILOT_BUILD_POLL_MS", 100*time.Millisecond),
		WorkspaceDir:      getEnv("VSPILOT_WORKSPACE_DIR", "."),
		BuildCommand:      getEnv("VSPILOT_BUILD_CMD", "go build ./..."),
		CleanCommand:      getEnv("VSPILOT_CLEAN_CMD", "go clean ./..."),

		SchedulerPollInterval: getDuration("VSPILOT_SCHEDULER_POLL_MS", 50*time.Millisecond),

		HTTPAddr: getEnv("VSPILOT_HTTP_ADDR", ":8090"),
		DBPath:   getEnv("VSPILOT_DB_PATH", "vspilot.db"),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// getDuration reads an integer millisecond value.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
