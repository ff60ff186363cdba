// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	AllowedOrigins []string
	GRPCHealthAddr string
	Model          ModelConfig
	Workspace      WorkspaceConfig
	Tools          ToolConfig
	Submit         SubmitConfig
}

// ModelConfig selects the language model provider.
type ModelConfig struct {
	Provider        string
	Name            string
	MaxTokens       int
	SystemPrompt    string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OllamaURL       string
	Timeout         time.Duration
}

// WorkspaceConfig controls per-run scratch directories.
type WorkspaceConfig struct {
	Root           string
	Keep           bool
	TTL            time.Duration
	NodeModulesDir string
}

// ToolConfig controls how verification tools are executed.
type ToolConfig struct {
	Executor    string // "local" or "docker"
	Image       string
	Timeout     time.Duration
	PrettierCmd string
	TSCCmd      string
	ESLintCmd   string
}

// SubmitConfig limits how fast one connection may submit questions.
type SubmitConfig struct {
	RateLimit  int
	RateWindow time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/codebot.db"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", nil),
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
		Model: ModelConfig{
			Provider:        strings.ToLower(getEnv("MODEL_PROVIDER", "anthropic")),
			Name:            getEnv("MODEL", "claude-3-opus-20240229"),
			MaxTokens:       getEnvInt("MAX_TOKENS", 1024),
			SystemPrompt:    getEnv("SYSTEM_PROMPT", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
			OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
			Timeout:         getEnvDuration("MODEL_TIMEOUT", 2*time.Minute),
		},
		Workspace: WorkspaceConfig{
			Root:           getEnv("WORKSPACE_ROOT", "./data/workspaces"),
			Keep:           getEnvBool("WORKSPACE_KEEP", false),
			TTL:            getEnvDuration("WORKSPACE_TTL", time.Hour),
			NodeModulesDir: getEnv("NODE_MODULES_DIR", ""),
		},
		Tools: ToolConfig{
			Executor:    strings.ToLower(getEnv("TOOL_EXECUTOR", "local")),
			Image:       getEnv("TOOL_IMAGE", "codebot-tools:latest"),
			Timeout:     getEnvDuration("TOOL_TIMEOUT", 60*time.Second),
			PrettierCmd: getEnv("PRETTIER_CMD", "npx prettier --write ."),
			TSCCmd:      getEnv("TSC_CMD", "npx tsc --noEmit -p ."),
			ESLintCmd:   getEnv("ESLINT_CMD", "npx eslint --ext .ts,.tsx ."),
		},
		Submit: SubmitConfig{
			RateLimit:  getEnvInt("SUBMIT_RATE_LIMIT", 10),
			RateWindow: getEnvDuration("SUBMIT_RATE_WINDOW", time.Minute),
		},
	}

	if len(cfg.AllowedOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("MODEL cannot be empty")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("MAX_TOKENS must be > 0")
	}
	switch c.Model.Provider {
	case "anthropic":
		if c.Model.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for MODEL_PROVIDER=anthropic")
		}
	case "openai":
		if c.Model.OpenAIAPIKey == "" && c.Model.OpenAIBaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY or OPENAI_BASE_URL is required for MODEL_PROVIDER=openai")
		}
	case "ollama":
		if c.Model.OllamaURL == "" {
			return fmt.Errorf("OLLAMA_URL cannot be empty for MODEL_PROVIDER=ollama")
		}
	default:
		return fmt.Errorf("MODEL_PROVIDER must be one of anthropic, openai, ollama (got %q)", c.Model.Provider)
	}
	if c.Workspace.Root == "" {
		return fmt.Errorf("WORKSPACE_ROOT cannot be empty")
	}
	switch c.Tools.Executor {
	case "local":
	case "docker":
		if c.Tools.Image == "" {
			return fmt.Errorf("TOOL_IMAGE cannot be empty for TOOL_EXECUTOR=docker")
		}
	default:
		return fmt.Errorf("TOOL_EXECUTOR must be local or docker (got %q)", c.Tools.Executor)
	}
	if c.Tools.Timeout <= 0 {
		return fmt.Errorf("TOOL_TIMEOUT must be > 0")
	}
	if c.Submit.RateLimit < 0 {
		return fmt.Errorf("SUBMIT_RATE_LIMIT must be >= 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// ModelAPIKey returns the credential for the configured provider.
func (c *Config) ModelAPIKey() string {
	switch c.Model.Provider {
	case "anthropic":
		return c.Model.AnthropicAPIKey
	case "openai":
		return c.Model.OpenAIAPIKey
	default:
		return ""
	}
}

// ModelBaseURL returns the endpoint override for the configured provider.
func (c *Config) ModelBaseURL() string {
	switch c.Model.Provider {
	case "openai":
		return c.Model.OpenAIBaseURL
	case "ollama":
		return c.Model.OllamaURL
	default:
		return ""
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsContainer returns true if running inside a Docker container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
