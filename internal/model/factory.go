package model

import (
	"fmt"
	"log/slog"
	"time"
)

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// New builds the Client for cfg.Provider, bounded by cfg.Timeout when set.
func New(cfg Config) (Client, error) {
	var (
		client Client
		err    error
	)

	switch cfg.Provider {
	case ProviderAnthropic:
		client, err = NewAnthropic(cfg.APIKey, cfg.Model)
	case ProviderOpenAI:
		client = NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderOllama:
		client, err = NewOllama(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported model provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("Model client initialized", "provider", cfg.Provider, "model", cfg.Model, "timeout", cfg.Timeout)
	if cfg.Timeout > 0 {
		return &timeoutClient{next: client, timeout: cfg.Timeout}, nil
	}
	return client, nil
}
