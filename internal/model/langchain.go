package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/ashureev/codebot/internal/domain"
)

// LangChainClient adapts any langchaingo model to Client.
type LangChainClient struct {
	provider string
	llm      llms.Model
}

// NewLangChainClient wraps an existing langchaingo model.
func NewLangChainClient(provider string, llm llms.Model) *LangChainClient {
	return &LangChainClient{provider: provider, llm: llm}
}

// NewAnthropic creates a Claude client.
func NewAnthropic(apiKey, modelName string) (*LangChainClient, error) {
	llm, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	return NewLangChainClient(ProviderAnthropic, llm), nil
}

// NewOllama creates a client for a local Ollama server.
func NewOllama(serverURL, modelName string) (*LangChainClient, error) {
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return NewLangChainClient(ProviderOllama, llm), nil
}

// Complete sends the history and returns the text of the last content block.
func (c *LangChainClient) Complete(ctx context.Context, req Request) (Reply, error) {
	messages := make([]llms.MessageContent, 0, len(req.Turns)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, turn := range req.Turns {
		messages = append(messages, llms.TextParts(chatMessageType(turn.Role), turn.Content))
	}

	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return Reply{}, classify(c.provider, err)
	}
	if resp == nil {
		return Reply{}, &Fault{Kind: FaultMalformed, Provider: c.provider, Err: errors.New("empty response")}
	}

	for i := len(resp.Choices) - 1; i >= 0; i-- {
		if choice := resp.Choices[i]; choice != nil && choice.Content != "" {
			slog.Debug("Model reply received", "provider", c.provider, "choices", len(resp.Choices), "chars", len(choice.Content))
			return Reply{Content: choice.Content}, nil
		}
	}
	return Reply{}, &Fault{Kind: FaultMalformed, Provider: c.provider, Err: errors.New("response has no text content")}
}

func chatMessageType(role domain.Role) llms.ChatMessageType {
	if role == domain.RoleAssistant {
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}
