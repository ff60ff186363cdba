package model

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/ashureev/codebot/internal/domain"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a client. An empty baseURL uses the public OpenAI API.
func NewOpenAI(apiKey, baseURL, modelName string) *OpenAIClient {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  modelName,
	}
}

// Complete sends the history as a non-streaming chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Turns)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, turn := range req.Turns {
		role := openai.ChatMessageRoleUser
		if turn.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     modelName,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return Reply{}, classifyOpenAI(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[len(resp.Choices)-1].Message.Content == "" {
		return Reply{}, &Fault{Kind: FaultMalformed, Provider: ProviderOpenAI, Err: errors.New("no response from OpenAI")}
	}
	return Reply{Content: resp.Choices[len(resp.Choices)-1].Message.Content}, nil
}

func classifyOpenAI(err error) *Fault {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &Fault{Kind: FaultStatus, Provider: ProviderOpenAI, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &Fault{Kind: FaultStatus, Provider: ProviderOpenAI, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return classify(ProviderOpenAI, err)
}
