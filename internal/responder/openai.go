package responder

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/soyeahso/deskd/internal/domain"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient drafts replies through the OpenAI chat completion API,
// or any OpenAI-compatible endpoint via a base URL override.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature *float64
}

// NewOpenAIClient creates an OpenAI-backed draft provider. baseURL is
// optional and switches the client to a compatible endpoint.
func NewOpenAIClient(apiKey, model, baseURL string, maxTokens int, temperature *float64) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return "openai" }

// Draft sends the conversation context and parses the structured answer.
func (c *OpenAIClient) Draft(ctx context.Context, req DraftRequest) (*Draft, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req.Channel)},
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role != domain.RoleCustomer {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.MessageText,
	})

	ccr := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if c.temperature != nil {
		ccr.Temperature = float32(*c.temperature)
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &ProviderError{Provider: c.Name(), Code: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		return nil, &ProviderError{Provider: c.Name(), Message: err.Error()}
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: c.Name(), Message: "no completion choices"}
	}

	return parseDraft(c.Name(), resp.Choices[0].Message.Content)
}
