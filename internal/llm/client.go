// Package llm wraps the chat-completion collaborator. The orchestrator only
// ever needs "system prompts + conversation in, free-form text out"; wire
// details (endpoint, model, sampling) stay here.
package llm

import (
	"context"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.deepseek.com"
	DefaultModel   = "deepseek-chat"

	// Low temperature keeps the structured-JSON passes stable.
	temperature = 0.2
	maxTokens   = 1000
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one ordered role/content pair of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the model collaborator seen by the orchestrator.
type Client interface {
	Chat(ctx context.Context, system []string, history []Message) (string, error)
}

// OpenAIClient speaks any OpenAI-compatible chat endpoint.
type OpenAIClient struct {
	api   *openai.Client
	model string
	log   zerolog.Logger
}

func NewOpenAI(apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = baseURL
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg), model: model, log: zerolog.Nop()}
}

func (c *OpenAIClient) WithLogger(log zerolog.Logger) *OpenAIClient {
	c.log = log
	return c
}

func (c *OpenAIClient) Chat(ctx context.Context, system []string, history []Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(system)+len(history))
	for _, prompt := range system {
		messages = append(messages, openai.ChatCompletionMessage{Role: RoleSystem, Content: prompt})
	}
	for _, m := range history {
		role := m.Role
		switch role {
		case RoleUser, RoleSystem, RoleAssistant:
		default:
			role = RoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	c.log.Debug().Int("messages", len(messages)).Str("model", c.model).Msg("model call")
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", agerr.Wrap(agerr.CodeRPC, "model call failed", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", agerr.New(agerr.CodeRPC, "model returned no content")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Client = (*OpenAIClient)(nil)
