package invoker

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint used by the
// "openrouter" provider.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// defaultMaxTokens caps Anthropic responses, which require an explicit limit.
const defaultMaxTokens = 8192

// ChatModel is the subset of an eino chat model the chat backend uses.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ModelFactory builds a chat model for one member identifier.
type ModelFactory func(ctx context.Context, modelID string) (ChatModel, error)

// ChatBackend reaches members through a chat-completions API. A model is
// constructed per request because each member is a different model id.
type ChatBackend struct {
	name    string
	factory ModelFactory
}

var _ Backend = (*ChatBackend)(nil)

// NewChatBackend creates a chat backend from a factory.
func NewChatBackend(name string, factory ModelFactory) *ChatBackend {
	return &ChatBackend{name: name, factory: factory}
}

// NewOpenAIBackend returns a backend for OpenAI-compatible endpoints,
// including OpenRouter.
func NewOpenAIBackend(name, apiKey, baseURL string) *ChatBackend {
	return NewChatBackend(name, func(ctx context.Context, modelID string) (ChatModel, error) {
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  apiKey,
			Model:   modelID,
			BaseURL: baseURL,
		})
	})
}

// NewAnthropicBackend returns a backend for the Anthropic messages API.
func NewAnthropicBackend(apiKey, baseURL string) *ChatBackend {
	return NewChatBackend("anthropic", func(ctx context.Context, modelID string) (ChatModel, error) {
		cfg := &claude.Config{
			APIKey:    apiKey,
			Model:     modelID,
			MaxTokens: defaultMaxTokens,
		}
		if baseURL != "" {
			cfg.BaseURL = &baseURL
		}
		return claude.NewChatModel(ctx, cfg)
	})
}

// Name implements Backend.
func (c *ChatBackend) Name() string { return c.name }

// Complete implements Backend.
func (c *ChatBackend) Complete(ctx context.Context, req Request) (string, error) {
	cm, err := c.factory(ctx, req.MemberID)
	if err != nil {
		return "", fmt.Errorf("failed to create chat model for %s: %w", req.MemberID, err)
	}

	messages := make([]*schema.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, schema.SystemMessage(req.System))
	}
	messages = append(messages, schema.UserMessage(req.Prompt))

	resp, err := cm.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("%s returned no message", c.name)
	}
	return resp.Content, nil
}
