package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/miporis/compliance-evaluator/internal/config"
	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/observability"
)

// Chat implements domain.ChatModel.
type Chat struct {
	cfg    config.Config
	client *openai.Client
	model  string
	up     *observability.Upstream
}

// NewChat constructs a chat client from configuration.
func NewChat(cfg config.Config) *Chat {
	return &Chat{
		cfg:    cfg,
		client: newClient(cfg),
		model:  cfg.ChatModel,
		up:     observability.NewUpstream("openai", cfg.OpenAIBaseURL, 0),
	}
}

// Complete answers userPrompt under systemPrompt.
func (c *Chat) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	var answer string
	err := c.up.Do(ctx, "chat", func(callCtx context.Context) error {
		resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		if err != nil {
			return err
		}
		msg, err := firstChoice(resp)
		if err != nil {
			return err
		}
		answer = strings.TrimSpace(msg.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("op=openai.chat: %w", classify(err))
	}
	return answer, nil
}
