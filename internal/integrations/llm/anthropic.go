package llm

import (
	"context"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const triageSystemPrompt = "You are a test automation expert. Answer with plain prose, no markdown."

type AnthropicClient struct {
	client   anthropic.Client
	settings Settings
}

func NewAnthropic(s Settings) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithHTTPClient(httpClientOrDefault(s.HTTPClient)),
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...), settings: s}
}

func (a *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.settings.Model),
		MaxTokens:   int64(a.settings.MaxTokens),
		Temperature: anthropic.Float(a.settings.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: triageSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d", len(block.Text), usage.InputTokens, usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}
