package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type OpenAIClient struct {
	settings Settings
}

func NewOpenAI(s Settings) *OpenAIClient {
	if s.BaseURL == "" {
		s.BaseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{settings: s}
}

func (o *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := openAIRequest{
		Model: o.settings.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: triageSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: o.settings.Temperature,
		MaxTokens:   o.settings.MaxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	apiURL := strings.TrimRight(o.settings.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.settings.APIKey)

	resp, err := httpClientOrDefault(o.settings.HTTPClient).Do(req)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", fmt.Errorf("parsing OpenAI response (status %d): %w", resp.StatusCode, err)
	}

	if openAIResp.Error != nil {
		log.Printf("llm openai api error: %s", openAIResp.Error.Message)
		return "", fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}

	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}
	usage := Usage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}

	log.Printf("llm openai response size=%d tokens_in=%d tokens_out=%d", len(openAIResp.Choices[0].Message.Content), usage.InputTokens, usage.OutputTokens)
	return openAIResp.Choices[0].Message.Content, nil
}
