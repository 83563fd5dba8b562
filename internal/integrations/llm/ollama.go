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

	"github.com/valyala/fastjson"
)

const defaultOllamaBaseURL = "http://localhost:11434"

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// OllamaClient talks to a local Ollama server's /api/generate endpoint.
type OllamaClient struct {
	settings Settings
	parser   fastjson.ParserPool
}

func NewOllama(s Settings) *OllamaClient {
	if s.BaseURL == "" {
		s.BaseURL = defaultOllamaBaseURL
	}
	return &OllamaClient{settings: s}
}

func (o *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	bodyBytes, err := json.Marshal(ollamaRequest{
		Model:  o.settings.Model,
		Prompt: prompt,
		System: triageSystemPrompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: o.settings.Temperature,
			NumPredict:  o.settings.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	apiURL := strings.TrimRight(o.settings.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClientOrDefault(o.settings.HTTPClient).Do(req)
	if err != nil {
		log.Printf("llm ollama error: %v", err)
		return "", fmt.Errorf("Ollama API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	p := o.parser.Get()
	defer o.parser.Put(p)

	v, err := p.ParseBytes(respBody)
	if err != nil {
		return "", fmt.Errorf("parsing Ollama response (status %d): %w", resp.StatusCode, err)
	}
	if msg := v.GetStringBytes("error"); len(msg) > 0 {
		log.Printf("llm ollama api error: %s", msg)
		return "", fmt.Errorf("Ollama API error: %s", msg)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Ollama API returned %d", resp.StatusCode)
	}

	text := string(v.GetStringBytes("response"))
	usage := Usage{
		InputTokens:  v.GetInt64("prompt_eval_count"),
		OutputTokens: v.GetInt64("eval_count"),
	}
	log.Printf("llm ollama response size=%d tokens_in=%d tokens_out=%d", len(text), usage.InputTokens, usage.OutputTokens)
	return text, nil
}
