package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sriramcse31/ai-test-triage-agent/internal/config"
	"github.com/sriramcse31/ai-test-triage-agent/internal/httpx"
)

// ErrDisabled is returned by New when llm_provider is "none".
var ErrDisabled = errors.New("llm disabled")

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Settings carries the provider-independent generation parameters.
type Settings struct {
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

func settingsFromConfig(cfg config.Config) Settings {
	s := Settings{
		Model:       cfg.LLMModel,
		BaseURL:     cfg.LLMBaseURL,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout(),
		HTTPClient:  httpx.ExternalHTTPClient(),
	}
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		s.APIKey = cfg.AnthropicAPIKey
	case config.ProviderOpenAI:
		s.APIKey = cfg.OpenAIAPIKey
	}
	return s
}

// New builds the completer selected by cfg.LLMProvider, wrapped with the
// per-call timeout and the optional request rate limit.
func New(cfg config.Config) (Completer, error) {
	s := settingsFromConfig(cfg)
	var c Completer
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		c = NewOllama(s)
	case config.ProviderAnthropic:
		c = NewAnthropic(s)
	case config.ProviderOpenAI:
		c = NewOpenAI(s)
	case config.ProviderNone:
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
	c = WithTimeout(c, s.Timeout)
	if cfg.LLMRequestsPerSecond > 0 {
		c = WithRateLimit(c, cfg.LLMRequestsPerSecond, 1)
	}
	return c, nil
}

type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

// WithTimeout bounds every Complete call by d. A zero d leaves calls
// unbounded apart from the caller's context.
func WithTimeout(c Completer, d time.Duration) Completer {
	if d <= 0 {
		return c
	}
	return &timeoutCompleter{next: c, timeout: d}
}

func (t *timeoutCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, prompt)
}

type rateLimitedCompleter struct {
	next    Completer
	limiter *rate.Limiter
}

// WithRateLimit spaces out calls so batch and watch runs stay under a
// provider's request quota.
func WithRateLimit(c Completer, perSecond float64, burst int) Completer {
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedCompleter{next: c, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *rateLimitedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limit: %w", err)
	}
	return r.next.Complete(ctx, prompt)
}

func httpClientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return httpx.ExternalHTTPClient()
}
