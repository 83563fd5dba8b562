package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderNone      = "none"
)

type Config struct {
	DataDir         string `yaml:"data_dir"`
	DBPath          string `yaml:"db_path"`
	LogsDir         string `yaml:"logs_dir"`
	ReportOutputDir string `yaml:"report_output_dir"`
	EvalCasesPath   string `yaml:"eval_cases_path"`

	SimilarityTopK int `yaml:"similarity_top_k"`
	ContextRadius  int `yaml:"context_radius"`

	LLMProvider          string  `yaml:"llm_provider"`
	LLMModel             string  `yaml:"llm_model"`
	LLMBaseURL           string  `yaml:"llm_base_url"`
	LLMTemperature       float64 `yaml:"llm_temperature"`
	LLMMaxTokens         int     `yaml:"llm_max_tokens"`
	LLMTimeoutSeconds    int     `yaml:"llm_timeout_seconds"`
	LLMRequestsPerSecond float64 `yaml:"llm_requests_per_second"`
	AnthropicAPIKey      string  `yaml:"anthropic_api_key"`
	OpenAIAPIKey         string  `yaml:"openai_api_key"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	BatchLimit    int    `yaml:"batch_limit"`
	BatchParallel int    `yaml:"batch_parallel"`
	WatchSchedule string `yaml:"watch_schedule"`
	Timezone      string `yaml:"timezone"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	GitLabURL   string `yaml:"gitlab_url"`
	GitLabToken string `yaml:"gitlab_token"`

	GitHubToken  string `yaml:"github_token"`
	GitHubAPIURL string `yaml:"github_api_url"`

	ServerAddr string `yaml:"server_addr"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.DataDir, "DATA_DIR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.LogsDir, "LOGS_DIR")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.EvalCasesPath, "EVAL_CASES_PATH")
	envOverrideInt(&cfg.SimilarityTopK, "SIMILARITY_TOP_K")
	envOverrideInt(&cfg.ContextRadius, "CONTEXT_RADIUS")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMBaseURL, "LLM_BASE_URL")
	envOverrideFloat(&cfg.LLMTemperature, "LLM_TEMPERATURE")
	envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS")
	envOverrideInt(&cfg.LLMTimeoutSeconds, "LLM_TIMEOUT_SECONDS")
	envOverrideFloat(&cfg.LLMRequestsPerSecond, "LLM_REQUESTS_PER_SECOND")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.BatchLimit, "BATCH_LIMIT")
	envOverrideInt(&cfg.BatchParallel, "BATCH_PARALLEL")
	envOverrideAllowEmpty(&cfg.WatchSchedule, "WATCH_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.GitLabURL, "GITLAB_URL")
	envOverride(&cfg.GitLabToken, "GITLAB_TOKEN")
	envOverride(&cfg.GitHubToken, "GITHUB_TOKEN")
	envOverride(&cfg.GitHubAPIURL, "GITHUB_API_URL")
	envOverride(&cfg.ServerAddr, "SERVER_ADDR")

	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = strings.TrimRight(cfg.DataDir, "/") + "/failures.db"
	}
	if cfg.LogsDir == "" {
		cfg.LogsDir = "./demo/sample_ci_failures"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.EvalCasesPath == "" {
		cfg.EvalCasesPath = "./evals/golden_cases.json"
	}
	if cfg.SimilarityTopK == 0 {
		cfg.SimilarityTopK = 5
	}
	if cfg.ContextRadius == 0 {
		cfg.ContextRadius = 3
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderOllama
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.LLMModel == "" {
		cfg.LLMModel = defaultModel(cfg.LLMProvider)
	}
	if cfg.LLMBaseURL == "" && cfg.LLMProvider == ProviderOllama {
		cfg.LLMBaseURL = "http://localhost:11434"
	}
	if cfg.LLMTemperature == 0 {
		cfg.LLMTemperature = 0.1
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 2000
	}
	if cfg.LLMTimeoutSeconds == 0 {
		cfg.LLMTimeoutSeconds = 120
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.BatchLimit == 0 {
		cfg.BatchLimit = 10
	}
	if cfg.BatchParallel == 0 {
		cfg.BatchParallel = 1
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}
	if cfg.GitHubAPIURL == "" {
		cfg.GitHubAPIURL = "https://api.github.com"
	}

	switch cfg.LLMProvider {
	case ProviderOllama, ProviderNone:
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be one of 'ollama', 'anthropic', 'openai' or 'none', got '%s'", cfg.LLMProvider)
	}

	if (cfg.GitLabURL == "") != (cfg.GitLabToken == "") {
		log.Fatalf("Partial GitLab config: gitlab_url and gitlab_token are required together")
	}
	if cfg.SlackChannelID != "" && cfg.SlackBotToken == "" {
		log.Fatalf("slack_channel_id is set but slack_bot_token is not")
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.SimilarityTopK < 1 {
		log.Fatalf("invalid similarity_top_k '%d': must be >= 1", cfg.SimilarityTopK)
	}
	if cfg.ContextRadius < 0 {
		log.Fatalf("invalid context_radius '%d': must be >= 0", cfg.ContextRadius)
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		log.Fatalf("invalid llm_temperature '%f': must be between 0 and 2", cfg.LLMTemperature)
	}
	if cfg.LLMMaxTokens < 1 {
		log.Fatalf("invalid llm_max_tokens '%d': must be >= 1", cfg.LLMMaxTokens)
	}
	if cfg.LLMTimeoutSeconds < 1 {
		log.Fatalf("invalid llm_timeout_seconds '%d': must be >= 1", cfg.LLMTimeoutSeconds)
	}
	if cfg.LLMRequestsPerSecond < 0 {
		log.Fatalf("invalid llm_requests_per_second '%f': must be >= 0", cfg.LLMRequestsPerSecond)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.BatchLimit < 1 {
		log.Fatalf("invalid batch_limit '%d': must be >= 1", cfg.BatchLimit)
	}
	if cfg.BatchParallel < 1 {
		log.Fatalf("invalid batch_parallel '%d': must be >= 1", cfg.BatchParallel)
	}

	return cfg
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return "llama3.2:3b"
	}
}

// InitDirs creates the directories the process writes to. It is called once
// by the entry point.
func InitDirs(cfg Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.ReportOutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) GitLabConfigured() bool {
	return c.GitLabURL != "" && c.GitLabToken != ""
}

func (c Config) GitHubConfigured() bool {
	return c.GitHubToken != ""
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) LLMEnabled() bool {
	return c.LLMProvider != ProviderNone
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}
