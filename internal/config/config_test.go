package config

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromEnvWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	t.Setenv("TIMEZONE", "UTC")

	cfg := LoadConfig()

	if cfg.LLMProvider != ProviderOllama {
		t.Fatalf("unexpected provider default: %q", cfg.LLMProvider)
	}
	if cfg.LLMModel != "llama3.2:3b" {
		t.Fatalf("unexpected model default: %q", cfg.LLMModel)
	}
	if cfg.LLMBaseURL != "http://localhost:11434" {
		t.Fatalf("unexpected base url default: %q", cfg.LLMBaseURL)
	}
	if cfg.LLMTemperature != 0.1 || cfg.LLMMaxTokens != 2000 {
		t.Fatalf("unexpected llm defaults: temp=%v max_tokens=%d", cfg.LLMTemperature, cfg.LLMMaxTokens)
	}
	if cfg.LLMTimeout() != 120*time.Second {
		t.Fatalf("unexpected llm timeout default: %s", cfg.LLMTimeout())
	}
	if cfg.DataDir != "./data" || cfg.DBPath != "./data/failures.db" {
		t.Fatalf("unexpected storage defaults: data=%q db=%q", cfg.DataDir, cfg.DBPath)
	}
	if cfg.SimilarityTopK != 5 || cfg.ContextRadius != 3 {
		t.Fatalf("unexpected analysis defaults: top_k=%d radius=%d", cfg.SimilarityTopK, cfg.ContextRadius)
	}
	if cfg.BatchLimit != 10 || cfg.BatchParallel != 1 {
		t.Fatalf("unexpected batch defaults: limit=%d parallel=%d", cfg.BatchLimit, cfg.BatchParallel)
	}
	if cfg.ExternalHTTPTimeoutSeconds != int(defaultExternalHTTPTimeout/time.Second) {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.ServerAddr != ":8080" {
		t.Fatalf("unexpected server addr default: %q", cfg.ServerAddr)
	}
	if cfg.GitHubAPIURL != "https://api.github.com" {
		t.Fatalf("unexpected github api url default: %q", cfg.GitHubAPIURL)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if !cfg.LLMEnabled() || cfg.GitLabConfigured() || cfg.SlackConfigured() {
		t.Fatalf("unexpected integration flags: %+v", cfg)
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm_provider: "anthropic"
anthropic_api_key: "yaml-anthropic"
data_dir: "/tmp/yaml-data"
db_path: "/tmp/yaml.db"
similarity_top_k: 8
watch_schedule: "*/15 * * * *"
slack_bot_token: "xoxb-yaml"
slack_channel_id: "C123"
external_http_timeout_seconds: 75
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("EXTERNAL_HTTP_TIMEOUT_SECONDS", "120")
	t.Setenv("WATCH_SCHEDULE", "")

	cfg := LoadConfig()

	if cfg.LLMProvider != ProviderOpenAI {
		t.Fatalf("expected provider from env override, got %q", cfg.LLMProvider)
	}
	if cfg.LLMModel != "gpt-4o-mini" {
		t.Fatalf("expected provider default model, got %q", cfg.LLMModel)
	}
	if cfg.LLMBaseURL != "" {
		t.Fatalf("base url default only applies to ollama, got %q", cfg.LLMBaseURL)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected db path from env override, got %q", cfg.DBPath)
	}
	if cfg.DataDir != "/tmp/yaml-data" {
		t.Fatalf("expected data dir from yaml, got %q", cfg.DataDir)
	}
	if cfg.SimilarityTopK != 8 {
		t.Fatalf("expected top_k from yaml, got %d", cfg.SimilarityTopK)
	}
	if cfg.WatchSchedule != "" {
		t.Fatalf("expected empty env to clear watch schedule, got %q", cfg.WatchSchedule)
	}
	if cfg.ExternalHTTPTimeoutSeconds != 120 {
		t.Fatalf("expected external HTTP timeout from env override, got %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if !cfg.SlackConfigured() {
		t.Fatal("expected slack to be configured from yaml")
	}
}

func TestEnvOverrideHelpers(t *testing.T) {
	s := "initial"
	t.Setenv("TRIAGE_TEST_STR", "value")
	envOverride(&s, "TRIAGE_TEST_STR")
	if s != "value" {
		t.Fatalf("envOverride failed, got %q", s)
	}

	i := 1
	t.Setenv("TRIAGE_TEST_INT", "42")
	envOverrideInt(&i, "TRIAGE_TEST_INT")
	if i != 42 {
		t.Fatalf("envOverrideInt failed, got %d", i)
	}

	f := 0.1
	t.Setenv("TRIAGE_TEST_FLOAT", "0.75")
	envOverrideFloat(&f, "TRIAGE_TEST_FLOAT")
	if f != 0.75 {
		t.Fatalf("envOverrideFloat failed, got %f", f)
	}
}

func TestInitDirs(t *testing.T) {
	root := t.TempDir()
	cfg := Config{
		DataDir:         filepath.Join(root, "data"),
		ReportOutputDir: filepath.Join(root, "reports", "nested"),
	}
	if err := InitDirs(cfg); err != nil {
		t.Fatalf("InitDirs: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.ReportOutputDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestLoadConfigMissingAnthropicKeyFatal(t *testing.T) {
	if os.Getenv("TEST_MISSING_KEY_FATAL") == "1" {
		_ = os.Setenv("CONFIG_PATH", filepath.Join(os.TempDir(), "no-config.yaml"))
		_ = os.Setenv("LLM_PROVIDER", "anthropic")
		_ = os.Unsetenv("ANTHROPIC_API_KEY")
		LoadConfig()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestLoadConfigMissingAnthropicKeyFatal")
	cmd.Env = append(os.Environ(), "TEST_MISSING_KEY_FATAL=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with failure")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got: %v", err)
	}
}

func TestLoadConfigUnknownProviderFatal(t *testing.T) {
	if os.Getenv("TEST_UNKNOWN_PROVIDER_FATAL") == "1" {
		_ = os.Setenv("CONFIG_PATH", filepath.Join(os.TempDir(), "no-config.yaml"))
		_ = os.Setenv("LLM_PROVIDER", "gemini")
		LoadConfig()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestLoadConfigUnknownProviderFatal")
	cmd.Env = append(os.Environ(), "TEST_UNKNOWN_PROVIDER_FATAL=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got: %v", err)
	}
}
