package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sriramcse31/ai-test-triage-agent/internal/agent"
	"github.com/sriramcse31/ai-test-triage-agent/internal/config"
	"github.com/sriramcse31/ai-test-triage-agent/internal/httpx"
	"github.com/sriramcse31/ai-test-triage-agent/internal/integrations/llm"
	slackbot "github.com/sriramcse31/ai-test-triage-agent/internal/integrations/slack"
	"github.com/sriramcse31/ai-test-triage-agent/internal/memory"
	"github.com/sriramcse31/ai-test-triage-agent/internal/watch"
)

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command needs once the config is loaded: the config
// itself and the failure memory.
type env struct {
	cfg   config.Config
	store *memory.SQLiteStore
}

func openEnv() (*env, error) {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. DB=%s LogsDir=%s ReportDir=%s LLMProvider=%s LLMModel=%s TopK=%d ContextRadius=%d Timezone=%s ExternalHTTPTimeout=%s",
		cfg.DBPath,
		cfg.LogsDir,
		cfg.ReportOutputDir,
		cfg.LLMProvider,
		cfg.LLMModel,
		cfg.SimilarityTopK,
		cfg.ContextRadius,
		cfg.Timezone,
		appliedHTTPTimeout,
	)

	if err := config.InitDirs(cfg); err != nil {
		return nil, err
	}
	store, err := memory.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening failure memory %s: %w", cfg.DBPath, err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	return &env{cfg: cfg, store: store}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// newAgent builds the orchestrator. A misconfigured or disabled LLM leaves
// the agent on rule-based explanations.
func (e *env) newAgent(noLLM bool) *agent.Agent {
	opts := []agent.Option{
		agent.WithTopK(e.cfg.SimilarityTopK),
		agent.WithContextRadius(e.cfg.ContextRadius),
	}
	if !noLLM {
		c, err := llm.New(e.cfg)
		switch {
		case errors.Is(err, llm.ErrDisabled):
		case err != nil:
			log.Printf("LLM unavailable, using rule-based explanations: %v", err)
		default:
			opts = append(opts, agent.WithLLM(c))
		}
	}
	return agent.New(e.store, opts...)
}

// slackNotifier returns nil when Slack is not configured. The result is kept
// as an interface so a nil notifier stays a nil interface.
func (e *env) slackNotifier() watch.Notifier {
	n := slackbot.NewFromConfig(e.cfg)
	if n == nil {
		return nil
	}
	return n
}
