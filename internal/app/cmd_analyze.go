package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sriramcse31/ai-test-triage-agent/internal/agent"
	"github.com/sriramcse31/ai-test-triage-agent/internal/integrations/github"
	slackbot "github.com/sriramcse31/ai-test-triage-agent/internal/integrations/slack"
	"github.com/sriramcse31/ai-test-triage-agent/internal/logparser"
	"github.com/sriramcse31/ai-test-triage-agent/internal/report"
)

type analyzeFlags struct {
	verbose   bool
	noLLM     bool
	jsonOut   bool
	remember  bool
	notify    bool
	outputDir string

	githubRepo string
	commitSHA  string
	targetURL  string
}

func newAnalyzeCmd() *cobra.Command {
	var flags analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze <log-file>",
		Short: "Triage a single CI log",
		Long: `Parse one CI test log, triage the failure and print the report.

The log may be plain text or zstd-compressed (.log.zst).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], flags)
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "include the reasoning steps")
	f.BoolVar(&flags.noLLM, "no-llm", false, "use the rule-based explanation only")
	f.BoolVar(&flags.jsonOut, "json", false, "print the result as JSON")
	f.BoolVar(&flags.remember, "remember", false, "store the failure in memory")
	f.BoolVar(&flags.notify, "notify", false, "post the verdict to Slack")
	f.StringVarP(&flags.outputDir, "output-dir", "o", "", "also write a Markdown report into this directory")
	f.StringVar(&flags.githubRepo, "github-repo", "", "post the verdict as a commit status on this owner/name repository")
	f.StringVar(&flags.commitSHA, "commit", "", "commit SHA for --github-repo")
	f.StringVar(&flags.targetURL, "target-url", "", "link attached to the commit status, e.g. the CI job")
	cmd.MarkFlagsRequiredTogether("github-repo", "commit")
	return cmd
}

func runAnalyze(cmd *cobra.Command, path string, flags analyzeFlags) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	tf, err := logparser.ParseFile(path)
	if err != nil {
		return err
	}
	res, err := e.newAgent(flags.noLLM).AnalyzeParsed(ctx, tf)
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", path, err)
	}

	if flags.jsonOut {
		data, err := report.JSON(res)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		fmt.Fprint(out, report.Text(res, flags.verbose))
	}

	now := time.Now()
	if flags.remember {
		id, err := e.store.Add(ctx, agent.MemoryRecord(tf, res, now))
		if err != nil {
			return fmt.Errorf("storing failure: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Stored failure %s in memory\n", id)
	}

	if flags.outputDir != "" {
		reportPath, err := report.WriteReportFile(report.Markdown(res, now), flags.outputDir, res.TestName, now)
		if err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", reportPath)
	}

	if flags.githubRepo != "" {
		if !e.cfg.GitHubConfigured() {
			return errors.New("--github-repo requires github_token")
		}
		gh := github.NewClient(e.cfg)
		if err := gh.PostVerdictStatus(ctx, flags.githubRepo, flags.commitSHA, flags.targetURL, res); err != nil {
			return err
		}
	}

	if flags.notify {
		n := slackbot.NewFromConfig(e.cfg)
		if n == nil {
			return errors.New("--notify requires slack_bot_token and slack_channel_id")
		}
		if err := n.NotifyResult(ctx, res); err != nil {
			return err
		}
	}
	return nil
}
