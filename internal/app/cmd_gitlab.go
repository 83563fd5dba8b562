package app

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/sriramcse31/ai-test-triage-agent/internal/agent"
	"github.com/sriramcse31/ai-test-triage-agent/internal/integrations/gitlab"
	"github.com/sriramcse31/ai-test-triage-agent/internal/logparser"
)

type fetchGitLabFlags struct {
	project   string
	pipeline  int64
	outDir    string
	noAnalyze bool
	noLLM     bool
	remember  bool
}

func newFetchGitLabCmd() *cobra.Command {
	var flags fetchGitLabFlags
	cmd := &cobra.Command{
		Use:   "fetch-gitlab [pipeline-url]",
		Short: "Download and triage the failed jobs of a GitLab pipeline",
		Long: `Download the trace of every failed job of a GitLab pipeline into
logs_dir and triage each one. Remembered failures carry the pipeline ID,
branch and commit.

The pipeline is given either as its web URL or with --project and --pipeline.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetchGitLab(cmd, args, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.project, "project", "", "project path, e.g. group/service")
	f.Int64Var(&flags.pipeline, "pipeline", 0, "pipeline ID")
	f.StringVar(&flags.outDir, "out", "", "download directory (default logs_dir)")
	f.BoolVar(&flags.noAnalyze, "no-analyze", false, "only download the logs")
	f.BoolVar(&flags.noLLM, "no-llm", false, "use rule-based explanations only")
	f.BoolVar(&flags.remember, "remember", false, "store the triaged failures in memory")
	return cmd
}

func runFetchGitLab(cmd *cobra.Command, args []string, flags fetchGitLabFlags) error {
	project, pipelineID := flags.project, flags.pipeline
	if len(args) == 1 {
		var err error
		project, pipelineID, err = gitlab.ParsePipelineURL(args[0])
		if err != nil {
			return err
		}
	}
	if project == "" || pipelineID <= 0 {
		return errors.New("pass a pipeline URL or both --project and --pipeline")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if !e.cfg.GitLabConfigured() {
		return errors.New("gitlab_url and gitlab_token must be configured")
	}
	outDir := flags.outDir
	if outDir == "" {
		outDir = e.cfg.LogsDir
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	result, err := gitlab.NewClient(e.cfg).FetchPipelineLogs(ctx, project, pipelineID, outDir)
	fmt.Fprintln(out, gitlab.FormatFetchSummary(result))
	if err != nil {
		return err
	}
	if flags.noAnalyze {
		return nil
	}

	a := e.newAgent(flags.noLLM)
	for _, fetched := range result.Logs {
		tf, err := logparser.ParseFile(fetched.Path)
		if err != nil {
			log.Printf("gitlab triage skip job=%d: %v", fetched.Job.ID, err)
			continue
		}
		res, err := a.AnalyzeParsed(ctx, tf)
		if err != nil {
			return fmt.Errorf("analyzing job %d: %w", fetched.Job.ID, err)
		}
		fmt.Fprintf(out, "%s (%s): %s, flaky %.0f%%, confidence %.0f%%\n",
			fetched.Job.Name, res.TestName, res.Classification.Label(),
			res.FlakyProbability*100, res.ConfidenceScore*100)

		if flags.remember {
			rec := agent.MemoryRecord(tf, res, time.Now())
			fetched.Provenance.Apply(&rec)
			if _, err := e.store.Add(ctx, rec); err != nil {
				return fmt.Errorf("storing job %d: %w", fetched.Job.ID, err)
			}
		}
	}
	return nil
}
