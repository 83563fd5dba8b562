package app

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/sriramcse31/ai-test-triage-agent/internal/batch"
	"github.com/sriramcse31/ai-test-triage-agent/internal/report"
)

type batchFlags struct {
	limit    int
	parallel int
	noLLM    bool
	markdown bool
	notify   bool
}

func newBatchCmd() *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "batch [log-dir]",
		Short: "Triage every log file in a directory",
		Long: `Triage the log files of a directory in name order. A file that fails to
parse or analyze is reported and does not stop the others.

Defaults to logs_dir from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, flags)
		},
	}
	f := cmd.Flags()
	f.IntVar(&flags.limit, "limit", 0, "maximum number of files (default batch_limit)")
	f.IntVar(&flags.parallel, "parallel", 0, "files analyzed concurrently (default batch_parallel)")
	f.BoolVar(&flags.noLLM, "no-llm", false, "use rule-based explanations only")
	f.BoolVar(&flags.markdown, "markdown", false, "render the table as Markdown")
	f.BoolVar(&flags.notify, "notify", false, "post the summary to Slack")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string, flags batchFlags) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	dir := e.cfg.LogsDir
	if len(args) == 1 {
		dir = args[0]
	}
	limit := flags.limit
	if limit <= 0 {
		limit = e.cfg.BatchLimit
	}
	parallel := flags.parallel
	if parallel <= 0 {
		parallel = e.cfg.BatchParallel
	}

	paths, err := batch.Discover(dir, limit)
	if err != nil {
		return err
	}
	log.Printf("batch start dir=%s files=%d parallel=%d", dir, len(paths), parallel)

	errOut := cmd.ErrOrStderr()
	res := batch.Run(cmd.Context(), e.newAgent(flags.noLLM), paths, batch.Options{
		Parallel: parallel,
		Progress: func(done, total int, item batch.Item) {
			status := "ok"
			if item.Err != nil {
				status = "error"
			}
			fmt.Fprintf(errOut, "[%d/%d] %s %s\n", done, total, item.Name(), status)
		},
	})

	out := cmd.OutOrStdout()
	mode := report.TableASCII
	if flags.markdown {
		mode = report.TableMarkdown
	}
	summary := batch.FormatSummary(res)
	if res.Discovered > 0 {
		fmt.Fprintln(out, report.BatchTable(res, mode))
	}
	fmt.Fprintln(out, summary)

	if flags.notify {
		n := e.slackNotifier()
		if n == nil {
			return errors.New("--notify requires slack_bot_token and slack_channel_id")
		}
		if err := n.NotifyText(cmd.Context(), "CI triage batch: "+summary); err != nil {
			return err
		}
	}

	if res.Discovered > 0 && res.Analyzed == 0 {
		return fmt.Errorf("none of the %d log files could be analyzed", res.Discovered)
	}
	return nil
}
