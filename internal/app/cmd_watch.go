package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/sriramcse31/ai-test-triage-agent/internal/batch"
	"github.com/sriramcse31/ai-test-triage-agent/internal/watch"
)

type watchFlags struct {
	schedule string
	debounce time.Duration
	parallel int
	noLLM    bool
}

func newWatchCmd() *cobra.Command {
	var flags watchFlags
	cmd := &cobra.Command{
		Use:   "watch [log-dir]",
		Short: "Triage new logs as they arrive",
		Long: `Triage each log file in a directory once. Without --schedule the
directory is watched and new files are triaged when they stop changing.
With --schedule the directory is rescanned on the cron schedule instead.
Scan summaries are posted to Slack when it is configured.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.schedule, "schedule", "", "cron expression, e.g. \"*/15 * * * *\" (default watch_schedule)")
	f.DurationVar(&flags.debounce, "debounce", watch.DefaultDebounce, "quiet period before a new file is triaged")
	f.IntVar(&flags.parallel, "parallel", 0, "files analyzed concurrently (default batch_parallel)")
	f.BoolVar(&flags.noLLM, "no-llm", false, "use rule-based explanations only")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string, flags watchFlags) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	dir := e.cfg.LogsDir
	if len(args) == 1 {
		dir = args[0]
	}
	schedule := flags.schedule
	if schedule == "" {
		schedule = e.cfg.WatchSchedule
	}
	parallel := flags.parallel
	if parallel <= 0 {
		parallel = e.cfg.BatchParallel
	}

	ctx := cmd.Context()
	tr := watch.NewTriager(dir, e.newAgent(flags.noLLM), batch.Options{Parallel: parallel}, e.slackNotifier())

	if schedule != "" {
		sched, err := watch.ParseSchedule(schedule)
		if err != nil {
			return err
		}
		log.Printf("watch scheduled dir=%s schedule=%q timezone=%s", dir, schedule, e.cfg.Location)
		err = watch.RunSchedule(ctx, sched, e.cfg.Location, func(ctx context.Context) {
			if _, err := tr.Scan(ctx); err != nil {
				log.Printf("watch scan error dir=%s: %v", dir, err)
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if _, err := tr.Scan(ctx); err != nil {
		return err
	}
	w, err := watch.NewWatcher(dir, flags.debounce, func(paths []string) {
		tr.TriagePaths(ctx, paths)
	})
	if err != nil {
		return err
	}
	w.Start()
	log.Printf("watching dir=%s debounce=%s", dir, flags.debounce)

	<-ctx.Done()
	w.Stop()
	return nil
}
