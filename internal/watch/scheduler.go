package watch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseSchedule parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "*/15 * * * *".
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}

// RunSchedule calls job at every activation of sched until ctx is done. Jobs
// run one at a time; an activation missed while a job runs is skipped.
func RunSchedule(ctx context.Context, sched cron.Schedule, loc *time.Location, job func(ctx context.Context)) error {
	if loc == nil {
		loc = time.Local
	}
	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("Next scheduled scan at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		job(ctx)
	}
}
