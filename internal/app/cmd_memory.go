package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/memory"
	"github.com/sriramcse31/ai-test-triage-agent/internal/report"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show failure memory statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			st, err := e.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.StatsTable(st, report.TableASCII))
			return nil
		},
	}
}

func newFlakyCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "flaky",
		Short: "List the most flaky failures in memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if threshold < 0 || threshold > 1 {
				return fmt.Errorf("invalid --threshold %v: must be between 0 and 1", threshold)
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			failures, err := e.store.GetFlaky(cmd.Context(), threshold)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(failures) == 0 {
				fmt.Fprintf(out, "No flaky tests found above threshold %s\n", report.Percent(threshold))
				return nil
			}
			fmt.Fprintln(out, report.FlakyTable(failures, report.TableASCII))
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", memory.DefaultFlakyThreshold, "minimum flaky score")
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <json-file>",
		Short: "Load historical failures into memory",
		Long: `Load a JSON array of historical failures, resolved or not, into the
failure memory. Records are appended; existing ones are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failures, err := memory.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.store.AddBulk(cmd.Context(), failures)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d historical failures into memory\n", n)
			return nil
		},
	}
}

type resolveFlags struct {
	testName       string
	errorMessage   string
	fix            string
	rootCause      string
	classification string
	fixedBy        string
	ticket         string
	confidence     float64
}

func newResolveCmd() *cobra.Command {
	var flags resolveFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Record how a failure was fixed",
		Long: `Append a resolved record for a test. Memory is append-only, so the
resolution is stored as a new record that copies the details of the test's
latest recorded failure. Pass --error when the test has no recorded failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.testName, "test", "", "test name")
	f.StringVar(&flags.errorMessage, "error", "", "error message (default from the latest recorded failure)")
	f.StringVar(&flags.fix, "fix", "", "fix that was applied")
	f.StringVar(&flags.rootCause, "root-cause", "", "root cause")
	f.StringVar(&flags.classification, "classification", "", "failure type, e.g. timeout or network_instability")
	f.StringVar(&flags.fixedBy, "fixed-by", "", "who fixed it")
	f.StringVar(&flags.ticket, "ticket", "", "ticket reference")
	f.Float64Var(&flags.confidence, "confidence", domain.DefaultResolutionConfidence, "confidence in the resolution")
	_ = cmd.MarkFlagRequired("test")
	_ = cmd.MarkFlagRequired("fix")
	_ = cmd.MarkFlagRequired("classification")
	return cmd
}

func runResolve(cmd *cobra.Command, flags resolveFlags) error {
	ft, err := domain.ParseFailureType(flags.classification)
	if err != nil {
		return err
	}
	if flags.confidence < 0 || flags.confidence > 1 {
		return fmt.Errorf("invalid --confidence %v: must be between 0 and 1", flags.confidence)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	history, err := e.store.GetByTestName(ctx, flags.testName)
	if err != nil {
		return err
	}

	var rec domain.HistoricalFailure
	if len(history) > 0 {
		rec = history[0]
	} else if strings.TrimSpace(flags.errorMessage) == "" {
		return fmt.Errorf("no recorded failure for %s; pass --error", flags.testName)
	}
	rec.TestName = flags.testName
	if flags.errorMessage != "" {
		rec.ErrorMessage = flags.errorMessage
	}

	now := time.Now()
	rec.Timestamp = now
	rec.Resolution = &domain.Resolution{
		RootCause:       flags.rootCause,
		Classification:  ft,
		FixApplied:      flags.fix,
		FixedBy:         flags.fixedBy,
		FixedAt:         &now,
		TicketReference: flags.ticket,
		Confidence:      flags.confidence,
	}

	id, err := e.store.Add(ctx, rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded resolution %s for %s\n", id, flags.testName)
	return nil
}
