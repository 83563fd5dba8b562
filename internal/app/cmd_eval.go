package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/eval"
	"github.com/sriramcse31/ai-test-triage-agent/internal/logparser"
	"github.com/sriramcse31/ai-test-triage-agent/internal/report"
)

func newEvalCmd() *cobra.Command {
	var (
		useLLM   bool
		markdown bool
	)
	cmd := &cobra.Command{
		Use:   "eval [cases-file]",
		Short: "Run the golden evaluation cases",
		Long: `Triage each case's log and compare the result with the expected
classification, flaky range, explanation keywords, actions and confidence.
Exits non-zero when a case fails.

Defaults to eval_cases_path from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			path := e.cfg.EvalCasesPath
			if len(args) == 1 {
				path = args[0]
			}
			cases, err := eval.LoadCases(path)
			if err != nil {
				return err
			}

			a := e.newAgent(!useLLM)
			rep := eval.Run(cmd.Context(), cases, func(ctx context.Context, logPath string) (*domain.TriageResult, error) {
				tf, err := logparser.ParseFile(logPath)
				if err != nil {
					return nil, err
				}
				return a.AnalyzeParsed(ctx, tf)
			})

			mode := report.TableASCII
			if markdown {
				mode = report.TableMarkdown
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.EvalTables(rep, mode))

			if failed := len(rep.Failed()); failed > 0 {
				return fmt.Errorf("%d of %d eval cases failed", failed, rep.Total())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&useLLM, "llm", false, "use the configured LLM for explanations")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render the tables as Markdown")
	return cmd
}
