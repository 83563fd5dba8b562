package app

import (
	"io"
	"log"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the triage-agent command tree.
func NewRootCmd() *cobra.Command {
	var quiet bool

	root := &cobra.Command{
		Use:   "triage-agent",
		Short: "Triage failed CI test runs",
		Long: `triage-agent reads CI test logs, classifies each failure, estimates
how likely it is to be flaky and suggests what to do next. Past failures
and their resolutions are kept in a local SQLite memory and used as
evidence for new analyses.`,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if quiet {
				log.SetOutput(io.Discard)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress log output")

	root.AddCommand(
		newAnalyzeCmd(),
		newBatchCmd(),
		newStatsCmd(),
		newFlakyCmd(),
		newSeedCmd(),
		newResolveCmd(),
		newEvalCmd(),
		newWatchCmd(),
		newServeCmd(),
		newFetchGitLabCmd(),
	)
	return root
}
