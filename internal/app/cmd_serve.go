package app

import (
	"github.com/spf13/cobra"

	"github.com/sriramcse31/ai-test-triage-agent/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the triage HTTP API",
		Long: `Serve the triage API:

  POST /v1/triage   raw CI log body, ?no_llm=1 and ?remember=1 supported
  GET  /v1/stats    failure memory statistics
  GET  /v1/flaky    flaky failures, ?threshold=0.6
  GET  /healthz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if addr == "" {
				addr = e.cfg.ServerAddr
			}
			srv := server.New(e.newAgent(false), e.newAgent(true), e.store)
			return srv.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server_addr)")
	return cmd
}
