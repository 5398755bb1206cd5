package cli

import (
	"github.com/spf13/cobra"

	"github.com/me/stepflow/internal/config"
	"github.com/me/stepflow/internal/journal"
	"github.com/me/stepflow/internal/server"
	"github.com/me/stepflow/pkg/persist"
)

func newServeCmd() *cobra.Command {
	var addr string
	var journalPath string
	var dir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only journal API",
		Long: `Starts an HTTP server exposing recent runs, per-run step events, and
persisted records. The server never mutates pipeline state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServeConfig()
			cfg.Addr = addr
			cfg.JournalPath = journalPath
			cfg.ExperimentDir = dir
			cfg.LogLevel = flagLogLevel
			cfg.LogFormat = flagLogFormat

			j, err := journal.Open(cfg.JournalPath, logger)
			if err != nil {
				return err
			}
			defer j.Close()

			var opts []server.Option
			if cfg.ExperimentDir != "" {
				store, err := persist.NewFSStore(cfg.ExperimentDir, logger)
				if err != nil {
					return err
				}
				opts = append(opts, server.WithPersistStore(store))
			}

			return server.New(cfg, j, logger, opts...).ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&journalPath, "journal", "stepflow.db", "SQLite journal path")
	cmd.Flags().StringVar(&dir, "dir", "", "Experiment directory to list records from (optional)")
	return cmd
}
