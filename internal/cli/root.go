// Package cli implements the stepflow command line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/stepflow/internal/builtin"
	"github.com/me/stepflow/internal/logging"
	"github.com/me/stepflow/pkg/pipeline"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// defaultDir returns the default experiment directory, checking the
// STEPFLOW_DIR env var first.
func defaultDir() string {
	if d := os.Getenv("STEPFLOW_DIR"); d != "" {
		return d
	}
	return "./stepflow-exp"
}

// newRegistry builds the transformer registry available to manifest
// commands. Only the builtin generic transformers are present; model
// transformers come from embedding applications, not this CLI.
func newRegistry() *pipeline.Registry {
	reg := pipeline.NewRegistry(logger)
	builtin.Register(reg)
	return reg
}

// NewRootCmd creates the root cobra command for the stepflow CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stepflow",
		Short: "stepflow — step-graph pipeline engine",
		Long:  "stepflow validates, runs, and inspects step-graph pipelines with per-step persistence and caching.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newValidateCmd(),
		newRunCmd(),
		newLsCmd(),
		newCleanCmd(),
		newServeCmd(),
	)

	return root
}
