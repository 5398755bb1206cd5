package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/stepflow/internal/journal"
	"github.com/me/stepflow/internal/manifest"
	"github.com/me/stepflow/pkg/persist"
	"github.com/me/stepflow/pkg/pipeline"
)

func newRunCmd() *cobra.Command {
	var mode string
	var target string
	var dir string
	var journalPath string

	cmd := &cobra.Command{
		Use:   "run <manifest> [inputs-file]",
		Short: "Execute a pipeline manifest and print the target's output bundle",
		Long: `Runs the manifest's target step (and everything upstream) against the
external input bundles in the inputs file. The inputs file is a YAML
mapping of bundle name to field values:

    input:
      text: ["good movie", "bad movie"]
      label: [1, 0]

Mode fit_transform fits unfitted transformers along the way; mode
transform reuses fitted or persisted state only and fails otherwise.
The result bundle is written to stdout as JSON.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			externals := make(map[string]pipeline.Bundle)
			if len(args) > 1 {
				data, err := os.ReadFile(args[1])
				if err != nil {
					return fmt.Errorf("read inputs file: %w", err)
				}
				if err := yaml.Unmarshal(data, &externals); err != nil {
					return fmt.Errorf("parse inputs file: %w", err)
				}
			}

			g, err := m.BuildGraph(newRegistry())
			if err != nil {
				return err
			}

			expDir := dir
			if expDir == "" {
				expDir = m.ExperimentDir
			}
			if expDir == "" {
				expDir = defaultDir()
			}
			store, err := persist.NewFSStore(expDir, logger)
			if err != nil {
				return err
			}

			opts := []pipeline.Option{
				pipeline.WithStore(store),
				pipeline.WithLogger(logger),
			}
			if journalPath != "" {
				j, err := journal.Open(journalPath, logger)
				if err != nil {
					return err
				}
				defer j.Close()
				opts = append(opts, pipeline.WithRecorder(j))
			}

			engine, err := pipeline.NewEngine(g, opts...)
			if err != nil {
				return err
			}

			if target == "" {
				target = m.Target
			}
			run := engine.NewRun()
			ctx := cmd.Context()

			var out pipeline.Bundle
			switch mode {
			case "fit_transform", "fit":
				out, err = engine.FitTransform(ctx, run, target, externals)
			case "transform":
				out, err = engine.Transform(ctx, run, target, externals)
			default:
				return fmt.Errorf("unknown mode %q (want fit_transform or transform)", mode)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "fit_transform", "Execution mode: fit_transform or transform")
	cmd.Flags().StringVar(&target, "target", "", "Target step (default: manifest target)")
	cmd.Flags().StringVar(&dir, "dir", "", "Experiment directory (default: manifest experiment_dir, then STEPFLOW_DIR)")
	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite journal path (no journal when empty)")

	return cmd
}
