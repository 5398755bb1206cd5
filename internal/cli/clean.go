package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/stepflow/pkg/persist"
)

func newCleanCmd() *cobra.Command {
	var dir string
	var modelsOnly bool
	var outputsOnly bool

	cmd := &cobra.Command{
		Use:   "clean [step...]",
		Short: "Clear persisted records from an experiment directory",
		Long: `Removes persisted model and output records. With step names, only
those steps' records are cleared; without, every record goes.

Persisted outputs carry no fingerprint of the data they were computed
from, so a pipeline re-run against a new dataset will happily reuse a
stale record. Run clean between datasets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := persist.NewFSStore(dir, logger)
			if err != nil {
				return err
			}

			var kinds []persist.Kind
			switch {
			case modelsOnly && outputsOnly:
				return fmt.Errorf("--models and --outputs are mutually exclusive")
			case modelsOnly:
				kinds = []persist.Kind{persist.KindModel}
			case outputsOnly:
				kinds = []persist.Kind{persist.KindOutput}
			default:
				kinds = []persist.Kind{persist.KindModel, persist.KindOutput}
			}

			steps := args
			if len(steps) == 0 {
				records, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				seen := make(map[string]bool)
				for _, r := range records {
					if !seen[r.Step] {
						seen[r.Step] = true
						steps = append(steps, r.Step)
					}
				}
			}

			cleared := 0
			for _, step := range steps {
				for _, kind := range kinds {
					ok, err := store.Exists(cmd.Context(), step, kind)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
					if err := store.Clear(cmd.Context(), step, kind); err != nil {
						return err
					}
					cleared++
				}
			}
			fmt.Printf("cleared %d record(s)\n", cleared)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", defaultDir(), "Experiment directory (or STEPFLOW_DIR env)")
	cmd.Flags().BoolVar(&modelsOnly, "models", false, "Clear model records only")
	cmd.Flags().BoolVar(&outputsOnly, "outputs", false, "Clear output records only")
	return cmd
}
