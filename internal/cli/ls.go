package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/stepflow/pkg/persist"
)

func newLsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List persisted model and output records in an experiment directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := persist.NewFSStore(dir, logger)
			if err != nil {
				return err
			}
			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no persisted records")
				return nil
			}

			fmt.Printf("%-20s %-8s %10s  %s\n", "STEP", "KIND", "SIZE", "MODIFIED")
			for _, r := range records {
				fmt.Printf("%-20s %-8s %10d  %s\n",
					r.Step, r.Kind, r.Size, r.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", defaultDir(), "Experiment directory (or STEPFLOW_DIR env)")
	return cmd
}
