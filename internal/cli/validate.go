package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/stepflow/internal/manifest"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Parse a pipeline manifest and check the step graph",
		Long: `Loads the manifest, instantiates every transformer, and builds the
step graph. Duplicate names, dangling references, missing adapters, and
cycles are reported; a valid manifest prints its steps.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			g, err := m.BuildGraph(newRegistry())
			if err != nil {
				return err
			}

			fmt.Printf("pipeline %s: %d steps, target %s\n", m.Name, len(g.Names()), m.Target)
			for _, name := range g.Names() {
				s := g.Step(name)
				needs := "-"
				if len(s.Needs) > 0 {
					needs = strings.Join(s.Needs, ", ")
				}
				fmt.Printf("  %-20s needs: %s\n", name, needs)
			}
			return nil
		},
	}
}
