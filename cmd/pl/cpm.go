package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planline/internal/planfile"
)

var cpmCmd = localCommand(&cobra.Command{
	Use:   "cpm -f <plan.yaml>",
	Short: "Run the critical path method on a local plan file",
	Long: `Compute a schedule from a YAML plan file without contacting a server.

  name: Bridge
  tasks:
    - id: design
      hours: 5
    - id: build
      hours: 3
      dependencies: [design]`,
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		plan, err := planfile.Load(path)
		if err != nil {
			return err
		}
		sched, err := plan.Compute()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), sched)
		}
		if plan.Name != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", plan.Name)
		}
		return printOfflineSchedule(cmd.OutOrStdout(), sched, plan.Title)
	},
})

func init() {
	cpmCmd.Flags().StringP("file", "f", "", "plan file (required)")
	_ = cpmCmd.MarkFlagRequired("file")
}
