package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:     "schedule",
	Short:   "Show and recompute project schedules",
	GroupID: "views",
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show the critical path schedule of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := planClient.GetSchedule(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), v)
		}
		return printSchedule(cmd.OutOrStdout(), v)
	},
}

var scheduleRecomputeCmd = &cobra.Command{
	Use:   "recompute <project-id>",
	Short: "Recompute and store a project's schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if async, _ := cmd.Flags().GetBool("async"); async {
			if err := planClient.RecomputeAsync(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recompute of %s queued\n", args[0])
			return nil
		}
		v, err := planClient.Recompute(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), v)
		}
		return printSchedule(cmd.OutOrStdout(), v)
	},
}

func init() {
	scheduleRecomputeCmd.Flags().Bool("async", false, "queue the recompute on the server and return immediately")

	scheduleCmd.AddCommand(scheduleShowCmd)
	scheduleCmd.AddCommand(scheduleRecomputeCmd)
}
