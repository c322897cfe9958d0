package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planline/internal/client"
)

func parseDate(flag, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", flag, s)
	}
	return t, nil
}

var projectCmd = &cobra.Command{
	Use:     "project",
	Short:   "Create and inspect projects",
	GroupID: "plan",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		startFlag, _ := cmd.Flags().GetString("start")
		endFlag, _ := cmd.Flags().GetString("end")
		start, err := parseDate("start", startFlag)
		if err != nil {
			return err
		}
		end, err := parseDate("end", endFlag)
		if err != nil {
			return err
		}

		p, err := planClient.CreateProject(context.Background(), &client.CreateProjectRequest{
			Name:      args[0],
			StartDate: start,
			EndDate:   end,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), p)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created project %s: %s\n", p.ID, p.Name)
		return nil
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := planClient.GetProject(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), p)
		}
		printProject(cmd.OutOrStdout(), p)
		return nil
	},
}

var projectProgressCmd = &cobra.Command{
	Use:   "progress <id>",
	Short: "Recompute project progress from tasks and milestones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pct, err := planClient.RecomputeProgress(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]int{"progress": pct})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d%%\n", args[0], pct)
		return nil
	},
}

var projectNextNumberCmd = &cobra.Command{
	Use:   "next-number <id>",
	Short: "Preview the number and WBS code the next task would get",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		n, err := planClient.NextNumber(context.Background(), args[0], parent)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), n)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  WBS %s\n", n.TaskNumber, n.WBSCode)
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().String("start", "", "start date (YYYY-MM-DD, required)")
	projectCreateCmd.Flags().String("end", "", "end date (YYYY-MM-DD, required)")
	_ = projectCreateCmd.MarkFlagRequired("start")
	_ = projectCreateCmd.MarkFlagRequired("end")

	projectNextNumberCmd.Flags().String("parent", "", "parent task id")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectProgressCmd)
	projectCmd.AddCommand(projectNextNumberCmd)
}
