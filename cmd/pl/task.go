package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planline/internal/client"
	"github.com/alfredjeanlab/planline/internal/model"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Short:   "Manage tasks and their dependencies",
	GroupID: "plan",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <project-id> <title>",
	Short: "Create a task",
	Long: `Create a task in a project. The task number and WBS code are assigned
by the server.

Dependencies are given as --dep target[:relation[:lag]], for example
--dep tsk-a1 --dep tsk-b2:ss:4 for a start-to-start edge with a 4 hour lag.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		status, _ := cmd.Flags().GetString("status")
		depFlags, _ := cmd.Flags().GetStringArray("dep")

		deps, err := parseDeps(depFlags)
		if err != nil {
			return err
		}
		req := &client.CreateTaskRequest{
			Title:        args[1],
			ParentID:     parent,
			Status:       status,
			Dependencies: deps,
		}
		if cmd.Flags().Changed("hours") {
			h, _ := cmd.Flags().GetFloat64("hours")
			req.EstimatedHours = &h
		}
		if cmd.Flags().Changed("percent") {
			pct, _ := cmd.Flags().GetInt("percent")
			req.PercentComplete = &pct
		}

		t, err := planClient.CreateTask(context.Background(), args[0], req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), t)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (WBS %s): %s\n", t.TaskNumber, t.ID, t.WBSCode, t.Title)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List a project's tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := planClient.ListTasks(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tasks)
		}
		return printTaskList(cmd.OutOrStdout(), tasks)
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := planClient.GetTask(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), t)
		}
		printTask(cmd.OutOrStdout(), t)
		return nil
	},
}

var taskStatusCmd = &cobra.Command{
	Use:       "status <id> <todo|in_progress|completed|cancelled>",
	Short:     "Set a task's status",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"todo", "in_progress", "completed", "cancelled"},
	RunE: func(cmd *cobra.Command, args []string) error {
		status := model.TaskStatus(args[1])
		if !status.IsValid() {
			return fmt.Errorf("invalid status %q", args[1])
		}
		t, err := planClient.UpdateTaskStatus(context.Background(), args[0], status)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), t)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", t.ID, t.Status)
		return nil
	},
}

var taskProgressCmd = &cobra.Command{
	Use:   "progress <id> <percent>",
	Short: "Record a task's completion percentage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pct, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid percent %q", args[1])
		}
		t, err := planClient.SetTaskProgress(context.Background(), args[0], pct)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), t)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", t.ID, fmtPercent(t.PercentComplete), t.Status)
		return nil
	},
}

var taskDepsCmd = &cobra.Command{
	Use:   "deps <id> [target[:relation[:lag]]...]",
	Short: "Replace a task's dependencies",
	Long:  "Replace the full dependency list of a task. Pass no targets to clear it.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := parseDeps(args[1:])
		if err != nil {
			return err
		}
		t, err := planClient.UpdateTaskDependencies(context.Background(), args[0], deps)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), t)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now depends on %d tasks\n", t.ID, len(t.Dependencies))
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task and remove it from other tasks' dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := planClient.DeleteTask(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	taskCreateCmd.Flags().String("parent", "", "parent task id")
	taskCreateCmd.Flags().String("status", "", "initial status")
	taskCreateCmd.Flags().Float64("hours", 0, "estimated effort in hours")
	taskCreateCmd.Flags().Int("percent", 0, "initial completion percentage")
	taskCreateCmd.Flags().StringArray("dep", nil, "dependency target[:relation[:lag]] (repeatable)")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskProgressCmd)
	taskCmd.AddCommand(taskDepsCmd)
	taskCmd.AddCommand(taskDeleteCmd)
}
