package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planline/internal/client"
	"github.com/alfredjeanlab/planline/internal/model"
)

var milestoneCmd = &cobra.Command{
	Use:     "milestone",
	Aliases: []string{"ms"},
	Short:   "Manage milestones and gates",
	GroupID: "plan",
}

var milestoneCreateCmd = &cobra.Command{
	Use:   "create <project-id> <name>",
	Short: "Create a milestone",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		dateFlag, _ := f.GetString("date")
		planned, err := parseDate("date", dateFlag)
		if err != nil {
			return err
		}
		req := &client.CreateMilestoneRequest{Name: args[1], PlannedDate: planned}
		req.Type, _ = f.GetString("type")
		req.IsGate, _ = f.GetBool("gate")
		req.GateCategory, _ = f.GetString("gate-category")
		req.Approvers, _ = f.GetStringSlice("approver")
		req.ApprovalRequired, _ = f.GetBool("approval")
		req.MilestoneDependencies, _ = f.GetStringSlice("after")
		req.TaskDependencies, _ = f.GetStringSlice("needs")
		req.ProgressWeight, _ = f.GetInt("weight")
		if len(req.Approvers) > 0 {
			req.ApprovalRequired = true
		}
		if f.Changed("baseline") {
			s, _ := f.GetString("baseline")
			b, err := parseDate("baseline", s)
			if err != nil {
				return err
			}
			req.BaselineDate = &b
		}
		if f.Changed("reminder-days") {
			d, _ := f.GetInt("reminder-days")
			req.ReminderDays = &d
		}

		m, err := planClient.CreateMilestone(context.Background(), args[0], req)
		if err != nil {
			return err
		}
		return printMilestoneResult(cmd, m, "Created milestone %s: %s\n", m.ID, m.Name)
	},
}

var milestoneListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List a project's milestones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := planClient.ListMilestones(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), ms)
		}
		return printMilestoneList(cmd.OutOrStdout(), ms)
	},
}

var milestoneShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a milestone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := planClient.GetMilestone(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), m)
		}
		printMilestone(cmd.OutOrStdout(), m)
		return nil
	},
}

var milestoneDepsCmd = &cobra.Command{
	Use:   "deps <id>",
	Short: "Replace a milestone's milestone and task dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		after, _ := cmd.Flags().GetStringSlice("after")
		needs, _ := cmd.Flags().GetStringSlice("needs")
		m, err := planClient.UpdateMilestoneDependencies(context.Background(), args[0], after, needs)
		if err != nil {
			return err
		}
		return printMilestoneResult(cmd, m, "%s: %d milestone and %d task dependencies\n",
			m.ID, len(m.MilestoneDependencies), len(m.TaskDependencies))
	},
}

var milestoneAchieveCmd = &cobra.Command{
	Use:   "achieve <id>",
	Short: "Mark a milestone achieved once its gate conditions hold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := planClient.AchieveMilestone(context.Background(), args[0])
		if err != nil {
			return gateError(cmd, err)
		}
		return printMilestoneResult(cmd, m, "%s achieved on %s\n", m.ID, fmtDate(m.ActualDate))
	},
}

func approvalCmd(use, short string, decision model.ApprovalStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := planClient.SetMilestoneApproval(context.Background(), args[0], decision)
			if err != nil {
				return gateError(cmd, err)
			}
			return printMilestoneResult(cmd, m, "%s approval: %s by %s\n", m.ID, m.ApprovalStatus, actor)
		},
	}
}

var milestoneCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a milestone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := planClient.CancelMilestone(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printMilestoneResult(cmd, m, "%s cancelled\n", m.ID)
	},
}

var milestoneDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a milestone no other milestone depends on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := planClient.DeleteMilestone(context.Background(), args[0]); err != nil {
			return gateError(cmd, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func printMilestoneResult(cmd *cobra.Command, m *model.Milestone, format string, args ...any) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), m)
	}
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	return nil
}

// gateError lists the unmet conditions of a rejected gate before returning
// the error.
func gateError(cmd *cobra.Command, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		for _, u := range apiErr.Unmet {
			fmt.Fprintf(cmd.ErrOrStderr(), "  unmet: %s\n", u)
		}
	}
	return err
}

func init() {
	f := milestoneCreateCmd.Flags()
	f.String("date", "", "planned date (YYYY-MM-DD, required)")
	f.String("baseline", "", "baseline date (YYYY-MM-DD)")
	f.String("type", "", "free-form milestone type")
	f.Bool("gate", false, "make the milestone a gate")
	f.String("gate-category", "", "gate category")
	f.Bool("approval", false, "require approval before achievement")
	f.StringSlice("approver", nil, "allowed approver (repeatable; implies --approval)")
	f.StringSlice("after", nil, "milestone ids that must be achieved first")
	f.StringSlice("needs", nil, "task ids that must be completed first")
	f.Int("weight", 0, "progress weight (0-100)")
	f.Int("reminder-days", 0, "days before the planned date to flag at risk")
	_ = milestoneCreateCmd.MarkFlagRequired("date")

	milestoneDepsCmd.Flags().StringSlice("after", nil, "milestone ids that must be achieved first")
	milestoneDepsCmd.Flags().StringSlice("needs", nil, "task ids that must be completed first")

	milestoneCmd.AddCommand(milestoneCreateCmd)
	milestoneCmd.AddCommand(milestoneListCmd)
	milestoneCmd.AddCommand(milestoneShowCmd)
	milestoneCmd.AddCommand(milestoneDepsCmd)
	milestoneCmd.AddCommand(milestoneAchieveCmd)
	milestoneCmd.AddCommand(approvalCmd("approve", "Approve a milestone as the current actor", model.ApprovalApproved))
	milestoneCmd.AddCommand(approvalCmd("reject", "Reject a milestone as the current actor", model.ApprovalRejected))
	milestoneCmd.AddCommand(milestoneCancelCmd)
	milestoneCmd.AddCommand(milestoneDeleteCmd)
}
