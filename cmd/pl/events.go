package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planline/internal/client"
)

var eventsCmd = &cobra.Command{
	Use:     "events <project-id>",
	Short:   "List the recorded events of a project",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		evts, err := planClient.GetEvents(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), evts)
		}
		for _, e := range evts {
			printEvent(cmd.OutOrStdout(), e)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live events from the server",
	Long: `Stream live events until interrupted. Topics accept NATS-style
wildcards, for example --topic 'planline.milestone.*'.`,
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		topics, _ := cmd.Flags().GetStringSlice("topic")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		err := planClient.StreamEvents(ctx, project, topics, func(e client.StreamEvent) error {
			if jsonOutput {
				return printJSON(out, e.Event)
			}
			printEvent(out, e.Event)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err == nil {
			return fmt.Errorf("event stream closed by server")
		}
		return err
	},
}

func init() {
	watchCmd.Flags().String("project", "", "only events of this project")
	watchCmd.Flags().StringSlice("topic", nil, "topic pattern to follow (repeatable)")
}
