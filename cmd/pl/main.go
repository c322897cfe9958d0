package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planline/internal/client"
	"github.com/alfredjeanlab/planline/internal/ui"
)

var (
	serverURL  string
	token      string
	orgID      string
	jsonOutput bool
	actor      string
	noColor    bool

	planClient client.PlanClient
)

func defaultActor() string {
	if s := os.Getenv("PLANLINE_ACTOR"); s != "" {
		return s
	}
	out, err := exec.Command("git", "config", "user.name").Output()
	if err == nil {
		name := strings.TrimSpace(string(out))
		if name != "" {
			return name
		}
	}
	return "unknown"
}

func defaultServerURL() string {
	if s := os.Getenv("PLANLINE_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("PLANLINE_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

func defaultOrg() string {
	if s := os.Getenv("PLANLINE_ORG"); s != "" {
		return s
	}
	return activeRemote().Org
}

var rootCmd = &cobra.Command{
	Use:           "pl <command>",
	Short:         "Project scheduling and critical path planning",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		planClient = client.NewHTTPClient(serverURL, token, client.WithOrg(orgID), client.WithActor(actor))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if planClient != nil {
			planClient.Close()
		}
	},
}

// localCommand disables the client setup for commands that never talk to
// a server.
func localCommand(cmd *cobra.Command) *cobra.Command {
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		return nil
	}
	return cmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "planline server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().StringVar(&orgID, "org", defaultOrg(), "organization to act in")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "actor name for created_by and approvals")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "plan", Title: "Planning:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Planning
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(milestoneCmd)

	// Views
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cpmCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
