package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuetracker/internal/output"
)

var projectJSON bool

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Inspect projects",
	Long:  "List the projects that hold issues and show which project names are accepted.",
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects with issue counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun()
	},
}

func init() {
	projectListCmd.Flags().BoolVar(&projectJSON, "json", false, "Print projects as JSON")

	projectCmd.AddCommand(projectListCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectListRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}

	projects, err := svc.Projects(context.Background())
	if err != nil {
		return err
	}

	if projectJSON {
		return ui.JSON(projects)
	}

	registry, err := getRegistry()
	if err != nil {
		return err
	}
	if allowed := registry.Allowed(); len(allowed) > 0 {
		ui.Info("Accepted projects: %s", strings.Join(allowed, ", "))
	}

	if len(projects) == 0 {
		ui.Info("No projects yet. Use 'issuetracker issue add <project>' to create one.")
		return nil
	}

	table := ui.Table([]string{"Project", "Issues", "Open"})
	for _, p := range projects {
		_ = table.Append([]string{
			output.Cyan(p.Name),
			fmt.Sprintf("%d", p.IssueCount),
			output.CountColor(p.OpenCount),
		})
	}
	_ = table.Render()
	return nil
}
