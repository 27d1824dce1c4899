package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/models"
)

var (
	reportFormat  string
	exportType    string
	exportProject string
)

// reportNow is replaced in tests.
var reportNow = time.Now

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data as JSON, CSV, or Markdown",
	Long:  "Export projects or issues in various formats. Issues come from every project unless --project is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&reportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "issues", "Data type: projects, issues")
	exportCmd.Flags().StringVar(&exportProject, "project", "", "Only export this project's issues")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch exportType {
	case "projects":
		return exportProjects(ctx, svc)
	case "issues":
		return exportIssues(ctx, svc)
	default:
		return fmt.Errorf("unknown export type: %s (use: projects, issues)", exportType)
	}
}

func exportProjects(ctx context.Context, svc *issues.Service) error {
	projects, err := svc.Projects(ctx)
	if err != nil {
		return err
	}

	switch reportFormat {
	case "json":
		return ui.JSON(projects)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"Name", "Issues", "Open"})
		for _, p := range projects {
			_ = w.Write([]string{p.Name, fmt.Sprintf("%d", p.IssueCount), fmt.Sprintf("%d", p.OpenCount)})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Projects")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Name | Issues | Open |")
		fmt.Fprintln(ui.Out, "|------|--------|------|")
		for _, p := range projects {
			fmt.Fprintf(ui.Out, "| %s | %d | %d |\n", p.Name, p.IssueCount, p.OpenCount)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", reportFormat)
	}
}

// projectIssues pairs a project name with its issues.
type projectIssues struct {
	Project string            `json:"project"`
	Issues  []models.Document `json:"issues"`
}

func collectIssues(ctx context.Context, svc *issues.Service) ([]projectIssues, error) {
	names := []string{exportProject}
	if exportProject == "" {
		projects, err := svc.Projects(ctx)
		if err != nil {
			return nil, err
		}
		names = names[:0]
		for _, p := range projects {
			names = append(names, p.Name)
		}
	}

	out := make([]projectIssues, 0, len(names))
	for _, name := range names {
		docs, err := svc.List(ctx, name, issues.ListQuery{})
		if err != nil {
			return nil, err
		}
		out = append(out, projectIssues{Project: name, Issues: docs})
	}
	return out, nil
}

func openLabel(d models.Document) string {
	if open, _ := d.Bool(models.FieldOpen); open {
		return "open"
	}
	return "closed"
}

func exportIssues(ctx context.Context, svc *issues.Service) error {
	groups, err := collectIssues(ctx, svc)
	if err != nil {
		return err
	}

	switch reportFormat {
	case "json":
		return ui.JSON(groups)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"Project", "ID", "Title", "State", "Assigned", "Status", "Created By", "Created", "Updated"})
		for _, g := range groups {
			for _, d := range g.Issues {
				_ = w.Write([]string{
					g.Project, d.ID(), d.String(models.FieldTitle), openLabel(d),
					d.String(models.FieldAssignedTo), d.String(models.FieldStatusText),
					d.String(models.FieldCreatedBy), d.String(models.FieldCreatedOn), d.String(models.FieldUpdatedOn),
				})
			}
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Issues")
		for _, g := range groups {
			fmt.Fprintln(ui.Out)
			fmt.Fprintf(ui.Out, "## %s\n\n", g.Project)
			fmt.Fprintln(ui.Out, "| Title | State | Assigned | Status |")
			fmt.Fprintln(ui.Out, "|-------|-------|----------|--------|")
			for _, d := range g.Issues {
				fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n",
					d.String(models.FieldTitle), openLabel(d),
					d.String(models.FieldAssignedTo), d.String(models.FieldStatusText))
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", reportFormat)
	}
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate reports",
	Long:  "Generate summary reports of issue activity.",
}

var reportWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Generate weekly activity summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportWeeklyRun()
	},
}

func init() {
	reportCmd.AddCommand(reportWeeklyCmd)
	rootCmd.AddCommand(reportCmd)
}

// updatedSince reports whether d's updated_on is at or after since.
// Documents without a parseable timestamp count as not updated.
func updatedSince(d models.Document, since time.Time) bool {
	ts, err := time.Parse(models.TimestampLayout, d.String(models.FieldUpdatedOn))
	if err != nil {
		return false
	}
	return !ts.Before(since)
}

func reportWeeklyRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	exportProject = ""
	groups, err := collectIssues(ctx, svc)
	if err != nil {
		return err
	}

	since := reportNow().AddDate(0, 0, -7)

	fmt.Fprintln(ui.Out, "# Weekly Report")
	fmt.Fprintln(ui.Out)

	for _, g := range groups {
		open, closed := 0, 0
		var touched []string
		for _, d := range g.Issues {
			if o, _ := d.Bool(models.FieldOpen); o {
				open++
			} else {
				closed++
			}
			if updatedSince(d, since) {
				touched = append(touched, d.String(models.FieldTitle))
			}
		}

		fmt.Fprintf(ui.Out, "## %s\n", g.Project)
		fmt.Fprintf(ui.Out, "- Issues: %d open, %d closed\n", open, closed)
		if len(touched) > 0 {
			fmt.Fprintf(ui.Out, "- Updated this week: %s\n", strings.Join(touched, ", "))
		}
		fmt.Fprintln(ui.Out)
	}

	return nil
}
