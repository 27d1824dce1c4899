package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/output"
)

var (
	issueTitle      string
	issueText       string
	issueCreatedBy  string
	issueAssignedTo string
	issueStatusText string
	issueOpen       string
	issueJSON       bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage a project's issues",
	Long:  "Create, list, update, and delete issues in the local database.",
}

var issueListCmd = &cobra.Command{
	Use:     "list <project>",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(args[0])
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add <project>",
	Short: "Add a new issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(args[0])
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <project> <issue-id>",
	Short: "Show an issue as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0], args[1])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <project> <issue-id>",
	Short: "Update an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd, args[0], args[1])
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <project> <issue-id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSetOpenRun(args[0], args[1], false)
	},
}

var issueReopenCmd = &cobra.Command{
	Use:   "reopen <project> <issue-id>",
	Short: "Reopen a closed issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSetOpenRun(args[0], args[1], true)
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <project> <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0], args[1])
	},
}

func init() {
	issueListCmd.Flags().StringVar(&issueOpen, "open", "", `Filter by open state: "true" or "false"`)
	issueListCmd.Flags().StringVar(&issueAssignedTo, "assigned-to", "", "Filter by assignee")
	issueListCmd.Flags().BoolVar(&issueJSON, "json", false, "Print issues as JSON")

	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueText, "text", "", "Issue text (required)")
	issueAddCmd.Flags().StringVar(&issueCreatedBy, "by", "", "Reporter (required)")
	issueAddCmd.Flags().StringVar(&issueAssignedTo, "assigned-to", "", "Assignee")
	issueAddCmd.Flags().StringVar(&issueStatusText, "status-text", "", "Free-form status")
	_ = issueAddCmd.MarkFlagRequired("title")
	_ = issueAddCmd.MarkFlagRequired("text")
	_ = issueAddCmd.MarkFlagRequired("by")

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueText, "text", "", "New text")
	issueUpdateCmd.Flags().StringVar(&issueAssignedTo, "assigned-to", "", "New assignee")
	issueUpdateCmd.Flags().StringVar(&issueStatusText, "status-text", "", "New status text")
	issueUpdateCmd.Flags().StringVar(&issueOpen, "open", "", `Set open state: "true" or "false"`)

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueCloseCmd)
	issueCmd.AddCommand(issueReopenCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueListRun(projectName string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	docs, err := svc.List(context.Background(), projectName, issues.ListQuery{
		Open:       issueOpen,
		AssignedTo: issueAssignedTo,
	})
	if err != nil {
		return err
	}

	if issueJSON {
		return ui.JSON(docs)
	}

	if len(docs) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "State", "Assigned", "Status", "Created By", "Updated"})
	for _, d := range docs {
		open, _ := d.Bool(models.FieldOpen)
		_ = table.Append([]string{
			d.ID(),
			d.String(models.FieldTitle),
			output.OpenColor(open),
			d.String(models.FieldAssignedTo),
			d.String(models.FieldStatusText),
			d.String(models.FieldCreatedBy),
			d.String(models.FieldUpdatedOn),
		})
	}
	_ = table.Render()
	return nil
}

func issueAddRun(projectName string) error {
	doc := models.Document{
		models.FieldTitle:     issueTitle,
		models.FieldText:      issueText,
		models.FieldCreatedBy: issueCreatedBy,
	}
	if issueAssignedTo != "" {
		doc[models.FieldAssignedTo] = issueAssignedTo
	}
	if issueStatusText != "" {
		doc[models.FieldStatusText] = issueStatusText
	}

	if dryRun {
		ui.DryRunMsg("Would create issue %q in %s", issueTitle, projectName)
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	res, err := svc.Create(context.Background(), projectName, doc)
	if err != nil {
		return err
	}

	ui.Success("Created issue %s in %s", output.Cyan(res.InsertedID), projectName)
	return nil
}

func issueShowRun(projectName, id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	doc, err := svc.Get(context.Background(), projectName, id)
	if err != nil {
		return err
	}
	return ui.JSON(doc)
}

// issueUpdateDocument collects the update flags the user actually set.
func issueUpdateDocument(cmd *cobra.Command) (models.Document, error) {
	doc := models.Document{}
	flags := map[string]string{
		"title":       models.FieldTitle,
		"text":        models.FieldText,
		"assigned-to": models.FieldAssignedTo,
		"status-text": models.FieldStatusText,
	}
	values := map[string]*string{
		"title":       &issueTitle,
		"text":        &issueText,
		"assigned-to": &issueAssignedTo,
		"status-text": &issueStatusText,
	}
	for flag, field := range flags {
		if cmd.Flags().Changed(flag) {
			doc[field] = *values[flag]
		}
	}
	if cmd.Flags().Changed("open") {
		switch issueOpen {
		case "true":
			doc[models.FieldOpen] = true
		case "false":
			doc[models.FieldOpen] = false
		default:
			return nil, fmt.Errorf("--open must be true or false, got %q", issueOpen)
		}
	}
	return doc, nil
}

func issueUpdateRun(cmd *cobra.Command, projectName, id string) error {
	doc, err := issueUpdateDocument(cmd)
	if err != nil {
		return err
	}
	if len(doc) == 0 {
		ui.Warning("Nothing to update")
	}
	return applyIssueUpdate(projectName, id, doc)
}

func issueSetOpenRun(projectName, id string, open bool) error {
	return applyIssueUpdate(projectName, id, models.Document{models.FieldOpen: open})
}

func applyIssueUpdate(projectName, id string, doc models.Document) error {
	if dryRun {
		fields := make([]string, 0, len(doc))
		for k := range doc {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		ui.DryRunMsg("Would update %s in %s: %v", id, projectName, fields)
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}

	doc[models.FieldID] = id
	res, err := svc.Update(context.Background(), projectName, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		ui.Warning("No issue %s in %s", id, projectName)
		return nil
	}
	if res.ModifiedCount == 0 {
		ui.Info("Issue %s unchanged", id)
		return nil
	}
	ui.Success("Updated issue %s", output.Cyan(id))
	return nil
}

func issueDeleteRun(projectName, id string) error {
	if dryRun {
		ui.DryRunMsg("Would delete issue %s from %s", id, projectName)
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	res, err := svc.Delete(context.Background(), projectName, id)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		ui.Warning("No issue %s in %s", id, projectName)
		return nil
	}
	ui.Success("Deleted issue %s", id)
	return nil
}
