package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/models"
)

var importCreatedBy string

var issueImportCmd = &cobra.Command{
	Use:   "import <project> <file>",
	Short: "Import issues from a markdown, YAML, or JSON file",
	Long: `Import issues in bulk.

A .yaml, .yml, or .json file holds a list of issue documents with the same
fields the REST API accepts. Any other file is read as markdown: every
numbered or bulleted item becomes an issue, and sub-items such as "1.1"
keep their parent line in issue_text. A "## Project <name>" heading sends
the items below it to that project instead of <project>.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueImportRun(args[0], args[1])
	},
}

func init() {
	issueImportCmd.Flags().StringVar(&importCreatedBy, "by", "", "created_by for issues that do not set one")
	issueCmd.AddCommand(issueImportCmd)
}

// importedIssue is one issue read from a file, bound for a project.
type importedIssue struct {
	Project string
	Doc     models.Document
}

func issueImportRun(projectName, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return fmt.Errorf("file is empty: %s", file)
	}

	var imported []importedIssue
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml", ".json":
		imported, err = parseDocumentIssues(data, projectName)
		if err != nil {
			return fmt.Errorf("parse %s: %w", file, err)
		}
	default:
		imported = parseMarkdownIssues(string(data), projectName)
	}

	if len(imported) == 0 {
		ui.Info("No issues found in file.")
		return nil
	}

	for _, im := range imported {
		if _, ok := im.Doc[models.FieldCreatedBy]; !ok && importCreatedBy != "" {
			im.Doc[models.FieldCreatedBy] = importCreatedBy
		}
	}

	table := ui.Table([]string{"#", "Project", "Title", "Created By"})
	for i, im := range imported {
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			im.Project,
			im.Doc.String(models.FieldTitle),
			im.Doc.String(models.FieldCreatedBy),
		})
	}
	_ = table.Render()

	if dryRun {
		ui.DryRunMsg("Would create %d issues", len(imported))
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	return createImportedIssues(context.Background(), svc, imported)
}

// parseDocumentIssues decodes a YAML or JSON list of issue documents.
func parseDocumentIssues(data []byte, projectName string) ([]importedIssue, error) {
	var docs []map[string]any
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	out := make([]importedIssue, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		out = append(out, importedIssue{Project: projectName, Doc: models.Document(d)})
	}
	return out, nil
}

// parseSubIssueNumber reports whether line starts with a sub-item number
// such as "1.1" or "2.3." and returns the text after it.
func parseSubIssueNumber(line string) (title string, ok bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != '.' {
		return "", false
	}
	i++
	start := i
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == start {
		return "", false // "1. text" is a top-level item
	}
	if i < len(line) && line[i] == '.' {
		i++
	}
	if i >= len(line) || line[i] != ' ' {
		return "", false
	}
	title = strings.TrimSpace(line[i:])
	return title, title != ""
}

// parseListItem returns the text of a "12. text", "- text", or "* text" line.
func parseListItem(line string) (title string, numbered bool) {
	if len(line) <= 2 {
		return "", false
	}
	for i, c := range line {
		if c == '.' && i > 0 && i < 4 {
			return strings.TrimSpace(line[i+1:]), true
		}
		if c < '0' || c > '9' {
			break
		}
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:]), false
	}
	return "", false
}

// parseMarkdownIssues turns list items into issues. The item line is the
// issue_text; sub-items carry their parent's line as well.
func parseMarkdownIssues(content, projectName string) []importedIssue {
	var out []importedIssue
	current := projectName
	lastParent := ""

	add := func(title, text string) {
		out = append(out, importedIssue{
			Project: current,
			Doc: models.Document{
				models.FieldTitle: title,
				models.FieldText:  text,
			},
		})
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		if heading, ok := strings.CutPrefix(line, "## "); ok {
			heading = strings.TrimSpace(heading)
			if strings.HasPrefix(strings.ToLower(heading), "project ") {
				current = strings.TrimSpace(heading[len("project "):])
			}
			lastParent = ""
			continue
		}

		if title, ok := parseSubIssueNumber(line); ok {
			text := line
			if lastParent != "" {
				text = lastParent + "\n" + line
			}
			add(title, text)
			continue
		}

		title, numbered := parseListItem(line)
		if title == "" {
			continue
		}
		if numbered {
			lastParent = line
		}
		add(title, line)
	}
	return out
}

// createImportedIssues creates each issue, warning about and counting the
// ones the service rejects.
func createImportedIssues(ctx context.Context, svc *issues.Service, imported []importedIssue) error {
	created, skipped := 0, 0
	projects := make(map[string]bool)

	for _, im := range imported {
		if _, err := svc.Create(ctx, im.Project, im.Doc); err != nil {
			ui.Warning("Skipping issue %q: %v", im.Doc.String(models.FieldTitle), err)
			skipped++
			continue
		}
		projects[im.Project] = true
		created++
	}

	ui.Success("Created %d issues across %d projects", created, len(projects))
	if skipped > 0 {
		ui.Warning("Skipped %d issues", skipped)
	}
	return nil
}
