package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/models"
)

// resetIssueFlags clears the package-level flag values between tests.
func resetIssueFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		issueTitle, issueText, issueCreatedBy = "", "", ""
		issueAssignedTo, issueStatusText, issueOpen = "", "", ""
		issueJSON, projectJSON = false, false
	}
	reset()
	t.Cleanup(reset)
}

func addTestIssue(t *testing.T, projectName, title, assignee string) string {
	t.Helper()
	svc, err := getService()
	require.NoError(t, err)
	res, err := svc.Create(context.Background(), projectName, models.Document{
		models.FieldTitle:      title,
		models.FieldText:       "text for " + title,
		models.FieldCreatedBy:  "Joe",
		models.FieldAssignedTo: assignee,
	})
	require.NoError(t, err)
	return res.InsertedID
}

func getTestIssue(t *testing.T, projectName, id string) models.Document {
	t.Helper()
	svc, err := getService()
	require.NoError(t, err)
	doc, err := svc.Get(context.Background(), projectName, id)
	require.NoError(t, err)
	return doc
}

func outString() string    { return ui.Out.(*bytes.Buffer).String() }
func errOutString() string { return ui.ErrOut.(*bytes.Buffer).String() }

func TestIssueAddRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	issueTitle = "Fix login"
	issueText = "Safari fails"
	issueCreatedBy = "Joe"
	issueAssignedTo = "Ann"
	require.NoError(t, issueAddRun("myapp"))
	assert.Contains(t, outString(), "Created issue")

	svc, err := getService()
	require.NoError(t, err)
	docs, err := svc.List(context.Background(), "myapp", issues.ListQuery{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Ann", docs[0][models.FieldAssignedTo])
	assert.Equal(t, "", docs[0][models.FieldStatusText])
	assert.Equal(t, true, docs[0][models.FieldOpen])
}

func TestIssueAddRun_MissingFields(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	issueTitle = "only a title"
	err := issueAddRun("myapp")
	require.Error(t, err)
	assert.Equal(t, issues.KindValidation, issues.KindOf(err))
}

func TestIssueAddRun_DryRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	dryRun = true
	ui.DryRun = true

	issueTitle = "Fix login"
	require.NoError(t, issueAddRun("myapp"))
	assert.Contains(t, errOutString(), "Would create issue")
	assert.Nil(t, dataStore, "dry run should not open the database")
}

func TestIssueListRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	addTestIssue(t, "myapp", "First", "Joe")
	addTestIssue(t, "myapp", "Second", "Ann")

	require.NoError(t, issueListRun("myapp"))
	out := outString()
	assert.Contains(t, out, "First")
	assert.Contains(t, out, "Second")

	ui.Out.(*bytes.Buffer).Reset()
	issueAssignedTo = "Ann"
	require.NoError(t, issueListRun("myapp"))
	out = outString()
	assert.Contains(t, out, "Second")
	assert.NotContains(t, out, "First")
}

func TestIssueListRun_Empty(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	require.NoError(t, issueListRun("myapp"))
	assert.Contains(t, outString(), "No issues found")
}

func TestIssueListRun_JSON(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	id := addTestIssue(t, "myapp", "First", "")

	issueJSON = true
	require.NoError(t, issueListRun("myapp"))
	assert.Contains(t, outString(), `"_id": "`+id+`"`)
}

func TestIssueListRun_BadOpenFilter(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	addTestIssue(t, "myapp", "First", "")

	// Anything but "true" or "false" leaves the filter off.
	issueOpen = "yes"
	require.NoError(t, issueListRun("myapp"))
	assert.Contains(t, outString(), "First")
}

func TestIssueListRun_UnknownProject(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	viper.Set("projects.allowed", []string{"apitest"})

	err := issueListRun("other")
	require.Error(t, err)
	assert.Equal(t, issues.KindNotFound, issues.KindOf(err))
}

func TestIssueShowRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	id := addTestIssue(t, "myapp", "First", "")

	require.NoError(t, issueShowRun("myapp", id))
	assert.Contains(t, outString(), `"issue_title": "First"`)

	err := issueShowRun("myapp", "01HZ0000000000000000000000")
	require.Error(t, err)
	assert.Equal(t, issues.KindNotFound, issues.KindOf(err))
}

// newUpdateFlagsCmd mirrors the update command's flag set so Changed starts clean.
func newUpdateFlagsCmd() *cobra.Command {
	c := &cobra.Command{Use: "update"}
	c.Flags().StringVar(&issueTitle, "title", "", "")
	c.Flags().StringVar(&issueText, "text", "", "")
	c.Flags().StringVar(&issueAssignedTo, "assigned-to", "", "")
	c.Flags().StringVar(&issueStatusText, "status-text", "", "")
	c.Flags().StringVar(&issueOpen, "open", "", "")
	return c
}

func TestIssueUpdateDocument(t *testing.T) {
	resetIssueFlags(t)

	c := newUpdateFlagsCmd()
	require.NoError(t, c.Flags().Set("status-text", "In QA"))
	require.NoError(t, c.Flags().Set("open", "false"))

	doc, err := issueUpdateDocument(c)
	require.NoError(t, err)
	assert.Equal(t, models.Document{
		models.FieldStatusText: "In QA",
		models.FieldOpen:       false,
	}, doc)
}

func TestIssueUpdateDocument_BadOpen(t *testing.T) {
	resetIssueFlags(t)

	c := newUpdateFlagsCmd()
	require.NoError(t, c.Flags().Set("open", "maybe"))

	_, err := issueUpdateDocument(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--open")
}

func TestIssueUpdateRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	id := addTestIssue(t, "myapp", "First", "")

	c := newUpdateFlagsCmd()
	require.NoError(t, c.Flags().Set("assigned-to", "Ann"))
	require.NoError(t, issueUpdateRun(c, "myapp", id))
	assert.Contains(t, outString(), "Updated issue")

	doc := getTestIssue(t, "myapp", id)
	assert.Equal(t, "Ann", doc[models.FieldAssignedTo])
	assert.Equal(t, "First", doc[models.FieldTitle])
}

func TestIssueUpdateRun_NoMatch(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	c := newUpdateFlagsCmd()
	require.NoError(t, c.Flags().Set("title", "x"))
	require.NoError(t, issueUpdateRun(c, "myapp", "01HZ0000000000000000000000"))
	assert.Contains(t, errOutString(), "No issue")
}

func TestIssueUpdateRun_InvalidID(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	c := newUpdateFlagsCmd()
	require.NoError(t, c.Flags().Set("title", "x"))
	err := issueUpdateRun(c, "myapp", "2")
	require.Error(t, err)
	assert.Equal(t, issues.KindValidation, issues.KindOf(err))
}

func TestIssueCloseAndReopen(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	id := addTestIssue(t, "myapp", "First", "")

	require.NoError(t, issueSetOpenRun("myapp", id, false))
	assert.Equal(t, false, getTestIssue(t, "myapp", id)[models.FieldOpen])

	require.NoError(t, issueSetOpenRun("myapp", id, true))
	assert.Equal(t, true, getTestIssue(t, "myapp", id)[models.FieldOpen])
}

func TestIssueDeleteRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	id := addTestIssue(t, "myapp", "First", "")

	require.NoError(t, issueDeleteRun("myapp", id))
	assert.Contains(t, outString(), "Deleted issue")

	require.NoError(t, issueDeleteRun("myapp", id))
	assert.Contains(t, errOutString(), "No issue")
}

func TestIssueDeleteRun_DryRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	id := addTestIssue(t, "myapp", "First", "")
	dryRun = true
	ui.DryRun = true

	require.NoError(t, issueDeleteRun("myapp", id))
	assert.Contains(t, errOutString(), "Would delete issue")
	assert.Equal(t, "First", getTestIssue(t, "myapp", id)[models.FieldTitle])
}

func TestProjectListRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	require.NoError(t, projectListRun())
	assert.Contains(t, outString(), "No projects yet")

	addTestIssue(t, "alpha", "First", "")
	id := addTestIssue(t, "beta", "Second", "")
	addTestIssue(t, "beta", "Third", "")
	require.NoError(t, issueSetOpenRun("beta", id, false))

	ui.Out.(*bytes.Buffer).Reset()
	projectJSON = true
	require.NoError(t, projectListRun())
	out := outString()
	assert.Contains(t, out, `"name": "alpha"`)
	assert.Contains(t, out, `"name": "beta"`)
	assert.Contains(t, out, `"issue_count": 2`)
	assert.Contains(t, out, `"open_count": 1`)
}

func TestProjectListRun_ShowsAllowList(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	viper.Set("projects.allowed", []string{"beta", "alpha"})

	require.NoError(t, projectListRun())
	assert.Contains(t, outString(), "Accepted projects: alpha, beta")
}

func TestProjectListRun_NoAllowList(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	require.NoError(t, projectListRun())
	assert.NotContains(t, outString(), "Accepted projects")
}
