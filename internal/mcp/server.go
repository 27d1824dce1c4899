package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/models"
)

// Server exposes the issue service as MCP tools.
type Server struct {
	issues  *issues.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *issues.Service, version string) *Server {
	return &Server{issues: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("issuetracker", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// optional string fields accepted by create and update
var issueStringFields = []struct {
	name string
	desc string
}{
	{models.FieldTitle, "Issue title"},
	{models.FieldText, "Issue text"},
	{models.FieldCreatedBy, "Who reported the issue"},
	{models.FieldAssignedTo, "Assignee"},
	{models.FieldStatusText, "Free-form status"},
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// documentFromArgs copies the issue fields present in the request.
func documentFromArgs(request mcp.CallToolRequest) models.Document {
	args := request.GetArguments()
	doc := models.Document{}
	for _, f := range issueStringFields {
		if _, ok := args[f.name]; ok {
			doc[f.name] = request.GetString(f.name, "")
		}
	}
	if _, ok := args[models.FieldOpen]; ok {
		doc[models.FieldOpen] = request.GetBool(models.FieldOpen, true)
	}
	return doc
}

// issues_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_projects",
		mcp.WithDescription("List projects that have issues, with total and open counts."),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.issues.Projects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	return jsonResult(projects)
}

// issues_list
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_list",
		mcp.WithDescription("List a project's issues. Returns a JSON array of issue documents."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("open", mcp.Description(`Filter by open state: "true" or "false"`)),
		mcp.WithString("assigned_to", mcp.Description("Filter by assignee")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectName, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	docs, err := s.issues.List(ctx, projectName, issues.ListQuery{
		Open:       request.GetString("open", ""),
		AssignedTo: request.GetString("assigned_to", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}
	return jsonResult(docs)
}

// issues_create
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Create an issue. issue_title, issue_text and created_by are required. Returns the insert acknowledgment with insertedId."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
	}
	for _, f := range issueStringFields {
		propOpts := []mcp.PropertyOption{mcp.Description(f.desc)}
		switch f.name {
		case models.FieldTitle, models.FieldText, models.FieldCreatedBy:
			propOpts = append(propOpts, mcp.Required())
		}
		opts = append(opts, mcp.WithString(f.name, propOpts...))
	}
	opts = append(opts, mcp.WithBoolean(models.FieldOpen, mcp.Description("Whether the issue is open (default true)")))

	return mcp.NewTool("issues_create", opts...), s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectName, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	res, err := s.issues.Create(ctx, projectName, documentFromArgs(request))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create issue: %v", err)), nil
	}
	return jsonResult(res)
}

// issues_update
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Update fields of an issue. Returns the update acknowledgment; matchedCount is 0 when no issue has the id."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue _id")),
	}
	for _, f := range issueStringFields {
		opts = append(opts, mcp.WithString(f.name, mcp.Description("New "+f.desc)))
	}
	opts = append(opts, mcp.WithBoolean(models.FieldOpen, mcp.Description("Open or close the issue")))

	return mcp.NewTool("issues_update", opts...), s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectName, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	doc := documentFromArgs(request)
	doc[models.FieldID] = id

	res, err := s.issues.Update(ctx, projectName, doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update issue: %v", err)), nil
	}
	return jsonResult(res)
}

// issues_delete
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_delete",
		mcp.WithDescription("Delete an issue. Returns the delete acknowledgment; deletedCount is 0 when no issue has the id."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue _id")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectName, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	res, err := s.issues.Delete(ctx, projectName, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete issue: %v", err)), nil
	}
	return jsonResult(res)
}
