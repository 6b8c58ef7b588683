package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── ProjectListTool ─────────────────────────────────────────────────────────

// ProjectListTool handles the project_list MCP tool.
type ProjectListTool struct {
	api      API
	projects *ProjectContext
}

// NewProjectListTool creates a ProjectListTool.
func NewProjectListTool(api API, projects *ProjectContext) *ProjectListTool {
	return &ProjectListTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for project_list.
func (t *ProjectListTool) Definition() mcp.Tool {
	return mcp.NewTool("project_list",
		mcp.WithDescription("List every project known to the devlog server. The current project is marked."),
	)
}

// Handle processes the project_list tool call.
func (t *ProjectListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := t.api.ListProjects(ctx)
	if err != nil {
		return failed("list projects", err), nil
	}
	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects yet. Create one with `devlog projects create` or the REST API."), nil
	}

	current, _ := t.projects.Current()
	var b strings.Builder
	fmt.Fprintf(&b, "%d projects:\n\n", len(projects))
	for _, p := range projects {
		marker := "  "
		if p.ID == current {
			marker = "* "
		}
		fmt.Fprintf(&b, "%s%s\n", marker, projectLine(p))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func projectLine(p hierarchy.Project) string {
	line := fmt.Sprintf("#%d %s", p.ID, p.Name)
	if p.FullName != "" {
		line += " (" + p.FullName + ")"
	}
	if p.Description != "" {
		line += " - " + p.Description
	}
	return line
}

// ─── ProjectCurrentTool ──────────────────────────────────────────────────────

// ProjectCurrentTool handles the project_current MCP tool.
type ProjectCurrentTool struct {
	api      API
	projects *ProjectContext
}

// NewProjectCurrentTool creates a ProjectCurrentTool.
func NewProjectCurrentTool(api API, projects *ProjectContext) *ProjectCurrentTool {
	return &ProjectCurrentTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for project_current.
func (t *ProjectCurrentTool) Definition() mcp.Tool {
	return mcp.NewTool("project_current",
		mcp.WithDescription("Show the project devlog tools act on when no project_id is passed."),
	)
}

// Handle processes the project_current tool call.
func (t *ProjectCurrentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := t.projects.Current()
	if id <= 0 {
		return mcp.NewToolResultText("No project selected. Use project_list and project_switch."), nil
	}
	p, err := t.api.GetProject(ctx, id)
	if err != nil {
		return failed(fmt.Sprintf("load project %d", id), err), nil
	}
	t.projects.Switch(p.ID, p.Name)
	return mcp.NewToolResultText("Current project: " + projectLine(*p)), nil
}

// ─── ProjectSwitchTool ───────────────────────────────────────────────────────

// ProjectSwitchTool handles the project_switch MCP tool.
type ProjectSwitchTool struct {
	api      API
	projects *ProjectContext
}

// NewProjectSwitchTool creates a ProjectSwitchTool.
func NewProjectSwitchTool(api API, projects *ProjectContext) *ProjectSwitchTool {
	return &ProjectSwitchTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for project_switch.
func (t *ProjectSwitchTool) Definition() mcp.Tool {
	return mcp.NewTool("project_switch",
		mcp.WithDescription("Make another project current for this session, by ID or by name."),
		mcp.WithNumber("project_id", mcp.Description("Project ID")),
		mcp.WithString("name", mcp.Description("Project name, or owner/repo")),
	)
}

// Handle processes the project_switch tool call.
func (t *ProjectSwitchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := int64Arg(req, "project_id", 0); id > 0 {
		p, err := t.api.GetProject(ctx, id)
		if err != nil {
			return failed(fmt.Sprintf("switch to project %d", id), err), nil
		}
		t.projects.Switch(p.ID, p.Name)
		return mcp.NewToolResultText("Switched to project " + projectLine(*p)), nil
	}

	name := strings.TrimSpace(req.GetString("name", ""))
	if name == "" {
		return mcp.NewToolResultError("pass 'project_id' or 'name'"), nil
	}
	projects, err := t.api.ListProjects(ctx)
	if err != nil {
		return failed("list projects", err), nil
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, name) || (p.FullName != "" && strings.EqualFold(p.FullName, name)) {
			t.projects.Switch(p.ID, p.Name)
			return mcp.NewToolResultText("Switched to project " + projectLine(p)), nil
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("no project named %q; use project_list to see the available projects", name)), nil
}
