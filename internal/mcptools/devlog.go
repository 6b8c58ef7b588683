package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── CreateTool ──────────────────────────────────────────────────────────────

// CreateTool handles the devlog_create MCP tool.
type CreateTool struct {
	api      API
	projects *ProjectContext
}

// NewCreateTool creates a CreateTool.
func NewCreateTool(api API, projects *ProjectContext) *CreateTool {
	return &CreateTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_create.
func (t *CreateTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_create",
		mcp.WithDescription(
			"Create a devlog entry for a unit of work (feature, bugfix, task, refactor, docs). "+
				"Call this BEFORE starting significant work so progress, decisions and context survive across sessions.",
		),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short, searchable title")),
		mcp.WithString("type",
			mcp.Description("Kind of work (default: task)"),
			mcp.Enum("feature", "bugfix", "task", "refactor", "docs"),
		),
		mcp.WithString("description", mcp.Description("What needs to be done")),
		mcp.WithString("priority",
			mcp.Description("Priority (default: medium)"),
			mcp.Enum("low", "medium", "high", "critical"),
		),
		mcp.WithString("assignee", mcp.Description("Who owns the work")),
		mcp.WithString("key", mcp.Description("Semantic key (default: derived from the title)")),
		mcp.WithString("business_context", mcp.Description("Why this matters to users or the business")),
		mcp.WithString("technical_context", mcp.Description("Architecture, constraints, affected components")),
		mcp.WithString("acceptance_criteria", mcp.Description("Comma-separated acceptance criteria")),
		mcp.WithString("files", mcp.Description("Comma-separated file paths involved")),
		mcp.WithString("initial_insights", mcp.Description("Comma-separated first observations for the AI context")),
		withProjectID(),
	)
}

// Handle processes the devlog_create tool call.
func (t *CreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if strings.TrimSpace(title) == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in := service.CreateInput{
		Key:         req.GetString("key", ""),
		Title:       title,
		Type:        devlog.EntryType(req.GetString("type", "")),
		Description: req.GetString("description", ""),
		Priority:    devlog.Priority(req.GetString("priority", "")),
		Assignee:    req.GetString("assignee", ""),
		Files:       listArg(req, "files"),
		Context: devlog.Context{
			BusinessContext:    req.GetString("business_context", ""),
			TechnicalContext:   req.GetString("technical_context", ""),
			AcceptanceCriteria: listArg(req, "acceptance_criteria"),
		},
		AIContext: devlog.AIContext{KeyInsights: listArg(req, "initial_insights")},
	}
	e, err := t.api.CreateDevlog(ctx, projectID, in)
	if err != nil {
		return failed("create devlog entry", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Devlog entry created: %s\nID: %d", summaryLine(e), e.ID)), nil
}

// ─── GetTool ─────────────────────────────────────────────────────────────────

// GetTool handles the devlog_get MCP tool.
type GetTool struct {
	api      API
	projects *ProjectContext
}

// NewGetTool creates a GetTool.
func NewGetTool(api API, projects *ProjectContext) *GetTool {
	return &GetTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_get.
func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_get",
		mcp.WithDescription("Get a devlog entry with its context and most recent notes. Use this to resume work on an entry."),
		idArg(),
		mcp.WithNumber("notes", mcp.Description("How many recent notes to include (default: 10, -1 for all)")),
		withProjectID(),
	)
}

// Handle processes the devlog_get tool call.
func (t *GetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := t.api.GetDevlog(ctx, projectID, id)
	if err != nil {
		return failed(fmt.Sprintf("get devlog entry %d", id), err), nil
	}
	return mcp.NewToolResultText(formatEntry(e, intArg(req, "notes", 10))), nil
}

// ─── UpdateTool ──────────────────────────────────────────────────────────────

// UpdateTool handles the devlog_update MCP tool.
type UpdateTool struct {
	api      API
	projects *ProjectContext
}

// NewUpdateTool creates an UpdateTool.
func NewUpdateTool(api API, projects *ProjectContext) *UpdateTool {
	return &UpdateTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_update.
func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_update",
		mcp.WithDescription(
			"Update fields of a devlog entry. Only the fields you pass change. "+
				"Pass 'note' to record progress in the same call.",
		),
		idArg(),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status",
			mcp.Description("New status"),
			mcp.Enum("new", "in-progress", "blocked", "in-review", "testing", "done", "cancelled"),
		),
		mcp.WithString("priority", mcp.Description("New priority"), mcp.Enum("low", "medium", "high", "critical")),
		mcp.WithString("type", mcp.Description("New type"), mcp.Enum("feature", "bugfix", "task", "refactor", "docs")),
		mcp.WithString("assignee", mcp.Description("New assignee")),
		mcp.WithString("business_context", mcp.Description("Replace the business context")),
		mcp.WithString("technical_context", mcp.Description("Replace the technical context")),
		mcp.WithString("acceptance_criteria", mcp.Description("Comma-separated criteria; replaces the list")),
		mcp.WithString("files", mcp.Description("Comma-separated file paths; replaces the list")),
		mcp.WithString("note", mcp.Description("Progress note to append")),
		mcp.WithString("note_category",
			mcp.Description("Category of the note (default: progress)"),
			mcp.Enum("progress", "issue", "solution", "idea", "reminder", "feedback", "acceptance-criteria"),
		),
		withProjectID(),
	)
}

// Handle processes the devlog_update tool call.
func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in := service.UpdateInput{
		Title:              optString(req, "title"),
		Description:        optString(req, "description"),
		Assignee:           optString(req, "assignee"),
		BusinessContext:    optString(req, "business_context"),
		TechnicalContext:   optString(req, "technical_context"),
		AcceptanceCriteria: listArg(req, "acceptance_criteria"),
		Files:              listArg(req, "files"),
	}
	if v := req.GetString("status", ""); v != "" {
		s := devlog.Status(v)
		in.Status = &s
	}
	if v := req.GetString("priority", ""); v != "" {
		p := devlog.Priority(v)
		in.Priority = &p
	}
	if v := req.GetString("type", ""); v != "" {
		typ := devlog.EntryType(v)
		in.Type = &typ
	}
	if note := req.GetString("note", ""); strings.TrimSpace(note) != "" {
		in.Note = &service.NoteInput{
			Category: devlog.NoteCategory(req.GetString("note_category", "")),
			Content:  note,
		}
	}

	e, err := t.api.UpdateDevlog(ctx, projectID, id, in)
	if err != nil {
		return failed(fmt.Sprintf("update devlog entry %d", id), err), nil
	}
	return mcp.NewToolResultText("Devlog entry updated: " + summaryLine(e)), nil
}

// ─── ListTool ────────────────────────────────────────────────────────────────

// ListTool handles the devlog_list MCP tool.
type ListTool struct {
	api      API
	projects *ProjectContext
}

// NewListTool creates a ListTool.
func NewListTool(api API, projects *ProjectContext) *ListTool {
	return &ListTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_list.
func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_list",
		append([]mcp.ToolOption{
			mcp.WithDescription("List devlog entries of the project with optional filters, most recently updated first."),
		}, filterOptions(
			mcp.WithNumber("page", mcp.Description("Page number (default: 1)")),
			mcp.WithNumber("limit", mcp.Description("Entries per page (default: 20, max: 100)")),
			mcp.WithString("sort_by",
				mcp.Description("Sort field (default: updatedAt)"),
				mcp.Enum("id", "title", "type", "status", "priority", "createdAt", "updatedAt", "closedAt"),
			),
			mcp.WithString("sort_order", mcp.Description("Sort order (default: desc)"), mcp.Enum("asc", "desc")),
		)...)...,
	)
}

// Handle processes the devlog_list tool call.
func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := filterArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := t.api.ListDevlogs(ctx, projectID, f, devlog.Pagination{
		Page:      intArg(req, "page", 1),
		Limit:     intArg(req, "limit", devlog.DefaultPageSize),
		SortBy:    devlog.SortField(req.GetString("sort_by", "")),
		SortOrder: devlog.SortOrder(req.GetString("sort_order", "")),
	})
	if err != nil {
		return failed("list devlog entries", err), nil
	}
	return mcp.NewToolResultText(formatPage("Devlog entries", page)), nil
}

// ─── SearchTool ──────────────────────────────────────────────────────────────

// SearchTool handles the devlog_search MCP tool.
type SearchTool struct {
	api      API
	projects *ProjectContext
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(api API, projects *ProjectContext) *SearchTool {
	return &SearchTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_search",
		append([]mcp.ToolOption{mcp.WithDescription(
			"Full-text search over titles, descriptions and context of devlog entries. " +
				"Use this before creating an entry to find existing work on the same topic.",
		)}, filterOptions(
			mcp.WithString("query", mcp.Required(), mcp.Description("Search words; all must match")),
			mcp.WithNumber("limit", mcp.Description("Max results (default: 20, max: 100)")),
		)...)...,
	)
}

// Handle processes the devlog_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := filterArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := t.api.SearchDevlogs(ctx, projectID, query, f, devlog.Pagination{Limit: intArg(req, "limit", devlog.DefaultPageSize)})
	if err != nil {
		return failed("search devlog entries", err), nil
	}
	return mcp.NewToolResultText(formatPage(fmt.Sprintf("Results for %q", query), page)), nil
}

// filterOptions returns the shared filter parameters followed by extra.
func filterOptions(extra ...mcp.ToolOption) []mcp.ToolOption {
	opts := []mcp.ToolOption{
		mcp.WithString("status", mcp.Description("Comma-separated statuses (e.g. new,in-progress)")),
		mcp.WithString("type", mcp.Description("Comma-separated types (e.g. feature,bugfix)")),
		mcp.WithString("priority", mcp.Description("Comma-separated priorities (e.g. high,critical)")),
		mcp.WithString("assignee", mcp.Description("Only entries assigned to this person")),
		mcp.WithString("archived",
			mcp.Description("Archived entries: false (default) hides them, true shows only them, all shows both"),
			mcp.Enum("false", "true", "all"),
		),
		withProjectID(),
	}
	return append(extra, opts...)
}

func filterArgs(req mcp.CallToolRequest) (devlog.Filter, error) {
	mode, err := devlog.ParseArchiveMode(req.GetString("archived", ""))
	if err != nil {
		return devlog.Filter{}, err
	}
	return devlog.Filter{
		Status:   enumList[devlog.Status](listArg(req, "status")),
		Type:     enumList[devlog.EntryType](listArg(req, "type")),
		Priority: enumList[devlog.Priority](listArg(req, "priority")),
		Assignee: req.GetString("assignee", ""),
		Archived: mode,
	}, nil
}
