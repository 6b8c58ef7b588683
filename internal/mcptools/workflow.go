package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── AddNoteTool ─────────────────────────────────────────────────────────────

// AddNoteTool handles the devlog_add_note MCP tool.
type AddNoteTool struct {
	api      API
	projects *ProjectContext
}

// NewAddNoteTool creates an AddNoteTool.
func NewAddNoteTool(api API, projects *ProjectContext) *AddNoteTool {
	return &AddNoteTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_add_note.
func (t *AddNoteTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_add_note",
		mcp.WithDescription(
			"Append a note to a devlog entry. Record progress, issues found, solutions and ideas as you work. "+
				"An identical note within five minutes is ignored.",
		),
		idArg(),
		mcp.WithString("content", mcp.Required(), mcp.Description("The note text")),
		mcp.WithString("category",
			mcp.Description("Note category (default: progress)"),
			mcp.Enum("progress", "issue", "solution", "idea", "reminder", "feedback", "acceptance-criteria"),
		),
		mcp.WithString("files", mcp.Description("Comma-separated files the note refers to")),
		mcp.WithString("code_changes", mcp.Description("Short summary of code changes")),
		withProjectID(),
	)
}

// Handle processes the devlog_add_note tool call.
func (t *AddNoteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content := req.GetString("content", "")
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("'content' is required"), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	n, err := t.api.AddNote(ctx, projectID, id, service.NoteInput{
		Category:    devlog.NoteCategory(req.GetString("category", "")),
		Content:     content,
		Files:       listArg(req, "files"),
		CodeChanges: req.GetString("code_changes", ""),
	})
	if err != nil {
		return failed(fmt.Sprintf("add note to entry %d", id), err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Note added to #%d (%s)\nNote ID: %s", id, n.Category, n.ID)), nil
}

// ─── CompleteTool ────────────────────────────────────────────────────────────

// CompleteTool handles the devlog_complete MCP tool.
type CompleteTool struct {
	api      API
	projects *ProjectContext
}

// NewCompleteTool creates a CompleteTool.
func NewCompleteTool(api API, projects *ProjectContext) *CompleteTool {
	return &CompleteTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_complete.
func (t *CompleteTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_complete",
		mcp.WithDescription("Mark a devlog entry done and record a summary of the solution."),
		idArg(),
		mcp.WithString("summary", mcp.Description("What was done and how; saved as a solution note")),
		withProjectID(),
	)
}

// Handle processes the devlog_complete tool call.
func (t *CompleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := t.api.CompleteDevlog(ctx, projectID, id, req.GetString("summary", ""))
	if err != nil {
		return failed(fmt.Sprintf("complete entry %d", id), err), nil
	}
	return mcp.NewToolResultText("Devlog entry completed: " + summaryLine(e)), nil
}

// ─── CloseTool ───────────────────────────────────────────────────────────────

// CloseTool handles the devlog_close MCP tool.
type CloseTool struct {
	api      API
	projects *ProjectContext
}

// NewCloseTool creates a CloseTool.
func NewCloseTool(api API, projects *ProjectContext) *CloseTool {
	return &CloseTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_close.
func (t *CloseTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_close",
		mcp.WithDescription("Cancel a devlog entry that will not be done, recording why."),
		idArg(),
		mcp.WithString("reason", mcp.Description("Why the work is dropped")),
		withProjectID(),
	)
}

// Handle processes the devlog_close tool call.
func (t *CloseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := t.api.CloseDevlog(ctx, projectID, id, req.GetString("reason", ""))
	if err != nil {
		return failed(fmt.Sprintf("close entry %d", id), err), nil
	}
	return mcp.NewToolResultText("Devlog entry closed: " + summaryLine(e)), nil
}

// ─── ArchiveTool ─────────────────────────────────────────────────────────────

// ArchiveTool handles the devlog_archive MCP tool.
type ArchiveTool struct {
	api      API
	projects *ProjectContext
}

// NewArchiveTool creates an ArchiveTool.
func NewArchiveTool(api API, projects *ProjectContext) *ArchiveTool {
	return &ArchiveTool{api: api, projects: projects}
}

// Definition returns the MCP tool definition for devlog_archive.
func (t *ArchiveTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_archive",
		mcp.WithDescription("Archive a devlog entry so it no longer shows in default listings, or restore it with restore=true."),
		idArg(),
		mcp.WithBoolean("restore", mcp.Description("Unarchive instead of archive (default: false)")),
		withProjectID(),
	)
}

// Handle processes the devlog_archive tool call.
func (t *ArchiveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	projectID, err := t.projects.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if boolArg(req, "restore", false) {
		e, err := t.api.UnarchiveDevlog(ctx, projectID, id)
		if err != nil {
			return failed(fmt.Sprintf("unarchive entry %d", id), err), nil
		}
		return mcp.NewToolResultText("Devlog entry restored: " + summaryLine(e)), nil
	}
	e, err := t.api.ArchiveDevlog(ctx, projectID, id)
	if err != nil {
		return failed(fmt.Sprintf("archive entry %d", id), err), nil
	}
	return mcp.NewToolResultText("Devlog entry archived: " + summaryLine(e)), nil
}
