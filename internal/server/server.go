// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it takes the REST client and injects it
// into the tools, prompts and resources. No business logic lives here,
// only wiring.
package server

import (
	"github.com/HendryAvila/devlog/internal/mcptools"
	"github.com/HendryAvila/devlog/internal/prompts"
	"github.com/HendryAvila/devlog/internal/resources"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Options configures the MCP server.
type Options struct {
	// DefaultProjectID is the project tools act on until project_switch
	// is called. Zero means none.
	DefaultProjectID int64
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. Every tool calls the devlog REST API
// through api; the MCP process owns no storage.
func New(api mcptools.API, opts Options, logger *zap.Logger) *server.MCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	projects := mcptools.NewProjectContext(opts.DefaultProjectID)

	s := server.NewMCPServer(
		"devlog",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerDevlogTools(s, api, projects)
	registerProjectTools(s, api, projects)
	registerAgentTools(s, api, projects)

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(api, projects)
	s.AddResource(resourceHandler.StatsResource(), resourceHandler.HandleStats)

	logger.Debug("mcp server ready", zap.Int64("default_project", opts.DefaultProjectID))
	return s
}

// registerDevlogTools registers the devlog entry tools.
func registerDevlogTools(s *server.MCPServer, api mcptools.API, projects *mcptools.ProjectContext) {
	// --- Entries ---
	createTool := mcptools.NewCreateTool(api, projects)
	s.AddTool(createTool.Definition(), createTool.Handle)

	getTool := mcptools.NewGetTool(api, projects)
	s.AddTool(getTool.Definition(), getTool.Handle)

	updateTool := mcptools.NewUpdateTool(api, projects)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	listTool := mcptools.NewListTool(api, projects)
	s.AddTool(listTool.Definition(), listTool.Handle)

	searchTool := mcptools.NewSearchTool(api, projects)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	// --- Workflow ---
	noteTool := mcptools.NewAddNoteTool(api, projects)
	s.AddTool(noteTool.Definition(), noteTool.Handle)

	completeTool := mcptools.NewCompleteTool(api, projects)
	s.AddTool(completeTool.Definition(), completeTool.Handle)

	closeTool := mcptools.NewCloseTool(api, projects)
	s.AddTool(closeTool.Definition(), closeTool.Handle)

	archiveTool := mcptools.NewArchiveTool(api, projects)
	s.AddTool(archiveTool.Definition(), archiveTool.Handle)

	// --- Insight ---
	statsTool := mcptools.NewStatsTool(api, projects)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	relatedTool := mcptools.NewDiscoverRelatedTool(api, projects)
	s.AddTool(relatedTool.Definition(), relatedTool.Handle)
}

// registerProjectTools registers the project selection tools.
func registerProjectTools(s *server.MCPServer, api mcptools.API, projects *mcptools.ProjectContext) {
	listTool := mcptools.NewProjectListTool(api, projects)
	s.AddTool(listTool.Definition(), listTool.Handle)

	currentTool := mcptools.NewProjectCurrentTool(api, projects)
	s.AddTool(currentTool.Definition(), currentTool.Handle)

	switchTool := mcptools.NewProjectSwitchTool(api, projects)
	s.AddTool(switchTool.Definition(), switchTool.Handle)
}

// registerAgentTools registers the agent session and event tools.
func registerAgentTools(s *server.MCPServer, api mcptools.API, projects *mcptools.ProjectContext) {
	// --- Session lifecycle ---
	startTool := mcptools.NewSessionStartTool(api, projects)
	s.AddTool(startTool.Definition(), startTool.Handle)

	endTool := mcptools.NewSessionEndTool(api)
	s.AddTool(endTool.Definition(), endTool.Handle)

	// --- Events ---
	logTool := mcptools.NewEventLogTool(api, projects)
	s.AddTool(logTool.Definition(), logTool.Handle)

	queryTool := mcptools.NewEventsQueryTool(api, projects)
	s.AddTool(queryTool.Definition(), queryTool.Handle)

	eventStats := mcptools.NewEventStatsTool(api, projects)
	s.AddTool(eventStats.Definition(), eventStats.Handle)
}

// serverInstructions returns the system instructions that tell the AI
// how to use devlog effectively.
func serverInstructions() string {
	return `You have access to devlog, a work-item log and agent activity tracker.

## WHEN TO USE devlog

Use devlog whenever the user asks for work that spans more than a quick answer:
- A feature, bug fix, refactor or documentation task
- Anything that may take more than one session
- Work where decisions and context should survive a context reset

You do NOT need devlog for questions, explanations or one-line changes.

## Workflow

1. Check the project: project_current (use project_list and project_switch if needed)
2. Look for existing work: devlog_discover_related with a description of the task
3. Reuse an open entry (devlog_get) or create one (devlog_create)
4. Start an agent session: agent_session_start, and keep the session ID
5. While working:
   - devlog_add_note for progress, decisions, issues and solutions
   - devlog_update to move the status (new, in-progress, blocked, in-review, testing)
   - agent_event_log for file writes, commands, test runs, builds and errors
6. Finish: devlog_complete with a summary (or devlog_close with a reason),
   then agent_session_end with the outcome

## Notes

- Entries belong to the current project unless you pass project_id
- List arguments (files, tags, acceptance criteria, statuses) are comma-separated
- devlog_archive hides finished work from listings; restore=true brings it back
- devlog_stats and agent_event_stats summarize progress; prefer them over
  listing everything`
}
